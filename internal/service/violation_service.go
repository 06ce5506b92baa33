package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// Publisher delivers live events to admins watching an exam.
type Publisher interface {
	Publish(ctx context.Context, examID uuid.UUID, ev model.MonitorEvent) error
}

// severityRules is checked in order; the first matching keyword wins.
var severityRules = []struct {
	severity model.Severity
	keywords []string
}{
	{model.SeverityCritical, []string{"developer tools", "console", "exam terminated", "multiple violations"}},
	{model.SeverityHigh, []string{"paste", "copy", "right-click", "view source"}},
	{model.SeverityMedium, []string{"tab", "window", "focus"}},
}

// DetermineSeverity classifies a violation type by keyword.
func DetermineSeverity(violationType string) model.Severity {
	t := strings.ToLower(violationType)
	for _, rule := range severityRules {
		for _, kw := range rule.keywords {
			if strings.Contains(t, kw) {
				return rule.severity
			}
		}
	}
	return model.SeverityLow
}

// ViolationService records violations against in-progress sessions. It only
// signals when the threshold is reached; completing the session is up to
// the caller.
type ViolationService struct {
	store     repository.Store
	publisher Publisher
	log       zerolog.Logger
}

// NewViolationService creates a new ViolationService. publisher may be nil.
func NewViolationService(store repository.Store, publisher Publisher, log zerolog.Logger) *ViolationService {
	return &ViolationService{
		store:     store,
		publisher: publisher,
		log:       log.With().Str("component", "violation_service").Logger(),
	}
}

// Log appends a violation and bumps the session counter in one transaction.
func (s *ViolationService) Log(ctx context.Context, sessionID uuid.UUID, req model.LogViolationRequest) (*model.ViolationResult, error) {
	severity := req.Severity
	if severity == "" {
		severity = DetermineSeverity(req.ViolationType)
	}

	event := &model.SessionEvent{
		SessionID:      sessionID,
		Kind:           model.EventKindViolation,
		EventType:      req.ViolationType,
		Severity:       severity,
		Description:    req.Description,
		BrowserInfo:    req.BrowserInfo,
		DeviceInfo:     req.DeviceInfo,
		AdditionalData: req.AdditionalData,
		DetectedAt:     time.Now().UTC(),
	}

	var (
		session *model.ExamSession
		exam    *model.Exam
		total   int
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		session, err = tx.Sessions().GetByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("get session: %w", err)
		}
		if !session.InProgress() {
			return ErrSessionCompleted
		}

		exam, err = tx.Exams().GetByID(ctx, session.ExamID)
		if err != nil {
			return fmt.Errorf("get exam: %w", err)
		}

		if err := tx.Events().Append(ctx, event); err != nil {
			return fmt.Errorf("append violation: %w", err)
		}

		total, err = tx.Sessions().IncrementViolations(ctx, sessionID)
		if err != nil {
			// The row lost its in_progress status between read and update.
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSessionCompleted
			}
			return fmt.Errorf("increment violations: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ViolationsLogged.WithLabelValues(string(severity)).Inc()

	result := &model.ViolationResult{
		ViolationID:     event.ID,
		DetectedAt:      event.DetectedAt,
		Severity:        severity,
		TotalViolations: total,
		ShouldTerminate: total >= exam.MaxViolations,
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("violation_type", req.ViolationType).
		Str("severity", string(severity)).
		Int("total_violations", total).
		Bool("should_terminate", result.ShouldTerminate).
		Msg("Violation logged")

	s.publish(ctx, session.ExamID, model.MonitorEvent{
		Type:            model.MonitorViolation,
		SessionID:       sessionID,
		StudentID:       session.StudentID,
		ViolationType:   req.ViolationType,
		Severity:        severity,
		TotalViolations: total,
		At:              event.DetectedAt,
	})

	return result, nil
}

// List returns the violations of a session in detection order.
func (s *ViolationService) List(ctx context.Context, sessionID uuid.UUID) ([]model.SessionEvent, error) {
	if _, err := s.store.Sessions().GetByID(ctx, sessionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	events, err := s.store.Events().ListBySession(ctx, sessionID, model.EventKindViolation)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	if events == nil {
		events = []model.SessionEvent{}
	}
	return events, nil
}

// ListOwned is List restricted to the session's own student.
func (s *ViolationService) ListOwned(ctx context.Context, sessionID, studentID uuid.UUID) ([]model.SessionEvent, error) {
	session, err := s.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.StudentID != studentID {
		return nil, ErrSessionNotFound
	}
	return s.List(ctx, sessionID)
}

func (s *ViolationService) publish(ctx context.Context, examID uuid.UUID, ev model.MonitorEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, examID, ev); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to publish monitor event")
	}
}
