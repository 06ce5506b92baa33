package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// ExamSessionService drives a session from creation to completion. A
// session is in_progress until Complete, which is terminal.
type ExamSessionService struct {
	store     repository.Store
	scorer    *ScoreService
	snapshots *SnapshotService
	publisher Publisher
	now       func() time.Time
	log       zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService. publisher may be
// nil.
func NewExamSessionService(
	store repository.Store,
	scorer *ScoreService,
	snapshots *SnapshotService,
	publisher Publisher,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		store:     store,
		scorer:    scorer,
		snapshots: snapshots,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("component", "exam_session_service").Logger(),
	}
}

// createAttempts bounds insert retries when the conflicting in-progress
// session disappears between the insert and the read.
const createAttempts = 3

// NewSessionCode returns a human-readable session identifier of the form
// SES-<base36 millis>-<6 hex>.
func NewSessionCode(at time.Time) string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return strings.ToUpper(fmt.Sprintf("SES-%s-%s",
		strconv.FormatInt(at.UnixMilli(), 36), hex.EncodeToString(b[:])))
}

// Create starts a session for an active exam the student may access. If
// the student already has one in progress it is returned with created
// false and nothing is written.
func (s *ExamSessionService) Create(ctx context.Context, studentID, examID uuid.UUID, browserInfo, ipAddress string) (*model.ExamSession, bool, error) {
	exam, err := s.store.Exams().GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrExamNotFound
		}
		return nil, false, fmt.Errorf("get exam: %w", err)
	}
	if !exam.IsActive {
		return nil, false, ErrNoActiveExam
	}

	ok, err := canAccess(ctx, s.store, studentID, examID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrAccessDeniedToExam
	}

	now := s.now()
	session := &model.ExamSession{
		SessionCode:      NewSessionCode(now),
		StudentID:        studentID,
		ExamID:           examID,
		StartTime:        now,
		ScheduledEndTime: now.Add(time.Duration(exam.DurationMinutes) * time.Minute),
		Status:           model.SessionStatusInProgress,
		BrowserInfo:      browserInfo,
		IPAddress:        ipAddress,
	}

	created := false
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		for attempt := 1; ; attempt++ {
			var err error
			created, err = tx.Sessions().Create(ctx, session)
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			if created {
				break
			}
			existing, err := tx.Sessions().GetLatestInProgress(ctx, studentID, examID)
			if err == nil {
				session = existing
				return nil
			}
			// The conflicting session completed before it could be read.
			if !errors.Is(err, pgx.ErrNoRows) || attempt == createAttempts {
				return fmt.Errorf("get existing session: %w", err)
			}
		}

		extra, _ := json.Marshal(map[string]string{
			"browser_info": browserInfo,
			"ip_address":   ipAddress,
			"session_code": session.SessionCode,
		})
		return appendLifecycle(ctx, tx, session.ID, model.LifecycleExamStarted, extra, now)
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		metrics.SessionsStarted.Inc()
		s.log.Info().
			Str("session_id", session.ID.String()).
			Str("student_id", studentID.String()).
			Str("exam_id", examID.String()).
			Msg("Exam session started")
		s.publish(ctx, examID, model.MonitorEvent{
			Type:      model.MonitorSessionStarted,
			SessionID: session.ID,
			StudentID: studentID,
			At:        now,
		})
	}
	return session, created, nil
}

// CheckExisting returns the student's in-progress session for the exam, or
// nil if there is none.
func (s *ExamSessionService) CheckExisting(ctx context.Context, studentID, examID uuid.UUID) (*model.ExamSession, error) {
	session, err := s.store.Sessions().GetLatestInProgress(ctx, studentID, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get in-progress session: %w", err)
	}
	return session, nil
}

// Get returns a session owned by studentID. Other students' sessions are
// reported as not found.
func (s *ExamSessionService) Get(ctx context.Context, sessionID, studentID uuid.UUID) (*model.ExamSession, error) {
	session, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.StudentID != studentID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// GetByID returns any session. Used by admin paths.
func (s *ExamSessionService) GetByID(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	session, err := s.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// Resume records that the student reattached to an in-progress session.
func (s *ExamSessionService) Resume(ctx context.Context, sessionID, studentID uuid.UUID) (*model.ExamSession, error) {
	now := s.now()
	var session *model.ExamSession
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		session, err = ownedInProgress(ctx, tx, sessionID, studentID)
		if err != nil {
			return err
		}
		count, err := tx.Sessions().MarkResumed(ctx, sessionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSessionCompleted
			}
			return fmt.Errorf("mark resumed: %w", err)
		}
		session.WasResumed = true
		session.ResumeCount = count

		extra, _ := json.Marshal(map[string]int{"resume_count": count})
		return appendLifecycle(ctx, tx, sessionID, model.LifecycleExamResumed, extra, now)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, session.ExamID, model.MonitorEvent{
		Type:      model.MonitorSessionResumed,
		SessionID: session.ID,
		StudentID: session.StudentID,
		At:        now,
	})
	return session, nil
}

// CompleteOwned completes a session on behalf of its student, taking the
// client's completion reason.
func (s *ExamSessionService) CompleteOwned(ctx context.Context, sessionID, studentID uuid.UUID, reason string) (*model.CompletionResult, error) {
	submission, ok := model.ParseClientSubmission(reason)
	if !ok {
		return nil, ErrInvalidSubmissionType
	}
	if _, err := s.Get(ctx, sessionID, studentID); err != nil {
		return nil, err
	}
	return s.Complete(ctx, sessionID, submission)
}

// Terminate ends a session from the admin side.
func (s *ExamSessionService) Terminate(ctx context.Context, sessionID uuid.UUID) (*model.CompletionResult, error) {
	return s.Complete(ctx, sessionID, model.SubmissionAdminTerminated)
}

// Complete finishes a session: final stats, score, lifecycle event and
// proctoring report are written in one transaction. Completing an already
// completed session changes nothing and returns the stored state.
func (s *ExamSessionService) Complete(ctx context.Context, sessionID uuid.UUID, submission model.SubmissionType) (*model.CompletionResult, error) {
	switch submission {
	case model.SubmissionManual, model.SubmissionAutoTimeout,
		model.SubmissionMaxViolations, model.SubmissionAdminTerminated:
	default:
		return nil, ErrInvalidSubmissionType
	}

	result := &model.CompletionResult{}
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		session, err := tx.Sessions().GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("lock session: %w", err)
		}

		if !session.InProgress() {
			result.Session = session
			result.AlreadyCompleted = true
			report, err := tx.Reports().GetBySession(ctx, sessionID)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("get report: %w", err)
			}
			result.Report = report
			return nil
		}

		end := s.now()
		duration := int(end.Sub(session.StartTime).Seconds())
		if duration < 0 {
			duration = 0
		}

		stats, err := sessionStats(ctx, tx, session.ID, session.ExamID)
		if err != nil {
			return err
		}

		score, err := s.scorer.Score(ctx, tx, session)
		if err != nil {
			return fmt.Errorf("score session: %w", err)
		}

		session.EndTime = &end
		session.ActualDurationSeconds = &duration
		session.Score = &score
		session.SubmissionType = &submission
		session.CompletionPercentage = stats.CompletionPercentage
		session.TotalViolations = stats.TotalViolations

		if err := tx.Sessions().Complete(ctx, session); err != nil {
			return fmt.Errorf("complete session: %w", err)
		}

		extra, _ := json.Marshal(map[string]any{
			"submission_type": submission,
			"score":           score,
			"duration":        duration,
		})
		if err := appendLifecycle(ctx, tx, session.ID, model.LifecycleExamCompleted, extra, end); err != nil {
			return err
		}

		violations, err := tx.Events().ListBySession(ctx, session.ID, model.EventKindViolation)
		if err != nil {
			return fmt.Errorf("list violations: %w", err)
		}

		report := BuildReport(session, violations)
		if err := tx.Reports().Create(ctx, report); err != nil {
			return fmt.Errorf("create report: %w", err)
		}

		result.Session = session
		result.Report = report
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.AlreadyCompleted {
		return result, nil
	}

	session := result.Session
	metrics.SessionsCompleted.WithLabelValues(string(submission)).Inc()
	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("submission_type", string(submission)).
		Float64("score", *session.Score).
		Str("report_status", string(result.Report.Status)).
		Msg("Exam session completed")

	s.snapshots.Forget(ctx, session.ID)
	s.publish(ctx, session.ExamID, model.MonitorEvent{
		Type:            model.MonitorSessionCompleted,
		SessionID:       session.ID,
		StudentID:       session.StudentID,
		TotalViolations: session.TotalViolations,
		Score:           session.Score,
		SubmissionType:  submission,
		At:              *session.EndTime,
	})
	return result, nil
}

// UpdateStats recomputes and stores a session's completion percentage and
// violation count.
func (s *ExamSessionService) UpdateStats(ctx context.Context, sessionID uuid.UUID) (*model.SessionStats, error) {
	var stats *model.SessionStats
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		session, err := tx.Sessions().GetByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("get session: %w", err)
		}

		stats, err = sessionStats(ctx, tx, session.ID, session.ExamID)
		if err != nil {
			return err
		}
		if err := tx.Sessions().UpdateStats(ctx, sessionID, stats.CompletionPercentage, stats.TotalViolations); err != nil {
			return fmt.Errorf("update stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// GetRecoveryData returns what a reloaded client needs to continue, or nil
// when the session is finished or has no snapshot yet.
func (s *ExamSessionService) GetRecoveryData(ctx context.Context, sessionID, studentID uuid.UUID) (*model.RecoveryData, error) {
	session, err := s.Get(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	if !session.InProgress() {
		return nil, nil
	}

	snap, err := s.snapshots.Latest(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}

	return &model.RecoveryData{
		Session:          session,
		Snapshot:         snap,
		CanRecover:       true,
		RemainingSeconds: session.RemainingSeconds(s.now()),
	}, nil
}

// SaveResponse stores the student's answer to a question of the session's
// exam. Multiple-choice answers are graded on write.
func (s *ExamSessionService) SaveResponse(ctx context.Context, sessionID, studentID uuid.UUID, req model.SaveResponseRequest) (*model.Response, error) {
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		return nil, ErrQuestionNotFound
	}

	session, err := ownedInProgress(ctx, s.store, sessionID, studentID)
	if err != nil {
		return nil, err
	}

	question, err := s.store.Questions().GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	if question.ExamID != session.ExamID {
		return nil, ErrQuestionNotFound
	}

	resp := &model.Response{
		SessionID:           sessionID,
		QuestionID:          questionID,
		ResponseText:        req.ResponseText,
		ResponseOptionIndex: req.ResponseOptionIndex,
		IsCorrect:           gradeResponse(question, req.ResponseOptionIndex),
	}
	if err := s.store.Responses().Upsert(ctx, resp); err != nil {
		return nil, fmt.Errorf("save response: %w", err)
	}
	return resp, nil
}

func gradeResponse(q *model.Question, option *int) *bool {
	if !q.Scorable() {
		return nil
	}
	correct := option != nil && *option == *q.CorrectOptionIndex
	return &correct
}

// GetReport returns the proctoring report of a completed session.
func (s *ExamSessionService) GetReport(ctx context.Context, sessionID uuid.UUID) (*model.ProctoringReport, error) {
	report, err := s.store.Reports().GetBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	return report, nil
}

// ListReportsByExam returns every report of an exam.
func (s *ExamSessionService) ListReportsByExam(ctx context.Context, examID uuid.UUID) ([]model.ProctoringReport, error) {
	if err := examExists(ctx, s.store, examID); err != nil {
		return nil, err
	}
	reports, err := s.store.Reports().ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if reports == nil {
		reports = []model.ProctoringReport{}
	}
	return reports, nil
}

// ListByExam returns every session of an exam.
func (s *ExamSessionService) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error) {
	if err := examExists(ctx, s.store, examID); err != nil {
		return nil, err
	}
	sessions, err := s.store.Sessions().ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []model.ExamSession{}
	}
	return sessions, nil
}

func (s *ExamSessionService) publish(ctx context.Context, examID uuid.UUID, ev model.MonitorEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, examID, ev); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to publish monitor event")
	}
}

func appendLifecycle(ctx context.Context, tx repository.Store, sessionID uuid.UUID, eventType string, extra []byte, at time.Time) error {
	err := tx.Events().Append(ctx, &model.SessionEvent{
		SessionID:      sessionID,
		Kind:           model.EventKindLifecycle,
		EventType:      eventType,
		Severity:       model.SeverityLow,
		AdditionalData: extra,
		DetectedAt:     at,
	})
	if err != nil {
		return fmt.Errorf("append %q event: %w", eventType, err)
	}
	return nil
}

func examExists(ctx context.Context, store repository.Store, examID uuid.UUID) error {
	if _, err := store.Exams().GetByID(ctx, examID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrExamNotFound
		}
		return fmt.Errorf("get exam: %w", err)
	}
	return nil
}
