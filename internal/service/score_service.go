package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// ScoreService computes session scores and proctoring reports.
type ScoreService struct {
	log zerolog.Logger
}

// NewScoreService creates a new ScoreService.
func NewScoreService(log zerolog.Logger) *ScoreService {
	return &ScoreService{log: log.With().Str("component", "score_service").Logger()}
}

// Score returns the session score in [0, 100]. The database aggregate is
// tried first; if it fails the score is computed from the response and
// question counts read through the same store.
func (s *ScoreService) Score(ctx context.Context, store repository.Store, session *model.ExamSession) (float64, error) {
	score, err := store.Responses().AggregateScore(ctx, session.ID)
	if err == nil {
		return clampScore(score), nil
	}

	s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Score aggregate unavailable, computing in process")
	metrics.ScoreFallbacks.Inc()

	return fallbackScore(ctx, store, session)
}

func fallbackScore(ctx context.Context, store repository.Store, session *model.ExamSession) (float64, error) {
	total, err := store.Questions().CountScorableByExam(ctx, session.ExamID)
	if err != nil {
		return 0, fmt.Errorf("count scorable questions: %w", err)
	}
	correct, err := store.Responses().CountCorrect(ctx, session.ID)
	if err != nil {
		return 0, fmt.Errorf("count correct responses: %w", err)
	}
	return ComputeScore(correct, total), nil
}

// ComputeScore returns correct/total as a percentage rounded to two
// decimals, or 0 when there is nothing to score.
func ComputeScore(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return clampScore(math.Round(float64(correct)/float64(total)*100*100) / 100)
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// BuildReport derives the proctoring report of a completed session.
func BuildReport(session *model.ExamSession, violations []model.SessionEvent) *model.ProctoringReport {
	report := &model.ProctoringReport{
		SessionID:            session.ID,
		StudentID:            session.StudentID,
		ExamID:               session.ExamID,
		TotalViolations:      len(violations),
		ViolationTypes:       []string{},
		SeverityBreakdown:    map[model.Severity]int{},
		CompletionPercentage: session.CompletionPercentage,
		StartedAt:            session.StartTime,
	}
	if session.Score != nil {
		report.FinalScore = *session.Score
	}
	if session.EndTime != nil {
		report.EndedAt = *session.EndTime
	}

	seen := make(map[string]struct{}, len(violations))
	for _, v := range violations {
		report.SeverityBreakdown[v.Severity]++
		if _, ok := seen[v.EventType]; !ok {
			seen[v.EventType] = struct{}{}
			report.ViolationTypes = append(report.ViolationTypes, v.EventType)
		}
	}
	sort.Strings(report.ViolationTypes)

	report.Status = ClassifyReport(violations)
	return report
}

// ClassifyReport maps a violation list to a report status. Any serious
// violation flags the session regardless of count.
func ClassifyReport(violations []model.SessionEvent) model.ReportStatus {
	n := len(violations)
	if n == 0 {
		return model.ReportClean
	}

	for _, v := range violations {
		if v.Severity == model.SeverityCritical || v.Severity == model.SeverityHigh {
			return model.ReportFlaggedForReview
		}
		if strings.Contains(strings.ToLower(v.EventType), "developer tools") {
			return model.ReportFlaggedForReview
		}
	}

	switch {
	case n <= 2:
		return model.ReportMinorIssues
	case n <= 5:
		return model.ReportConcerning
	default:
		return model.ReportFlaggedForReview
	}
}

// sessionStats recomputes completion and violation counters from the
// authoritative tables.
func sessionStats(ctx context.Context, store repository.Store, sessionID, examID uuid.UUID) (*model.SessionStats, error) {
	total, err := store.Questions().CountByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	answered, err := store.Responses().CountAnswered(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count answered: %w", err)
	}
	violations, err := store.Events().CountBySession(ctx, sessionID, model.EventKindViolation)
	if err != nil {
		return nil, fmt.Errorf("count violations: %w", err)
	}

	stats := &model.SessionStats{
		AnsweredQuestions: answered,
		TotalQuestions:    total,
		TotalViolations:   violations,
	}
	if total > 0 {
		stats.CompletionPercentage = math.Round(float64(answered)/float64(total)*100*100) / 100
	}
	return stats, nil
}
