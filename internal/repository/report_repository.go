package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const reportColumns = `id, session_id, student_id, exam_id, status, total_violations,
	violation_types, severity_breakdown, final_score, completion_percentage,
	started_at, ended_at, created_at`

// ReportRepository handles proctoring reports. A session has at most one.
type ReportRepository struct {
	db database.DBTX
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(db database.DBTX) *ReportRepository {
	return &ReportRepository{db: db}
}

func scanReport(row pgx.Row, rep *model.ProctoringReport) error {
	var breakdown []byte
	if err := row.Scan(&rep.ID, &rep.SessionID, &rep.StudentID, &rep.ExamID, &rep.Status,
		&rep.TotalViolations, &rep.ViolationTypes, &breakdown, &rep.FinalScore,
		&rep.CompletionPercentage, &rep.StartedAt, &rep.EndedAt, &rep.CreatedAt); err != nil {
		return err
	}
	rep.SeverityBreakdown = map[model.Severity]int{}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &rep.SeverityBreakdown); err != nil {
			return fmt.Errorf("unmarshal severity breakdown: %w", err)
		}
	}
	return nil
}

// Create inserts a report. A second report for the same session fails on
// the unique session_id constraint.
func (r *ReportRepository) Create(ctx context.Context, rep *model.ProctoringReport) error {
	breakdown, err := json.Marshal(rep.SeverityBreakdown)
	if err != nil {
		return fmt.Errorf("marshal severity breakdown: %w", err)
	}
	types := rep.ViolationTypes
	if types == nil {
		types = []string{}
	}
	return r.db.QueryRow(ctx,
		`INSERT INTO proctoring_reports (session_id, student_id, exam_id, status, total_violations,
		                                 violation_types, severity_breakdown, final_score,
		                                 completion_percentage, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		rep.SessionID, rep.StudentID, rep.ExamID, rep.Status, rep.TotalViolations,
		types, breakdown, rep.FinalScore, rep.CompletionPercentage, rep.StartedAt, rep.EndedAt,
	).Scan(&rep.ID, &rep.CreatedAt)
}

// GetBySession retrieves the report of a session.
func (r *ReportRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.ProctoringReport, error) {
	rep := &model.ProctoringReport{}
	if err := scanReport(r.db.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM proctoring_reports WHERE session_id = $1`, sessionID), rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// ListByExam retrieves all reports of an exam, newest first.
func (r *ReportRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ProctoringReport, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reportColumns+` FROM proctoring_reports
		 WHERE exam_id = $1
		 ORDER BY created_at DESC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []model.ProctoringReport
	for rows.Next() {
		var rep model.ProctoringReport
		if err := scanReport(rows, &rep); err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}
