package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// SessionEventRepository handles the session timeline. Rows are never
// updated or deleted.
type SessionEventRepository struct {
	db database.DBTX
}

// NewSessionEventRepository creates a new SessionEventRepository.
func NewSessionEventRepository(db database.DBTX) *SessionEventRepository {
	return &SessionEventRepository{db: db}
}

// Append inserts an event and fills in its ID. A zero DetectedAt defaults
// to the database clock.
func (r *SessionEventRepository) Append(ctx context.Context, e *model.SessionEvent) error {
	var detectedAt any
	if !e.DetectedAt.IsZero() {
		detectedAt = e.DetectedAt
	}
	var additional any
	if len(e.AdditionalData) > 0 {
		additional = []byte(e.AdditionalData)
	}
	return r.db.QueryRow(ctx,
		`INSERT INTO session_events (session_id, kind, event_type, severity, description,
		                             browser_info, device_info, additional_data, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9::timestamptz, NOW()))
		 RETURNING id, detected_at`,
		e.SessionID, e.Kind, e.EventType, e.Severity, e.Description,
		e.BrowserInfo, e.DeviceInfo, additional, detectedAt,
	).Scan(&e.ID, &e.DetectedAt)
}

// ListBySession retrieves a session's events of one kind in detection order.
// An empty kind returns the whole timeline.
func (r *SessionEventRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, kind model.EventKind) ([]model.SessionEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, kind, event_type, severity, description,
		        browser_info, device_info, additional_data, detected_at
		 FROM session_events
		 WHERE session_id = $1 AND ($2 = '' OR kind = $2)
		 ORDER BY detected_at, id`,
		sessionID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.SessionEvent
	for rows.Next() {
		var e model.SessionEvent
		var additional []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.EventType, &e.Severity, &e.Description,
			&e.BrowserInfo, &e.DeviceInfo, &additional, &e.DetectedAt); err != nil {
			return nil, err
		}
		e.AdditionalData = additional
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountBySession counts a session's events of one kind.
func (r *SessionEventRepository) CountBySession(ctx context.Context, sessionID uuid.UUID, kind model.EventKind) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_events WHERE session_id = $1 AND kind = $2`,
		sessionID, kind,
	).Scan(&n)
	return n, err
}
