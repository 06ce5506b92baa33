package model

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// SnapshotResponse is one answer as seen by the client at snapshot time.
type SnapshotResponse struct {
	ResponseText        *string `json:"responseText,omitempty"`
	ResponseOptionIndex *int    `json:"responseOptionIndex,omitempty"`
}

// SnapshotData is the client-reported progress payload. The typed fields
// feed validation and the summary columns; the body itself is kept as sent
// and only used for recovery, never for scoring.
type SnapshotData struct {
	Responses            map[string]SnapshotResponse `json:"responses" binding:"required"`
	Violations           int                         `json:"violations" binding:"min=0"`
	CompletionPercentage float64                     `json:"completionPercentage" binding:"min=0,max=100"`
	CurrentQuestionIndex int                         `json:"currentQuestionIndex" binding:"min=0"`
	TimeRemaining        float64                     `json:"timeRemaining" binding:"min=0"`

	raw json.RawMessage
}

// snapshotFields has the fields of SnapshotData without its JSON methods.
type snapshotFields SnapshotData

// UnmarshalJSON decodes the typed fields and keeps the original body.
func (d *SnapshotData) UnmarshalJSON(b []byte) error {
	var f snapshotFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*d = SnapshotData(f)
	d.raw = append(json.RawMessage(nil), b...)
	return nil
}

// MarshalJSON returns the original body when there is one.
func (d SnapshotData) MarshalJSON() ([]byte, error) {
	return d.Raw()
}

// Raw returns the payload as the client sent it, or the typed fields
// encoded when the value was built in code.
func (d SnapshotData) Raw() (json.RawMessage, error) {
	if len(d.raw) > 0 {
		return d.raw, nil
	}
	f := snapshotFields(d)
	if f.Responses == nil {
		f.Responses = map[string]SnapshotResponse{}
	}
	return json.Marshal(f)
}

// SessionSnapshot is a persisted snapshot row. Data is the opaque client
// payload stored in snapshot_data.
type SessionSnapshot struct {
	ID                   int64           `json:"id"`
	SessionID            uuid.UUID       `json:"session_id"`
	Data                 json.RawMessage `json:"snapshot_data"`
	ResponsesCount       int             `json:"responses_count"`
	ViolationsCount      int             `json:"violations_count"`
	CompletionPercentage float64         `json:"completion_percentage"`
	CurrentQuestionIndex int             `json:"current_question_index"`
	TimeRemaining        int             `json:"time_remaining"`
	CreatedAt            time.Time       `json:"created_at"`
}

// NewSessionSnapshot derives the summary columns from the payload.
func NewSessionSnapshot(sessionID uuid.UUID, data SnapshotData, at time.Time) (*SessionSnapshot, error) {
	raw, err := data.Raw()
	if err != nil {
		return nil, err
	}
	return &SessionSnapshot{
		SessionID:            sessionID,
		Data:                 raw,
		ResponsesCount:       len(data.Responses),
		ViolationsCount:      data.Violations,
		CompletionPercentage: data.CompletionPercentage,
		CurrentQuestionIndex: data.CurrentQuestionIndex,
		TimeRemaining:        int(math.Round(data.TimeRemaining)),
		CreatedAt:            at,
	}, nil
}
