package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSnapshot  Action = "snapshot"
	ActionAnswer    Action = "answer"
	ActionViolation Action = "violation"
	ActionPing      Action = "ping"
)

// Request is one client message. Payload is decoded per action.
type Request struct {
	Action    Action          `json:"action"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError          Event = "error"
	EventSnapshotQueued Event = "snapshot_queued"
	EventAnswerSaved    Event = "answer_saved"
	EventViolation      Event = "violation_logged"
	EventCompleted      Event = "completed"
	EventPong           Event = "pong"
)

// Ack confirms an action and echoes its request id.
type Ack struct {
	Event     Event  `json:"event"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Event     Event  `json:"event"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}

type PongResponse struct {
	Event     Event  `json:"event"`
	RequestID string `json:"request_id,omitempty"`
}
