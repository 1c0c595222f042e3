package websocket

import "github.com/akademos/exam-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope decodes just the action field so the frame can be routed
// to its full request type.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest carries a partial batch of answers. Keys merge into the
// attempt's buffered answers; an empty map is a plain heartbeat.
type AutosaveRequest struct {
	Action  Action            `json:"action"`
	Answers map[string]string `json:"answers"`
}

// SubmitRequest asks the server to conclude and grade the attempt.
type SubmitRequest struct {
	Action           Action            `json:"action"`
	Answers          map[string]string `json:"answers"`
	TimeSpentSeconds int               `json:"time_spent_seconds"`
	AutoSubmit       bool              `json:"auto_submit"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event Event `json:"event"`
	Saved int   `json:"saved"`
}

// PongResponse answers a ping with the authoritative clock so clients can
// resync their countdown timers.
type PongResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type SubmittedResponse struct {
	Event   Event                `json:"event"`
	Receipt *model.SubmitReceipt `json:"receipt"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}
