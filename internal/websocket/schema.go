package websocket

import (
	"github.com/google/uuid"

	"github.com/Soule73/examena-sub000/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer  Action = "answer"
	ActionSignal  Action = "signal"
	ActionSubmit  Action = "submit"
	ActionAbandon Action = "abandon"
	ActionPing    Action = "ping"
)

// AttemptRequest is the single client message shape. The action decides
// which fields are meaningful.
type AttemptRequest struct {
	Action Action `json:"action"`

	// answer
	QuestionID uuid.UUID          `json:"question_id,omitempty"`
	Answer     *model.AnswerValue `json:"answer,omitempty"`

	// signal
	Signal  string `json:"signal,omitempty"`
	Details string `json:"details,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSaved            Event = "saved"
	EventPromptFullscreen Event = "prompt_fullscreen"
	EventExitFullscreen   Event = "exit_fullscreen"
	EventSubmitted        Event = "submitted"
	EventTerminated       Event = "terminated"
	EventError            Event = "error"
	EventPong             Event = "pong"
)

// SavedResponse acknowledges a recorded answer edit.
type SavedResponse struct {
	Event      Event     `json:"event"`
	QuestionID uuid.UUID `json:"question_id"`
	Remaining  int       `json:"remaining_seconds"`
}

// FullscreenCommand asks the client to enter or leave fullscreen.
type FullscreenCommand struct {
	Event Event `json:"event"`
}

// SubmittedResponse closes the attempt with its graded outcome.
type SubmittedResponse struct {
	Event         Event   `json:"event"`
	Score         float64 `json:"score"`
	TotalPoints   float64 `json:"total_points"`
	Percentage    int     `json:"percentage"`
	PendingReview bool    `json:"pending_review"`
}

// TerminatedResponse reports a security termination.
type TerminatedResponse struct {
	Event          Event  `json:"event"`
	Reason         string `json:"reason"`
	Details        string `json:"details,omitempty"`
	ViolationCount int    `json:"violation_count"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining_seconds"`
}
