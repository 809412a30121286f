package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/mockexam-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing   Action = "ping"
	ActionSave   Action = "save"
	ActionSubmit Action = "submit"
)

// RequestEnvelope is the single shape every client message decodes into.
// Answers is only read for save and submit.
type RequestEnvelope struct {
	Action  Action                  `json:"action"`
	Answers []model.SubmittedAnswer `json:"answers,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventState     Event = "state"
	EventStatus    Event = "status"
	EventSaved     Event = "saved"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

// StateResponse re-syncs the client timer. Sent on connect and on every tick.
type StateResponse struct {
	Event            Event               `json:"event"`
	SessionID        uuid.UUID           `json:"session_id"`
	Status           model.SessionStatus `json:"status"`
	Deadline         *time.Time          `json:"deadline,omitempty"`
	RemainingSeconds *int64              `json:"remaining_seconds,omitempty"`
}

// StatusResponse relays a committed transition, e.g. the sweeper closing the
// attempt.
type StatusResponse struct {
	Event  Event               `json:"event"`
	Type   string              `json:"type"`
	Status model.SessionStatus `json:"status"`
	At     time.Time           `json:"at"`
}

// AckResponse answers save and submit.
type AckResponse struct {
	Event  Event               `json:"event"`
	Status model.SessionStatus `json:"status"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
