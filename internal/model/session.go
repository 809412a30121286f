package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates scheduled exam session states.
type SessionStatus string

const (
	SessionStatusScheduled       SessionStatus = "SCHEDULED"
	SessionStatusInProgress      SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted       SessionStatus = "COMPLETED"
	SessionStatusMarked          SessionStatus = "MARKED"
	SessionStatusResultsReleased SessionStatus = "RESULTS_RELEASED"
)

// sessionFlow is the only path a session may take. No stage is skipped and
// nothing moves backwards.
var sessionFlow = map[SessionStatus]SessionStatus{
	SessionStatusScheduled:  SessionStatusInProgress,
	SessionStatusInProgress: SessionStatusCompleted,
	SessionStatusCompleted:  SessionStatusMarked,
	SessionStatusMarked:     SessionStatusResultsReleased,
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusInProgress, SessionStatusCompleted,
		SessionStatusMarked, SessionStatusResultsReleased:
		return true
	}
	return false
}

// CanTransitionTo reports whether to is the immediate successor of s.
func (s SessionStatus) CanTransitionTo(to SessionStatus) bool {
	next, ok := sessionFlow[s]
	return ok && next == to
}

// HasStarted reports whether a session in status s must carry StartedAt.
func (s SessionStatus) HasStarted() bool {
	return s.Valid() && s != SessionStatusScheduled
}

// HasCompleted reports whether a session in status s must carry CompletedAt.
func (s SessionStatus) HasCompleted() bool {
	return s == SessionStatusCompleted || s == SessionStatusMarked || s == SessionStatusResultsReleased
}

// ScheduledExamSession is one attempt by one student at one template.
type ScheduledExamSession struct {
	ID               uuid.UUID     `json:"id"`
	StudentID        string        `json:"student_id"`
	TemplateID       uuid.UUID     `json:"template_id"`
	StartAvailableAt time.Time     `json:"start_available_at"`
	EndAvailableAt   time.Time     `json:"end_available_at"`
	Status           SessionStatus `json:"status"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// OwnedBy reports whether the session belongs to studentID.
func (s *ScheduledExamSession) OwnedBy(studentID string) bool {
	return s.StudentID == studentID
}

// SessionSummary is a session row joined with its template title, used by
// the student dashboard and the admin submission list.
type SessionSummary struct {
	ScheduledExamSession
	TemplateTitle string `json:"template_title"`
}

// InProgressSession pairs an IN_PROGRESS session with the durations of its
// template. Durations is nil when the template is misconfigured;
// DurationsErr is set when its stored durations could not be decoded.
type InProgressSession struct {
	Session      ScheduledExamSession
	Durations    *SectionDurations
	DurationsErr error
}
