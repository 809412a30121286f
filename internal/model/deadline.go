package model

import (
	"errors"
	"time"
)

var (
	ErrSessionNotStarted = errors.New("session has no start time")
	ErrNoDurations       = errors.New("template has no section durations")
)

// ComputeDeadline is the single formula for when an attempt ends:
// startedAt + (listening + reading + writing) minutes. Both the submit path
// and the expiry sweeper call it.
func ComputeDeadline(session *ScheduledExamSession, durations *SectionDurations) (time.Time, error) {
	if session == nil || session.StartedAt == nil {
		return time.Time{}, ErrSessionNotStarted
	}
	if durations == nil {
		return time.Time{}, ErrNoDurations
	}
	return session.StartedAt.Add(durations.Total()), nil
}

// Expired reports whether now is strictly past the deadline.
func Expired(deadline, now time.Time) bool {
	return now.After(deadline)
}
