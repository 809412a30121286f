// Package apperror defines the error taxonomy shared by the exam session
// lifecycle, marking workflow and scoring engine. Transport layers map a Kind
// to their own status codes.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error by who caused it and how a caller should react.
type Kind string

const (
	KindNotFound      Kind = "NOT_FOUND"
	KindForbidden     Kind = "FORBIDDEN"
	KindConflict      Kind = "CONFLICT"
	KindConfiguration Kind = "CONFIGURATION"
	KindInternal      Kind = "INTERNAL"
	KindInvalidInput  Kind = "INVALID_INPUT"
)

// Reason narrows a Kind into a condition callers can branch on.
type Reason string

const (
	ReasonNone                    Reason = ""
	ReasonNotOwner                Reason = "NOT_OWNER"
	ReasonWindowNotOpen           Reason = "WINDOW_NOT_OPEN"
	ReasonWindowClosed            Reason = "WINDOW_CLOSED"
	ReasonTimeExpired             Reason = "TIME_EXPIRED"
	ReasonResultsNotReleased      Reason = "RESULTS_NOT_RELEASED"
	ReasonInvalidState            Reason = "INVALID_STATE"
	ReasonMissingSectionDurations Reason = "MISSING_SECTION_DURATIONS"
)

// Error is the tagged error returned by the service layer.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Fields  map[string]any
	Err     error
}

// Sentinels usable with errors.Is. Matching compares Kind and Reason only.
var (
	ErrWindowNotOpen           = &Error{Kind: KindForbidden, Reason: ReasonWindowNotOpen}
	ErrWindowClosed            = &Error{Kind: KindForbidden, Reason: ReasonWindowClosed}
	ErrTimeExpired             = &Error{Kind: KindForbidden, Reason: ReasonTimeExpired}
	ErrNotOwner                = &Error{Kind: KindForbidden, Reason: ReasonNotOwner}
	ErrResultsNotReleased      = &Error{Kind: KindForbidden, Reason: ReasonResultsNotReleased}
	ErrInvalidState            = &Error{Kind: KindConflict, Reason: ReasonInvalidState}
	ErrMissingSectionDurations = &Error{Kind: KindConfiguration, Reason: ReasonMissingSectionDurations}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
		if e.Reason != ReasonNone {
			msg += ": " + string(e.Reason)
		}
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind and Reason.
// A target without a Reason matches any Reason of its Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

// With returns a copy of e carrying an extra structured context field.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Fields = make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		cp.Fields[k] = v
	}
	cp.Fields[key] = value
	return &cp
}

func newf(kind Kind, reason Reason, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, ReasonNone, format, args...)
}

func Forbidden(reason Reason, format string, args ...any) *Error {
	return newf(KindForbidden, reason, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, ReasonInvalidState, format, args...)
}

func Configuration(reason Reason, format string, args ...any) *Error {
	return newf(KindConfiguration, reason, format, args...)
}

// Invalid reports a request the caller must correct before retrying.
func Invalid(format string, args ...any) *Error {
	return newf(KindInvalidInput, ReasonNone, format, args...)
}

// Internal wraps an unexpected persistence or infrastructure failure.
func Internal(err error, format string, args ...any) *Error {
	e := newf(KindInternal, ReasonNone, format, args...)
	e.Err = err
	return e
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal
// for any other non-nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the Reason of the first *Error in err's chain.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
