package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stemsi/mockexam-backend/internal/model"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrMissingTimestamp  = errors.New("session status without its timestamp")
)

// SessionQueries covers scheduled exam session rows.
type SessionQueries interface {
	GetSession(ctx context.Context, id uuid.UUID) (*model.ScheduledExamSession, error)
	// LockSession reads the session and, inside a transaction, holds its row
	// lock until the transaction ends.
	LockSession(ctx context.Context, id uuid.UUID) (*model.ScheduledExamSession, error)
	GetSessionSummary(ctx context.Context, id uuid.UUID) (*model.SessionSummary, error)
	CreateSession(ctx context.Context, s *model.ScheduledExamSession) error
	ListSessionsByStudent(ctx context.Context, studentID string) ([]model.SessionSummary, error)
	ListSubmissions(ctx context.Context, f model.SubmissionFilter) ([]model.SessionSummary, int, error)
	CountByStatus(ctx context.Context, status model.SessionStatus) (int, error)
	// TransitionStatus moves the session from -> to only if its stored status
	// is still from. It reports whether this call applied the change; a false
	// return means another writer got there first. Entering IN_PROGRESS stamps
	// started_at and entering COMPLETED stamps completed_at with at.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.SessionStatus, at time.Time) (bool, error)
	ListInProgress(ctx context.Context) ([]model.InProgressSession, error)
}

// TemplateQueries reads exam templates. Templates are never written here.
type TemplateQueries interface {
	GetTemplate(ctx context.Context, id uuid.UUID) (*model.ExamTemplate, error)
	GetSectionDurations(ctx context.Context, templateID uuid.UUID) (*model.SectionDurations, error)
}

// AnswerQueries covers student answer rows.
type AnswerQueries interface {
	// ReplaceAnswers removes every answer of the session and inserts answers.
	ReplaceAnswers(ctx context.Context, sessionID uuid.UUID, answers []model.SubmittedAnswer) error
	ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.MarkableAnswer, error)
	ApplyMarks(ctx context.Context, marks []model.AnswerMark) error
}

// Queries is everything the services may call, inside or outside a transaction.
type Queries interface {
	SessionQueries
	TemplateQueries
	AnswerQueries
}

// Store is the persistence gateway. WithTx runs fn atomically: either every
// write made through q commits or none does.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func transitionStamps(from, to model.SessionStatus, at time.Time) (startedAt, completedAt *time.Time, err error) {
	if !from.CanTransitionTo(to) {
		return nil, nil, ErrIllegalTransition
	}
	switch to {
	case model.SessionStatusInProgress:
		startedAt = &at
	case model.SessionStatusCompleted:
		completedAt = &at
	}
	return startedAt, completedAt, nil
}

// checkStamps enforces that a session past SCHEDULED carries started_at and
// a session past IN_PROGRESS carries completed_at.
func checkStamps(s model.ScheduledExamSession) error {
	if s.Status.HasStarted() && s.StartedAt == nil {
		return fmt.Errorf("%w: session %s is %s without started_at", ErrMissingTimestamp, s.ID, s.Status)
	}
	if s.Status.HasCompleted() && s.CompletedAt == nil {
		return fmt.Errorf("%w: session %s is %s without completed_at", ErrMissingTimestamp, s.ID, s.Status)
	}
	return nil
}

// dedupeAnswers keeps the last answer given for each question, preserving
// first-seen order.
func dedupeAnswers(answers []model.SubmittedAnswer) []model.SubmittedAnswer {
	idx := make(map[uuid.UUID]int, len(answers))
	out := make([]model.SubmittedAnswer, 0, len(answers))
	for _, a := range answers {
		if i, ok := idx[a.QuestionID]; ok {
			out[i] = a
			continue
		}
		idx[a.QuestionID] = len(out)
		out = append(out, a)
	}
	return out
}
