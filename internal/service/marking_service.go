package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/apperror"
	"github.com/stemsi/mockexam-backend/internal/clock"
	"github.com/stemsi/mockexam-backend/internal/metrics"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/repository"
	"github.com/stemsi/mockexam-backend/internal/scoring"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// MarkingService handles the admin side: reviewing submissions, marking,
// releasing results and computing scores.
type MarkingService struct {
	store  repository.Store
	clock  clock.Clock
	events EventBus
	log    zerolog.Logger
}

// NewMarkingService creates a new MarkingService.
func NewMarkingService(store repository.Store, clk clock.Clock, events EventBus, log zerolog.Logger) *MarkingService {
	return &MarkingService{
		store:  store,
		clock:  clk,
		events: events,
		log:    log.With().Str("component", "marking_service").Logger(),
	}
}

// ListSubmissions returns one page of sessions, newest first.
func (s *MarkingService) ListSubmissions(ctx context.Context, f model.SubmissionFilter) (*model.SubmissionPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	f.Limit = min(f.Limit, maxPageLimit)
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperror.Invalid("unknown status %q", f.Status)
	}

	items, total, err := s.store.ListSubmissions(ctx, f)
	if err != nil {
		return nil, asAppError(err, "list submissions")
	}
	awaiting, err := s.store.CountByStatus(ctx, model.SessionStatusCompleted)
	if err != nil {
		return nil, asAppError(err, "count awaiting submissions")
	}

	return &model.SubmissionPage{
		Items:         items,
		TotalItems:    total,
		TotalPages:    (total + f.Limit - 1) / f.Limit,
		CurrentPage:   f.Page,
		PerPage:       f.Limit,
		AwaitingCount: awaiting,
	}, nil
}

// GetSubmission returns a session with its answers and question metadata.
func (s *MarkingService) GetSubmission(ctx context.Context, sessionID uuid.UUID) (*model.SubmissionDetail, error) {
	summary, err := s.store.GetSessionSummary(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("submission not found")
		}
		return nil, asAppError(err, "get session")
	}
	answers, err := s.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, asAppError(err, "list answers")
	}
	return &model.SubmissionDetail{SessionSummary: *summary, Answers: answers}, nil
}

// BuildMarks computes the per-answer update for marking. Auto-markable types
// get isCorrect from a deep comparison with the key; everything else keeps
// isCorrect nil. Manual scores apply independently, by question id, with the
// last entry for a question winning.
func BuildMarks(answers []model.MarkableAnswer, manual []model.ManualScore) []model.AnswerMark {
	byQuestion := make(map[uuid.UUID]model.ManualScore, len(manual))
	for _, m := range manual {
		byQuestion[m.QuestionID] = m
	}

	marks := make([]model.AnswerMark, 0, len(answers))
	for _, a := range answers {
		mark := model.AnswerMark{AnswerID: a.ID}
		if a.QuestionType.AutoMarkable() {
			correct := scoring.AnswerMatches(a.Answer, a.AnswerKey)
			mark.IsCorrect = &correct
		}
		if m, ok := byQuestion[a.QuestionID]; ok {
			score := m.Score
			mark.Score = &score
			mark.Feedback = m.Feedback
		}
		marks = append(marks, mark)
	}
	return marks
}

// Mark moves a COMPLETED session to MARKED and writes every answer's marks
// in the same transaction.
func (s *MarkingService) Mark(ctx context.Context, sessionID uuid.UUID, manual []model.ManualScore) (*model.ScheduledExamSession, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("submission not found")
		}
		return nil, asAppError(err, "get session")
	}
	if sess.Status != model.SessionStatusCompleted {
		return nil, apperror.Conflict("this submission is not ready for marking").With("status", sess.Status)
	}

	now := s.clock.Now()
	var marked int
	err = s.store.WithTx(ctx, func(q repository.Queries) error {
		ok, err := q.TransitionStatus(ctx, sessionID, model.SessionStatusCompleted, model.SessionStatusMarked, now)
		if err != nil {
			return fmt.Errorf("mark session: %w", err)
		}
		if !ok {
			return apperror.Conflict("this submission is not ready for marking")
		}
		answers, err := q.ListAnswers(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("list answers: %w", err)
		}
		marks := BuildMarks(answers, manual)
		marked = len(marks)
		if err := q.ApplyMarks(ctx, marks); err != nil {
			return fmt.Errorf("apply marks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "mark submission")
	}

	sess.Status = model.SessionStatusMarked
	sess.UpdatedAt = now
	metrics.RecordTransition(string(model.SessionStatusCompleted), string(model.SessionStatusMarked), sourceMark)
	publish(ctx, s.events, s.log, SessionEvent{
		Type: EventSessionMarked, SessionID: sess.ID, StudentID: sess.StudentID, Status: sess.Status, At: now,
	})
	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("student_id", sess.StudentID).
		Int("answers", marked).
		Int("manual_scores", len(manual)).
		Msg("Submission marked")
	return sess, nil
}

// Release moves a MARKED session to RESULTS_RELEASED.
func (s *MarkingService) Release(ctx context.Context, sessionID uuid.UUID) (*model.ScheduledExamSession, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("submission not found")
		}
		return nil, asAppError(err, "get session")
	}
	if sess.Status != model.SessionStatusMarked {
		return nil, apperror.Conflict("this exam is not ready to be released").With("status", sess.Status)
	}

	now := s.clock.Now()
	ok, err := s.store.TransitionStatus(ctx, sessionID, model.SessionStatusMarked, model.SessionStatusResultsReleased, now)
	if err != nil {
		return nil, asAppError(err, "release results")
	}
	if !ok {
		return nil, apperror.Conflict("this exam is not ready to be released")
	}

	sess.Status = model.SessionStatusResultsReleased
	sess.UpdatedAt = now
	metrics.RecordTransition(string(model.SessionStatusMarked), string(model.SessionStatusResultsReleased), sourceRelease)
	publish(ctx, s.events, s.log, SessionEvent{
		Type: EventSessionReleased, SessionID: sess.ID, StudentID: sess.StudentID, Status: sess.Status, At: now,
	})
	s.log.Info().Str("session_id", sessionID.String()).Str("student_id", sess.StudentID).Msg("Results released")
	return sess, nil
}

// CalculateScores derives scores from the session's stored marks. A missing
// session is NotFound, never an empty result.
func (s *MarkingService) CalculateScores(ctx context.Context, sessionID uuid.UUID) (*model.Scores, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("submission not found for score calculation")
		}
		return nil, asAppError(err, "get session")
	}
	answers, err := s.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, asAppError(err, "list answers")
	}
	scores := scoring.Calculate(answers)
	return &scores, nil
}
