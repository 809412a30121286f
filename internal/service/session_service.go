package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/apperror"
	"github.com/stemsi/mockexam-backend/internal/clock"
	"github.com/stemsi/mockexam-backend/internal/metrics"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/repository"
	"github.com/stemsi/mockexam-backend/internal/scoring"
)

// Transition sources recorded in metrics.
const (
	sourceStart   = "start"
	sourceSubmit  = "submit"
	sourceLate    = "late_submit"
	sourceSweep   = "sweep"
	sourceMark    = "mark"
	sourceRelease = "release"
)

// SessionService owns the student-facing lifecycle of a scheduled exam:
// scheduling, start, resume, draft save, submit, results and expiry.
type SessionService struct {
	store  repository.Store
	clock  clock.Clock
	events EventBus
	log    zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(store repository.Store, clk clock.Clock, events EventBus, log zerolog.Logger) *SessionService {
	return &SessionService{
		store:  store,
		clock:  clk,
		events: events,
		log:    log.With().Str("component", "session_service").Logger(),
	}
}

// asAppError passes tagged errors through and wraps anything else as Internal.
func asAppError(err error, op string) error {
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperror.Internal(err, "%s", op)
}

func publish(ctx context.Context, bus EventBus, log zerolog.Logger, ev SessionEvent) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("session_id", ev.SessionID.String()).Str("event", string(ev.Type)).Msg("Failed to publish session event")
	}
}

func (s *SessionService) emit(ctx context.Context, typ SessionEventType, sess *model.ScheduledExamSession, status model.SessionStatus, at time.Time) {
	publish(ctx, s.events, s.log, SessionEvent{
		Type:      typ,
		SessionID: sess.ID,
		StudentID: sess.StudentID,
		Status:    status,
		At:        at,
	})
}

// Schedule creates a SCHEDULED session for a student.
func (s *SessionService) Schedule(ctx context.Context, req model.ScheduleExamRequest) (*model.ScheduledExamSession, error) {
	if req.EndAvailableAt.Before(req.StartAvailableAt) {
		return nil, apperror.Invalid("end_available_at must not be before start_available_at")
	}
	if _, err := s.store.GetTemplate(ctx, req.TemplateID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("exam template not found")
		}
		return nil, asAppError(err, "get template")
	}

	sess := &model.ScheduledExamSession{
		StudentID:        req.StudentID,
		TemplateID:       req.TemplateID,
		StartAvailableAt: req.StartAvailableAt.UTC(),
		EndAvailableAt:   req.EndAvailableAt.UTC(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, asAppError(err, "create session")
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("student_id", sess.StudentID).
		Time("start_available_at", sess.StartAvailableAt).
		Time("end_available_at", sess.EndAvailableAt).
		Msg("Exam scheduled")
	return sess, nil
}

// ListForStudent returns the student's sessions, soonest window first.
func (s *SessionService) ListForStudent(ctx context.Context, studentID string) ([]model.SessionSummary, error) {
	sessions, err := s.store.ListSessionsByStudent(ctx, studentID)
	if err != nil {
		return nil, asAppError(err, "list sessions")
	}
	return sessions, nil
}

// Start moves a SCHEDULED session to IN_PROGRESS and returns the exam
// snapshot. Preconditions are checked in order: existence, ownership,
// status, availability window.
func (s *SessionService) Start(ctx context.Context, sessionID uuid.UUID, studentID string) (*model.SessionSnapshot, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("exam not found")
		}
		return nil, asAppError(err, "get session")
	}
	if !sess.OwnedBy(studentID) {
		return nil, apperror.Forbidden(apperror.ReasonNotOwner, "this exam is not assigned to you")
	}
	if sess.Status != model.SessionStatusScheduled {
		return nil, apperror.Conflict("this exam has already been started or completed").With("status", sess.Status)
	}

	now := s.clock.Now()
	if now.Before(sess.StartAvailableAt) {
		return nil, apperror.Forbidden(apperror.ReasonWindowNotOpen,
			"this exam is not available until %s", sess.StartAvailableAt.Format(time.RFC3339)).
			With("start_available_at", sess.StartAvailableAt)
	}
	if now.After(sess.EndAvailableAt) {
		return nil, apperror.Forbidden(apperror.ReasonWindowClosed,
			"the availability window for this exam closed at %s", sess.EndAvailableAt.Format(time.RFC3339)).
			With("end_available_at", sess.EndAvailableAt)
	}

	var tpl *model.ExamTemplate
	err = s.store.WithTx(ctx, func(q repository.Queries) error {
		ok, err := q.TransitionStatus(ctx, sessionID, model.SessionStatusScheduled, model.SessionStatusInProgress, now)
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		if !ok {
			return apperror.Conflict("this exam has already been started or completed")
		}
		tpl, err = q.GetTemplate(ctx, sess.TemplateID)
		if err != nil {
			return fmt.Errorf("get template: %w", err)
		}
		if tpl.SectionDurations == nil {
			return apperror.Configuration(apperror.ReasonMissingSectionDurations,
				"exam misconfiguration: section durations not set for this template").
				With("template_id", tpl.ID)
		}
		return nil
	})
	if err != nil {
		if apperror.IsKind(err, apperror.KindConfiguration) {
			s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Refusing to start misconfigured exam")
		}
		return nil, asAppError(err, "start exam")
	}

	sess.Status = model.SessionStatusInProgress
	sess.StartedAt = &now
	sess.UpdatedAt = now
	metrics.RecordTransition(string(model.SessionStatusScheduled), string(model.SessionStatusInProgress), sourceStart)
	s.emit(ctx, EventSessionStarted, sess, sess.Status, now)
	s.log.Info().Str("session_id", sess.ID.String()).Str("student_id", studentID).Msg("Exam started")

	return buildSnapshot(sess, tpl, now), nil
}

// Resume returns the snapshot of an IN_PROGRESS session owned by the
// requester. Display numbers are recomputed on every call.
func (s *SessionService) Resume(ctx context.Context, sessionID uuid.UUID, studentID string) (*model.SessionSnapshot, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, asAppError(err, "get session")
	}
	if sess == nil || !sess.OwnedBy(studentID) || sess.Status != model.SessionStatusInProgress {
		return nil, apperror.NotFound("no in-progress exam found")
	}

	tpl, err := s.store.GetTemplate(ctx, sess.TemplateID)
	if err != nil {
		return nil, asAppError(err, "get template")
	}
	return buildSnapshot(sess, tpl, s.clock.Now()), nil
}

func buildSnapshot(sess *model.ScheduledExamSession, tpl *model.ExamTemplate, now time.Time) *model.SessionSnapshot {
	snap := &model.SessionSnapshot{
		SessionID:        sess.ID,
		Title:            tpl.Title,
		AudioFiles:       tpl.AudioFiles,
		SectionDurations: tpl.SectionDurations,
		Questions:        AssignDisplayNumbers(tpl.Questions),
	}
	if sess.StartedAt != nil {
		snap.StartedAt = *sess.StartedAt
	}
	if deadline, err := model.ComputeDeadline(sess, tpl.SectionDurations); err == nil {
		remaining := int64(max(deadline.Sub(now), 0) / time.Second)
		snap.Deadline = &deadline
		snap.RemainingSeconds = &remaining
	}
	return snap
}

// loadForAnswering runs the shared submit/save preconditions and returns the
// session, its template and its deadline.
func (s *SessionService) loadForAnswering(ctx context.Context, sessionID uuid.UUID, studentID string) (*model.ScheduledExamSession, *model.ExamTemplate, time.Time, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, time.Time{}, apperror.NotFound("exam not found")
		}
		return nil, nil, time.Time{}, asAppError(err, "get session")
	}
	if !sess.OwnedBy(studentID) {
		return nil, nil, time.Time{}, apperror.Forbidden(apperror.ReasonNotOwner, "you cannot submit answers for this exam")
	}
	if sess.Status != model.SessionStatusInProgress {
		return nil, nil, time.Time{}, apperror.Conflict("this exam is not in progress").With("status", sess.Status)
	}

	tpl, err := s.store.GetTemplate(ctx, sess.TemplateID)
	if err != nil {
		return nil, nil, time.Time{}, asAppError(err, "get template")
	}
	if tpl.SectionDurations == nil {
		s.log.Error().Str("session_id", sessionID.String()).Str("template_id", sess.TemplateID.String()).
			Msg("Template has no section durations")
		return nil, nil, time.Time{}, apperror.Configuration(apperror.ReasonMissingSectionDurations,
			"exam misconfiguration: section durations not set for this template").
			With("template_id", sess.TemplateID)
	}

	deadline, err := model.ComputeDeadline(sess, tpl.SectionDurations)
	if err != nil {
		return nil, nil, time.Time{}, apperror.Internal(err, "compute deadline")
	}
	return sess, tpl, deadline, nil
}

// checkQuestions rejects answers to questions that are not on the session's
// template.
func checkQuestions(tpl *model.ExamTemplate, answers []model.SubmittedAnswer) error {
	onPaper := make(map[uuid.UUID]struct{}, len(tpl.Questions))
	for _, q := range tpl.Questions {
		onPaper[q.QuestionID] = struct{}{}
	}
	for _, a := range answers {
		if _, ok := onPaper[a.QuestionID]; !ok {
			return apperror.Invalid("question %s is not part of this exam", a.QuestionID).
				With("question_id", a.QuestionID)
		}
	}
	return nil
}

// closeLate force-completes a session whose deadline passed and returns the
// TIME_EXPIRED error the caller must surface.
func (s *SessionService) closeLate(ctx context.Context, sess *model.ScheduledExamSession, deadline, now time.Time) error {
	ok, err := s.store.TransitionStatus(ctx, sess.ID, model.SessionStatusInProgress, model.SessionStatusCompleted, now)
	if err != nil {
		return apperror.Internal(err, "close expired session")
	}
	if ok {
		metrics.RecordTransition(string(model.SessionStatusInProgress), string(model.SessionStatusCompleted), sourceLate)
		s.emit(ctx, EventSessionExpired, sess, model.SessionStatusCompleted, now)
		s.log.Warn().
			Str("session_id", sess.ID.String()).
			Str("student_id", sess.StudentID).
			Time("deadline", deadline).
			Msg("Late submission closed the session")
	}
	return apperror.Forbidden(apperror.ReasonTimeExpired,
		"submission failed: the time limit for this exam has expired").
		With("deadline", deadline)
}

// Submit replaces the session's answers and completes it in one transaction.
// A submit after the deadline still completes the session but fails with
// TIME_EXPIRED and stores nothing. Answers to questions outside the template
// are rejected.
func (s *SessionService) Submit(ctx context.Context, sessionID uuid.UUID, studentID string, answers []model.SubmittedAnswer) (*model.SubmitAck, error) {
	sess, tpl, deadline, err := s.loadForAnswering(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if model.Expired(deadline, now) {
		return nil, s.closeLate(ctx, sess, deadline, now)
	}
	if err := checkQuestions(tpl, answers); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(q repository.Queries) error {
		ok, err := q.TransitionStatus(ctx, sessionID, model.SessionStatusInProgress, model.SessionStatusCompleted, now)
		if err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		if !ok {
			return apperror.Conflict("this exam is not in progress")
		}
		if err := q.ReplaceAnswers(ctx, sessionID, answers); err != nil {
			return fmt.Errorf("replace answers: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "submit answers")
	}

	metrics.RecordTransition(string(model.SessionStatusInProgress), string(model.SessionStatusCompleted), sourceSubmit)
	s.emit(ctx, EventSessionSubmitted, sess, model.SessionStatusCompleted, now)
	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("student_id", studentID).
		Int("answers", len(answers)).
		Msg("Exam submitted")
	return &model.SubmitAck{Status: model.SessionStatusCompleted}, nil
}

// SaveProgress replaces the session's answers without completing it. The
// deadline rules match Submit.
func (s *SessionService) SaveProgress(ctx context.Context, sessionID uuid.UUID, studentID string, answers []model.SubmittedAnswer) (*model.SubmitAck, error) {
	sess, tpl, deadline, err := s.loadForAnswering(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if model.Expired(deadline, now) {
		return nil, s.closeLate(ctx, sess, deadline, now)
	}
	if err := checkQuestions(tpl, answers); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(q repository.Queries) error {
		cur, err := q.LockSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if cur.Status != model.SessionStatusInProgress {
			return apperror.Conflict("this exam is not in progress").With("status", cur.Status)
		}
		if err := q.ReplaceAnswers(ctx, sessionID, answers); err != nil {
			return fmt.Errorf("replace answers: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "save answers")
	}

	s.log.Debug().Str("session_id", sessionID.String()).Int("answers", len(answers)).Msg("Draft saved")
	return &model.SubmitAck{Status: model.SessionStatusInProgress}, nil
}

// GetResults returns the session, its answers and scores once results are
// released to the student.
func (s *SessionService) GetResults(ctx context.Context, sessionID uuid.UUID, studentID string) (*model.ResultsPayload, error) {
	summary, err := s.store.GetSessionSummary(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("results not found")
		}
		return nil, asAppError(err, "get session")
	}
	if !summary.OwnedBy(studentID) {
		return nil, apperror.Forbidden(apperror.ReasonNotOwner, "you are not authorized to view these results")
	}
	if summary.Status != model.SessionStatusResultsReleased {
		return nil, apperror.Forbidden(apperror.ReasonResultsNotReleased, "these results have not been released yet")
	}

	answers, err := s.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, asAppError(err, "list answers")
	}
	return &model.ResultsPayload{
		SubmissionDetail: model.SubmissionDetail{SessionSummary: *summary, Answers: answers},
		Scores:           scoring.Calculate(answers),
	}, nil
}

// SessionState is the live view pushed to a student's stream.
type SessionState struct {
	SessionID        uuid.UUID           `json:"session_id"`
	Status           model.SessionStatus `json:"status"`
	Deadline         *time.Time          `json:"deadline,omitempty"`
	RemainingSeconds *int64              `json:"remaining_seconds,omitempty"`
}

// State reports the current status and remaining time of a session owned by
// the requester.
func (s *SessionService) State(ctx context.Context, sessionID uuid.UUID, studentID string) (*SessionState, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("exam not found")
		}
		return nil, asAppError(err, "get session")
	}
	if !sess.OwnedBy(studentID) {
		return nil, apperror.Forbidden(apperror.ReasonNotOwner, "this exam is not assigned to you")
	}

	st := &SessionState{SessionID: sess.ID, Status: sess.Status}
	if sess.Status != model.SessionStatusInProgress {
		return st, nil
	}
	durations, err := s.store.GetSectionDurations(ctx, sess.TemplateID)
	if err != nil {
		return nil, asAppError(err, "get section durations")
	}
	if deadline, err := model.ComputeDeadline(sess, durations); err == nil {
		remaining := int64(max(deadline.Sub(s.clock.Now()), 0) / time.Second)
		st.Deadline = &deadline
		st.RemainingSeconds = &remaining
	}
	return st, nil
}

// Subscribe streams committed events of one session.
func (s *SessionService) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan SessionEvent, func(), error) {
	if s.events == nil {
		return nil, nil, errors.New("event bus not configured")
	}
	return s.events.Subscribe(ctx, sessionID)
}

// ExpireOverdue completes every IN_PROGRESS session whose deadline has
// passed. Rows that cannot be evaluated are skipped and per-row failures are
// counted, never returned; only failing to list sessions is an error.
func (s *SessionService) ExpireOverdue(ctx context.Context) (model.ExpiryReport, error) {
	var report model.ExpiryReport

	sessions, err := s.store.ListInProgress(ctx)
	if err != nil {
		return report, fmt.Errorf("list in-progress sessions: %w", err)
	}

	now := s.clock.Now()
	for i := range sessions {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sess := &sessions[i].Session
		report.Scanned++

		if err := sessions[i].DurationsErr; err != nil {
			report.Skipped++
			s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Skipping session with unreadable section durations")
			continue
		}
		deadline, err := model.ComputeDeadline(sess, sessions[i].Durations)
		if err != nil {
			report.Skipped++
			s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Skipping session the sweeper cannot evaluate")
			continue
		}
		if !model.Expired(deadline, now) {
			continue
		}

		ok, err := s.store.TransitionStatus(ctx, sess.ID, model.SessionStatusInProgress, model.SessionStatusCompleted, now)
		if err != nil {
			report.Failed++
			s.log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to expire session")
			continue
		}
		if !ok {
			report.Raced++
			continue
		}

		report.Expired++
		metrics.RecordTransition(string(model.SessionStatusInProgress), string(model.SessionStatusCompleted), sourceSweep)
		s.emit(ctx, EventSessionExpired, sess, model.SessionStatusCompleted, now)
		s.log.Info().
			Str("session_id", sess.ID.String()).
			Str("student_id", sess.StudentID).
			Time("deadline", deadline).
			Msg("Exam automatically completed")
	}
	return report, nil
}
