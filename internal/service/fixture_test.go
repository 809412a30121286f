package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/clock"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/repository"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

const examLength = 150 * time.Minute

type fixture struct {
	store    *repository.MemoryStore
	clock    *clock.Manual
	bus      *LocalEventBus
	sessions *SessionService
	marking  *MarkingService
	tpl      model.ExamTemplate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	clk := clock.NewManual(t0)
	bus := NewLocalEventBus()
	f := &fixture{
		store:    store,
		clock:    clk,
		bus:      bus,
		sessions: NewSessionService(store, clk, bus, zerolog.Nop()),
		marking:  NewMarkingService(store, clk, bus, zerolog.Nop()),
	}
	f.tpl = store.PutTemplate(model.ExamTemplate{
		Title:            "Academic Mock 1",
		AudioFiles:       json.RawMessage(`{"part1":"https://cdn.example.com/p1.mp3"}`),
		SectionDurations: &model.SectionDurations{Listening: 30, Reading: 60, Writing: 60},
		Questions: []model.TemplateQuestion{
			{Order: 1, Section: model.SectionListening, QuestionType: model.QuestionTypeTrueFalseNotGiven, AnswerKey: json.RawMessage(`"TRUE"`)},
			{Order: 2, Section: model.SectionListening, QuestionType: model.QuestionTypeMultipleChoiceSingleAnswer, AnswerKey: json.RawMessage(`"B"`)},
			{Order: 3, Section: model.SectionReading, QuestionType: model.QuestionTypeGapFilling, AnswerKey: json.RawMessage(`["river"]`)},
			{Order: 4, Section: model.SectionWriting, QuestionType: model.QuestionTypeWritingTask},
		},
	})
	return f
}

// question returns the template question at template order n (1-based).
func (f *fixture) question(n int) model.TemplateQuestion {
	for _, q := range f.tpl.Questions {
		if q.Order == n {
			return q
		}
	}
	panic("no such question")
}

func (f *fixture) scheduleFor(t *testing.T, tpl model.ExamTemplate, student string) *model.ScheduledExamSession {
	t.Helper()
	sess, err := f.sessions.Schedule(context.Background(), model.ScheduleExamRequest{
		StudentID:        student,
		TemplateID:       tpl.ID,
		StartAvailableAt: t0,
		EndAvailableAt:   t0.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	return sess
}

func (f *fixture) schedule(t *testing.T, student string) *model.ScheduledExamSession {
	t.Helper()
	return f.scheduleFor(t, f.tpl, student)
}

// started schedules a session and starts it at t0.
func (f *fixture) started(t *testing.T, student string) *model.ScheduledExamSession {
	t.Helper()
	sess := f.schedule(t, student)
	f.clock.Set(t0)
	_, err := f.sessions.Start(context.Background(), sess.ID, student)
	require.NoError(t, err)
	return sess
}

func (f *fixture) status(t *testing.T, sess *model.ScheduledExamSession) model.SessionStatus {
	t.Helper()
	got, err := f.store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	return got.Status
}

func answer(q model.TemplateQuestion, raw string) model.SubmittedAnswer {
	return model.SubmittedAnswer{QuestionID: q.QuestionID, Answer: json.RawMessage(raw)}
}
