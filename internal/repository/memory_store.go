package repository

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/mockexam-backend/internal/model"
)

type memoryState struct {
	sessions  map[uuid.UUID]model.ScheduledExamSession
	templates map[uuid.UUID]model.ExamTemplate
	answers   map[uuid.UUID][]model.StudentAnswer
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		sessions:  make(map[uuid.UUID]model.ScheduledExamSession, len(st.sessions)),
		templates: make(map[uuid.UUID]model.ExamTemplate, len(st.templates)),
		answers:   make(map[uuid.UUID][]model.StudentAnswer, len(st.answers)),
	}
	for k, v := range st.sessions {
		c.sessions[k] = v
	}
	for k, v := range st.templates {
		c.templates[k] = v
	}
	for k, v := range st.answers {
		c.answers[k] = slices.Clone(v)
	}
	return c
}

// MemoryStore is an in-process Store. A single mutex serialises every call,
// and WithTx holds it for the whole callback, restoring the previous state
// when the callback fails.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
	*memoryQueries
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{state: &memoryState{
		sessions:  map[uuid.UUID]model.ScheduledExamSession{},
		templates: map[uuid.UUID]model.ExamTemplate{},
		answers:   map[uuid.UUID][]model.StudentAnswer{},
	}}
	s.memoryQueries = &memoryQueries{store: s}
	return s
}

// PutTemplate stores a template, assigning IDs where missing.
func (s *MemoryStore) PutTemplate(t model.ExamTemplate) model.ExamTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.Questions = slices.Clone(t.Questions)
	for i := range t.Questions {
		if t.Questions[i].QuestionID == uuid.Nil {
			t.Questions[i].QuestionID = uuid.New()
		}
	}
	s.state.templates[t.ID] = t
	return t
}

// WithTx implements Store.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.state.clone()
	if err := fn(&memoryQueries{store: s, inTx: true}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

type memoryQueries struct {
	store *MemoryStore
	inTx  bool
}

func (q *memoryQueries) acquire() (*memoryState, func()) {
	if q.inTx {
		return q.store.state, func() {}
	}
	q.store.mu.Lock()
	return q.store.state, q.store.mu.Unlock
}

func (q *memoryQueries) GetSession(_ context.Context, id uuid.UUID) (*model.ScheduledExamSession, error) {
	st, release := q.acquire()
	defer release()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// LockSession is GetSession; the store mutex already serialises transactions.
func (q *memoryQueries) LockSession(ctx context.Context, id uuid.UUID) (*model.ScheduledExamSession, error) {
	return q.GetSession(ctx, id)
}

func (q *memoryQueries) GetSessionSummary(_ context.Context, id uuid.UUID) (*model.SessionSummary, error) {
	st, release := q.acquire()
	defer release()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &model.SessionSummary{ScheduledExamSession: s, TemplateTitle: st.templates[s.TemplateID].Title}, nil
}

func (q *memoryQueries) CreateSession(_ context.Context, s *model.ScheduledExamSession) error {
	st, release := q.acquire()
	defer release()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.Status = model.SessionStatusScheduled
	s.StartedAt, s.CompletedAt = nil, nil
	s.CreatedAt, s.UpdatedAt = now, now
	st.sessions[s.ID] = *s
	return nil
}

func (q *memoryQueries) ListSessionsByStudent(_ context.Context, studentID string) ([]model.SessionSummary, error) {
	st, release := q.acquire()
	defer release()
	out := []model.SessionSummary{}
	for _, s := range st.sessions {
		if s.StudentID == studentID {
			out = append(out, model.SessionSummary{ScheduledExamSession: s, TemplateTitle: st.templates[s.TemplateID].Title})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.StartAvailableAt.Equal(b.StartAvailableAt) {
			return a.StartAvailableAt.Before(b.StartAvailableAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return out, nil
}

func (q *memoryQueries) ListSubmissions(_ context.Context, f model.SubmissionFilter) ([]model.SessionSummary, int, error) {
	st, release := q.acquire()
	defer release()
	search := strings.ToLower(f.Search)
	matched := []model.SessionSummary{}
	for _, s := range st.sessions {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		title := st.templates[s.TemplateID].Title
		if search != "" &&
			!strings.Contains(strings.ToLower(s.StudentID), search) &&
			!strings.Contains(strings.ToLower(title), search) {
			continue
		}
		matched = append(matched, model.SessionSummary{ScheduledExamSession: s, TemplateTitle: title})
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	total := len(matched)
	start := min((f.Page-1)*f.Limit, total)
	end := min(start+f.Limit, total)
	return matched[start:end], total, nil
}

func (q *memoryQueries) CountByStatus(_ context.Context, status model.SessionStatus) (int, error) {
	st, release := q.acquire()
	defer release()
	n := 0
	for _, s := range st.sessions {
		if s.Status == status {
			n++
		}
	}
	return n, nil
}

func (q *memoryQueries) TransitionStatus(_ context.Context, id uuid.UUID, from, to model.SessionStatus, at time.Time) (bool, error) {
	startedAt, completedAt, err := transitionStamps(from, to, at)
	if err != nil {
		return false, err
	}
	st, release := q.acquire()
	defer release()
	s, ok := st.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	if startedAt != nil {
		s.StartedAt = startedAt
	}
	if completedAt != nil {
		s.CompletedAt = completedAt
	}
	if err := checkStamps(s); err != nil {
		return false, err
	}
	s.UpdatedAt = at
	st.sessions[id] = s
	return true, nil
}

func (q *memoryQueries) ListInProgress(_ context.Context) ([]model.InProgressSession, error) {
	st, release := q.acquire()
	defer release()
	var out []model.InProgressSession
	for _, s := range st.sessions {
		if s.Status != model.SessionStatusInProgress {
			continue
		}
		item := model.InProgressSession{Session: s}
		if d := st.templates[s.TemplateID].SectionDurations; d != nil {
			dc := *d
			item.Durations = &dc
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Session.StartedAt, out[j].Session.StartedAt
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		}
		return a.Before(*b)
	})
	return out, nil
}

func (q *memoryQueries) GetTemplate(_ context.Context, id uuid.UUID) (*model.ExamTemplate, error) {
	st, release := q.acquire()
	defer release()
	t, ok := st.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	t.Questions = slices.Clone(t.Questions)
	if t.Questions == nil {
		t.Questions = []model.TemplateQuestion{}
	}
	sort.SliceStable(t.Questions, func(i, j int) bool { return t.Questions[i].Order < t.Questions[j].Order })
	if t.SectionDurations != nil {
		d := *t.SectionDurations
		t.SectionDurations = &d
	}
	return &t, nil
}

func (q *memoryQueries) GetSectionDurations(_ context.Context, templateID uuid.UUID) (*model.SectionDurations, error) {
	st, release := q.acquire()
	defer release()
	t, ok := st.templates[templateID]
	if !ok {
		return nil, ErrNotFound
	}
	if t.SectionDurations == nil {
		return nil, nil
	}
	d := *t.SectionDurations
	return &d, nil
}

func (q *memoryQueries) ReplaceAnswers(_ context.Context, sessionID uuid.UUID, answers []model.SubmittedAnswer) error {
	st, release := q.acquire()
	defer release()
	answers = dedupeAnswers(answers)
	rows := make([]model.StudentAnswer, 0, len(answers))
	for _, a := range answers {
		rows = append(rows, model.StudentAnswer{
			ID:         uuid.New(),
			SessionID:  sessionID,
			QuestionID: a.QuestionID,
			Answer:     slices.Clone(a.Answer),
		})
	}
	st.answers[sessionID] = rows
	return nil
}

func (q *memoryQueries) ListAnswers(_ context.Context, sessionID uuid.UUID) ([]model.MarkableAnswer, error) {
	st, release := q.acquire()
	defer release()

	questions := map[uuid.UUID]model.TemplateQuestion{}
	if s, ok := st.sessions[sessionID]; ok {
		for _, tq := range st.templates[s.TemplateID].Questions {
			questions[tq.QuestionID] = tq
		}
	}

	out := []model.MarkableAnswer{}
	for _, a := range st.answers[sessionID] {
		tq, ok := questions[a.QuestionID]
		if !ok {
			continue
		}
		out = append(out, model.MarkableAnswer{
			StudentAnswer: a,
			Section:       tq.Section,
			QuestionType:  tq.QuestionType,
			Content:       tq.Content,
			AnswerKey:     tq.AnswerKey,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return questions[out[i].QuestionID].Order < questions[out[j].QuestionID].Order
	})
	return out, nil
}

func (q *memoryQueries) ApplyMarks(_ context.Context, marks []model.AnswerMark) error {
	st, release := q.acquire()
	defer release()
	byID := make(map[uuid.UUID]model.AnswerMark, len(marks))
	for _, m := range marks {
		byID[m.AnswerID] = m
	}
	for sessionID, rows := range st.answers {
		for i := range rows {
			m, ok := byID[rows[i].ID]
			if !ok {
				continue
			}
			rows[i].IsCorrect, rows[i].Score, rows[i].Feedback = m.IsCorrect, m.Score, m.Feedback
		}
		st.answers[sessionID] = rows
	}
	return nil
}
