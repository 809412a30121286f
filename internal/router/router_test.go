package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/mockexam-backend/internal/clock"
	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/handler"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/repository"
	"github.com/stemsi/mockexam-backend/internal/seed"
	"github.com/stemsi/mockexam-backend/internal/service"
	"github.com/stemsi/mockexam-backend/internal/validator"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
	Pagination *struct {
		TotalItems int `json:"total_items"`
	} `json:"pagination"`
}

type testServer struct {
	t        *testing.T
	engine   http.Handler
	auth     *service.AuthService
	store    *repository.MemoryStore
	clock    *clock.Manual
	sessions *service.SessionService
	tpl      model.ExamTemplate
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	validator.Setup()

	cfg := &config.Config{GinMode: "test", JWTSecret: "router-test-secret"}
	store := repository.NewMemoryStore()
	clk := clock.NewManual(t0)
	bus := service.NewLocalEventBus()
	log := zerolog.Nop()

	auth := service.NewAuthService(cfg)
	sessions := service.NewSessionService(store, clk, bus, log)
	marking := service.NewMarkingService(store, clk, bus, log)

	engine := SetupRouter(auth, &Handlers{
		StudentExam: handler.NewStudentExamHandler(sessions, log),
		Submission:  handler.NewSubmissionHandler(marking, log),
		Schedule:    handler.NewScheduleHandler(sessions, log),
		WS:          handler.NewWSHandler(sessions, log, nil, 20*time.Millisecond),
		System:      handler.NewSystemHandler(nil, log),
	}, cfg, nil, log)

	return &testServer{
		t:        t,
		engine:   engine,
		auth:     auth,
		store:    store,
		clock:    clk,
		sessions: sessions,
		tpl:      store.PutTemplate(seed.DemoTemplate()),
	}
}

func (s *testServer) token(subject string, role service.Role) string {
	s.t.Helper()
	tok, err := s.auth.IssueToken(subject, role, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (s *testServer) schedule(student string) uuid.UUID {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/api/v1/admin/schedules", s.token("admin-1", service.RoleAdmin), map[string]any{
		"student_id":         student,
		"template_id":        s.tpl.ID,
		"start_available_at": t0,
		"end_available_at":   t0.Add(2 * time.Hour),
	})
	require.Equal(s.t, http.StatusCreated, code)

	var out struct {
		Session model.ScheduledExamSession `json:"session"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	return out.Session.ID
}

func (s *testServer) questionID(order int) uuid.UUID {
	for _, q := range s.tpl.Questions {
		if q.Order == order {
			return q.QuestionID
		}
	}
	s.t.Fatalf("no question %d", order)
	return uuid.Nil
}

func (s *testServer) answers(pairs ...any) map[string]any {
	list := make([]map[string]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		list = append(list, map[string]any{
			"question_id": s.questionID(pairs[i].(int)),
			"answer":      json.RawMessage(pairs[i+1].(string)),
		})
	}
	return map[string]any{"answers": list}
}

func TestFullAttemptLifecycle(t *testing.T) {
	s := newTestServer(t)
	student := s.token("stu-1", service.RoleStudent)
	admin := s.token("admin-1", service.RoleAdmin)
	id := s.schedule("stu-1")
	base := "/api/v1/student/exams/" + id.String()

	code, env := s.do(http.MethodGet, "/api/v1/student/dashboard", student, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), id.String())

	code, env = s.do(http.MethodPost, base+"/start", s.token("stu-2", service.RoleStudent), nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "NOT_OWNER", env.Error.Code)

	s.clock.Set(t0.Add(5 * time.Minute))
	code, env = s.do(http.MethodPost, base+"/start", student, nil)
	require.Equal(t, http.StatusOK, code)
	var snap model.SessionSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, id, snap.SessionID)
	require.NotNil(t, snap.RemainingSeconds)
	assert.Equal(t, int64(150*60), *snap.RemainingSeconds)
	assert.NotContains(t, string(env.Data), "answer_key", "answer keys never reach the student paper")
	require.Len(t, snap.Questions, len(s.tpl.Questions))
	assert.Nil(t, snap.Questions[0].DisplayNumberStart)
	assert.Equal(t, 1, *snap.Questions[1].DisplayNumberStart)

	code, _ = s.do(http.MethodPost, base+"/start", student, nil)
	assert.Equal(t, http.StatusConflict, code)

	s.clock.Advance(10 * time.Minute)
	code, env = s.do(http.MethodGet, base, student, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, int64(140*60), *snap.RemainingSeconds)

	code, env = s.do(http.MethodPut, base+"/answers", student, s.answers(2, `"FALSE"`))
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"IN_PROGRESS"}`, string(env.Data))

	code, env = s.do(http.MethodPost, base+"/submit", student, s.answers(
		2, `"TRUE"`,
		3, `"B"`,
		4, `["ten"]`,
		8, `["heat"]`,
		11, `"The chart shows..."`,
		12, `"Education is..."`,
	))
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"COMPLETED"}`, string(env.Data))

	code, _ = s.do(http.MethodPost, base+"/submit", student, s.answers())
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.do(http.MethodGet, base+"/results", student, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "RESULTS_NOT_RELEASED", env.Error.Code)

	code, env = s.do(http.MethodGet, "/api/v1/admin/submissions?status=completed", admin, nil)
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Submissions   []model.SessionSummary `json:"submissions"`
		AwaitingCount int                    `json:"awaiting_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.AwaitingCount)
	require.Len(t, list.Submissions, 1)
	assert.Equal(t, 1, env.Pagination.TotalItems)

	adminBase := "/api/v1/admin/submissions/" + id.String()
	code, _ = s.do(http.MethodPost, adminBase+"/release", admin, nil)
	assert.Equal(t, http.StatusConflict, code, "cannot release before marking")

	code, _ = s.do(http.MethodPost, adminBase+"/mark", admin, map[string]any{
		"manual_scores": []map[string]any{
			{"question_id": s.questionID(11), "score": 6.5},
			{"question_id": s.questionID(12), "score": 7.0, "feedback": "Clear position."},
		},
	})
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodPost, adminBase+"/mark", admin, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.do(http.MethodGet, adminBase+"/scores", admin, nil)
	require.Equal(t, http.StatusOK, code)
	var scores model.Scores
	require.NoError(t, json.Unmarshal(env.Data, &scores))
	assert.Equal(t, 3, scores.RawScores.Listening)
	assert.Equal(t, 0, scores.RawScores.Reading)
	assert.Equal(t, 3, scores.Totals.Listening)
	assert.Equal(t, 1, scores.Totals.Reading)
	require.NotNil(t, scores.BandScores.Writing)

	code, _ = s.do(http.MethodPost, adminBase+"/release", admin, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodGet, base+"/results", student, nil)
	require.Equal(t, http.StatusOK, code)
	var results model.ResultsPayload
	require.NoError(t, json.Unmarshal(env.Data, &results))
	assert.Equal(t, model.SessionStatusResultsReleased, results.Status)
	assert.Len(t, results.Answers, 6)
	assert.Equal(t, scores, results.Scores)
}

func TestLateSubmitClosesAttempt(t *testing.T) {
	s := newTestServer(t)
	student := s.token("stu-1", service.RoleStudent)
	id := s.schedule("stu-1")
	base := "/api/v1/student/exams/" + id.String()

	code, _ := s.do(http.MethodPost, base+"/start", student, nil)
	require.Equal(t, http.StatusOK, code)

	s.clock.Advance(150*time.Minute + time.Second)
	code, env := s.do(http.MethodPost, base+"/submit", student, s.answers(2, `"TRUE"`))
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "TIME_EXPIRED", env.Error.Code)

	sess, err := s.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, sess.Status)
}

func TestWindowAndInputErrors(t *testing.T) {
	s := newTestServer(t)
	student := s.token("stu-1", service.RoleStudent)
	id := s.schedule("stu-1")

	s.clock.Set(t0.Add(-time.Second))
	code, env := s.do(http.MethodPost, "/api/v1/student/exams/"+id.String()+"/start", student, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "WINDOW_NOT_OPEN", env.Error.Code)

	code, env = s.do(http.MethodPost, "/api/v1/student/exams/not-a-uuid/start", student, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ID", env.Error.Code)

	code, _ = s.do(http.MethodPost, "/api/v1/student/exams/"+uuid.NewString()+"/start", student, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(http.MethodGet, "/api/v1/admin/submissions?status=BOGUS", s.token("admin-1", service.RoleAdmin), nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	code, env = s.do(http.MethodPost, "/api/v1/admin/schedules", s.token("admin-1", service.RoleAdmin), map[string]any{
		"student_id":         "stu-9",
		"template_id":        uuid.New(),
		"start_available_at": t0,
		"end_available_at":   t0.Add(time.Hour),
	})
	assert.Equal(t, http.StatusNotFound, code, "unknown template")
}

func TestRoleSeparation(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(http.MethodGet, "/api/v1/admin/submissions", s.token("stu-1", service.RoleStudent), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodGet, "/api/v1/student/dashboard", s.token("admin-1", service.RoleAdmin), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodGet, "/api/v1/student/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func dialStream(t *testing.T, srv *httptest.Server, id uuid.UUID, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/student/exams/" + id.String() + "/stream?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		_ = resp.Body.Close()
	})
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips periodic state pushes until an event of the wanted kind.
func readUntil(t *testing.T, conn *websocket.Conn, event string) map[string]any {
	t.Helper()
	for i := 0; i < 200; i++ {
		msg := readEvent(t, conn)
		if msg["event"] == event {
			return msg
		}
	}
	t.Fatalf("no %q event", event)
	return nil
}

func TestStreamSubmitOverWebSocket(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	id := s.schedule("stu-1")
	_, err := s.sessions.Start(context.Background(), id, "stu-1")
	require.NoError(t, err)

	conn := dialStream(t, srv, id, s.token("stu-1", service.RoleStudent))

	first := readEvent(t, conn)
	assert.Equal(t, "state", first["event"])
	assert.Equal(t, "IN_PROGRESS", first["status"])
	assert.EqualValues(t, 150*60, first["remaining_seconds"])

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "ping"}))
	readUntil(t, conn, "pong")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":  "save",
		"answers": s.answers(2, `"TRUE"`)["answers"],
	}))
	saved := readUntil(t, conn, "saved")
	assert.Equal(t, "IN_PROGRESS", saved["status"])

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":  "submit",
		"answers": s.answers(2, `"TRUE"`, 3, `"A"`)["answers"],
	}))
	submitted := readUntil(t, conn, "submitted")
	assert.Equal(t, "COMPLETED", submitted["status"])

	sess, err := s.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, sess.Status)
}

func TestStreamReportsSweeperExpiry(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	id := s.schedule("stu-1")
	_, err := s.sessions.Start(context.Background(), id, "stu-1")
	require.NoError(t, err)

	conn := dialStream(t, srv, id, s.token("stu-1", service.RoleStudent))
	readUntil(t, conn, "state")

	s.clock.Advance(151 * time.Minute)
	report, err := s.sessions.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)

	var closed bool
	for i := 0; i < 200 && !closed; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			closed = true
			break
		}
		if msg["event"] == "status" {
			assert.Equal(t, "COMPLETED", msg["status"])
		}
	}
	assert.True(t, closed, "server closes the stream once the attempt is over")
}

func TestStreamRejectsForeignSession(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	id := s.schedule("stu-1")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/student/exams/" + id.String() + "/stream?token=" + s.token("stu-2", service.RoleStudent)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
