package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/middleware"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/service"
	ws "github.com/stemsi/mockexam-backend/internal/websocket"
)

const defaultStreamTick = 15 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the live state of one exam attempt to its student:
// remaining time on a fixed tick, committed transitions as they happen, and
// draft save and submit as client actions.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
	tick           time.Duration
}

// NewWSHandler creates a new WSHandler. tick <= 0 uses the default.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string, tick time.Duration) *WSHandler {
	if tick <= 0 {
		tick = defaultStreamTick
	}
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
		tick:           tick,
	}
}

// ExamSessionStream godoc
// WS /ws/v1/student/exams/:id/stream?token=...
func (h *WSHandler) ExamSessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	studentID := claims.SubjectID()

	// Ownership and existence are checked before the upgrade so the client
	// gets a regular HTTP error.
	state, err := h.sessionService.State(c.Request.Context(), sessionID, studentID)
	if err != nil {
		response.FailWithError(c, err, h.log)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)

	wsLog := h.log.With().
		Str("student_id", studentID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if err := conn.WriteTyped(stateResponse(state)); err != nil || state.Status != model.SessionStatusInProgress {
		_ = conn.Close("session not in progress")
		return
	}

	events, unsubscribe, err := h.sessionService.Subscribe(ctx, sessionID)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Event subscription unavailable; falling back to ticks only")
	} else {
		defer unsubscribe()
	}

	// busy is held while a client action runs, so a transition event raised
	// by that action cannot close the stream before its ack is written.
	var busy sync.Mutex
	closeStream := func(reason string) {
		busy.Lock()
		defer busy.Unlock()
		_ = conn.Close(reason)
	}
	go h.readLoop(ctx, cancel, conn, &busy, wsLog, sessionID, studentID)

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			closeStream("bye")
			wsLog.Debug().Msg("Stream closed")
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			_ = conn.WriteTyped(ws.StatusResponse{
				Event:  ws.EventStatus,
				Type:   string(ev.Type),
				Status: ev.Status,
				At:     ev.At,
			})
			if ev.Status != model.SessionStatusInProgress {
				closeStream(string(ev.Type))
				wsLog.Info().Str("event", string(ev.Type)).Msg("Stream closed after session left IN_PROGRESS")
				return
			}
		case <-ticker.C:
			state, err := h.sessionService.State(ctx, sessionID, studentID)
			if err != nil {
				wsLog.Warn().Err(err).Msg("Failed to refresh session state")
				continue
			}
			if err := conn.WriteTyped(stateResponse(state)); err != nil {
				closeStream("write failed")
				return
			}
			if state.Status != model.SessionStatusInProgress {
				closeStream("session not in progress")
				return
			}
		}
	}
}

func (h *WSHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *ws.Conn, busy *sync.Mutex, wsLog zerolog.Logger, sessionID uuid.UUID, studentID string) {
	defer cancel()

	for {
		var msg ws.RequestEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			if ws.IsUnexpectedClose(err) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if done := h.handleAction(ctx, conn, busy, wsLog, sessionID, studentID, msg); done {
			return
		}
	}
}

// handleAction runs one client action and reports whether the stream should
// end.
func (h *WSHandler) handleAction(ctx context.Context, conn *ws.Conn, busy *sync.Mutex, wsLog zerolog.Logger, sessionID uuid.UUID, studentID string, msg ws.RequestEnvelope) bool {
	busy.Lock()
	defer busy.Unlock()

	switch msg.Action {
	case ws.ActionPing:
		_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
	case ws.ActionSave:
		ack, err := h.sessionService.SaveProgress(ctx, sessionID, studentID, msg.Answers)
		if err != nil {
			writeServiceError(conn, err, wsLog)
			return !retryable(err)
		}
		_ = conn.WriteTyped(ws.AckResponse{Event: ws.EventSaved, Status: ack.Status})
	case ws.ActionSubmit:
		ack, err := h.sessionService.Submit(ctx, sessionID, studentID, msg.Answers)
		if err != nil {
			writeServiceError(conn, err, wsLog)
			return !retryable(err)
		}
		_ = conn.WriteTyped(ws.AckResponse{Event: ws.EventSubmitted, Status: ack.Status})
		return true
	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
	}
	return false
}

func writeServiceError(conn *ws.Conn, err error, log zerolog.Logger) {
	status, code := response.StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Stream action failed")
	}
	_ = conn.WriteError(string(code), response.GetMessage(code))
}

// retryable reports errors that leave the attempt open, so the stream stays up.
func retryable(err error) bool {
	status, _ := response.StatusFor(err)
	return status == http.StatusBadRequest || status >= http.StatusInternalServerError
}

func stateResponse(st *service.SessionState) ws.StateResponse {
	return ws.StateResponse{
		Event:            ws.EventState,
		SessionID:        st.SessionID,
		Status:           st.Status,
		Deadline:         st.Deadline,
		RemainingSeconds: st.RemainingSeconds,
	}
}
