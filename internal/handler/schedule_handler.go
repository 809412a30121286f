package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/service"
	"github.com/stemsi/mockexam-backend/internal/validator"
)

// ScheduleHandler lets admins assign templates to students.
type ScheduleHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewScheduleHandler creates a new ScheduleHandler.
func NewScheduleHandler(sessionService *service.SessionService, log zerolog.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "schedule_handler").Logger(),
	}
}

// ScheduleExam godoc
// POST /api/v1/admin/schedules
func (h *ScheduleHandler) ScheduleExam(c *gin.Context) {
	var req model.ScheduleExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessionService.Schedule(c.Request.Context(), req)
	if err != nil {
		response.FailWithError(c, err, h.log)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": session})
}
