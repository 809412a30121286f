package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/middleware"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/service"
	"github.com/stemsi/mockexam-backend/internal/validator"
)

// StudentExamHandler handles the student side of an exam attempt.
type StudentExamHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewStudentExamHandler creates a new StudentExamHandler.
func NewStudentExamHandler(sessionService *service.SessionService, log zerolog.Logger) *StudentExamHandler {
	return &StudentExamHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "student_exam_handler").Logger(),
	}
}

// sessionParam parses the :id path parameter, writing a 400 on failure.
func sessionParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// GetDashboard godoc
// GET /api/v1/student/dashboard
// Lists the caller's scheduled exams, earliest window first.
func (h *StudentExamHandler) GetDashboard(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	exams, err := h.sessionService.ListForStudent(c.Request.Context(), claims.SubjectID())
	if err != nil {
		response.FailWithError(c, err, h.log)
		return
	}
	if exams == nil {
		exams = []model.SessionSummary{}
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// StartExam godoc
// POST /api/v1/student/exams/:id/start
// Starts the attempt and returns the numbered exam paper.
func (h *StudentExamHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	snapshot, err := h.sessionService.Start(c.Request.Context(), sessionID, claims.SubjectID())
	if err != nil {
		response.FailWithError(c, err, h.log)
		return
	}

	response.Success(c, http.StatusOK, snapshot)
}

// ResumeExam godoc
// GET /api/v1/student/exams/:id
// Returns the paper of an attempt already in progress, e.g. after a reload.
func (h *StudentExamHandler) ResumeExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	snapshot, err := h.sessionService.Resume(c.Request.Context(), sessionID, claims.SubjectID())
	if err != nil {
		response.FailWithError(c, err, h.log)
		return
	}

	response.Success(c, http.StatusOK, snapshot)
}

// SaveAnswers godoc
// PUT /api/v1/student/exams/:id/answers
// Replaces the draft answer set without finishing the attempt.
func (h *StudentExamHandler) SaveAnswers(c *gin.Context) {
	h.writeAnswers(c, h.sessionService.SaveProgress)
}

// SubmitExam godoc
// POST /api/v1/student/exams/:id/submit
// Replaces the answer set and completes the attempt.
func (h *StudentExamHandler) SubmitExam(c *gin.Context) {
	h.writeAnswers(c, h.sessionService.Submit)
}

type answerWriter func(ctx context.Context, sessionID uuid.UUID, studentID string, answers []model.SubmittedAnswer) (*model.SubmitAck, error)

func (h *StudentExamHandler) writeAnswers(c *gin.Context, write answerWriter) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	var req model.SubmitAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ack, err := write(c.Request.Context(), sessionID, claims.SubjectID(), req.Answers)
	if err != nil {
		response.FailWithError(c, err, h.log)
		return
	}

	response.Success(c, http.StatusOK, ack)
}

// GetResults godoc
// GET /api/v1/student/exams/:id/results
// Returns answers and band scores once results are released.
func (h *StudentExamHandler) GetResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	results, err := h.sessionService.GetResults(c.Request.Context(), sessionID, claims.SubjectID())
	if err != nil {
		response.FailWithError(c, err, h.log)
		return
	}

	response.Success(c, http.StatusOK, results)
}
