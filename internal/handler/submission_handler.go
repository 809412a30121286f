package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/service"
	"github.com/stemsi/mockexam-backend/internal/validator"
)

// SubmissionHandler handles the examiner workflow: listing, marking and
// releasing submitted attempts.
type SubmissionHandler struct {
	markingService *service.MarkingService
	log            zerolog.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(markingService *service.MarkingService, log zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		markingService: markingService,
		log:            log.With().Str("component", "submission_handler").Logger(),
	}
}

// ListSubmissions godoc
// GET /api/v1/admin/submissions?page=1&limit=10&search=&status=COMPLETED
// Lists sessions newest first with the count still awaiting marking.
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	filter := model.SubmissionFilter{
		Page:   page,
		Limit:  limit,
		Search: strings.TrimSpace(c.Query("search")),
		Status: model.SessionStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
	}

	result, err := h.markingService.ListSubmissions(c.Request.Context(), filter)
	if err != nil {
		response.FailWithError(c, err, h.log)
		return
	}

	items := result.Items
	if items == nil {
		items = []model.SessionSummary{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{
		"submissions":    items,
		"awaiting_count": result.AwaitingCount,
	}, &response.Pagination{
		Page:       result.CurrentPage,
		PerPage:    result.PerPage,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// GetSubmission godoc
// GET /api/v1/admin/submissions/:id
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	detail, err := h.markingService.GetSubmission(c.Request.Context(), sessionID)
	if err != nil {
		response.FailWithError(c, err, h.log)
		return
	}

	response.Success(c, http.StatusOK, detail)
}

// MarkSubmission godoc
// POST /api/v1/admin/submissions/:id/mark
// Auto-marks objective answers, applies examiner scores and moves the
// session to MARKED.
func (h *SubmissionHandler) MarkSubmission(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	var req model.MarkSubmissionRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	session, err := h.markingService.Mark(c.Request.Context(), sessionID, req.ManualScores)
	if err != nil {
		response.FailWithError(c, err, h.log)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// ReleaseResults godoc
// POST /api/v1/admin/submissions/:id/release
func (h *SubmissionHandler) ReleaseResults(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	session, err := h.markingService.Release(c.Request.Context(), sessionID)
	if err != nil {
		response.FailWithError(c, err, h.log)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// GetScores godoc
// GET /api/v1/admin/submissions/:id/scores
// Computes band scores from the current marks. Nothing is persisted.
func (h *SubmissionHandler) GetScores(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	scores, err := h.markingService.CalculateScores(c.Request.Context(), sessionID)
	if err != nil {
		response.FailWithError(c, err, h.log)
		return
	}

	response.Success(c, http.StatusOK, scores)
}
