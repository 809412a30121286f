package response

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/apperror"
)

// Response is the standardized API response envelope.
type Response struct {
	Data       interface{} `json:"data"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Metadata   Metadata    `json:"metadata"`
}

// ErrorBody represents a structured error response.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Pagination holds pagination information.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// Metadata includes request tracing and timing.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// ────────────────────────────────────────────────────────────────────────────
// Helper builders
// ────────────────────────────────────────────────────────────────────────────

// Success sends a successful JSON response with the given status code and data.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Data:     data,
		Metadata: buildMetadata(c),
	})
}

// SuccessWithPagination sends a successful response with pagination metadata.
func SuccessWithPagination(c *gin.Context, statusCode int, data interface{}, pagination *Pagination) {
	c.JSON(statusCode, Response{
		Data:       data,
		Pagination: pagination,
		Metadata:   buildMetadata(c),
	})
}

// Fail sends an error response with an error code and no field-level details.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, Response{
		Data:     nil,
		Error:    &ErrorBody{Code: code, Message: GetMessage(code)},
		Metadata: buildMetadata(c),
	})
}

// FailWithFields sends an error response with field-level validation details.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, Response{
		Data:     nil,
		Error:    &ErrorBody{Code: code, Message: GetMessage(code), Fields: fields},
		Metadata: buildMetadata(c),
	})
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, Response{
		Data:     nil,
		Error:    &ErrorBody{Code: code, Message: GetMessage(code)},
		Metadata: buildMetadata(c),
	})
}

// FailWithError maps a service error onto its HTTP status and error code.
// Configuration and internal failures are logged; everything else is the
// caller's fault and is returned as-is.
func FailWithError(c *gin.Context, err error, log zerolog.Logger) {
	status, code := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str(ContextKeyRequestID, RequestID(c)).
			Str("kind", string(apperror.KindOf(err))).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	c.JSON(status, Response{
		Data:     nil,
		Error:    &ErrorBody{Code: code, Message: GetMessage(code), Fields: errorFields(err)},
		Metadata: buildMetadata(c),
	})
}

// StatusFor returns the HTTP status and error code for a service error.
func StatusFor(err error) (int, ErrCode) {
	switch apperror.KindOf(err) {
	case apperror.KindNotFound:
		return http.StatusNotFound, ErrNotFound
	case apperror.KindForbidden:
		switch apperror.ReasonOf(err) {
		case apperror.ReasonWindowNotOpen:
			return http.StatusForbidden, ErrWindowNotOpen
		case apperror.ReasonWindowClosed:
			return http.StatusForbidden, ErrWindowClosed
		case apperror.ReasonTimeExpired:
			return http.StatusForbidden, ErrTimeExpired
		case apperror.ReasonNotOwner:
			return http.StatusForbidden, ErrNotOwner
		case apperror.ReasonResultsNotReleased:
			return http.StatusForbidden, ErrResultsNotReleased
		}
		return http.StatusForbidden, ErrForbidden
	case apperror.KindConflict:
		return http.StatusConflict, ErrInvalidSessionState
	case apperror.KindInvalidInput:
		return http.StatusBadRequest, ErrValidation
	case apperror.KindConfiguration:
		return http.StatusInternalServerError, ErrExamMisconfigured
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}

// errorFields exposes the message of client errors; server errors stay opaque.
func errorFields(err error) map[string]string {
	var ae *apperror.Error
	if !errors.As(err, &ae) || ae.Kind == apperror.KindInternal || ae.Kind == apperror.KindConfiguration {
		return nil
	}
	if ae.Message == "" {
		return nil
	}
	return map[string]string{"detail": ae.Message}
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

func buildMetadata(c *gin.Context) Metadata {
	id := RequestID(c)
	if id == "" {
		id = uuid.New().String() // Fallback if middleware not applied
	}
	return Metadata{
		RequestID: id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
