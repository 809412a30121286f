package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/service"
)

func newAuth() *service.AuthService {
	return service.NewAuthService(&config.Config{JWTSecret: "test-secret"})
}

func bearer(t *testing.T, auth *service.AuthService, subject string, role service.Role) string {
	t.Helper()
	token, err := auth.IssueToken(subject, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func protected(auth *service.AuthService, role service.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", Authenticate(auth), RequireRole(role), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).SubjectID())
	})
	return r
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	auth := newAuth()
	r := protected(auth, service.RoleStudent)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"wrong role", bearer(t, auth, "admin-1", service.RoleAdmin), http.StatusForbidden},
		{"student", bearer(t, auth, "stu-1", service.RoleStudent), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "stu-1", w.Body.String())
			}
		})
	}
}

func TestAuthenticateTagsRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newAuth()
	var buf bytes.Buffer

	r := gin.New()
	r.Use(response.RequestIDMiddleware(zerolog.New(&buf)))
	r.GET("/x", Authenticate(auth), func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("handled")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", bearer(t, auth, "stu-9", service.RoleStudent))
	req.Header.Set(response.HeaderRequestID, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	line := buf.String()
	assert.Contains(t, line, `"request_id":"req-1"`)
	assert.Contains(t, line, `"subject_id":"stu-9"`)
	assert.Contains(t, line, `"role":"STUDENT"`)
}

func TestRequireStudentWSAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newAuth()
	r := gin.New()
	r.GET("/ws", RequireStudentWSAuth(auth), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	adminToken, err := auth.IssueToken("admin-1", service.RoleAdmin, time.Hour)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token="+adminToken, nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	studentToken, err := auth.IssueToken("stu-1", service.RoleStudent, time.Hour)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token="+studentToken, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimiterPerCaller(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	assert.True(t, rl.allow("sub:a", now))
	assert.True(t, rl.allow("sub:a", now))
	assert.False(t, rl.allow("sub:a", now))
	assert.True(t, rl.allow("sub:b", now), "budgets are per caller")

	assert.True(t, rl.allow("sub:a", now.Add(31*time.Second)), "tokens refill over the window")

	rl.Cleanup(now.Add(10 * time.Minute))
	assert.Empty(t, rl.visitors)
}

func TestRateLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/submit", NewRateLimiter(1, time.Hour).Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/submit", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/submit", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	large := strings.Repeat("band score ", 500)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/large", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
	body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, large, string(body))

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())
}

func TestNoStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
