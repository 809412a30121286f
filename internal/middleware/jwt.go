package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/service"
)

// ContextKeyClaims is the Gin context key for the identity claims.
const ContextKeyClaims = "claims"

var (
	errNoToken        = errors.New("token required")
	errMalformedToken = errors.New("malformed authorization header")
)

// tokenSource pulls the raw token out of a request.
type tokenSource func(c *gin.Context) (string, error)

// bearerToken reads "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", errNoToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", errMalformedToken
	}
	return strings.TrimSpace(token), nil
}

// queryToken reads ?token=..., the only option for browser WebSocket
// upgrades.
func queryToken(c *gin.Context) (string, error) {
	token := c.Query("token")
	if token == "" {
		return "", errNoToken
	}
	return token, nil
}

// Authenticate validates the Bearer token and stores the claims on the
// context. Role checks are left to RequireRole.
func Authenticate(authService *service.AuthService) gin.HandlerFunc {
	return authenticate(authService, bearerToken, "")
}

// RequireStudentWSAuth validates a student token passed as ?token= on a
// stream upgrade.
func RequireStudentWSAuth(authService *service.AuthService) gin.HandlerFunc {
	return authenticate(authService, queryToken, service.RoleStudent)
}

// authenticate validates the token from source. A non-empty role is enforced
// immediately.
func authenticate(authService *service.AuthService, source tokenSource, role service.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := source(c)
		if errors.Is(err, errNoToken) {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		claims, err := authService.ValidateToken(raw)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}
		if role != "" && claims.Role != role {
			response.AbortFail(c, http.StatusForbidden, forbiddenCode(role))
			return
		}

		c.Set(ContextKeyClaims, claims)
		// Tag the request-scoped logger, when one is attached, with the caller.
		ctx := c.Request.Context()
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			reqLog := l.With().Str("subject_id", claims.SubjectID()).Str("role", string(claims.Role)).Logger()
			c.Request = c.Request.WithContext(reqLog.WithContext(ctx))
		}
		c.Next()
	}
}

// GetClaims retrieves the identity claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}
