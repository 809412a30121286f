package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/service"
)

// RequireRole checks that the authenticated caller holds role. It must run
// after Authenticate.
func RequireRole(role service.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if claims.Role != role {
			response.AbortFail(c, http.StatusForbidden, forbiddenCode(role))
			return
		}

		c.Next()
	}
}

// forbiddenCode names the role a route is reserved for.
func forbiddenCode(role service.Role) response.ErrCode {
	switch role {
	case service.RoleStudent:
		return response.ErrStudentAccessOnly
	case service.RoleAdmin:
		return response.ErrAdminAccessOnly
	}
	return response.ErrForbidden
}
