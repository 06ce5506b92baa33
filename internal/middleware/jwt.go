package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

var errTokenMissing = errors.New("authorization header or token query required")

// RequireStudentJWT validates a student JWT from the Authorization header.
func RequireStudentJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireJWT(authService, service.TokenTypeStudent, bearerOrQuery)
}

// RequireAdminJWT validates an admin JWT from the Authorization header.
// EventSource clients may pass the token as ?token= instead.
func RequireAdminJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireJWT(authService, service.TokenTypeAdmin, bearerOrQuery)
}

// RequireStudentWSAuth validates a student JWT from the query param ?token=...
// Used for WebSocket upgrade requests.
func RequireStudentWSAuth(authService *service.AuthService) gin.HandlerFunc {
	return requireJWT(authService, service.TokenTypeStudent, func(c *gin.Context) string {
		return c.Query("token")
	})
}

// RequireAnyJWT accepts a valid token of either type.
func RequireAnyJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireJWT(authService, "", bearerOrQuery)
}

func requireJWT(authService *service.AuthService, want service.TokenType, extract func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extract(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if want != "" && claims.TokenType != want {
			code := response.ErrStudentAccessOnly
			if want == service.TokenTypeAdmin {
				code = response.ErrAdminAccessOnly
			}
			response.AbortFail(c, http.StatusForbidden, code)
			return
		}

		// A newer login or a logout supersedes this token.
		if err := authService.CheckActive(c.Request.Context(), claims); err != nil {
			if errors.Is(err, service.ErrInvalidToken) {
				response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
				return
			}
			c.Error(err) //nolint:errcheck
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
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

func bearerOrQuery(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// Fallback for EventSource (SSE) which cannot send headers
	return c.Query("token")
}
