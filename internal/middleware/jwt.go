package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/examina/examina-backend/internal/response"
	"github.com/examina/examina-backend/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
	// ContextKeySessionToken is the Gin context key for the session token.
	ContextKeySessionToken = "session_token"
	// HeaderSessionToken carries the opaque session token on every
	// in-session request.
	HeaderSessionToken = "X-Session-Token"
)

// RequireStudentJWT validates a student JWT from the Authorization header.
// Only session creation needs it; in-session operations authenticate with
// the session token instead.
func RequireStudentJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// RequireSessionToken extracts the session token from the header (or the
// query string for WebSocket upgrades, which cannot set custom headers).
// The token is only checked for presence here; resolution against the
// store happens in the service so every operation revalidates it.
func RequireSessionToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(HeaderSessionToken)
		if token == "" {
			token = c.Query("session_token")
		}
		if token == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		c.Set(ContextKeySessionToken, token)
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

// GetSessionToken retrieves the session token from the Gin context.
func GetSessionToken(c *gin.Context) string {
	return c.GetString(ContextKeySessionToken)
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	// Fallback for WebSocket/EventSource clients that cannot send headers.
	return c.Query("token")
}
