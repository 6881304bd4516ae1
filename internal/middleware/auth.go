package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gotogrow/portal/internal/config"
	"gotogrow/portal/internal/repository"
	"gotogrow/portal/internal/security"
)

const (
	ContextUserKey   = "current_user"
	ContextClaimsKey = "session_claims"
)

// Auth authorizes API requests from either a bearer token or the session
// cookie. Unlike the page gatekeeper it answers with JSON statuses, and it
// distinguishes an expired token from an invalid one in the error body.
func Auth(cfg *config.AppConfig, users repository.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extractToken(c, cfg.Session.CookieName)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		result := security.VerifySessionToken(tokenStr, cfg.Security.SessionSecret)
		switch result.State {
		case security.TokenExpired:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_expired"})
			return
		case security.TokenInvalid:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		user, err := users.GetByID(c.Request.Context(), result.Claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_not_found"})
			return
		}

		c.Set(ContextClaimsKey, *result.Claims)
		c.Set(ContextUserKey, user)

		c.Next()
	}
}

func extractToken(c *gin.Context, cookieName string) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	token, err := c.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return token
}
