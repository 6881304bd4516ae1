package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gotogrow/portal/internal/middleware"
	"gotogrow/portal/internal/models"
)

// SessionRefresh serves the client reconciliation helper: it re-reads the
// authoritative user record and refreshes the session cookie so the claims
// snapshot catches up with any server-side change.
func (h HandlerSet) SessionRefresh(c *gin.Context) {
	claims := c.MustGet(middleware.ContextUserKey).(models.User)

	user, err := h.authService.CurrentUser(c.Request.Context(), claims.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh_failed"})
		return
	}

	result, err := h.authService.Reissue(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh_failed"})
		return
	}

	h.sendAuthResponse(c, result)
}
