package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gotogrow/portal/internal/middleware"
	"gotogrow/portal/internal/models"
	"gotogrow/portal/internal/service"
)

func (h HandlerSet) CharacterOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"characters": service.Characters})
}

type selectCharacterRequest struct {
	Character string `json:"character" binding:"required"`
}

// SelectCharacter flips the gating flag and rotates the session cookie so
// the next page request carries hasCharacter=true without waiting for a
// client refresh.
func (h HandlerSet) SelectCharacter(c *gin.Context) {
	var req selectCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := c.MustGet(middleware.ContextUserKey).(models.User)

	result, err := h.authService.SelectCharacter(c.Request.Context(), user.ID, req.Character)
	if err != nil {
		if errors.Is(err, service.ErrCharacterUnknown) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_character"})
			return
		}
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("character selection failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "character_select_failed"})
		return
	}

	h.sendAuthResponse(c, result)
}
