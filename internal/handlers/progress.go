package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gotogrow/portal/internal/middleware"
	"gotogrow/portal/internal/models"
)

func (h HandlerSet) ListProgress(c *gin.Context) {
	user := c.MustGet(middleware.ContextUserKey).(models.User)

	records, err := h.progressService.ListByUser(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("list progress failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "progress_list_failed"})
		return
	}

	if records == nil {
		records = []models.LevelProgress{}
	}
	c.JSON(http.StatusOK, gin.H{"progress": records})
}

type completeLevelRequest struct {
	Score int `json:"score" binding:"min=0"`
}

func (h HandlerSet) CompleteLevel(c *gin.Context) {
	var req completeLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := c.MustGet(middleware.ContextUserKey).(models.User)
	levelID := c.Param("id")

	if err := h.progressService.Complete(c.Request.Context(), user.ID, levelID, req.Score); err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Str("level_id", levelID).Msg("complete level failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "level_complete_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "completed", "levelId": levelID})
}
