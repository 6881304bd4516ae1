package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Page routes exist to be gated; the actual views are rendered by the
// frontend, which consumes these JSON shells. Access decisions happen in the
// session gatekeeper before any of these run.
func (h HandlerSet) registerPages(router *gin.Engine) {
	router.GET("/", h.page("home"))
	router.GET("/about", h.page("about"))
	router.GET("/auth/login", h.page("login"))
	router.GET("/auth/register", h.page("register"))
	router.GET("/auth/forgot-password", h.page("forgot-password"))
	router.GET("/auth/reset-password", h.page("reset-password"))
	router.GET("/dashboard", h.page("dashboard"))
	router.GET("/levels", h.page("levels"))
	router.GET("/levels/:id", h.page("level"))
	router.GET("/play", h.page("play"))
	router.GET("/profile", h.page("profile"))
	router.GET("/character/select", h.page("character-select"))
}

func (h HandlerSet) page(view string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"view": view})
	}
}
