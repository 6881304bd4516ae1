package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"gotogrow/portal/internal/config"
	"gotogrow/portal/internal/middleware"
	"gotogrow/portal/internal/models"
	"gotogrow/portal/internal/repository"
	"gotogrow/portal/internal/service"
	"gotogrow/portal/internal/session"
)

type HandlerSet struct {
	log             zerolog.Logger
	cfg             *config.AppConfig
	authService     *service.AuthService
	progressService *service.ProgressService
	users           repository.UserStore
	db              *mongo.Client
	cache           *redis.Client
}

// NewHandlerSet wires handlers from stores rather than connections so tests
// can run the full engine against the in-memory repositories. db and cache
// may be nil in that setup; health reports them as skipped.
func NewHandlerSet(
	log zerolog.Logger,
	users repository.UserStore,
	progress repository.ProgressStore,
	markers session.MarkerStore,
	db *mongo.Client,
	cache *redis.Client,
	cfg *config.AppConfig,
) HandlerSet {
	return HandlerSet{
		log:             log,
		cfg:             cfg,
		authService:     service.NewAuthService(users, markers, cfg, log),
		progressService: service.NewProgressService(progress, cache, log),
		users:           users,
		db:              db,
		cache:           cache,
	}
}

func (h HandlerSet) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/healthz", h.Health)

	h.registerPages(router)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.POST("/forgot-password", h.ForgotPassword)
		auth.GET("/reset-password/:token", h.VerifyResetToken)
		auth.PUT("/reset-password/:token", h.ResetPassword)

		authed := v1.Group("")
		authed.Use(middleware.Auth(h.cfg, h.users))
		authed.GET("/auth/me", h.Me)
		authed.GET("/session/refresh", h.SessionRefresh)
		authed.GET("/character/options", h.CharacterOptions)
		authed.POST("/character/select", h.SelectCharacter)
		authed.GET("/levels/progress", h.ListProgress)
		authed.POST("/levels/:id/complete", h.CompleteLevel)

		admin := v1.Group("/admin")
		admin.Use(
			middleware.Auth(h.cfg, h.users),
			middleware.RequireRoles(models.UserRoleAdmin),
		)
		admin.GET("/users", h.AdminListUsers)
	}
}
