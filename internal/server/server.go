package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gotogrow/portal/internal/config"
	"gotogrow/portal/internal/handlers"
	"gotogrow/portal/internal/middleware"
	"gotogrow/portal/internal/session"
)

type HTTPServer struct {
	engine *gin.Engine
	server *http.Server
	log    zerolog.Logger
	cfg    *config.AppConfig
}

// NewEngine assembles the middleware chain and routes. Split from
// NewHTTPServer so tests can drive the exact production engine through
// httptest.
func NewEngine(cfg *config.AppConfig, log zerolog.Logger, gatekeeper *session.Gatekeeper, handlerSet handlers.HandlerSet) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = true

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		gatekeeper.Middleware(),
	)

	handlerSet.RegisterRoutes(engine)
	return engine
}

func NewHTTPServer(cfg *config.AppConfig, log zerolog.Logger, gatekeeper *session.Gatekeeper, handlerSet handlers.HandlerSet) *HTTPServer {
	engine := NewEngine(cfg, log, gatekeeper, handlerSet)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &HTTPServer{
		engine: engine,
		server: srv,
		log:    log,
		cfg:    cfg,
	}
}

func (s *HTTPServer) Start() error {
	s.log.Info().
		Str("addr", s.server.Addr).
		Msg("http server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}
