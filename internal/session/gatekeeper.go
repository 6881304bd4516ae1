package session

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gotogrow/portal/internal/config"
	"gotogrow/portal/internal/models"
	"gotogrow/portal/internal/security"
)

const (
	apiPrefix           = "/api"
	characterAPIPrefix  = "/api/v1/character"
	characterPagePrefix = "/character"
)

// DebugSnapshot is the claims view written to the non-HttpOnly debug cookie.
// It exists for client-side drift detection only and is never read back for
// authorization.
type DebugSnapshot struct {
	UserID       string          `json:"uid"`
	Role         models.UserRole `json:"role"`
	HasCharacter bool            `json:"hasCharacter"`
}

// Gatekeeper is the per-request session reconciliation layer. Each request
// is evaluated once and resolves to exactly one terminal outcome: allow,
// redirect, or a short-circuited preflight response. No branch errors past
// the middleware; verification failures downgrade to "unauthenticated".
type Gatekeeper struct {
	cfg        config.SessionConfig
	secret     string
	classifier *Classifier
	markers    MarkerStore
	allowAll   bool
	origins    map[string]struct{}
	log        zerolog.Logger
}

func NewGatekeeper(cfg *config.AppConfig, markers MarkerStore, log zerolog.Logger) *Gatekeeper {
	origins := make(map[string]struct{}, len(cfg.AllowCORSOrigins))
	for _, origin := range cfg.AllowCORSOrigins {
		origins[strings.TrimSpace(origin)] = struct{}{}
	}

	return &Gatekeeper{
		cfg:        cfg.Session,
		secret:     cfg.Security.SessionSecret,
		classifier: NewClassifier(cfg.Session),
		markers:    markers,
		allowAll:   len(cfg.AllowCORSOrigins) == 0,
		origins:    origins,
		log:        log,
	}
}

func (g *Gatekeeper) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		// API paths only get CORS treatment here; authorization is each
		// handler's own concern. Character-management APIs additionally
		// clear the redirect guard so a fresh selection takes effect.
		if strings.HasPrefix(path, apiPrefix) {
			g.applyCORS(c)
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusOK)
				return
			}
			if strings.HasPrefix(path, characterAPIPrefix) {
				g.clearGuardCookie(c)
			}
			c.Next()
			return
		}

		class := g.classifier.Classify(path)
		token, _ := c.Cookie(g.cfg.CookieName)
		result := security.VerifySessionToken(token, g.secret)

		switch {
		case class != PathPublic && class != PathAuthOnly && !result.Valid():
			g.redirectToLogin(c, path, result)
			return

		case class == PathAuthOnly && result.Valid():
			c.Redirect(http.StatusFound, g.cfg.LandingPath)
			c.Abort()
			return

		case class == PathCharacterRequired && result.Valid() && !result.Claims.HasCharacter:
			if g.guardCookiePresent(c) {
				break // guard active, fall through to allow
			}
			g.redirectToCharacterSelect(c, result.Claims)
			return
		}

		if strings.HasPrefix(path, characterPagePrefix) {
			g.clearGuardCookie(c)
		}

		if result.Valid() {
			g.setDebugCookie(c, result.Claims)
		}
		c.Next()
	}
}

func (g *Gatekeeper) redirectToLogin(c *gin.Context, path string, result security.VerifyResult) {
	if result.State == security.TokenExpired {
		g.log.Debug().Str("path", path).Msg("expired session token, redirecting to login")
	}
	location := g.cfg.LoginPath + "?returnUrl=" + url.QueryEscape(path)
	c.Redirect(http.StatusFound, location)
	c.Abort()
}

func (g *Gatekeeper) redirectToCharacterSelect(c *gin.Context, claims *security.SessionClaims) {
	// The guard is scoped to the browser cookie jar; the marker store keeps
	// a server-side count of issued redirects for multi-instance visibility.
	g.setGuardCookie(c)
	if _, err := g.markers.Incr(c.Request.Context(), "charredirect:"+claims.UserID, g.cfg.GuardTTL); err != nil {
		g.log.Warn().Err(err).Msg("redirect marker increment failed")
	}

	c.Redirect(http.StatusFound, g.cfg.CharacterSelectPath)
	c.Abort()
}

func (g *Gatekeeper) guardCookiePresent(c *gin.Context) bool {
	_, err := c.Cookie(g.cfg.GuardCookieName)
	return err == nil
}

func (g *Gatekeeper) setGuardCookie(c *gin.Context) {
	c.SetCookie(g.cfg.GuardCookieName, "1", int(g.cfg.GuardTTL.Seconds()), "/", "", g.cfg.CookieSecure, true)
}

func (g *Gatekeeper) clearGuardCookie(c *gin.Context) {
	// Clearing an absent cookie is a no-op for the browser.
	c.SetCookie(g.cfg.GuardCookieName, "", -1, "/", "", g.cfg.CookieSecure, true)
}

func (g *Gatekeeper) setDebugCookie(c *gin.Context, claims *security.SessionClaims) {
	snapshot, err := json.Marshal(DebugSnapshot{
		UserID:       claims.UserID,
		Role:         claims.Role,
		HasCharacter: claims.HasCharacter,
	})
	if err != nil {
		return
	}
	// Not HttpOnly: the whole point is that client scripts can read it.
	c.SetCookie(g.cfg.DebugCookieName, string(snapshot), 0, "/", "", g.cfg.CookieSecure, false)
}

func (g *Gatekeeper) applyCORS(c *gin.Context) {
	origin := c.Request.Header.Get("Origin")
	if origin != "" {
		if g.allowAll {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else if _, ok := g.origins[origin]; ok {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Vary", "Origin")
	} else {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	}

	c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
}

// ClearSession removes the session and debug cookies; used by logout.
func ClearSession(c *gin.Context, cfg config.SessionConfig) {
	c.SetCookie(cfg.CookieName, "", -1, "/", "", cfg.CookieSecure, true)
	c.SetCookie(cfg.DebugCookieName, "", -1, "/", "", cfg.CookieSecure, false)
}

// SetSession writes the authoritative session cookie and refreshes the debug
// snapshot so the observable claims never lag the real ones within one
// response.
func SetSession(c *gin.Context, cfg config.SessionConfig, token string, ttl int, claims DebugSnapshot) {
	c.SetCookie(cfg.CookieName, token, ttl, "/", "", cfg.CookieSecure, true)
	snapshot, err := json.Marshal(claims)
	if err != nil {
		return
	}
	c.SetCookie(cfg.DebugCookieName, string(snapshot), 0, "/", "", cfg.CookieSecure, false)
}

// NewDebugSnapshot builds the observable claims view for SetSession.
func NewDebugSnapshot(user models.User) DebugSnapshot {
	return DebugSnapshot{UserID: user.ID, Role: user.Role, HasCharacter: user.HasCharacter}
}
