package session

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotogrow/portal/internal/config"
	"gotogrow/portal/internal/models"
	"gotogrow/portal/internal/security"
)

const gatekeeperSecret = "gatekeeper-test-secret"

func testAppConfig() *config.AppConfig {
	return &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			SessionSecret: gatekeeperSecret,
			SessionTTL:    time.Hour,
		},
		Session: config.SessionConfig{
			CookieName:          "gtg_session",
			DebugCookieName:     "gtg_session_debug",
			GuardCookieName:     "gtg_character_redirect",
			GuardTTL:            30 * time.Second,
			RefreshThrottle:     5 * time.Second,
			PublicPaths:         []string{"/", "/about", "/static", "/favicon.ico", "/api/healthz"},
			AuthOnlyPaths:       []string{"/auth/login", "/auth/register"},
			CharacterPaths:      []string{"/dashboard", "/levels", "/play", "/profile"},
			CharacterSelectPath: "/character/select",
			LoginPath:           "/auth/login",
			LandingPath:         "/dashboard",
		},
	}
}

func newTestEngine(cfg *config.AppConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)

	gatekeeper := NewGatekeeper(cfg, NewMemoryMarkerStore(), zerolog.Nop())

	engine := gin.New()
	engine.Use(gatekeeper.Middleware())

	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	for _, path := range []string{"/", "/about", "/auth/login", "/auth/register", "/dashboard", "/levels", "/character/select", "/settings"} {
		engine.GET(path, ok)
	}
	engine.GET("/api/v1/ping", ok)
	engine.POST("/api/v1/character/select", ok)

	return engine
}

func issueToken(t *testing.T, hasCharacter bool, ttl time.Duration) string {
	t.Helper()
	token, err := security.IssueSessionToken(gatekeeperSecret, models.User{
		ID:           "1",
		Role:         models.UserRoleUser,
		HasCharacter: hasCharacter,
	}, ttl)
	require.NoError(t, err)
	return token
}

func doRequest(engine *gin.Engine, method, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(cfg *config.AppConfig, token string) *http.Cookie {
	return &http.Cookie{Name: cfg.Session.CookieName, Value: token}
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestPublicPathsAlwaysAllowed(t *testing.T) {
	cfg := testAppConfig()
	engine := newTestEngine(cfg)

	// No token, invalid token, expired token: public stays reachable.
	assert.Equal(t, http.StatusOK, doRequest(engine, http.MethodGet, "/about").Code)
	assert.Equal(t, http.StatusOK, doRequest(engine, http.MethodGet, "/about",
		sessionCookie(cfg, "garbage")).Code)
	assert.Equal(t, http.StatusOK, doRequest(engine, http.MethodGet, "/about",
		sessionCookie(cfg, issueToken(t, true, -time.Minute))).Code)
	assert.Equal(t, http.StatusOK, doRequest(engine, http.MethodGet, "/").Code)
}

func TestProtectedPathWithoutTokenRedirectsToLogin(t *testing.T) {
	cfg := testAppConfig()
	engine := newTestEngine(cfg)

	rec := doRequest(engine, http.MethodGet, "/dashboard")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?returnUrl=%2Fdashboard", rec.Header().Get("Location"))
}

func TestProtectedPathReturnURLEncoding(t *testing.T) {
	cfg := testAppConfig()
	engine := newTestEngine(cfg)

	rec := doRequest(engine, http.MethodGet, "/levels/3")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?returnUrl="+url.QueryEscape("/levels/3"), rec.Header().Get("Location"))
}

func TestExpiredTokenTreatedAsUnauthenticated(t *testing.T) {
	cfg := testAppConfig()
	engine := newTestEngine(cfg)

	rec := doRequest(engine, http.MethodGet, "/settings",
		sessionCookie(cfg, issueToken(t, true, -time.Minute)))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?returnUrl=%2Fsettings", rec.Header().Get("Location"))
}

func TestAuthOnlyPathWithValidTokenRedirectsToLanding(t *testing.T) {
	cfg := testAppConfig()
	engine := newTestEngine(cfg)

	for _, path := range []string{"/auth/login", "/auth/register"} {
		rec := doRequest(engine, http.MethodGet, path,
			sessionCookie(cfg, issueToken(t, true, time.Hour)))
		require.Equal(t, http.StatusFound, rec.Code, "path %s", path)
		assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	}
}

func TestAuthOnlyPathWithoutTokenAllowed(t *testing.T) {
	cfg := testAppConfig()
	engine := newTestEngine(cfg)

	assert.Equal(t, http.StatusOK, doRequest(engine, http.MethodGet, "/auth/login").Code)
}

func TestCharacterRequiredRedirectSetsGuard(t *testing.T) {
	cfg := testAppConfig()
	engine := newTestEngine(cfg)

	rec := doRequest(engine, http.MethodGet, "/dashboard",
		sessionCookie(cfg, issueToken(t, false, time.Hour)))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/character/select", rec.Header().Get("Location"))

	guard := findCookie(rec, cfg.Session.GuardCookieName)
	require.NotNil(t, guard, "guard cookie must be set on redirect")
	assert.Equal(t, 30, guard.MaxAge)
}

func TestGuardSuppressesRepeatRedirect(t *testing.T) {
	cfg := testAppConfig()
	engine := newTestEngine(cfg)

	token := issueToken(t, false, time.Hour)
	rec := doRequest(engine, http.MethodGet, "/dashboard",
		sessionCookie(cfg, token),
		&http.Cookie{Name: cfg.Session.GuardCookieName, Value: "1"})

	assert.Equal(t, http.StatusOK, rec.Code, "second request within guard TTL must not re-redirect")
}

func TestCharacterSelectPageClearsGuard(t *testing.T) {
	cfg := testAppConfig()
	engine := newTestEngine(cfg)

	token := issueToken(t, false, time.Hour)

	rec := doRequest(engine, http.MethodGet, "/character/select",
		sessionCookie(cfg, token),
		&http.Cookie{Name: cfg.Session.GuardCookieName, Value: "1"})
	require.Equal(t, http.StatusOK, rec.Code)

	guard := findCookie(rec, cfg.Session.GuardCookieName)
	require.NotNil(t, guard)
	assert.Less(t, guard.MaxAge, 1, "guard cookie must be expired")

	// Clearing an absent guard is a no-op allow.
	rec = doRequest(engine, http.MethodGet, "/character/select", sessionCookie(cfg, token))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAllowedAuthenticatedPageSetsDebugCookie(t *testing.T) {
	cfg := testAppConfig()
	engine := newTestEngine(cfg)

	rec := doRequest(engine, http.MethodGet, "/dashboard",
		sessionCookie(cfg, issueToken(t, true, time.Hour)))
	require.Equal(t, http.StatusOK, rec.Code)

	debug := findCookie(rec, cfg.Session.DebugCookieName)
	require.NotNil(t, debug)
	assert.False(t, debug.HttpOnly, "debug cookie must be readable by client scripts")

	raw, err := url.QueryUnescape(debug.Value)
	require.NoError(t, err)
	assert.Contains(t, raw, `"hasCharacter":true`)
	assert.Contains(t, raw, `"uid":"1"`)
}

func TestAPIPreflightShortCircuits(t *testing.T) {
	cfg := testAppConfig()
	engine := newTestEngine(cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/anything", nil)
	req.Header.Set("Origin", "https://play.gotogrow.example")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "https://play.gotogrow.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestAPIPathsBypassRedirects(t *testing.T) {
	cfg := testAppConfig()
	engine := newTestEngine(cfg)

	// No token at all: the gatekeeper must not redirect API traffic.
	rec := doRequest(engine, http.MethodGet, "/api/v1/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCharacterAPIClearsGuard(t *testing.T) {
	cfg := testAppConfig()
	engine := newTestEngine(cfg)

	rec := doRequest(engine, http.MethodPost, "/api/v1/character/select",
		&http.Cookie{Name: cfg.Session.GuardCookieName, Value: "1"})
	require.Equal(t, http.StatusOK, rec.Code)

	guard := findCookie(rec, cfg.Session.GuardCookieName)
	require.NotNil(t, guard)
	assert.Less(t, guard.MaxAge, 1)
}
