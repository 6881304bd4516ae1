package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotogrow/portal/internal/config"
	"gotogrow/portal/internal/handlers"
	"gotogrow/portal/internal/ids"
	"gotogrow/portal/internal/models"
	"gotogrow/portal/internal/repository"
	"gotogrow/portal/internal/security"
	"gotogrow/portal/internal/server"
	"gotogrow/portal/internal/session"
)

func testAppConfig() *config.AppConfig {
	return &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			SessionSecret:      "handler-test-secret",
			SessionTTL:         time.Hour,
			LoginAttemptLimit:  10,
			LoginAttemptWindow: time.Minute,
			ResetTokenTTL:      time.Hour,
		},
		Session: config.SessionConfig{
			CookieName:          "gtg_session",
			DebugCookieName:     "gtg_session_debug",
			GuardCookieName:     "gtg_character_redirect",
			GuardTTL:            30 * time.Second,
			RefreshThrottle:     5 * time.Second,
			PublicPaths:         []string{"/", "/about", "/static", "/favicon.ico", "/api/healthz"},
			AuthOnlyPaths:       []string{"/auth/login", "/auth/register", "/auth/forgot-password", "/auth/reset-password"},
			CharacterPaths:      []string{"/dashboard", "/levels", "/play", "/profile"},
			CharacterSelectPath: "/character/select",
			LoginPath:           "/auth/login",
			LandingPath:         "/dashboard",
		},
	}
}

type testPortal struct {
	engine *gin.Engine
	cfg    *config.AppConfig
	users  *repository.MemoryUserRepository
}

func newTestPortal(t *testing.T) *testPortal {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testAppConfig()
	logger := zerolog.Nop()
	users := repository.NewMemoryUserRepository()
	progress := repository.NewMemoryProgressRepository()
	markers := session.NewMemoryMarkerStore()

	handlerSet := handlers.NewHandlerSet(logger, users, progress, markers, nil, nil, cfg)
	gatekeeper := session.NewGatekeeper(cfg, markers, logger)
	engine := server.NewEngine(cfg, logger, gatekeeper, handlerSet)

	return &testPortal{engine: engine, cfg: cfg, users: users}
}

func (p *testPortal) do(t *testing.T, method, path string, body any, decorate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, d := range decorate {
		d(req)
	}

	rec := httptest.NewRecorder()
	p.engine.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) func(*http.Request) {
	return func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(name, value string) func(*http.Request) {
	return func(req *http.Request) { req.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func decodeAuth(t *testing.T, rec *httptest.ResponseRecorder) (token string, user map[string]any) {
	t.Helper()
	var payload struct {
		Token string         `json:"token"`
		User  map[string]any `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Token, payload.User
}

func registerUser(t *testing.T, p *testPortal) (token string, user map[string]any) {
	t.Helper()
	rec := p.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": "ada",
		"email":    "ada@example.com",
		"password": "correct horse battery staple",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeAuth(t, rec)
}

func TestRegisterSetsSessionCookie(t *testing.T) {
	p := newTestPortal(t)

	rec := p.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": "ada",
		"email":    "ada@example.com",
		"password": "correct horse battery staple",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	token, user := decodeAuth(t, rec)
	assert.NotEmpty(t, token)
	assert.Equal(t, "ada", user["username"])
	assert.Equal(t, false, user["hasCharacter"])

	var sessionSet bool
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == p.cfg.Session.CookieName && cookie.Value != "" {
			sessionSet = true
			assert.True(t, cookie.HttpOnly)
		}
	}
	assert.True(t, sessionSet, "register must set the session cookie")
}

func TestRegisterValidation(t *testing.T) {
	p := newTestPortal(t)

	rec := p.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": "ada",
		"email":    "not-an-email",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	p := newTestPortal(t)
	registerUser(t, p)

	rec := p.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": "someone",
		"email":    "ada@example.com",
		"password": "correct horse battery staple",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginEndpoint(t *testing.T) {
	p := newTestPortal(t)
	registerUser(t, p)

	rec := p.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "ada@example.com",
		"password": "correct horse battery staple",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = p.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "ada@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCharacterGateEndToEnd(t *testing.T) {
	p := newTestPortal(t)
	token, _ := registerUser(t, p)

	// Fresh accounts have no character: the dashboard bounces to selection.
	rec := p.do(t, http.MethodGet, "/dashboard", nil,
		withCookie(p.cfg.Session.CookieName, token))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/character/select", rec.Header().Get("Location"))

	rec = p.do(t, http.MethodGet, "/api/v1/character/options", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "explorer")

	rec = p.do(t, http.MethodPost, "/api/v1/character/select",
		gin.H{"character": "explorer"}, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	newToken, user := decodeAuth(t, rec)
	assert.Equal(t, true, user["hasCharacter"])
	require.NotEmpty(t, newToken)

	// The rotated cookie carries the updated claim: the gate opens.
	rec = p.do(t, http.MethodGet, "/dashboard", nil,
		withCookie(p.cfg.Session.CookieName, newToken))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSelectUnknownCharacter(t *testing.T) {
	p := newTestPortal(t)
	token, _ := registerUser(t, p)

	rec := p.do(t, http.MethodPost, "/api/v1/character/select",
		gin.H{"character": "wizard"}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeEndpoint(t *testing.T) {
	p := newTestPortal(t)
	token, _ := registerUser(t, p)

	rec := p.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ada@example.com")

	rec = p.do(t, http.MethodGet, "/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = p.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer("garbage"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeAcceptsSessionCookie(t *testing.T) {
	p := newTestPortal(t)
	token, _ := registerUser(t, p)

	rec := p.do(t, http.MethodGet, "/api/v1/auth/me", nil,
		withCookie(p.cfg.Session.CookieName, token))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionRefreshReturnsAuthoritativeUser(t *testing.T) {
	p := newTestPortal(t)
	token, user := registerUser(t, p)

	// Flip the flag server-side, bypassing the client: refresh must see it.
	require.NoError(t, p.users.SetCharacter(context.Background(), user["id"].(string), "mentor", 0))

	rec := p.do(t, http.MethodGet, "/api/v1/session/refresh", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)

	newToken, refreshed := decodeAuth(t, rec)
	assert.Equal(t, true, refreshed["hasCharacter"])
	assert.NotEmpty(t, newToken)
}

func TestLogoutClearsCookies(t *testing.T) {
	p := newTestPortal(t)
	token, _ := registerUser(t, p)

	rec := p.do(t, http.MethodPost, "/api/v1/auth/logout", nil,
		withCookie(p.cfg.Session.CookieName, token))
	require.Equal(t, http.StatusOK, rec.Code)

	var cleared bool
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == p.cfg.Session.CookieName && cookie.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "logout must expire the session cookie")
}

func TestPasswordResetEndpoints(t *testing.T) {
	p := newTestPortal(t)
	registerUser(t, p)

	rec := p.do(t, http.MethodPost, "/api/v1/auth/forgot-password", gin.H{
		"email": "ada@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var forgot struct {
		ResetToken string `json:"resetToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &forgot))
	require.NotEmpty(t, forgot.ResetToken, "non-production environments echo the token")

	rec = p.do(t, http.MethodGet, "/api/v1/auth/reset-password/"+forgot.ResetToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = p.do(t, http.MethodPut, "/api/v1/auth/reset-password/"+forgot.ResetToken, gin.H{
		"password": "a brand new password",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = p.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "ada@example.com",
		"password": "a brand new password",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetWithBogusToken(t *testing.T) {
	p := newTestPortal(t)

	rec := p.do(t, http.MethodGet, "/api/v1/auth/reset-password/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProgressEndpoints(t *testing.T) {
	p := newTestPortal(t)
	token, _ := registerUser(t, p)

	rec := p.do(t, http.MethodGet, "/api/v1/levels/progress", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"progress":[]}`, rec.Body.String())

	rec = p.do(t, http.MethodPost, "/api/v1/levels/intro-1/complete",
		gin.H{"score": 80}, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = p.do(t, http.MethodGet, "/api/v1/levels/progress", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "intro-1")
	assert.Contains(t, rec.Body.String(), "80")
}

func TestAdminEndpointForbiddenForUsers(t *testing.T) {
	p := newTestPortal(t)
	token, _ := registerUser(t, p)

	rec := p.do(t, http.MethodGet, "/api/v1/admin/users", nil, bearer(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminEndpointListsUsers(t *testing.T) {
	p := newTestPortal(t)
	registerUser(t, p)

	// Admin accounts are never self-service; seed one directly in the store.
	hash, err := security.HashPassword("root password 12345")
	require.NoError(t, err)
	require.NoError(t, p.users.Create(context.Background(), models.User{
		ID:           ids.New(),
		Username:     "root",
		Email:        "root@example.com",
		PasswordHash: hash,
		Role:         models.UserRoleAdmin,
	}))

	rec := p.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "root@example.com",
		"password": "root password 12345",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	adminToken, _ := decodeAuth(t, rec)

	rec = p.do(t, http.MethodGet, "/api/v1/admin/users", nil, bearer(adminToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ada@example.com")
	assert.Contains(t, rec.Body.String(), "root@example.com")
}

func TestHealthEndpointIsPublic(t *testing.T) {
	p := newTestPortal(t)

	rec := p.do(t, http.MethodGet, "/api/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "skipped")
}
