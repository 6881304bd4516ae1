package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const refreshPath = "/api/v1/session/refresh"

// Options controls one refresh invocation.
type Options struct {
	// ForceRefresh schedules a one-shot full reload instead of merging the
	// fetched user into the cache.
	ForceRefresh bool
	// MaxRetries bounds transport-level retries for the refresh call.
	MaxRetries int
	// SkipThrottling bypasses the minimum-interval check; used by the drift
	// monitor, which must repair state immediately.
	SkipThrottling bool
}

// Refresher reconciles the local session cache against the server. Calls
// inside the throttle window are no-ops so concurrent UI triggers cannot
// cause a refresh storm.
type Refresher struct {
	baseURL         string
	httpClient      *http.Client
	cache           *Cache
	throttle        time.Duration
	reloadDelay     time.Duration
	reloadFn        func()
	debugCookieName string
	log             zerolog.Logger

	mu          sync.Mutex
	lastRefresh time.Time
	reloadArmed bool
}

type RefresherConfig struct {
	BaseURL         string
	Throttle        time.Duration // default 5s
	ReloadDelay     time.Duration // default 750ms
	DebugCookieName string        // default gtg_session_debug
	// ReloadFn performs the full-page-reload analog; required when
	// ForceRefresh will be used.
	ReloadFn func()
	// HTTPClient may be supplied by tests; a cookie-jar client is built
	// otherwise.
	HTTPClient *http.Client
}

func NewRefresher(cfg RefresherConfig, cache *Cache, log zerolog.Logger) (*Refresher, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar, Timeout: 10 * time.Second}
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = 5 * time.Second
	}
	if cfg.ReloadDelay <= 0 {
		cfg.ReloadDelay = 750 * time.Millisecond
	}
	if cfg.DebugCookieName == "" {
		cfg.DebugCookieName = "gtg_session_debug"
	}

	return &Refresher{
		baseURL:         cfg.BaseURL,
		httpClient:      httpClient,
		cache:           cache,
		throttle:        cfg.Throttle,
		reloadDelay:     cfg.ReloadDelay,
		reloadFn:        cfg.ReloadFn,
		debugCookieName: cfg.DebugCookieName,
		log:             log,
	}, nil
}

// Refresh fetches the authoritative user. It returns (nil, nil) when
// throttled or when the server reports failure; the caller treats both as
// "unchanged".
func (r *Refresher) Refresh(ctx context.Context, opts Options) (*User, error) {
	r.mu.Lock()
	if !opts.SkipThrottling && time.Since(r.lastRefresh) < r.throttle {
		r.mu.Unlock()
		return nil, nil
	}
	r.lastRefresh = time.Now()
	r.mu.Unlock()

	user, token, ok := r.fetchCurrentUser(ctx, opts.MaxRetries)
	if !ok {
		return nil, nil
	}

	if opts.ForceRefresh {
		r.scheduleReload()
		return nil, nil
	}

	if err := r.cache.SetSession(user, token); err != nil {
		return nil, fmt.Errorf("persist session cache: %w", err)
	}
	return user, nil
}

func (r *Refresher) fetchCurrentUser(ctx context.Context, maxRetries int) (*User, string, bool) {
	attempts := maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		user, token, retryable, err := r.doFetch(ctx)
		if err == nil {
			return user, token, true
		}
		if !retryable {
			r.log.Debug().Err(err).Msg("session refresh rejected by server")
			return nil, "", false
		}
		r.log.Debug().Err(err).Int("attempt", attempt+1).Msg("session refresh attempt failed")
	}
	return nil, "", false
}

func (r *Refresher) doFetch(ctx context.Context) (user *User, token string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+refreshPath, nil)
	if err != nil {
		return nil, "", false, err
	}
	if state := r.cache.State(); state.Token != "" {
		req.Header.Set("Authorization", "Bearer "+state.Token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", false, fmt.Errorf("refresh status %d", resp.StatusCode)
	}

	var payload struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", false, fmt.Errorf("decode refresh response: %w", err)
	}
	return &payload.User, payload.Token, false, nil
}

// scheduleReload arms a one-shot delayed reload. The marker stays set for
// the life of the process (the "session" in browser terms), so duplicate
// force-refresh triggers cannot cause a reload loop.
func (r *Refresher) scheduleReload() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reloadArmed || r.reloadFn == nil {
		return
	}
	r.reloadArmed = true
	time.AfterFunc(r.reloadDelay, r.reloadFn)
}

// CheckDrift compares the debug-cookie claims snapshot against the cached
// hasCharacter flag and repairs a mismatch with an unthrottled forced
// refresh. An absent or malformed cookie changes nothing.
func (r *Refresher) CheckDrift(ctx context.Context) {
	snapshot, ok := r.readDebugCookie()
	if !ok {
		return
	}

	state := r.cache.State()
	if !state.IsAuthenticated {
		return
	}
	if snapshot.HasCharacter == state.HasCharacter {
		return
	}

	r.log.Debug().
		Bool("cookie_has_character", snapshot.HasCharacter).
		Bool("cached_has_character", state.HasCharacter).
		Msg("session drift detected, forcing refresh")

	if _, err := r.Refresh(ctx, Options{ForceRefresh: true, SkipThrottling: true}); err != nil {
		r.log.Debug().Err(err).Msg("drift repair refresh failed")
	}
}

// StartDriftMonitor runs CheckDrift on an interval until ctx is done.
// Callers start it only while a protected view is active.
func (r *Refresher) StartDriftMonitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CheckDrift(ctx)
			}
		}
	}()
}

type debugCookie struct {
	UserID       string `json:"uid"`
	Role         string `json:"role"`
	HasCharacter bool   `json:"hasCharacter"`
}

func (r *Refresher) readDebugCookie() (debugCookie, bool) {
	var snapshot debugCookie

	if r.httpClient.Jar == nil {
		return snapshot, false
	}
	base, err := url.Parse(r.baseURL)
	if err != nil {
		return snapshot, false
	}

	for _, cookie := range r.httpClient.Jar.Cookies(base) {
		if cookie.Name != r.debugCookieName {
			continue
		}
		raw, err := url.QueryUnescape(cookie.Value)
		if err != nil {
			r.log.Debug().Err(err).Msg("debug cookie unescape failed")
			return snapshot, false
		}
		if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
			r.log.Debug().Err(err).Msg("debug cookie parse failed")
			return snapshot, false
		}
		return snapshot, true
	}
	return snapshot, false
}
