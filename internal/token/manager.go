// Package token implements the OAuth2 client-credentials token manager used
// for authenticated service-to-service calls.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cloudgateway/pkg/errors"
	"cloudgateway/pkg/metrics"
)

// Profile is one client-credentials registration against an authorization
// endpoint
type Profile struct {
	Name         string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Audience     string
	Scopes       []string
}

// Config holds token manager configuration
type Config struct {
	// SafetyMargin triggers a refresh this long before the cached expiry
	SafetyMargin time.Duration
	// RequestTimeout bounds each authorization endpoint call
	RequestTimeout time.Duration
	Profiles       []Profile
}

// entry is an immutable cached token; it is replaced wholesale on refresh
type entry struct {
	value  string
	expiry time.Time
}

// profileState carries the cache and refresh lock for one profile.
// The mutex serializes refreshes; readers go through the atomic pointer and
// never block on it.
type profileState struct {
	config  Profile
	mu      sync.Mutex
	current atomic.Pointer[entry]
}

// Manager acquires and caches bearer tokens per credential profile
type Manager struct {
	client         *http.Client
	margin         time.Duration
	requestTimeout time.Duration
	profiles       map[string]*profileState
	logger         *slog.Logger
	metrics        *metrics.Metrics

	// now is replaceable for tests
	now func() time.Time
}

// NewManager creates a token manager. The HTTP client is shared and owned by
// the caller.
func NewManager(cfg Config, client *http.Client, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}

	profiles := make(map[string]*profileState, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		profiles[p.Name] = &profileState{config: p}
	}

	return &Manager{
		client:         client,
		margin:         cfg.SafetyMargin,
		requestTimeout: cfg.RequestTimeout,
		profiles:       profiles,
		logger:         logger.With("component", "token-manager"),
		metrics:        m,
		now:            time.Now,
	}
}

// GetToken returns a valid bearer token for the profile, refreshing it when
// the cached one is missing or within the safety margin of expiry. Concurrent
// callers for the same profile collapse into a single refresh request; a
// refresh failure is returned as an auth error, never a stale token.
func (m *Manager) GetToken(ctx context.Context, profile string) (string, error) {
	st, ok := m.profiles[profile]
	if !ok {
		return "", errors.NewError(errors.ErrorTypeAuth, "unknown credential profile").
			WithDetail("profile", profile)
	}

	if e := st.current.Load(); e != nil && m.fresh(e) {
		return e.value, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	// Re-check after acquiring the lock: another caller may have finished
	// the refresh while we waited.
	if e := st.current.Load(); e != nil && m.fresh(e) {
		return e.value, nil
	}

	e, err := m.requestToken(ctx, st.config)
	if err != nil {
		if m.metrics != nil {
			m.metrics.TokenRefreshes.WithLabelValues(profile, "failure").Inc()
		}
		m.logger.Error("token refresh failed", "profile", profile, "error", err)
		return "", err
	}

	st.current.Store(e)
	if m.metrics != nil {
		m.metrics.TokenRefreshes.WithLabelValues(profile, "success").Inc()
	}
	m.logger.Debug("token refreshed", "profile", profile, "expiry", e.expiry)
	return e.value, nil
}

// Invalidate drops the cached token for a profile, forcing the next GetToken
// to refresh. It reports whether the profile is known.
func (m *Manager) Invalidate(profile string) bool {
	st, ok := m.profiles[profile]
	if !ok {
		return false
	}
	st.current.Store(nil)
	m.logger.Info("token invalidated", "profile", profile)
	return true
}

func (m *Manager) fresh(e *entry) bool {
	return m.now().Before(e.expiry.Add(-m.margin))
}

// tokenResponse represents the OAuth2 token response
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// errorResponse represents an OAuth2 error response
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// requestToken performs the client-credentials grant against the profile's
// authorization endpoint
func (m *Manager) requestToken(ctx context.Context, p Profile) (*entry, error) {
	ctx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if p.Audience != "" {
		form.Set("audience", p.Audience)
	}
	if len(p.Scopes) > 0 {
		form.Set("scope", strings.Join(p.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeAuth, "failed to build token request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.ClientID, p.ClientSecret)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeAuth, "authorization endpoint unreachable").
			WithCause(err).
			WithDetail("profile", p.Name)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var oauthErr errorResponse
		reason := ""
		if decodeErr := json.NewDecoder(resp.Body).Decode(&oauthErr); decodeErr == nil {
			reason = oauthErr.Error
			if oauthErr.ErrorDescription != "" {
				reason = fmt.Sprintf("%s: %s", oauthErr.Error, oauthErr.ErrorDescription)
			}
		}
		return nil, errors.NewError(errors.ErrorTypeAuth, "authorization endpoint rejected request").
			WithDetail("profile", p.Name).
			WithDetail("status", resp.StatusCode).
			WithDetail("reason", reason)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, errors.NewError(errors.ErrorTypeAuth, "malformed token response").
			WithCause(err).
			WithDetail("profile", p.Name)
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.NewError(errors.ErrorTypeAuth, "token response missing access_token").
			WithDetail("profile", p.Name)
	}

	expiry, ok := m.expiryOf(tokenResp)
	if !ok {
		return nil, errors.NewError(errors.ErrorTypeAuth, "token response carries no expiry").
			WithDetail("profile", p.Name)
	}

	return &entry{value: tokenResp.AccessToken, expiry: expiry}, nil
}

// expiryOf computes the cache expiry from expires_in, falling back to the
// token's own exp claim when the response omits it. The claim is read
// without signature verification; the issuer is already trusted for the
// token's content.
func (m *Manager) expiryOf(resp tokenResponse) (time.Time, bool) {
	if resp.ExpiresIn > 0 {
		return m.now().Add(time.Duration(resp.ExpiresIn) * time.Second), true
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
