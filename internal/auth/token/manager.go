package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/apierr"
	"github.com/calendarlogger/calendar-logger/internal/auth/credentials"
	"github.com/calendarlogger/calendar-logger/internal/logging"
	"github.com/calendarlogger/calendar-logger/internal/metrics"
	"github.com/calendarlogger/calendar-logger/internal/util"
	"golang.org/x/oauth2"
)

const (
	// TokenType is the authorization scheme Zoho expects.
	TokenType = "Zoho-oauthtoken"
	// SkewMargin is how early a token is treated as expired.
	SkewMargin = 60 * time.Second
	// defaultTTL applies when the token endpoint omits expires_in.
	defaultTTL = time.Hour
)

// ErrNoCredentials means the refresh token, client id or client secret is missing.
var ErrNoCredentials = fmt.Errorf("%w: zoho client id, client secret or refresh token missing", apierr.ErrConfiguration)

// Manager owns the Zoho access token: lazy refresh, expiry tracking and
// persistence of refreshed tokens.
type Manager struct {
	store       credentials.Store
	accountsURL string
	httpClient  *http.Client
	metrics     metrics.Recorder
	now         func() time.Time

	// refreshMu serializes refreshes; a caller that waited on it re-checks
	// the cached token before refreshing again.
	refreshMu sync.Mutex
	mu        sync.RWMutex
	token     *oauth2.Token
	loaded    bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithAccountsURL pins the OAuth host instead of deriving it from the API domain.
func WithAccountsURL(u string) Option {
	return func(m *Manager) { m.accountsURL = strings.TrimRight(strings.TrimSpace(u), "/") }
}

// WithMetrics reports refresh outcomes to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = metrics.OrNop(r) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a token manager reading credentials from store.
func NewManager(store credentials.Store, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		metrics:    metrics.Nop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ValidToken returns the cached token while it is unexpired, without any
// network call. Otherwise it refreshes.
func (m *Manager) ValidToken(ctx context.Context) (*oauth2.Token, error) {
	if tok := m.cached(); tok != nil {
		return tok, nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if tok := m.cached(); tok != nil {
		return tok, nil
	}
	if tok := m.loadPersistedLocked(ctx); tok != nil {
		return tok, nil
	}
	return m.refreshLocked(ctx)
}

// ForceRefresh refreshes unconditionally. Used after a 401.
func (m *Manager) ForceRefresh(ctx context.Context) (*oauth2.Token, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	return m.refreshLocked(ctx)
}

// Invalidate drops the in-memory token, e.g. after credentials change.
func (m *Manager) Invalidate() {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	m.mu.Lock()
	m.token = nil
	m.loaded = true
	m.mu.Unlock()
}

func (m *Manager) cached() *oauth2.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == nil || !m.now().Before(m.token.Expiry) {
		return nil
	}
	tok := *m.token
	return &tok
}

func (m *Manager) set(tok *oauth2.Token) {
	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()
}

// loadPersistedLocked consults the store once per process so a restart
// within the token lifetime does not force a refresh.
func (m *Manager) loadPersistedLocked(ctx context.Context) *oauth2.Token {
	if m.loaded {
		return nil
	}
	m.loaded = true

	value, expiresAt, err := m.store.AccessToken(ctx)
	if err != nil {
		log.Printf("⚠️ %sFailed to read persisted access token: %v", logging.Tag(ctx), err)
		return nil
	}
	if value == "" || !m.now().Before(expiresAt) {
		return nil
	}
	tok := &oauth2.Token{AccessToken: value, TokenType: TokenType, Expiry: expiresAt}
	m.set(tok)
	log.Printf("📦 %sLoaded persisted access token %s (expires: %s)", logging.Tag(ctx), maskToken(value), expiresAt.Format(time.RFC3339))
	copied := *tok
	return &copied
}

type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   json.RawMessage `json:"expires_in"`
	Error       string          `json:"error"`
}

func (m *Manager) refreshLocked(ctx context.Context) (*oauth2.Token, error) {
	tok, err := m.refresh(ctx)
	m.metrics.RecordTokenRefresh(err == nil)
	if err != nil {
		log.Printf("❌ %sZoho token refresh failed: %v", logging.Tag(ctx), err)
		return nil, err
	}
	m.set(tok)

	if err := m.store.SaveAccessToken(ctx, tok.AccessToken, tok.Expiry); err != nil {
		log.Printf("⚠️ %sFailed to persist refreshed token: %v", logging.Tag(ctx), err)
	}
	log.Printf("✅ %sRefreshed Zoho access token %s (expires: %s)", logging.Tag(ctx), maskToken(tok.AccessToken), tok.Expiry.Format(time.RFC3339))

	copied := *tok
	return &copied, nil
}

func (m *Manager) refresh(ctx context.Context) (*oauth2.Token, error) {
	creds, err := m.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if !creds.CanRefresh() {
		return nil, ErrNoCredentials
	}

	endpoint, err := url.Parse(TokenURL(m.accountsURL, creds.APIDomain))
	if err != nil {
		return nil, apierr.Configuration("invalid accounts url: " + err.Error())
	}
	endpoint.RawQuery = url.Values{
		"refresh_token": {creds.RefreshToken},
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
		"grant_type":    {"refresh_token"},
	}.Encode()

	log.Printf("🔄 %sRefreshing Zoho access token via %s", logging.Tag(ctx), endpoint.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token refresh: %v", apierr.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read token response: %v", apierr.ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: token endpoint returned %d: %s", apierr.ErrAuth, resp.StatusCode, util.TruncateBody(body))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode token response: %v", apierr.ErrAuth, err)
	}
	if parsed.AccessToken == "" {
		reason := parsed.Error
		if reason == "" {
			reason = "access_token missing"
		}
		return nil, fmt.Errorf("%w: token endpoint: %s", apierr.ErrAuth, reason)
	}

	ttl := parseTTL(parsed.ExpiresIn)
	return &oauth2.Token{
		AccessToken: parsed.AccessToken,
		TokenType:   TokenType,
		Expiry:      m.now().Add(ttl - SkewMargin),
	}, nil
}

// parseTTL accepts expires_in as a number or numeric string (seconds).
func parseTTL(raw json.RawMessage) time.Duration {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" {
		return defaultTTL
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs <= 0 {
		return defaultTTL
	}
	return time.Duration(secs * float64(time.Second))
}

// TokenURL returns the OAuth token endpoint. An explicit accounts URL wins;
// otherwise the region is taken from the API domain
// (https://www.zohoapis.eu -> https://accounts.zoho.eu).
func TokenURL(accountsURL, apiDomain string) string {
	if accountsURL = strings.TrimRight(strings.TrimSpace(accountsURL), "/"); accountsURL != "" {
		return accountsURL + "/oauth/v2/token"
	}
	return "https://accounts.zoho." + regionSuffix(apiDomain) + "/oauth/v2/token"
}

func regionSuffix(apiDomain string) string {
	host := apiDomain
	if u, err := url.Parse(apiDomain); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ToLower(host)
	if i := strings.Index(host, "zohoapis."); i >= 0 {
		if suffix := host[i+len("zohoapis."):]; suffix != "" {
			return suffix
		}
	}
	return "com"
}

func maskToken(t string) string {
	if len(t) < 20 {
		return util.MaskSecret(t)
	}
	return "..." + t[len(t)-8:]
}
