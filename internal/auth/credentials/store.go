// Package credentials supplies Zoho credentials to the token manager and
// persists the refreshed access token.
package credentials

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/db"
	"github.com/calendarlogger/calendar-logger/internal/util"
	"gorm.io/gorm"
)

// Setting keys in the settings table.
const (
	KeyClientID        = "zoho_client_id"
	KeyClientSecret    = "zoho_client_secret"
	KeyRefreshToken    = "zoho_refresh_token"
	KeyAPIDomain       = "zoho_api_domain"
	KeyPortalID        = "zoho_portal_id"
	KeyEmail           = "zoho_email"
	KeyAccessToken     = "zoho_access_token"
	KeyAccessExpiresAt = "zoho_access_token_expires_at"
)

// Credentials are the long-lived Zoho settings.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	APIDomain    string `json:"api_domain"`
	PortalID     string `json:"portal_id"`
	Email        string `json:"email"`
}

// CanRefresh reports whether the OAuth refresh fields are present.
func (c Credentials) CanRefresh() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// Masked returns a copy safe to show in the UI.
func (c Credentials) Masked() Credentials {
	c.ClientSecret = util.MaskSecret(c.ClientSecret)
	c.RefreshToken = util.MaskSecret(c.RefreshToken)
	return c
}

// Normalize trims whitespace and a trailing slash on the API domain.
func (c Credentials) Normalize() Credentials {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.RefreshToken = strings.TrimSpace(c.RefreshToken)
	c.APIDomain = strings.TrimRight(strings.TrimSpace(c.APIDomain), "/")
	c.PortalID = strings.TrimSpace(c.PortalID)
	c.Email = strings.TrimSpace(c.Email)
	return c
}

// Store reads credentials and persists the access token.
type Store interface {
	Get(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, c Credentials) error
	AccessToken(ctx context.Context) (value string, expiresAt time.Time, err error)
	SaveAccessToken(ctx context.Context, value string, expiresAt time.Time) error
}

// DBStore keeps credentials in the settings table.
type DBStore struct {
	db *gorm.DB
}

// NewDBStore wraps database.
func NewDBStore(database *gorm.DB) *DBStore {
	return &DBStore{db: database}
}

func (s *DBStore) Get(ctx context.Context) (Credentials, error) {
	values, err := db.GetSettings(s.db.WithContext(ctx),
		KeyClientID, KeyClientSecret, KeyRefreshToken, KeyAPIDomain, KeyPortalID, KeyEmail)
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return Credentials{
		ClientID:     values[KeyClientID],
		ClientSecret: values[KeyClientSecret],
		RefreshToken: values[KeyRefreshToken],
		APIDomain:    values[KeyAPIDomain],
		PortalID:     values[KeyPortalID],
		Email:        values[KeyEmail],
	}, nil
}

func (s *DBStore) Save(ctx context.Context, c Credentials) error {
	c = c.Normalize()
	err := db.SetSettings(s.db.WithContext(ctx), map[string]string{
		KeyClientID:     c.ClientID,
		KeyClientSecret: c.ClientSecret,
		KeyRefreshToken: c.RefreshToken,
		KeyAPIDomain:    c.APIDomain,
		KeyPortalID:     c.PortalID,
		KeyEmail:        c.Email,
	})
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *DBStore) AccessToken(ctx context.Context) (string, time.Time, error) {
	values, err := db.GetSettings(s.db.WithContext(ctx), KeyAccessToken, KeyAccessExpiresAt)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("load access token: %w", err)
	}
	var expiresAt time.Time
	if raw := values[KeyAccessExpiresAt]; raw != "" {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			expiresAt = time.Unix(unix, 0)
		}
	}
	return values[KeyAccessToken], expiresAt, nil
}

func (s *DBStore) SaveAccessToken(ctx context.Context, value string, expiresAt time.Time) error {
	err := db.SetSettings(s.db.WithContext(ctx), map[string]string{
		KeyAccessToken:     value,
		KeyAccessExpiresAt: strconv.FormatInt(expiresAt.Unix(), 10),
	})
	if err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	return nil
}

// EnvStore overlays ZOHO_* environment variables on another store. Set
// variables win over stored values; writes go to the underlying store.
type EnvStore struct {
	Store
	getenv func(string) string
}

// NewEnvStore wraps base.
func NewEnvStore(base Store) *EnvStore {
	return &EnvStore{Store: base, getenv: os.Getenv}
}

func (s *EnvStore) Get(ctx context.Context) (Credentials, error) {
	c, err := s.Store.Get(ctx)
	if err != nil {
		return Credentials{}, err
	}
	overlay := func(dst *string, key string) {
		if v := strings.TrimSpace(s.getenv(key)); v != "" {
			*dst = v
		}
	}
	overlay(&c.ClientID, "ZOHO_CLIENT_ID")
	overlay(&c.ClientSecret, "ZOHO_CLIENT_SECRET")
	overlay(&c.RefreshToken, "ZOHO_REFRESH_TOKEN")
	overlay(&c.APIDomain, "ZOHO_API_DOMAIN")
	overlay(&c.PortalID, "ZOHO_PORTAL_ID")
	overlay(&c.Email, "ZOHO_EMAIL")
	return c.Normalize(), nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	creds     Credentials
	token     string
	expiresAt time.Time
	saves     int
}

// NewMemoryStore returns a MemoryStore holding c.
func NewMemoryStore(c Credentials) *MemoryStore {
	return &MemoryStore{creds: c}
}

func (s *MemoryStore) Get(context.Context) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, nil
}

func (s *MemoryStore) Save(_ context.Context, c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = c.Normalize()
	return nil
}

func (s *MemoryStore) AccessToken(context.Context) (string, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.expiresAt, nil
}

func (s *MemoryStore) SaveAccessToken(_ context.Context, value string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = value
	s.expiresAt = expiresAt
	s.saves++
	return nil
}

// TokenSaves reports how many times SaveAccessToken was called.
func (s *MemoryStore) TokenSaves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
