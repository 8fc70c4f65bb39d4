package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/db"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *DBStore {
	t.Helper()
	database, err := gorm.Open(sqlite.Open("file:credentials_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewDBStore(database)
}

func TestDBStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Save(ctx, Credentials{
		ClientID:     " 1000.CLIENT ",
		ClientSecret: "secret-value",
		RefreshToken: "1000.refresh",
		APIDomain:    "https://www.zohoapis.eu/",
		PortalID:     "12345",
		Email:        "me@example.com",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ClientID != "1000.CLIENT" || got.APIDomain != "https://www.zohoapis.eu" {
		t.Fatalf("credentials not normalized: %+v", got)
	}
	if !got.CanRefresh() {
		t.Fatal("expected CanRefresh() to be true")
	}
}

func TestDBStore_AccessTokenRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	value, exp, err := store.AccessToken(ctx)
	if err != nil || value != "" || !exp.IsZero() {
		t.Fatalf("expected empty token, got %q %v err=%v", value, exp, err)
	}

	expiresAt := time.Unix(1_800_000_000, 0)
	if err := store.SaveAccessToken(ctx, "1000.access", expiresAt); err != nil {
		t.Fatalf("SaveAccessToken: %v", err)
	}
	value, exp, err = store.AccessToken(ctx)
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if value != "1000.access" || !exp.Equal(expiresAt) {
		t.Fatalf("unexpected token %q %v", value, exp)
	}
}

func TestEnvStore_OverridesStoredValues(t *testing.T) {
	base := NewMemoryStore(Credentials{ClientID: "stored", APIDomain: "https://www.zohoapis.com", Email: "stored@example.com"})
	env := map[string]string{
		"ZOHO_CLIENT_ID": "from-env",
		"ZOHO_EMAIL":     "  env@example.com ",
	}
	store := &EnvStore{Store: base, getenv: func(k string) string { return env[k] }}

	got, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ClientID != "from-env" || got.Email != "env@example.com" {
		t.Fatalf("env overlay not applied: %+v", got)
	}
	if got.APIDomain != "https://www.zohoapis.com" {
		t.Fatalf("stored value lost: %+v", got)
	}
}

func TestMasked(t *testing.T) {
	c := Credentials{ClientSecret: "abcdefghijkl", RefreshToken: "1000.xyz-refresh-9876"}.Masked()
	if c.ClientSecret != "****ijkl" || c.RefreshToken != "****9876" {
		t.Fatalf("unexpected masking: %+v", c)
	}
}
