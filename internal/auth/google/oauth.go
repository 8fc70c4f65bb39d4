// Package google handles the OAuth authorization of the read-only Google
// Calendar source and persists its token file.
package google

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/calendarlogger/calendar-logger/internal/apierr"
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// Scopes requested for the calendar source.
var Scopes = []string{calendar.CalendarReadonlyScope}

// LoadConfig builds the OAuth config from the client secrets file downloaded
// from the Google console. Without the file it falls back to
// GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET.
func LoadConfig(credentialsFile, redirectURL string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	switch {
	case err == nil:
		cfg, err := googleOAuth.ConfigFromJSON(b, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", credentialsFile, err)
		}
		if redirectURL != "" {
			cfg.RedirectURL = redirectURL
		}
		return cfg, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", credentialsFile, err)
	}

	clientID := strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID"))
	clientSecret := strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET"))
	if clientID == "" || clientSecret == "" {
		return nil, apierr.Configuration(fmt.Sprintf("google client secrets file %s not found and GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set", credentialsFile))
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     googleOAuth.Endpoint,
	}, nil
}
