package google

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/calendarlogger/calendar-logger/internal/config"
	"golang.org/x/oauth2"
)

// Flow drives the authorization code flow for the calendar source, either
// through the local API (HandleLogin / HandleCallback) or a one-off loopback
// listener (AuthorizeLocal).
type Flow struct {
	tokens TokenFile
	state  string
	load   func(redirectURL string) (*oauth2.Config, error)
}

// NewFlow creates a Flow for cfg with a fresh CSRF state token.
func NewFlow(cfg config.GoogleConfig) *Flow {
	return &Flow{
		tokens: TokenFile{Path: cfg.TokenFile},
		state:  randomHex(16),
		load: func(redirectURL string) (*oauth2.Config, error) {
			return LoadConfig(cfg.CredentialsFile, redirectURL)
		},
	}
}

// Tokens returns the token file the flow writes.
func (f *Flow) Tokens() TokenFile { return f.tokens }

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// isPrivateIP checks if the host is a private/local IP address
func isPrivateIP(host string) bool {
	hostOnly := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostOnly = h
	}
	if hostOnly == "localhost" || hostOnly == "127.0.0.1" {
		return false
	}
	ip := net.ParseIP(hostOnly)
	if ip == nil {
		return false
	}
	return ip.IsPrivate()
}

func callbackURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/auth/google/callback", scheme, r.Host)
}

func (f *Flow) authOptions(host string) []oauth2.AuthCodeOption {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
	}
	// Google requires device_id and device_name for private IP addresses
	if isPrivateIP(host) {
		opts = append(opts,
			oauth2.SetAuthURLParam("device_id", randomHex(16)),
			oauth2.SetAuthURLParam("device_name", "calendar-logger"),
		)
	}
	return opts
}

// HandleLogin redirects to Google's consent page.
func (f *Flow) HandleLogin(w http.ResponseWriter, r *http.Request) {
	cfg, err := f.load(callbackURL(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
		return
	}
	http.Redirect(w, r, cfg.AuthCodeURL(f.state, f.authOptions(r.Host)...), http.StatusTemporaryRedirect)
}
