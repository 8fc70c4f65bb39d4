package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// TokenFile is the on-disk Google token, written with 0600 permissions.
type TokenFile struct {
	Path string
}

// Exists reports whether the token file is present.
func (f TokenFile) Exists() bool {
	_, err := os.Stat(f.Path)
	return err == nil
}

// Load reads the token. A missing file returns an error wrapping os.ErrNotExist.
func (f TokenFile) Load() (*oauth2.Token, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read google token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode google token %s: %w", f.Path, err)
	}
	return &tok, nil
}

// Save writes tok atomically.
func (f TokenFile) Save(tok *oauth2.Token) error {
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write google token: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write google token: %w", err)
	}
	return nil
}

// TokenSource loads the stored token and returns a source that refreshes it
// through cfg, saving every new access token back to the file.
func (f TokenFile) TokenSource(ctx context.Context, cfg *oauth2.Config) (oauth2.TokenSource, error) {
	tok, err := f.Load()
	if err != nil {
		return nil, err
	}
	return &savingTokenSource{base: cfg.TokenSource(ctx, tok), file: f, last: tok.AccessToken}, nil
}

type savingTokenSource struct {
	base oauth2.TokenSource
	file TokenFile

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.file.Save(tok); err != nil {
			log.Printf("⚠️ Failed to save refreshed Google token: %v", err)
		} else {
			log.Printf("🔄 Google token refreshed and saved to %s", s.file.Path)
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
