package google

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// CallbackTimeout is how long AuthorizeLocal waits for the browser.
const CallbackTimeout = 5 * time.Minute

type callbackResult struct {
	token *oauth2.Token
	err   error
}

// AuthorizeLocal runs the installed-app flow: it listens on a random loopback
// port, hands the consent URL to prompt and waits for Google to redirect
// back. The token is saved to the flow's token file.
func (f *Flow) AuthorizeLocal(ctx context.Context, prompt func(authURL string)) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/oauth-callback", port)
	log.Printf("[OAuth] Callback server listening on port %d", port)

	cfg, err := f.load(redirectURL)
	if err != nil {
		listener.Close()
		return nil, err
	}

	results := make(chan callbackResult, 1)
	var once sync.Once
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth-callback", func(w http.ResponseWriter, r *http.Request) {
		handled := false
		once.Do(func() {
			handled = true
			res := f.exchangeCallback(r, cfg)
			results <- res
			if res.err != nil {
				http.Error(w, res.err.Error(), http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Google Calendar connected. You can close this window.")
		})
		if !handled {
			http.Error(w, "Callback already processed", http.StatusBadRequest)
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[OAuth] Callback server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	prompt(cfg.AuthCodeURL(f.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	timer := time.NewTimer(CallbackTimeout)
	defer timer.Stop()
	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		if err := f.tokens.Save(res.token); err != nil {
			return nil, err
		}
		log.Printf("✅ Google Calendar authorized, token saved to %s", f.tokens.Path)
		return res.token, nil
	case <-timer.C:
		return nil, fmt.Errorf("timed out waiting for the OAuth callback after %s", CallbackTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Flow) exchangeCallback(r *http.Request, cfg *oauth2.Config) callbackResult {
	q := r.URL.Query()
	if q.Get("state") != f.state {
		return callbackResult{err: errors.New("invalid state token")}
	}
	if e := q.Get("error"); e != "" {
		return callbackResult{err: fmt.Errorf("authorization denied: %s", e)}
	}
	token, err := cfg.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		return callbackResult{err: fmt.Errorf("token exchange failed: %w", err)}
	}
	return callbackResult{token: token}
}
