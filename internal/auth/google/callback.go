package google

import (
	"fmt"
	"html"
	"log"
	"net/http"
)

// HandleCallback exchanges the authorization code and saves the token file.
func (f *Flow) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("state") != f.state {
		http.Error(w, "Invalid state token", http.StatusBadRequest)
		return
	}
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		http.Error(w, "Authorization denied: "+errParam, http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	cfg, err := f.load(callbackURL(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
		return
	}
	token, err := cfg.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, fmt.Sprintf("Token exchange failed: %v", err), http.StatusBadGateway)
		return
	}
	if err := f.tokens.Save(token); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save token: %v", err), http.StatusInternalServerError)
		return
	}
	log.Printf("✅ Google Calendar authorized, token saved to %s", f.tokens.Path)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Google Calendar connected</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; }
		.success { color: #4ade80; }
		code { background: #374151; padding: 2px 6px; border-radius: 4px; color: #fbbf24; }
	</style>
</head>
<body>
	<h1 class="success">✅ Google Calendar connected</h1>
	<p>Token saved to <code>%s</code>. You can close this window.</p>
</body>
</html>`, html.EscapeString(f.tokens.Path))
}
