package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/apierr"
	"github.com/calendarlogger/calendar-logger/internal/logging"
	"github.com/calendarlogger/calendar-logger/internal/metrics"
	"github.com/calendarlogger/calendar-logger/internal/util"
	"github.com/calendarlogger/calendar-logger/internal/version"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// TokenSource supplies access tokens. *token.Manager implements it.
type TokenSource interface {
	ValidToken(ctx context.Context) (*oauth2.Token, error)
	ForceRefresh(ctx context.Context) (*oauth2.Token, error)
}

// Requester issues one authenticated call and returns the raw JSON body.
// A 2xx response with an empty body yields (nil, nil).
type Requester interface {
	Do(ctx context.Context, method, url string, body any) (json.RawMessage, error)
}

// Executor is the Requester backed by a TokenSource. On a 401 it forces one
// token refresh and retries exactly once.
type Executor struct {
	tokens     TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    metrics.Recorder
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorHTTPClient replaces the default client (30s timeout).
func WithExecutorHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) { e.httpClient = c }
}

// WithRequestsPerMinute throttles outgoing calls. n <= 0 disables throttling.
func WithRequestsPerMinute(n int) ExecutorOption {
	return func(e *Executor) {
		if n <= 0 {
			e.limiter = nil
			return
		}
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), max(1, n/10))
	}
}

// WithExecutorMetrics reports request outcomes to r.
func WithExecutorMetrics(r metrics.Recorder) ExecutorOption {
	return func(e *Executor) { e.metrics = metrics.OrNop(r) }
}

// NewExecutor creates an Executor.
func NewExecutor(tokens TokenSource, opts ...ExecutorOption) *Executor {
	e := &Executor{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		metrics:    metrics.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do performs method on url. GET requests carry no body; otherwise body is
// sent as JSON when non-nil.
func (e *Executor) Do(ctx context.Context, method, url string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil && method != http.MethodGet {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}

	tok, err := e.tokens.ValidToken(ctx)
	if err != nil {
		return nil, err
	}

	status, respBody, err := e.send(ctx, method, url, payload, tok)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		log.Printf("🔑 %s%s %s returned 401, forcing token refresh", logging.Tag(ctx), method, url)
		tok, err = e.tokens.ForceRefresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: token refresh failed: %w", apierr.ErrAuth, err)
		}
		status, respBody, err = e.send(ctx, method, url, payload, tok)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", apierr.ErrAuth, &apierr.RemoteError{StatusCode: status, Body: string(respBody)})
		}
	}

	if status < 200 || status > 299 {
		log.Printf("⚠️ %s%s %s returned %d: %s", logging.Tag(ctx), method, url, status, util.TruncateBody(respBody))
		return nil, &apierr.RemoteError{StatusCode: status, Body: string(respBody)}
	}

	trimmed := bytes.TrimSpace(respBody)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, apierr.Malformed("%s %s: body is not JSON: %s", method, url, util.TruncateBody(trimmed))
	}
	return json.RawMessage(trimmed), nil
}

func (e *Executor) send(ctx context.Context, method, url string, payload []byte, tok *oauth2.Token) (int, []byte, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("%w: rate limiter: %w", apierr.ErrNetwork, err)
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, apierr.Configuration("invalid request url: " + err.Error())
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.metrics.RecordNetworkError(method)
		log.Printf("❌ %s%s %s failed: %v", logging.Tag(ctx), method, url, err)
		return 0, nil, fmt.Errorf("%w: %s %s: %w", apierr.ErrNetwork, method, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.metrics.RecordNetworkError(method)
		return 0, nil, fmt.Errorf("%w: read response: %w", apierr.ErrNetwork, err)
	}
	e.metrics.RecordRequest(method, resp.StatusCode, time.Since(start))
	log.Printf("🌐 %s%s %s -> %d (%s)", logging.Tag(ctx), method, url, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	return resp.StatusCode, body, nil
}
