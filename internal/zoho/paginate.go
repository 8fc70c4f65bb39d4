package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/calendarlogger/calendar-logger/internal/apierr"
)

// PerPage is the fixed page size for list endpoints.
const PerPage = 100

// Extractor pulls one page of items out of a response body.
type Extractor[T any] func(body json.RawMessage) ([]T, error)

// FetchAll requests baseURL page by page (page=1,2,... with per_page=PerPage)
// and concatenates the batches in page order. It stops at the first empty or
// short page. Any failure aborts the whole fetch. There is no page cap: a
// server that always returns full pages keeps it looping.
func FetchAll[T any](ctx context.Context, r Requester, baseURL string, extract Extractor[T]) ([]T, error) {
	all := []T{}
	for page := 1; ; page++ {
		body, err := r.Do(ctx, http.MethodGet, pageURL(baseURL, page), nil)
		if err != nil {
			return nil, err
		}
		batch, err := extract(body)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		if len(batch) < PerPage {
			break
		}
	}
	return all, nil
}

func pageURL(baseURL string, page int) string {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(PerPage))
	return baseURL + sep + q.Encode()
}

// Items returns an Extractor that accepts either a bare JSON array or an
// object holding the array under key. A missing key or empty body is an
// empty batch.
func Items[T any](key string) Extractor[T] {
	return func(body json.RawMessage) ([]T, error) {
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return nil, nil
		}

		switch trimmed[0] {
		case '[':
			var items []T
			if err := json.Unmarshal(trimmed, &items); err != nil {
				return nil, apierr.Malformed("decode %s: %v", key, err)
			}
			return items, nil
		case '{':
			var wrapper map[string]json.RawMessage
			if err := json.Unmarshal(trimmed, &wrapper); err != nil {
				return nil, apierr.Malformed("decode %s: %v", key, err)
			}
			raw, ok := wrapper[key]
			if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
				return nil, nil
			}
			var items []T
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, apierr.Malformed("decode %s: %v", key, err)
			}
			return items, nil
		default:
			return nil, apierr.Malformed("expected array or object for %s", key)
		}
	}
}
