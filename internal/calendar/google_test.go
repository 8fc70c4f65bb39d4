package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/calendarlogger/calendar-logger/internal/apierr"
	"github.com/calendarlogger/calendar-logger/internal/config"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func staticTokens(context.Context) (oauth2.TokenSource, error) {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "g-token"}), nil
}

func TestGoogleSource_ListsEvents(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[
			{"id":"a","summary":"Design review","description":"<i>agenda</i>","status":"confirmed",
			 "start":{"dateTime":"2025-03-04T10:00:00Z"},"end":{"dateTime":"2025-03-04T11:00:00Z"}},
			{"id":"b","summary":"Cancelled","status":"cancelled",
			 "start":{"dateTime":"2025-03-04T12:00:00Z"},"end":{"dateTime":"2025-03-04T13:00:00Z"}},
			{"id":"c","summary":"Holiday","status":"confirmed",
			 "start":{"date":"2025-03-05"},"end":{"date":"2025-03-06"}}
		]}`)
	}))
	defer srv.Close()

	src := NewGoogleSource(config.GoogleConfig{}, staticTokens,
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	events, err := src.Events(context.Background(), windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}

	if !strings.HasSuffix(gotPath, "/calendars/primary/events") {
		t.Errorf("path = %s", gotPath)
	}
	for k, want := range map[string]string{"singleEvents": "true", "orderBy": "startTime", "maxResults": "50", "timeMin": "2025-03-03T00:00:00Z"} {
		if gotQuery[k] != want {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], want)
		}
	}

	if len(events) != 2 {
		t.Fatalf("expected cancelled event skipped, got %d events", len(events))
	}
	review, holiday := events[0], events[1]
	if review.ID != "google-a" || review.Source != SourceGoogle || !review.ReadOnly || review.Duration().Hours() != 1 {
		t.Errorf("unexpected event %+v", review)
	}
	if !holiday.AllDay || holiday.Start.Day() != 5 || holiday.End.Day() != 6 {
		t.Errorf("unexpected all-day event %+v", holiday)
	}
}

func TestGoogleSource_NotAuthorized(t *testing.T) {
	src := NewGoogleSource(config.GoogleConfig{}, func(context.Context) (oauth2.TokenSource, error) {
		return nil, fmt.Errorf("load token: %w", os.ErrNotExist)
	})
	_, err := src.Events(context.Background(), windowStart, windowEnd)
	if !errors.Is(err, apierr.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGoogleSource_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	src := NewGoogleSource(config.GoogleConfig{CalendarID: "team@example.com"}, staticTokens,
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if _, err := src.Events(context.Background(), windowStart, windowEnd); err == nil {
		t.Fatal("expected error")
	}
}
