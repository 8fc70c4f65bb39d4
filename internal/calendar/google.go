package calendar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/apierr"
	"github.com/calendarlogger/calendar-logger/internal/config"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// SourceGoogle names events from Google Calendar.
const SourceGoogle = "google"

// TokenSourceFunc returns the Google token source, or an error wrapping
// os.ErrNotExist when the calendar has not been authorized yet.
type TokenSourceFunc func(ctx context.Context) (oauth2.TokenSource, error)

// GoogleSource reads one Google calendar.
type GoogleSource struct {
	calendarID string
	maxResults int64
	tokens     TokenSourceFunc
	opts       []option.ClientOption
}

// NewGoogleSource creates a source for cfg. opts are appended to the client
// options (tests point them at a fake endpoint).
func NewGoogleSource(cfg config.GoogleConfig, tokens TokenSourceFunc, opts ...option.ClientOption) *GoogleSource {
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}
	return &GoogleSource{calendarID: calendarID, maxResults: maxResults, tokens: tokens, opts: opts}
}

func (s *GoogleSource) Name() string { return SourceGoogle }

// Events lists single (expanded) events between start and end ordered by
// start time.
func (s *GoogleSource) Events(ctx context.Context, start, end time.Time) ([]Event, error) {
	ts, err := s.tokens(ctx)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apierr.Configuration("google calendar not authorized, open /auth/google/login")
	}
	if err != nil {
		return nil, err
	}

	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, s.opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	res, err := svc.Events.List(s.calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		MaxResults(s.maxResults).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list google events: %w", err)
	}

	loc := start.Location()
	events := make([]Event, 0, len(res.Items))
	for _, item := range res.Items {
		if item.Status == "cancelled" {
			continue
		}
		ev, ok := fromGoogle(item, loc)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func fromGoogle(item *gcal.Event, loc *time.Location) (Event, bool) {
	start, allDay, ok := googleTime(item.Start, loc)
	if !ok {
		return Event{}, false
	}
	end, _, ok := googleTime(item.End, loc)
	if !ok {
		end = start
	}
	title := item.Summary
	if title == "" {
		title = "(no title)"
	}
	return Event{
		ID:          SourceGoogle + "-" + item.Id,
		Source:      SourceGoogle,
		Title:       title,
		Description: item.Description,
		Start:       start,
		End:         end,
		AllDay:      allDay,
		ReadOnly:    true,
	}, true
}

func googleTime(dt *gcal.EventDateTime, loc *time.Location) (time.Time, bool, bool) {
	if dt == nil {
		return time.Time{}, false, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false, false
		}
		return t.In(loc), false, true
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", dt.Date, loc)
		if err != nil {
			return time.Time{}, false, false
		}
		return t, true, true
	}
	return time.Time{}, false, false
}
