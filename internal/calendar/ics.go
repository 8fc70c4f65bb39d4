package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/calendarlogger/calendar-logger/internal/config"
	"github.com/calendarlogger/calendar-logger/internal/util"
	"github.com/calendarlogger/calendar-logger/internal/version"
	"github.com/teambition/rrule-go"
)

const (
	icsFetchTimeout = 15 * time.Second
	icsMaxBody      = 10 << 20
	// maxOccurrences caps one recurring event's expansion inside a window.
	maxOccurrences = 1000
)

// ICSSource is a subscribed iCalendar feed.
type ICSSource struct {
	id     string
	name   string
	url    string
	client *http.Client
}

// NewICSSource creates a source for cfg. A nil client gets a 15s timeout.
func NewICSSource(cfg config.ICSConfig, client *http.Client) *ICSSource {
	if client == nil {
		client = &http.Client{Timeout: icsFetchTimeout}
	}
	name := cfg.Name
	if name == "" {
		name = cfg.ID
	}
	return &ICSSource{id: cfg.ID, name: name, url: cfg.URL, client: client}
}

func (s *ICSSource) Name() string { return s.name }

// Events fetches the feed and expands it into [start, end).
func (s *ICSSource) Events(ctx context.Context, start, end time.Time) ([]Event, error) {
	body, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := parseFeed(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.name, err)
	}
	events := expandFeed(s.id, parsed, start, end)
	log.Printf("📅 ICS %s: %d events in window (%d VEVENTs)", s.name, len(events), len(parsed))
	return events, nil
}

func (s *ICSSource) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("ics %s: %w", s.name, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "text/calendar")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ics %s (%s): %w", s.name, redactURL(s.url), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, icsMaxBody))
	if err != nil {
		return nil, fmt.Errorf("read ics %s: %w", s.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ics %s: status %d: %s", s.name, resp.StatusCode, util.TruncateBody(body))
	}
	return body, nil
}

// redactURL drops the query, which often carries a private feed token.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

type icsEvent struct {
	UID          string
	Summary      string
	Description  string
	Start        time.Time
	End          time.Time
	AllDay       bool
	RRule        string
	ExDates      []time.Time
	RecurrenceID *time.Time
}

func parseFeed(body []byte) ([]icsEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]icsEvent, 0)
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			log.Printf("⚠️ Skipping VEVENT: %v", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (icsEvent, error) {
	var out icsEvent
	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, fmt.Errorf("%s: missing DTSTART", out.UID)
	}
	out.AllDay = isDateValue(dtStart)

	var err error
	if out.AllDay {
		out.Start, err = ve.GetAllDayStartAt()
	} else {
		out.Start, err = ve.GetStartAt()
	}
	if err != nil {
		return out, fmt.Errorf("%s: DTSTART: %w", out.UID, err)
	}

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) == nil && out.AllDay:
		out.End = out.Start.AddDate(0, 0, 1)
	case ve.GetProperty(ical.ComponentPropertyDtEnd) == nil:
		out.End = out.Start
	case out.AllDay:
		out.End, err = ve.GetAllDayEndAt()
	default:
		out.End, err = ve.GetEndAt()
	}
	if err != nil {
		return out, fmt.Errorf("%s: DTEND: %w", out.UID, err)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, tzParam(p), out.Start.Location()); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, err := parseICSTime(p.Value, tzParam(p), out.Start.Location()); err == nil {
			out.RecurrenceID = &t
		}
	}
	return out, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func tzParam(p *ical.IANAProperty) string {
	if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
		return tz[0]
	}
	return ""
}

// parseICSTime parses DATE / DATE-TIME / UTC values. Floating values use
// fallback unless tzid names a known zone.
func parseICSTime(v, tzid string, fallback *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	loc := fallback
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// expandFeed turns parsed VEVENTs into concrete events overlapping
// [start, end). RECURRENCE-ID overrides replace the matching occurrence.
func expandFeed(sourceID string, parsed []icsEvent, start, end time.Time) []Event {
	overridden := make(map[string]bool)
	for _, ev := range parsed {
		if ev.RecurrenceID != nil {
			overridden[occurrenceKey(ev.UID, *ev.RecurrenceID)] = true
		}
	}

	loc := start.Location()
	var out []Event
	for _, ev := range parsed {
		if ev.RRule == "" || ev.RecurrenceID != nil {
			if overlaps(ev.Start, ev.End, start, end) || (ev.Start.Equal(ev.End) && !ev.Start.Before(start) && ev.Start.Before(end)) {
				out = append(out, ev.instance(sourceID, ev.Start, ev.End, loc))
			}
			continue
		}

		rule, err := rrule.StrToRRule(ev.RRule)
		if err != nil {
			log.Printf("⚠️ ICS %s: bad RRULE %q: %v", ev.UID, ev.RRule, err)
			continue
		}
		rule.DTStart(ev.Start)
		var set rrule.Set
		set.RRule(rule)
		for _, ex := range ev.ExDates {
			set.ExDate(ex.In(ev.Start.Location()))
		}

		dur := ev.End.Sub(ev.Start)
		// Occurrences that began before the window may still overlap it.
		from := start.Add(-dur).In(ev.Start.Location())
		to := end.In(ev.Start.Location())
		occurrences := set.Between(from, to, true)
		if len(occurrences) > maxOccurrences {
			log.Printf("⚠️ ICS %s: %d occurrences, keeping %d", ev.UID, len(occurrences), maxOccurrences)
			occurrences = occurrences[:maxOccurrences]
		}
		for _, occStart := range occurrences {
			if overridden[occurrenceKey(ev.UID, occStart)] {
				continue
			}
			occEnd := occStart.Add(dur)
			if !overlaps(occStart, occEnd, start, end) && !(dur == 0 && !occStart.Before(start) && occStart.Before(end)) {
				continue
			}
			out = append(out, ev.instance(sourceID, occStart, occEnd, loc))
		}
	}
	return out
}

func occurrenceKey(uid string, t time.Time) string {
	return uid + "@" + strconv.FormatInt(t.Unix(), 10)
}

func (ev icsEvent) instance(sourceID string, start, end time.Time, loc *time.Location) Event {
	title := ev.Summary
	if title == "" {
		title = "(no title)"
	}
	return Event{
		ID:          fmt.Sprintf("ics-%s-%s-%d", sourceID, ev.UID, start.Unix()),
		Source:      sourceID,
		Title:       title,
		Description: ev.Description,
		Start:       start.In(loc),
		End:         end.In(loc),
		AllDay:      ev.AllDay,
		ReadOnly:    true,
	}
}
