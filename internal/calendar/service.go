package calendar

import (
	"context"
	"fmt"
	"html"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/config"
	"github.com/calendarlogger/calendar-logger/internal/db/models"
	"github.com/microcosm-cc/bluemonday"
)

// SlotMinutes is the height of one grid row.
const SlotMinutes = 30

// LocalStore is the part of the event store the week view reads.
type LocalStore interface {
	ListInRange(ctx context.Context, start, end time.Time) ([]models.Event, error)
}

// HoursFunc returns stored overrides of the visible hours, if any.
type HoursFunc func(ctx context.Context) (startHour, endHour int, ok bool)

// Placement is an event positioned on the week grid.
type Placement struct {
	Event
	Day    int  `json:"day"`
	Row    int  `json:"row"`
	Slots  int  `json:"slots"`
	Hidden bool `json:"hidden"`
}

// Day is one column of the grid.
type Day struct {
	Date  time.Time `json:"date"`
	Label string    `json:"label"`
}

// Week is the merged view of one week.
type Week struct {
	Start     time.Time   `json:"start"`
	End       time.Time   `json:"end"`
	StartHour int         `json:"start_hour"`
	EndHour   int         `json:"end_hour"`
	Days      []Day       `json:"days"`
	Events    []Placement `json:"events"`
	Warnings  []string    `json:"warnings,omitempty"`
}

// Service builds week views.
type Service struct {
	local     LocalStore
	sources   []Source
	cfg       config.CalendarConfig
	loc       *time.Location
	hours     HoursFunc
	sanitizer *bluemonday.Policy
}

// NewService creates a Service. hours may be nil.
func NewService(local LocalStore, sources []Source, cfg config.CalendarConfig, loc *time.Location, hours HoursFunc) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		local:     local,
		sources:   sources,
		cfg:       cfg,
		loc:       loc,
		hours:     hours,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Location returns the display time zone.
func (s *Service) Location() *time.Location { return s.loc }

// WeekStart returns Monday 00:00 of the week containing t.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Hours returns the visible hour window, preferring stored overrides.
func (s *Service) Hours(ctx context.Context) (int, int) {
	start, end := s.cfg.StartHour, s.cfg.EndHour
	if s.hours != nil {
		if hs, he, ok := s.hours(ctx); ok && hs >= 0 && he <= 24 && hs < he {
			start, end = hs, he
		}
	}
	return start, end
}

type sourceResult struct {
	name   string
	events []Event
	err    error
}

// Week merges local events with every external source for the week that
// contains ref. A failing source adds a warning instead of failing the view.
func (s *Service) Week(ctx context.Context, ref time.Time) (*Week, error) {
	start := WeekStart(ref.In(s.loc))
	days := s.cfg.Days
	if days <= 0 {
		days = 5
	}
	end := start.AddDate(0, 0, days)
	startHour, endHour := s.Hours(ctx)

	results := make(chan sourceResult, len(s.sources))
	for _, src := range s.sources {
		go func(src Source) {
			events, err := src.Events(ctx, start, end)
			results <- sourceResult{name: src.Name(), events: events, err: err}
		}(src)
	}

	local, err := s.local.ListInRange(ctx, start, end.Add(-time.Nanosecond))
	if err != nil {
		return nil, fmt.Errorf("list local events: %w", err)
	}

	week := &Week{Start: start, End: end, StartHour: startHour, EndHour: endHour}
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		week.Days = append(week.Days, Day{Date: d, Label: d.Format("Monday 02")})
	}

	merged := make([]Event, 0, len(local))
	for _, e := range local {
		merged = append(merged, FromLocal(e, s.loc))
	}
	for range s.sources {
		res := <-results
		if res.err != nil {
			log.Printf("⚠️ Calendar source %s failed: %v", res.name, res.err)
			week.Warnings = append(week.Warnings, fmt.Sprintf("%s: %v", res.name, res.err))
			continue
		}
		for _, e := range res.events {
			e.Description = s.PlainText(e.Description)
			e.ReadOnly = true
			merged = append(merged, e)
		}
	}
	sort.Strings(week.Warnings)
	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Start.Equal(merged[j].Start) {
			return merged[i].Start.Before(merged[j].Start)
		}
		return merged[i].Title < merged[j].Title
	})

	for _, e := range merged {
		week.Events = append(week.Events, Place(e, start, days, startHour, endHour))
	}
	return week, nil
}

// PlainText strips markup from external descriptions.
func (s *Service) PlainText(desc string) string {
	if desc == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(desc)))
}

// RowFor returns the grid row of t: two rows per hour from startHour.
func RowFor(t time.Time, startHour int) int {
	row := (t.Hour() - startHour) * 2
	if t.Minute() >= SlotMinutes {
		row++
	}
	return row
}

// SlotsFor returns how many rows d covers, at least one.
func SlotsFor(d time.Duration) int {
	minutes := int(d.Round(time.Minute) / time.Minute)
	slots := (minutes + SlotMinutes - 1) / SlotMinutes
	if slots < 1 {
		slots = 1
	}
	return slots
}

// Place positions e on a grid starting at weekStart. Events outside the
// visible days or hours, and all-day events, are Hidden.
func Place(e Event, weekStart time.Time, days, startHour, endHour int) Placement {
	start := e.Start.In(weekStart.Location())
	day := daysBetween(weekStart, start)
	p := Placement{
		Event: e,
		Day:   day,
		Row:   RowFor(start, startHour),
		Slots: SlotsFor(e.Duration()),
	}
	rows := (endHour - startHour) * 2
	p.Hidden = e.AllDay || p.Day < 0 || p.Day >= days || p.Row < 0 || p.Row >= rows
	return p
}

// TimeForSlot is the inverse of Place: the start time of (day, row).
func TimeForSlot(weekStart time.Time, day, row, startHour int) time.Time {
	d := weekStart.AddDate(0, 0, day)
	return time.Date(d.Year(), d.Month(), d.Day(), startHour, 0, 0, 0, d.Location()).Add(time.Duration(row*SlotMinutes) * time.Minute)
}

// daysBetween counts calendar days from a to b in UTC so DST shifts do not
// skew the result.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
