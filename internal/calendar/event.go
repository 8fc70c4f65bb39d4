// Package calendar merges local events with read-only external calendars into
// the week view, and converts between local events and iCalendar.
package calendar

import (
	"context"
	"strconv"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/db/models"
)

// SourceLocal marks events from the local store.
const SourceLocal = "local"

// Event is a provider-neutral calendar entry.
type Event struct {
	ID          string    `json:"id"`
	LocalID     uint      `json:"local_id,omitempty"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
	ReadOnly    bool      `json:"read_only"`
	Logged      bool      `json:"logged"`
}

// Duration returns End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Source is a read-only external calendar.
type Source interface {
	Name() string
	Events(ctx context.Context, start, end time.Time) ([]Event, error)
}

// FromLocal converts a stored event into loc.
func FromLocal(e models.Event, loc *time.Location) Event {
	return Event{
		ID:          "local-" + strconv.FormatUint(uint64(e.ID), 10),
		LocalID:     e.ID,
		Source:      SourceLocal,
		Title:       e.Name,
		Description: e.Description,
		Start:       e.StartTime.In(loc),
		End:         e.EndTime.In(loc),
		Logged:      e.IsLogged,
	}
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
