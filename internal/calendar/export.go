package calendar

import (
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/calendarlogger/calendar-logger/internal/db/models"
	"github.com/google/uuid"
)

var uidNamespace = uuid.MustParse("6f1c2c6e-3a9b-4d0e-9a57-2f4c3f0b8d21")

// EventUID is the stable iCalendar UID of a local event.
func EventUID(id uint) string {
	return uuid.NewSHA1(uidNamespace, []byte("event-"+strconv.FormatUint(uint64(id), 10))).String() + "@calendar-logger"
}

// ExportICS renders local events as an iCalendar feed.
func ExportICS(events []models.Event, name string, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//calendar-logger//EN")
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, e := range events {
		ev := cal.AddEvent(EventUID(e.ID))
		ev.SetDtStampTime(now)
		if !e.CreatedAt.IsZero() {
			ev.SetCreatedTime(e.CreatedAt)
		}
		if !e.UpdatedAt.IsZero() {
			ev.SetModifiedAt(e.UpdatedAt)
		}
		ev.SetStartAt(e.StartTime)
		ev.SetEndAt(e.EndTime)
		ev.SetSummary(e.Name)
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if e.IsLogged {
			ev.SetProperty(ical.ComponentProperty("X-CALLOG-LOGGED"), "TRUE")
		}
	}
	return cal.Serialize()
}
