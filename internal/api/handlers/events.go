package handlers

import (
	"net/http"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/calendar"
	"github.com/calendarlogger/calendar-logger/internal/db"
	"github.com/calendarlogger/calendar-logger/internal/db/models"
)

type eventRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// ListEventsHandler returns local events, optionally limited to ?start=&end=
// (RFC 3339 or YYYY-MM-DD).
func ListEventsHandler(store *db.EventStore, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("start") == "" && q.Get("end") == "" {
			events, err := store.ListAll(r.Context())
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
			return
		}

		start, err := parseTimeParam(q.Get("start"), loc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		end, err := parseTimeParam(q.Get("end"), loc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		events, err := store.ListInRange(r.Context(), start, end)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
	}
}

// CreateEventHandler stores a new local event.
func CreateEventHandler(store *db.EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		ev := &models.Event{
			Name:        req.Name,
			Description: req.Description,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
		}
		if err := store.Create(r.Context(), ev); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, ev)
	}
}

// GetEventHandler returns one local event.
func GetEventHandler(store *db.EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ev, err := store.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// UpdateEventHandler rewrites a local event that has not been logged.
func UpdateEventHandler(store *db.EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req eventRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		ev, err := store.Update(r.Context(), id, req.Name, req.Description, req.StartTime, req.EndTime)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// DeleteEventHandler removes a local event that has not been logged.
func DeleteEventHandler(store *db.EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := store.Delete(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type moveRequest struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	WeekStart string     `json:"week_start,omitempty"`
	Day       *int       `json:"day,omitempty"`
	Row       *int       `json:"row,omitempty"`
}

// MoveEventHandler reschedules an event keeping its duration. The target is
// either start_time or a grid cell (week_start, day, row) as dropped in the
// week view.
func MoveEventHandler(store *db.EventStore, svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req moveRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		var start time.Time
		switch {
		case req.StartTime != nil:
			start = *req.StartTime
		case req.Day != nil && req.Row != nil:
			ref := time.Now().In(svc.Location())
			if req.WeekStart != "" {
				if ref, err = parseDate(req.WeekStart, svc.Location()); err != nil {
					writeError(w, r, err)
					return
				}
			}
			startHour, endHour := svc.Hours(r.Context())
			if *req.Row < 0 || *req.Row >= (endHour-startHour)*2 || *req.Day < 0 {
				writeError(w, r, badRequest("cell %d/%d is outside the grid", *req.Day, *req.Row))
				return
			}
			start = calendar.TimeForSlot(calendar.WeekStart(ref), *req.Day, *req.Row, startHour)
		default:
			writeError(w, r, badRequest("start_time or day and row are required"))
			return
		}

		ev, err := store.Move(r.Context(), id, start)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// ExportICSHandler serves every local event as an iCalendar feed.
func ExportICSHandler(store *db.EventStore, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := store.ListAll(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="calendar-logger.ics"`)
		w.Write([]byte(calendar.ExportICS(events, name, time.Now())))
	}
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, badRequest("invalid date %q, want YYYY-MM-DD", raw)
	}
	return t, nil
}

func parseTimeParam(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, badRequest("start and end are both required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return parseDate(raw, loc)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
