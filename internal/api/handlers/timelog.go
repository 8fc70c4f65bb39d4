package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/db"
	"github.com/calendarlogger/calendar-logger/internal/logging"
	"github.com/calendarlogger/calendar-logger/internal/zoho"
)

type logRequest struct {
	PortalID   string  `json:"portal_id"`
	ProjectID  string  `json:"project_id"`
	TaskID     string  `json:"task_id"`
	Notes      *string `json:"notes,omitempty"`
	BillStatus string  `json:"bill_status,omitempty"`
}

// TimeLogger is the facade call the log handler needs.
type TimeLogger interface {
	LogTime(ctx context.Context, entry zoho.TimeLogEntry) zoho.LogResult
}

// LogEventHandler submits a finished local event as a Zoho time log and
// marks it logged once Zoho accepted it. Notes default to the event
// description. The event is claimed before Zoho is called, so concurrent
// requests for one event submit a single time log.
func LogEventHandler(store *db.EventStore, logger TimeLogger, loc *time.Location, billStatus string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req logRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if req.ProjectID == "" || req.TaskID == "" {
			writeError(w, r, badRequest("project_id and task_id are required"))
			return
		}

		ev, err := store.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if ev.IsLogged {
			writeError(w, r, db.ErrEventLogged)
			return
		}
		if ev.EndTime.After(time.Now()) {
			writeError(w, r, badRequest("event %d has not ended yet", id))
			return
		}
		if err := store.ClaimForLogging(r.Context(), id, time.Now()); err != nil {
			writeError(w, r, err)
			return
		}
		// Released unless Zoho accepted the entry.
		keepClaim := false
		defer func() {
			if keepClaim {
				return
			}
			if err := store.ReleaseLogClaim(context.WithoutCancel(r.Context()), id); err != nil {
				log.Printf("⚠️ %sFailed to release log claim on event %d: %v", logging.Tag(r.Context()), id, err)
			}
		}()
		// Re-read under the claim; edits are refused from here on.
		if ev, err = store.Get(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}

		notes := ev.Description
		if req.Notes != nil {
			notes = *req.Notes
		}
		bill := billStatus
		if req.BillStatus != "" {
			bill = req.BillStatus
		}
		entry := zoho.NewTimeLogEntry(ev.Name, notes, ev.StartTime.In(loc), ev.EndTime.In(loc), bill)
		entry.PortalID = req.PortalID
		entry.ProjectID = req.ProjectID
		entry.TaskID = req.TaskID

		res := logger.LogTime(r.Context(), entry)
		if !res.Success {
			writeError(w, r, res.Err)
			return
		}
		keepClaim = true

		if err := store.MarkLogged(context.WithoutCancel(r.Context()), id, req.PortalID, req.ProjectID, req.TaskID, time.Now()); err != nil {
			log.Printf("⚠️ %sEvent %d logged to Zoho but not marked locally: %v", logging.Tag(r.Context()), id, err)
			writeError(w, r, err)
			return
		}
		updated, err := store.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": res.Message,
			"event":   updated,
		})
	}
}
