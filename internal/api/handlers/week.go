package handlers

import (
	"net/http"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/calendar"
)

// WeekHandler returns the merged week containing ?start=YYYY-MM-DD, or the
// current week.
func WeekHandler(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := time.Now().In(svc.Location())
		if raw := r.URL.Query().Get("start"); raw != "" {
			t, err := parseDate(raw, svc.Location())
			if err != nil {
				writeError(w, r, err)
				return
			}
			ref = t
		}
		week, err := svc.Week(r.Context(), ref)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, week)
	}
}
