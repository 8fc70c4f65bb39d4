// Package api assembles the local HTTP API: the chi router, its middleware
// and the Google authorization routes.
package api

import (
	"net/http"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/api/handlers"
	"github.com/calendarlogger/calendar-logger/internal/api/middleware"
	"github.com/calendarlogger/calendar-logger/internal/auth/credentials"
	"github.com/calendarlogger/calendar-logger/internal/auth/google"
	"github.com/calendarlogger/calendar-logger/internal/calendar"
	"github.com/calendarlogger/calendar-logger/internal/db"
	"github.com/calendarlogger/calendar-logger/internal/zoho"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

// Deps are the services the router exposes.
type Deps struct {
	DB          *gorm.DB
	Events      *db.EventStore
	Calendar    *calendar.Service
	Zoho        *zoho.Client
	Credentials credentials.Store
	// OnZohoChange runs after Zoho settings are saved (reset caches, drop the token).
	OnZohoChange func()
	// Google is nil when the Google Calendar source is disabled.
	Google       *google.Flow
	Metrics      http.Handler
	BillStatus   string
	CalendarName string
}

// NewRouter builds the HTTP handler for d.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.OperationID)

	r.Get("/health", handlers.HealthHandler(d.DB))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	if d.Google != nil {
		r.Get("/auth/google/login", d.Google.HandleLogin)
		r.Get("/auth/google/callback", d.Google.HandleCallback)
	}

	loc := d.Calendar.Location()
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(d.DB))
		r.Use(chimiddleware.Timeout(2 * time.Minute))

		r.Get("/week", handlers.WeekHandler(d.Calendar))

		r.Get("/events", handlers.ListEventsHandler(d.Events, loc))
		r.Post("/events", handlers.CreateEventHandler(d.Events))
		r.Get("/events.ics", handlers.ExportICSHandler(d.Events, d.CalendarName))
		r.Get("/events/{id}", handlers.GetEventHandler(d.Events))
		r.Put("/events/{id}", handlers.UpdateEventHandler(d.Events))
		r.Delete("/events/{id}", handlers.DeleteEventHandler(d.Events))
		r.Post("/events/{id}/move", handlers.MoveEventHandler(d.Events, d.Calendar))
		r.Post("/events/{id}/log", handlers.LogEventHandler(d.Events, d.Zoho, loc, d.BillStatus))

		r.Get("/zoho/projects", handlers.ProjectsHandler(d.Zoho))
		r.Get("/zoho/projects/{project}/tasks", handlers.ProjectTasksHandler(d.Zoho))
		r.Get("/zoho/tasks", handlers.AllTasksHandler(d.Zoho))
		r.Get("/zoho/me", handlers.MeHandler(d.Zoho))
		r.Post("/zoho/cache/reset", handlers.ResetZohoCacheHandler(d.Zoho))

		r.Get("/settings", handlers.GetSettingsHandler(d.Credentials, d.Calendar))
		r.Put("/settings", handlers.UpdateSettingsHandler(d.DB, d.Credentials, d.Calendar, d.OnZohoChange))
		r.Get("/config/apikey", handlers.GetAPIKeyHandler(d.DB))
		r.Post("/config/apikey/regenerate", handlers.RegenerateAPIKeyHandler(d.DB))
	})
	return r
}
