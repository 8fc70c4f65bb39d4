// Package app wires the services shared by the calendar-logger server and
// the zoho-cli tool.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/calendarlogger/calendar-logger/internal/auth/credentials"
	"github.com/calendarlogger/calendar-logger/internal/auth/google"
	"github.com/calendarlogger/calendar-logger/internal/auth/token"
	"github.com/calendarlogger/calendar-logger/internal/calendar"
	"github.com/calendarlogger/calendar-logger/internal/config"
	"github.com/calendarlogger/calendar-logger/internal/db"
	"github.com/calendarlogger/calendar-logger/internal/metrics"
	"github.com/calendarlogger/calendar-logger/internal/zoho"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// App holds the wired services.
type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Events      *db.EventStore
	Credentials credentials.Store
	Tokens      *token.Manager
	Zoho        *zoho.Client
	Registry    *prometheus.Registry
	Metrics     *metrics.Collector
	// Google is nil unless the Google Calendar source is enabled.
	Google *google.Flow
}

// New opens the database and builds the Zoho access layer for cfg.
func New(cfg *config.Config) (*App, error) {
	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database %s: %w", cfg.DBPath, err)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	store := credentials.NewEnvStore(credentials.NewDBStore(database))
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	tokens := token.NewManager(store,
		token.WithHTTPClient(httpClient),
		token.WithAccountsURL(cfg.Zoho.AccountsURL),
		token.WithMetrics(collector),
	)
	executor := zoho.NewExecutor(tokens,
		zoho.WithExecutorHTTPClient(httpClient),
		zoho.WithRequestsPerMinute(cfg.Zoho.RequestsPerMinute),
		zoho.WithExecutorMetrics(collector),
	)
	client := zoho.NewClient(store, executor,
		zoho.WithTaskWorkers(cfg.Zoho.TaskWorkers),
		zoho.WithClientMetrics(collector),
	)

	a := &App{
		Config:      cfg,
		DB:          database,
		Events:      db.NewEventStore(database),
		Credentials: store,
		Tokens:      tokens,
		Zoho:        client,
		Registry:    reg,
		Metrics:     collector,
	}
	if cfg.Google.Enabled {
		a.Google = google.NewFlow(cfg.Google)
	}
	return a, nil
}

// ZohoSettingsChanged drops everything derived from the old settings.
func (a *App) ZohoSettingsChanged() {
	a.Zoho.ResetCache()
	a.Tokens.Invalidate()
}

// Sources returns the configured external calendars.
func (a *App) Sources() []calendar.Source {
	var sources []calendar.Source
	if a.Google != nil {
		gcfg := a.Config.Google
		tokens := func(ctx context.Context) (oauth2.TokenSource, error) {
			oauthCfg, err := google.LoadConfig(gcfg.CredentialsFile, "")
			if err != nil {
				return nil, err
			}
			return a.Google.Tokens().TokenSource(ctx, oauthCfg)
		}
		sources = append(sources, calendar.NewGoogleSource(gcfg, tokens))
		log.Printf("📅 Google Calendar source enabled (%s)", gcfg.CalendarID)
	}
	for _, ics := range a.Config.ICS {
		sources = append(sources, calendar.NewICSSource(ics, nil))
		log.Printf("📅 ICS source %s enabled", ics.ID)
	}
	return sources
}

// CalendarService builds the week view over local events and Sources.
func (a *App) CalendarService() *calendar.Service {
	hours := func(ctx context.Context) (int, int, bool) {
		start, end, ok, err := db.CalendarHours(a.DB.WithContext(ctx))
		if err != nil {
			log.Printf("⚠️ Failed to read calendar hours: %v", err)
			return 0, 0, false
		}
		return start, end, ok
	}
	return calendar.NewService(a.Events, a.Sources(), a.Config.Calendar, a.Config.Location(), hours)
}

// Close releases the database.
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
