package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/api"
	"github.com/calendarlogger/calendar-logger/internal/app"
	"github.com/calendarlogger/calendar-logger/internal/config"
	"github.com/calendarlogger/calendar-logger/internal/metrics"
	"github.com/calendarlogger/calendar-logger/internal/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	router := api.NewRouter(api.Deps{
		DB:           a.DB,
		Events:       a.Events,
		Calendar:     a.CalendarService(),
		Zoho:         a.Zoho,
		Credentials:  a.Credentials,
		OnZohoChange: a.ZohoSettingsChanged,
		Google:       a.Google,
		Metrics:      metrics.Handler(a.Registry),
		BillStatus:   cfg.Zoho.BillStatus,
		CalendarName: "Calendar Logger",
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("🚀 Calendar Logger %s starting on http://%s", version.Version, cfg.Listen)
	log.Printf("📅 Week view API: http://%s/api/week", cfg.Listen)
	if a.Google != nil {
		log.Printf("🔐 Google Calendar login: http://%s/auth/google/login", cfg.Listen)
	}
	log.Printf("📊 Metrics: http://%s/metrics", cfg.Listen)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Printf("👋 Server stopped")
}
