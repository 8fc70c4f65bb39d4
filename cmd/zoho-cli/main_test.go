package main

import (
	"strings"
	"testing"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/db/models"
)

func TestCheckLoggable(t *testing.T) {
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		ev      models.Event
		wantErr string
	}{
		{"finished", models.Event{ID: 1, StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Hour)}, ""},
		{"ends now", models.Event{ID: 2, StartTime: now.Add(-time.Hour), EndTime: now}, ""},
		{"logged", models.Event{ID: 3, IsLogged: true, StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Hour)}, "already logged"},
		{"running", models.Event{ID: 4, StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)}, "cannot be logged yet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkLoggable(&tt.ev, now)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %q, got %v", tt.wantErr, err)
			}
		})
	}
}
