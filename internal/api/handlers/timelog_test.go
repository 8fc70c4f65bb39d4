package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/apierr"
	"github.com/calendarlogger/calendar-logger/internal/db"
	"github.com/calendarlogger/calendar-logger/internal/db/models"
	"github.com/calendarlogger/calendar-logger/internal/zoho"
	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type slowLogger struct {
	delay time.Duration
	fail  error
	calls atomic.Int32
}

func (l *slowLogger) LogTime(ctx context.Context, entry zoho.TimeLogEntry) zoho.LogResult {
	l.calls.Add(1)
	time.Sleep(l.delay)
	if l.fail != nil {
		return zoho.LogResult{Message: l.fail.Error(), Err: l.fail}
	}
	return zoho.LogResult{Success: true, Message: "Time logged"}
}

func newLogTestStore(t *testing.T) *db.EventStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db.NewEventStore(database)
}

func logRouter(store *db.EventStore, logger TimeLogger) http.Handler {
	r := chi.NewRouter()
	r.Post("/events/{id}/log", LogEventHandler(store, logger, time.UTC, "Billable"))
	return r
}

func postLog(h http.Handler, id uint) int {
	body := `{"project_id":"1001","task_id":"t1"}`
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/events/%d/log", id), strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestLogEventHandler_ConcurrentRequestsLogOnce(t *testing.T) {
	store := newLogTestStore(t)
	ev := &models.Event{Name: "Standup", StartTime: time.Now().Add(-2 * time.Hour), EndTime: time.Now().Add(-time.Hour)}
	if err := store.Create(context.Background(), ev); err != nil {
		t.Fatalf("Create: %v", err)
	}
	logger := &slowLogger{delay: 100 * time.Millisecond}
	h := logRouter(store, logger)

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = postLog(h, ev.ID)
		}(i)
	}
	wg.Wait()

	if got := logger.calls.Load(); got != 1 {
		t.Fatalf("expected one Zoho time log, got %d (status codes %v)", got, codes)
	}
	ok, conflict := 0, 0
	for _, c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		}
	}
	if ok != 1 || conflict != 1 {
		t.Fatalf("expected one 200 and one 409, got %v", codes)
	}
	if code := postLog(h, ev.ID); code != http.StatusConflict {
		t.Fatalf("expected 409 after logging, got %d", code)
	}
}

func TestLogEventHandler_FailureReleasesClaim(t *testing.T) {
	store := newLogTestStore(t)
	ev := &models.Event{Name: "Review", StartTime: time.Now().Add(-2 * time.Hour), EndTime: time.Now().Add(-time.Hour)}
	if err := store.Create(context.Background(), ev); err != nil {
		t.Fatalf("Create: %v", err)
	}
	logger := &slowLogger{fail: &apierr.RemoteError{StatusCode: http.StatusBadRequest, Body: "invalid"}}
	h := logRouter(store, logger)

	if code := postLog(h, ev.ID); code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", code)
	}
	if _, err := store.Move(context.Background(), ev.ID, ev.StartTime.Add(-time.Hour)); err != nil {
		t.Fatalf("event should be editable after a failed log: %v", err)
	}

	logger.fail = nil
	if code := postLog(h, ev.ID); code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", code)
	}
	if got := logger.calls.Load(); got != 2 {
		t.Fatalf("expected two Zoho calls, got %d", got)
	}
}
