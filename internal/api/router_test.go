package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/apierr"
	"github.com/calendarlogger/calendar-logger/internal/auth/credentials"
	"github.com/calendarlogger/calendar-logger/internal/calendar"
	"github.com/calendarlogger/calendar-logger/internal/config"
	"github.com/calendarlogger/calendar-logger/internal/db"
	"github.com/calendarlogger/calendar-logger/internal/db/models"
	"github.com/calendarlogger/calendar-logger/internal/metrics"
	"github.com/calendarlogger/calendar-logger/internal/zoho"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const testPortal = "777"

// fakeZoho answers Zoho API calls by path.
type fakeZoho struct {
	mu        sync.Mutex
	posts     []map[string]any
	failTasks map[string]error
	failAll   error
	failLog   error
}

func (f *fakeZoho) Do(_ context.Context, method, rawURL string, body any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(u.Path, "/api/v3/portal/"+testPortal)
	firstPage := u.Query().Get("page") == "1"

	switch {
	case method == http.MethodGet && path == "/projects":
		if !firstPage {
			return json.RawMessage(`[]`), nil
		}
		return json.RawMessage(`[
			{"id_string": "1001", "name": "Alpha", "status": {"name": "In corso"}},
			{"id_string": "1002", "name": "Beta", "status": {"name": "Chiuso"}},
			{"id_string": "1003", "name": "Gamma", "status": {"name": "Fase Finale"}}
		]`), nil
	case method == http.MethodGet && path == "/users":
		if !firstPage {
			return json.RawMessage(`{"users": []}`), nil
		}
		return json.RawMessage(`{"users": [{"id": "10", "zpuid": "5010", "name": "Me", "email": "me@example.com"}]}`), nil
	case method == http.MethodGet && strings.HasSuffix(path, "/tasks"):
		project := strings.Split(strings.TrimPrefix(path, "/projects/"), "/")[0]
		if err := f.failTasks[project]; err != nil {
			return nil, err
		}
		if !firstPage {
			return json.RawMessage(`{"tasks": []}`), nil
		}
		return json.RawMessage(`{"tasks": [
			{"id_string": "t1", "name": "Build", "owners_and_work": {"owners": [{"email": "me@example.com"}]}},
			{"id_string": "t2", "name": "Other", "owners_and_work": {"owners": [{"email": "x@example.com"}]}}
		]}`), nil
	case method == http.MethodPost && strings.HasSuffix(path, "/log"):
		if f.failLog != nil {
			return nil, f.failLog
		}
		raw, _ := json.Marshal(body)
		var payload map[string]any
		_ = json.Unmarshal(raw, &payload)
		payload["_path"] = path
		f.posts = append(f.posts, payload)
		return json.RawMessage(`{"time_logs": [{"id": "1"}]}`), nil
	}
	return nil, &apierr.RemoteError{StatusCode: http.StatusNotFound, Body: "not routed"}
}

type testEnv struct {
	router      http.Handler
	db          *gorm.DB
	events      *db.EventStore
	creds       *credentials.MemoryStore
	zoho        *fakeZoho
	apiKey      string
	zohoChanges int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	apiKey, err := db.RegenerateAPIKey(database)
	if err != nil {
		t.Fatalf("RegenerateAPIKey: %v", err)
	}

	env := &testEnv{
		db:     database,
		events: db.NewEventStore(database),
		creds: credentials.NewMemoryStore(credentials.Credentials{
			ClientID:     "client",
			ClientSecret: "client-secret-value",
			RefreshToken: "refresh-token-value",
			APIDomain:    "https://projects.test",
			PortalID:     testPortal,
			Email:        "me@example.com",
		}),
		zoho:   &fakeZoho{failTasks: map[string]error{}},
		apiKey: apiKey,
	}

	hours := func(ctx context.Context) (int, int, bool) {
		start, end, ok, err := db.CalendarHours(database.WithContext(ctx))
		return start, end, ok && err == nil
	}
	svc := calendar.NewService(env.events, nil, config.CalendarConfig{StartHour: 8, EndHour: 19, Days: 5}, time.UTC, hours)

	reg := prometheus.NewRegistry()
	client := zoho.NewClient(env.creds, env.zoho, zoho.WithClientMetrics(metrics.NewCollector(reg)))
	env.router = NewRouter(Deps{
		DB:          database,
		Events:      env.events,
		Calendar:    svc,
		Zoho:        client,
		Credentials: env.creds,
		OnZohoChange: func() {
			env.zohoChanges++
			client.ResetCache()
		},
		Metrics:      metrics.Handler(reg),
		BillStatus:   "Billable",
		CalendarName: "Work log",
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createEvent(t *testing.T, name, description string, start time.Time, d time.Duration) *models.Event {
	t.Helper()
	ev := &models.Event{Name: name, Description: description, StartTime: start, EndTime: start.Add(d)}
	if err := e.events.Create(context.Background(), ev); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return ev
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d body=%s", want, rec.Code, rec.Body.String())
	}
}

var monday = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func TestPublicAndProtectedRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	expectStatus(t, rec, http.StatusOK)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/week", nil))
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))
	expectStatus(t, rec, http.StatusNotFound)
}

func TestEventsCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/events",
		`{"name":"Write report","description":"Q1","start_time":"2025-03-04T09:00:00Z","end_time":"2025-03-04T10:00:00Z"}`)
	expectStatus(t, rec, http.StatusCreated)
	created := decode[models.Event](t, rec)
	if created.ID == 0 || created.Name != "Write report" {
		t.Fatalf("unexpected created event %+v", created)
	}
	path := fmt.Sprintf("/api/events/%d", created.ID)

	rec = env.do(t, http.MethodPut, path,
		`{"name":"Write final report","description":"Q1","start_time":"2025-03-04T09:00:00Z","end_time":"2025-03-04T11:00:00Z"}`)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[models.Event](t, rec); got.Name != "Write final report" || got.Duration() != 2*time.Hour {
		t.Fatalf("unexpected update %+v", got)
	}

	rec = env.do(t, http.MethodGet, "/api/events?start=2025-03-03&end=2025-03-08", "")
	expectStatus(t, rec, http.StatusOK)
	if list := decode[map[string][]models.Event](t, rec); len(list["events"]) != 1 {
		t.Fatalf("unexpected list %s", rec.Body.String())
	}

	expectStatus(t, env.do(t, http.MethodDelete, path, ""), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, path, ""), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/api/events/abc", ""), http.StatusBadRequest)
}

func TestCreateEvent_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"end before start", `{"name":"x","start_time":"2025-03-04T10:00:00Z","end_time":"2025-03-04T09:00:00Z"}`},
		{"blank name", `{"name":" ","start_time":"2025-03-04T09:00:00Z","end_time":"2025-03-04T10:00:00Z"}`},
		{"unknown field", `{"name":"x","color":"red"}`},
		{"not json", `name=x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, env.do(t, http.MethodPost, "/api/events", tt.body), http.StatusBadRequest)
		})
	}
}

func TestMoveEvent(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createEvent(t, "Design", "", monday.AddDate(0, 0, 1).Add(9*time.Hour), 90*time.Minute)
	path := fmt.Sprintf("/api/events/%d/move", ev.ID)

	rec := env.do(t, http.MethodPost, path, `{"week_start":"2025-03-03","day":2,"row":3}`)
	expectStatus(t, rec, http.StatusOK)
	moved := decode[models.Event](t, rec)
	wantStart := monday.AddDate(0, 0, 2).Add(9*time.Hour + 30*time.Minute)
	if !moved.StartTime.Equal(wantStart) || moved.Duration() != 90*time.Minute {
		t.Fatalf("unexpected move %s - %s", moved.StartTime, moved.EndTime)
	}

	rec = env.do(t, http.MethodPost, path, `{"start_time":"2025-03-07T14:00:00Z"}`)
	expectStatus(t, rec, http.StatusOK)
	if moved := decode[models.Event](t, rec); moved.StartTime.Hour() != 14 {
		t.Fatalf("unexpected move %s", moved.StartTime)
	}

	expectStatus(t, env.do(t, http.MethodPost, path, `{"week_start":"2025-03-03","day":0,"row":22}`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, path, `{}`), http.StatusBadRequest)
}

func TestWeekAndCalendarHours(t *testing.T) {
	env := newTestEnv(t)
	env.createEvent(t, "Standup", "", monday.AddDate(0, 0, 1).Add(9*time.Hour), 30*time.Minute)

	rec := env.do(t, http.MethodGet, "/api/week?start=2025-03-05", "")
	expectStatus(t, rec, http.StatusOK)
	week := decode[calendar.Week](t, rec)
	if !week.Start.Equal(monday) || len(week.Days) != 5 || len(week.Events) != 1 {
		t.Fatalf("unexpected week %+v", week)
	}
	if p := week.Events[0]; p.Day != 1 || p.Row != 2 || p.Slots != 1 || p.Hidden {
		t.Fatalf("unexpected placement %+v", p)
	}

	expectStatus(t, env.do(t, http.MethodPut, "/api/settings", `{"calendar":{"start_hour":7,"end_hour":17}}`), http.StatusOK)
	week = decode[calendar.Week](t, env.do(t, http.MethodGet, "/api/week?start=2025-03-05", ""))
	if week.StartHour != 7 || week.EndHour != 17 || week.Events[0].Row != 4 {
		t.Fatalf("hours override not applied: %d-%d row %d", week.StartHour, week.EndHour, week.Events[0].Row)
	}

	expectStatus(t, env.do(t, http.MethodPut, "/api/settings", `{"calendar":{"start_hour":18,"end_hour":7}}`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/api/week?start=03-05-2025", ""), http.StatusBadRequest)
}

func TestSettings_MasksAndKeepsSecrets(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/settings", "")
	expectStatus(t, rec, http.StatusOK)
	if body := rec.Body.String(); strings.Contains(body, "client-secret-value") || !strings.Contains(body, "****alue") {
		t.Fatalf("secrets not masked: %s", body)
	}

	rec = env.do(t, http.MethodPut, "/api/settings", `{"zoho":{
		"client_id":"client","client_secret":"****alue","refresh_token":"",
		"api_domain":"https://projects.test/","portal_id":"777","email":"new@example.com"}}`)
	expectStatus(t, rec, http.StatusOK)

	saved, _ := env.creds.Get(context.Background())
	if saved.ClientSecret != "client-secret-value" || saved.RefreshToken != "refresh-token-value" {
		t.Fatalf("masked secrets overwrote stored values: %+v", saved)
	}
	if saved.Email != "new@example.com" || saved.APIDomain != "https://projects.test" {
		t.Fatalf("settings not saved: %+v", saved)
	}
	if env.zohoChanges != 1 {
		t.Fatalf("expected one change notification, got %d", env.zohoChanges)
	}
}

func TestZohoRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/zoho/projects", "")
	expectStatus(t, rec, http.StatusOK)
	projects := decode[map[string][]zoho.Project](t, rec)["projects"]
	if len(projects) != 2 || projects[0].Name != "Alpha" || projects[1].Name != "Gamma" {
		t.Fatalf("unexpected projects %+v", projects)
	}

	rec = env.do(t, http.MethodGet, "/api/zoho/projects/1001/tasks", "")
	expectStatus(t, rec, http.StatusOK)
	tasks := decode[map[string][]zoho.Task](t, rec)["tasks"]
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks %+v", tasks)
	}

	rec = env.do(t, http.MethodGet, "/api/zoho/me", "")
	expectStatus(t, rec, http.StatusOK)
	if me := decode[zoho.User](t, rec); me.OwnerID() != "5010" {
		t.Fatalf("unexpected user %+v", me)
	}
}

func TestZohoAllTasks_ReportsFailuresInline(t *testing.T) {
	env := newTestEnv(t)
	env.zoho.failTasks["1003"] = &apierr.RemoteError{StatusCode: http.StatusInternalServerError, Body: "boom"}

	rec := env.do(t, http.MethodGet, "/api/zoho/tasks", "")
	expectStatus(t, rec, http.StatusOK)
	var body struct {
		Projects []struct {
			Project zoho.Project `json:"project"`
			Tasks   []zoho.Task  `json:"tasks"`
			Error   string       `json:"error"`
		} `json:"projects"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(body.Projects))
	}
	alpha, gamma := body.Projects[0], body.Projects[1]
	if len(alpha.Tasks) != 1 || alpha.Error != "" {
		t.Fatalf("unexpected alpha result %+v", alpha)
	}
	if gamma.Error == "" || len(gamma.Tasks) != 0 {
		t.Fatalf("expected inline failure for gamma, got %+v", gamma)
	}
}

func TestZohoErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth", fmt.Errorf("%w: rejected", apierr.ErrAuth), http.StatusUnauthorized},
		{"network", fmt.Errorf("%w: dial", apierr.ErrNetwork), http.StatusGatewayTimeout},
		{"remote", &apierr.RemoteError{StatusCode: 500, Body: "oops"}, http.StatusBadGateway},
		{"malformed", apierr.Malformed("bad json"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.zoho.failAll = tt.err
			expectStatus(t, env.do(t, http.MethodGet, "/api/zoho/projects", ""), tt.want)
		})
	}

	t.Run("configuration", func(t *testing.T) {
		env := newTestEnv(t)
		_ = env.creds.Save(context.Background(), credentials.Credentials{PortalID: testPortal})
		expectStatus(t, env.do(t, http.MethodGet, "/api/zoho/projects", ""), http.StatusPreconditionFailed)
	})
}

func TestLogEvent(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createEvent(t, "Write report", "Drafted section 2", monday.AddDate(0, 0, 1).Add(9*time.Hour), 90*time.Minute)
	path := fmt.Sprintf("/api/events/%d", ev.ID)

	rec := env.do(t, http.MethodPost, path+"/log", `{"project_id":"1001","task_id":"t1"}`)
	expectStatus(t, rec, http.StatusOK)

	if len(env.zoho.posts) != 1 {
		t.Fatalf("expected one time log post, got %d", len(env.zoho.posts))
	}
	post := env.zoho.posts[0]
	want := map[string]string{
		"_path":       "/projects/1001/log",
		"name":        "Write report",
		"notes":       "Drafted section 2",
		"date":        "03-04-2025",
		"start_time":  "09:00 AM",
		"end_time":    "10:30 AM",
		"bill_status": "Billable",
		"owner_zpuid": "5010",
	}
	for k, v := range want {
		if post[k] != v {
			t.Errorf("payload %s = %v, want %q", k, post[k], v)
		}
	}

	got, err := env.events.Get(context.Background(), ev.ID)
	if err != nil || !got.IsLogged || got.ZohoTaskID != "t1" {
		t.Fatalf("event not marked logged: %+v err=%v", got, err)
	}

	expectStatus(t, env.do(t, http.MethodPost, path+"/log", `{"project_id":"1001","task_id":"t1"}`), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodPut, path,
		`{"name":"x","start_time":"2025-03-04T09:00:00Z","end_time":"2025-03-04T10:00:00Z"}`), http.StatusConflict)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `callog_zoho_time_logs_total{result="success"} 1`) {
		t.Fatalf("time log metric missing:\n%s", rec.Body.String())
	}
}

func TestLogEvent_Failures(t *testing.T) {
	env := newTestEnv(t)
	past := env.createEvent(t, "Past", "", monday.Add(9*time.Hour), time.Hour)
	future := env.createEvent(t, "Future", "", time.Now().Add(time.Hour), time.Hour)

	expectStatus(t, env.do(t, http.MethodPost, fmt.Sprintf("/api/events/%d/log", past.ID), `{"project_id":"1001"}`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, fmt.Sprintf("/api/events/%d/log", future.ID), `{"project_id":"1001","task_id":"t1"}`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/events/999/log", `{"project_id":"1001","task_id":"t1"}`), http.StatusNotFound)

	env.zoho.failLog = &apierr.RemoteError{StatusCode: http.StatusBadRequest, Body: `{"error":"invalid"}`}
	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/events/%d/log", past.ID), `{"project_id":"1001","task_id":"t1","notes":"custom"}`)
	expectStatus(t, rec, http.StatusBadGateway)

	got, err := env.events.Get(context.Background(), past.ID)
	if err != nil || got.IsLogged {
		t.Fatalf("failed log must not mark the event: %+v err=%v", got, err)
	}
}

func TestExportICSAndAPIKey(t *testing.T) {
	env := newTestEnv(t)
	env.createEvent(t, "Review", "", monday.Add(9*time.Hour), time.Hour)

	rec := env.do(t, http.MethodGet, "/api/events.ics", "")
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("unexpected content type %s", ct)
	}
	if body := rec.Body.String(); !strings.Contains(body, "SUMMARY:Review") || !strings.Contains(body, "X-WR-CALNAME:Work log") {
		t.Fatalf("unexpected feed:\n%s", body)
	}

	rec = env.do(t, http.MethodPost, "/api/config/apikey/regenerate", "")
	expectStatus(t, rec, http.StatusOK)
	newKey := decode[map[string]any](t, rec)["api_key"].(string)
	if newKey == env.apiKey {
		t.Fatal("expected a new key")
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/config/apikey", ""), http.StatusUnauthorized)
	env.apiKey = newKey
	expectStatus(t, env.do(t, http.MethodGet, "/api/config/apikey", ""), http.StatusOK)
}
