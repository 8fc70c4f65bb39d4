// Package zoho is the Zoho Projects access layer: authenticated request
// execution with one re-auth retry, paginated list fetches, per-key caching
// and bounded parallel task fetches, composed by Client.
package zoho

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/calendarlogger/calendar-logger/internal/apierr"
	"github.com/calendarlogger/calendar-logger/internal/auth/credentials"
	"github.com/calendarlogger/calendar-logger/internal/logging"
	"github.com/calendarlogger/calendar-logger/internal/metrics"
)

var (
	// ErrAPIDomainMissing is returned by every operation when no API domain is set.
	ErrAPIDomainMissing = fmt.Errorf("%w: API domain not configured", apierr.ErrConfiguration)
	// ErrPortalMissing means neither the caller nor the credentials name a portal.
	ErrPortalMissing = fmt.Errorf("%w: portal id not configured", apierr.ErrConfiguration)
	// ErrEmailMissing means no user email is configured.
	ErrEmailMissing = fmt.Errorf("%w: user email not configured", apierr.ErrConfiguration)
	// ErrInvalidEntry means a TimeLogEntry lacks required fields.
	ErrInvalidEntry = errors.New("invalid time log entry")
)

// CredentialSource supplies the configured credentials on every call.
type CredentialSource interface {
	Get(ctx context.Context) (credentials.Credentials, error)
}

type taskKey struct {
	portal  string
	project string
}

// Client is the facade over the access layer. It owns its caches; build one
// per process (or per test) with NewClient.
type Client struct {
	creds     CredentialSource
	requester Requester
	metrics   metrics.Recorder
	workers   int

	projects *Cache[string, []Project]
	tasks    *Cache[taskKey, []Task]
	users    *Cache[string, []User]
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTaskWorkers bounds TasksForProjects concurrency.
func WithTaskWorkers(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithClientMetrics reports cache and time-log outcomes to r.
func WithClientMetrics(r metrics.Recorder) ClientOption {
	return func(c *Client) { c.metrics = metrics.OrNop(r) }
}

// NewClient creates a Client reading credentials from creds and issuing calls
// through requester.
func NewClient(creds CredentialSource, requester Requester, opts ...ClientOption) *Client {
	c := &Client{
		creds:     creds,
		requester: requester,
		metrics:   metrics.Nop{},
		workers:   DefaultTaskWorkers,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.projects = NewCache[string, []Project]("projects", c.metrics)
	c.tasks = NewCache[taskKey, []Task]("tasks", c.metrics)
	c.users = NewCache[string, []User]("users", c.metrics)
	return c
}

// ResetCache drops every cached list. Used after settings change.
func (c *Client) ResetCache() {
	c.projects.Reset()
	c.tasks.Reset()
	c.users.Reset()
	log.Printf("🧹 Zoho cache cleared")
}

// ListActiveProjects returns the portal's projects whose status is in
// ActiveStatuses. An empty portalID uses the configured portal.
func (c *Client) ListActiveProjects(ctx context.Context, portalID string) ([]Project, error) {
	ctx = logging.EnsureOpID(ctx)
	creds, portal, err := c.resolve(ctx, portalID)
	if err != nil {
		return nil, err
	}

	return c.projects.Get(ctx, portal, func(ctx context.Context) ([]Project, error) {
		all, err := FetchAll(ctx, c.requester, c.endpoint(creds, portal, "projects"), Items[Project]("projects"))
		if err != nil {
			return nil, err
		}
		active := make([]Project, 0, len(all))
		for _, p := range all {
			if p.IsActive() {
				active = append(active, p)
			}
		}
		log.Printf("📁 %sLoaded %d projects for portal %s (%d active)", logging.Tag(ctx), len(all), portal, len(active))
		return active, nil
	})
}

// ListMyTasks returns the project's tasks owned by the configured email. The
// email is read when the list is first fetched; later changes need ResetCache.
func (c *Client) ListMyTasks(ctx context.Context, portalID, projectID string) ([]Task, error) {
	ctx = logging.EnsureOpID(ctx)
	creds, portal, err := c.resolve(ctx, portalID)
	if err != nil {
		return nil, err
	}
	if creds.Email == "" {
		return nil, ErrEmailMissing
	}
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("%w: project id required", ErrInvalidEntry)
	}

	key := taskKey{portal: portal, project: projectID}
	return c.tasks.Get(ctx, key, func(ctx context.Context) ([]Task, error) {
		all, err := FetchAll(ctx, c.requester, c.endpoint(creds, portal, "projects", projectID, "tasks"), Items[Task]("tasks"))
		if err != nil {
			return nil, err
		}
		mine := make([]Task, 0, len(all))
		for _, t := range all {
			if t.OwnedBy(creds.Email) {
				mine = append(mine, t)
			}
		}
		log.Printf("📋 %sLoaded %d tasks for project %s (%d owned by %s)", logging.Tag(ctx), len(all), projectID, len(mine), creds.Email)
		return mine, nil
	})
}

// ListUsers returns every user of the portal, unfiltered.
func (c *Client) ListUsers(ctx context.Context, portalID string) ([]User, error) {
	ctx = logging.EnsureOpID(ctx)
	creds, portal, err := c.resolve(ctx, portalID)
	if err != nil {
		return nil, err
	}
	return c.users.Get(ctx, portal, func(ctx context.Context) ([]User, error) {
		users, err := FetchAll(ctx, c.requester, c.endpoint(creds, portal, "users"), Items[User]("users"))
		if err != nil {
			return nil, err
		}
		log.Printf("👥 %sLoaded %d users for portal %s", logging.Tag(ctx), len(users), portal)
		return users, nil
	})
}

// FindUserByEmail scans the portal's users for an exact email match. A
// successful fetch without a match returns apierr.ErrNotFound.
func (c *Client) FindUserByEmail(ctx context.Context, portalID, email string) (User, error) {
	if email == "" {
		return User{}, ErrEmailMissing
	}
	users, err := c.ListUsers(ctx, portalID)
	if err != nil {
		return User{}, err
	}
	for _, u := range users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("%w: user email %s not found in Zoho portal", apierr.ErrNotFound, email)
}

// Me resolves the configured email to a portal user.
func (c *Client) Me(ctx context.Context, portalID string) (User, error) {
	creds, err := c.creds.Get(ctx)
	if err != nil {
		return User{}, fmt.Errorf("load credentials: %w", err)
	}
	return c.FindUserByEmail(ctx, portalID, creds.Normalize().Email)
}

// TasksForProjects fetches ListMyTasks for every project concurrently. The
// result has one entry per distinct project id.
func (c *Client) TasksForProjects(ctx context.Context, portalID string, projects []Project) map[string]TaskResult {
	ctx = logging.EnsureOpID(ctx)
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID.String())
	}
	return FetchTasksForProjects(ctx, ids, c.workers, func(ctx context.Context, projectID string) ([]Task, error) {
		return c.ListMyTasks(ctx, portalID, projectID)
	})
}

// LogTime attributes entry to the configured user and submits it. Failures
// are reported in the result, never returned as a panic or bare error.
func (c *Client) LogTime(ctx context.Context, entry TimeLogEntry) LogResult {
	ctx = logging.EnsureOpID(ctx)
	res := c.logTime(ctx, entry)
	c.metrics.RecordTimeLog(res.Success)
	if res.Success {
		log.Printf("⏱️ %sLogged %q on task %s (%s %s-%s)", logging.Tag(ctx), entry.EventName, entry.TaskID, entry.Date, entry.StartTime, entry.EndTime)
	} else {
		log.Printf("❌ %sTime log for %q failed: %v", logging.Tag(ctx), entry.EventName, res.Err)
	}
	return res
}

func (c *Client) logTime(ctx context.Context, entry TimeLogEntry) LogResult {
	creds, portal, err := c.resolve(ctx, entry.PortalID)
	if err != nil {
		return failure(err)
	}
	entry.PortalID = portal
	if err := entry.validate(); err != nil {
		return failure(err)
	}

	user, err := c.FindUserByEmail(ctx, portal, creds.Email)
	if err != nil {
		return failure(err)
	}
	entry.OwnerID = user.OwnerID()

	logURL := c.endpoint(creds, portal, "projects", entry.ProjectID, "log")
	if _, err := c.requester.Do(ctx, http.MethodPost, logURL, entry.payload()); err != nil {
		return failure(err)
	}
	return LogResult{Success: true, Message: "Time logged to Zoho."}
}

func failure(err error) LogResult {
	return LogResult{Success: false, Message: err.Error(), Err: err}
}

// resolve loads the credentials and picks the portal.
func (c *Client) resolve(ctx context.Context, portalID string) (credentials.Credentials, string, error) {
	creds, err := c.creds.Get(ctx)
	if err != nil {
		return credentials.Credentials{}, "", fmt.Errorf("load credentials: %w", err)
	}
	creds = creds.Normalize()
	if creds.APIDomain == "" {
		return creds, "", ErrAPIDomainMissing
	}
	portal := strings.TrimSpace(portalID)
	if portal == "" {
		portal = creds.PortalID
	}
	if portal == "" {
		return creds, "", ErrPortalMissing
	}
	return creds, portal, nil
}

// endpoint builds {api_domain}/api/v3/portal/{portal}/{segments...}.
func (c *Client) endpoint(creds credentials.Credentials, portal string, segments ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(creds.APIDomain, "/"))
	b.WriteString("/api/v3/portal/")
	b.WriteString(url.PathEscape(portal))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}
