package zoho

import (
	"context"
	"fmt"

	"github.com/calendarlogger/calendar-logger/internal/apierr"
)

// Session is the project snapshot of one portal. Name lookups and task loads
// take it as explicit state instead of reaching into shared lists.
type Session struct {
	PortalID string
	Projects []Project

	client *Client
}

// LoadSession loads the active projects of portalID (or the configured
// portal) into a Session.
func (c *Client) LoadSession(ctx context.Context, portalID string) (*Session, error) {
	_, portal, err := c.resolve(ctx, portalID)
	if err != nil {
		return nil, err
	}
	projects, err := c.ListActiveProjects(ctx, portal)
	if err != nil {
		return nil, err
	}
	return &Session{PortalID: portal, Projects: projects, client: c}, nil
}

// ProjectByName returns the first project with exactly this name.
func (s *Session) ProjectByName(name string) (Project, error) {
	for _, p := range s.Projects {
		if p.Name == name {
			return p, nil
		}
	}
	return Project{}, fmt.Errorf("%w: project %q", apierr.ErrNotFound, name)
}

// Tasks returns the caller's tasks in project.
func (s *Session) Tasks(ctx context.Context, project Project) ([]Task, error) {
	return s.client.ListMyTasks(ctx, s.PortalID, project.ID.String())
}

// TaskByName loads the project's tasks and returns the one named name.
func (s *Session) TaskByName(ctx context.Context, project Project, name string) (Task, error) {
	tasks, err := s.Tasks(ctx, project)
	if err != nil {
		return Task{}, err
	}
	for _, t := range tasks {
		if t.Name == name {
			return t, nil
		}
	}
	return Task{}, fmt.Errorf("%w: task %q in project %q", apierr.ErrNotFound, name, project.Name)
}

// Log submits entry against project and task within this session's portal.
func (s *Session) Log(ctx context.Context, project Project, task Task, entry TimeLogEntry) LogResult {
	entry.PortalID = s.PortalID
	entry.ProjectID = project.ID.String()
	entry.TaskID = task.ID.String()
	return s.client.LogTime(ctx, entry)
}
