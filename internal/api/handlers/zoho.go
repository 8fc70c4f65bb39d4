package handlers

import (
	"net/http"

	"github.com/calendarlogger/calendar-logger/internal/zoho"
	"github.com/go-chi/chi/v5"
)

// ProjectsHandler lists active projects of ?portal= (default portal when empty).
func ProjectsHandler(client *zoho.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := client.ListActiveProjects(r.Context(), r.URL.Query().Get("portal"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": nonNil(projects)})
	}
}

// ProjectTasksHandler lists the configured user's tasks in one project.
func ProjectTasksHandler(client *zoho.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := client.ListMyTasks(r.Context(), r.URL.Query().Get("portal"), chi.URLParam(r, "project"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": nonNil(tasks)})
	}
}

type projectTasks struct {
	Project zoho.Project `json:"project"`
	Tasks   []zoho.Task  `json:"tasks"`
	Error   string       `json:"error,omitempty"`
}

// AllTasksHandler fetches the user's tasks across every active project in
// parallel. A failing project is reported inline.
func AllTasksHandler(client *zoho.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		portal := r.URL.Query().Get("portal")
		projects, err := client.ListActiveProjects(r.Context(), portal)
		if err != nil {
			writeError(w, r, err)
			return
		}
		results := client.TasksForProjects(r.Context(), portal, projects)

		out := make([]projectTasks, 0, len(projects))
		for _, p := range projects {
			res := results[p.ID.String()]
			entry := projectTasks{Project: p, Tasks: nonNil(res.Tasks)}
			if res.Err != nil {
				entry.Error = res.Err.Error()
			}
			out = append(out, entry)
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": out})
	}
}

// MeHandler returns the Zoho user matching the configured email.
func MeHandler(client *zoho.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := client.Me(r.Context(), r.URL.Query().Get("portal"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// ResetZohoCacheHandler drops cached projects, tasks and users.
func ResetZohoCacheHandler(client *zoho.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client.ResetCache()
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
