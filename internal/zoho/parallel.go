package zoho

import (
	"context"
	"log"
	"sync"

	"github.com/calendarlogger/calendar-logger/internal/logging"
)

// DefaultTaskWorkers bounds concurrent per-project task fetches.
const DefaultTaskWorkers = 5

// TaskResult is one project's outcome. Tasks is nil when Err is set.
type TaskResult struct {
	Tasks []Task
	Err   error
}

// FetchTasksForProjects runs fetch for every project id with at most workers
// in flight. The result has exactly one entry per distinct project id; one
// failure does not affect the others.
func FetchTasksForProjects(ctx context.Context, projectIDs []string, workers int, fetch func(ctx context.Context, projectID string) ([]Task, error)) map[string]TaskResult {
	if workers <= 0 {
		workers = DefaultTaskWorkers
	}

	results := make(map[string]TaskResult, len(projectIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	seen := make(map[string]struct{}, len(projectIDs))
	for _, id := range projectIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		wg.Add(1)
		sem <- struct{}{}
		go func(projectID string) {
			defer wg.Done()
			defer func() { <-sem }()

			tasks, err := fetch(ctx, projectID)
			if err != nil {
				log.Printf("⚠️ %sTask fetch for project %s failed: %v", logging.Tag(ctx), projectID, err)
				tasks = nil
			}
			mu.Lock()
			results[projectID] = TaskResult{Tasks: tasks, Err: err}
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	return results
}
