// zoho-cli - terminal access to the Zoho Projects layer
// Lists projects and tasks by name and logs local calendar events.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/app"
	"github.com/calendarlogger/calendar-logger/internal/config"
	"github.com/calendarlogger/calendar-logger/internal/db/models"
	"github.com/calendarlogger/calendar-logger/internal/util"
	"github.com/calendarlogger/calendar-logger/internal/zoho"
)

const usage = `Usage: zoho-cli [-config config.yaml] <command> [flags]

Commands:
  projects                         list active projects
  tasks -project NAME              list your tasks in a project
  all-tasks                        list your tasks in every active project
  me                               show the Zoho user for the configured email
  log -event ID -project NAME -task NAME [-notes TEXT]
                                   log a finished local event
  google-login                     authorize the Google Calendar source
`

func main() {
	log.SetFlags(log.Ltime)

	global := flag.NewFlagSet("zoho-cli", flag.ExitOnError)
	configPath := global.String("config", "config.yaml", "path to the YAML config file")
	portal := global.String("portal", "", "Zoho portal id (default: configured portal)")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	global.Parse(os.Args[1:])
	if global.NArg() == 0 {
		global.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cmd, args := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "projects":
		err = listProjects(ctx, a, *portal)
	case "tasks":
		err = listTasks(ctx, a, *portal, args)
	case "all-tasks":
		err = listAllTasks(ctx, a, *portal)
	case "me":
		err = showMe(ctx, a, *portal)
	case "log":
		err = logEvent(ctx, a, *portal, args)
	case "google-login":
		err = googleLogin(ctx, a)
	default:
		global.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("❌ %s: %v", cmd, err)
	}
}

func listProjects(ctx context.Context, a *app.App, portal string) error {
	session, err := a.Zoho.LoadSession(ctx, portal)
	if err != nil {
		return err
	}
	fmt.Printf("Portal %s: %d active projects\n", session.PortalID, len(session.Projects))
	for _, p := range session.Projects {
		fmt.Printf("  %-20s %-40s %s\n", p.ID, util.Truncate(p.Name, 40), p.Status)
	}
	return nil
}

func listTasks(ctx context.Context, a *app.App, portal string, args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ExitOnError)
	projectName := fs.String("project", "", "project name")
	fs.Parse(args)
	if *projectName == "" {
		return fmt.Errorf("-project is required")
	}

	session, err := a.Zoho.LoadSession(ctx, portal)
	if err != nil {
		return err
	}
	project, err := session.ProjectByName(*projectName)
	if err != nil {
		return err
	}
	tasks, err := session.Tasks(ctx, project)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d tasks assigned to you\n", project.Name, len(tasks))
	for _, t := range tasks {
		fmt.Printf("  %-20s %s\n", t.ID, t.Name)
	}
	return nil
}

func listAllTasks(ctx context.Context, a *app.App, portal string) error {
	session, err := a.Zoho.LoadSession(ctx, portal)
	if err != nil {
		return err
	}
	results := a.Zoho.TasksForProjects(ctx, session.PortalID, session.Projects)
	for _, p := range session.Projects {
		res := results[p.ID.String()]
		if res.Err != nil {
			fmt.Printf("⚠️  %s: %v\n", p.Name, res.Err)
			continue
		}
		fmt.Printf("📁 %s (%d)\n", p.Name, len(res.Tasks))
		for _, t := range res.Tasks {
			fmt.Printf("    %-20s %s\n", t.ID, t.Name)
		}
	}
	return nil
}

func showMe(ctx context.Context, a *app.App, portal string) error {
	user, err := a.Zoho.Me(ctx, portal)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s> zpuid=%s\n", user.Name, user.Email, user.OwnerID())
	return nil
}

func logEvent(ctx context.Context, a *app.App, portal string, args []string) error {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	eventID := fs.Uint("event", 0, "local event id")
	projectName := fs.String("project", "", "project name")
	taskName := fs.String("task", "", "task name")
	notes := fs.String("notes", "", "notes (default: event description)")
	fs.Parse(args)
	if *eventID == 0 || *projectName == "" || *taskName == "" {
		return fmt.Errorf("-event, -project and -task are required")
	}

	// Load the project snapshot while reading the local event.
	pending := zoho.Go(ctx, func(ctx context.Context) (*zoho.Session, error) {
		return a.Zoho.LoadSession(ctx, portal)
	})

	ev, err := a.Events.Get(ctx, *eventID)
	if err != nil {
		return err
	}
	if err := checkLoggable(ev, time.Now()); err != nil {
		return err
	}
	if err := a.Events.ClaimForLogging(ctx, ev.ID, time.Now()); err != nil {
		return err
	}
	submitted := false
	defer func() {
		if !submitted {
			if err := a.Events.ReleaseLogClaim(context.WithoutCancel(ctx), ev.ID); err != nil {
				log.Printf("⚠️ Failed to release log claim on event %d: %v", ev.ID, err)
			}
		}
	}()

	res := <-pending
	if res.Err != nil {
		return res.Err
	}
	session := res.Value
	project, err := session.ProjectByName(*projectName)
	if err != nil {
		return err
	}
	task, err := session.TaskByName(ctx, project, *taskName)
	if err != nil {
		return err
	}

	description := ev.Description
	if *notes != "" {
		description = *notes
	}
	loc := a.Config.Location()
	entry := zoho.NewTimeLogEntry(ev.Name, description, ev.StartTime.In(loc), ev.EndTime.In(loc), a.Config.Zoho.BillStatus)
	result := session.Log(ctx, project, task, entry)
	if !result.Success {
		return result.Err
	}
	submitted = true
	if err := a.Events.MarkLogged(ctx, ev.ID, session.PortalID, project.ID.String(), task.ID.String(), time.Now()); err != nil {
		return fmt.Errorf("logged to Zoho but failed to mark event %d: %w", ev.ID, err)
	}
	fmt.Printf("✅ %s (%s %s-%s) -> %s / %s\n", result.Message, entry.Date, entry.StartTime, entry.EndTime, project.Name, task.Name)
	return nil
}

func checkLoggable(ev *models.Event, now time.Time) error {
	if ev.IsLogged {
		return fmt.Errorf("event %d was already logged", ev.ID)
	}
	if ev.EndTime.After(now) {
		return fmt.Errorf("event %d ends at %s and cannot be logged yet", ev.ID, ev.EndTime.Local().Format(time.Kitchen))
	}
	return nil
}

func googleLogin(ctx context.Context, a *app.App) error {
	if a.Google == nil {
		return fmt.Errorf("google calendar is disabled (set google.enabled or GOOGLE_CALENDAR_ENABLED)")
	}
	_, err := a.Google.AuthorizeLocal(ctx, func(authURL string) {
		fmt.Println(strings.Repeat("=", 60))
		fmt.Println("Open this URL in your browser to authorize Google Calendar:")
		fmt.Println(authURL)
		fmt.Println(strings.Repeat("=", 60))
	})
	if err != nil {
		return err
	}
	fmt.Printf("✅ Token saved to %s\n", a.Google.Tokens().Path)
	return nil
}
