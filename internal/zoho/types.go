package zoho

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ActiveStatuses is the allow-list of project status names exposed to callers.
var ActiveStatuses = []string{"In corso", "In sospeso", "In entrata", "Fase Finale"}

// ID is a Zoho identifier. The API emits ids both as JSON strings and as
// numbers depending on the endpoint, so both decode into the same string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// preferIDString returns the string form the v3 API sends alongside numeric ids.
func preferIDString(s string, id ID) ID {
	if s != "" {
		return ID(s)
	}
	return id
}

// Project is a snapshot of a Zoho project.
type Project struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (p *Project) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       ID              `json:"id"`
		IDString string          `json:"id_string"`
		Name     string          `json:"name"`
		Status   json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.ID = preferIDString(raw.IDString, raw.ID)
	p.Name = raw.Name
	p.Status = statusName(raw.Status)
	return nil
}

// statusName reads {"name": "..."} or a bare string.
func statusName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Name
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// IsActive reports whether the project status is in ActiveStatuses.
func (p Project) IsActive() bool {
	for _, s := range ActiveStatuses {
		if p.Status == s {
			return true
		}
	}
	return false
}

// Owner is one entry of a task's owner set.
type Owner struct {
	ID    ID     `json:"id"`
	ZPUID ID     `json:"zpuid"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Task is a snapshot of a Zoho task.
type Task struct {
	ID     ID      `json:"id"`
	Name   string  `json:"name"`
	Owners []Owner `json:"owners"`
}

func (t *Task) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID            ID      `json:"id"`
		IDString      string  `json:"id_string"`
		Name          string  `json:"name"`
		Owners        []Owner `json:"owners"`
		OwnersAndWork struct {
			Owners []Owner `json:"owners"`
		} `json:"owners_and_work"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t.ID = preferIDString(raw.IDString, raw.ID)
	t.Name = raw.Name
	t.Owners = raw.OwnersAndWork.Owners
	if len(t.Owners) == 0 {
		t.Owners = raw.Owners
	}
	return nil
}

// OwnedBy reports whether email is in the task's owner set. The comparison is
// exact.
func (t Task) OwnedBy(email string) bool {
	if email == "" {
		return false
	}
	for _, o := range t.Owners {
		if o.Email == email {
			return true
		}
	}
	return false
}

// User is a portal member.
type User struct {
	ID    ID     `json:"id"`
	ZPUID ID     `json:"zpuid"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OwnerID is the id time logs are attributed to: zpuid, falling back to id.
func (u User) OwnerID() string {
	if u.ZPUID != "" {
		return u.ZPUID.String()
	}
	return u.ID.String()
}

// TimeLogEntry is a time log built by the caller. Date is MM-DD-YYYY and the
// times are "hh:mm AM/PM", as the log endpoint expects.
type TimeLogEntry struct {
	PortalID   string
	ProjectID  string
	TaskID     string
	EventName  string
	Notes      string
	Date       string
	StartTime  string
	EndTime    string
	BillStatus string
	// OwnerID is filled in by LogTime from the configured user.
	OwnerID string
}

type timeLogModule struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type timeLogPayload struct {
	Name       string        `json:"name"`
	Notes      string        `json:"notes"`
	Date       string        `json:"date"`
	StartTime  string        `json:"start_time"`
	EndTime    string        `json:"end_time"`
	BillStatus string        `json:"bill_status"`
	OwnerZPUID string        `json:"owner_zpuid"`
	Module     timeLogModule `json:"module"`
}

func (e TimeLogEntry) payload() timeLogPayload {
	return timeLogPayload{
		Name:       e.EventName,
		Notes:      e.Notes,
		Date:       e.Date,
		StartTime:  e.StartTime,
		EndTime:    e.EndTime,
		BillStatus: e.BillStatus,
		OwnerZPUID: e.OwnerID,
		Module:     timeLogModule{ID: e.TaskID, Type: "task"},
	}
}

func (e TimeLogEntry) validate() error {
	var missing []string
	if strings.TrimSpace(e.PortalID) == "" {
		missing = append(missing, "portal id")
	}
	if strings.TrimSpace(e.ProjectID) == "" {
		missing = append(missing, "project id")
	}
	if strings.TrimSpace(e.TaskID) == "" {
		missing = append(missing, "task id")
	}
	if e.Date == "" || e.StartTime == "" || e.EndTime == "" {
		missing = append(missing, "date/time")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEntry, strings.Join(missing, ", "))
	}
	return nil
}

// LogResult is what LogTime returns instead of failing across the consumer
// boundary.
type LogResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}
