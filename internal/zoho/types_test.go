package zoho

import (
	"encoding/json"
	"testing"
	"time"
)

func TestID_DecodesStringsAndNumbers(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
		D ID `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"a":"123","b":1752587000000012345,"c":null}`), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v.A != "123" || v.B != "1752587000000012345" || v.C != "" || v.D != "" {
		t.Fatalf("unexpected ids %+v", v)
	}
	if err := json.Unmarshal([]byte(`{"a":true}`), &v); err == nil {
		t.Fatal("expected error for a boolean id")
	}
}

func TestProject_StatusShapes(t *testing.T) {
	tests := []struct {
		body   string
		status string
		active bool
	}{
		{body: `{"id":1,"status":{"name":"Fase Finale"}}`, status: "Fase Finale", active: true},
		{body: `{"id":1,"status":"In entrata"}`, status: "In entrata", active: true},
		{body: `{"id":1,"status":{"name":"Chiuso"}}`, status: "Chiuso"},
		{body: `{"id":1}`, status: ""},
	}
	for _, tt := range tests {
		var p Project
		if err := json.Unmarshal([]byte(tt.body), &p); err != nil {
			t.Fatalf("Unmarshal %s: %v", tt.body, err)
		}
		if p.Status != tt.status || p.IsActive() != tt.active {
			t.Errorf("%s: status=%q active=%v", tt.body, p.Status, p.IsActive())
		}
	}
}

func TestTask_OwnersFallback(t *testing.T) {
	var task Task
	if err := json.Unmarshal([]byte(`{"id":42,"name":"Legacy","owners":[{"email":"me@example.com"}]}`), &task); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if task.ID != "42" || !task.OwnedBy("me@example.com") || task.OwnedBy("") {
		t.Fatalf("unexpected task %+v", task)
	}
}

func TestUser_OwnerIDFallsBackToID(t *testing.T) {
	if got := (User{ID: "9"}).OwnerID(); got != "9" {
		t.Fatalf("OwnerID = %s", got)
	}
}

func TestNewTimeLogEntry_Formats(t *testing.T) {
	start := time.Date(2025, 3, 4, 14, 5, 0, 0, time.UTC)
	entry := NewTimeLogEntry("Review", "notes", start, start.Add(95*time.Minute), "Non Billable")
	if entry.Date != "03-04-2025" || entry.StartTime != "02:05 PM" || entry.EndTime != "03:40 PM" {
		t.Fatalf("unexpected formatting %+v", entry)
	}
	if entry.BillStatus != "Non Billable" {
		t.Fatalf("BillStatus = %s", entry.BillStatus)
	}
}
