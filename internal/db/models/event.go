package models

import "time"

// Event is a locally stored calendar event. Once logged to Zoho it records
// where the time went.
type Event struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Name          string     `gorm:"not null" json:"name"`
	Description   string     `gorm:"type:text" json:"description"`
	StartTime     time.Time  `gorm:"index;not null" json:"start_time"`
	EndTime       time.Time  `gorm:"not null" json:"end_time"`
	IsLogged      bool       `gorm:"default:false" json:"is_logged"`
	LoggedAt      *time.Time `json:"logged_at,omitempty"`
	ZohoPortalID  string     `json:"zoho_portal_id,omitempty"`
	ZohoProjectID string     `json:"zoho_project_id,omitempty"`
	ZohoTaskID    string     `json:"zoho_task_id,omitempty"`
	LogClaimedAt  *time.Time `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Duration is EndTime - StartTime.
func (e Event) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}
