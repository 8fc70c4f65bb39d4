package models

import "time"

// Setting is one key/value row: API key, Zoho credentials, calendar hours.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
