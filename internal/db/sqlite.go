package db

import (
	"crypto/rand"
	"encoding/hex"
	"log"

	"github.com/calendarlogger/calendar-logger/internal/db/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const apiKeySetting = "api_key"

// InitDB opens the SQLite database and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	// Ensure API key exists (generate on first run)
	if _, err := ensureAPIKey(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Event{}, &models.Setting{})
}

// ensureAPIKey generates the local API key if it does not exist yet.
func ensureAPIKey(db *gorm.DB) (string, error) {
	key, err := GetSetting(db, apiKeySetting)
	if err != nil {
		return "", err
	}
	if key != "" {
		return key, nil
	}

	key = newAPIKey()
	if err := SetSetting(db, apiKeySetting, key); err != nil {
		return "", err
	}
	log.Printf("🔑 Generated new API key: %s", key)
	return key, nil
}

// GetAPIKey returns the local API key, or "" if none is stored.
func GetAPIKey(db *gorm.DB) string {
	key, err := GetSetting(db, apiKeySetting)
	if err != nil {
		log.Printf("⚠️ Failed to read API key: %v", err)
		return ""
	}
	return key
}

// RegenerateAPIKey replaces the local API key.
func RegenerateAPIKey(db *gorm.DB) (string, error) {
	key := newAPIKey()
	if err := SetSetting(db, apiKeySetting, key); err != nil {
		return "", err
	}
	log.Printf("🔑 Regenerated API key: %s", key)
	return key, nil
}

// newAPIKey returns "cl-" followed by 32 hex chars.
func newAPIKey() string {
	keyBytes := make([]byte, 16)
	rand.Read(keyBytes)
	return "cl-" + hex.EncodeToString(keyBytes)
}
