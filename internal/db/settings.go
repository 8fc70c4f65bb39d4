package db

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/calendarlogger/calendar-logger/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetSetting returns the value stored under key, or "" when absent.
func GetSetting(db *gorm.DB, key string) (string, error) {
	var s models.Setting
	err := db.Where("key = ?", key).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

// GetSettings returns the values for keys; absent keys map to "".
func GetSettings(db *gorm.DB, keys ...string) (map[string]string, error) {
	var rows []models.Setting
	if err := db.Where("key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = ""
	}
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// SetSetting upserts one key.
func SetSetting(db *gorm.DB, key, value string) error {
	return SetSettings(db, map[string]string{key: value})
}

// SetSettings upserts all pairs in one transaction.
func SetSettings(db *gorm.DB, values map[string]string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for k, v := range values {
			row := models.Setting{Key: k, Value: v}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ErrInvalidSetting is returned when a setting value is rejected.
var ErrInvalidSetting = errors.New("invalid setting")

// Setting keys for the visible calendar hours.
const (
	KeyCalendarStartHour = "calendar_start_hour"
	KeyCalendarEndHour   = "calendar_end_hour"
)

// CalendarHours returns the stored hour window. ok is false when either
// value is missing, unparsable or out of range.
func CalendarHours(db *gorm.DB) (start, end int, ok bool, err error) {
	values, err := GetSettings(db, KeyCalendarStartHour, KeyCalendarEndHour)
	if err != nil {
		return 0, 0, false, err
	}
	start, errStart := strconv.Atoi(values[KeyCalendarStartHour])
	end, errEnd := strconv.Atoi(values[KeyCalendarEndHour])
	if errStart != nil || errEnd != nil || start < 0 || end > 24 || start >= end {
		return 0, 0, false, nil
	}
	return start, end, true, nil
}

// SetCalendarHours stores the visible hour window.
func SetCalendarHours(db *gorm.DB, start, end int) error {
	if start < 0 || end > 24 || start >= end {
		return fmt.Errorf("%w: calendar hours %d-%d", ErrInvalidSetting, start, end)
	}
	return SetSettings(db, map[string]string{
		KeyCalendarStartHour: strconv.Itoa(start),
		KeyCalendarEndHour:   strconv.Itoa(end),
	})
}
