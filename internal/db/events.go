package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calendarlogger/calendar-logger/internal/db/models"
	"gorm.io/gorm"
)

var (
	// ErrEventNotFound is returned when no event has the requested id.
	ErrEventNotFound = errors.New("event not found")
	// ErrInvalidEvent is returned when an event fails validation.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrEventLogged is returned when changing an event already logged to Zoho.
	ErrEventLogged = errors.New("event already logged")
)

// logClaimTTL bounds how long an unfinished log attempt keeps others out.
const logClaimTTL = 5 * time.Minute

// frozen reports whether e is logged or has a live log claim.
func frozen(e *models.Event, now time.Time) bool {
	return e.IsLogged || (e.LogClaimedAt != nil && e.LogClaimedAt.After(now.Add(-logClaimTTL)))
}

// EventStore persists local calendar events.
type EventStore struct {
	db *gorm.DB
}

// NewEventStore wraps db.
func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{db: db}
}

func validateEvent(e *models.Event) error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEvent)
	}
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return fmt.Errorf("%w: start and end time are required", ErrInvalidEvent)
	}
	if !e.EndTime.After(e.StartTime) {
		return fmt.Errorf("%w: end time must be after start time", ErrInvalidEvent)
	}
	// SQLite compares times as text; keep a single offset.
	e.StartTime = e.StartTime.UTC()
	e.EndTime = e.EndTime.UTC()
	return nil
}

// Create inserts e and fills its ID.
func (s *EventStore) Create(ctx context.Context, e *models.Event) error {
	if err := validateEvent(e); err != nil {
		return err
	}
	e.ID = 0
	e.IsLogged = false
	e.LoggedAt = nil
	e.LogClaimedAt = nil
	return s.db.WithContext(ctx).Create(e).Error
}

// Get loads one event.
func (s *EventStore) Get(ctx context.Context, id uint) (*models.Event, error) {
	var e models.Event
	err := s.db.WithContext(ctx).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrEventNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Update rewrites name, description and times of an existing event. The
// logged state is left untouched.
func (s *EventStore) Update(ctx context.Context, id uint, name, description string, start, end time.Time) (*models.Event, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if frozen(e, time.Now()) {
		return nil, fmt.Errorf("%w: %d", ErrEventLogged, id)
	}
	e.Name = name
	e.Description = description
	e.StartTime = start
	e.EndTime = end
	if err := validateEvent(e); err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Model(e).Select("name", "description", "start_time", "end_time").Updates(e).Error
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Move reschedules an event to newStart, keeping its duration.
func (s *EventStore) Move(ctx context.Context, id uint, newStart time.Time) (*models.Event, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, id, e.Name, e.Description, newStart, newStart.Add(e.Duration()))
}

// Delete removes an event that has not been logged.
func (s *EventStore) Delete(ctx context.Context, id uint) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if frozen(e, time.Now()) {
		return fmt.Errorf("%w: %d", ErrEventLogged, id)
	}
	res := s.db.WithContext(ctx).Delete(&models.Event{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrEventNotFound, id)
	}
	return nil
}

// ListInRange returns events starting within [start, end], ordered by start.
func (s *EventStore) ListInRange(ctx context.Context, start, end time.Time) ([]models.Event, error) {
	var events []models.Event
	err := s.db.WithContext(ctx).
		Where("start_time >= ? AND start_time <= ?", start.UTC(), end.UTC()).
		Order("start_time ASC").
		Find(&events).Error
	return events, err
}

// ListAll returns every event ordered by start.
func (s *EventStore) ListAll(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := s.db.WithContext(ctx).Order("start_time ASC").Find(&events).Error
	return events, err
}

// ClaimForLogging reserves an unlogged event for one log attempt. While the
// claim is held, other claims, updates and deletes fail with ErrEventLogged.
// The claim ends with MarkLogged, ReleaseLogClaim or after logClaimTTL.
func (s *EventStore) ClaimForLogging(ctx context.Context, id uint, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Event{}).
		Where("id = ? AND is_logged = ? AND (log_claimed_at IS NULL OR log_claimed_at <= ?)", id, false, now.Add(-logClaimTTL).UTC()).
		Update("log_claimed_at", now.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %d", ErrEventLogged, id)
}

// ReleaseLogClaim drops the claim of an event that was not logged.
func (s *EventStore) ReleaseLogClaim(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.Event{}).
		Where("id = ? AND is_logged = ?", id, false).
		Update("log_claimed_at", nil).Error
}

// MarkLogged records that the event was logged to the given Zoho task. An
// event is marked at most once.
func (s *EventStore) MarkLogged(ctx context.Context, id uint, portalID, projectID, taskID string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Event{}).Where("id = ? AND is_logged = ?", id, false).Updates(map[string]interface{}{
		"is_logged":       true,
		"logged_at":       at.UTC(),
		"log_claimed_at":  nil,
		"zoho_portal_id":  portalID,
		"zoho_project_id": projectID,
		"zoho_task_id":    taskID,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %d", ErrEventLogged, id)
	}
	return nil
}
