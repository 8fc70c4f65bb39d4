package handlers

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/calendarlogger/calendar-logger/internal/auth/credentials"
	"github.com/calendarlogger/calendar-logger/internal/calendar"
	"github.com/calendarlogger/calendar-logger/internal/db"
	"gorm.io/gorm"
)

type calendarSettings struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

type settingsResponse struct {
	Zoho     credentials.Credentials `json:"zoho"`
	Calendar calendarSettings        `json:"calendar"`
}

type settingsRequest struct {
	Zoho     *credentials.Credentials `json:"zoho,omitempty"`
	Calendar *calendarSettings        `json:"calendar,omitempty"`
}

// GetSettingsHandler returns the Zoho settings with secrets masked and the
// visible calendar hours.
func GetSettingsHandler(store credentials.Store, svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds, err := store.Get(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		start, end := svc.Hours(r.Context())
		writeJSON(w, http.StatusOK, settingsResponse{
			Zoho:     creds.Masked(),
			Calendar: calendarSettings{StartHour: start, EndHour: end},
		})
	}
}

// UpdateSettingsHandler saves Zoho settings and calendar hours. Secrets sent
// back empty or still masked keep their stored value. onZohoChange runs after
// the Zoho settings were saved.
func UpdateSettingsHandler(database *gorm.DB, store credentials.Store, svc *calendar.Service, onZohoChange func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settingsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		if req.Calendar != nil {
			if err := db.SetCalendarHours(database.WithContext(r.Context()), req.Calendar.StartHour, req.Calendar.EndHour); err != nil {
				writeError(w, r, err)
				return
			}
		}

		if req.Zoho != nil {
			current, err := store.Get(r.Context())
			if err != nil {
				writeError(w, r, err)
				return
			}
			next := *req.Zoho
			next.ClientSecret = keepSecret(next.ClientSecret, current.ClientSecret)
			next.RefreshToken = keepSecret(next.RefreshToken, current.RefreshToken)
			if err := store.Save(r.Context(), next); err != nil {
				writeError(w, r, err)
				return
			}
			log.Printf("⚙️ Zoho settings updated (domain=%s portal=%s)", next.APIDomain, next.PortalID)
			if onZohoChange != nil {
				onZohoChange()
			}
		}

		creds, err := store.Get(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		start, end := svc.Hours(r.Context())
		writeJSON(w, http.StatusOK, settingsResponse{
			Zoho:     creds.Masked(),
			Calendar: calendarSettings{StartHour: start, EndHour: end},
		})
	}
}

func keepSecret(sent, stored string) string {
	if sent == "" || strings.HasPrefix(sent, "****") {
		return stored
	}
	return sent
}

// GetAPIKeyHandler returns the local API key.
func GetAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := db.GetAPIKey(database)
		masked := false
		if shouldMaskSensitiveData() {
			apiKey = maskAPIKey(apiKey)
			masked = true
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"api_key": apiKey,
			"masked":  masked,
		})
	}
}

// RegenerateAPIKeyHandler replaces the local API key. Clients holding the old
// key are rejected from the next request on.
func RegenerateAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey, err := db.RegenerateAPIKey(database)
		if err != nil {
			writeError(w, r, err)
			return
		}
		displayKey := apiKey
		masked := false
		if shouldMaskSensitiveData() {
			displayKey = maskAPIKey(apiKey)
			masked = true
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"api_key": displayKey,
			"masked":  masked,
		})
	}
}

func shouldMaskSensitiveData() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("CALLOG_MASK_SENSITIVE")))
	return v == "1" || v == "true" || v == "yes"
}

func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 10 {
		return "***"
	}
	return apiKey[:6] + strings.Repeat("*", len(apiKey)-10) + apiKey[len(apiKey)-4:]
}
