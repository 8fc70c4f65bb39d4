// Package handlers implements the local JSON API the calendar front end
// talks to.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/calendarlogger/calendar-logger/internal/apierr"
	"github.com/calendarlogger/calendar-logger/internal/db"
	"github.com/calendarlogger/calendar-logger/internal/logging"
	"github.com/calendarlogger/calendar-logger/internal/zoho"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, db.ErrInvalidEvent),
		errors.Is(err, db.ErrInvalidSetting), errors.Is(err, zoho.ErrInvalidEntry):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, db.ErrEventNotFound), errors.Is(err, apierr.ErrNotFound):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, db.ErrEventLogged):
		return http.StatusConflict, "conflict_error"
	case errors.Is(err, apierr.ErrConfiguration):
		return http.StatusPreconditionFailed, "configuration_error"
	case errors.Is(err, apierr.ErrAuth):
		return http.StatusUnauthorized, "authentication_error"
	case errors.Is(err, apierr.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "network_error"
	case errors.Is(err, apierr.ErrMalformedResponse):
		return http.StatusBadGateway, "malformed_response_error"
	case apierr.StatusCode(err) != 0:
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("❌ %s%s %s: %v", logging.Tag(r.Context()), r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"message": err.Error(), "type": kind},
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func idParam(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid event id %q", raw)
	}
	return uint(id), nil
}
