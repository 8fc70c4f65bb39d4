// Package apierr defines the failure taxonomy shared by the Zoho access layer
// and its consumers. Every failure returned by the layer wraps one of the
// sentinels below, so callers classify with errors.Is / errors.As.
package apierr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means the API domain, credentials or user email are missing.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuth means the access token could not be obtained or was rejected twice.
	ErrAuth = errors.New("authentication failed")
	// ErrNetwork means the request never produced an HTTP response.
	ErrNetwork = errors.New("network error")
	// ErrNotFound means a successfully fetched list did not contain the item.
	ErrNotFound = errors.New("not found")
	// ErrMalformedResponse means a 2xx body had an unexpected shape.
	ErrMalformedResponse = errors.New("malformed response")
)

// RemoteError is a non-2xx response that survived the single re-auth retry.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("zoho api error: %d - %s", e.StatusCode, e.Body)
}

// Configuration returns an ErrConfiguration carrying msg.
func Configuration(msg string) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, msg)
}

// Malformed returns an ErrMalformedResponse carrying msg.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// StatusCode returns the remote status carried by err, or 0.
func StatusCode(err error) int {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.StatusCode
	}
	return 0
}
