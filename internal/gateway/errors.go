// Package gateway is the client for the remote agent-execution service.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a non-2xx response from the remote agent service, carrying
// the HTTP status and response body so callers can decide recoverability.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound returns true if the error is a 404 (unknown agent id).
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}

// IsRateLimited returns true if the error is a 429.
func IsRateLimited(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusTooManyRequests
}
