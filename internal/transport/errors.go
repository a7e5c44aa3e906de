package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned for HTTP 401. The token is no longer valid
	// and a new login is required.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotAuthenticated is returned, without touching the network, when an
	// authenticated request is attempted while the session is not online.
	ErrNotAuthenticated = errors.New("not logged in")
)

// CommunicationError covers network failures, timeouts, non-auth HTTP errors
// and unreadable response bodies.
type CommunicationError struct {
	Endpoint   string
	StatusCode int // 0 when no response was received
	Message    string
	Err        error
}

func (e *CommunicationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("communication error (%d) at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("communication error at %s: %s: %v", e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("communication error at %s: %s", e.Endpoint, e.Message)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// ConfigurationError means the request could not be built from the current
// configuration (for example a malformed hostname). Retrying does not help.
type ConfigurationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error for %s (value: %q): %s: %v", e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error for %s (value: %q): %s", e.Field, e.Value, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is, or wraps, a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
