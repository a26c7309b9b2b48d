package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTimeout is returned when a request did not complete within Config.Timeout.
	// The client never retries a timed out request on its own.
	ErrTimeout = errors.New("request timed out")
	// ErrNetworkUnreachable is returned when the transport could not reach the base URL.
	ErrNetworkUnreachable = errors.New("network unreachable")
	// ErrSessionExpired is returned when the bearer token could not be refreshed.
	// It is terminal for the current session.
	ErrSessionExpired = errors.New("session expired")
	// ErrAPI is matched by every *APIError.
	ErrAPI = errors.New("api error")
	// ErrUnauthorized is matched by an *APIError carrying a 401 that was not recovered
	// by a refresh.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoSession is returned when an operation needs a session token and none is stored.
	ErrNoSession = errors.New("no session")
	// ErrInvalidEndpoint is returned for endpoints that are not relative paths.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	// ErrClientNotReady is returned when a nil or unbuilt Client is used.
	ErrClientNotReady = errors.New("client not initialized")
)

// APIError is a non-2xx response translated into a human readable message.
type APIError struct {
	Status     int
	StatusText string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return e.Message
}

// Is reports whether target is ErrAPI, or ErrUnauthorized for 401 responses.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAPI:
		return true
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// NetworkError wraps a transport failure together with the base URL that could not
// be reached.
type NetworkError struct {
	BaseURL string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network request failed: unable to reach %s: %v", e.BaseURL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetworkUnreachable }

// SessionExpiredError carries the reason a refresh failed. It matches ErrSessionExpired
// only: a refresh that timed out or could not reach the API is not a retryable
// ErrTimeout or ErrNetworkUnreachable for the caller. Inspect Cause for the reason.
type SessionExpiredError struct {
	Cause error
}

func (e *SessionExpiredError) Error() string {
	if e.Cause == nil {
		return ErrSessionExpired.Error()
	}
	return ErrSessionExpired.Error() + ": " + e.Cause.Error()
}

func (e *SessionExpiredError) Is(target error) bool { return target == ErrSessionExpired }
