package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMessagePrecedence(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"message wins", 400, `{"message":"Custom error","error":"ignored"}`, "Custom error"},
		{"error field", 409, `{"error":"Email already registered"}`, "Email already registered"},
		{"nested error object", 400, `{"error":{"message":"Card declined"}}`, "Card declined"},
		{"validation map", 422, `{"errors":{"email":["is required"],"name":["is required"]}}`, "is required, is required"},
		{"validation list", 422, `{"errors":["a","b"]}`, "a, b"},
		{"plain text", 500, "Server exploded", "Server exploded"},
		{"json without known fields", 503, `{"status":"down"}`, "503 - Service Unavailable"},
		{"empty message falls through", 400, `{"message":"","error":"bad input"}`, "bad input"},
		{"empty body", 502, "", "502 - Bad Gateway"},
		{"json string body", 500, `"Server exploded"`, "Server exploded"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractMessage(tc.status, []byte(tc.body), 200))
		})
	}
}

func TestExtractMessageTruncatesPlainText(t *testing.T) {
	body := strings.Repeat("é", 250)
	got := extractMessage(500, []byte(body), 200)
	assert.Equal(t, strings.Repeat("é", 200), got)
}

func TestAPIErrorMatching(t *testing.T) {
	err := error(newAPIError(http.StatusUnauthorized, []byte(`{"message":"Token expired"}`), 200))
	assert.True(t, errors.Is(err, ErrAPI))
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.EqualError(t, err, "Token expired")

	other := error(newAPIError(http.StatusNotFound, nil, 200))
	assert.True(t, errors.Is(other, ErrAPI))
	assert.False(t, errors.Is(other, ErrUnauthorized))
	assert.EqualError(t, other, "404 - Not Found")

	var apiErr *APIError
	assert.True(t, errors.As(other, &apiErr))
	assert.Equal(t, "Not Found", apiErr.StatusText)
}

func TestNetworkAndSessionErrors(t *testing.T) {
	netErr := error(&NetworkError{BaseURL: "http://127.0.0.1:1", Err: errors.New("connection refused")})
	assert.True(t, errors.Is(netErr, ErrNetworkUnreachable))
	assert.Contains(t, netErr.Error(), "http://127.0.0.1:1")

	cause := errors.New("refresh returned 401")
	expired := error(&SessionExpiredError{Cause: cause})
	assert.True(t, errors.Is(expired, ErrSessionExpired))
	assert.Contains(t, expired.Error(), "refresh returned 401")

	timedOut := error(&SessionExpiredError{Cause: fmt.Errorf("%w after 10s: POST /refresh", ErrTimeout)})
	assert.True(t, errors.Is(timedOut, ErrSessionExpired))
	assert.False(t, errors.Is(timedOut, ErrTimeout), "a dead session is not retryable")
	unreachable := error(&SessionExpiredError{Cause: netErr})
	assert.False(t, errors.Is(unreachable, ErrNetworkUnreachable))
	var se *SessionExpiredError
	require.True(t, errors.As(unreachable, &se))
	assert.ErrorIs(t, se.Cause, ErrNetworkUnreachable)
	assert.Equal(t, "session expired", (&SessionExpiredError{}).Error())
}
