package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

var (
	// ErrNotLoggedIn is returned before any request is sent when there
	// is no saved session.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrSessionExpired means the refresh token was rejected. The saved
	// session has been cleared.
	ErrSessionExpired = errors.New("session expired, please log in again")

	// ErrConfirmationExpired is returned by Confirm and CancelWrite when
	// the token is no longer valid on the server.
	ErrConfirmationExpired = errors.New("confirmation expired")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := http.StatusText(e.StatusCode)
	if m := serverMessage(e.Body); m != "" {
		msg = m
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, msg)
}

// serverMessage extracts {"message": ...} or {"error": ...} from an
// error body, falling back to short plain-text bodies.
func serverMessage(body string) string {
	if body == "" {
		return ""
	}
	if gjson.Valid(body) {
		for _, key := range []string{"message", "error", "msg"} {
			if v := gjson.Get(body, key); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
		return ""
	}
	if len(body) > 200 {
		return body[:200]
	}
	return body
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
