package deadletter

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound       = errors.New("dead-letter entry not found")
	ErrInvalidState   = errors.New("dead-letter entry is not pending review")
	ErrUnknownBackend = errors.New("unknown dead-letter backend")
)

// MapHTTPStatus converts domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrInvalidState) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
