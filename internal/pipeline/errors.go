package pipeline

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/invoice-pipeline/internal/deadletter"
	"github.com/JaimeStill/invoice-pipeline/internal/tracker"
)

var (
	// ErrPersistence wraps tracker, dead-letter and payload store failures.
	// These abort the document and are always returned to the caller.
	ErrPersistence = errors.New("persistence failure")
	ErrQueueFull   = errors.New("processing queue is full")
	ErrPoolClosed  = errors.New("processing pool is closed")
	ErrInvalidFile = errors.New("invalid file")
	ErrTooLarge    = errors.New("upload exceeds request limit")
)

// MapHTTPStatus converts pipeline and wrapped domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidFile):
		return http.StatusBadRequest
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, deadletter.ErrNotFound), errors.Is(err, deadletter.ErrInvalidState):
		return deadletter.MapHTTPStatus(err)
	case errors.Is(err, tracker.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
