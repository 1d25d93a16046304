package tracker

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound          = errors.New("processing record not found")
	ErrDuplicate         = errors.New("processing record already exists")
	ErrInvalidStage      = errors.New("invalid stage")
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrTerminal          = errors.New("processing record is terminal")
)

// MapHTTPStatus converts domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrTerminal) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidStage) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
