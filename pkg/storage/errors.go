package storage

import "errors"

var (
	// ErrNotFound indicates the key does not exist.
	ErrNotFound = errors.New("storage: key not found")

	// ErrPermissionDenied indicates the backend refused access to the key.
	ErrPermissionDenied = errors.New("storage: permission denied")

	// ErrInvalidKey covers empty keys and keys that escape the storage root.
	ErrInvalidKey = errors.New("storage: invalid key")

	// ErrUnknownBackend is returned by New for an unsupported backend name.
	ErrUnknownBackend = errors.New("storage: unknown backend")
)
