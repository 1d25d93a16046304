// Package storage persists submission payloads as immutable blobs.
// Keys are slash-separated relative paths. A key is written at most once:
// storing to a key that already exists leaves the original bytes untouched,
// which keeps retried writes for the same submission idempotent.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/invoice-pipeline/pkg/lifecycle"
)

// System defines blob storage operations.
type System interface {
	// Store writes data at key unless the key already exists.
	// Returns ErrInvalidKey for empty or traversing keys.
	Store(ctx context.Context, key string, data []byte) error

	// Retrieve returns the bytes stored at key or ErrNotFound.
	Retrieve(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Validate reports whether key exists.
	Validate(ctx context.Context, key string) (bool, error)

	// Start registers lifecycle hooks with the coordinator.
	Start(lc *lifecycle.Coordinator) error
}

// New creates the storage backend selected by cfg.Backend.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	switch cfg.Backend {
	case "", BackendFilesystem:
		return newFilesystem(cfg, logger)
	case BackendGCS:
		return newGCS(context.Background(), cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
