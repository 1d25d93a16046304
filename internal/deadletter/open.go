package deadletter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Open builds the backend selected by cfg. The returned func releases any
// client the backend owns and is never nil.
func Open(ctx context.Context, cfg *Config, db *sql.DB, logger *slog.Logger) (System, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case BackendPostgres:
		if db == nil {
			return nil, nil, fmt.Errorf("postgres dead-letter backend requires a database connection")
		}
		return New(db, logger), noop, nil
	case BackendFirestore:
		return NewFirestore(ctx, cfg.Firestore, logger)
	case BackendMemory:
		return NewMemory(logger, nil), noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
