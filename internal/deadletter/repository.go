package deadletter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoice-pipeline/pkg/pagination"
	"github.com/JaimeStill/invoice-pipeline/pkg/repository"
)

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Postgres-backed store over the dead_letters table.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "deadletter"),
	}
}

const entryColumns = `file_id, payload_ref, failure_reason, retry_count, entry_status,
COALESCE(resolution_notes, ''), reprocessed_as, first_seen_at, last_attempt_at, resolved_at`

// The insert and the conflict update run as one statement under the primary
// key's unique index, so concurrent callers for one fileId cannot both insert.
const enqueueQuery = `
INSERT INTO dead_letters (file_id, payload_ref, failure_reason)
VALUES ($1, $2, $3)
ON CONFLICT (file_id) DO UPDATE SET
  retry_count = dead_letters.retry_count + 1,
  last_attempt_at = GREATEST(dead_letters.last_attempt_at, NOW())
RETURNING ` + entryColumns

func (r *repo) Enqueue(ctx context.Context, fileID uuid.UUID, payloadRef, reason string) (Entry, error) {
	e, err := repository.QueryOne(ctx, r.db, enqueueQuery, []any{fileID, payloadRef, reason}, scanEntry)
	if err != nil {
		return Entry{}, fmt.Errorf("enqueue dead letter: %w", err)
	}

	if e.RetryCount == 1 {
		r.logger.Warn("dead-letter entry created", "file_id", fileID, "reason", reason)
	} else {
		r.logger.Warn("dead-letter retry recorded", "file_id", fileID, "retry_count", e.RetryCount)
	}
	return e, nil
}

func (r *repo) Resolve(ctx context.Context, fileID uuid.UUID, cmd ResolveCommand) (Entry, error) {
	return r.close(ctx, fileID, `
		UPDATE dead_letters
		SET entry_status = 'RESOLVED', resolution_notes = NULLIF($2, ''), resolved_at = NOW()
		WHERE file_id = $1 AND entry_status = 'PENDING_REVIEW'
		RETURNING `+entryColumns,
		fileID, cmd.ResolutionNotes,
	)
}

func (r *repo) Reprocess(ctx context.Context, fileID, reprocessedAs uuid.UUID) (Entry, error) {
	return r.close(ctx, fileID, `
		UPDATE dead_letters
		SET entry_status = 'REPROCESSED', reprocessed_as = $2, resolved_at = NOW()
		WHERE file_id = $1 AND entry_status = 'PENDING_REVIEW'
		RETURNING `+entryColumns,
		fileID, reprocessedAs,
	)
}

// close runs a conditional update guarded on PENDING_REVIEW. No returned row
// means the entry is missing or already closed.
func (r *repo) close(ctx context.Context, fileID uuid.UUID, query string, args ...any) (Entry, error) {
	e, err := repository.QueryOne(ctx, r.db, query, args, scanEntry)
	if errors.Is(err, sql.ErrNoRows) {
		if _, findErr := r.Find(ctx, fileID); findErr != nil {
			return Entry{}, findErr
		}
		return Entry{}, ErrInvalidState
	}
	if err != nil {
		return Entry{}, fmt.Errorf("close dead letter: %w", err)
	}

	r.logger.Info("dead-letter entry closed", "file_id", fileID, "status", e.Status)
	return e, nil
}

func (r *repo) Find(ctx context.Context, fileID uuid.UUID) (Entry, error) {
	e, err := repository.QueryOne(ctx, r.db,
		`SELECT `+entryColumns+` FROM dead_letters WHERE file_id = $1`,
		[]any{fileID}, scanEntry)
	if err != nil {
		return Entry{}, repository.MapError(err, ErrNotFound, ErrInvalidState)
	}
	return e, nil
}

func (r *repo) List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Entry], error) {
	const where = `WHERE ($1 = '' OR entry_status = $1)`
	status := string(filters.Status)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters `+where, status).Scan(&total); err != nil {
		return pagination.PageResult[Entry]{}, fmt.Errorf("count dead letters: %w", err)
	}

	entries, err := repository.QueryMany(ctx, r.db,
		`SELECT `+entryColumns+` FROM dead_letters `+where+`
		ORDER BY first_seen_at, file_id LIMIT $2 OFFSET $3`,
		[]any{status, page.PageSize, page.Offset()}, scanEntry)
	if err != nil {
		return pagination.PageResult[Entry]{}, fmt.Errorf("list dead letters: %w", err)
	}

	return pagination.NewPageResult(entries, total, page.Page, page.PageSize), nil
}

func (r *repo) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM dead_letters
		WHERE entry_status IN ('RESOLVED', 'REPROCESSED') AND resolved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if n > 0 {
		r.logger.Info("dead-letter entries purged", "count", n, "cutoff", cutoff)
	}
	return int(n), nil
}

func scanEntry(s repository.Scanner) (Entry, error) {
	var e Entry
	err := s.Scan(
		&e.FileID,
		&e.PayloadRef,
		&e.FailureReason,
		&e.RetryCount,
		&e.Status,
		&e.ResolutionNotes,
		&e.ReprocessedAs,
		&e.FirstSeenAt,
		&e.LastAttemptAt,
		&e.ResolvedAt,
	)
	return e, err
}
