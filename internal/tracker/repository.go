package tracker

import (
	"context"
	"database/sql"
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
	now    func() time.Time
}

// New creates a Postgres-backed tracker. Appends lock the record row with
// SELECT ... FOR UPDATE so concurrent writers for one fileId serialize.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "tracker"),
		now:    time.Now,
	}
}

const recordColumns = `file_id, filename, content_type, size_bytes, source, checksum,
current_stage, overall_status, COALESCE(error_message, ''), reprocess_of, created_at, updated_at`

const stageColumns = `seq, stage, status, message, COALESCE(error, ''), COALESCE(provider, ''), detail, recorded_at`

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (ProcessingRecord, error) {
	if cmd.FileID == uuid.Nil {
		cmd.FileID = uuid.New()
	}
	rec := newRecord(cmd, r.now().UTC())

	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO processing_records
				(file_id, filename, content_type, size_bytes, source, checksum,
				 current_stage, overall_status, reprocess_of, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
			rec.FileID, rec.Filename, rec.ContentType, rec.SizeBytes, rec.Source, rec.Checksum,
			rec.CurrentStage, rec.OverallStatus, rec.ReprocessOf, rec.CreatedAt,
		)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, insertStage(ctx, tx, rec.FileID, rec.Stages[0])
	})
	if err != nil {
		return ProcessingRecord{}, fmt.Errorf("create record: %w", repository.MapError(err, ErrNotFound, ErrDuplicate))
	}

	r.logger.Info("processing record created", "file_id", rec.FileID, "filename", rec.Filename)
	return rec, nil
}

func (r *repo) AppendStage(ctx context.Context, fileID uuid.UUID, cmd StageCommand) (StageEntry, error) {
	entry, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (StageEntry, error) {
		rec, err := repository.QueryOne(ctx, tx,
			`SELECT `+recordColumns+` FROM processing_records WHERE file_id = $1 FOR UPDATE`,
			[]any{fileID}, scanRecord)
		if err != nil {
			return StageEntry{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
		}

		if rec.Stages, err = loadStages(ctx, tx, fileID); err != nil {
			return StageEntry{}, err
		}

		entry, err := apply(&rec, cmd, r.now().UTC())
		if err != nil {
			return StageEntry{}, err
		}

		if err := insertStage(ctx, tx, fileID, entry); err != nil {
			return StageEntry{}, err
		}

		err = repository.ExecExpectOne(ctx, tx, `
			UPDATE processing_records
			SET current_stage = $2, overall_status = $3, error_message = NULLIF($4, ''), updated_at = $5
			WHERE file_id = $1`,
			fileID, rec.CurrentStage, rec.OverallStatus, rec.ErrorMessage, rec.UpdatedAt,
		)
		return entry, err
	})
	if err != nil {
		return StageEntry{}, fmt.Errorf("append stage: %w", err)
	}

	r.logger.Info("stage appended",
		"file_id", fileID,
		"stage", entry.Stage,
		"status", entry.Status,
		"provider", entry.Provider,
	)
	return entry, nil
}

func (r *repo) GetStatus(ctx context.Context, fileID uuid.UUID) (ProcessingRecord, error) {
	rec, err := repository.QueryOne(ctx, r.db,
		`SELECT `+recordColumns+` FROM processing_records WHERE file_id = $1`,
		[]any{fileID}, scanRecord)
	if err != nil {
		return ProcessingRecord{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	if rec.Stages, err = loadStages(ctx, r.db, fileID); err != nil {
		return ProcessingRecord{}, err
	}
	return rec, nil
}

const filterClause = `WHERE ($1 = '' OR overall_status = $1) AND ($2 = '' OR current_stage = $2)`

func (r *repo) List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[ProcessingRecord], error) {
	args := []any{string(filters.Status), string(filters.Stage)}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processing_records `+filterClause, args...).Scan(&total); err != nil {
		return pagination.PageResult[ProcessingRecord]{}, fmt.Errorf("count records: %w", err)
	}

	records, err := repository.QueryMany(ctx, r.db,
		`SELECT `+recordColumns+` FROM processing_records `+filterClause+`
		ORDER BY created_at DESC, file_id LIMIT $3 OFFSET $4`,
		append(args, page.PageSize, page.Offset()), scanRecord)
	if err != nil {
		return pagination.PageResult[ProcessingRecord]{}, fmt.Errorf("list records: %w", err)
	}

	for i := range records {
		if records[i].Stages, err = loadStages(ctx, r.db, records[i].FileID); err != nil {
			return pagination.PageResult[ProcessingRecord]{}, err
		}
	}

	return pagination.NewPageResult(records, total, page.Page, page.PageSize), nil
}

func (r *repo) Stats(ctx context.Context, since time.Time) (Stats, error) {
	records, err := repository.QueryMany(ctx, r.db,
		`SELECT `+recordColumns+` FROM processing_records WHERE created_at >= $1`,
		[]any{since}, scanRecord)
	if err != nil {
		return Stats{}, fmt.Errorf("stats records: %w", err)
	}

	index := make(map[uuid.UUID]int, len(records))
	for i, rec := range records {
		index[rec.FileID] = i
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT s.file_id, s.seq, s.stage, s.status, s.message, COALESCE(s.error, ''),
		       COALESCE(s.provider, ''), s.detail, s.recorded_at
		FROM processing_stages s
		JOIN processing_records r ON r.file_id = s.file_id
		WHERE r.created_at >= $1
		ORDER BY s.file_id, s.seq`, since)
	if err != nil {
		return Stats{}, fmt.Errorf("stats stages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     uuid.UUID
			e      StageEntry
			detail []byte
		)
		if err := rows.Scan(&id, &e.Seq, &e.Stage, &e.Status, &e.Message, &e.Error, &e.Provider, &detail, &e.RecordedAt); err != nil {
			return Stats{}, err
		}
		e.Detail = detail
		if i, ok := index[id]; ok {
			records[i].Stages = append(records[i].Stages, e)
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	return summarize(since, records), nil
}

func loadStages(ctx context.Context, q repository.Querier, fileID uuid.UUID) ([]StageEntry, error) {
	stages, err := repository.QueryMany(ctx, q,
		`SELECT `+stageColumns+` FROM processing_stages WHERE file_id = $1 ORDER BY seq`,
		[]any{fileID}, scanStage)
	if err != nil {
		return nil, fmt.Errorf("load stages: %w", err)
	}
	return stages, nil
}

func insertStage(ctx context.Context, e repository.Executor, fileID uuid.UUID, s StageEntry) error {
	var detail any
	if len(s.Detail) > 0 {
		detail = string(s.Detail)
	}

	_, err := e.ExecContext(ctx, `
		INSERT INTO processing_stages
			(file_id, seq, stage, status, message, error, provider, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8::jsonb, $9)`,
		fileID, s.Seq, s.Stage, s.Status, s.Message, s.Error, s.Provider, detail, s.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stage: %w", err)
	}
	return nil
}

func scanRecord(s repository.Scanner) (ProcessingRecord, error) {
	var r ProcessingRecord
	err := s.Scan(
		&r.FileID,
		&r.Filename,
		&r.ContentType,
		&r.SizeBytes,
		&r.Source,
		&r.Checksum,
		&r.CurrentStage,
		&r.OverallStatus,
		&r.ErrorMessage,
		&r.ReprocessOf,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func scanStage(s repository.Scanner) (StageEntry, error) {
	var (
		e      StageEntry
		detail []byte
	)
	err := s.Scan(&e.Seq, &e.Stage, &e.Status, &e.Message, &e.Error, &e.Provider, &detail, &e.RecordedAt)
	e.Detail = detail
	return e, err
}
