package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoice-pipeline/pkg/pagination"
)

type memory struct {
	mu      sync.Mutex
	records map[uuid.UUID]*ProcessingRecord
	now     func() time.Time
	logger  *slog.Logger
}

// NewMemory creates an in-process tracker. now defaults to time.Now.
func NewMemory(logger *slog.Logger, now func() time.Time) System {
	if now == nil {
		now = time.Now
	}
	return &memory{
		records: make(map[uuid.UUID]*ProcessingRecord),
		now:     now,
		logger:  logger.With("system", "tracker"),
	}
}

func (m *memory) Create(ctx context.Context, cmd CreateCommand) (ProcessingRecord, error) {
	if cmd.FileID == uuid.Nil {
		cmd.FileID = uuid.New()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[cmd.FileID]; ok {
		return ProcessingRecord{}, fmt.Errorf("%w: %s", ErrDuplicate, cmd.FileID)
	}

	rec := newRecord(cmd, m.now().UTC())
	m.records[cmd.FileID] = &rec

	m.logger.Info("processing record created", "file_id", rec.FileID, "filename", rec.Filename)
	return clone(rec), nil
}

func (m *memory) AppendStage(ctx context.Context, fileID uuid.UUID, cmd StageCommand) (StageEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[fileID]
	if !ok {
		return StageEntry{}, ErrNotFound
	}

	entry, err := apply(rec, cmd, m.now().UTC())
	if err != nil {
		return StageEntry{}, err
	}

	m.logger.Info("stage appended",
		"file_id", fileID,
		"stage", entry.Stage,
		"status", entry.Status,
		"provider", entry.Provider,
	)
	return entry, nil
}

func (m *memory) GetStatus(ctx context.Context, fileID uuid.UUID) (ProcessingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[fileID]
	if !ok {
		return ProcessingRecord{}, ErrNotFound
	}
	return clone(*rec), nil
}

func (m *memory) List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[ProcessingRecord], error) {
	m.mu.Lock()
	var matched []ProcessingRecord
	for _, rec := range m.records {
		if filters.match(rec) {
			matched = append(matched, clone(*rec))
		}
	}
	m.mu.Unlock()

	sortRecords(matched)
	return pagination.Slice(matched, page), nil
}

func (m *memory) Stats(ctx context.Context, since time.Time) (Stats, error) {
	m.mu.Lock()
	var records []ProcessingRecord
	for _, rec := range m.records {
		if !rec.CreatedAt.Before(since) {
			records = append(records, clone(*rec))
		}
	}
	m.mu.Unlock()

	return summarize(since, records), nil
}

func clone(r ProcessingRecord) ProcessingRecord {
	r.Stages = slices.Clone(r.Stages)
	return r
}
