package deadletter

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoice-pipeline/pkg/pagination"
)

// memory guards check-and-create with a single mutex, so the lookup and the
// insert or increment happen as one step.
type memory struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
	now     func() time.Time
	logger  *slog.Logger
}

// NewMemory creates an in-process store. now defaults to time.Now.
func NewMemory(logger *slog.Logger, now func() time.Time) System {
	if now == nil {
		now = time.Now
	}
	return &memory{
		entries: make(map[uuid.UUID]*Entry),
		now:     now,
		logger:  logger.With("system", "deadletter"),
	}
}

func (m *memory) Enqueue(ctx context.Context, fileID uuid.UUID, payloadRef, reason string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()

	if e, ok := m.entries[fileID]; ok {
		e.RetryCount++
		if now.After(e.LastAttemptAt) {
			e.LastAttemptAt = now
		}
		m.logger.Warn("dead-letter retry recorded", "file_id", fileID, "retry_count", e.RetryCount)
		return *e, nil
	}

	e := &Entry{
		FileID:        fileID,
		PayloadRef:    payloadRef,
		FailureReason: reason,
		RetryCount:    1,
		Status:        StatusPendingReview,
		FirstSeenAt:   now,
		LastAttemptAt: now,
	}
	m.entries[fileID] = e

	m.logger.Warn("dead-letter entry created", "file_id", fileID, "reason", reason)
	return *e, nil
}

func (m *memory) Resolve(ctx context.Context, fileID uuid.UUID, cmd ResolveCommand) (Entry, error) {
	return m.close(fileID, func(e *Entry, now time.Time) {
		e.Status = StatusResolved
		e.ResolutionNotes = cmd.ResolutionNotes
		e.ResolvedAt = &now
	})
}

func (m *memory) Reprocess(ctx context.Context, fileID, reprocessedAs uuid.UUID) (Entry, error) {
	return m.close(fileID, func(e *Entry, now time.Time) {
		e.Status = StatusReprocessed
		e.ReprocessedAs = &reprocessedAs
		e.ResolvedAt = &now
	})
}

func (m *memory) close(fileID uuid.UUID, fn func(*Entry, time.Time)) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[fileID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if e.Status != StatusPendingReview {
		return Entry{}, ErrInvalidState
	}

	fn(e, m.now().UTC())
	m.logger.Info("dead-letter entry closed", "file_id", fileID, "status", e.Status)
	return *e, nil
}

func (m *memory) Find(ctx context.Context, fileID uuid.UUID) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[fileID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

func (m *memory) List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Entry], error) {
	m.mu.Lock()
	var matched []Entry
	for _, e := range m.entries {
		if filters.Status == "" || e.Status == filters.Status {
			matched = append(matched, *e)
		}
	}
	m.mu.Unlock()

	sortEntries(matched)
	return pagination.Slice(matched, page), nil
}

func (m *memory) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, e := range m.entries {
		if e.Status.Terminal() && e.ResolvedAt != nil && e.ResolvedAt.Before(cutoff) {
			delete(m.entries, id)
			n++
		}
	}

	if n > 0 {
		m.logger.Info("dead-letter entries purged", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// sortEntries orders oldest first so triage works the backlog in arrival order.
func sortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := a.FirstSeenAt.Compare(b.FirstSeenAt); c != 0 {
			return c
		}
		return slices.Compare(a.FileID[:], b.FileID[:])
	})
}
