// Package deadletter holds documents that could not complete the pipeline
// until an operator resolves or reprocesses them.
package deadletter

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoice-pipeline/pkg/pagination"
)

// Status is the triage state of an entry.
type Status string

const (
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusResolved      Status = "RESOLVED"
	StatusReprocessed   Status = "REPROCESSED"
)

// Terminal reports whether s is RESOLVED or REPROCESSED.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusReprocessed
}

// Entry is the single dead-letter record of a fileId.
type Entry struct {
	FileID          uuid.UUID  `json:"file_id"`
	PayloadRef      string     `json:"payload_ref"`
	FailureReason   string     `json:"failure_reason"`
	RetryCount      int        `json:"retry_count"`
	Status          Status     `json:"entry_status"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ReprocessedAs   *uuid.UUID `json:"reprocessed_as,omitempty"`
	FirstSeenAt     time.Time  `json:"first_seen_at"`
	LastAttemptAt   time.Time  `json:"last_attempt_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

type ResolveCommand struct {
	ResolutionNotes string `json:"resolution_notes"`
}

// Filters narrows List results. An empty Status matches every entry.
type Filters struct {
	Status Status
}

// FiltersFromQuery reads ?status, defaulting to PENDING_REVIEW. status=all lists everything.
func FiltersFromQuery(values url.Values) Filters {
	switch s := values.Get("status"); s {
	case "":
		return Filters{Status: StatusPendingReview}
	case "all":
		return Filters{}
	default:
		return Filters{Status: Status(s)}
	}
}

// System is the dead-letter store. Enqueue is idempotent per fileId under
// concurrent callers: exactly one entry exists per fileId and every further
// call increments RetryCount.
type System interface {
	Enqueue(ctx context.Context, fileID uuid.UUID, payloadRef, reason string) (Entry, error)
	Resolve(ctx context.Context, fileID uuid.UUID, cmd ResolveCommand) (Entry, error)
	// Reprocess claims a PENDING_REVIEW entry for re-injection as reprocessedAs.
	Reprocess(ctx context.Context, fileID, reprocessedAs uuid.UUID) (Entry, error)
	Find(ctx context.Context, fileID uuid.UUID) (Entry, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Entry], error)
	// Purge deletes terminal entries last touched before cutoff.
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}
