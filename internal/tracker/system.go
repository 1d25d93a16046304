package tracker

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoice-pipeline/pkg/pagination"
)

// System records and reads processing history. Appends for one fileId are
// serialized by the implementation; callers never mutate records directly.
type System interface {
	Create(ctx context.Context, cmd CreateCommand) (ProcessingRecord, error)
	AppendStage(ctx context.Context, fileID uuid.UUID, cmd StageCommand) (StageEntry, error)
	GetStatus(ctx context.Context, fileID uuid.UUID) (ProcessingRecord, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[ProcessingRecord], error)
	Stats(ctx context.Context, since time.Time) (Stats, error)
}

// Filters narrows List results. Empty fields match everything.
type Filters struct {
	Status OverallStatus
	Stage  Stage
}

// FiltersFromQuery reads status and stage from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	return Filters{
		Status: OverallStatus(values.Get("status")),
		Stage:  Stage(values.Get("stage")),
	}
}

func (f Filters) match(r *ProcessingRecord) bool {
	if f.Status != "" && r.OverallStatus != f.Status {
		return false
	}
	if f.Stage != "" && r.CurrentStage != f.Stage {
		return false
	}
	return true
}
