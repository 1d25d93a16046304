package tracker

import (
	"slices"
	"time"
)

// StageStats aggregates one stage over a set of records. MeanDuration is the
// average time from the stage's entry to the entry that followed it.
type StageStats struct {
	Stage        Stage         `json:"stage"`
	Count        int           `json:"count"`
	Failed       int           `json:"failed"`
	MeanDuration time.Duration `json:"mean_duration_ns"`
}

// Stats summarizes records created since a point in time.
type Stats struct {
	Since      time.Time    `json:"since"`
	Records    int          `json:"records"`
	Completed  int          `json:"completed"`
	Failed     int          `json:"failed"`
	InProgress int          `json:"in_progress"`
	Stages     []StageStats `json:"stages"`
}

var stageOrder = []Stage{
	StageUploadStarted,
	StageUploaded,
	StageOCRStarted,
	StageOCRCompleted,
	StageOCRSkipped,
	StageMatchingStarted,
	StageMatchingCompleted,
	StageCompleted,
	StageDeadLettered,
	StageResolved,
	StageReprocessed,
}

func summarize(since time.Time, records []ProcessingRecord) Stats {
	stats := Stats{Since: since, Records: len(records)}

	type acc struct {
		count, failed, timed int
		total                time.Duration
	}
	byStage := map[Stage]*acc{}

	for i := range records {
		r := &records[i]
		switch r.OverallStatus {
		case OverallCompleted:
			stats.Completed++
		case OverallFailed:
			stats.Failed++
		default:
			stats.InProgress++
		}

		for j, e := range r.Stages {
			a := byStage[e.Stage]
			if a == nil {
				a = &acc{}
				byStage[e.Stage] = a
			}
			a.count++
			if e.Status == StatusFailed {
				a.failed++
			}
			if j+1 < len(r.Stages) {
				a.total += r.Stages[j+1].RecordedAt.Sub(e.RecordedAt)
				a.timed++
			}
		}
	}

	for _, s := range stageOrder {
		a, ok := byStage[s]
		if !ok {
			continue
		}
		st := StageStats{Stage: s, Count: a.count, Failed: a.failed}
		if a.timed > 0 {
			st.MeanDuration = a.total / time.Duration(a.timed)
		}
		stats.Stages = append(stats.Stages, st)
	}

	if stats.Stages == nil {
		stats.Stages = []StageStats{}
	}
	return stats
}

func sortRecords(records []ProcessingRecord) {
	slices.SortStableFunc(records, func(a, b ProcessingRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.FileID[:], b.FileID[:])
	})
}
