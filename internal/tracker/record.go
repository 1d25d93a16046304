// Package tracker keeps the append-only stage history of every processed file.
// A ProcessingRecord's current stage and overall status are derived from its
// history and change only through AppendStage.
package tracker

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Stage is a step of the processing state machine.
type Stage string

const (
	StageUploadStarted     Stage = "UPLOAD_STARTED"
	StageUploaded          Stage = "UPLOADED"
	StageOCRStarted        Stage = "OCR_STARTED"
	StageOCRCompleted      Stage = "OCR_COMPLETED"
	StageOCRSkipped        Stage = "OCR_SKIPPED"
	StageMatchingStarted   Stage = "MATCHING_STARTED"
	StageMatchingCompleted Stage = "MATCHING_COMPLETED"
	StageCompleted         Stage = "COMPLETED"

	// Annotations are the only entries accepted once a record has FAILED.
	StageDeadLettered Stage = "DEAD_LETTERED"
	StageResolved     Stage = "RESOLVED"
	StageReprocessed  Stage = "REPROCESSED"
)

// IsAnnotation reports whether s records a dead-letter event rather than progress.
func (s Stage) IsAnnotation() bool {
	switch s {
	case StageDeadLettered, StageResolved, StageReprocessed:
		return true
	}
	return false
}

// StageStatus is the outcome carried by a single stage entry.
type StageStatus string

const (
	StatusStarted   StageStatus = "started"
	StatusCompleted StageStatus = "completed"
	StatusFailed    StageStatus = "failed"
)

// OverallStatus summarizes a record.
type OverallStatus string

const (
	OverallInProgress OverallStatus = "IN_PROGRESS"
	OverallCompleted  OverallStatus = "COMPLETED"
	OverallFailed     OverallStatus = "FAILED"
)

// StageEntry is one immutable line of a record's history.
type StageEntry struct {
	Seq        int             `json:"seq"`
	Stage      Stage           `json:"stage"`
	Status     StageStatus     `json:"status"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	Provider   string          `json:"provider,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// ProcessingRecord is the audit trail of one file.
type ProcessingRecord struct {
	FileID        uuid.UUID     `json:"file_id"`
	Filename      string        `json:"filename"`
	ContentType   string        `json:"content_type"`
	SizeBytes     int64         `json:"size_bytes"`
	Source        string        `json:"source"`
	Checksum      string        `json:"checksum,omitempty"`
	CurrentStage  Stage         `json:"current_stage"`
	OverallStatus OverallStatus `json:"overall_status"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	ReprocessOf   *uuid.UUID    `json:"reprocess_of,omitempty"`
	Stages        []StageEntry  `json:"stages"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Has reports whether the history contains stage.
func (r *ProcessingRecord) Has(stage Stage) bool {
	for _, e := range r.Stages {
		if e.Stage == stage {
			return true
		}
	}
	return false
}

// Last returns the most recent entry for stage.
func (r *ProcessingRecord) Last(stage Stage) (StageEntry, bool) {
	for i := len(r.Stages) - 1; i >= 0; i-- {
		if r.Stages[i].Stage == stage {
			return r.Stages[i], true
		}
	}
	return StageEntry{}, false
}

// CreateCommand opens a record. A nil FileID is replaced with a new UUID.
type CreateCommand struct {
	FileID      uuid.UUID
	Filename    string
	ContentType string
	SizeBytes   int64
	Source      string
	Checksum    string
	ReprocessOf *uuid.UUID
}

// StageCommand appends one entry. Detail, when set, must be valid JSON.
type StageCommand struct {
	Stage    Stage
	Status   StageStatus
	Message  string
	Error    string
	Provider string
	Detail   json.RawMessage
}
