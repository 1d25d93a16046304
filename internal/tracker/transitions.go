package tracker

import (
	"encoding/json"
	"fmt"
	"time"
)

var transitions = map[Stage][]Stage{
	StageUploadStarted:     {StageUploaded},
	StageUploaded:          {StageOCRStarted, StageOCRSkipped},
	StageOCRStarted:        {StageOCRStarted, StageOCRCompleted},
	StageOCRCompleted:      {StageMatchingStarted},
	StageOCRSkipped:        {StageMatchingStarted},
	StageMatchingStarted:   {StageMatchingCompleted},
	StageMatchingCompleted: {StageCompleted},
}

// maxOCRAttempts bounds OCR_STARTED entries: the primary provider and one fallback.
const maxOCRAttempts = 2

// CanTransition reports whether next may follow current in the progress chain.
func CanTransition(current, next Stage) bool {
	for _, s := range transitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

func newRecord(cmd CreateCommand, at time.Time) ProcessingRecord {
	return ProcessingRecord{
		FileID:        cmd.FileID,
		Filename:      cmd.Filename,
		ContentType:   cmd.ContentType,
		SizeBytes:     cmd.SizeBytes,
		Source:        cmd.Source,
		Checksum:      cmd.Checksum,
		CurrentStage:  StageUploadStarted,
		OverallStatus: OverallInProgress,
		ReprocessOf:   cmd.ReprocessOf,
		Stages: []StageEntry{{
			Seq:        1,
			Stage:      StageUploadStarted,
			Status:     StatusStarted,
			RecordedAt: at,
		}},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// apply validates cmd against r and, when legal, appends the entry and
// rederives the record's summary fields. Both backends route every
// mutation through here.
func apply(r *ProcessingRecord, cmd StageCommand, now time.Time) (StageEntry, error) {
	if err := checkCommand(cmd); err != nil {
		return StageEntry{}, err
	}

	if cmd.Stage.IsAnnotation() {
		if err := checkAnnotation(r, cmd.Stage); err != nil {
			return StageEntry{}, err
		}
	} else if err := checkProgress(r, cmd); err != nil {
		return StageEntry{}, err
	}

	at := now
	if n := len(r.Stages); n > 0 && at.Before(r.Stages[n-1].RecordedAt) {
		at = r.Stages[n-1].RecordedAt
	}

	entry := StageEntry{
		Seq:        len(r.Stages) + 1,
		Stage:      cmd.Stage,
		Status:     cmd.Status,
		Message:    cmd.Message,
		Error:      cmd.Error,
		Provider:   cmd.Provider,
		Detail:     cmd.Detail,
		RecordedAt: at,
	}

	r.Stages = append(r.Stages, entry)
	r.UpdatedAt = at

	if cmd.Stage.IsAnnotation() {
		return entry, nil
	}

	r.CurrentStage = cmd.Stage
	switch {
	case cmd.Status == StatusFailed:
		r.OverallStatus = OverallFailed
		r.ErrorMessage = cmd.Error
		if r.ErrorMessage == "" {
			r.ErrorMessage = cmd.Message
		}
	case cmd.Stage == StageCompleted:
		r.OverallStatus = OverallCompleted
	}

	return entry, nil
}

func checkCommand(cmd StageCommand) error {
	switch cmd.Status {
	case StatusStarted, StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStage, cmd.Status)
	}

	if !cmd.Stage.IsAnnotation() {
		if _, ok := transitions[cmd.Stage]; !ok && cmd.Stage != StageCompleted {
			return fmt.Errorf("%w: unknown stage %q", ErrInvalidStage, cmd.Stage)
		}
	}

	if cmd.Status == StatusFailed && cmd.Error == "" && cmd.Message == "" {
		return fmt.Errorf("%w: failed stage needs an error message", ErrInvalidStage)
	}

	if len(cmd.Detail) > 0 && !json.Valid(cmd.Detail) {
		return fmt.Errorf("%w: detail is not valid json", ErrInvalidStage)
	}
	return nil
}

func checkProgress(r *ProcessingRecord, cmd StageCommand) error {
	if r.OverallStatus != OverallInProgress {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, r.FileID, r.OverallStatus)
	}

	// A failure may be reported against the stage in progress.
	if cmd.Status == StatusFailed && cmd.Stage == r.CurrentStage {
		return nil
	}

	if !CanTransition(r.CurrentStage, cmd.Stage) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.CurrentStage, cmd.Stage)
	}

	if cmd.Stage == StageOCRStarted && count(r, StageOCRStarted) >= maxOCRAttempts {
		return fmt.Errorf("%w: %s already attempted %d times", ErrInvalidTransition, StageOCRStarted, maxOCRAttempts)
	}
	return nil
}

func checkAnnotation(r *ProcessingRecord, stage Stage) error {
	if r.OverallStatus != OverallFailed {
		return fmt.Errorf("%w: %s requires a FAILED record, %s is %s",
			ErrInvalidTransition, stage, r.FileID, r.OverallStatus)
	}

	switch stage {
	case StageDeadLettered:
		if r.Has(StageDeadLettered) {
			return fmt.Errorf("%w: %s already dead-lettered", ErrInvalidTransition, r.FileID)
		}
	case StageResolved, StageReprocessed:
		if !r.Has(StageDeadLettered) {
			return fmt.Errorf("%w: %s is not dead-lettered", ErrInvalidTransition, r.FileID)
		}
		if r.Has(StageResolved) || r.Has(StageReprocessed) {
			return fmt.Errorf("%w: %s already closed", ErrTerminal, r.FileID)
		}
	}
	return nil
}

func count(r *ProcessingRecord, stage Stage) int {
	n := 0
	for _, e := range r.Stages {
		if e.Stage == stage {
			n++
		}
	}
	return n
}
