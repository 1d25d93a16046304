// Package pipeline runs each submission through validation, extraction and
// matching, recording every step in the tracker and routing failures to the
// dead-letter store.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/JaimeStill/invoice-pipeline/internal/deadletter"
	"github.com/JaimeStill/invoice-pipeline/internal/extraction"
	"github.com/JaimeStill/invoice-pipeline/internal/intake"
	"github.com/JaimeStill/invoice-pipeline/internal/ledger"
	"github.com/JaimeStill/invoice-pipeline/internal/matching"
	"github.com/JaimeStill/invoice-pipeline/internal/tracker"
)

// Deps are the collaborators the orchestrator is built from. Pool and Cache
// are optional: without a pool Submit runs synchronously, and a nil cache
// never skips extraction.
type Deps struct {
	Validator   *intake.Validator
	Extractor   *extraction.Extractor
	Providers   *extraction.Registry
	Cache       *extraction.Cache
	Engine      *matching.Engine
	Ledger      ledger.System
	Tracker     tracker.System
	DeadLetters deadletter.System
	Payloads    *PayloadStore
	Pool        *Pool
}

// Orchestrator processes one document end to end per call. Distinct
// documents may be processed concurrently.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg *Config, deps Deps, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    *cfg,
		deps:   deps,
		logger: logger.With("system", "pipeline"),
	}
}

// Result is the outcome of processing one submission.
type Result struct {
	FileID       uuid.UUID                    `json:"file_id"`
	Filename     string                       `json:"filename"`
	Status       tracker.OverallStatus        `json:"status"`
	Rejection    string                       `json:"rejection,omitempty"`
	Invoice      *extraction.ExtractedInvoice `json:"invoice,omitempty"`
	Match        *matching.Outcome            `json:"match,omitempty"`
	DeadLettered bool                         `json:"dead_lettered,omitempty"`
	Error        string                       `json:"error,omitempty"`
}

// Process runs sub synchronously. The error is non-nil only for persistence
// failures; rejections and extraction failures are reported in the Result.
func (o *Orchestrator) Process(ctx context.Context, sub intake.FileSubmission) (Result, error) {
	id, err := o.open(ctx, sub, uuid.Nil, nil)
	if err != nil {
		return Result{Filename: sub.Filename()}, err
	}
	return o.run(ctx, id, sub)
}

// Submit opens the processing record and hands the rest of the work to the
// pool, returning the fileId for status polling.
func (o *Orchestrator) Submit(ctx context.Context, sub intake.FileSubmission) (uuid.UUID, error) {
	id, err := o.open(ctx, sub, uuid.Nil, nil)
	if err != nil {
		return uuid.Nil, err
	}
	return id, o.dispatch(ctx, id, sub)
}

// Reprocess re-injects the payload of a PENDING_REVIEW dead-letter entry as a
// new fileId. The new record is opened before the entry is claimed, so a
// claimed entry always points at an existing record. The failed record keeps
// its history and gains a REPROCESSED annotation; the new record points back
// through ReprocessOf.
func (o *Orchestrator) Reprocess(ctx context.Context, fileID uuid.UUID) (uuid.UUID, error) {
	entry, err := o.pending(ctx, fileID)
	if err != nil {
		return uuid.Nil, err
	}

	sub, err := o.deps.Payloads.Get(ctx, entry.PayloadRef)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	newID, err := o.open(ctx, sub, uuid.New(), &fileID)
	if err != nil {
		return uuid.Nil, err
	}

	if _, err := o.deps.DeadLetters.Reprocess(ctx, fileID, newID); err != nil {
		o.fail(ctx, newID, "reprocess claim failed: "+err.Error())
		return uuid.Nil, err
	}

	o.annotate(ctx, fileID, tracker.StageCommand{
		Stage:   tracker.StageReprocessed,
		Status:  tracker.StatusCompleted,
		Message: "reprocessed as " + newID.String(),
	})

	o.logger.Info("dead letter reprocessed", "file_id", fileID, "new_file_id", newID)
	return newID, o.dispatch(ctx, newID, sub)
}

// Resolve closes a PENDING_REVIEW dead-letter entry without reprocessing it
// and annotates the failed record with RESOLVED.
func (o *Orchestrator) Resolve(ctx context.Context, fileID uuid.UUID, cmd deadletter.ResolveCommand) (deadletter.Entry, error) {
	if _, err := o.pending(ctx, fileID); err != nil {
		return deadletter.Entry{}, err
	}

	entry, err := o.deps.DeadLetters.Resolve(ctx, fileID, cmd)
	if err != nil {
		return deadletter.Entry{}, err
	}

	msg := "resolved"
	if cmd.ResolutionNotes != "" {
		msg += ": " + cmd.ResolutionNotes
	}
	o.annotate(ctx, fileID, tracker.StageCommand{
		Stage:   tracker.StageResolved,
		Status:  tracker.StatusCompleted,
		Message: msg,
	})

	o.logger.Info("dead letter resolved", "file_id", fileID)
	return entry, nil
}

// pending returns the PENDING_REVIEW entry of fileID once its processing
// record is known to accept a closing annotation. A DEAD_LETTERED annotation
// lost after a successful enqueue is backfilled here.
func (o *Orchestrator) pending(ctx context.Context, fileID uuid.UUID) (deadletter.Entry, error) {
	entry, err := o.deps.DeadLetters.Find(ctx, fileID)
	if err != nil {
		return deadletter.Entry{}, err
	}
	if entry.Status != deadletter.StatusPendingReview {
		return deadletter.Entry{}, deadletter.ErrInvalidState
	}

	rec, err := o.deps.Tracker.GetStatus(ctx, fileID)
	if err != nil {
		return deadletter.Entry{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if rec.OverallStatus != tracker.OverallFailed {
		return deadletter.Entry{}, fmt.Errorf("%w: record %s is %s", deadletter.ErrInvalidState, fileID, rec.OverallStatus)
	}
	if rec.Has(tracker.StageResolved) || rec.Has(tracker.StageReprocessed) {
		return deadletter.Entry{}, fmt.Errorf("%w: record %s already closed", deadletter.ErrInvalidState, fileID)
	}

	if !rec.Has(tracker.StageDeadLettered) {
		if err := o.append(ctx, fileID, tracker.StageCommand{
			Stage:   tracker.StageDeadLettered,
			Status:  tracker.StatusCompleted,
			Message: fmt.Sprintf("dead-letter entry pending review (attempt %d, recorded late)", entry.RetryCount),
		}); err != nil {
			return deadletter.Entry{}, err
		}
		o.logger.Warn("dead-letter annotation backfilled", "file_id", fileID)
	}

	return entry, nil
}

// open creates the processing record. A nil id lets the tracker assign one.
func (o *Orchestrator) open(ctx context.Context, sub intake.FileSubmission, id uuid.UUID, reprocessOf *uuid.UUID) (uuid.UUID, error) {
	cmd := tracker.CreateCommand{
		FileID:      id,
		Filename:    sub.Filename(),
		ContentType: sub.ContentType(),
		SizeBytes:   sub.Size(),
		Source:      string(sub.Source()),
		Checksum:    intake.Checksum(sub.Bytes()),
		ReprocessOf: reprocessOf,
	}

	rec, err := o.deps.Tracker.Create(ctx, cmd)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return rec.FileID, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, id uuid.UUID, sub intake.FileSubmission) error {
	if o.deps.Pool == nil {
		_, err := o.run(ctx, id, sub)
		return err
	}

	err := o.deps.Pool.Submit(func(ctx context.Context) {
		if _, err := o.run(ctx, id, sub); err != nil {
			o.logger.Error("document processing aborted", "file_id", id, "error", err)
		}
	}, func(cause error) {
		o.fail(ctx, id, "shutdown before processing: "+cause.Error())
	})
	if err != nil {
		o.fail(ctx, id, err.Error())
		return err
	}
	return nil
}

// fail marks a record that never got past UPLOAD_STARTED as FAILED. It
// ignores cancellation of ctx, and its own errors are only logged since the
// caller is already reporting one.
func (o *Orchestrator) fail(ctx context.Context, id uuid.UUID, reason string) {
	err := o.append(context.WithoutCancel(ctx), id, tracker.StageCommand{
		Stage:  tracker.StageUploadStarted,
		Status: tracker.StatusFailed,
		Error:  reason,
	})
	if err != nil {
		o.logger.Error("failure not recorded", "file_id", id, "reason", reason, "error", err)
	}
}

// annotate appends a closing annotation after the dead-letter entry has
// already been claimed. The claim stands when the append fails.
func (o *Orchestrator) annotate(ctx context.Context, id uuid.UUID, cmd tracker.StageCommand) {
	if err := o.append(context.WithoutCancel(ctx), id, cmd); err != nil {
		o.logger.Error("annotation not recorded", "file_id", id, "stage", cmd.Stage, "error", err)
	}
}

func (o *Orchestrator) run(ctx context.Context, id uuid.UUID, sub intake.FileSubmission) (Result, error) {
	res := Result{FileID: id, Filename: sub.Filename(), Status: tracker.OverallInProgress}
	logger := o.logger.With("file_id", id)

	v := o.deps.Validator.Validate(sub)
	if !v.Accepted {
		res.Status = tracker.OverallFailed
		res.Rejection = v.Reason
		logger.Warn("submission rejected", "filename", sub.Filename(), "reason", v.Reason)
		return res, o.append(ctx, id, tracker.StageCommand{
			Stage:   tracker.StageUploadStarted,
			Status:  tracker.StatusFailed,
			Message: "validation rejected",
			Error:   v.Reason,
		})
	}

	insp, err := intake.Inspect(sub, v.DetectedFormat)
	if err != nil {
		logger.Warn("inspection incomplete", "error", err)
	}

	ref, err := o.deps.Payloads.Put(ctx, id, sub, insp.Checksum)
	if err != nil {
		res.Status = tracker.OverallFailed
		res.Error = err.Error()
		o.fail(ctx, id, "payload storage failed")
		return res, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	err = o.append(ctx, id, tracker.StageCommand{
		Stage:   tracker.StageUploaded,
		Status:  tracker.StatusCompleted,
		Message: fmt.Sprintf("%s %s, %d page(s)", v.DetectedFormat, units.BytesSize(float64(sub.Size())), insp.PageCount),
		Detail: detail(map[string]any{
			"payload_ref": ref,
			"checksum":    insp.Checksum,
			"format":      v.DetectedFormat,
			"page_count":  insp.PageCount,
		}),
	})
	if err != nil {
		return res, err
	}

	inv, err := o.extract(ctx, id, sub, insp.Checksum)
	if errors.Is(err, ErrPersistence) {
		return res, err
	}
	if err != nil {
		return o.deadLetter(ctx, res, tracker.StageOCRStarted, ref, err)
	}
	res.Invoice = &inv

	outcome, err := o.match(ctx, id, inv)
	if err != nil {
		return res, err
	}
	res.Match = &outcome

	if err := o.append(ctx, id, tracker.StageCommand{
		Stage:   tracker.StageCompleted,
		Status:  tracker.StatusCompleted,
		Message: string(outcome.Status),
	}); err != nil {
		return res, err
	}

	res.Status = tracker.OverallCompleted
	logger.Info("document processed",
		"match_status", outcome.Status,
		"confidence", outcome.Confidence,
		"provider", inv.ExtractionProvider)
	return res, nil
}

// extract tries the primary provider and, on TIMEOUT or PROVIDER_UNAVAILABLE,
// the fallback exactly once.
func (o *Orchestrator) extract(ctx context.Context, id uuid.UUID, sub intake.FileSubmission, checksum string) (extraction.ExtractedInvoice, error) {
	if inv, ok := o.deps.Cache.Get(checksum); ok {
		return inv, o.append(ctx, id, tracker.StageCommand{
			Stage:    tracker.StageOCRSkipped,
			Status:   tracker.StatusCompleted,
			Message:  "identical payload already extracted",
			Provider: inv.ExtractionProvider,
		})
	}

	primary := o.deps.Providers.Primary()
	inv, err := o.attempt(ctx, id, sub, primary, "")
	if err == nil || errors.Is(err, ErrPersistence) || ctx.Err() != nil {
		return inv, err
	}

	fallback, ok := o.deps.Providers.Fallback()
	kind := extraction.KindOf(err)
	if !ok || (kind != extraction.KindTimeout && kind != extraction.KindProviderUnavailable) {
		return inv, err
	}

	o.logger.Warn("falling back to secondary provider",
		"file_id", id,
		"primary", primary.Name(),
		"fallback", fallback.Name(),
		"kind", kind)

	return o.attempt(ctx, id, sub, fallback, fmt.Sprintf("fallback after %s from %s", kind, primary.Name()))
}

func (o *Orchestrator) attempt(ctx context.Context, id uuid.UUID, sub intake.FileSubmission, p extraction.Provider, note string) (extraction.ExtractedInvoice, error) {
	err := o.append(ctx, id, tracker.StageCommand{
		Stage:    tracker.StageOCRStarted,
		Status:   tracker.StatusStarted,
		Message:  note,
		Provider: p.Name(),
	})
	if err != nil {
		return extraction.ExtractedInvoice{}, err
	}

	inv, err := o.deps.Extractor.Extract(ctx, sub, p)
	if err != nil {
		return extraction.ExtractedInvoice{}, err
	}

	o.deps.Cache.Add(intake.Checksum(sub.Bytes()), inv)

	return inv, o.append(ctx, id, tracker.StageCommand{
		Stage:    tracker.StageOCRCompleted,
		Status:   tracker.StatusCompleted,
		Message:  fmt.Sprintf("%s %s %s", inv.VendorName, inv.TotalAmount, inv.Currency),
		Provider: p.Name(),
		Detail:   detail(inv),
	})
}

// match never fails on the ledger: a lookup error is logged and treated as
// no candidates, which routes the invoice to RED.
func (o *Orchestrator) match(ctx context.Context, id uuid.UUID, inv extraction.ExtractedInvoice) (matching.Outcome, error) {
	if err := o.append(ctx, id, tracker.StageCommand{
		Stage:  tracker.StageMatchingStarted,
		Status: tracker.StatusStarted,
	}); err != nil {
		return matching.Outcome{}, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, o.cfg.LedgerTimeoutDuration())
	defer cancel()

	q := ledger.QueryFor(inv, o.cfg.LedgerWindowDuration(), o.cfg.LedgerAmountSpread)
	candidates, err := o.deps.Ledger.FindCandidates(lookupCtx, q)
	if err != nil {
		o.logger.Warn("ledger lookup failed", "file_id", id, "error", err)
		candidates = nil
	}

	outcome := o.deps.Engine.Match(inv, candidates)

	msg := fmt.Sprintf("%s %.2f", outcome.Status, outcome.Confidence)
	if outcome.Reason != "" {
		msg += ": " + outcome.Reason
	}

	return outcome, o.append(ctx, id, tracker.StageCommand{
		Stage:   tracker.StageMatchingCompleted,
		Status:  tracker.StatusCompleted,
		Message: msg,
		Detail:  detail(outcome),
	})
}

// deadLetter records the failure on the tracker first, then enqueues the
// entry and annotates the record, so the audit trail explains every entry.
// Bookkeeping ignores cancellation of ctx.
func (o *Orchestrator) deadLetter(ctx context.Context, res Result, stage tracker.Stage, ref string, cause error) (Result, error) {
	ctx = context.WithoutCancel(ctx)

	msg := cause.Error()
	res.Status = tracker.OverallFailed
	res.Error = msg

	if err := o.append(ctx, res.FileID, tracker.StageCommand{
		Stage:  stage,
		Status: tracker.StatusFailed,
		Error:  msg,
	}); err != nil {
		return res, err
	}

	entry, err := o.deps.DeadLetters.Enqueue(ctx, res.FileID, ref, msg)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if err := o.append(ctx, res.FileID, tracker.StageCommand{
		Stage:   tracker.StageDeadLettered,
		Status:  tracker.StatusCompleted,
		Message: fmt.Sprintf("dead-letter entry pending review (attempt %d)", entry.RetryCount),
	}); err != nil {
		return res, err
	}

	res.DeadLettered = true
	o.logger.Warn("document dead-lettered", "file_id", res.FileID, "reason", msg)
	return res, nil
}

func (o *Orchestrator) append(ctx context.Context, id uuid.UUID, cmd tracker.StageCommand) error {
	if _, err := o.deps.Tracker.AppendStage(ctx, id, cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func detail(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
