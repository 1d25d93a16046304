package tracker_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoice-pipeline/internal/tracker"
	"github.com/JaimeStill/invoice-pipeline/pkg/logging"
	"github.com/JaimeStill/invoice-pipeline/pkg/pagination"
)

// steppedClock advances by step on every call. A negative step simulates a
// wall clock moving backwards.
type steppedClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func newTracker(step time.Duration) tracker.System {
	clock := &steppedClock{t: time.Date(2024, 11, 15, 9, 0, 0, 0, time.UTC), step: step}
	return tracker.NewMemory(logging.Discard(), clock.Now)
}

func create(t *testing.T, sys tracker.System) uuid.UUID {
	t.Helper()
	rec, err := sys.Create(context.Background(), tracker.CreateCommand{
		Filename:    "invoice.pdf",
		ContentType: "application/pdf",
		SizeBytes:   1024,
		Source:      "manual",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return rec.FileID
}

func appendAll(t *testing.T, sys tracker.System, id uuid.UUID, cmds ...tracker.StageCommand) {
	t.Helper()
	for _, cmd := range cmds {
		if _, err := sys.AppendStage(context.Background(), id, cmd); err != nil {
			t.Fatalf("AppendStage(%s) error = %v", cmd.Stage, err)
		}
	}
}

func started(s tracker.Stage) tracker.StageCommand {
	return tracker.StageCommand{Stage: s, Status: tracker.StatusStarted}
}

func completed(s tracker.Stage) tracker.StageCommand {
	return tracker.StageCommand{Stage: s, Status: tracker.StatusCompleted}
}

func TestAppendStage_HappyPath(t *testing.T) {
	sys := newTracker(time.Second)
	id := create(t, sys)

	appendAll(t, sys, id,
		completed(tracker.StageUploaded),
		tracker.StageCommand{Stage: tracker.StageOCRStarted, Status: tracker.StatusStarted, Provider: "docintel"},
		tracker.StageCommand{Stage: tracker.StageOCRStarted, Status: tracker.StatusStarted, Provider: "gemini", Message: "fallback after TIMEOUT"},
		tracker.StageCommand{Stage: tracker.StageOCRCompleted, Status: tracker.StatusCompleted, Provider: "gemini"},
		started(tracker.StageMatchingStarted),
		tracker.StageCommand{Stage: tracker.StageMatchingCompleted, Status: tracker.StatusCompleted, Detail: json.RawMessage(`{"status":"GREEN"}`)},
		completed(tracker.StageCompleted),
	)

	rec, err := sys.GetStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}

	if rec.OverallStatus != tracker.OverallCompleted {
		t.Errorf("OverallStatus = %s, want COMPLETED", rec.OverallStatus)
	}
	if rec.CurrentStage != tracker.StageCompleted {
		t.Errorf("CurrentStage = %s, want COMPLETED", rec.CurrentStage)
	}
	if len(rec.Stages) != 8 {
		t.Fatalf("len(Stages) = %d, want 8", len(rec.Stages))
	}
	for i, e := range rec.Stages {
		if e.Seq != i+1 {
			t.Errorf("Stages[%d].Seq = %d", i, e.Seq)
		}
	}
	if e, _ := rec.Last(tracker.StageOCRCompleted); e.Provider != "gemini" {
		t.Errorf("OCR_COMPLETED provider = %q, want gemini", e.Provider)
	}
}

func TestAppendStage_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup []tracker.StageCommand
		next  tracker.StageCommand
		want  error
	}{
		{"skip upload", nil, started(tracker.StageOCRStarted), tracker.ErrInvalidTransition},
		{"matching before ocr", []tracker.StageCommand{completed(tracker.StageUploaded)}, started(tracker.StageMatchingStarted), tracker.ErrInvalidTransition},
		{
			"third ocr attempt",
			[]tracker.StageCommand{completed(tracker.StageUploaded), started(tracker.StageOCRStarted), started(tracker.StageOCRStarted)},
			started(tracker.StageOCRStarted),
			tracker.ErrInvalidTransition,
		},
		{"unknown stage", nil, started("BOGUS"), tracker.ErrInvalidStage},
		{"unknown status", nil, tracker.StageCommand{Stage: tracker.StageUploaded, Status: "done"}, tracker.ErrInvalidStage},
		{"failed without message", nil, tracker.StageCommand{Stage: tracker.StageUploadStarted, Status: tracker.StatusFailed}, tracker.ErrInvalidStage},
		{"bad detail", nil, tracker.StageCommand{Stage: tracker.StageUploaded, Status: tracker.StatusCompleted, Detail: json.RawMessage(`{`)}, tracker.ErrInvalidStage},
		{"annotation while in progress", nil, completed(tracker.StageDeadLettered), tracker.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := newTracker(time.Second)
			id := create(t, sys)
			appendAll(t, sys, id, tt.setup...)

			before, _ := sys.GetStatus(context.Background(), id)

			_, err := sys.AppendStage(context.Background(), id, tt.next)
			if !errors.Is(err, tt.want) {
				t.Fatalf("AppendStage() error = %v, want %v", err, tt.want)
			}

			after, _ := sys.GetStatus(context.Background(), id)
			if len(after.Stages) != len(before.Stages) {
				t.Error("rejected append changed the history")
			}
		})
	}
}

func TestAppendStage_FailedIsTerminal(t *testing.T) {
	sys := newTracker(time.Second)
	id := create(t, sys)

	appendAll(t, sys, id,
		completed(tracker.StageUploaded),
		started(tracker.StageOCRStarted),
		tracker.StageCommand{Stage: tracker.StageOCRStarted, Status: tracker.StatusFailed, Error: "TIMEOUT: docintel: deadline exceeded"},
	)

	rec, _ := sys.GetStatus(context.Background(), id)
	if rec.OverallStatus != tracker.OverallFailed {
		t.Fatalf("OverallStatus = %s, want FAILED", rec.OverallStatus)
	}
	if rec.CurrentStage != tracker.StageOCRStarted {
		t.Errorf("CurrentStage = %s, want OCR_STARTED", rec.CurrentStage)
	}
	if rec.ErrorMessage != "TIMEOUT: docintel: deadline exceeded" {
		t.Errorf("ErrorMessage = %q", rec.ErrorMessage)
	}

	_, err := sys.AppendStage(context.Background(), id, completed(tracker.StageOCRCompleted))
	if !errors.Is(err, tracker.ErrTerminal) {
		t.Fatalf("append after FAILED error = %v, want ErrTerminal", err)
	}

	appendAll(t, sys, id, completed(tracker.StageDeadLettered), completed(tracker.StageReprocessed))

	if _, err := sys.AppendStage(context.Background(), id, completed(tracker.StageResolved)); !errors.Is(err, tracker.ErrTerminal) {
		t.Errorf("second closing annotation error = %v, want ErrTerminal", err)
	}
	if _, err := sys.AppendStage(context.Background(), id, completed(tracker.StageDeadLettered)); !errors.Is(err, tracker.ErrInvalidTransition) {
		t.Errorf("duplicate DEAD_LETTERED error = %v, want ErrInvalidTransition", err)
	}

	rec, _ = sys.GetStatus(context.Background(), id)
	if rec.OverallStatus != tracker.OverallFailed || rec.CurrentStage != tracker.StageOCRStarted {
		t.Errorf("annotations changed summary: %s / %s", rec.OverallStatus, rec.CurrentStage)
	}
}

func TestAppendStage_AnnotationNeedsDeadLetter(t *testing.T) {
	sys := newTracker(time.Second)
	id := create(t, sys)
	appendAll(t, sys, id, tracker.StageCommand{Stage: tracker.StageUploadStarted, Status: tracker.StatusFailed, Message: "size exceeded"})

	_, err := sys.AppendStage(context.Background(), id, completed(tracker.StageResolved))
	if !errors.Is(err, tracker.ErrInvalidTransition) {
		t.Fatalf("RESOLVED without DEAD_LETTERED error = %v", err)
	}
}

func TestAppendStage_CompletedIsTerminal(t *testing.T) {
	sys := newTracker(time.Second)
	id := create(t, sys)
	appendAll(t, sys, id,
		completed(tracker.StageUploaded),
		completed(tracker.StageOCRSkipped),
		started(tracker.StageMatchingStarted),
		completed(tracker.StageMatchingCompleted),
		completed(tracker.StageCompleted),
	)

	for _, next := range []tracker.StageCommand{completed(tracker.StageCompleted), completed(tracker.StageDeadLettered)} {
		if _, err := sys.AppendStage(context.Background(), id, next); err == nil {
			t.Errorf("AppendStage(%s) after COMPLETED succeeded", next.Stage)
		}
	}
}

func TestAppendStage_MonotonicTimestamps(t *testing.T) {
	sys := newTracker(-time.Minute)
	id := create(t, sys)
	appendAll(t, sys, id,
		completed(tracker.StageUploaded),
		started(tracker.StageOCRStarted),
		completed(tracker.StageOCRCompleted),
	)

	rec, _ := sys.GetStatus(context.Background(), id)
	for i := 1; i < len(rec.Stages); i++ {
		if rec.Stages[i].RecordedAt.Before(rec.Stages[i-1].RecordedAt) {
			t.Fatalf("stage %d recorded before stage %d", i+1, i)
		}
	}
}

func TestAppendStage_ConcurrentWritersSerialize(t *testing.T) {
	sys := newTracker(time.Millisecond)
	id := create(t, sys)
	appendAll(t, sys, id, tracker.StageCommand{Stage: tracker.StageUploadStarted, Status: tracker.StatusFailed, Message: "boom"})

	const n = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := sys.AppendStage(context.Background(), id, completed(tracker.StageDeadLettered)); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("accepted DEAD_LETTERED appends = %d, want 1", accepted)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	sys := newTracker(time.Second)
	id := create(t, sys)

	_, err := sys.Create(context.Background(), tracker.CreateCommand{FileID: id, Filename: "x.pdf"})
	if !errors.Is(err, tracker.ErrDuplicate) {
		t.Fatalf("Create() duplicate error = %v", err)
	}
}

func TestGetStatus_NotFound(t *testing.T) {
	sys := newTracker(time.Second)
	if _, err := sys.GetStatus(context.Background(), uuid.New()); !errors.Is(err, tracker.ErrNotFound) {
		t.Fatalf("GetStatus() error = %v, want ErrNotFound", err)
	}
	if _, err := sys.AppendStage(context.Background(), uuid.New(), completed(tracker.StageUploaded)); !errors.Is(err, tracker.ErrNotFound) {
		t.Fatalf("AppendStage() error = %v, want ErrNotFound", err)
	}
}

func TestListAndStats(t *testing.T) {
	sys := newTracker(time.Second)

	done := create(t, sys)
	appendAll(t, sys, done,
		completed(tracker.StageUploaded),
		completed(tracker.StageOCRSkipped),
		started(tracker.StageMatchingStarted),
		completed(tracker.StageMatchingCompleted),
		completed(tracker.StageCompleted),
	)

	failed := create(t, sys)
	appendAll(t, sys, failed, tracker.StageCommand{Stage: tracker.StageUploadStarted, Status: tracker.StatusFailed, Message: "signature mismatch"})

	create(t, sys)

	page := pagination.PageRequest{Page: 1, PageSize: 10}
	all, err := sys.List(context.Background(), page, tracker.Filters{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 3 {
		t.Errorf("Total = %d, want 3", all.Total)
	}

	onlyFailed, _ := sys.List(context.Background(), page, tracker.Filters{Status: tracker.OverallFailed})
	if onlyFailed.Total != 1 || onlyFailed.Data[0].FileID != failed {
		t.Errorf("failed filter = %+v", onlyFailed)
	}

	stats, err := sys.Stats(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Records != 3 || stats.Completed != 1 || stats.Failed != 1 || stats.InProgress != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Stages[0].Stage != tracker.StageUploadStarted || stats.Stages[0].Count != 4 || stats.Stages[0].Failed != 1 {
		t.Errorf("UPLOAD_STARTED stats = %+v", stats.Stages[0])
	}
	if stats.Stages[0].MeanDuration != time.Second {
		t.Errorf("UPLOAD_STARTED mean = %s, want 1s", stats.Stages[0].MeanDuration)
	}
}

func TestHandler(t *testing.T) {
	sys := newTracker(time.Second)
	id := create(t, sys)

	h := tracker.NewHandler(sys, logging.Discard(), pagination.Config{DefaultPageSize: 10, MaxPageSize: 50})
	mux := http.NewServeMux()
	for _, route := range h.Routes() {
		mux.HandleFunc(route.Method+" /api/invoices"+route.Pattern, route.Handler)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/invoices/" + id.String(), http.StatusOK},
		{"/api/invoices/" + uuid.NewString(), http.StatusNotFound},
		{"/api/invoices/not-a-uuid", http.StatusBadRequest},
		{"/api/invoices", http.StatusOK},
		{"/api/invoices/stats?since=1h", http.StatusOK},
		{"/api/invoices/stats?since=soon", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
