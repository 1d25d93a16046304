package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/invoice-pipeline/internal/api"
	"github.com/JaimeStill/invoice-pipeline/internal/config"
	"github.com/JaimeStill/invoice-pipeline/internal/deadletter"
	"github.com/JaimeStill/invoice-pipeline/internal/infrastructure"
	"github.com/JaimeStill/invoice-pipeline/internal/pipeline"
	"github.com/JaimeStill/invoice-pipeline/internal/tracker"
	"github.com/JaimeStill/invoice-pipeline/pkg/lifecycle"
	"github.com/JaimeStill/invoice-pipeline/pkg/logging"
	"github.com/JaimeStill/invoice-pipeline/pkg/pagination"
)

type fixture struct {
	handler http.Handler
	lc      *lifecycle.Coordinator
	domain  *api.Domain
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := logging.Discard()

	cfg := &config.Config{}
	if err := cfg.API.Finalize(); err != nil {
		t.Fatalf("API Finalize() error = %v", err)
	}

	runtime := &api.Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: lifecycle.New(),
			Logger:    logger,
		},
		Pagination: pagination.Config{DefaultPageSize: 20, MaxPageSize: 100},
	}

	domain := &api.Domain{
		Tracker:     tracker.NewMemory(logger, nil),
		DeadLetters: deadletter.NewMemory(logger, nil),
	}
	domain.Pipeline = pipeline.New(&pipeline.Config{}, pipeline.Deps{
		Tracker:     domain.Tracker,
		DeadLetters: domain.DeadLetters,
	}, logger)

	return fixture{
		handler: api.NewHandler(runtime, domain, cfg),
		lc:      runtime.Lifecycle,
		domain:  domain,
	}
}

func (f fixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	f := newFixture(t)

	if rec := f.get("/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
	if rec := f.get("/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before startup = %d, want 503", rec.Code)
	}

	f.lc.WaitForStartup()
	if rec := f.get("/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz after startup = %d, want 200", rec.Code)
	}
}

func TestInvoiceRoutes(t *testing.T) {
	f := newFixture(t)

	rec, err := f.domain.Tracker.Create(context.Background(), tracker.CreateCommand{
		Filename:    "invoice.pdf",
		ContentType: "application/pdf",
		SizeBytes:   2048,
		Source:      "manual",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"find", "/api/invoices/" + rec.FileID.String(), http.StatusOK},
		{"list", "/api/invoices", http.StatusOK},
		{"stats", "/api/invoices/stats?since=1h", http.StatusOK},
		{"bad id", "/api/invoices/not-a-uuid", http.StatusBadRequest},
		{"dead letters", "/api/dead-letters", http.StatusOK},
		{"trailing slash", "/api/invoices/", http.StatusMovedPermanently},
		{"unknown", "/api/vendors", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.get(tt.path); got.Code != tt.status {
				t.Errorf("GET %s = %d, want %d", tt.path, got.Code, tt.status)
			}
		})
	}
}

func TestInvoiceFind_Body(t *testing.T) {
	f := newFixture(t)

	created, err := f.domain.Tracker.Create(context.Background(), tracker.CreateCommand{
		Filename: "scan.png", ContentType: "image/png", SizeBytes: 10, Source: "drive",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec := f.get("/api/invoices/" + created.FileID.String())
	var got tracker.ProcessingRecord
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.FileID != created.FileID || got.OverallStatus != tracker.OverallInProgress {
		t.Errorf("record = %+v", got)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/api/openapi.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var doc struct {
		Servers []struct {
			URL string `json:"url"`
		} `json:"servers"`
		Paths map[string]map[string]any `json:"paths"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "/" {
		t.Errorf("servers = %+v, want documented paths resolved against /", doc.Servers)
	}

	want := map[string]string{
		"/api/invoices":                    "post",
		"/api/invoices/{id}":               "get",
		"/api/invoices/stats":              "get",
		"/api/dead-letters/{id}/reprocess": "post",
		"/api/dead-letters/{id}/resolve":   "post",
	}
	for path, method := range want {
		if _, ok := doc.Paths[path][method]; !ok {
			t.Errorf("%s %s not documented", method, path)
		}
	}
}
