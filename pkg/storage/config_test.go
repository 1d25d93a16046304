package storage_test

import (
	"testing"

	"github.com/JaimeStill/invoice-pipeline/pkg/storage"
)

func TestConfig_Finalize_Defaults(t *testing.T) {
	cfg := &storage.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.Backend != storage.BackendFilesystem {
		t.Errorf("Backend = %q, want filesystem", cfg.Backend)
	}
	if cfg.BasePath != ".data/blobs" {
		t.Errorf("BasePath = %q, want .data/blobs", cfg.BasePath)
	}
}

func TestConfig_Finalize_Env(t *testing.T) {
	t.Setenv("TEST_STORAGE_BACKEND", "gcs")
	t.Setenv("TEST_STORAGE_BUCKET", "invoices")

	cfg := &storage.Config{}
	env := &storage.Env{Backend: "TEST_STORAGE_BACKEND", Bucket: "TEST_STORAGE_BUCKET"}
	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.Backend != storage.BackendGCS || cfg.Bucket != "invoices" {
		t.Errorf("got backend=%q bucket=%q", cfg.Backend, cfg.Bucket)
	}
}

func TestConfig_Finalize_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  storage.Config
	}{
		{"gcs without bucket", storage.Config{Backend: storage.BackendGCS}},
		{"unknown backend", storage.Config{Backend: "ftp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("Finalize() succeeded, want error")
			}
		})
	}
}

func TestConfig_Merge(t *testing.T) {
	base := &storage.Config{Backend: storage.BackendFilesystem, BasePath: "a"}
	base.Merge(&storage.Config{BasePath: "b", Prefix: "pfx"})

	if base.Backend != storage.BackendFilesystem || base.BasePath != "b" || base.Prefix != "pfx" {
		t.Errorf("Merge() = %+v", base)
	}
}
