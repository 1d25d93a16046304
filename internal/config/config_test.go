package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JaimeStill/invoice-pipeline/internal/config"
)

const baseTOML = `
shutdown_timeout = "20s"

[server]
port = 9090

[api]
base_path = "/api"

[database]
name = "invoices"
user = "intake"

[intake]
max_size = "50MiB"

[extraction]
primary = "docintel"
fallback = "gemini"

[matching]
green_threshold = 95.0

[deadletter]
backend = "memory"
`

const overlayTOML = `
[server]
port = 9191

[pipeline]
workers = 8
`

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFile_Finalize(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.toml", baseTOML)

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.ShutdownTimeoutDuration() != 20*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 20s", cfg.ShutdownTimeoutDuration())
	}
	if cfg.Intake.MaxSizeBytes() != 50<<20 {
		t.Errorf("Intake.MaxSizeBytes = %d", cfg.Intake.MaxSizeBytes())
	}
	if cfg.Extraction.Fallback != "gemini" {
		t.Errorf("Extraction.Fallback = %q", cfg.Extraction.Fallback)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("Pipeline.Workers = %d, want default 4", cfg.Pipeline.Workers)
	}
	if cfg.API.Pagination.DefaultPageSize == 0 {
		t.Error("API.Pagination defaults not applied")
	}
	if cfg.Storage.Backend == "" {
		t.Error("Storage defaults not applied")
	}
}

func TestLoadFile_Overlay(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.toml", baseTOML)
	writeConfig(t, dir, "config.staging.toml", overlayTOML)
	t.Setenv(config.EnvServiceEnv, "staging")

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want overlay 9191", cfg.Server.Port)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("Pipeline.Workers = %d, want 8", cfg.Pipeline.Workers)
	}
	if cfg.Extraction.Primary != "docintel" {
		t.Errorf("Extraction.Primary = %q, base value lost", cfg.Extraction.Primary)
	}
}

func TestFinalize_EnvOverrides(t *testing.T) {
	t.Setenv(config.EnvServerPort, "7070")
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("DATABASE_NAME", "invoices_test")
	t.Setenv("DATABASE_USER", "intake")
	t.Setenv("INTAKE_MAX_SIZE", "10MiB")
	t.Setenv("API_OPENAPI_PATH", "/docs/openapi.json")

	cfg := &config.Config{}
	cfg.DeadLetter.Backend = "memory"
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.Server.Addr() != "0.0.0.0:7070" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Name != "invoices_test" || cfg.Database.User != "intake" {
		t.Errorf("Database = %s@%s/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Name)
	}
	if cfg.Intake.MaxSizeBytes() != 10<<20 {
		t.Errorf("Intake.MaxSizeBytes = %d", cfg.Intake.MaxSizeBytes())
	}
	if cfg.API.BasePath != "/api" || cfg.API.OpenAPI.Path != "/docs/openapi.json" {
		t.Errorf("API = %s%s", cfg.API.BasePath, cfg.API.OpenAPI.Path)
	}
}

func TestFinalize_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"shutdown timeout", func(c *config.Config) { c.ShutdownTimeout = "later" }},
		{"server port", func(c *config.Config) { c.Server.Port = 70000 }},
		{"intake size", func(c *config.Config) { c.Intake.MaxSize = "huge" }},
		{"extraction provider", func(c *config.Config) { c.Extraction.Primary = "tesseract" }},
		{"deadletter backend", func(c *config.Config) { c.DeadLetter.Backend = "redis" }},
		{"database name", func(c *config.Config) { c.Database.Name = "" }},
		{"api base path", func(c *config.Config) { c.API.BasePath = "/api/" }},
		{"openapi path", func(c *config.Config) { c.API.OpenAPI.Path = "openapi.json" }},
	}

	valid := func() *config.Config {
		cfg := &config.Config{}
		cfg.Database.Name = "invoices"
		cfg.Database.User = "intake"
		cfg.DeadLetter.Backend = "memory"
		return cfg
	}
	if err := valid().Finalize(); err != nil {
		t.Fatalf("Finalize() of valid config error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Finalize(); err == nil {
				t.Error("Finalize() accepted invalid configuration")
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := config.LoadFile(filepath.Join(t.TempDir(), "config.toml")); err == nil {
		t.Error("LoadFile() succeeded for missing file")
	}
}
