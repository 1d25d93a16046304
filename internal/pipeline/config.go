package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/docker/go-units"
)

const (
	EnvPipelineWorkers       = "PIPELINE_WORKERS"
	EnvPipelineQueueSize     = "PIPELINE_QUEUE_SIZE"
	EnvPipelineLedgerTimeout = "PIPELINE_LEDGER_TIMEOUT"
	EnvPipelineUploadLimit   = "PIPELINE_UPLOAD_LIMIT"
)

// Config sizes the worker pool and bounds the ledger lookup.
type Config struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`

	LedgerTimeout string `toml:"ledger_timeout"`
	// LedgerWindow is how far either side of the invoice date candidates are searched.
	LedgerWindow string `toml:"ledger_window"`
	// LedgerAmountSpread is the relative amount range searched around the invoice total.
	LedgerAmountSpread float64 `toml:"ledger_amount_spread"`

	// UploadLimit caps multipart bodies. It sits above the intake ceiling so
	// oversize files still reach the validator and get a recorded rejection.
	UploadLimit string `toml:"upload_limit"`
}

func (c *Config) LedgerTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.LedgerTimeout)
	return d
}

func (c *Config) LedgerWindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.LedgerWindow)
	return d
}

func (c *Config) UploadLimitBytes() int64 {
	n, _ := units.RAMInBytes(c.UploadLimit)
	return n
}

func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

func (c *Config) Merge(overlay *Config) {
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.QueueSize != 0 {
		c.QueueSize = overlay.QueueSize
	}
	if overlay.LedgerTimeout != "" {
		c.LedgerTimeout = overlay.LedgerTimeout
	}
	if overlay.LedgerWindow != "" {
		c.LedgerWindow = overlay.LedgerWindow
	}
	if overlay.LedgerAmountSpread != 0 {
		c.LedgerAmountSpread = overlay.LedgerAmountSpread
	}
	if overlay.UploadLimit != "" {
		c.UploadLimit = overlay.UploadLimit
	}
}

func (c *Config) loadDefaults() {
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}
	if c.LedgerTimeout == "" {
		c.LedgerTimeout = "5s"
	}
	if c.LedgerWindow == "" {
		c.LedgerWindow = "720h"
	}
	if c.LedgerAmountSpread == 0 {
		c.LedgerAmountSpread = 0.05
	}
	if c.UploadLimit == "" {
		c.UploadLimit = "100MiB"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvPipelineWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv(EnvPipelineQueueSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.QueueSize = n
		}
	}
	if v := os.Getenv(EnvPipelineLedgerTimeout); v != "" {
		c.LedgerTimeout = v
	}
	if v := os.Getenv(EnvPipelineUploadLimit); v != "" {
		c.UploadLimit = v
	}
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must not be negative")
	}
	if d, err := time.ParseDuration(c.LedgerTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid ledger_timeout %q", c.LedgerTimeout)
	}
	if d, err := time.ParseDuration(c.LedgerWindow); err != nil || d < 0 {
		return fmt.Errorf("invalid ledger_window %q", c.LedgerWindow)
	}
	if c.LedgerAmountSpread < 0 || c.LedgerAmountSpread >= 1 {
		return fmt.Errorf("ledger_amount_spread must be in [0, 1)")
	}
	if n, err := units.RAMInBytes(c.UploadLimit); err != nil || n <= 0 {
		return fmt.Errorf("invalid upload_limit %q", c.UploadLimit)
	}
	return nil
}
