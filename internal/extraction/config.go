package extraction

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/docker/go-units"

	"github.com/JaimeStill/invoice-pipeline/pkg/retry"
)

const (
	EnvExtractionPrimary         = "EXTRACTION_PRIMARY"
	EnvExtractionFallback        = "EXTRACTION_FALLBACK"
	EnvExtractionTimeout         = "EXTRACTION_TIMEOUT"
	EnvExtractionDefaultCurrency = "EXTRACTION_DEFAULT_CURRENCY"
	EnvExtractionCacheSize       = "EXTRACTION_CACHE_SIZE"
	EnvDocIntelEndpoint          = "DOCINTEL_ENDPOINT"
	EnvDocIntelAPIKey            = "DOCINTEL_API_KEY"
	EnvGeminiProject             = "GEMINI_PROJECT"
	EnvGeminiLocation            = "GEMINI_LOCATION"
	EnvAgentConfigFile           = "AGENT_CONFIG_FILE"
)

// Config selects providers and bounds each provider call.
type Config struct {
	Primary         string `toml:"primary"`
	Fallback        string `toml:"fallback"`
	Timeout         string `toml:"timeout"`
	DefaultCurrency string `toml:"default_currency"`

	// CacheSize is the number of extracted invoices remembered by content
	// checksum. Zero applies the default; negative disables the cache.
	CacheSize int `toml:"cache_size"`

	Retry    RetryConfig    `toml:"retry"`
	Breaker  BreakerConfig  `toml:"breaker"`
	DocIntel DocIntelConfig `toml:"docintel"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Agent    AgentConfig    `toml:"agent"`
}

// RetryConfig is the backoff schedule for retryable provider failures.
type RetryConfig struct {
	MaxAttempts int     `toml:"max_attempts"`
	BaseDelay   string  `toml:"base_delay"`
	MaxDelay    string  `toml:"max_delay"`
	Factor      float64 `toml:"factor"`
}

// BreakerConfig trips a provider's circuit after consecutive failures.
type BreakerConfig struct {
	Threshold int    `toml:"threshold"`
	Recovery  string `toml:"recovery"`
}

// DocIntelConfig addresses an Azure Document Intelligence resource.
type DocIntelConfig struct {
	Endpoint     string `toml:"endpoint"`
	APIKey       string `toml:"api_key"`
	APIVersion   string `toml:"api_version"`
	Model        string `toml:"model"`
	PollInterval string `toml:"poll_interval"`
	// MaxResponse caps the size of a poll response body, e.g. "16MiB".
	MaxResponse string `toml:"max_response"`
}

// GeminiConfig addresses a Vertex AI Gemini model.
type GeminiConfig struct {
	Project         string `toml:"project"`
	Location        string `toml:"location"`
	Model           string `toml:"model"`
	CredentialsFile string `toml:"credentials_file"`
}

// AgentConfig points at a go-agents JSON configuration for the vision agent.
type AgentConfig struct {
	ConfigFile string `toml:"config_file"`
	DPI        int    `toml:"dpi"`
}

func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Policy returns the retry policy.
func (c *Config) Policy() retry.Policy {
	base, _ := time.ParseDuration(c.Retry.BaseDelay)
	maxDelay, _ := time.ParseDuration(c.Retry.MaxDelay)
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   base,
		MaxDelay:    maxDelay,
		Factor:      c.Retry.Factor,
	}
}

func (c *BreakerConfig) RecoveryDuration() time.Duration {
	d, _ := time.ParseDuration(c.Recovery)
	return d
}

func (c *DocIntelConfig) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

func (c *DocIntelConfig) MaxResponseBytes() int64 {
	n, _ := units.RAMInBytes(c.MaxResponse)
	return n
}

func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

func (c *Config) Merge(overlay *Config) {
	if overlay.Primary != "" {
		c.Primary = overlay.Primary
	}
	if overlay.Fallback != "" {
		c.Fallback = overlay.Fallback
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.DefaultCurrency != "" {
		c.DefaultCurrency = overlay.DefaultCurrency
	}
	if overlay.CacheSize != 0 {
		c.CacheSize = overlay.CacheSize
	}
	if overlay.Retry.MaxAttempts != 0 {
		c.Retry.MaxAttempts = overlay.Retry.MaxAttempts
	}
	if overlay.Retry.BaseDelay != "" {
		c.Retry.BaseDelay = overlay.Retry.BaseDelay
	}
	if overlay.Retry.MaxDelay != "" {
		c.Retry.MaxDelay = overlay.Retry.MaxDelay
	}
	if overlay.Retry.Factor != 0 {
		c.Retry.Factor = overlay.Retry.Factor
	}
	if overlay.Breaker.Threshold != 0 {
		c.Breaker.Threshold = overlay.Breaker.Threshold
	}
	if overlay.Breaker.Recovery != "" {
		c.Breaker.Recovery = overlay.Breaker.Recovery
	}
	mergeString(&c.DocIntel.Endpoint, overlay.DocIntel.Endpoint)
	mergeString(&c.DocIntel.APIKey, overlay.DocIntel.APIKey)
	mergeString(&c.DocIntel.APIVersion, overlay.DocIntel.APIVersion)
	mergeString(&c.DocIntel.Model, overlay.DocIntel.Model)
	mergeString(&c.DocIntel.PollInterval, overlay.DocIntel.PollInterval)
	mergeString(&c.DocIntel.MaxResponse, overlay.DocIntel.MaxResponse)
	mergeString(&c.Gemini.Project, overlay.Gemini.Project)
	mergeString(&c.Gemini.Location, overlay.Gemini.Location)
	mergeString(&c.Gemini.Model, overlay.Gemini.Model)
	mergeString(&c.Gemini.CredentialsFile, overlay.Gemini.CredentialsFile)
	mergeString(&c.Agent.ConfigFile, overlay.Agent.ConfigFile)
	if overlay.Agent.DPI != 0 {
		c.Agent.DPI = overlay.Agent.DPI
	}
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) loadDefaults() {
	if c.Primary == "" {
		c.Primary = ProviderDocIntel
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "HUF"
	}
	if c.CacheSize == 0 {
		c.CacheSize = 256
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay == "" {
		c.Retry.BaseDelay = "500ms"
	}
	if c.Retry.MaxDelay == "" {
		c.Retry.MaxDelay = "10s"
	}
	if c.Retry.Factor == 0 {
		c.Retry.Factor = 2
	}
	if c.Breaker.Threshold == 0 {
		c.Breaker.Threshold = 5
	}
	if c.Breaker.Recovery == "" {
		c.Breaker.Recovery = "60s"
	}
	if c.DocIntel.APIVersion == "" {
		c.DocIntel.APIVersion = "2024-11-30"
	}
	if c.DocIntel.Model == "" {
		c.DocIntel.Model = "prebuilt-invoice"
	}
	if c.DocIntel.PollInterval == "" {
		c.DocIntel.PollInterval = "1s"
	}
	if c.DocIntel.MaxResponse == "" {
		c.DocIntel.MaxResponse = "16MiB"
	}
	if c.Gemini.Location == "" {
		c.Gemini.Location = "europe-west1"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-1.5-flash"
	}
	if c.Agent.DPI == 0 {
		c.Agent.DPI = 200
	}
}

func (c *Config) loadEnv() {
	envString(EnvExtractionPrimary, &c.Primary)
	envString(EnvExtractionFallback, &c.Fallback)
	envString(EnvExtractionTimeout, &c.Timeout)
	envString(EnvExtractionDefaultCurrency, &c.DefaultCurrency)
	envString(EnvDocIntelEndpoint, &c.DocIntel.Endpoint)
	envString(EnvDocIntelAPIKey, &c.DocIntel.APIKey)
	envString(EnvGeminiProject, &c.Gemini.Project)
	envString(EnvGeminiLocation, &c.Gemini.Location)
	envString(EnvAgentConfigFile, &c.Agent.ConfigFile)

	if v := os.Getenv(EnvExtractionCacheSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CacheSize = n
		}
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func (c *Config) validate() error {
	if !knownProvider(c.Primary) {
		return fmt.Errorf("primary: %w: %s", ErrUnknownProvider, c.Primary)
	}
	if c.Fallback != "" {
		if !knownProvider(c.Fallback) {
			return fmt.Errorf("fallback: %w: %s", ErrUnknownProvider, c.Fallback)
		}
		if c.Fallback == c.Primary {
			return fmt.Errorf("fallback must differ from primary")
		}
	}
	for name, v := range map[string]string{
		"timeout":                c.Timeout,
		"retry.base_delay":       c.Retry.BaseDelay,
		"retry.max_delay":        c.Retry.MaxDelay,
		"breaker.recovery":       c.Breaker.Recovery,
		"docintel.poll_interval": c.DocIntel.PollInterval,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if n, err := units.RAMInBytes(c.DocIntel.MaxResponse); err != nil || n <= 0 {
		return fmt.Errorf("invalid docintel.max_response %q", c.DocIntel.MaxResponse)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.Factor < 1 {
		return fmt.Errorf("retry.factor must be at least 1")
	}
	if c.Breaker.Threshold < 1 {
		return fmt.Errorf("breaker.threshold must be at least 1")
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("default_currency must be a 3-letter code")
	}
	return nil
}
