package intake

import (
	"fmt"
	"os"
	"strconv"

	"github.com/docker/go-units"
)

const (
	EnvIntakeMaxSize           = "INTAKE_MAX_SIZE"
	EnvIntakeMaxFilenameLength = "INTAKE_MAX_FILENAME_LENGTH"
)

// Config bounds inbound files.
type Config struct {
	// MaxSize is a binary human size such as "50MiB".
	MaxSize           string `toml:"max_size"`
	MaxFilenameLength int    `toml:"max_filename_length"`
	maxSizeBytes      int64
}

// MaxSizeBytes returns the parsed size ceiling. Valid after Finalize.
func (c *Config) MaxSizeBytes() int64 {
	return c.maxSizeBytes
}

func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

func (c *Config) Merge(overlay *Config) {
	if overlay.MaxSize != "" {
		c.MaxSize = overlay.MaxSize
	}
	if overlay.MaxFilenameLength != 0 {
		c.MaxFilenameLength = overlay.MaxFilenameLength
	}
}

func (c *Config) loadDefaults() {
	if c.MaxSize == "" {
		c.MaxSize = "50MiB"
	}
	if c.MaxFilenameLength == 0 {
		c.MaxFilenameLength = 255
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvIntakeMaxSize); v != "" {
		c.MaxSize = v
	}
	if v := os.Getenv(EnvIntakeMaxFilenameLength); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxFilenameLength = n
		}
	}
}

func (c *Config) validate() error {
	size, err := units.RAMInBytes(c.MaxSize)
	if err != nil {
		return fmt.Errorf("invalid max_size: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("max_size must be positive")
	}
	if c.MaxFilenameLength < 1 {
		return fmt.Errorf("max_filename_length must be positive")
	}
	c.maxSizeBytes = size
	return nil
}
