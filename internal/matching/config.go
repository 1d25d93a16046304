package matching

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvMatchingGreenThreshold  = "MATCHING_GREEN_THRESHOLD"
	EnvMatchingYellowThreshold = "MATCHING_YELLOW_THRESHOLD"
	EnvMatchingAmountTolerance = "MATCHING_AMOUNT_TOLERANCE"
)

// Weights are the relative contributions of each field to the composite
// score. They are normalized by their sum.
type Weights struct {
	Vendor  float64 `toml:"vendor"`
	Amount  float64 `toml:"amount"`
	Date    float64 `toml:"date"`
	Address float64 `toml:"address"`
}

func (w Weights) sum() float64 {
	return w.Vendor + w.Amount + w.Date + w.Address
}

// Config holds the scoring weights and routing thresholds.
type Config struct {
	Weights Weights `toml:"weights"`

	GreenThreshold  float64 `toml:"green_threshold"`
	YellowThreshold float64 `toml:"yellow_threshold"`

	// AmountTolerance is the absolute difference, in currency units, still
	// treated as an exact amount match.
	AmountTolerance float64 `toml:"amount_tolerance"`

	// AmountDecay is the relative difference at which the amount score reaches zero.
	AmountDecay float64 `toml:"amount_decay"`

	DateWindowDays int `toml:"date_window_days"`
}

func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

func (c *Config) Merge(overlay *Config) {
	if overlay.Weights.sum() > 0 {
		c.Weights = overlay.Weights
	}
	if overlay.GreenThreshold != 0 {
		c.GreenThreshold = overlay.GreenThreshold
	}
	if overlay.YellowThreshold != 0 {
		c.YellowThreshold = overlay.YellowThreshold
	}
	if overlay.AmountTolerance != 0 {
		c.AmountTolerance = overlay.AmountTolerance
	}
	if overlay.AmountDecay != 0 {
		c.AmountDecay = overlay.AmountDecay
	}
	if overlay.DateWindowDays != 0 {
		c.DateWindowDays = overlay.DateWindowDays
	}
}

func (c *Config) loadDefaults() {
	if c.Weights.sum() == 0 {
		c.Weights = Weights{Vendor: 0.40, Amount: 0.40, Date: 0.15, Address: 0.05}
	}
	if c.GreenThreshold == 0 {
		c.GreenThreshold = 95
	}
	if c.YellowThreshold == 0 {
		c.YellowThreshold = 70
	}
	if c.AmountTolerance == 0 {
		c.AmountTolerance = 0.01
	}
	if c.AmountDecay == 0 {
		c.AmountDecay = 0.05
	}
	if c.DateWindowDays == 0 {
		c.DateWindowDays = 3
	}
}

func (c *Config) loadEnv() {
	envFloat := func(name string, dst *float64) {
		if v := os.Getenv(name); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	envFloat(EnvMatchingGreenThreshold, &c.GreenThreshold)
	envFloat(EnvMatchingYellowThreshold, &c.YellowThreshold)
	envFloat(EnvMatchingAmountTolerance, &c.AmountTolerance)
}

func (c *Config) validate() error {
	w := c.Weights
	if w.Vendor < 0 || w.Amount < 0 || w.Date < 0 || w.Address < 0 {
		return fmt.Errorf("weights must not be negative")
	}
	if c.YellowThreshold <= 0 || c.GreenThreshold > 100 || c.YellowThreshold >= c.GreenThreshold {
		return fmt.Errorf("thresholds must satisfy 0 < yellow < green <= 100")
	}
	if c.AmountTolerance < 0 {
		return fmt.Errorf("amount_tolerance must not be negative")
	}
	if c.AmountDecay <= 0 {
		return fmt.Errorf("amount_decay must be positive")
	}
	if c.DateWindowDays < 0 {
		return fmt.Errorf("date_window_days must not be negative")
	}
	return nil
}
