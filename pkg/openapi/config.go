package openapi

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Config describes the served document: its info block, the server URL that
// clients resolve documented paths against and the route it is published at.
type Config struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
	ServerURL   string `toml:"server_url"`
	Path        string `toml:"path"`
}

// ConfigEnv names the environment variables overriding each field. Empty
// names are skipped.
type ConfigEnv struct {
	Title       string
	Description string
	ServerURL   string
	Path        string
}

func (c *Config) Finalize(env *ConfigEnv) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

func (c *Config) Merge(overlay *Config) {
	mergeString(&c.Title, overlay.Title)
	mergeString(&c.Description, overlay.Description)
	mergeString(&c.ServerURL, overlay.ServerURL)
	mergeString(&c.Path, overlay.Path)
}

func (c *Config) loadDefaults() {
	if c.Title == "" {
		c.Title = "Invoice Pipeline API"
	}
	if c.Description == "" {
		c.Description = "Invoice intake, extraction and ledger matching with status tracking and dead-letter review."
	}
	if c.ServerURL == "" {
		c.ServerURL = "/"
	}
	if c.Path == "" {
		c.Path = "/openapi.json"
	}
}

func (c *Config) loadEnv(env *ConfigEnv) {
	overrides := []struct {
		name string
		dst  *string
	}{
		{env.Title, &c.Title},
		{env.Description, &c.Description},
		{env.ServerURL, &c.ServerURL},
		{env.Path, &c.Path},
	}
	for _, o := range overrides {
		if o.name == "" {
			continue
		}
		if v := os.Getenv(o.name); v != "" {
			*o.dst = v
		}
	}
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.Path, "/") || strings.HasSuffix(c.Path, "/") {
		return fmt.Errorf("path %q must start with / and name a document", c.Path)
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("server_url: %w", err)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("server_url %q must not carry a query or fragment", c.ServerURL)
	}
	return nil
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
