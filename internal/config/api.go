package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/JaimeStill/invoice-pipeline/pkg/middleware"
	"github.com/JaimeStill/invoice-pipeline/pkg/openapi"
	"github.com/JaimeStill/invoice-pipeline/pkg/pagination"
)

// EnvAPIBasePath overrides the mount point of the invoice and dead-letter routes.
const EnvAPIBasePath = "API_BASE_PATH"

var (
	corsEnv = &middleware.CORSEnv{
		Enabled:          "API_CORS_ENABLED",
		Origins:          "API_CORS_ORIGINS",
		AllowedMethods:   "API_CORS_ALLOWED_METHODS",
		AllowedHeaders:   "API_CORS_ALLOWED_HEADERS",
		AllowCredentials: "API_CORS_ALLOW_CREDENTIALS",
		MaxAge:           "API_CORS_MAX_AGE",
	}

	paginationEnv = &pagination.ConfigEnv{
		DefaultPageSize: "API_PAGINATION_DEFAULT_PAGE_SIZE",
		MaxPageSize:     "API_PAGINATION_MAX_PAGE_SIZE",
	}

	openAPIEnv = &openapi.ConfigEnv{
		Title:       "API_OPENAPI_TITLE",
		Description: "API_OPENAPI_DESCRIPTION",
		ServerURL:   "API_OPENAPI_SERVER_URL",
		Path:        "API_OPENAPI_PATH",
	}
)

// APIConfig holds the HTTP surface: where the routes mount, who may call them
// from a browser, how listings page and how the OpenAPI document is served.
type APIConfig struct {
	BasePath   string                `toml:"base_path"`
	CORS       middleware.CORSConfig `toml:"cors"`
	Pagination pagination.Config     `toml:"pagination"`
	OpenAPI    openapi.Config        `toml:"openapi"`
}

func (c *APIConfig) Finalize() error {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if v := os.Getenv(EnvAPIBasePath); v != "" {
		c.BasePath = v
	}
	if !strings.HasPrefix(c.BasePath, "/") || strings.HasSuffix(c.BasePath, "/") {
		return fmt.Errorf("base_path %q must start with / and have no trailing slash", c.BasePath)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"cors", func() error { return c.CORS.Finalize(corsEnv) }},
		{"pagination", func() error { return c.Pagination.Finalize(paginationEnv) }},
		{"openapi", func() error { return c.OpenAPI.Finalize(openAPIEnv) }},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
	c.OpenAPI.Merge(&overlay.OpenAPI)
}
