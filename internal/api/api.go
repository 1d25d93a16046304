// Package api assembles the domain systems behind the HTTP surface: invoice
// upload and status under /api/invoices, dead-letter triage under
// /api/dead-letters, the OpenAPI document and the health probes.
package api

import (
	"context"
	"net/http"

	"github.com/JaimeStill/invoice-pipeline/internal/config"
	"github.com/JaimeStill/invoice-pipeline/internal/infrastructure"
	"github.com/JaimeStill/invoice-pipeline/pkg/middleware"
	"github.com/JaimeStill/invoice-pipeline/pkg/routes"
)

// Module is the wired API: its runtime, its domain systems and the handler
// serving them.
type Module struct {
	Runtime *Runtime
	Domain  *Domain
	handler http.Handler
}

// NewModule builds the domain from infra and wraps its routes in the
// middleware stack.
func NewModule(ctx context.Context, cfg *config.Config, infra *infrastructure.Infrastructure) (*Module, error) {
	runtime := NewRuntime(cfg, infra)

	domain, err := NewDomain(ctx, runtime, cfg)
	if err != nil {
		return nil, err
	}

	return &Module{
		Runtime: runtime,
		Domain:  domain,
		handler: NewHandler(runtime, domain, cfg),
	}, nil
}

// NewHandler registers the API routes for domain, serves their OpenAPI
// document and applies trailing-slash trimming, request logging and CORS.
func NewHandler(runtime *Runtime, domain *Domain, cfg *config.Config) http.Handler {
	routeSys := routes.New(runtime.Logger)
	registerRoutes(routeSys, runtime, domain, cfg)
	registerSpec(routeSys, runtime, cfg)

	mw := middleware.New()
	mw.Use(middleware.TrimSlash())
	mw.Use(middleware.Logger(runtime.Logger))
	mw.Use(middleware.CORS(&cfg.API.CORS))

	return mw.Apply(routeSys.Build())
}

func (m *Module) Handler() http.Handler {
	return m.handler
}

// Start registers the domain's long-running systems with the lifecycle.
func (m *Module) Start() error {
	return m.Domain.Start(m.Runtime.Lifecycle)
}
