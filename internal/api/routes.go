package api

import (
	"net/http"

	"github.com/JaimeStill/invoice-pipeline/internal/config"
	"github.com/JaimeStill/invoice-pipeline/internal/deadletter"
	"github.com/JaimeStill/invoice-pipeline/internal/pipeline"
	"github.com/JaimeStill/invoice-pipeline/internal/tracker"
	"github.com/JaimeStill/invoice-pipeline/pkg/routes"
)

func registerRoutes(r routes.System, runtime *Runtime, domain *Domain, cfg *config.Config) {
	uploadHandler := pipeline.NewHandler(domain.Pipeline, runtime.Logger, cfg.Pipeline.UploadLimitBytes())
	trackerHandler := tracker.NewHandler(domain.Tracker, runtime.Logger, runtime.Pagination)
	deadLetterHandler := deadletter.NewHandler(domain.DeadLetters, domain.Pipeline, runtime.Logger, runtime.Pagination)

	r.RegisterGroup(routes.Group{
		Prefix:      cfg.API.BasePath,
		Description: "Invoice intake and review API",
		Children: []routes.Group{
			{
				Prefix:      "/invoices",
				Tags:        []string{"Invoices"},
				Description: "Upload and status polling",
				Routes:      append(uploadHandler.Routes(), trackerHandler.Routes()...),
				Schemas:     tracker.Spec.Schemas(),
			},
			deadLetterHandler.Routes(),
		},
	})

	r.RegisterRoute(routes.Route{
		Method:  "GET",
		Pattern: "/healthz",
		Handler: handleHealthCheck,
	})

	r.RegisterRoute(routes.Route{
		Method:  "GET",
		Pattern: "/readyz",
		Handler: func(w http.ResponseWriter, r *http.Request) {
			handleReadinessCheck(w, runtime)
		},
	})
}

// handleHealthCheck responds with OK status for liveness probes.
func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func handleReadinessCheck(w http.ResponseWriter, runtime *Runtime) {
	if !runtime.Lifecycle.Ready() || (runtime.Database != nil && runtime.Database.Ready() != nil) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT READY"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}
