package api

import (
	"net/http"

	"github.com/JaimeStill/invoice-pipeline/internal/config"
	"github.com/JaimeStill/invoice-pipeline/pkg/openapi"
	"github.com/JaimeStill/invoice-pipeline/pkg/routes"
)

func generateSpec(rs routes.System, cfg *config.Config) *openapi.Spec {
	spec := openapi.NewSpec(cfg.API.OpenAPI.Title, cfg.Version)
	spec.Info.Description = cfg.API.OpenAPI.Description
	spec.Servers = []*openapi.Server{{URL: cfg.API.OpenAPI.ServerURL}}

	for _, group := range rs.Groups() {
		group.AddToSpec("", spec)
	}
	for _, route := range rs.Routes() {
		if route.OpenAPI != nil {
			spec.AddOperation(route.Pattern, route.Method, route.OpenAPI)
		}
	}

	return spec
}

// registerSpec serves the generated document at the configured path under
// the API base. It must run after every documented route is registered.
func registerSpec(rs routes.System, runtime *Runtime, cfg *config.Config) {
	data, err := openapi.MarshalJSON(generateSpec(rs, cfg))
	if err != nil {
		runtime.Logger.Error("openapi generation failed", "error", err)
		return
	}

	rs.RegisterRoute(routes.Route{
		Method:  "GET",
		Pattern: cfg.API.BasePath + cfg.API.OpenAPI.Path,
		Handler: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write(data)
		},
	})
}
