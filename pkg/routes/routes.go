// Package routes registers route groups on a stdlib ServeMux using
// method-qualified patterns ("GET /api/invoices/{id}").
package routes

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/invoice-pipeline/pkg/openapi"
)

// Route is a single method and pattern bound to a handler.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
	OpenAPI *openapi.Operation
}

// Group is a set of routes sharing a prefix. Children inherit the prefix.
type Group struct {
	Prefix      string
	Tags        []string
	Description string
	Routes      []Route
	Children    []Group
	Schemas     map[string]*openapi.Schema
}

// AddToSpec documents the group's routes under parent+Prefix. Routes without
// an operation are left out. Operations without tags inherit the group's.
func (g Group) AddToSpec(parent string, spec *openapi.Spec) {
	prefix := parent + g.Prefix

	for _, route := range g.Routes {
		if route.OpenAPI == nil {
			continue
		}
		op := *route.OpenAPI
		if len(op.Tags) == 0 {
			op.Tags = g.Tags
		}
		spec.AddOperation(prefix+route.Pattern, route.Method, &op)
	}

	if len(g.Schemas) > 0 {
		spec.Components.AddSchemas(g.Schemas)
	}

	for _, child := range g.Children {
		child.AddToSpec(prefix, spec)
	}
}

// System collects routes and builds the final handler.
type System interface {
	RegisterGroup(group Group)
	RegisterRoute(route Route)
	Build() http.Handler
	Groups() []Group
	Routes() []Route
}

type registry struct {
	routes []Route
	groups []Group
	logger *slog.Logger
}

// New creates an empty route registry.
func New(logger *slog.Logger) System {
	return &registry{logger: logger.With("system", "routes")}
}

func (r *registry) Groups() []Group { return r.groups }

func (r *registry) Routes() []Route { return r.routes }

func (r *registry) RegisterRoute(route Route) {
	r.routes = append(r.routes, route)
}

func (r *registry) RegisterGroup(group Group) {
	r.groups = append(r.groups, group)
}

func (r *registry) Build() http.Handler {
	mux := http.NewServeMux()

	for _, route := range r.routes {
		r.handle(mux, route.Method, route.Pattern, route.Handler)
	}
	for _, group := range r.groups {
		r.registerGroup(mux, "", group)
	}

	return mux
}

func (r *registry) registerGroup(mux *http.ServeMux, parent string, group Group) {
	prefix := parent + group.Prefix
	for _, route := range group.Routes {
		r.handle(mux, route.Method, prefix+route.Pattern, route.Handler)
	}
	for _, child := range group.Children {
		r.registerGroup(mux, prefix, child)
	}
}

func (r *registry) handle(mux *http.ServeMux, method, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(method+" "+pattern, h)
	r.logger.Debug("route registered", "method", method, "pattern", pattern)
}
