package routes_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/invoice-pipeline/pkg/logging"
	"github.com/JaimeStill/invoice-pipeline/pkg/openapi"
	"github.com/JaimeStill/invoice-pipeline/pkg/routes"
)

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body + ":" + r.PathValue("id")))
	}
}

func TestBuild_GroupsAndChildren(t *testing.T) {
	sys := routes.New(logging.Discard())

	sys.RegisterRoute(routes.Route{Method: "GET", Pattern: "/healthz", Handler: respond("health")})
	sys.RegisterGroup(routes.Group{
		Prefix: "/api",
		Children: []routes.Group{
			{
				Prefix: "/invoices",
				Routes: []routes.Route{
					{Method: "GET", Pattern: "/{id}", Handler: respond("find")},
				},
			},
		},
	})

	handler := sys.Build()

	tests := []struct {
		method, path string
		wantStatus   int
		wantBody     string
	}{
		{"GET", "/healthz", http.StatusOK, "health:"},
		{"GET", "/api/invoices/abc", http.StatusOK, "find:abc"},
		{"POST", "/api/invoices/abc", http.StatusMethodNotAllowed, ""},
		{"GET", "/missing", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

		if rec.Code != tt.wantStatus {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
		}
		if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
			t.Errorf("%s %s body = %q, want %q", tt.method, tt.path, rec.Body.String(), tt.wantBody)
		}
	}

	if len(sys.Groups()) != 1 || len(sys.Routes()) != 1 {
		t.Errorf("Groups() = %d, Routes() = %d", len(sys.Groups()), len(sys.Routes()))
	}
}

func TestGroup_AddToSpec(t *testing.T) {
	spec := openapi.NewSpec("Test API", "1.0.0")

	group := routes.Group{
		Prefix: "/invoices",
		Tags:   []string{"Invoices"},
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: respond("list"), OpenAPI: &openapi.Operation{Summary: "List"}},
			{Method: "GET", Pattern: "/{id}", Handler: respond("find")},
		},
		Children: []routes.Group{
			{
				Prefix: "/stats",
				Routes: []routes.Route{
					{Method: "GET", Pattern: "", Handler: respond("stats"), OpenAPI: &openapi.Operation{Summary: "Stats", Tags: []string{"Stats"}}},
				},
				Schemas: map[string]*openapi.Schema{"Stats": {Type: "object"}},
			},
		},
	}

	group.AddToSpec("/api", spec)

	list := spec.Paths["/api/invoices"]
	if list == nil || list.Get == nil || list.Get.Summary != "List" {
		t.Fatalf("list path = %+v", list)
	}
	if len(list.Get.Tags) != 1 || list.Get.Tags[0] != "Invoices" {
		t.Errorf("list tags = %v, want inherited group tags", list.Get.Tags)
	}

	if _, ok := spec.Paths["/api/invoices/{id}"]; ok {
		t.Error("route without an operation was documented")
	}

	stats := spec.Paths["/api/invoices/stats"]
	if stats == nil || stats.Get.Tags[0] != "Stats" {
		t.Errorf("stats path = %+v", stats)
	}
	if spec.Components.Schemas["Stats"] == nil {
		t.Error("child schema not registered")
	}
	if spec.Components.Schemas["Error"] == nil {
		t.Error("shared Error schema missing")
	}
}
