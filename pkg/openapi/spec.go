package openapi

import "encoding/json"

// Version is the OpenAPI version emitted by NewSpec.
const Version = "3.1.0"

// NewSpec creates an empty document with the shared components registered.
func NewSpec(title, version string) *Spec {
	return &Spec{
		OpenAPI:    Version,
		Info:       &Info{Title: title, Version: version},
		Paths:      make(map[string]*PathItem),
		Components: NewComponents(),
	}
}

// NewComponents returns the schemas and error responses every API shares.
func NewComponents() *Components {
	return &Components{
		Schemas: map[string]*Schema{
			"Error": {
				Type:     "object",
				Required: []string{"error"},
				Properties: map[string]*Schema{
					"error": {Type: "string"},
				},
			},
		},
		Responses: map[string]*Response{
			"BadRequest":         ResponseJSON("Invalid request", "Error"),
			"NotFound":           ResponseJSON("Resource not found", "Error"),
			"Conflict":           ResponseJSON("Resource is not in a valid state for this operation", "Error"),
			"ServiceUnavailable": ResponseJSON("Service is saturated or not ready", "Error"),
		},
	}
}

// AddSchemas merges schemas, keeping any existing definition of the same name.
func (c *Components) AddSchemas(schemas map[string]*Schema) {
	for name, s := range schemas {
		if _, ok := c.Schemas[name]; !ok {
			c.Schemas[name] = s
		}
	}
}

// AddResponses merges responses, keeping any existing definition of the same name.
func (c *Components) AddResponses(responses map[string]*Response) {
	for name, r := range responses {
		if _, ok := c.Responses[name]; !ok {
			c.Responses[name] = r
		}
	}
}

// AddOperation binds op to method on path. Unsupported methods are ignored.
func (s *Spec) AddOperation(path, method string, op *Operation) {
	if s.Paths[path] == nil {
		s.Paths[path] = &PathItem{}
	}

	switch method {
	case "GET":
		s.Paths[path].Get = op
	case "POST":
		s.Paths[path].Post = op
	case "PUT":
		s.Paths[path].Put = op
	case "DELETE":
		s.Paths[path].Delete = op
	}
}

// MarshalJSON renders the document with two-space indentation.
func MarshalJSON(spec *Spec) ([]byte, error) {
	return json.MarshalIndent(spec, "", "  ")
}
