package deadletter

import "github.com/JaimeStill/invoice-pipeline/pkg/openapi"

type spec struct {
	List      *openapi.Operation
	Find      *openapi.Operation
	Resolve   *openapi.Operation
	Reprocess *openapi.Operation
}

var Spec = spec{
	List: &openapi.Operation{
		Summary:     "List dead letters",
		Description: "List entries oldest first. Defaults to PENDING_REVIEW; status=all lists everything.",
		Parameters: []*openapi.Parameter{
			openapi.QueryParam("page", "integer", "Page number", false),
			openapi.QueryParam("page_size", "integer", "Items per page", false),
			openapi.QueryParam("status", "string", "PENDING_REVIEW, RESOLVED, REPROCESSED or all", false),
		},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Dead-letter entries", "DeadLetterPageResult"),
		},
	},
	Find: &openapi.Operation{
		Summary: "Find dead letter",
		Parameters: []*openapi.Parameter{
			openapi.PathParam("id", "File ID"),
		},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Dead-letter entry", "DeadLetterEntry"),
			400: openapi.ResponseRef("BadRequest"),
			404: openapi.ResponseRef("NotFound"),
		},
	},
	Resolve: &openapi.Operation{
		Summary:     "Resolve dead letter",
		Description: "Close a PENDING_REVIEW entry without reprocessing",
		Parameters: []*openapi.Parameter{
			openapi.PathParam("id", "File ID"),
		},
		RequestBody: openapi.RequestBodyJSON("ResolveCommand", false),
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Resolved entry", "DeadLetterEntry"),
			400: openapi.ResponseRef("BadRequest"),
			404: openapi.ResponseRef("NotFound"),
			409: openapi.ResponseRef("Conflict"),
		},
	},
	Reprocess: &openapi.Operation{
		Summary:     "Reprocess dead letter",
		Description: "Re-inject the stored payload of a PENDING_REVIEW entry under a new file ID",
		Parameters: []*openapi.Parameter{
			openapi.PathParam("id", "File ID"),
		},
		Responses: map[int]*openapi.Response{
			202: openapi.ResponseJSON("Reprocessing queued", "FileAccepted"),
			404: openapi.ResponseRef("NotFound"),
			409: openapi.ResponseRef("Conflict"),
			503: openapi.ResponseRef("ServiceUnavailable"),
		},
	},
}

func (spec) Schemas() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"DeadLetterEntry": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"file_id":          {Type: "string", Format: "uuid"},
				"payload_ref":      {Type: "string", Description: "Storage key of the original file"},
				"failure_reason":   {Type: "string"},
				"retry_count":      {Type: "integer"},
				"entry_status":     {Type: "string", Enum: []string{string(StatusPendingReview), string(StatusResolved), string(StatusReprocessed)}},
				"resolution_notes": {Type: "string"},
				"reprocessed_as":   {Type: "string", Format: "uuid"},
				"first_seen_at":    {Type: "string", Format: "date-time"},
				"last_attempt_at":  {Type: "string", Format: "date-time"},
				"resolved_at":      {Type: "string", Format: "date-time"},
			},
		},
		"ResolveCommand": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"resolution_notes": {Type: "string"},
			},
		},
		"DeadLetterPageResult": openapi.PageResultSchema("DeadLetterEntry"),
		"FileAccepted": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"file_id": {Type: "string", Format: "uuid"},
			},
		},
	}
}
