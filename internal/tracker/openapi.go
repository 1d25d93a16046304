package tracker

import "github.com/JaimeStill/invoice-pipeline/pkg/openapi"

type spec struct {
	List  *openapi.Operation
	Stats *openapi.Operation
	Find  *openapi.Operation
}

var Spec = spec{
	List: &openapi.Operation{
		Summary:     "List processing records",
		Description: "List processing records, newest first, with optional status and stage filters",
		Parameters: []*openapi.Parameter{
			openapi.QueryParam("page", "integer", "Page number", false),
			openapi.QueryParam("page_size", "integer", "Items per page", false),
			openapi.QueryParam("status", "string", "Overall status (IN_PROGRESS, COMPLETED, FAILED)", false),
			openapi.QueryParam("stage", "string", "Current stage", false),
		},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Processing records", "ProcessingRecordPageResult"),
		},
	},
	Stats: &openapi.Operation{
		Summary:     "Stage statistics",
		Description: "Per-stage counts and mean durations for records created within the window",
		Parameters: []*openapi.Parameter{
			openapi.QueryParam("since", "string", "Window as a Go duration, default 24h", false),
		},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Stage statistics", "Stats"),
			400: openapi.ResponseRef("BadRequest"),
		},
	},
	Find: &openapi.Operation{
		Summary:     "Get processing status",
		Description: "Full stage history of one file",
		Parameters: []*openapi.Parameter{
			openapi.PathParam("id", "File ID"),
		},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Processing record", "ProcessingRecord"),
			400: openapi.ResponseRef("BadRequest"),
			404: openapi.ResponseRef("NotFound"),
		},
	},
}

func (spec) Schemas() map[string]*openapi.Schema {
	stages := []string{
		string(StageUploadStarted), string(StageUploaded),
		string(StageOCRStarted), string(StageOCRCompleted), string(StageOCRSkipped),
		string(StageMatchingStarted), string(StageMatchingCompleted), string(StageCompleted),
		string(StageDeadLettered), string(StageResolved), string(StageReprocessed),
	}

	return map[string]*openapi.Schema{
		"StageEntry": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"seq":         {Type: "integer"},
				"stage":       {Type: "string", Enum: stages},
				"status":      {Type: "string", Enum: []string{string(StatusStarted), string(StatusCompleted), string(StatusFailed)}},
				"message":     {Type: "string"},
				"error":       {Type: "string"},
				"provider":    {Type: "string", Description: "Extraction provider that produced the entry"},
				"detail":      {Type: "object", Description: "Stage-specific payload"},
				"recorded_at": {Type: "string", Format: "date-time"},
			},
		},
		"ProcessingRecord": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"file_id":        {Type: "string", Format: "uuid"},
				"filename":       {Type: "string"},
				"content_type":   {Type: "string"},
				"size_bytes":     {Type: "integer", Format: "int64"},
				"source":         {Type: "string", Enum: []string{"manual", "email", "drive"}},
				"checksum":       {Type: "string", Description: "xxhash64 of the file bytes"},
				"current_stage":  {Type: "string", Enum: stages},
				"overall_status": {Type: "string", Enum: []string{string(OverallInProgress), string(OverallCompleted), string(OverallFailed)}},
				"error_message":  {Type: "string"},
				"reprocess_of":   {Type: "string", Format: "uuid"},
				"stages":         {Type: "array", Items: openapi.SchemaRef("StageEntry")},
				"created_at":     {Type: "string", Format: "date-time"},
				"updated_at":     {Type: "string", Format: "date-time"},
			},
		},
		"ProcessingRecordPageResult": openapi.PageResultSchema("ProcessingRecord"),
		"Stats": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"since":       {Type: "string", Format: "date-time"},
				"records":     {Type: "integer"},
				"completed":   {Type: "integer"},
				"failed":      {Type: "integer"},
				"in_progress": {Type: "integer"},
				"stages": {
					Type: "array",
					Items: &openapi.Schema{
						Type: "object",
						Properties: map[string]*openapi.Schema{
							"stage":            {Type: "string", Enum: stages},
							"count":            {Type: "integer"},
							"failed":           {Type: "integer"},
							"mean_duration_ns": {Type: "integer", Format: "int64"},
						},
					},
				},
			},
		},
	}
}
