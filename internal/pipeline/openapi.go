package pipeline

import "github.com/JaimeStill/invoice-pipeline/pkg/openapi"

type spec struct {
	Upload *openapi.Operation
}

var Spec = spec{
	Upload: &openapi.Operation{
		Summary:     "Upload invoice",
		Description: "Queue a PDF, JPEG, PNG or TIFF invoice for processing. Poll the returned file ID for status.",
		RequestBody: &openapi.RequestBody{
			Required: true,
			Content: map[string]*openapi.MediaType{
				"multipart/form-data": {
					Schema: &openapi.Schema{
						Type: "object",
						Properties: map[string]*openapi.Schema{
							"file":   {Type: "string", Format: "binary", Description: "Invoice file"},
							"source": {Type: "string", Enum: []string{"manual", "email", "drive"}, Description: "Where the file arrived from"},
						},
						Required: []string{"file"},
					},
				},
			},
		},
		Responses: map[int]*openapi.Response{
			202: openapi.ResponseJSON("Upload accepted", "FileAccepted"),
			400: openapi.ResponseRef("BadRequest"),
			413: {Description: "Request exceeds the upload limit"},
			503: openapi.ResponseRef("ServiceUnavailable"),
		},
	},
}
