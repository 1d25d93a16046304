package extraction

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var invoiceResponseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"vendor_name":    {Type: genai.TypeString},
		"invoice_number": {Type: genai.TypeString},
		"invoice_date":   {Type: genai.TypeString, Description: "date as printed on the invoice"},
		"total_amount":   {Type: genai.TypeNumber},
		"currency":       {Type: genai.TypeString, Description: "ISO 4217 code"},
		"address":        {Type: genai.TypeString, Nullable: true},
		"confidence":     {Type: genai.TypeNumber},
		"line_items": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"description": {Type: genai.TypeString},
					"quantity":    {Type: genai.TypeNumber},
					"unit_price":  {Type: genai.TypeNumber},
					"total":       {Type: genai.TypeNumber},
				},
			},
		},
	},
	Required: []string{"vendor_name", "total_amount", "invoice_date"},
}

// Gemini extracts invoices with a Vertex AI Gemini model constrained to a
// JSON response schema.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("gemini project required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, cfg.Project, cfg.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vertex client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.Temperature = genai.Ptr[float32](0)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = invoiceResponseSchema
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(extractionPrompt)},
	}

	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Submit(ctx context.Context, doc Document, hint SchemaHint) (Payload, error) {
	prompt := fmt.Sprintf("Extract these fields: %s.", strings.Join(hint.Fields, ", "))

	resp, err := g.model.GenerateContent(ctx,
		genai.Blob{MIMEType: doc.ContentType, Data: doc.Data},
		genai.Text(prompt),
	)
	if err != nil {
		if ctx.Err() != nil {
			return Payload{}, ctx.Err()
		}
		switch status.Code(err) {
		case codes.DeadlineExceeded:
			return Payload{}, Timeout(g.Name(), err)
		case codes.InvalidArgument, codes.FailedPrecondition:
			return Payload{}, Malformed(g.Name(), "document rejected by model", err)
		default:
			return Payload{}, Unavailable(g.Name(), "generate content failed", err)
		}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Payload{}, Malformed(g.Name(), "model returned no candidates", nil)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	return Payload{Provider: g.Name(), Body: []byte(sb.String())}, nil
}

func (g *Gemini) Parse(payload Payload) (RawInvoice, error) {
	return parseLLMInvoice(g.Name(), string(payload.Body))
}
