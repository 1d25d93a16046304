package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/document-context/pkg/config"
	"github.com/JaimeStill/document-context/pkg/document"
	"github.com/JaimeStill/document-context/pkg/image"
	"github.com/JaimeStill/go-agents/pkg/agent"
	agtconfig "github.com/JaimeStill/go-agents/pkg/config"
)

type visionFunc func(ctx context.Context, prompt string, images []string) (string, error)

// Agent extracts invoices with a go-agents vision agent. PDFs are rendered to
// a PNG of their first page before they are sent.
type Agent struct {
	vision visionFunc
	dpi    int
	logger *slog.Logger
}

func NewAgent(cfg AgentConfig, logger *slog.Logger) (*Agent, error) {
	agentCfg := agtconfig.DefaultAgentConfig()

	if cfg.ConfigFile != "" {
		data, err := os.ReadFile(cfg.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("read agent config: %w", err)
		}
		var userCfg agtconfig.AgentConfig
		if err := json.Unmarshal(data, &userCfg); err != nil {
			return nil, fmt.Errorf("parse agent config: %w", err)
		}
		agentCfg.Merge(&userCfg)
	}

	agt, err := agent.New(&agentCfg)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}

	vision := func(ctx context.Context, prompt string, images []string) (string, error) {
		resp, err := agt.Vision(ctx, prompt, images)
		if err != nil {
			return "", err
		}
		return resp.Content(), nil
	}

	return &Agent{
		vision: vision,
		dpi:    cfg.DPI,
		logger: logger.With("provider", ProviderAgent),
	}, nil
}

func (a *Agent) Name() string { return ProviderAgent }

func (a *Agent) Submit(ctx context.Context, doc Document, _ SchemaHint) (Payload, error) {
	var (
		data        = doc.Data
		contentType = doc.ContentType
	)

	switch contentType {
	case "image/jpeg", "image/png":
	case "application/pdf":
		rendered, err := a.renderFirstPage(doc.Data)
		if err != nil {
			return Payload{}, Malformed(a.Name(), "document could not be rendered", err)
		}
		data, contentType = rendered, "image/png"
	default:
		return Payload{}, Unavailable(a.Name(), fmt.Sprintf("content type %s not supported by vision agent", contentType), nil)
	}

	content, err := a.vision(ctx, extractionPrompt, []string{buildDataURI(data, contentType)})
	if err != nil {
		if ctx.Err() != nil {
			return Payload{}, ctx.Err()
		}
		return Payload{}, Unavailable(a.Name(), "vision request failed", err)
	}

	return Payload{Provider: a.Name(), Body: []byte(content)}, nil
}

func (a *Agent) Parse(payload Payload) (RawInvoice, error) {
	return parseLLMInvoice(a.Name(), string(payload.Body))
}

func (a *Agent) renderFirstPage(pdf []byte) ([]byte, error) {
	tmp, err := os.CreateTemp("", "invoice-*.pdf")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pdf); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	doc, err := document.OpenPDF(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	page, err := doc.ExtractPage(1)
	if err != nil {
		return nil, fmt.Errorf("extract page: %w", err)
	}

	renderer, err := image.NewImageMagickRenderer(config.ImageConfig{
		Format:  "png",
		DPI:     a.dpi,
		Options: map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	a.logger.Debug("rendering first page", "dpi", a.dpi)
	return page.ToImage(renderer, nil)
}

func buildDataURI(data []byte, contentType string) string {
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
}
