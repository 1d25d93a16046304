package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Provider names accepted in configuration.
const (
	ProviderDocIntel = "docintel"
	ProviderGemini   = "gemini"
	ProviderAgent    = "agent"
)

func knownProvider(name string) bool {
	return slices.Contains([]string{ProviderDocIntel, ProviderGemini, ProviderAgent}, name)
}

// Document is the input handed to a provider.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SchemaHint names the header fields the pipeline expects back.
type SchemaHint struct {
	Fields []string
}

// InvoiceSchema is the hint sent to every provider.
var InvoiceSchema = SchemaHint{
	Fields: []string{"vendor_name", "invoice_number", "invoice_date", "total_amount", "currency", "address", "line_items"},
}

// Payload is a provider-specific response body kept opaque until Parse.
type Payload struct {
	Provider string
	Body     []byte
}

// Provider is one extraction backend. Submit performs the network call;
// Parse maps the provider payload onto a RawInvoice without I/O.
// Both return *Error for classified failures.
type Provider interface {
	Name() string
	Submit(ctx context.Context, doc Document, hint SchemaHint) (Payload, error)
	Parse(payload Payload) (RawInvoice, error)
}

// Registry holds the configured providers. It is built once at startup and
// injected into the pipeline.
type Registry struct {
	providers map[string]Provider
	primary   string
	fallback  string
}

// NewRegistry creates a registry with the given primary and optional fallback names.
func NewRegistry(primary, fallback string, providers ...Provider) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]Provider, len(providers)),
		primary:   primary,
		fallback:  fallback,
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}

	if _, ok := r.providers[primary]; !ok {
		return nil, fmt.Errorf("%w: primary %q not registered", ErrNoProvider, primary)
	}
	if fallback != "" {
		if _, ok := r.providers[fallback]; !ok {
			return nil, fmt.Errorf("%w: fallback %q not registered", ErrNoProvider, fallback)
		}
	}
	return r, nil
}

// Primary returns the primary provider.
func (r *Registry) Primary() Provider {
	return r.providers[r.primary]
}

// Fallback returns the secondary provider if one is configured.
func (r *Registry) Fallback() (Provider, bool) {
	if r.fallback == "" {
		return nil, false
	}
	p, ok := r.providers[r.fallback]
	return p, ok
}

// Lookup returns a registered provider by name.
func (r *Registry) Lookup(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// BuildRegistry constructs the providers named by the configuration.
// The returned close function releases provider clients.
func BuildRegistry(ctx context.Context, cfg *Config, logger *slog.Logger) (*Registry, func() error, error) {
	names := []string{cfg.Primary}
	if cfg.Fallback != "" {
		names = append(names, cfg.Fallback)
	}

	var (
		providers []Provider
		closers   []func() error
	)

	closeAll := func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	for _, name := range names {
		p, closer, err := buildProvider(ctx, name, cfg, logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("build provider %s: %w", name, err)
		}
		providers = append(providers, p)
		if closer != nil {
			closers = append(closers, closer)
		}
	}

	reg, err := NewRegistry(cfg.Primary, cfg.Fallback, providers...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return reg, closeAll, nil
}

func buildProvider(ctx context.Context, name string, cfg *Config, logger *slog.Logger) (Provider, func() error, error) {
	switch name {
	case ProviderDocIntel:
		p, err := NewDocIntel(cfg.DocIntel, nil)
		return p, nil, err
	case ProviderGemini:
		p, err := NewGemini(ctx, cfg.Gemini)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case ProviderAgent:
		p, err := NewAgent(cfg.Agent, logger)
		return p, nil, err
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}
