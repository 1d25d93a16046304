package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/JaimeStill/invoice-pipeline/internal/api"
	"github.com/JaimeStill/invoice-pipeline/internal/config"
	"github.com/JaimeStill/invoice-pipeline/internal/infrastructure"
)

type configLoader func() (*config.Config, error)

// session is a started infrastructure with the domain systems built on it.
// Pooled work runs on the session context.
type session struct {
	cfg    *config.Config
	infra  *infrastructure.Infrastructure
	domain *api.Domain
}

func openSession(ctx context.Context, load configLoader) (*session, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	if err := infra.Start(); err != nil {
		return nil, err
	}
	infra.Lifecycle.WaitForStartup()

	if err := infra.Database.Ready(); err != nil {
		infra.Lifecycle.Shutdown(cfg.ShutdownTimeoutDuration())
		return nil, fmt.Errorf("database not ready: %w", err)
	}

	domain, err := api.NewDomain(ctx, api.NewRuntime(cfg, infra), cfg)
	if err != nil {
		infra.Lifecycle.Shutdown(cfg.ShutdownTimeoutDuration())
		return nil, err
	}
	domain.Pool.Run(ctx)

	return &session{cfg: cfg, infra: infra, domain: domain}, nil
}

// Close drains the worker pool before releasing clients and infrastructure.
func (s *session) Close() error {
	return errors.Join(
		s.domain.Pool.Close(),
		s.domain.Close(),
		s.infra.Lifecycle.Shutdown(s.cfg.ShutdownTimeoutDuration()),
	)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
