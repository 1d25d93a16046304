// Package database manages the PostgreSQL connection pool through database/sql
// and the pgx stdlib driver.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/invoice-pipeline/pkg/lifecycle"
)

// ErrNotReady is returned by Ready until the startup ping and hooks succeed.
var ErrNotReady = errors.New("database not ready")

// System exposes the shared connection pool.
type System interface {
	Connection() *sql.DB
	Ready() error
	Start(lc *lifecycle.Coordinator) error
}

type database struct {
	db      *sql.DB
	cfg     *Config
	logger  *slog.Logger
	ready   atomic.Bool
	onReady []func(context.Context, *sql.DB) error
}

// Option customizes the database system.
type Option func(*database)

// WithStartupHook runs fn after the startup ping succeeds and before the
// system reports ready. Migrations hook in here.
func WithStartupHook(fn func(context.Context, *sql.DB) error) Option {
	return func(d *database) {
		d.onReady = append(d.onReady, fn)
	}
}

// New opens the connection pool. The connection is verified in Start.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (System, error) {
	db, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	d := &database{
		db:     db,
		cfg:    cfg,
		logger: logger.With("system", "database"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *database) Connection() *sql.DB {
	return d.db
}

func (d *database) Ready() error {
	if !d.ready.Load() {
		return ErrNotReady
	}
	return nil
}

func (d *database) Start(lc *lifecycle.Coordinator) error {
	d.logger.Info("starting database system", "host", d.cfg.Host, "name", d.cfg.Name)

	lc.OnStartup(func() {
		ctx, cancel := context.WithTimeout(lc.Context(), d.cfg.ConnTimeoutDuration())
		defer cancel()

		if err := d.db.PingContext(ctx); err != nil {
			d.logger.Error("database ping failed", "error", err)
			return
		}

		for _, hook := range d.onReady {
			if err := hook(lc.Context(), d.db); err != nil {
				d.logger.Error("database startup hook failed", "error", err)
				return
			}
		}

		d.ready.Store(true)
		d.logger.Info("database connection established")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		d.ready.Store(false)
		if err := d.db.Close(); err != nil {
			d.logger.Error("database close failed", "error", err)
			return
		}
		d.logger.Info("database connection closed")
	})

	return nil
}
