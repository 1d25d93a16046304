package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/JaimeStill/invoice-pipeline/pkg/lifecycle"
)

// bucket stores blobs as objects in a Cloud Storage bucket.
type bucket struct {
	client *gcs.Client
	handle *gcs.BucketHandle
	name   string
	prefix string
	logger *slog.Logger
}

func newGCS(ctx context.Context, cfg *Config, logger *slog.Logger) (System, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &bucket{
		client: client,
		handle: client.Bucket(cfg.Bucket),
		name:   cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.With("system", "storage", "backend", BackendGCS),
	}, nil
}

func (b *bucket) Start(lc *lifecycle.Coordinator) error {
	b.logger.Info("starting storage system", "bucket", b.name, "prefix", b.prefix)

	lc.OnStartup(func() {
		if _, err := b.handle.Attrs(lc.Context()); err != nil {
			b.logger.Error("bucket unavailable", "error", err)
			return
		}
		b.logger.Info("bucket reachable")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := b.client.Close(); err != nil {
			b.logger.Error("gcs client close failed", "error", err)
		}
	})

	return nil
}

// Store writes with a DoesNotExist precondition. A 412 response means the
// object was already written and is treated as success.
func (b *bucket) Store(ctx context.Context, key string, data []byte) error {
	name, err := b.objectName(key)
	if err != nil {
		return err
	}

	w := b.handle.Object(name).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := w.Write(data); err != nil {
		w.Close()
		if preconditionFailed(err) {
			return nil
		}
		return fmt.Errorf("write object: %w", mapGCSError(err))
	}

	if err := w.Close(); err != nil {
		if preconditionFailed(err) {
			b.logger.Debug("blob already stored", "key", key)
			return nil
		}
		return fmt.Errorf("finalize object: %w", mapGCSError(err))
	}

	return nil
}

func (b *bucket) Retrieve(ctx context.Context, key string) ([]byte, error) {
	name, err := b.objectName(key)
	if err != nil {
		return nil, err
	}

	r, err := b.handle.Object(name).NewReader(ctx)
	if err != nil {
		return nil, mapGCSError(err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (b *bucket) Delete(ctx context.Context, key string) error {
	name, err := b.objectName(key)
	if err != nil {
		return err
	}

	if err := b.handle.Object(name).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil
		}
		return mapGCSError(err)
	}
	return nil
}

func (b *bucket) Validate(ctx context.Context, key string) (bool, error) {
	name, err := b.objectName(key)
	if err != nil {
		return false, err
	}

	if _, err := b.handle.Object(name).Attrs(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, mapGCSError(err)
	}
	return true, nil
}

func (b *bucket) objectName(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if b.prefix == "" {
		return cleaned, nil
	}
	return path.Join(b.prefix, cleaned), nil
}

func preconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

func mapGCSError(err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ErrNotFound
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusForbidden || gerr.Code == http.StatusUnauthorized) {
		return ErrPermissionDenied
	}
	return err
}
