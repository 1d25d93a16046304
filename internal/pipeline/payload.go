package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoice-pipeline/internal/intake"
	"github.com/JaimeStill/invoice-pipeline/pkg/storage"
)

const metadataFile = "metadata.json"

// PayloadStore keeps original submissions in blob storage under
// submissions/<fileId>/ so dead-lettered files can be re-injected.
type PayloadStore struct {
	blobs storage.System
}

func NewPayloadStore(blobs storage.System) *PayloadStore {
	return &PayloadStore{blobs: blobs}
}

// Put stores the payload and its metadata and returns the payload reference.
func (s *PayloadStore) Put(ctx context.Context, fileID uuid.UUID, sub intake.FileSubmission, checksum string) (string, error) {
	dir := path.Join("submissions", fileID.String())
	ref := path.Join(dir, sub.Filename())

	meta, err := json.Marshal(sub.Metadata(checksum))
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	if err := s.blobs.Store(ctx, ref, sub.Bytes()); err != nil {
		return "", fmt.Errorf("store payload: %w", err)
	}
	if err := s.blobs.Store(ctx, path.Join(dir, metadataFile), meta); err != nil {
		return "", fmt.Errorf("store metadata: %w", err)
	}
	return ref, nil
}

// Get rebuilds the submission referenced by ref.
func (s *PayloadStore) Get(ctx context.Context, ref string) (intake.FileSubmission, error) {
	raw, err := s.blobs.Retrieve(ctx, path.Join(path.Dir(ref), metadataFile))
	if err != nil {
		return intake.FileSubmission{}, fmt.Errorf("retrieve metadata: %w", err)
	}

	var meta intake.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return intake.FileSubmission{}, fmt.Errorf("decode metadata: %w", err)
	}

	data, err := s.blobs.Retrieve(ctx, ref)
	if err != nil {
		return intake.FileSubmission{}, fmt.Errorf("retrieve payload: %w", err)
	}

	if meta.Checksum != "" && intake.Checksum(data) != meta.Checksum {
		return intake.FileSubmission{}, fmt.Errorf("payload %s: checksum mismatch", ref)
	}
	return intake.Restore(meta, data), nil
}
