package deadletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JaimeStill/invoice-pipeline/pkg/pagination"
)

// fsEntry is the stored document shape. The document ID is the fileId.
type fsEntry struct {
	FileID          string     `firestore:"file_id"`
	PayloadRef      string     `firestore:"payload_ref"`
	FailureReason   string     `firestore:"failure_reason"`
	RetryCount      int64      `firestore:"retry_count"`
	Status          string     `firestore:"entry_status"`
	ResolutionNotes string     `firestore:"resolution_notes,omitempty"`
	ReprocessedAs   string     `firestore:"reprocessed_as,omitempty"`
	FirstSeenAt     time.Time  `firestore:"first_seen_at"`
	LastAttemptAt   time.Time  `firestore:"last_attempt_at"`
	ResolvedAt      *time.Time `firestore:"resolved_at"`
}

func (d fsEntry) entry() (Entry, error) {
	id, err := uuid.Parse(d.FileID)
	if err != nil {
		return Entry{}, fmt.Errorf("stored file_id %q: %w", d.FileID, err)
	}

	e := Entry{
		FileID:          id,
		PayloadRef:      d.PayloadRef,
		FailureReason:   d.FailureReason,
		RetryCount:      int(d.RetryCount),
		Status:          Status(d.Status),
		ResolutionNotes: d.ResolutionNotes,
		FirstSeenAt:     d.FirstSeenAt,
		LastAttemptAt:   d.LastAttemptAt,
		ResolvedAt:      d.ResolvedAt,
	}
	if d.ReprocessedAs != "" {
		if as, err := uuid.Parse(d.ReprocessedAs); err == nil {
			e.ReprocessedAs = &as
		}
	}
	return e, nil
}

type firestoreStore struct {
	client *firestore.Client
	col    *firestore.CollectionRef
	now    func() time.Time
	logger *slog.Logger
}

// NewFirestore creates a store over one Firestore collection. The returned
// func closes the client.
func NewFirestore(ctx context.Context, cfg FirestoreConfig, logger *slog.Logger) (System, func() error, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.Project, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create firestore client: %w", err)
	}

	return &firestoreStore{
		client: client,
		col:    client.Collection(cfg.Collection),
		now:    time.Now,
		logger: logger.With("system", "deadletter", "backend", BackendFirestore),
	}, client.Close, nil
}

// Enqueue reads and writes inside one transaction. Firestore aborts and
// retries the function when another writer touches the document first, so
// the create-if-absent decision is always made against current data.
func (f *firestoreStore) Enqueue(ctx context.Context, fileID uuid.UUID, payloadRef, reason string) (Entry, error) {
	ref := f.col.Doc(fileID.String())

	var out fsEntry
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := f.now().UTC()

		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			out = fsEntry{
				FileID:        fileID.String(),
				PayloadRef:    payloadRef,
				FailureReason: reason,
				RetryCount:    1,
				Status:        string(StatusPendingReview),
				FirstSeenAt:   now,
				LastAttemptAt: now,
			}
			return tx.Create(ref, out)
		}
		if err != nil {
			return err
		}

		if err := snap.DataTo(&out); err != nil {
			return err
		}
		out.RetryCount++
		if now.After(out.LastAttemptAt) {
			out.LastAttemptAt = now
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "retry_count", Value: firestore.Increment(1)},
			{Path: "last_attempt_at", Value: out.LastAttemptAt},
		})
	})
	if err != nil {
		return Entry{}, fmt.Errorf("enqueue dead letter: %w", err)
	}

	if out.RetryCount == 1 {
		f.logger.Warn("dead-letter entry created", "file_id", fileID, "reason", reason)
	} else {
		f.logger.Warn("dead-letter retry recorded", "file_id", fileID, "retry_count", out.RetryCount)
	}
	return out.entry()
}

func (f *firestoreStore) Resolve(ctx context.Context, fileID uuid.UUID, cmd ResolveCommand) (Entry, error) {
	return f.close(ctx, fileID, func(d *fsEntry, now time.Time) []firestore.Update {
		d.Status = string(StatusResolved)
		d.ResolutionNotes = cmd.ResolutionNotes
		d.ResolvedAt = &now
		return []firestore.Update{
			{Path: "entry_status", Value: d.Status},
			{Path: "resolution_notes", Value: d.ResolutionNotes},
			{Path: "resolved_at", Value: now},
		}
	})
}

func (f *firestoreStore) Reprocess(ctx context.Context, fileID, reprocessedAs uuid.UUID) (Entry, error) {
	return f.close(ctx, fileID, func(d *fsEntry, now time.Time) []firestore.Update {
		d.Status = string(StatusReprocessed)
		d.ReprocessedAs = reprocessedAs.String()
		d.ResolvedAt = &now
		return []firestore.Update{
			{Path: "entry_status", Value: d.Status},
			{Path: "reprocessed_as", Value: d.ReprocessedAs},
			{Path: "resolved_at", Value: now},
		}
	})
}

func (f *firestoreStore) close(ctx context.Context, fileID uuid.UUID, fn func(*fsEntry, time.Time) []firestore.Update) (Entry, error) {
	ref := f.col.Doc(fileID.String())

	var out fsEntry
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if err := snap.DataTo(&out); err != nil {
			return err
		}
		if out.Status != string(StatusPendingReview) {
			return ErrInvalidState
		}

		return tx.Update(ref, fn(&out, f.now().UTC()))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("close dead letter: %w", err)
	}

	f.logger.Info("dead-letter entry closed", "file_id", fileID, "status", out.Status)
	return out.entry()
}

func (f *firestoreStore) Find(ctx context.Context, fileID uuid.UUID) (Entry, error) {
	snap, err := f.col.Doc(fileID.String()).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("find dead letter: %w", err)
	}

	var d fsEntry
	if err := snap.DataTo(&d); err != nil {
		return Entry{}, err
	}
	return d.entry()
}

// List filters in Firestore and orders in memory, which avoids a composite
// index on (entry_status, first_seen_at).
func (f *firestoreStore) List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Entry], error) {
	q := f.col.Query
	if filters.Status != "" {
		q = q.Where("entry_status", "==", string(filters.Status))
	}

	var entries []Entry
	err := f.each(ctx, q, func(_ *firestore.DocumentRef, e Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return pagination.PageResult[Entry]{}, fmt.Errorf("list dead letters: %w", err)
	}

	sortEntries(entries)
	return pagination.Slice(entries, page), nil
}

func (f *firestoreStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	n := 0
	err := f.each(ctx, f.col.Where("resolved_at", "<", cutoff), func(ref *firestore.DocumentRef, e Entry) error {
		if !e.Status.Terminal() {
			return nil
		}
		if _, err := ref.Delete(ctx); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("purge dead letters: %w", err)
	}

	if n > 0 {
		f.logger.Info("dead-letter entries purged", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func (f *firestoreStore) each(ctx context.Context, q firestore.Query, fn func(*firestore.DocumentRef, Entry) error) error {
	iter := q.Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}

		var d fsEntry
		if err := snap.DataTo(&d); err != nil {
			return err
		}
		e, err := d.entry()
		if err != nil {
			return err
		}
		if err := fn(snap.Ref, e); err != nil {
			return err
		}
	}
}
