package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/invoice-pipeline/internal/extraction"
	"github.com/JaimeStill/invoice-pipeline/internal/matching"
	"github.com/JaimeStill/invoice-pipeline/pkg/repository"
)

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Postgres-backed ledger reading ledger_transactions.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "ledger"),
	}
}

const findQuery = `
SELECT candidate_id, vendor_name, amount_minor, currency, tx_date, COALESCE(address, '')
FROM ledger_transactions
WHERE ($1::date IS NULL OR tx_date >= $1::date)
  AND ($2::date IS NULL OR tx_date <= $2::date)
  AND ((amount_minor BETWEEN $3 AND $4) OR ($5 <> '' AND strpos(lower(vendor_name), lower($5)) > 0))
ORDER BY tx_date DESC, candidate_id
LIMIT $6`

func (r *repo) FindCandidates(ctx context.Context, q Query) ([]matching.Candidate, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	args := []any{
		nullDate(q.DateFrom),
		nullDate(q.DateTo),
		int64(q.AmountMin),
		int64(q.AmountMax),
		q.VendorHint,
		limit,
	}

	candidates, err := repository.QueryMany(ctx, r.db, findQuery, args, scanCandidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	r.logger.Debug("candidates found", "count", len(candidates), "vendor_hint", q.VendorHint)
	return candidates, nil
}

const upsertQuery = `
INSERT INTO ledger_transactions (candidate_id, vendor_name, amount_minor, currency, tx_date, address)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
ON CONFLICT (candidate_id) DO UPDATE SET
  vendor_name = EXCLUDED.vendor_name,
  amount_minor = EXCLUDED.amount_minor,
  currency = EXCLUDED.currency,
  tx_date = EXCLUDED.tx_date,
  address = EXCLUDED.address`

func (r *repo) Upsert(ctx context.Context, candidates []matching.Candidate) (int, error) {
	n, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (int, error) {
		for _, c := range candidates {
			_, err := tx.ExecContext(ctx, upsertQuery,
				c.CandidateID, c.VendorName, int64(c.Amount), c.Currency, c.Date, c.Address)
			if err != nil {
				return 0, fmt.Errorf("upsert %s: %w", c.CandidateID, err)
			}
		}
		return len(candidates), nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Info("ledger candidates upserted", "count", n)
	return n, nil
}

func scanCandidate(s repository.Scanner) (matching.Candidate, error) {
	var (
		c      matching.Candidate
		amount int64
	)
	if err := s.Scan(&c.CandidateID, &c.VendorName, &amount, &c.Currency, &c.Date, &c.Address); err != nil {
		return matching.Candidate{}, err
	}
	c.Amount = extraction.Amount(amount)
	return c, nil
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.DateOnly)
}
