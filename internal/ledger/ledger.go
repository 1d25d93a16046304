// Package ledger looks up ledger transactions that may correspond to an invoice.
package ledger

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/JaimeStill/invoice-pipeline/internal/extraction"
	"github.com/JaimeStill/invoice-pipeline/internal/matching"
)

var ErrLookupFailed = errors.New("ledger lookup failed")

// Query bounds a candidate search. Zero dates leave that side open.
// A candidate qualifies when it falls inside the date range and either its
// amount is inside the amount range or its vendor contains VendorHint,
// compared case-insensitively as a literal substring.
type Query struct {
	VendorHint string
	DateFrom   time.Time
	DateTo     time.Time
	AmountMin  extraction.Amount
	AmountMax  extraction.Amount
	Limit      int
}

// System finds and stores ledger candidates.
type System interface {
	FindCandidates(ctx context.Context, q Query) ([]matching.Candidate, error)
	Upsert(ctx context.Context, candidates []matching.Candidate) (int, error)
}

// QueryFor builds the search window for an invoice: dateWindow either side of
// the invoice date and amountSpread relative either side of its total.
func QueryFor(inv extraction.ExtractedInvoice, dateWindow time.Duration, amountSpread float64) Query {
	q := Query{
		VendorHint: firstToken(inv.VendorName),
		Limit:      50,
	}

	if d, ok := inv.Date(); ok {
		q.DateFrom = d.Add(-dateWindow)
		q.DateTo = d.Add(dateWindow)
	}

	spread := extraction.Amount(float64(inv.TotalAmount.Abs()) * amountSpread)
	q.AmountMin = inv.TotalAmount - spread
	q.AmountMax = inv.TotalAmount + spread
	return q
}

func firstToken(name string) string {
	fields := strings.Fields(extraction.CleanText(name))
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".,;:")
}

// Static is an in-memory System for tests and local runs.
type Static struct {
	candidates []matching.Candidate
}

func NewStatic(candidates ...matching.Candidate) *Static {
	return &Static{candidates: slices.Clone(candidates)}
}

func (s *Static) FindCandidates(ctx context.Context, q Query) ([]matching.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hint := strings.ToLower(q.VendorHint)
	var out []matching.Candidate
	for _, c := range s.candidates {
		if !q.DateFrom.IsZero() && c.Date.Before(q.DateFrom) {
			continue
		}
		if !q.DateTo.IsZero() && c.Date.After(q.DateTo) {
			continue
		}
		inRange := c.Amount >= q.AmountMin && c.Amount <= q.AmountMax
		vendorHit := hint != "" && strings.Contains(strings.ToLower(c.VendorName), hint)
		if !inRange && !vendorHit {
			continue
		}
		out = append(out, c)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (s *Static) Upsert(_ context.Context, candidates []matching.Candidate) (int, error) {
	for _, c := range candidates {
		i := slices.IndexFunc(s.candidates, func(e matching.Candidate) bool {
			return e.CandidateID == c.CandidateID
		})
		if i >= 0 {
			s.candidates[i] = c
		} else {
			s.candidates = append(s.candidates, c)
		}
	}
	return len(candidates), nil
}
