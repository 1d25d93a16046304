// Package matching scores extracted invoices against ledger candidates and
// routes each invoice to GREEN, YELLOW or RED.
package matching

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/JaimeStill/invoice-pipeline/internal/extraction"
)

// Status is the routing tier of a match.
type Status string

const (
	StatusGreen  Status = "GREEN"
	StatusYellow Status = "YELLOW"
	StatusRed    Status = "RED"
)

// Candidate is a ledger transaction that may correspond to an invoice.
// MatchScore and TieBreakReason are filled in by the engine.
type Candidate struct {
	CandidateID    string            `json:"candidate_id"`
	VendorName     string            `json:"vendor_name"`
	Amount         extraction.Amount `json:"amount"`
	Currency       string            `json:"currency"`
	Date           time.Time         `json:"date"`
	Address        string            `json:"address,omitempty"`
	MatchScore     float64           `json:"match_score"`
	TieBreakReason string            `json:"tie_break_reason,omitempty"`
}

// Outcome is the result of matching one invoice.
type Outcome struct {
	Status          Status     `json:"status"`
	ChosenCandidate *Candidate `json:"chosen_candidate,omitempty"`
	Confidence      float64    `json:"confidence"`
	Reason          string     `json:"reason,omitempty"`
	Evaluated       int        `json:"evaluated"`
}

// Engine is stateless after construction and safe for concurrent use.
type Engine struct {
	cfg       Config
	tolerance extraction.Amount
}

// NewEngine creates an engine from a finalized configuration.
func NewEngine(cfg *Config) *Engine {
	return &Engine{
		cfg:       *cfg,
		tolerance: extraction.Amount(math.Round(cfg.AmountTolerance * 100)),
	}
}

type scored struct {
	candidate   Candidate
	score       float64
	vendor      float64
	amount      float64
	date        float64
	address     float64
	hasAddress  bool
	amountDelta extraction.Amount
	exactAmount bool
	currencyOK  bool
	dayDiff     int
	hasDate     bool
}

// Match scores every candidate and routes the invoice. The result depends only
// on its inputs: ties at the top score are broken by smaller amount delta, then
// the more recent date, then candidate ID.
func (e *Engine) Match(inv extraction.ExtractedInvoice, candidates []Candidate) Outcome {
	if len(candidates) == 0 {
		return Outcome{Status: StatusRed, Reason: "no ledger candidates found"}
	}

	results := make([]scored, len(candidates))
	for i, c := range candidates {
		results[i] = e.score(inv, c)
	}

	slices.SortStableFunc(results, compareScored)

	best := results[0]
	chosen := best.candidate
	chosen.MatchScore = best.score
	if len(results) > 1 && round2(results[1].score) == round2(best.score) {
		chosen.TieBreakReason = tieBreakReason(best, results[1])
	}

	outcome := Outcome{
		Confidence: best.score,
		Evaluated:  len(results),
	}

	switch {
	case best.score >= e.cfg.GreenThreshold && best.exactAmount:
		outcome.Status = StatusGreen
		outcome.ChosenCandidate = &chosen
	case best.score >= e.cfg.YellowThreshold:
		outcome.Status = StatusYellow
		outcome.ChosenCandidate = &chosen
		outcome.Reason = e.divergence(best)
	default:
		outcome.Status = StatusRed
		outcome.Reason = fmt.Sprintf("best candidate %s scored %.2f, below %.0f",
			best.candidate.CandidateID, best.score, e.cfg.YellowThreshold)
	}

	return outcome
}

func (e *Engine) score(inv extraction.ExtractedInvoice, c Candidate) scored {
	s := scored{candidate: c}
	w := e.cfg.Weights

	s.vendor = VendorSimilarity(inv.VendorName, c.VendorName)

	s.currencyOK = inv.Currency == "" || c.Currency == "" || strings.EqualFold(inv.Currency, c.Currency)
	s.amountDelta = (inv.TotalAmount - c.Amount).Abs()
	s.exactAmount = s.currencyOK && s.amountDelta <= e.tolerance
	s.amount = e.amountScore(inv.TotalAmount, s.amountDelta, s.currencyOK)

	if d, ok := inv.Date(); ok && !c.Date.IsZero() {
		s.hasDate = true
		s.dayDiff = dayDiff(d, c.Date)
		switch {
		case s.dayDiff == 0:
			s.date = 1
		case s.dayDiff <= e.cfg.DateWindowDays:
			s.date = 0.5
		}
	}

	vendorWeight := w.Vendor
	if inv.Address != "" && c.Address != "" {
		s.hasAddress = true
		s.address = TextSimilarity(inv.Address, c.Address)
	} else {
		vendorWeight += w.Address
	}

	total := vendorWeight*s.vendor + w.Amount*s.amount + w.Date*s.date
	if s.hasAddress {
		total += w.Address * s.address
	}

	s.score = round2(100 * total / w.sum())
	return s
}

func (e *Engine) amountScore(invoice, delta extraction.Amount, currencyOK bool) float64 {
	if !currencyOK {
		return 0
	}
	if delta <= e.tolerance {
		return 1
	}
	base := max(invoice.Abs(), 1)
	rel := float64(delta) / float64(base)
	if rel >= e.cfg.AmountDecay {
		return 0
	}
	return 1 - rel/e.cfg.AmountDecay
}

func (e *Engine) divergence(s scored) string {
	var parts []string

	if s.vendor < 1 {
		parts = append(parts, fmt.Sprintf("vendor name similarity %.0f%%", s.vendor*100))
	}

	switch {
	case !s.currencyOK:
		parts = append(parts, fmt.Sprintf("currency differs (%s)", s.candidate.Currency))
	case !s.exactAmount:
		parts = append(parts, fmt.Sprintf("amount differs by %s", s.amountDelta))
	}

	switch {
	case !s.hasDate:
		parts = append(parts, "date missing")
	case s.dayDiff > 0:
		parts = append(parts, fmt.Sprintf("date differs by %d days", s.dayDiff))
	}

	if s.hasAddress && s.address < 1 {
		parts = append(parts, fmt.Sprintf("address similarity %.0f%%", s.address*100))
	}

	if s.exactAmount {
		parts = append(parts, "amount exact")
	}

	if len(parts) == 0 {
		return "below auto-accept threshold"
	}
	return strings.Join(parts, ", ")
}

func compareScored(a, b scored) int {
	if c := cmp.Compare(round2(b.score), round2(a.score)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.amountDelta, b.amountDelta); c != 0 {
		return c
	}
	if c := b.candidate.Date.Compare(a.candidate.Date); c != 0 {
		return c
	}
	return cmp.Compare(a.candidate.CandidateID, b.candidate.CandidateID)
}

func tieBreakReason(winner, runnerUp scored) string {
	switch {
	case winner.amountDelta != runnerUp.amountDelta:
		return "smaller amount delta"
	case !winner.candidate.Date.Equal(runnerUp.candidate.Date):
		return "more recent date"
	default:
		return "lowest candidate id"
	}
}

func dayDiff(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	d := int(da.Sub(db).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
