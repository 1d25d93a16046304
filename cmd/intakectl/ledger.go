package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JaimeStill/invoice-pipeline/internal/extraction"
	"github.com/JaimeStill/invoice-pipeline/internal/matching"
)

// ledgerRow is one transaction in an import file. YAML and JSON files share
// this shape.
type ledgerRow struct {
	CandidateID string `yaml:"candidate_id"`
	VendorName  string `yaml:"vendor_name"`
	Amount      string `yaml:"amount"`
	Currency    string `yaml:"currency"`
	Date        string `yaml:"date"`
	Address     string `yaml:"address"`
}

func (r ledgerRow) candidate() (matching.Candidate, error) {
	if r.CandidateID == "" {
		return matching.Candidate{}, fmt.Errorf("candidate_id is required")
	}

	amount, err := extraction.ParseAmount(r.Amount)
	if err != nil {
		return matching.Candidate{}, fmt.Errorf("%s: %w", r.CandidateID, err)
	}

	date, err := time.Parse(time.DateOnly, r.Date)
	if err != nil {
		return matching.Candidate{}, fmt.Errorf("%s: invalid date %q", r.CandidateID, r.Date)
	}

	return matching.Candidate{
		CandidateID: r.CandidateID,
		VendorName:  r.VendorName,
		Amount:      amount,
		Currency:    r.Currency,
		Date:        date,
		Address:     r.Address,
	}, nil
}

func parseLedgerFile(data []byte) ([]matching.Candidate, error) {
	var rows []ledgerRow
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode ledger file: %w", err)
	}

	candidates := make([]matching.Candidate, 0, len(rows))
	for _, row := range rows {
		c, err := row.candidate()
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func ledgerCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Manage the transactions invoices are matched against",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Upsert transactions from a YAML or JSON file",
		Long: `Each entry needs candidate_id, vendor_name, amount, currency and
date (YYYY-MM-DD). Existing candidate ids are overwritten.

Example:
  - candidate_id: TX-1001
    vendor_name: Acme Kft.
    amount: "12 500,00"
    currency: HUF
    date: 2024-11-15`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			candidates, err := parseLedgerFile(data)
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.domain.Ledger.Upsert(cmd.Context(), candidates)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d transactions\n", n)
			return nil
		},
	})

	return cmd
}
