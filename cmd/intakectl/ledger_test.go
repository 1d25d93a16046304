package main

import (
	"testing"
	"time"

	"github.com/JaimeStill/invoice-pipeline/internal/extraction"
)

func TestParseLedgerFile(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		amount extraction.Amount
	}{
		{
			name: "yaml",
			data: `
- candidate_id: TX-1001
  vendor_name: Acme Kft.
  amount: "12 500,00"
  currency: HUF
  date: 2024-11-15
`,
			amount: 1250000,
		},
		{
			name:   "json",
			data:   `[{"candidate_id":"TX-1001","vendor_name":"Acme Kft.","amount":"12500.00","currency":"HUF","date":"2024-11-15"}]`,
			amount: 1250000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLedgerFile([]byte(tt.data))
			if err != nil {
				t.Fatalf("parseLedgerFile() error = %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("len = %d, want 1", len(got))
			}
			c := got[0]
			if c.CandidateID != "TX-1001" || c.Amount != tt.amount || c.Currency != "HUF" {
				t.Errorf("candidate = %+v", c)
			}
			if !c.Date.Equal(time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("Date = %v", c.Date)
			}
		})
	}
}

func TestParseLedgerFile_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing id": `[{"vendor_name":"Acme","amount":"1.00","currency":"EUR","date":"2024-01-01"}]`,
		"bad amount": `[{"candidate_id":"A","amount":"n/a","currency":"EUR","date":"2024-01-01"}]`,
		"bad date":   `[{"candidate_id":"A","amount":"1.00","currency":"EUR","date":"01/02/2024"}]`,
		"not a list": `candidate_id: A`,
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := parseLedgerFile([]byte(data)); err == nil {
				t.Error("parseLedgerFile() accepted invalid input")
			}
		})
	}
}
