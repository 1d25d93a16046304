package extraction_test

import (
	"testing"

	"github.com/JaimeStill/invoice-pipeline/internal/extraction"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"2024-11-15", "2024-11-15", true},
		{"2024.11.15.", "2024-11-15", true},
		{"2024. 11. 15.", "2024-11-15", true},
		{"2024/11/15", "2024-11-15", true},
		{"15.11.2024", "2024-11-15", true},
		{"05/11/2024", "2024-11-05", true},
		{"15 November 2024", "2024-11-15", true},
		{"Nov 15, 2024", "2024-11-15", true},
		{"20241115", "2024-11-15", true},
		{"2024-11-15T10:30:00Z", "2024-11-15", true},
		{"", "", false},
		{"mid November", "", false},
		{"2024-13-45", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := extraction.NormalizeDate(tt.raw)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("NormalizeDate(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestComparisonKey(t *testing.T) {
	if extraction.ComparisonKey("  ACME\t KFT ") != extraction.ComparisonKey("acme kft") {
		t.Error("ComparisonKey should fold case and collapse whitespace")
	}
	if got := extraction.CleanText("  Acme \n Kft. "); got != "Acme Kft." {
		t.Errorf("CleanText() = %q, want %q", got, "Acme Kft.")
	}
}

func TestNormalize(t *testing.T) {
	total := 12500.0
	raw := extraction.RawInvoice{
		VendorName:    "  Acme   Kft. ",
		InvoiceNumber: "INV-001",
		InvoiceDate:   "2024.11.15.",
		TotalValue:    &total,
		Address:       "1051  Budapest,\nFő utca 1.",
		Confidence:    0.9,
	}

	inv, err := extraction.Normalize(raw, "gemini", "HUF")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if inv.VendorName != "Acme Kft." {
		t.Errorf("VendorName = %q", inv.VendorName)
	}
	if inv.TotalAmount.String() != "12500.00" {
		t.Errorf("TotalAmount = %s, want 12500.00", inv.TotalAmount)
	}
	if inv.Currency != "HUF" {
		t.Errorf("Currency = %q, want HUF", inv.Currency)
	}
	if inv.InvoiceDate != "2024-11-15" || inv.DateRaw != "" {
		t.Errorf("InvoiceDate = %q DateRaw = %q", inv.InvoiceDate, inv.DateRaw)
	}
	if inv.Address != "1051 Budapest, Fő utca 1." {
		t.Errorf("Address = %q", inv.Address)
	}
	if inv.ProviderConfidence != 0.9 {
		t.Errorf("ProviderConfidence = %v, want 0.9", inv.ProviderConfidence)
	}
	if inv.ExtractionProvider != "gemini" {
		t.Errorf("ExtractionProvider = %q", inv.ExtractionProvider)
	}
	if inv.VendorKey != "acme kft." {
		t.Errorf("VendorKey = %q", inv.VendorKey)
	}
}

func TestNormalize_UnparsableDateLowersConfidence(t *testing.T) {
	raw := extraction.RawInvoice{
		VendorName:  "Acme Kft.",
		InvoiceDate: "sometime in autumn",
		Total:       "100,00 €",
		Confidence:  0.8,
	}

	inv, err := extraction.Normalize(raw, "docintel", "HUF")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if inv.InvoiceDate != "" || inv.DateRaw != "sometime in autumn" {
		t.Errorf("InvoiceDate = %q DateRaw = %q", inv.InvoiceDate, inv.DateRaw)
	}
	if inv.ProviderConfidence != 0.4 {
		t.Errorf("ProviderConfidence = %v, want 0.4", inv.ProviderConfidence)
	}
	if inv.Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR from symbol", inv.Currency)
	}
	if _, ok := inv.Date(); ok {
		t.Error("Date() ok for unparsed date")
	}
}

func TestNormalize_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  extraction.RawInvoice
	}{
		{"missing vendor", extraction.RawInvoice{Total: "10.00"}},
		{"missing total", extraction.RawInvoice{VendorName: "Acme"}},
		{"unreadable total", extraction.RawInvoice{VendorName: "Acme", Total: "tbd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extraction.Normalize(tt.raw, "agent", "HUF")
			if extraction.KindOf(err) != extraction.KindMalformed {
				t.Errorf("Normalize() error = %v, want MALFORMED", err)
			}
		})
	}
}
