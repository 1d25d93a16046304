// Package extraction turns invoice documents into the canonical ExtractedInvoice
// through interchangeable OCR and LLM providers.
package extraction

import (
	"strings"
	"time"
)

// LineItem is an optional invoice line. Lines are carried for display only.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity,omitempty"`
	UnitPrice   Amount  `json:"unit_price,omitempty"`
	Total       Amount  `json:"total"`
}

// ExtractedInvoice is the provider-independent invoice header.
type ExtractedInvoice struct {
	VendorName    string `json:"vendor_name"`
	InvoiceNumber string `json:"invoice_number"`

	// InvoiceDate is ISO-8601 (YYYY-MM-DD). It is empty when the provider date
	// could not be reparsed, in which case DateRaw holds the original text.
	InvoiceDate string `json:"invoice_date,omitempty"`
	DateRaw     string `json:"date_raw,omitempty"`

	TotalAmount Amount     `json:"total_amount"`
	Currency    string     `json:"currency"`
	Address     string     `json:"address,omitempty"`
	LineItems   []LineItem `json:"line_items,omitempty"`

	ProviderConfidence float64 `json:"provider_confidence"`
	ExtractionProvider string  `json:"extraction_provider"`

	VendorKey  string `json:"-"`
	AddressKey string `json:"-"`
}

// Date returns the parsed invoice date.
func (inv ExtractedInvoice) Date() (time.Time, bool) {
	if inv.InvoiceDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, inv.InvoiceDate)
	return t, err == nil
}

// RawInvoice is what a provider's Parse yields before normalization.
// Providers that receive numbers set TotalValue; text providers set Total.
type RawInvoice struct {
	VendorName    string
	InvoiceNumber string
	InvoiceDate   string
	Total         string
	TotalValue    *float64
	Currency      string
	Address       string
	LineItems     []RawLineItem
	Confidence    float64
}

// RawLineItem is an unnormalized invoice line.
type RawLineItem struct {
	Description string
	Quantity    float64
	UnitPrice   string
	Total       string
}

var currencySymbols = []struct {
	marker string
	code   string
}{
	{"€", "EUR"},
	{"£", "GBP"},
	{"$", "USD"},
	{"FT", "HUF"},
	{"HUF", "HUF"},
	{"EUR", "EUR"},
	{"USD", "USD"},
}

// Normalize maps a provider's raw invoice onto the canonical schema. The vendor
// and the total are required; everything else degrades gracefully.
func Normalize(raw RawInvoice, provider, defaultCurrency string) (ExtractedInvoice, error) {
	vendor := CleanText(raw.VendorName)
	if vendor == "" {
		return ExtractedInvoice{}, Malformed(provider, "vendor name missing", nil)
	}

	total, err := normalizeTotal(raw)
	if err != nil {
		return ExtractedInvoice{}, Malformed(provider, "total amount missing or unreadable", err)
	}

	inv := ExtractedInvoice{
		VendorName:         vendor,
		InvoiceNumber:      CleanText(raw.InvoiceNumber),
		TotalAmount:        total,
		Currency:           normalizeCurrency(raw.Currency, raw.Total, defaultCurrency),
		Address:            CleanText(raw.Address),
		ProviderConfidence: clamp(raw.Confidence, 0, 1),
		ExtractionProvider: provider,
		VendorKey:          ComparisonKey(vendor),
	}

	if inv.Address != "" {
		inv.AddressKey = ComparisonKey(inv.Address)
	}

	if iso, ok := NormalizeDate(raw.InvoiceDate); ok {
		inv.InvoiceDate = iso
	} else {
		inv.DateRaw = CleanText(raw.InvoiceDate)
		inv.ProviderConfidence *= 0.5
	}

	for _, li := range raw.LineItems {
		item := LineItem{
			Description: CleanText(li.Description),
			Quantity:    li.Quantity,
		}
		if v, err := ParseAmount(li.UnitPrice); err == nil {
			item.UnitPrice = v
		}
		if v, err := ParseAmount(li.Total); err == nil {
			item.Total = v
		}
		if item.Description == "" && item.Total == 0 {
			continue
		}
		inv.LineItems = append(inv.LineItems, item)
	}

	return inv, nil
}

func normalizeTotal(raw RawInvoice) (Amount, error) {
	if raw.TotalValue != nil {
		return AmountFromFloat(*raw.TotalValue)
	}
	return ParseAmount(raw.Total)
}

func normalizeCurrency(currency, total, fallback string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if len(code) == 3 && isAlpha(code) {
		return code
	}

	for _, probe := range []string{code, strings.ToUpper(total)} {
		if probe == "" {
			continue
		}
		for _, s := range currencySymbols {
			if strings.Contains(probe, s.marker) {
				return s.code
			}
		}
	}

	return strings.ToUpper(fallback)
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
