package extraction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var jsonBlockRegex = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")

// llmInvoice is the JSON shape requested from LLM providers.
type llmInvoice struct {
	VendorName    string          `json:"vendor_name"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   string          `json:"invoice_date"`
	TotalAmount   json.RawMessage `json:"total_amount"`
	Currency      string          `json:"currency"`
	Address       string          `json:"address"`
	Confidence    *float64        `json:"confidence"`
	LineItems     []struct {
		Description string          `json:"description"`
		Quantity    float64         `json:"quantity"`
		UnitPrice   json.RawMessage `json:"unit_price"`
		Total       json.RawMessage `json:"total"`
	} `json:"line_items"`
}

// parseLLMInvoice reads an LLM response into a RawInvoice. It tries the whole
// response as JSON first, then the first fenced code block.
func parseLLMInvoice(provider, content string) (RawInvoice, error) {
	var out llmInvoice

	content = strings.TrimSpace(content)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		matches := jsonBlockRegex.FindStringSubmatch(content)
		if len(matches) < 2 {
			return RawInvoice{}, Malformed(provider, "response is not JSON", err)
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(matches[1])), &out); err != nil {
			return RawInvoice{}, Malformed(provider, "response is not JSON", err)
		}
	}

	raw := RawInvoice{
		VendorName:    out.VendorName,
		InvoiceNumber: out.InvoiceNumber,
		InvoiceDate:   out.InvoiceDate,
		Currency:      out.Currency,
		Address:       out.Address,
		Confidence:    0.8,
	}
	if out.Confidence != nil {
		raw.Confidence = *out.Confidence
	}

	total, value, err := numberOrString(out.TotalAmount)
	if err != nil {
		return RawInvoice{}, Malformed(provider, "total_amount has unexpected type", err)
	}
	raw.Total, raw.TotalValue = total, value

	for _, li := range out.LineItems {
		item := RawLineItem{Description: li.Description, Quantity: li.Quantity}
		item.UnitPrice = rawText(li.UnitPrice)
		item.Total = rawText(li.Total)
		raw.LineItems = append(raw.LineItems, item)
	}

	return raw, nil
}

func numberOrString(msg json.RawMessage) (string, *float64, error) {
	if len(msg) == 0 || string(msg) == "null" {
		return "", nil, nil
	}

	var f float64
	if err := json.Unmarshal(msg, &f); err == nil {
		return "", &f, nil
	}

	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return "", nil, fmt.Errorf("want number or string, got %s", msg)
	}
	return s, nil, nil
}

func rawText(msg json.RawMessage) string {
	s, f, err := numberOrString(msg)
	if err != nil {
		return ""
	}
	if f != nil {
		if a, err := AmountFromFloat(*f); err == nil {
			return a.String()
		}
	}
	return s
}

const extractionPrompt = `Extract the invoice header from this document.
Respond with a single JSON object and nothing else, using these keys:
vendor_name, invoice_number, invoice_date (as printed), total_amount (number),
currency (ISO 4217 code if printed), address (vendor address), confidence (0 to 1),
line_items (array of {description, quantity, unit_price, total}).
Use an empty string for fields that are not present.`
