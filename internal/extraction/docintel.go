package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DocIntel calls the Azure Document Intelligence prebuilt invoice model.
// Analysis is asynchronous: Submit posts the document and polls the
// Operation-Location until the analysis settles.
type DocIntel struct {
	endpoint     string
	apiKey       string
	apiVersion   string
	model        string
	pollInterval time.Duration
	maxResponse  int64
	client       *http.Client
}

const defaultMaxResponse = 16 << 20

// NewDocIntel creates the provider. A nil client uses http.DefaultClient.
func NewDocIntel(cfg DocIntelConfig, client *http.Client) (*DocIntel, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("docintel endpoint required")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("docintel endpoint: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	poll := cfg.PollIntervalDuration()
	if poll <= 0 {
		poll = time.Second
	}

	maxResponse := cfg.MaxResponseBytes()
	if maxResponse <= 0 {
		maxResponse = defaultMaxResponse
	}

	return &DocIntel{
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:       cfg.APIKey,
		apiVersion:   cfg.APIVersion,
		model:        cfg.Model,
		pollInterval: poll,
		maxResponse:  maxResponse,
		client:       client,
	}, nil
}

func (d *DocIntel) Name() string { return ProviderDocIntel }

type docIntelOperation struct {
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (d *DocIntel) Submit(ctx context.Context, doc Document, _ SchemaHint) (Payload, error) {
	body, err := json.Marshal(map[string]string{
		"base64Source": base64.StdEncoding.EncodeToString(doc.Data),
	})
	if err != nil {
		return Payload{}, Malformed(d.Name(), "encode request", err)
	}

	analyzeURL := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		d.endpoint, url.PathEscape(d.model), url.QueryEscape(d.apiVersion))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, analyzeURL, bytes.NewReader(body))
	if err != nil {
		return Payload{}, Unavailable(d.Name(), "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.do(req)
	if err != nil {
		return Payload{}, err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return Payload{}, d.statusError(resp.StatusCode)
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return Payload{}, Malformed(d.Name(), "analyze response missing Operation-Location", nil)
	}

	return d.poll(ctx, opURL)
}

func (d *DocIntel) poll(ctx context.Context, opURL string) (Payload, error) {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
		if err != nil {
			return Payload{}, Unavailable(d.Name(), "build poll request", err)
		}

		resp, err := d.do(req)
		if err != nil {
			return Payload{}, err
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxResponse+1))
		resp.Body.Close()
		if err != nil {
			return Payload{}, Unavailable(d.Name(), "read poll response", err)
		}
		if int64(len(data)) > d.maxResponse {
			return Payload{}, Malformed(d.Name(), fmt.Sprintf("poll response exceeds %d bytes", d.maxResponse), nil)
		}
		if resp.StatusCode != http.StatusOK {
			return Payload{}, d.statusError(resp.StatusCode)
		}

		var op docIntelOperation
		if err := json.Unmarshal(data, &op); err != nil {
			return Payload{}, Malformed(d.Name(), "poll response is not JSON", err)
		}

		switch strings.ToLower(op.Status) {
		case "succeeded":
			return Payload{Provider: d.Name(), Body: data}, nil
		case "failed", "canceled":
			msg := "analysis " + strings.ToLower(op.Status)
			if op.Error != nil && op.Error.Code != "" {
				msg = fmt.Sprintf("%s: %s", msg, op.Error.Code)
			}
			return Payload{}, Malformed(d.Name(), msg, nil)
		}

		wait := d.pollInterval
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := time.ParseDuration(ra + "s"); err == nil && secs > 0 && secs < wait*10 {
				wait = secs
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Payload{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (d *DocIntel) do(req *http.Request) (*http.Response, error) {
	if d.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", d.apiKey)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		return nil, Unavailable(d.Name(), "request failed", err)
	}
	return resp, nil
}

func (d *DocIntel) statusError(code int) error {
	msg := fmt.Sprintf("provider returned HTTP %d", code)
	switch {
	case code == http.StatusRequestTimeout:
		return Timeout(d.Name(), fmt.Errorf("%s", msg))
	case code == http.StatusTooManyRequests, code == http.StatusUnauthorized, code == http.StatusForbidden, code >= 500:
		return Unavailable(d.Name(), msg, nil)
	default:
		return Malformed(d.Name(), msg, nil)
	}
}

type docIntelField struct {
	Type          string   `json:"type"`
	Content       string   `json:"content"`
	Confidence    float64  `json:"confidence"`
	ValueString   string   `json:"valueString"`
	ValueDate     string   `json:"valueDate"`
	ValueNumber   *float64 `json:"valueNumber"`
	ValueCurrency *struct {
		Amount       float64 `json:"amount"`
		CurrencyCode string  `json:"currencyCode"`
	} `json:"valueCurrency"`
	ValueAddress *struct {
		StreetAddress string `json:"streetAddress"`
		City          string `json:"city"`
		PostalCode    string `json:"postalCode"`
	} `json:"valueAddress"`
	ValueArray  []docIntelField          `json:"valueArray"`
	ValueObject map[string]docIntelField `json:"valueObject"`
}

func (f *docIntelField) text() string {
	if f == nil {
		return ""
	}
	if f.ValueString != "" {
		return f.ValueString
	}
	return f.Content
}

type docIntelResult struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		Documents []struct {
			Fields map[string]*docIntelField `json:"fields"`
		} `json:"documents"`
	} `json:"analyzeResult"`
}

// Parse maps the analyze result onto a RawInvoice. Confidence is the mean of
// the vendor, date and total field confidences.
func (d *DocIntel) Parse(payload Payload) (RawInvoice, error) {
	var result docIntelResult
	if err := json.Unmarshal(payload.Body, &result); err != nil {
		return RawInvoice{}, Malformed(d.Name(), "analyze result is not JSON", err)
	}
	if len(result.AnalyzeResult.Documents) == 0 {
		return RawInvoice{}, Malformed(d.Name(), "no invoice found in document", nil)
	}

	fields := result.AnalyzeResult.Documents[0].Fields
	vendor := fields["VendorName"]
	date := fields["InvoiceDate"]
	total := fields["InvoiceTotal"]
	if total == nil {
		total = fields["AmountDue"]
	}

	raw := RawInvoice{
		VendorName:    vendor.text(),
		InvoiceNumber: fields["InvoiceId"].text(),
		Address:       fields["VendorAddress"].text(),
	}

	if date != nil {
		raw.InvoiceDate = date.ValueDate
		if raw.InvoiceDate == "" {
			raw.InvoiceDate = date.Content
		}
	}

	if total != nil {
		if total.ValueCurrency != nil {
			amount := total.ValueCurrency.Amount
			raw.TotalValue = &amount
			raw.Currency = total.ValueCurrency.CurrencyCode
		} else {
			raw.Total = total.Content
		}
	}

	var sum float64
	for _, f := range []*docIntelField{vendor, date, total} {
		if f != nil {
			sum += f.Confidence
		}
	}
	raw.Confidence = sum / 3

	if items := fields["Items"]; items != nil {
		for _, it := range items.ValueArray {
			obj := it.ValueObject
			line := RawLineItem{
				Description: fieldText(obj, "Description"),
				UnitPrice:   fieldAmount(obj, "UnitPrice"),
				Total:       fieldAmount(obj, "Amount"),
			}
			if q, ok := obj["Quantity"]; ok && q.ValueNumber != nil {
				line.Quantity = *q.ValueNumber
			}
			raw.LineItems = append(raw.LineItems, line)
		}
	}

	return raw, nil
}

func fieldText(obj map[string]docIntelField, key string) string {
	f, ok := obj[key]
	if !ok {
		return ""
	}
	return f.text()
}

func fieldAmount(obj map[string]docIntelField, key string) string {
	f, ok := obj[key]
	if !ok {
		return ""
	}
	if f.ValueCurrency != nil {
		if a, err := AmountFromFloat(f.ValueCurrency.Amount); err == nil {
			return a.String()
		}
	}
	return f.Content
}
