package extraction_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/JaimeStill/invoice-pipeline/internal/extraction"
)

const analyzeResult = `{
  "status": "succeeded",
  "analyzeResult": {
    "documents": [{
      "fields": {
        "VendorName": {"type": "string", "valueString": "Acme Kft.", "content": "ACME Kft.", "confidence": 0.9},
        "InvoiceId": {"type": "string", "valueString": "INV-2024-001", "confidence": 0.99},
        "InvoiceDate": {"type": "date", "valueDate": "2024-11-15", "content": "2024.11.15.", "confidence": 0.8},
        "InvoiceTotal": {"type": "currency", "valueCurrency": {"amount": 12500, "currencyCode": "HUF"}, "content": "12 500 Ft", "confidence": 0.7},
        "VendorAddress": {"type": "address", "content": "1051 Budapest, Fő utca 1."},
        "Items": {"type": "array", "valueArray": [
          {"type": "object", "valueObject": {
            "Description": {"type": "string", "valueString": "Consulting"},
            "Quantity": {"type": "number", "valueNumber": 2},
            "UnitPrice": {"type": "currency", "valueCurrency": {"amount": 6250, "currencyCode": "HUF"}},
            "Amount": {"type": "currency", "valueCurrency": {"amount": 12500, "currencyCode": "HUF"}}
          }}
        ]}
      }
    }]
  }
}`

func newDocIntelServer(t *testing.T, pending int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /documentintelligence/documentModels/{model}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !strings.HasSuffix(r.PathValue("model"), ":analyze") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["base64Source"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Operation-Location", "http://"+r.Host+"/operations/1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /operations/1", func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if int(n) <= pending {
			w.Write([]byte(`{"status": "running"}`))
			return
		}
		w.Write([]byte(analyzeResult))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func newDocIntel(t *testing.T, endpoint, key string) *extraction.DocIntel {
	t.Helper()
	p, err := extraction.NewDocIntel(extraction.DocIntelConfig{
		Endpoint:     endpoint,
		APIKey:       key,
		APIVersion:   "2024-11-30",
		Model:        "prebuilt-invoice",
		PollInterval: "5ms",
	}, nil)
	if err != nil {
		t.Fatalf("NewDocIntel() error = %v", err)
	}
	return p
}

func TestDocIntel_ResponseTooLarge(t *testing.T) {
	srv, _ := newDocIntelServer(t, 0)
	p, err := extraction.NewDocIntel(extraction.DocIntelConfig{
		Endpoint:     srv.URL,
		APIKey:       "secret",
		APIVersion:   "2024-11-30",
		Model:        "prebuilt-invoice",
		PollInterval: "5ms",
		MaxResponse:  "256B",
	}, nil)
	if err != nil {
		t.Fatalf("NewDocIntel() error = %v", err)
	}

	_, err = p.Submit(context.Background(), extraction.Document{Data: []byte("%PDF-1.7")}, extraction.InvoiceSchema)
	if extraction.KindOf(err) != extraction.KindMalformed {
		t.Fatalf("Submit() error = %v, want MALFORMED", err)
	}
	if !strings.Contains(err.Error(), "exceeds 256 bytes") {
		t.Errorf("error = %v", err)
	}
}

func TestDocIntel_SubmitAndParse(t *testing.T) {
	srv, polls := newDocIntelServer(t, 2)
	p := newDocIntel(t, srv.URL, "secret")

	payload, err := p.Submit(context.Background(), extraction.Document{
		Filename:    "invoice.pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.7"),
	}, extraction.InvoiceSchema)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got := polls.Load(); got != 3 {
		t.Errorf("polls = %d, want 3", got)
	}

	raw, err := p.Parse(payload)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if raw.VendorName != "Acme Kft." {
		t.Errorf("VendorName = %q", raw.VendorName)
	}
	if raw.InvoiceNumber != "INV-2024-001" {
		t.Errorf("InvoiceNumber = %q", raw.InvoiceNumber)
	}
	if raw.InvoiceDate != "2024-11-15" {
		t.Errorf("InvoiceDate = %q", raw.InvoiceDate)
	}
	if raw.TotalValue == nil || *raw.TotalValue != 12500 || raw.Currency != "HUF" {
		t.Errorf("total = %v %q", raw.TotalValue, raw.Currency)
	}
	if diff := raw.Confidence - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Confidence = %v, want mean 0.8", raw.Confidence)
	}
	if len(raw.LineItems) != 1 || raw.LineItems[0].Total != "12500.00" || raw.LineItems[0].Quantity != 2 {
		t.Errorf("LineItems = %+v", raw.LineItems)
	}
}

func TestDocIntel_Unauthorized(t *testing.T) {
	srv, _ := newDocIntelServer(t, 0)
	p := newDocIntel(t, srv.URL, "wrong")

	_, err := p.Submit(context.Background(), extraction.Document{Data: []byte("x")}, extraction.InvoiceSchema)
	if extraction.KindOf(err) != extraction.KindProviderUnavailable {
		t.Errorf("Submit() error = %v, want PROVIDER_UNAVAILABLE", err)
	}
}

func TestDocIntel_ServerErrors(t *testing.T) {
	tests := []struct {
		status int
		want   extraction.Kind
	}{
		{http.StatusServiceUnavailable, extraction.KindProviderUnavailable},
		{http.StatusTooManyRequests, extraction.KindProviderUnavailable},
		{http.StatusRequestTimeout, extraction.KindTimeout},
		{http.StatusUnsupportedMediaType, extraction.KindMalformed},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := newDocIntel(t, srv.URL, "")
			_, err := p.Submit(context.Background(), extraction.Document{Data: []byte("x")}, extraction.InvoiceSchema)
			if extraction.KindOf(err) != tt.want {
				t.Errorf("Submit() error = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestDocIntel_ParseEmpty(t *testing.T) {
	p := newDocIntel(t, "http://localhost", "")

	_, err := p.Parse(extraction.Payload{Body: []byte(`{"status":"succeeded","analyzeResult":{"documents":[]}}`)})
	if extraction.KindOf(err) != extraction.KindMalformed {
		t.Errorf("Parse() error = %v, want MALFORMED", err)
	}

	_, err = p.Parse(extraction.Payload{Body: []byte(`<html>`)})
	if extraction.KindOf(err) != extraction.KindMalformed {
		t.Errorf("Parse() error = %v, want MALFORMED", err)
	}
}

func TestGemini_ParseFencedJSON(t *testing.T) {
	var g extraction.Gemini

	content := "Here you go:\n```json\n" +
		`{"vendor_name": "Acme Kft.", "invoice_date": "2024.11.15.", "total_amount": 12500, "currency": "HUF", "confidence": 0.9}` +
		"\n```"

	raw, err := g.Parse(extraction.Payload{Body: []byte(content)})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if raw.VendorName != "Acme Kft." || raw.TotalValue == nil || *raw.TotalValue != 12500 {
		t.Errorf("Parse() = %+v", raw)
	}
	if raw.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", raw.Confidence)
	}

	if _, err := g.Parse(extraction.Payload{Body: []byte("no idea")}); extraction.KindOf(err) != extraction.KindMalformed {
		t.Errorf("Parse(garbage) error = %v, want MALFORMED", err)
	}
}
