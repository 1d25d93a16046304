package intake_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/JaimeStill/invoice-pipeline/internal/intake"
)

var (
	pdfBytes    = []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj")
	jpegBytes   = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	pngBytes    = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	tiffLEBytes = []byte{0x49, 0x49, 0x2A, 0x00, 0x08, 0x00}
	tiffBEBytes = []byte{0x4D, 0x4D, 0x00, 0x2A, 0x00, 0x08}
	exeBytes    = []byte{'M', 'Z', 0x90, 0x00, 0x03}
)

func newValidator(t *testing.T) *intake.Validator {
	t.Helper()
	cfg := &intake.Config{}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	return intake.NewValidator(cfg)
}

func TestValidate_Accepts(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		filename    string
		contentType string
		data        []byte
		want        intake.Format
	}{
		{"invoice.pdf", "application/pdf", pdfBytes, intake.FormatPDF},
		{"INVOICE.PDF", "application/pdf", pdfBytes, intake.FormatPDF},
		{"scan.jpg", "image/jpeg", jpegBytes, intake.FormatJPEG},
		{"scan.jpeg", "image/jpeg", jpegBytes, intake.FormatJPEG},
		{"scan.png", "image/png", pngBytes, intake.FormatPNG},
		{"scan.tif", "image/tiff", tiffLEBytes, intake.FormatTIFF},
		{"scan.tiff", "image/tiff", tiffBEBytes, intake.FormatTIFF},
		{"invoice.pdf", "application/pdf; charset=binary", pdfBytes, intake.FormatPDF},
	}

	for _, tt := range tests {
		t.Run(tt.filename+"_"+tt.contentType, func(t *testing.T) {
			result := v.Validate(intake.NewSubmission(tt.filename, tt.contentType, tt.data, intake.SourceManual))

			if !result.Accepted {
				t.Fatalf("Validate() rejected: %s", result.Reason)
			}
			if result.DetectedFormat != tt.want {
				t.Errorf("DetectedFormat = %s, want %s", result.DetectedFormat, tt.want)
			}
			if result.Reason != "" {
				t.Errorf("Reason = %q, want empty", result.Reason)
			}
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
		wantPrefix  string
	}{
		{"empty filename", "", "application/pdf", pdfBytes, intake.ReasonInvalidFilename},
		{"whitespace filename", "   ", "application/pdf", pdfBytes, intake.ReasonInvalidFilename},
		{"too long", strings.Repeat("a", 252) + ".pdf", "application/pdf", pdfBytes, intake.ReasonInvalidFilename},
		{"traversal", "../invoice.pdf", "application/pdf", pdfBytes, intake.ReasonInvalidFilename},
		{"dotdot inside", "inv..oice.pdf", "application/pdf", pdfBytes, intake.ReasonInvalidFilename},
		{"slash", "dir/invoice.pdf", "application/pdf", pdfBytes, intake.ReasonInvalidFilename},
		{"backslash", `dir\invoice.pdf`, "application/pdf", pdfBytes, intake.ReasonInvalidFilename},
		{"bad extension", "invoice.exe", "application/pdf", pdfBytes, intake.ReasonInvalidFilename},
		{"no extension", "invoice", "application/pdf", pdfBytes, intake.ReasonInvalidFilename},
		{"empty payload", "invoice.pdf", "application/pdf", nil, intake.ReasonSizeExceeded + ": empty file"},
		{"unsupported type", "invoice.pdf", "text/plain", pdfBytes, intake.ReasonUnsupportedType},
		{"malformed type", "invoice.pdf", ";;", pdfBytes, intake.ReasonUnsupportedType},
		{"renamed executable", "invoice.pdf", "application/pdf", exeBytes, intake.ReasonSignatureMismatch},
		{"png claimed as jpeg", "scan.jpg", "image/jpeg", pngBytes, intake.ReasonSignatureMismatch},
		{"extension and type disagree", "scan.png", "application/pdf", pdfBytes, intake.ReasonSignatureMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(intake.NewSubmission(tt.filename, tt.contentType, tt.data, intake.SourceManual))

			if result.Accepted {
				t.Fatal("Validate() accepted, want rejection")
			}
			if !strings.HasPrefix(result.Reason, tt.wantPrefix) {
				t.Errorf("Reason = %q, want prefix %q", result.Reason, tt.wantPrefix)
			}
		})
	}
}

func TestValidate_SizeExceeded(t *testing.T) {
	v := newValidator(t)

	data := bytes.Repeat([]byte{0}, 60<<20)
	copy(data, pdfBytes)

	result := v.Validate(intake.NewSubmission("big.pdf", "application/pdf", data, intake.SourceEmail))

	if result.Accepted {
		t.Fatal("Validate() accepted a 60 MiB file")
	}
	if !strings.HasPrefix(result.Reason, intake.ReasonSizeExceeded) {
		t.Fatalf("Reason = %q, want size exceeded", result.Reason)
	}
	if !strings.Contains(result.Reason, "60MiB") || !strings.Contains(result.Reason, "50MiB") {
		t.Errorf("Reason = %q, want actual and limit sizes", result.Reason)
	}
}

func TestValidate_OrderShortCircuits(t *testing.T) {
	v := newValidator(t)

	data := bytes.Repeat([]byte{'x'}, 60<<20)
	result := v.Validate(intake.NewSubmission("../evil.exe", "text/plain", data, intake.SourceDrive))

	if result.Reason != intake.ReasonInvalidFilename {
		t.Errorf("Reason = %q, want filename check to run first", result.Reason)
	}

	result = v.Validate(intake.NewSubmission("big.pdf", "text/plain", data, intake.SourceDrive))
	if !strings.HasPrefix(result.Reason, intake.ReasonSizeExceeded) {
		t.Errorf("Reason = %q, want size check before content-type", result.Reason)
	}
}

func TestNewSubmission_CopiesData(t *testing.T) {
	data := append([]byte(nil), pdfBytes...)
	sub := intake.NewSubmission("invoice.pdf", "application/pdf", data, intake.SourceManual)

	data[0] = 'X'

	if sub.Bytes()[0] != '%' {
		t.Error("submission shares the caller's buffer")
	}
	if sub.Size() != int64(len(pdfBytes)) {
		t.Errorf("Size() = %d, want %d", sub.Size(), len(pdfBytes))
	}
}

func TestInspect_ImageChecksum(t *testing.T) {
	sub := intake.NewSubmission("scan.png", "image/png", pngBytes, intake.SourceManual)

	info, err := intake.Inspect(sub, intake.FormatPNG)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if len(info.Checksum) != 16 {
		t.Errorf("Checksum = %q, want 16 hex chars", info.Checksum)
	}
	if info.Checksum != intake.Checksum(pngBytes) {
		t.Error("Checksum is not deterministic")
	}
	if info.PageCount != 1 {
		t.Errorf("PageCount = %d, want 1", info.PageCount)
	}
}

func TestInspect_BrokenPDFKeepsChecksum(t *testing.T) {
	sub := intake.NewSubmission("invoice.pdf", "application/pdf", pdfBytes, intake.SourceManual)

	info, err := intake.Inspect(sub, intake.FormatPDF)
	if err == nil {
		t.Fatal("Inspect() succeeded on a truncated PDF")
	}
	if info.Checksum == "" {
		t.Error("Checksum should be set even when page counting fails")
	}
}

func TestConfig_Finalize(t *testing.T) {
	cfg := &intake.Config{}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if cfg.MaxSizeBytes() != 50<<20 {
		t.Errorf("MaxSizeBytes() = %d, want %d", cfg.MaxSizeBytes(), 50<<20)
	}

	bad := &intake.Config{MaxSize: "lots"}
	if err := bad.Finalize(); err == nil {
		t.Error("Finalize() accepted an invalid size")
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"scan.TIF":    "image/tiff",
		"invoice.pdf": "application/pdf",
		"photo.jpeg":  "image/jpeg",
		"notes.txt":   "application/octet-stream",
	}
	for name, want := range tests {
		if got := intake.ContentTypeFor(name); got != want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}
