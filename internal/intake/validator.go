package intake

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
)

// Rejection reasons. Reasons with details append them after a colon.
const (
	ReasonInvalidFilename   = "invalid filename"
	ReasonSizeExceeded      = "size exceeded"
	ReasonUnsupportedType   = "unsupported content-type"
	ReasonSignatureMismatch = "signature mismatch"
)

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Accepted       bool   `json:"accepted"`
	DetectedFormat Format `json:"detected_format,omitempty"`
	Reason         string `json:"rejection_reason,omitempty"`
}

var extensionFormats = map[string]Format{
	".pdf":  FormatPDF,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
}

var contentTypeFormats = map[string]Format{
	"application/pdf": FormatPDF,
	"image/jpeg":      FormatJPEG,
	"image/png":       FormatPNG,
	"image/tiff":      FormatTIFF,
}

var signatures = map[Format][][]byte{
	FormatPDF:  {[]byte("%PDF")},
	FormatJPEG: {{0xFF, 0xD8, 0xFF}},
	FormatPNG:  {{0x89, 0x50, 0x4E, 0x47}},
	FormatTIFF: {{0x49, 0x49, 0x2A, 0x00}, {0x4D, 0x4D, 0x00, 0x2A}},
}

// ContentType returns the canonical content type for a format.
func (f Format) ContentType() string {
	for ct, format := range contentTypeFormats {
		if format == f {
			return ct
		}
	}
	return "application/octet-stream"
}

// ContentTypeFor guesses the content type of a file from its extension.
func ContentTypeFor(filename string) string {
	if format, ok := extensionFormats[strings.ToLower(filepath.Ext(filename))]; ok {
		return format.ContentType()
	}
	return "application/octet-stream"
}

// Validator applies the intake checks. It has no side effects.
type Validator struct {
	maxSize     int64
	maxFilename int
}

// NewValidator builds a validator from a finalized config.
func NewValidator(cfg *Config) *Validator {
	return &Validator{
		maxSize:     cfg.MaxSizeBytes(),
		maxFilename: cfg.MaxFilenameLength,
	}
}

// Validate checks filename, size, content type and signature in that order
// and stops at the first failure. Every input yields a result.
func (v *Validator) Validate(sub FileSubmission) ValidationResult {
	extFormat, ok := v.checkFilename(sub.Filename())
	if !ok {
		return reject(ReasonInvalidFilename)
	}

	size := sub.Size()
	if size == 0 {
		return reject(fmt.Sprintf("%s: empty file, limit %s", ReasonSizeExceeded, units.BytesSize(float64(v.maxSize))))
	}
	if size > v.maxSize {
		return reject(fmt.Sprintf("%s: %s exceeds limit %s",
			ReasonSizeExceeded, units.BytesSize(float64(size)), units.BytesSize(float64(v.maxSize))))
	}

	claimed, ok := parseContentType(sub.ContentType())
	if !ok {
		return reject(fmt.Sprintf("%s: %q", ReasonUnsupportedType, sub.ContentType()))
	}

	if claimed != extFormat {
		return reject(fmt.Sprintf("%s: content-type %s does not match extension %s",
			ReasonSignatureMismatch, claimed, extFormat))
	}

	if !hasSignature(sub.Bytes(), claimed) {
		return reject(fmt.Sprintf("%s: content is not %s", ReasonSignatureMismatch, claimed))
	}

	return ValidationResult{Accepted: true, DetectedFormat: claimed}
}

func (v *Validator) checkFilename(name string) (Format, bool) {
	if strings.TrimSpace(name) == "" || len(name) > v.maxFilename {
		return "", false
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", false
	}

	format, ok := extensionFormats[strings.ToLower(filepath.Ext(name))]
	return format, ok
}

func parseContentType(ct string) (Format, bool) {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", false
	}
	format, ok := contentTypeFormats[strings.ToLower(mediaType)]
	return format, ok
}

func hasSignature(data []byte, format Format) bool {
	for _, sig := range signatures[format] {
		if bytes.HasPrefix(data, sig) {
			return true
		}
	}
	return false
}

func reject(reason string) ValidationResult {
	return ValidationResult{Accepted: false, Reason: reason}
}
