// Package intake validates inbound invoice files before they enter the pipeline.
package intake

import "time"

// Source identifies where a submission arrived from.
type Source string

const (
	SourceManual Source = "manual"
	SourceEmail  Source = "email"
	SourceDrive  Source = "drive"
)

// ParseSource maps free-form input onto a known source, defaulting to manual.
func ParseSource(s string) Source {
	switch Source(s) {
	case SourceEmail, SourceDrive:
		return Source(s)
	default:
		return SourceManual
	}
}

// Format is a document format accepted by the pipeline.
type Format string

const (
	FormatPDF  Format = "PDF"
	FormatJPEG Format = "JPEG"
	FormatPNG  Format = "PNG"
	FormatTIFF Format = "TIFF"
)

// FileSubmission is an inbound file. It is immutable: construct it with
// NewSubmission and treat Bytes as read-only.
type FileSubmission struct {
	filename    string
	contentType string
	source      Source
	data        []byte
	receivedAt  time.Time
}

// NewSubmission copies data so later mutation by the caller cannot leak in.
func NewSubmission(filename, contentType string, data []byte, source Source) FileSubmission {
	buf := make([]byte, len(data))
	copy(buf, data)

	return FileSubmission{
		filename:    filename,
		contentType: contentType,
		source:      source,
		data:        buf,
		receivedAt:  time.Now().UTC(),
	}
}

func (s FileSubmission) Filename() string      { return s.filename }
func (s FileSubmission) ContentType() string   { return s.contentType }
func (s FileSubmission) Source() Source        { return s.source }
func (s FileSubmission) Size() int64           { return int64(len(s.data)) }
func (s FileSubmission) ReceivedAt() time.Time { return s.receivedAt }

// Bytes returns the payload. Callers must not modify it.
func (s FileSubmission) Bytes() []byte { return s.data }

// Metadata is the serializable description of a submission stored next to its payload.
type Metadata struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Source      Source    `json:"source"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Metadata describes the submission for storage alongside its payload.
func (s FileSubmission) Metadata(checksum string) Metadata {
	return Metadata{
		Filename:    s.filename,
		ContentType: s.contentType,
		Source:      s.source,
		Size:        s.Size(),
		Checksum:    checksum,
		ReceivedAt:  s.receivedAt,
	}
}

// Restore rebuilds a submission from stored metadata and payload.
func Restore(meta Metadata, data []byte) FileSubmission {
	sub := NewSubmission(meta.Filename, meta.ContentType, data, meta.Source)
	if !meta.ReceivedAt.IsZero() {
		sub.receivedAt = meta.ReceivedAt
	}
	return sub
}
