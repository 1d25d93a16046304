package intake

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Inspection holds advisory facts about an accepted submission.
type Inspection struct {
	Checksum  string `json:"checksum"`
	PageCount int    `json:"page_count"`
}

// Checksum returns the hex xxhash64 of data.
func Checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// Inspect computes the checksum and page count of an accepted submission.
// The checksum is always set; an error reports only a page count failure.
func Inspect(sub FileSubmission, format Format) (Inspection, error) {
	info := Inspection{
		Checksum:  Checksum(sub.Bytes()),
		PageCount: 1,
	}

	if format != FormatPDF {
		return info, nil
	}

	count, err := api.PageCount(bytes.NewReader(sub.Bytes()), model.NewDefaultConfiguration())
	if err != nil {
		return info, fmt.Errorf("pdf page count: %w", err)
	}
	info.PageCount = count
	return info, nil
}
