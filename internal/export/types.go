// Package export renders an itinerary to HTML or PDF and optionally stores the
// file in S3-compatible object storage.
package export

import (
	"errors"
	"time"

	"github.com/tanmvo/relevance-ai-chat/internal/store"
	"github.com/tanmvo/relevance-ai-chat/internal/tripview"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// ParseFormat maps a query value to a Format. Empty means PDF.
func ParseFormat(value string) (Format, bool) {
	switch Format(value) {
	case "", FormatPDF:
		return FormatPDF, true
	case FormatHTML:
		return FormatHTML, true
	default:
		return "", false
	}
}

// Document is everything needed to render one itinerary.
type Document struct {
	Itinerary store.Itinerary
	Days      []tripview.Day
}

type Result struct {
	Data     []byte
	Filename string
	MimeType string
	// URL is a presigned download link, set only when object storage is configured.
	URL       string
	ExpiresAt time.Time
}

var (
	// ErrPDFDependencyMissing indicates headless Chrome is not installed.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	ErrUnsupportedFormat    = errors.New("unsupported export format")
)
