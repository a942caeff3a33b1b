package export

import (
	"context"
	"fmt"
	"time"
)

type Service struct {
	uploader Uploader
	pdf      func(ctx context.Context, html string) ([]byte, error)
	now      func() time.Time
}

// NewService creates an export service. uploader may be nil, in which case
// results carry the bytes only.
func NewService(uploader Uploader) *Service {
	return &Service{uploader: uploader, pdf: renderPDF, now: time.Now}
}

func (s *Service) Export(ctx context.Context, doc Document, format Format) (*Result, error) {
	now := s.now()
	html, err := RenderItineraryHTML(buildTemplateData(doc, now))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	name := sanitizeFilename(Title(doc))
	var result *Result
	switch format {
	case FormatPDF:
		data, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		result = &Result{Data: data, Filename: name + ".pdf", MimeType: "application/pdf"}
	case FormatHTML:
		result = &Result{Data: []byte(html), Filename: name + ".html", MimeType: "text/html; charset=utf-8"}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if s.uploader != nil {
		key := fmt.Sprintf("itineraries/%s/%s-%s", doc.Itinerary.ID, now.UTC().Format("20060102T150405Z"), result.Filename)
		link, expiresAt, err := s.uploader.Upload(ctx, key, result.Data, result.MimeType)
		if err != nil {
			return nil, err
		}
		result.URL = link
		result.ExpiresAt = expiresAt
	}
	return result, nil
}
