package collyfetcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

// PDFURL strips the query and fragment from rawURL and rejects anything
// whose path does not end in .pdf.
func PDFURL(rawURL string) (string, error) {
	clean := rawURL
	if i := strings.Index(clean, "?"); i >= 0 {
		clean = clean[:i]
	}
	if i := strings.Index(clean, "#"); i >= 0 {
		clean = clean[:i]
	}
	if !strings.HasSuffix(strings.ToLower(clean), ".pdf") {
		return "", fmt.Errorf("download %s: %w", rawURL, submission.ErrNotPDF)
	}
	return clean, nil
}

// Download fetches a PDF with the same retry policy as pages. Non-PDF
// targets fail before any request is made.
func (f *Fetcher) Download(ctx context.Context, rawURL string) ([]byte, error) {
	clean, err := PDFURL(rawURL)
	if err != nil {
		return nil, err
	}
	page, err := f.Fetch(ctx, clean)
	if err != nil {
		return nil, err
	}
	return page.Body, nil
}
