package fs

import (
	"fmt"
	"path/filepath"

	"github.com/ledongthuc/pdf"
)

// loadPDF returns one segment per page.
func loadPDF(path string) ([]Segment, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer f.Close()

	source := filepath.Base(path)
	pages := r.NumPage()
	segments := make([]Segment, 0, pages)

	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := pageText(page)
		segments = append(segments, Segment{
			Text:   text,
			Source: source,
			Page:   i,
			Err:    err,
		})
	}

	return segments, nil
}

// pageText extracts a page's text. The decoder panics on some malformed
// content streams, which is reported as an error for that page only.
func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page content: %v", r)
		}
	}()

	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract page text: %w", err)
	}
	return text, nil
}
