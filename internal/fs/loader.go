package fs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Load reads a document and returns its text segments.
// Loading is pass-through: no cleaning or normalization is applied.
func Load(path string) ([]Segment, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatPDF:
		return loadPDF(path)
	case FormatCSV:
		return loadCSV(path)
	case FormatDOCX:
		return loadDOCX(path)
	case FormatDOC:
		return loadDOC(path)
	default:
		return loadText(path)
	}
}

// loadText returns the whole file as one segment.
func loadText(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return []Segment{{Text: string(data), Source: filepath.Base(path)}}, nil
}

// loadCSV returns one segment per data row, rendered as "column: value" lines.
func loadCSV(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	source := filepath.Base(path)
	var segments []Segment
	for row := 1; ; row++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A malformed row is reported on its own segment
			segments = append(segments, Segment{Source: source, Row: row, Err: err})
			continue
		}
		segments = append(segments, Segment{
			Text:   formatRow(header, record),
			Source: source,
			Row:    row,
		})
	}

	return segments, nil
}

// formatRow pairs each value with its column name.
func formatRow(header, record []string) string {
	var b strings.Builder
	for i, value := range record {
		if i > 0 {
			b.WriteString("\n")
		}
		name := fmt.Sprintf("column_%d", i+1)
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
	}
	return b.String()
}
