package fs

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// loadDOCX extracts paragraph text from an Office Open XML document.
func loadDOCX(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	text, err := docxText(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return []Segment{{Text: text, Source: filepath.Base(path)}}, nil
}

// loadDOC handles legacy Word files. Files that are really OOXML go through
// the DOCX decoder; binary files fall back to their printable text runs.
func loadDOC(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	text, err := docxText(data)
	if errors.Is(err, zip.ErrFormat) {
		text, err = printableText(data), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return []Segment{{Text: text, Source: filepath.Base(path)}}, nil
}

// docxText walks word/document.xml, including table cells, emitting one line per paragraph.
func docxText(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var doc *zip.File
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("word/document.xml not found")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var (
		b      strings.Builder
		inText bool
		paras  int
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("invalid document xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteString("\t")
			case "br", "cr":
				b.WriteString("\n")
			case "p":
				if paras > 0 {
					b.WriteString("\n")
				}
				paras++
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return b.String(), nil
}

// minPrintableRun is the shortest run of printable characters kept from a binary file.
const minPrintableRun = 4

// printableText keeps runs of printable characters from binary content.
func printableText(data []byte) string {
	var (
		out strings.Builder
		run []rune
	)
	flush := func() {
		if len(strings.TrimSpace(string(run))) >= minPrintableRun {
			if out.Len() > 0 {
				out.WriteString("\n")
			}
			out.WriteString(string(run))
		}
		run = run[:0]
	}

	for _, b := range data {
		r := rune(b)
		if r < 0x80 && (unicode.IsPrint(r) || r == '\t') {
			run = append(run, r)
			continue
		}
		flush()
	}
	flush()

	return out.String()
}
