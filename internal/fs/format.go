package fs

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies how a document's bytes are decoded into text.
type Format string

// Supported document formats
const (
	FormatPDF  Format = "pdf"
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatDOCX Format = "docx"
	FormatDOC  Format = "doc"
)

// ErrUnsupportedFormat is matched by every UnsupportedFormatError.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// UnsupportedFormatError names the extension that could not be loaded.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return "unsupported file format: file has no extension"
	}
	return fmt.Sprintf("unsupported file format: %s", e.Ext)
}

// Is reports whether target is ErrUnsupportedFormat.
func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// extensionFormats maps lowercase file extensions to formats.
var extensionFormats = map[string]Format{
	".pdf":  FormatPDF,
	".txt":  FormatText,
	".md":   FormatText,
	".csv":  FormatCSV,
	".docx": FormatDOCX,
	".doc":  FormatDOC,
}

// DetectFormat derives a document format from the file extension.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extensionFormats[ext]; ok {
		return f, nil
	}
	return "", &UnsupportedFormatError{Ext: ext}
}

// IsSupported reports whether the file's extension can be loaded.
func IsSupported(path string) bool {
	_, err := DetectFormat(path)
	return err == nil
}

// SupportedExtensions returns every loadable extension, sorted.
func SupportedExtensions() []string {
	return []string{".csv", ".doc", ".docx", ".md", ".pdf", ".txt"}
}

// DocumentName strips the directory and extension from a file name.
func DocumentName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
