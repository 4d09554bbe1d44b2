package fs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// sniffLen is how much of a text file is read to decide it is binary.
const sniffLen = 8 << 10

// HashFile returns the hex xxhash64 of a file's bytes.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	d := xxhash.New()
	if _, err := io.Copy(d, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", d.Sum64()), nil
}

// HashContent returns the hex xxhash64 of content.
func HashContent(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

func looksBinary(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head, err := io.ReadAll(io.LimitReader(f, sniffLen))
	if err != nil {
		return false, err
	}
	return isBinaryContent(head), nil
}

// isBinaryContent reports content with a NUL byte, or with more than 30%
// control characters other than tab and line breaks.
func isBinaryContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return true
	}
	ctrl := 0
	for _, b := range content {
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			ctrl++
		}
	}
	return ctrl*10 > len(content)*3
}

// ListDocuments returns the names of files directly under dir whose
// extension is in exts, sorted. A missing directory yields no names.
func ListDocuments(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	names := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if len(exts) > 0 && !slices.ContainsFunc(exts, func(ext string) bool {
			return strings.EqualFold(ext, filepath.Ext(name))
		}) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
