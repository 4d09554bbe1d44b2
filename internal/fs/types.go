// Package fs loads documents from disk and splits them into passages.
package fs

import (
	"time"
)

// FileInfo represents metadata about a document file.
type FileInfo struct {
	Path    string    // Absolute path to the file
	RelPath string    // Path relative to the root
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
	Hash    string    // xxhash of file contents
	Format  Format    // Detected document format
}

// Segment is a raw span of text extracted from a document.
type Segment struct {
	Text   string // Extracted text, untouched by the loader
	Source string // File name the text came from
	Page   int    // 1-indexed page for paginated formats, 0 otherwise
	Row    int    // 1-indexed data row for CSV, 0 otherwise
	Err    error  // Set when this segment could not be decoded
}

// Chunk is a passage of document text sized for embedding.
type Chunk struct {
	Content    string // The text content of the chunk
	ChunkIndex int    // Index of this chunk within the document
	StartChar  int    // Starting rune offset in the joined document text
	EndChar    int    // Ending rune offset (exclusive)
	Source     string // File the chunk starts in
	Page       int    // Page the chunk starts on, 0 if unpaginated
}

// WalkOptions configures the file walker.
type WalkOptions struct {
	// Root is the directory to start walking from.
	Root string

	// Recursive descends into subdirectories. A document root holds
	// per-user directories, so walking it is not recursive.
	Recursive bool

	// MaxFileSize is the maximum file size to process (in bytes).
	MaxFileSize int64

	// MaxFileCount is the maximum number of files to process.
	MaxFileCount int

	// IgnorePatterns are additional patterns to ignore (gitignore syntax).
	IgnorePatterns []string

	// IncludeHidden includes hidden files and directories.
	IncludeHidden bool

	// UseIgnoreFile respects a .clausewiseignore file in the root.
	UseIgnoreFile bool

	// Extensions limits to specific file extensions (e.g., ".pdf").
	// Empty means every supported document format.
	Extensions []string
}

// ChunkOptions configures the chunker.
type ChunkOptions struct {
	// ChunkSize is the maximum size of each chunk in characters.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive chunks.
	ChunkOverlap int
}

// DefaultWalkOptions returns sensible defaults for walking.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		MaxFileSize:   50 << 20,
		MaxFileCount:  10000,
		UseIgnoreFile: true,
	}
}

// DefaultChunkOptions returns sensible defaults for chunking.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Walker walks a directory tree and yields document files.
type Walker interface {
	// Walk walks the directory tree and calls fn for each file.
	// The walk stops if fn returns an error.
	Walk(fn func(FileInfo) error) error

	// Stats returns statistics about the walk.
	Stats() WalkStats
}

// WalkStats contains statistics from a directory walk.
type WalkStats struct {
	FilesFound   int   // Total files found
	FilesSkipped int   // Files skipped due to size/pattern/etc
	DirsSkipped  int   // Directories skipped
	TotalBytes   int64 // Total bytes of files found
	SkippedBytes int64 // Total bytes of skipped files
}

// Chunker splits document segments into passages.
type Chunker interface {
	// Chunk splits the segments into passages.
	Chunk(segments []Segment) []Chunk
}
