package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/embeddings"
	"github.com/Ranjithnathk/ClauseWise/internal/fs"
)

var (
	// ErrNotFound reports that no index exists for a scope. It is expected
	// and recoverable, unlike ErrCorruptIndex.
	ErrNotFound = errors.New("index not found")

	// ErrIndexBuild wraps every failure during Build. Nothing is committed.
	ErrIndexBuild = errors.New("index build failed")

	// ErrCorruptIndex reports an index directory that exists but cannot be read.
	ErrCorruptIndex = errors.New("index is corrupt")

	// ErrDimensionMismatch reports a query vector whose length differs from the index.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingMismatch reports an index built with a different embedding model.
	ErrEmbeddingMismatch = errors.New("index was built with a different embedding model")

	// ErrInvalidScope reports an owner or document name unusable as a directory.
	ErrInvalidScope = errors.New("invalid index scope")

	// ErrInvalidK reports a non-positive result count.
	ErrInvalidK = errors.New("k must be a positive integer")
)

// Index is a loaded, read-only vector index for one scope.
type Index interface {
	// Search embeds the query and returns up to k passages, nearest first.
	Search(ctx context.Context, query string, k int) ([]Result, error)

	// SearchVector returns up to k passages nearest to vector.
	SearchVector(ctx context.Context, vector []float32, k int) ([]Result, error)

	// Count returns the number of indexed passages.
	Count() int

	// Info returns the index metadata.
	Info() IndexInfo

	// Close releases the index.
	Close() error
}

// Store builds and loads per-scope indexes under a root directory.
type Store interface {
	// Build embeds every chunk and replaces the scope's index. Any failure
	// leaves the previous index, if one exists, untouched.
	Build(ctx context.Context, scope Scope, chunks []fs.Chunk, opts BuildOptions) (Index, error)

	// Load opens the scope's index, returning ErrNotFound if it does not exist.
	Load(ctx context.Context, scope Scope) (Index, error)

	// Stat returns the scope's metadata without opening the index.
	Stat(scope Scope) (*IndexInfo, error)

	// Exists reports whether the scope has an index.
	Exists(scope Scope) bool

	// Delete removes the scope's index. Deleting a missing index is not an error.
	Delete(scope Scope) error

	// List returns the indexes of an owner, sorted by document name.
	List(owner string) ([]IndexInfo, error)

	// Root returns the directory indexes are stored under.
	Root() string
}

// Backend names
const (
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
)

// Metric names
const (
	MetricCosine = "cosine"
	MetricL2     = "l2"
)

// NewStore creates the store selected by the index configuration.
func NewStore(cfg *config.Config, embedder embeddings.Service) (Store, error) {
	switch cfg.Index.Backend {
	case BackendSQLite, "":
		return NewSQLiteStore(cfg.Storage.IndexDir, cfg.Index.Metric, embedder)
	case BackendChromem:
		return NewChromemStore(cfg.Storage.IndexDir, embedder)
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Index.Backend)
	}
}
