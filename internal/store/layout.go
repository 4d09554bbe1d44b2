package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/Ranjithnathk/ClauseWise/internal/embeddings"
	"github.com/Ranjithnathk/ClauseWise/internal/fs"
)

const (
	metaFileName   = "meta.json"
	embedBatchSize = 50
)

// dirStore holds what both backends share: the on-disk layout
// <root>/<owner>/<document>/, staged builds and metadata.
type dirStore struct {
	root     string
	backend  string
	metric   string
	embedder embeddings.Service
}

func newDirStore(root, backend, metric string, embedder embeddings.Service) (dirStore, error) {
	if root == "" {
		return dirStore{}, fmt.Errorf("index root is required")
	}
	if embedder == nil {
		return dirStore{}, fmt.Errorf("embedding service is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return dirStore{}, fmt.Errorf("failed to create index directory: %w", err)
	}
	return dirStore{root: root, backend: backend, metric: metric, embedder: embedder}, nil
}

// Root returns the directory indexes are stored under.
func (s dirStore) Root() string {
	return s.root
}

func (s dirStore) dir(scope Scope) string {
	return filepath.Join(s.root, scope.Owner, scope.Document)
}

// Exists reports whether the scope has a committed index.
func (s dirStore) Exists(scope Scope) bool {
	if scope.Validate() != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(s.dir(scope), metaFileName))
	return err == nil
}

// Stat reads the scope's metadata.
func (s dirStore) Stat(scope Scope) (*IndexInfo, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return readMeta(s.dir(scope))
}

// Delete removes the scope's index directory.
func (s dirStore) Delete(scope Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.dir(scope)); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", scope, err)
	}
	log.Debug("Deleted index", "scope", scope)
	return nil
}

// List returns the committed indexes of an owner.
func (s dirStore) List(owner string) ([]IndexInfo, error) {
	if err := validName(owner); err != nil {
		return nil, fmt.Errorf("%w: owner %q: %v", ErrInvalidScope, owner, err)
	}

	entries, err := os.ReadDir(filepath.Join(s.root, owner))
	if errors.Is(err, os.ErrNotExist) {
		return []IndexInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}

	infos := make([]IndexInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := readMeta(filepath.Join(s.root, owner, entry.Name()))
		if err != nil {
			log.Warn("Skipping unreadable index", "owner", owner, "document", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, *info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Scope.Document < infos[j].Scope.Document
	})
	return infos, nil
}

// checkLoad validates the scope and confirms a committed index is present.
func (s dirStore) checkLoad(scope Scope) (string, *IndexInfo, error) {
	if err := scope.Validate(); err != nil {
		return "", nil, err
	}
	dir := s.dir(scope)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return "", nil, fmt.Errorf("%w: %s", ErrNotFound, scope)
	}
	info, err := readMeta(dir)
	if err != nil {
		return "", nil, err
	}
	if info.Backend != s.backend {
		return "", nil, fmt.Errorf("%w: %s was built by the %s backend", ErrCorruptIndex, scope, info.Backend)
	}
	if info.EmbeddingModel != s.embedder.ModelName() || info.EmbeddingProvider != string(s.embedder.Provider()) {
		return "", nil, fmt.Errorf("%w: %s uses %s/%s, configured %s/%s", ErrEmbeddingMismatch, scope,
			info.EmbeddingProvider, info.EmbeddingModel, s.embedder.Provider(), s.embedder.ModelName())
	}
	return dir, info, nil
}

// embedAll embeds every passage before anything is written.
func (s dirStore) embedAll(ctx context.Context, passages []Passage) ([][]float32, error) {
	vectors := make([][]float32, 0, len(passages))
	for i := 0; i < len(passages); i += embedBatchSize {
		end := min(i+embedBatchSize, len(passages))

		texts := make([]string, end-i)
		for j := i; j < end; j++ {
			texts[j-i] = passages[j].Content
		}

		batch, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed passages %d-%d: %w", i, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(batch))
		}
		vectors = append(vectors, batch...)
	}

	if len(vectors) > 0 {
		dims := len(vectors[0])
		for i, v := range vectors {
			if len(v) != dims {
				return nil, fmt.Errorf("%w: passage %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), dims)
			}
		}
	}
	return vectors, nil
}

// newInfo returns the metadata for a build about to be committed.
func (s dirStore) newInfo(scope Scope, passages []Passage, vectors [][]float32, opts BuildOptions) *IndexInfo {
	dims := s.embedder.Dimensions()
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	return &IndexInfo{
		ID:                uuid.NewString(),
		Scope:             scope,
		Backend:           s.backend,
		Metric:            s.metric,
		EmbeddingProvider: string(s.embedder.Provider()),
		EmbeddingModel:    s.embedder.ModelName(),
		Dimensions:        dims,
		ChunkCount:        len(passages),
		SourceFile:        opts.SourceFile,
		ContentHash:       opts.ContentHash,
		CreatedAt:         time.Now().UTC(),
	}
}

// build runs a staged build: embed, write into a hidden staging directory
// with the backend's write function, then swap it into place.
func (s dirStore) build(ctx context.Context, scope Scope, chunks []fs.Chunk, opts BuildOptions,
	write func(dir string, passages []Passage, vectors [][]float32, info *IndexInfo) error) error {
	if err := scope.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}

	passages := passagesFromChunks(chunks)
	vectors, err := s.embedAll(ctx, passages)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrIndexBuild, scope, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrIndexBuild, scope, err)
	}

	ownerDir := filepath.Join(s.root, scope.Owner)
	if err := os.MkdirAll(ownerDir, 0755); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}
	staging, err := os.MkdirTemp(ownerDir, "."+scope.Document+".tmp-")
	if err != nil {
		return fmt.Errorf("%w: failed to create staging directory: %w", ErrIndexBuild, err)
	}
	defer os.RemoveAll(staging)

	info := s.newInfo(scope, passages, vectors, opts)
	if err := write(staging, passages, vectors, info); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrIndexBuild, scope, err)
	}
	if err := writeMeta(staging, info); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrIndexBuild, scope, err)
	}

	if err := commit(staging, s.dir(scope)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrIndexBuild, scope, err)
	}

	log.Debug("Committed index", "scope", scope, "backend", s.backend, "passages", len(passages))
	return nil
}

// commit moves a finished staging directory over the live one. The previous
// index is moved aside first so the live path never holds a partial build.
func commit(staging, final string) error {
	var old string
	if _, err := os.Stat(final); err == nil {
		old = filepath.Join(filepath.Dir(final), "."+filepath.Base(final)+".old-"+uuid.NewString())
		if err := os.Rename(final, old); err != nil {
			return fmt.Errorf("failed to move previous index aside: %w", err)
		}
	}

	if err := os.Rename(staging, final); err != nil {
		if old != "" {
			_ = os.Rename(old, final)
		}
		return fmt.Errorf("failed to commit index: %w", err)
	}

	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			log.Warn("Failed to remove previous index", "path", old, "error", err)
		}
	}
	return nil
}

func readMeta(dir string) (*IndexInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if errors.Is(err, os.ErrNotExist) {
		if _, statErr := os.Stat(dir); errors.Is(statErr, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("%w: missing %s in %s", ErrCorruptIndex, metaFileName, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}

	var info IndexInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptIndex, metaFileName, err)
	}
	return &info, nil
}

func writeMeta(dir string, info *IndexInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// checkQuery validates k and the query vector against the index.
func checkQuery(info IndexInfo, vector []float32, k int) error {
	if k <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if info.ChunkCount > 0 && len(vector) != info.Dimensions {
		return fmt.Errorf("%w: query has %d dimensions, index %s has %d", ErrDimensionMismatch, len(vector), info.Scope, info.Dimensions)
	}
	return nil
}

// scoreFor converts a metric distance into a similarity.
func scoreFor(metric string, distance float64) float64 {
	if metric == MetricL2 {
		return 1 / (1 + distance)
	}
	return 1 - distance
}
