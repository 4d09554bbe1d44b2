// Package indexer turns uploaded documents into per-scope vector indexes.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/fs"
	"github.com/Ranjithnathk/ClauseWise/internal/store"
)

var (
	// ErrFileTooLarge rejects uploads above the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEmptyDocument reports a document with no extractable text.
	ErrEmptyDocument = errors.New("document has no extractable text")
)

// Indexer writes uploads to the document root and builds their indexes.
type Indexer struct {
	store     store.Store
	chunker   *fs.TextChunker
	cfg       *config.Config
	uploadDir string

	// builds serializes writes to the same scope.
	builds scopeLocks

	// Progress tracking
	progress Progress
	mu       sync.Mutex
}

// Progress tracks a directory ingestion.
type Progress struct {
	TotalFiles     int
	ProcessedFiles int
	SkippedFiles   int
	TotalChunks    int
	Errors         int
	Failures       []FileError
	StartTime      time.Time
	CurrentFile    string
}

// FileError records one document that could not be ingested.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// ProgressFunc is called to report progress during indexing.
type ProgressFunc func(Progress)

// IngestResult describes the outcome for a single document.
type IngestResult struct {
	Scope    store.Scope
	Path     string
	Hash     string
	Chunks   int
	Skipped  bool
	Duration time.Duration
}

// IndexOptions configures a directory ingestion.
type IndexOptions struct {
	// Owner receives every document found. Defaults to the public owner.
	Owner string

	// Path is the directory to ingest. Defaults to the owner's upload directory.
	Path string

	// IgnorePatterns are additional patterns to ignore.
	IgnorePatterns []string

	// Force rebuilds indexes even if the file is unchanged.
	Force bool

	// OnProgress is called after each file.
	OnProgress ProgressFunc
}

// New creates a new Indexer.
func New(st store.Store, cfg *config.Config) *Indexer {
	return &Indexer{
		store: st,
		chunker: fs.NewTextChunker(fs.ChunkOptions{
			ChunkSize:    cfg.Chunking.ChunkSize,
			ChunkOverlap: cfg.Chunking.ChunkOverlap,
		}),
		cfg:       cfg,
		uploadDir: cfg.Storage.UploadDir,
	}
}

// DocumentDir returns where an owner's uploaded files live.
func (idx *Indexer) DocumentDir(owner string) string {
	return store.DocumentDir(idx.uploadDir, owner)
}

// Ingest stores an uploaded file under the owner's directory and builds its
// index. The previous index for the same name keeps serving until the new one
// is committed. Unchanged content is skipped unless force is set.
func (idx *Indexer) Ingest(ctx context.Context, owner, filename string, content []byte, force bool) (*IngestResult, error) {
	filename = filepath.Base(filename)
	if _, err := fs.DetectFormat(filename); err != nil {
		return nil, err
	}

	scope := store.NewScope(owner, filename)
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	if max := idx.cfg.Storage.MaxFileSize; max > 0 && int64(len(content)) > max {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(content), max)
	}

	hash := fs.HashContent(content)
	path := filepath.Join(idx.DocumentDir(owner), filename)

	unlock := idx.builds.lock(scope)
	defer unlock()

	if !force && idx.unchanged(scope, filename, hash) {
		if _, err := os.Stat(path); err == nil {
			log.Debug("Upload unchanged, skipping", "scope", scope, "hash", hash)
			return &IngestResult{Scope: scope, Path: path, Hash: hash, Skipped: true}, nil
		}
	}

	if err := writeUpload(path, content); err != nil {
		return nil, err
	}

	return idx.build(ctx, scope, path, hash)
}

// IndexFile builds the index for a file already on disk. Files outside the
// owner's directory are copied in first so resolution can find them.
func (idx *Indexer) IndexFile(ctx context.Context, owner, path string, force bool) (*IngestResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	dir, err := filepath.Abs(idx.DocumentDir(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document directory: %w", err)
	}

	if filepath.Dir(absPath) != dir {
		content, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return idx.Ingest(ctx, owner, filepath.Base(absPath), content, force)
	}

	if _, err := fs.DetectFormat(absPath); err != nil {
		return nil, err
	}

	scope := store.NewScope(owner, filepath.Base(absPath))
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	// An upload of the same scope may still be building; wait for it so the
	// hash check below sees its metadata.
	unlock := idx.builds.lock(scope)
	defer unlock()

	hash, err := fs.HashFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to hash file: %w", err)
	}

	if !force && idx.unchanged(scope, filepath.Base(absPath), hash) {
		log.Debug("File unchanged, skipping", "path", absPath)
		return &IngestResult{Scope: scope, Path: absPath, Hash: hash, Skipped: true}, nil
	}

	return idx.build(ctx, scope, absPath, hash)
}

// IndexDir ingests every supported document directly under a directory.
// A failing document is recorded in the progress and does not stop the rest.
func (idx *Indexer) IndexDir(ctx context.Context, opts IndexOptions) (Progress, error) {
	owner := opts.Owner
	if owner == "" {
		owner = store.PublicOwner
	}
	root := opts.Path
	if root == "" {
		root = idx.DocumentDir(owner)
	}

	idx.mu.Lock()
	idx.progress = Progress{StartTime: time.Now()}
	idx.mu.Unlock()

	walker, err := fs.NewFileWalker(fs.WalkOptions{
		Root:           root,
		MaxFileSize:    idx.cfg.Storage.MaxFileSize,
		MaxFileCount:   fs.DefaultWalkOptions().MaxFileCount,
		IgnorePatterns: append(append([]string{}, idx.cfg.Ignore...), opts.IgnorePatterns...),
		UseIgnoreFile:  true,
	})
	if err != nil {
		return Progress{}, fmt.Errorf("failed to create file walker: %w", err)
	}

	var files []fs.FileInfo
	err = walker.Walk(func(fi fs.FileInfo) error {
		files = append(files, fi)
		return nil
	})
	if err != nil {
		return Progress{}, fmt.Errorf("failed to walk directory: %w", err)
	}

	idx.mu.Lock()
	idx.progress.TotalFiles = len(files)
	idx.mu.Unlock()

	log.Info("Found documents to index", "owner", owner, "count", len(files))

	for _, fi := range files {
		select {
		case <-ctx.Done():
			return idx.Progress(), ctx.Err()
		default:
		}

		idx.mu.Lock()
		idx.progress.CurrentFile = fi.RelPath
		idx.mu.Unlock()

		res, err := idx.IndexFile(ctx, owner, fi.Path, opts.Force)

		idx.mu.Lock()
		switch {
		case err != nil:
			log.Warn("Failed to index document", "path", fi.RelPath, "error", err)
			idx.progress.Errors++
			idx.progress.Failures = append(idx.progress.Failures, FileError{Path: fi.Path, Err: err})
		case res.Skipped:
			idx.progress.SkippedFiles++
		default:
			idx.progress.ProcessedFiles++
			idx.progress.TotalChunks += res.Chunks
		}
		if opts.OnProgress != nil {
			opts.OnProgress(idx.progress)
		}
		idx.mu.Unlock()
	}

	p := idx.Progress()
	log.Info("Indexing complete",
		"owner", owner,
		"indexed", p.ProcessedFiles,
		"skipped", p.SkippedFiles,
		"errors", p.Errors,
		"duration", time.Since(p.StartTime).Round(time.Millisecond),
	)
	return p, nil
}

// IndexAll ingests the public documents and every user's directory.
func (idx *Indexer) IndexAll(ctx context.Context, force bool, onProgress ProgressFunc) (map[string]Progress, error) {
	owners := []string{store.PublicOwner}

	entries, err := os.ReadDir(idx.uploadDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to list upload directory: %w", err)
	}
	var users []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") && e.Name() != store.PublicOwner {
			users = append(users, e.Name())
		}
	}
	sort.Strings(users)
	owners = append(owners, users...)

	results := make(map[string]Progress, len(owners))
	for _, owner := range owners {
		if _, err := os.Stat(idx.DocumentDir(owner)); errors.Is(err, os.ErrNotExist) {
			continue
		}
		p, err := idx.IndexDir(ctx, IndexOptions{Owner: owner, Force: force, OnProgress: onProgress})
		if err != nil {
			return results, err
		}
		results[owner] = p
	}
	return results, nil
}

// Progress returns the current indexing progress.
func (idx *Indexer) Progress() Progress {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	p := idx.progress
	p.Failures = append([]FileError(nil), idx.progress.Failures...)
	return p
}

// Remove deletes the index for a document. The uploaded file is left alone.
func (idx *Indexer) Remove(owner, filename string) error {
	scope := store.NewScope(owner, filename)
	if err := scope.Validate(); err != nil {
		return err
	}
	unlock := idx.builds.lock(scope)
	defer unlock()

	if err := idx.store.Delete(scope); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", scope, err)
	}
	log.Info("Removed index", "scope", scope)
	return nil
}

// Delete removes a document entirely: every uploaded file of the owner with
// that document name, then its index. Deleting an unknown document is not
// an error.
func (idx *Indexer) Delete(owner, document string) error {
	scope := store.NewScope(owner, document)
	if err := scope.Validate(); err != nil {
		return err
	}

	unlock := idx.builds.lock(scope)
	defer unlock()

	dir := idx.DocumentDir(owner)
	names, err := fs.ListDocuments(dir, fs.SupportedExtensions()...)
	if err != nil {
		return err
	}
	for _, name := range names {
		if fs.DocumentName(name) != scope.Document {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete upload %s: %w", name, err)
		}
	}

	if err := idx.store.Delete(scope); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", scope, err)
	}
	log.Info("Deleted document", "scope", scope)
	return nil
}

// unchanged reports whether the committed index was built from the same bytes.
func (idx *Indexer) unchanged(scope store.Scope, filename, hash string) bool {
	info, err := idx.store.Stat(scope)
	if err != nil {
		return false
	}
	return info.ContentHash == hash && info.SourceFile == filename
}

// build loads, chunks and indexes one document.
func (idx *Indexer) build(ctx context.Context, scope store.Scope, path, hash string) (*IngestResult, error) {
	start := time.Now()

	segments, err := fs.Load(path)
	if err != nil {
		return nil, err
	}

	chunks := idx.chunker.Chunk(segments)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, filepath.Base(path))
	}

	index, err := idx.store.Build(ctx, scope, chunks, store.BuildOptions{
		SourceFile:  filepath.Base(path),
		ContentHash: hash,
	})
	if err != nil {
		return nil, err
	}
	defer index.Close()

	res := &IngestResult{
		Scope:    scope,
		Path:     path,
		Hash:     hash,
		Chunks:   index.Count(),
		Duration: time.Since(start),
	}
	log.Info("Indexed document", "scope", scope, "passages", res.Chunks, "duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

// writeUpload replaces path with content through a hidden temporary file.
func writeUpload(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store upload file: %w", err)
	}
	return nil
}

// scopeLocks hands out one mutex per scope, dropped when no one holds it.
type scopeLocks struct {
	mu   sync.Mutex
	held map[string]*scopeLock
}

type scopeLock struct {
	sync.Mutex
	refs int
}

func (l *scopeLocks) lock(scope store.Scope) (unlock func()) {
	key := scope.String()

	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[string]*scopeLock)
	}
	sl, ok := l.held[key]
	if !ok {
		sl = &scopeLock{}
		l.held[key] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.Lock()
	return func() {
		sl.Unlock()
		l.mu.Lock()
		if sl.refs--; sl.refs == 0 {
			delete(l.held, key)
		}
		l.mu.Unlock()
	}
}
