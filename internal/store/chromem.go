package store

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"github.com/charmbracelet/log"
	chromem "github.com/philippgille/chromem-go"

	"github.com/Ranjithnathk/ClauseWise/internal/embeddings"
	"github.com/Ranjithnathk/ClauseWise/internal/fs"
)

const (
	chromemFileName   = "chromem.gob.gz"
	chromemCollection = "passages"
)

// ChromemStore keeps each index as a compressed chromem-go export.
// Only the cosine metric is supported.
type ChromemStore struct {
	dirStore
	embedFunc chromem.EmbeddingFunc
}

// NewChromemStore creates a chromem-backed store rooted at root.
func NewChromemStore(root string, embedder embeddings.Service) (*ChromemStore, error) {
	base, err := newDirStore(root, BackendChromem, MetricCosine, embedder)
	if err != nil {
		return nil, err
	}
	return &ChromemStore{dirStore: base, embedFunc: embeddings.ToChromemFunc(embedder)}, nil
}

// Build embeds the chunks and replaces the scope's index.
func (s *ChromemStore) Build(ctx context.Context, scope Scope, chunks []fs.Chunk, opts BuildOptions) (Index, error) {
	write := func(dir string, passages []Passage, vectors [][]float32, info *IndexInfo) error {
		db := chromem.NewDB()
		col, err := db.GetOrCreateCollection(chromemCollection, nil, s.embedFunc)
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}

		docs := make([]chromem.Document, len(passages))
		for i, p := range passages {
			docs[i] = chromem.Document{
				ID:        strconv.Itoa(p.Seq),
				Content:   p.Content,
				Metadata:  passageToMap(p),
				Embedding: vectors[i],
			}
		}
		if len(docs) > 0 {
			if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
				return fmt.Errorf("add documents: %w", err)
			}
		}

		return db.ExportToFile(filepath.Join(dir, chromemFileName), true, "")
	}

	if err := s.build(ctx, scope, chunks, opts, write); err != nil {
		return nil, err
	}
	return s.Load(ctx, scope)
}

// Load imports the scope's export into memory.
func (s *ChromemStore) Load(ctx context.Context, scope Scope) (Index, error) {
	dir, info, err := s.checkLoad(scope)
	if err != nil {
		return nil, err
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(filepath.Join(dir, chromemFileName), ""); err != nil {
		return nil, fmt.Errorf("%w: %s: import from file: %w", ErrCorruptIndex, scope, err)
	}

	// Re-acquire collection reference after import.
	col := db.GetCollection(chromemCollection, s.embedFunc)
	if col == nil {
		if info.ChunkCount > 0 {
			return nil, fmt.Errorf("%w: %s: collection %q not found after import", ErrCorruptIndex, scope, chromemCollection)
		}
		if col, err = db.GetOrCreateCollection(chromemCollection, nil, s.embedFunc); err != nil {
			return nil, fmt.Errorf("create collection: %w", err)
		}
	}
	if col.Count() != info.ChunkCount {
		return nil, fmt.Errorf("%w: %s holds %d passages, metadata says %d", ErrCorruptIndex, scope, col.Count(), info.ChunkCount)
	}

	log.Debug("Opened chromem index", "scope", scope, "passages", col.Count())

	return &chromemIndex{collection: col, info: *info, embedder: s.embedder}, nil
}

// chromemIndex is a loaded chromem collection.
type chromemIndex struct {
	collection *chromem.Collection
	info       IndexInfo
	embedder   embeddings.Service
}

func (x *chromemIndex) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	vector, err := x.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return x.SearchVector(ctx, vector, k)
}

func (x *chromemIndex) SearchVector(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if err := checkQuery(x.info, vector, k); err != nil {
		return nil, err
	}
	count := x.collection.Count()
	if count == 0 {
		return []Result{}, nil
	}

	// chromem-go requires nResults <= collection size and does not order
	// ties, so rank everything and truncate after a stable sort.
	found, err := x.collection.QueryEmbedding(ctx, vector, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	results := make([]Result, len(found))
	for i, r := range found {
		distance := 1 - float64(r.Similarity)
		results[i] = Result{
			Passage:  mapToPassage(r.Content, r.Metadata),
			Distance: distance,
			Score:    scoreFor(MetricCosine, distance),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Seq < results[j].Seq
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (x *chromemIndex) Count() int {
	return x.collection.Count()
}

func (x *chromemIndex) Info() IndexInfo {
	return x.info
}

func (x *chromemIndex) Close() error {
	return nil
}

// passageToMap flattens passage provenance for chromem metadata.
func passageToMap(p Passage) map[string]string {
	return map[string]string{
		"seq":        strconv.Itoa(p.Seq),
		"source":     p.Source,
		"page":       strconv.Itoa(p.Page),
		"start_char": strconv.Itoa(p.StartChar),
		"end_char":   strconv.Itoa(p.EndChar),
	}
}

// mapToPassage converts chromem metadata back to a Passage.
func mapToPassage(content string, m map[string]string) Passage {
	seq, _ := strconv.Atoi(m["seq"])
	page, _ := strconv.Atoi(m["page"])
	start, _ := strconv.Atoi(m["start_char"])
	end, _ := strconv.Atoi(m["end_char"])

	return Passage{
		Seq:       seq,
		Content:   content,
		Source:    m["source"],
		Page:      page,
		StartChar: start,
		EndChar:   end,
	}
}
