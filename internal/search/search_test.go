package search

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ranjithnathk/ClauseWise/internal/embeddings"
	"github.com/Ranjithnathk/ClauseWise/internal/fs"
	"github.com/Ranjithnathk/ClauseWise/internal/store"
)

// mockEmbedder implements embeddings.Service for testing.
type mockEmbedder struct {
	model      string
	dimensions int
	calls      atomic.Int32
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	return m.generateEmbedding(text), nil
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	return m.generateEmbedding(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = m.generateEmbedding(text)
	}
	return result, nil
}

func (m *mockEmbedder) Dimensions() int {
	return m.dimensions
}

func (m *mockEmbedder) Provider() embeddings.Provider {
	return embeddings.ProviderOllama
}

func (m *mockEmbedder) ModelName() string {
	return m.model
}

// generateEmbedding creates a deterministic embedding based on text.
func (m *mockEmbedder) generateEmbedding(text string) []float32 {
	emb := make([]float32, m.dimensions)
	hash := 0
	for _, c := range text {
		hash = hash*31 + int(c)
	}
	for i := range emb {
		emb[i] = float32((hash+i)%100)/100.0 + 0.01
	}
	return emb
}

// Verify mockEmbedder implements embeddings.Service
var _ embeddings.Service = (*mockEmbedder)(nil)

type fixture struct {
	uploadDir string
	embedder  *mockEmbedder
	store     store.Store
	searcher  *Searcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	emb := &mockEmbedder{model: "test-model", dimensions: 8}
	st, err := store.NewSQLiteStore(filepath.Join(root, "indexes"), store.MetricCosine, emb)
	require.NoError(t, err)

	uploadDir := filepath.Join(root, "uploaded_docs")
	require.NoError(t, os.MkdirAll(uploadDir, 0755))

	return &fixture{
		uploadDir: uploadDir,
		embedder:  emb,
		store:     st,
		searcher:  New(NewResolver(uploadDir, st), st),
	}
}

func (f *fixture) upload(t *testing.T, owner, filename string) {
	t.Helper()
	dir := f.searcher.Resolver().DocumentDir(owner)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte("content"), 0644))
}

func (f *fixture) build(t *testing.T, scope store.Scope, texts ...string) {
	t.Helper()
	var chunks []fs.Chunk
	for i, text := range texts {
		chunks = append(chunks, fs.Chunk{Content: text, ChunkIndex: i})
	}
	idx, err := f.store.Build(context.Background(), scope, chunks, store.BuildOptions{})
	require.NoError(t, err)
	require.NoError(t, idx.Close())
}

func TestResolvePrecedence(t *testing.T) {
	t.Run("private file wins over public", func(t *testing.T) {
		f := newFixture(t)
		f.upload(t, store.PublicOwner, "lease.pdf")
		f.upload(t, "alice", "lease.pdf")

		scope, err := f.searcher.Resolver().Resolve("alice", "lease.pdf")
		require.NoError(t, err)
		assert.Equal(t, store.Scope{Owner: "alice", Document: "lease"}, scope)
	})

	t.Run("private index wins over public", func(t *testing.T) {
		f := newFixture(t)
		f.build(t, store.PublicScope("lease"), "public text")
		f.build(t, store.NewScope("alice", "lease"), "private text")

		scope, err := f.searcher.Resolver().Resolve("alice", "lease")
		require.NoError(t, err)
		assert.Equal(t, "alice", scope.Owner)
	})

	t.Run("falls back to public", func(t *testing.T) {
		f := newFixture(t)
		f.upload(t, store.PublicOwner, "handbook.docx")

		scope, err := f.searcher.Resolver().Resolve("bob", "handbook")
		require.NoError(t, err)
		assert.Equal(t, store.PublicScope("handbook"), scope)
	})

	t.Run("another user's document is invisible", func(t *testing.T) {
		f := newFixture(t)
		f.upload(t, "alice", "lease.pdf")

		_, err := f.searcher.Resolver().Resolve("bob", "lease.pdf")
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})

	t.Run("reserved public identity sees only public scope", func(t *testing.T) {
		f := newFixture(t)
		f.upload(t, store.PublicOwner, "lease.pdf")

		scope, err := f.searcher.Resolver().Resolve(store.PublicOwner, "lease.pdf")
		require.NoError(t, err)
		assert.True(t, scope.IsPublic())
	})

	t.Run("unknown document", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.searcher.Resolver().Resolve("alice", "missing.pdf")
		assert.ErrorIs(t, err, ErrDocumentNotFound)
		assert.Contains(t, err.Error(), "missing.pdf")
	})

	t.Run("path traversal is not found", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.searcher.Resolver().Resolve("alice", "..")
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})
}

func TestResolveIsNotCached(t *testing.T) {
	f := newFixture(t)
	f.upload(t, store.PublicOwner, "lease.pdf")

	scope, err := f.searcher.Resolver().Resolve("alice", "lease")
	require.NoError(t, err)
	assert.True(t, scope.IsPublic())

	f.upload(t, "alice", "lease.pdf")
	scope, err = f.searcher.Resolver().Resolve("alice", "lease")
	require.NoError(t, err)
	assert.Equal(t, "alice", scope.Owner)

	require.NoError(t, os.Remove(filepath.Join(f.uploadDir, "alice", "lease.pdf")))
	scope, err = f.searcher.Resolver().Resolve("alice", "lease")
	require.NoError(t, err)
	assert.True(t, scope.IsPublic())
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("returns only passages from the resolved scope", func(t *testing.T) {
		f := newFixture(t)
		f.build(t, store.PublicScope("contract"), "public clause one", "public clause two")
		f.build(t, store.NewScope("alice", "contract"), "alice clause")

		r, err := f.searcher.Retrieve(ctx, "alice", "contract.pdf", "clause", 5)
		require.NoError(t, err)

		assert.Equal(t, store.NewScope("alice", "contract"), r.Scope)
		assert.Equal(t, []string{"alice clause"}, r.Passages())
	})

	t.Run("never returns more than k", func(t *testing.T) {
		f := newFixture(t)
		f.build(t, store.PublicScope("handbook"), "a", "b", "c", "d")

		r, err := f.searcher.Retrieve(ctx, "bob", "handbook", "question", 2)
		require.NoError(t, err)
		assert.Len(t, r.Results, 2)
	})

	t.Run("unknown document makes no embedding calls", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.searcher.Retrieve(ctx, "alice", "ghost.pdf", "What is the rent?", 5)
		assert.ErrorIs(t, err, ErrDocumentNotFound)
		assert.Equal(t, int32(0), f.embedder.calls.Load())
	})

	t.Run("uploaded but unindexed document", func(t *testing.T) {
		f := newFixture(t)
		f.upload(t, "alice", "lease.pdf")

		_, err := f.searcher.Retrieve(ctx, "alice", "lease.pdf", "rent", 5)
		assert.ErrorIs(t, err, ErrDocumentNotFound)
		assert.Contains(t, err.Error(), "index missing")
	})

	t.Run("empty query", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.searcher.Retrieve(ctx, "alice", "lease", "   ", 5)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("invalid k", func(t *testing.T) {
		f := newFixture(t)
		f.build(t, store.PublicScope("handbook"), "a")

		_, err := f.searcher.Retrieve(ctx, "bob", "handbook", "question", 0)
		assert.ErrorIs(t, err, store.ErrInvalidK)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "this is...", truncate("this is a long string", 10))

	// "Miete für" puts the two-byte ü across the cut.
	got := truncate("Miete für die Wohnung", 11)
	assert.True(t, utf8.ValidString(got), "%q", got)
	assert.Equal(t, "Miete f...", got)
	assert.LessOrEqual(t, len(got), 11)
}
