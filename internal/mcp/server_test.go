package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/embeddings"
	"github.com/Ranjithnathk/ClauseWise/internal/indexer"
	"github.com/Ranjithnathk/ClauseWise/internal/llm"
	"github.com/Ranjithnathk/ClauseWise/internal/rag"
	"github.com/Ranjithnathk/ClauseWise/internal/search"
	"github.com/Ranjithnathk/ClauseWise/internal/store"
)

type vowelEmbedder struct{}

func (vowelEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := []float32{0.1, 0.1, 0.1, 0.1, 0.1}
	for _, r := range strings.ToLower(text) {
		if i := strings.IndexRune("aeiou", r); i >= 0 {
			v[i]++
		}
	}
	return v, nil
}

func (e vowelEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text)
}

func (e vowelEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (vowelEmbedder) Dimensions() int               { return 5 }
func (vowelEmbedder) Provider() embeddings.Provider { return embeddings.ProviderOllama }
func (vowelEmbedder) ModelName() string             { return "vowels" }

type echoModel struct {
	lastContext string
}

func (m *echoModel) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec, opts llm.CompletionOptions) (*llm.Reply, error) {
	m.lastContext = messages[1].Content
	return &llm.Reply{Content: "Answer: " + messages[len(messages)-1].Content}, nil
}

func (m *echoModel) Family() llm.Family { return llm.FamilyOpenAI }
func (m *echoModel) ModelName() string  { return "echo" }

func newTestSession(t *testing.T, user string) (*mcp.ClientSession, *indexer.Indexer, *echoModel) {
	t.Helper()
	return newConfiguredSession(t, user, nil)
}

func newConfiguredSession(t *testing.T, user string, mutate func(*config.Config)) (*mcp.ClientSession, *indexer.Indexer, *echoModel) {
	t.Helper()

	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.UploadDir = filepath.Join(root, "uploaded_docs")
	cfg.Storage.IndexDir = filepath.Join(root, "indexes")
	if mutate != nil {
		mutate(cfg)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.IndexDir, store.MetricCosine, vowelEmbedder{})
	require.NoError(t, err)

	model := &echoModel{}
	pipeline := rag.New(cfg, search.New(search.NewResolver(cfg.Storage.UploadDir, st), st),
		rag.WithTools(),
		rag.WithModelFactory(func(name string) (llm.Service, error) {
			if _, err := llm.ResolveModel(name); err != nil {
				return nil, err
			}
			return model, nil
		}),
	)

	srv, err := NewServer(Config{Pipeline: pipeline, User: user, IdentityHeader: "X-User", Version: "test"})
	require.NoError(t, err)

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	_, err = srv.Server().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	return cs, indexer.New(st, cfg), model
}

func callText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewServerRequiresPipeline(t *testing.T) {
	_, err := NewServer(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline is required")
}

func TestListTools(t *testing.T) {
	cs, _, _ := newTestSession(t, "alice")

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"ask_document", "search_document", "list_documents"}, names)
}

func TestAskDocument(t *testing.T) {
	cs, idx, model := newTestSession(t, "alice")
	ctx := context.Background()

	_, err := idx.Ingest(ctx, "alice", "lease.txt", []byte("Rent is due on the first of every month."), false)
	require.NoError(t, err)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "ask_document",
		Arguments: map[string]any{"document": "lease.pdf", "question": "When is rent due?", "model": "gpt-4o"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, callText(t, res))

	var out AskOutput
	require.NoError(t, json.Unmarshal([]byte(callText(t, res)), &out))
	assert.Equal(t, "Answer: When is rent due?", out.Answer)
	assert.Equal(t, 1, out.Steps)
	assert.Contains(t, model.lastContext, "Rent is due on the first of every month.")
}

func TestAskDocumentFailures(t *testing.T) {
	cs, _, _ := newTestSession(t, "alice")
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "ask_document",
		Arguments: map[string]any{"document": "missing", "question": "Anything?", "model": "gpt-4o"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(callText(t, res), "document_not_found: "))

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "ask_document",
		Arguments: map[string]any{"document": "missing", "question": "Anything?", "model": "foo-model"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(callText(t, res), "unsupported_model: "))
}

func TestSearchDocument(t *testing.T) {
	cs, idx, _ := newTestSession(t, "alice")
	ctx := context.Background()

	_, err := idx.Ingest(ctx, store.PublicOwner, "faq.md", []byte("Office hours are nine to five."), false)
	require.NoError(t, err)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_document",
		Arguments: map[string]any{"document": "faq", "query": "hours", "top_k": 3},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, callText(t, res))

	var out SearchOutput
	require.NoError(t, json.Unmarshal([]byte(callText(t, res)), &out))
	assert.Equal(t, "public/faq", out.Scope)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "Office hours are nine to five.", out.Passages[0].Content)
	assert.Equal(t, "faq.md", out.Passages[0].Source)
}

func TestSearchDocumentDefaultsToConfiguredTopK(t *testing.T) {
	cs, idx, _ := newConfiguredSession(t, "alice", func(cfg *config.Config) {
		cfg.Chunking.ChunkSize = 40
		cfg.Chunking.ChunkOverlap = 0
		cfg.Search.TopK = 2
	})
	ctx := context.Background()

	text := strings.Repeat("Office hours are nine to five each day. ", 6)
	_, err := idx.Ingest(ctx, store.PublicOwner, "faq.md", []byte(text), false)
	require.NoError(t, err)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_document",
		Arguments: map[string]any{"document": "faq", "query": "hours"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, callText(t, res))

	var out SearchOutput
	require.NoError(t, json.Unmarshal([]byte(callText(t, res)), &out))
	assert.Equal(t, 2, out.Count)
}

func TestListDocuments(t *testing.T) {
	cs, idx, _ := newTestSession(t, "alice")
	ctx := context.Background()

	_, err := idx.Ingest(ctx, store.PublicOwner, "faq.md", []byte("Office hours."), false)
	require.NoError(t, err)
	_, err = idx.Ingest(ctx, "alice", "lease.txt", []byte("Rent."), false)
	require.NoError(t, err)
	_, err = idx.Ingest(ctx, "bob", "offer.txt", []byte("Salary."), false)
	require.NoError(t, err)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "list_documents", Arguments: map[string]any{}})
	require.NoError(t, err)
	require.False(t, res.IsError, callText(t, res))

	var out rag.DocumentList
	require.NoError(t, json.Unmarshal([]byte(callText(t, res)), &out))
	assert.Equal(t, []string{"faq.md"}, out.Public)
	assert.Equal(t, []string{"lease.txt"}, out.User)
}

func TestUserFromHeader(t *testing.T) {
	s := &Server{config: Config{User: "local", IdentityHeader: "X-User"}}

	assert.Equal(t, "local", s.user(nil))
	assert.Equal(t, "local", s.user(&mcp.RequestExtra{}))

	h := http.Header{}
	h.Set("X-User", "alice")
	assert.Equal(t, "alice", s.user(&mcp.RequestExtra{Header: h}))
}
