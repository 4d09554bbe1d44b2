package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

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

type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, float32(len(text)%5) + 1, 1}, nil
}

func (e constEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text)
}

func (e constEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (constEmbedder) Dimensions() int               { return 3 }
func (constEmbedder) Provider() embeddings.Provider { return embeddings.ProviderOllama }
func (constEmbedder) ModelName() string             { return "const" }

type fixedModel struct{}

func (fixedModel) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec, opts llm.CompletionOptions) (*llm.Reply, error) {
	return &llm.Reply{Content: "Rent is due on the first."}, nil
}

func (fixedModel) Family() llm.Family { return llm.FamilyOpenAI }
func (fixedModel) ModelName() string  { return "fixed" }

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *config.Config) {
	t.Helper()

	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.UploadDir = filepath.Join(root, "uploaded_docs")
	cfg.Storage.IndexDir = filepath.Join(root, "indexes")
	cfg.Server.Admins = []string{"admin"}
	cfg.Server.ChatRatePerMin = 0
	if mutate != nil {
		mutate(cfg)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.IndexDir, store.MetricCosine, constEmbedder{})
	require.NoError(t, err)

	pipeline := rag.New(cfg, search.New(search.NewResolver(cfg.Storage.UploadDir, st), st),
		rag.WithTools(),
		rag.WithModelFactory(func(name string) (llm.Service, error) {
			if _, err := llm.ResolveModel(name); err != nil {
				return nil, err
			}
			return fixedModel{}, nil
		}),
	)

	return New(cfg, pipeline, indexer.New(st, cfg), nil), cfg
}

func uploadRequest(t *testing.T, user, filename, content string, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if user != "" {
		req.Header.Set("X-User", user)
	}
	return req
}

func chatRequest(user string, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", user)
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestIdentityRequired(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/available_pdfs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "X-User")

	req := httptest.NewRequest(http.MethodGet, "/available_pdfs", nil)
	req.Header.Set("X-User", "..")
	rec = serve(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadAndChat(t *testing.T) {
	s, cfg := newTestServer(t, nil)

	rec := serve(s, uploadRequest(t, "alice", "lease.txt", "Rent is due on the first of every month.", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, UploadMessage, body["message"])
	assert.Equal(t, "alice/lease", body["scope"])
	assert.Equal(t, float64(1), body["chunks"])
	assert.FileExists(t, filepath.Join(cfg.Storage.UploadDir, "alice", "lease.txt"))

	rec = serve(s, chatRequest("alice", `{"model_name":"gpt-4o","pdf_name":"lease.pdf","messages":["When is rent due?"]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, "Rent is due on the first.", body["answer"])
	assert.NotContains(t, body, "error")

	rec = serve(s, chatRequest("bob", `{"model_name":"gpt-4o","pdf_name":"lease.pdf","messages":["When is rent due?"]}`))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "document_not_found", body["kind"])
	assert.Contains(t, body["error"], "document not found")
}

func TestUploadErrors(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) { c.Storage.MaxFileSize = 64 })

	tests := []struct {
		name     string
		filename string
		content  string
		fields   map[string]string
		status   int
	}{
		{"unsupported format", "sheet.xlsx", "x", nil, http.StatusBadRequest},
		{"too large", "big.txt", strings.Repeat("x", 100), nil, http.StatusRequestEntityTooLarge},
		{"no text", "blank.txt", "   ", nil, http.StatusUnprocessableEntity},
		{"public by non-admin", "faq.md", "Hours.", map[string]string{"public": "true"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, uploadRequest(t, "alice", tt.filename, tt.content, tt.fields))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}

	t.Run("missing file field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("nope"))
		req.Header.Set("X-User", "alice")
		rec := serve(s, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAdminPublicUpload(t *testing.T) {
	s, cfg := newTestServer(t, nil)

	rec := serve(s, uploadRequest(t, "admin", "handbook.pdf.txt", "Office hours.", map[string]string{"public": "true"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "public/handbook.pdf", decode(t, rec)["scope"])
	assert.FileExists(t, filepath.Join(cfg.Storage.UploadDir, "handbook.pdf.txt"))
}

func TestUploadSkipsUnchanged(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := serve(s, uploadRequest(t, "alice", "lease.txt", "Rent.", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, uploadRequest(t, "alice", "lease.txt", "Rent.", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["skipped"])

	rec = serve(s, uploadRequest(t, "alice", "lease.txt", "Rent.", map[string]string{"force": "true"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decode(t, rec), "skipped")
}

func TestChatBadRequests(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := serve(s, chatRequest("alice", `{not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(s, chatRequest("alice", `{"model_name":"gpt-4o","pdf_name":"lease","messages":[]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode(t, rec)["kind"])

	rec = serve(s, chatRequest("alice", `{"model_name":"foo-model","pdf_name":"lease","messages":["q"]}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unsupported_model", decode(t, rec)["kind"])
}

func TestChatRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Server.ChatRatePerMin = 1
		c.Server.ChatBurst = 1
	})

	body := `{"model_name":"gpt-4o","pdf_name":"lease","messages":["q"]}`
	rec := serve(s, chatRequest("alice", body))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, chatRequest("alice", body))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Buckets are per user
	rec = serve(s, chatRequest("bob", body))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListing(t *testing.T) {
	s, cfg := newTestServer(t, nil)
	up := cfg.Storage.UploadDir
	require.NoError(t, os.MkdirAll(filepath.Join(up, "alice"), 0o755))
	for _, p := range []string{"handbook.pdf", "faq.md", filepath.Join("alice", "lease.pdf")} {
		require.NoError(t, os.WriteFile(filepath.Join(up, p), []byte("x"), 0o644))
	}

	req := httptest.NewRequest(http.MethodGet, "/available_pdfs", nil)
	req.Header.Set("X-User", "alice")
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list rag.DocumentList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []string{"handbook.pdf"}, list.Public)
	assert.Equal(t, []string{"lease.pdf"}, list.User)

	req = httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("X-User", "bob")
	rec = serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []string{"faq.md", "handbook.pdf"}, list.Public)
	assert.Empty(t, list.User)
}

func TestDeleteDocument(t *testing.T) {
	s, cfg := newTestServer(t, nil)

	rec := serve(s, uploadRequest(t, "admin", "lease.txt", "Public lease.", map[string]string{"public": "true"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = serve(s, uploadRequest(t, "alice", "lease.txt", "Rent.", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice/lease", decode(t, rec)["scope"])

	req := httptest.NewRequest(http.MethodDelete, "/documents/lease.txt", nil)
	req.Header.Set("X-User", "alice")
	rec = serve(s, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.NoFileExists(t, filepath.Join(cfg.Storage.UploadDir, "alice", "lease.txt"))
	assert.FileExists(t, filepath.Join(cfg.Storage.UploadDir, "lease.txt"))

	// The public document of the same name answers again
	rec = serve(s, chatRequest("alice", `{"model_name":"gpt-4o","pdf_name":"lease","messages":["q"]}`))
	assert.Equal(t, "Rent is due on the first.", decode(t, rec)["answer"])

	// Deleting again is harmless
	req = httptest.NewRequest(http.MethodDelete, "/documents/lease", nil)
	req.Header.Set("X-User", "alice")
	assert.Equal(t, http.StatusNoContent, serve(s, req).Code)
}

func TestPublicIdentityIsReserved(t *testing.T) {
	s, cfg := newTestServer(t, nil)

	rec := serve(s, uploadRequest(t, "admin", "handbook.txt", "Office hours.", map[string]string{"public": "true"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	handbook := filepath.Join(cfg.Storage.UploadDir, "handbook.txt")

	rec = serve(s, uploadRequest(t, store.PublicOwner, "handbook.txt", "Overwritten.", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodDelete, "/documents/handbook", nil)
	req.Header.Set("X-User", store.PublicOwner)
	assert.Equal(t, http.StatusForbidden, serve(s, req).Code)

	content, err := os.ReadFile(handbook)
	require.NoError(t, err)
	assert.Equal(t, "Office hours.", string(content))

	req = httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("X-User", "bob")
	rec = serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var list rag.DocumentList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []string{"handbook.txt"}, list.Public)
}

func TestUserLimiter(t *testing.T) {
	assert.True(t, newUserLimiter(0, 0).Allow("anyone"))

	l := newUserLimiter(60, 2)
	assert.True(t, l.Allow("alice"))
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))
	assert.True(t, l.Allow("bob"))
}
