package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

const (
	ollamaBatchSize = 32
	ollamaKeepAlive = "10m"
)

// prefixPair holds the instruction strings some embedding models expect in
// front of stored passages and of search queries.
type prefixPair struct {
	passage string
	query   string
}

var modelPrefixes = map[string]prefixPair{
	"nomic-embed-text":  {passage: "search_document: ", query: "search_query: "},
	"mxbai-embed-large": {query: "Represent this sentence for searching relevant passages: "},
}

// OllamaService embeds text through a local Ollama server.
type OllamaService struct {
	baseURL  string
	model    string
	prefixes prefixPair
	client   *http.Client

	// dims starts from the known model table and is replaced by the length
	// of the first vector the server returns.
	dims atomic.Int64
}

type ollamaEmbedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
	Truncate  bool     `json:"truncate,omitempty"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaService creates an Ollama embedding service. An empty baseURL
// means the local default and a non-positive timeout means 60 seconds.
func NewOllamaService(baseURL, model string, timeout time.Duration) (*OllamaService, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	s := &OllamaService{
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		prefixes: modelPrefixes[model],
		client:   &http.Client{Timeout: timeout},
	}

	dims := GetModelDimensions(model)
	if dims == 0 {
		dims = 768
		log.Debug("Model not in dimension table, assuming until first response", "model", model, "dimensions", dims)
	}
	s.dims.Store(int64(dims))
	return s, nil
}

func (s *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	return first(s.request(ctx, []string{s.applyPrefix(text, false)}))
}

func (s *OllamaService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return first(s.request(ctx, []string{s.applyPrefix(text, true)}))
}

func (s *OllamaService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, len(texts))
	for i, text := range texts {
		inputs[i] = s.applyPrefix(text, false)
	}
	return inBatches(ctx, inputs, ollamaBatchSize, s.request)
}

func (s *OllamaService) Dimensions() int    { return int(s.dims.Load()) }
func (s *OllamaService) Provider() Provider { return ProviderOllama }
func (s *OllamaService) ModelName() string  { return s.model }

func (s *OllamaService) applyPrefix(text string, query bool) string {
	if query {
		return s.prefixes.query + text
	}
	return s.prefixes.passage + text
}

// request posts one batch to /api/embed.
func (s *OllamaService) request(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(ollamaEmbedRequest{
		Model:     s.model,
		Input:     inputs,
		KeepAlive: ollamaKeepAlive,
		Truncate:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, unavailable(ProviderOllama, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, unavailable(ProviderOllama,
			fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, unavailable(ProviderOllama, fmt.Errorf("failed to decode response: %w", err))
	}
	if err := checkBatch(ProviderOllama, len(inputs), out.Embeddings); err != nil {
		return nil, err
	}

	if got := int64(len(out.Embeddings[0])); s.dims.Swap(got) != got {
		log.Debug("Embedding dimensions from server", "model", s.model, "dimensions", got)
	}
	log.Debug("Ollama embeddings", "model", s.model, "inputs", len(inputs), "took", time.Since(started))
	return out.Embeddings, nil
}
