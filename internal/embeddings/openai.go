package embeddings

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openAIBatchSize stays well under the API's per-request input limit.
const openAIBatchSize = 512

// OpenAIService embeds text through the OpenAI embeddings API or any
// compatible endpoint set by baseURL.
type OpenAIService struct {
	client  openai.Client
	model   string
	timeout time.Duration

	dims int
	// reduced is set when the caller asked for a vector length other than
	// the model's native one; it is sent with every request.
	reduced bool
}

// NewOpenAIService creates an OpenAI embedding service. A zero dimensions
// uses the model's native length.
func NewOpenAIService(apiKey, model, baseURL string, dimensions int, timeout time.Duration) (*OpenAIService, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	native := GetModelDimensions(model)
	s := &OpenAIService{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
		dims:    native,
	}
	switch {
	case dimensions > 0 && dimensions != native:
		s.dims, s.reduced = dimensions, true
	case native == 0:
		s.dims = 1536
		log.Debug("Model not in dimension table, assuming default", "model", model, "dimensions", s.dims)
	}
	return s, nil
}

func (s *OpenAIService) Embed(ctx context.Context, text string) ([]float32, error) {
	return first(s.request(ctx, []string{text}))
}

// EmbedQuery is Embed: OpenAI models take no task prefix.
func (s *OpenAIService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.Embed(ctx, text)
}

func (s *OpenAIService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return inBatches(ctx, texts, openAIBatchSize, s.request)
}

func (s *OpenAIService) Dimensions() int    { return s.dims }
func (s *OpenAIService) Provider() Provider { return ProviderOpenAI }
func (s *OpenAIService) ModelName() string  { return s.model }

// request sends one batch; the API tags each vector with its input index.
func (s *OpenAIService) request(ctx context.Context, inputs []string) ([][]float32, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	params := openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(s.model),
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if s.reduced {
		params.Dimensions = openai.Int(int64(s.dims))
	}

	started := time.Now()
	resp, err := s.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, unavailable(ProviderOpenAI, err)
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(vectors) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[d.Index] = vec
	}
	if err := checkBatch(ProviderOpenAI, len(inputs), vectors); err != nil {
		return nil, err
	}

	log.Debug("OpenAI embeddings", "model", s.model, "inputs", len(inputs), "tokens", resp.Usage.TotalTokens, "took", time.Since(started))
	return vectors, nil
}
