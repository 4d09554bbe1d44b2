package embeddings

import (
	"context"

	chromem "github.com/philippgille/chromem-go"
)

// ToChromemFunc converts a Service into a chromem.EmbeddingFunc.
// chromem-go expects a function that embeds a single text at a time.
func ToChromemFunc(s Service) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.Embed(ctx, text)
	}
}
