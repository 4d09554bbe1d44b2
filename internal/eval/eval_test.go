package eval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ranjithnathk/ClauseWise/internal/agent"
	"github.com/Ranjithnathk/ClauseWise/internal/embeddings"
	"github.com/Ranjithnathk/ClauseWise/internal/rag"
)

type cannedAsker struct {
	answers  map[string]string
	requests []rag.ChatRequest
}

func (a *cannedAsker) Chat(ctx context.Context, req rag.ChatRequest) agent.Result {
	a.requests = append(a.requests, req)
	answer, ok := a.answers[req.Question()]
	if !ok {
		return agent.Failure{Kind: agent.KindDocumentNotFound, Message: "Document not found"}
	}
	return agent.FinalAnswer{Text: answer, Steps: 1}
}

// wordEmbedder maps texts to vectors by whether they mention rent.
type wordEmbedder struct {
	fail bool
}

func (e wordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedder down")
	}
	for _, tok := range tokenize(text) {
		if tok == "rent" {
			return []float32{1, 0}, nil
		}
	}
	return []float32{0, 1}, nil
}

func (e wordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text)
}

func (e wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (wordEmbedder) Dimensions() int               { return 2 }
func (wordEmbedder) Provider() embeddings.Provider { return embeddings.ProviderOllama }
func (wordEmbedder) ModelName() string             { return "words" }

func TestRougeL(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		reference string
		want      float64
	}{
		{"identical", "Rent is due monthly.", "rent is DUE monthly", 1},
		{"one substitution", "the cat sat on the mat", "the cat is on the mat", 5.0 / 6.0},
		{"disjoint", "alpha beta", "gamma delta", 0},
		{"empty candidate", "", "rent is due", 0},
		{"empty reference", "rent is due", "  ", 0},
		// LCS 2 of 4 candidate tokens and 2 reference tokens
		{"subset", "rent is due monthly", "rent monthly", 2 * 0.5 * 1 / 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RougeL(tt.candidate, tt.reference), 1e-9)
		})
	}
}

func TestLoadDataset(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "evaluation_data.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"pdf_name": "lease", "qa_pairs": [
			{"question": "When is rent due?", "answer": "On the first."},
			{"question": "Who pays utilities?", "answer": "The tenant."}
		]},
		{"pdf_name": "nda", "qa_pairs": [{"question": "How long?", "answer": "Two years."}]}
	]`), 0o644))

	ds, err := LoadDataset(path)
	require.NoError(t, err)
	assert.Len(t, ds, 2)
	assert.Equal(t, 3, ds.Questions())
	assert.Equal(t, "lease", ds[0].Document)
	assert.Equal(t, "The tenant.", ds[0].Pairs[1].Answer)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`[{"pdf_name": "lease", "qa_pairs": []}]`), 0o644))
	_, err = LoadDataset(empty)
	assert.ErrorIs(t, err, ErrEmptyDataset)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{`), 0o644))
	_, err = LoadDataset(broken)
	assert.Error(t, err)

	_, err = LoadDataset(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestRunSkipsFailures(t *testing.T) {
	asker := &cannedAsker{answers: map[string]string{
		"When is rent due?":   "Rent is due on the first",
		"Who pays utilities?": "The landlord pays",
	}}
	ds := Dataset{
		{Document: "lease", Pairs: []QAPair{
			{Question: "When is rent due?", Answer: "Rent is due on the first"},
			{Question: "Who pays utilities?", Answer: "The tenant pays"},
		}},
		{Document: "nda", Pairs: []QAPair{{Question: "How long?", Answer: "Two years"}}},
	}

	var seen []Sample
	report, err := NewRunner(asker, wordEmbedder{}, "alice", "gpt-4o").Run(context.Background(), ds, func(s Sample) {
		seen = append(seen, s)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Answered)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, report.Samples, 3)
	assert.Len(t, seen, 3)

	assert.Equal(t, "document_not_found: Document not found", report.Samples[2].Error)

	// Exact answer scores 1, "the landlord pays" vs "the tenant pays" scores 2/3
	assert.InDelta(t, (1+2.0/3.0)/2, report.RougeL, 1e-9)
	// The rent question and answer agree, the utilities pair are both non-rent
	assert.InDelta(t, 1.0, report.Relevancy, 1e-9)

	require.Len(t, asker.requests, 3)
	assert.Equal(t, rag.ChatRequest{
		Username: "alice",
		Model:    "gpt-4o",
		Document: "lease",
		Messages: []string{"When is rent due?"},
	}, asker.requests[0])
}

func TestRunWithoutRelevancy(t *testing.T) {
	asker := &cannedAsker{answers: map[string]string{"When is rent due?": "Monthly"}}
	ds := Dataset{{Document: "lease", Pairs: []QAPair{{Question: "When is rent due?", Answer: "Monthly"}}}}

	report, err := NewRunner(asker, nil, "alice", "").Run(context.Background(), ds, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.RougeL)
	assert.Zero(t, report.Relevancy)

	report, err = NewRunner(asker, wordEmbedder{fail: true}, "alice", "").Run(context.Background(), ds, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Answered)
	assert.False(t, report.Samples[0].Scored)
	assert.Zero(t, report.Relevancy)
}

func TestRunStopsOnCancel(t *testing.T) {
	asker := &cannedAsker{answers: map[string]string{}}
	ds := Dataset{{Document: "lease", Pairs: []QAPair{{Question: "a"}, {Question: "b"}}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewRunner(asker, nil, "alice", "").Run(ctx, ds, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Samples)
	assert.Empty(t, asker.requests)
}
