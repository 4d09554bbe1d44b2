// Package eval scores chat answers against a reference question set.
package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/Ranjithnathk/ClauseWise/internal/agent"
	"github.com/Ranjithnathk/ClauseWise/internal/embeddings"
	"github.com/Ranjithnathk/ClauseWise/internal/rag"
)

// ErrEmptyDataset is returned when a dataset has no questions.
var ErrEmptyDataset = errors.New("evaluation dataset has no questions")

// QAPair is a question with its reference answer.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Item groups the questions asked of one document.
type Item struct {
	Document string   `json:"pdf_name"`
	Pairs    []QAPair `json:"qa_pairs"`
}

// Dataset is the contents of an evaluation file.
type Dataset []Item

// Questions returns the total number of questions.
func (d Dataset) Questions() int {
	n := 0
	for _, item := range d {
		n += len(item.Pairs)
	}
	return n
}

// LoadDataset reads a JSON evaluation file.
func LoadDataset(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}
	if ds.Questions() == 0 {
		return nil, ErrEmptyDataset
	}
	return ds, nil
}

// Asker answers chat requests. *rag.Pipeline satisfies it.
type Asker interface {
	Chat(ctx context.Context, req rag.ChatRequest) agent.Result
}

// Sample is the scored outcome of one question. Failed questions carry
// Error and no scores.
type Sample struct {
	Document  string  `json:"document"`
	Question  string  `json:"question"`
	Expected  string  `json:"expected"`
	Answer    string  `json:"answer,omitempty"`
	RougeL    float64 `json:"rouge_l"`
	Relevancy float64 `json:"relevancy"`
	Scored    bool    `json:"-"`
	Error     string  `json:"error,omitempty"`
}

// Report aggregates scores over answered questions.
type Report struct {
	Samples   []Sample `json:"samples"`
	Answered  int      `json:"answered"`
	Failed    int      `json:"failed"`
	RougeL    float64  `json:"rouge_l"`
	Relevancy float64  `json:"relevancy"`
}

// Runner asks every dataset question as one user with one model.
type Runner struct {
	asker    Asker
	embedder embeddings.Service
	user     string
	model    string
}

// NewRunner creates a runner. A nil embedder disables relevancy scoring.
func NewRunner(asker Asker, embedder embeddings.Service, user, model string) *Runner {
	return &Runner{asker: asker, embedder: embedder, user: user, model: model}
}

// Run asks each question in order. Failures are recorded and skipped; only
// context cancellation stops the run early.
func (r *Runner) Run(ctx context.Context, ds Dataset, onSample func(Sample)) (*Report, error) {
	report := &Report{Samples: make([]Sample, 0, ds.Questions())}
	var rougeSum, relSum float64
	relCount := 0

	for _, item := range ds {
		for _, qa := range item.Pairs {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			sample := r.ask(ctx, item.Document, qa)
			if sample.Error != "" {
				report.Failed++
				log.Warn("Evaluation question failed", "document", item.Document, "question", qa.Question, "error", sample.Error)
			} else {
				report.Answered++
				rougeSum += sample.RougeL
				if sample.Scored {
					relSum += sample.Relevancy
					relCount++
				}
			}

			report.Samples = append(report.Samples, sample)
			if onSample != nil {
				onSample(sample)
			}
		}
	}

	if report.Answered > 0 {
		report.RougeL = rougeSum / float64(report.Answered)
	}
	if relCount > 0 {
		report.Relevancy = relSum / float64(relCount)
	}
	return report, nil
}

func (r *Runner) ask(ctx context.Context, document string, qa QAPair) Sample {
	sample := Sample{Document: document, Question: qa.Question, Expected: qa.Answer}

	res := r.asker.Chat(ctx, rag.ChatRequest{
		Username: r.user,
		Model:    r.model,
		Document: document,
		Messages: []string{qa.Question},
	})

	switch res := res.(type) {
	case agent.FinalAnswer:
		sample.Answer = res.Text
	case agent.Failure:
		sample.Error = string(res.Kind) + ": " + res.Message
		return sample
	default:
		sample.Error = "no answer returned"
		return sample
	}

	sample.RougeL = RougeL(sample.Answer, qa.Answer)

	if r.embedder != nil {
		rel, err := r.relevancy(ctx, qa.Question, sample.Answer)
		if err != nil {
			log.Debug("Relevancy scoring failed", "question", qa.Question, "error", err)
		} else {
			sample.Relevancy = rel
			sample.Scored = true
		}
	}
	return sample
}

// relevancy is the cosine similarity of the question and answer embeddings.
func (r *Runner) relevancy(ctx context.Context, question, answer string) (float64, error) {
	q, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return 0, err
	}
	a, err := r.embedder.Embed(ctx, answer)
	if err != nil {
		return 0, err
	}
	return embeddings.CosineSimilarity(q, a), nil
}

// RougeL returns the ROUGE-L F1 score of a candidate against a reference,
// using the longest common subsequence of lowercased alphanumeric tokens.
func RougeL(candidate, reference string) float64 {
	c := tokenize(candidate)
	ref := tokenize(reference)
	if len(c) == 0 || len(ref) == 0 {
		return 0
	}

	lcs := lcsLength(c, ref)
	if lcs == 0 {
		return 0
	}
	precision := float64(lcs) / float64(len(c))
	recall := float64(lcs) / float64(len(ref))
	return 2 * precision * recall / (precision + recall)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// lcsLength keeps a single DP row.
func lcsLength(a, b []string) int {
	row := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0
		for j := 1; j <= len(b); j++ {
			cur := row[j]
			if a[i-1] == b[j-1] {
				row[j] = prev + 1
			} else if row[j-1] > row[j] {
				row[j] = row[j-1]
			}
			prev = cur
		}
	}
	return row[len(b)]
}
