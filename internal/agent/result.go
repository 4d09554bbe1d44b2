package agent

import (
	"context"
	"errors"

	"github.com/Ranjithnathk/ClauseWise/internal/embeddings"
	"github.com/Ranjithnathk/ClauseWise/internal/llm"
	"github.com/Ranjithnathk/ClauseWise/internal/search"
	"github.com/Ranjithnathk/ClauseWise/internal/store"
)

// Kind classifies a failed chat turn.
type Kind string

const (
	KindUnsupportedModel     Kind = "unsupported_model"
	KindDocumentNotFound     Kind = "document_not_found"
	KindEmbeddingUnavailable Kind = "embedding_unavailable"
	KindModelUnavailable     Kind = "model_unavailable"
	KindInvalidRequest       Kind = "invalid_request"
	KindInternal             Kind = "internal"
)

// Result is the outcome of a chat turn: a FinalAnswer or a Failure.
type Result interface {
	isResult()
}

// NoAnswerText is the answer of an exhausted turn in which the model never
// produced any text. It takes the step budget.
const NoAnswerText = "No answer was reached within %d steps."

// FinalAnswer is a completed turn. Exhausted is set when the step budget ran
// out; Text is then the last partial output, or NoAnswerText if there was none.
type FinalAnswer struct {
	Text      string `json:"answer"`
	Steps     int    `json:"steps"`
	Exhausted bool   `json:"exhausted,omitempty"`
}

// Failure is a turn that produced no answer.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"error"`
}

func (FinalAnswer) isResult() {}
func (Failure) isResult()     {}

// Error implements error so a Failure can be returned where one is expected.
func (f Failure) Error() string {
	return f.Message
}

// Fail converts an error into a Failure, classifying it by the sentinel it wraps.
func Fail(err error) Failure {
	return Failure{Kind: Classify(err), Message: err.Error()}
}

// Classify maps an error to its failure kind.
func Classify(err error) Kind {
	var f Failure
	switch {
	case errors.As(err, &f):
		return f.Kind
	case errors.Is(err, llm.ErrUnsupportedModel):
		return KindUnsupportedModel
	case errors.Is(err, search.ErrDocumentNotFound), errors.Is(err, store.ErrNotFound):
		return KindDocumentNotFound
	case errors.Is(err, embeddings.ErrUnavailable):
		return KindEmbeddingUnavailable
	case errors.Is(err, llm.ErrModelUnavailable), errors.Is(err, llm.ErrMissingAPIKey),
		errors.Is(err, context.DeadlineExceeded):
		return KindModelUnavailable
	case errors.Is(err, search.ErrEmptyQuery), errors.Is(err, store.ErrInvalidK), errors.Is(err, store.ErrInvalidScope):
		return KindInvalidRequest
	default:
		return KindInternal
	}
}
