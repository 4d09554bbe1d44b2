// Package rag answers questions about a user's documents: resolve the
// document, retrieve passages, then let the agent answer from them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Ranjithnathk/ClauseWise/internal/agent"
	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/fs"
	"github.com/Ranjithnathk/ClauseWise/internal/llm"
	"github.com/Ranjithnathk/ClauseWise/internal/search"
	"github.com/Ranjithnathk/ClauseWise/internal/store"
)

// ErrInvalidRequest reports a chat request with missing fields.
var ErrInvalidRequest = errors.New("invalid request")

// ChatRequest is one chat turn. Messages holds the prior turns, alternating
// user and assistant, with the new question last.
type ChatRequest struct {
	Username string   `json:"username,omitempty"`
	Model    string   `json:"model_name"`
	Document string   `json:"pdf_name"`
	Messages []string `json:"messages"`
}

// Question returns the last message.
func (r ChatRequest) Question() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1]
}

// History returns every message before the question.
func (r ChatRequest) History() []string {
	if len(r.Messages) == 0 {
		return nil
	}
	return r.Messages[:len(r.Messages)-1]
}

// DocumentList groups the document names a user can ask about.
type DocumentList struct {
	Public []string `json:"public"`
	User   []string `json:"user"`
}

// ModelFactory creates the chat service for a model name.
type ModelFactory func(name string) (llm.Service, error)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithModelFactory replaces how chat services are created.
func WithModelFactory(f ModelFactory) Option {
	return func(p *Pipeline) {
		p.newModel = f
	}
}

// WithTools replaces the tools offered to the agent.
func WithTools(tools ...agent.Tool) Option {
	return func(p *Pipeline) {
		p.tools = tools
	}
}

// Pipeline runs chat turns against indexed documents.
type Pipeline struct {
	cfg      *config.Config
	searcher *search.Searcher
	newModel ModelFactory
	tools    []agent.Tool
}

// New creates a pipeline. The web search tool is offered when configured.
func New(cfg *config.Config, searcher *search.Searcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		searcher: searcher,
		newModel: func(name string) (llm.Service, error) {
			return llm.NewService(cfg, name)
		},
	}

	ws, err := agent.NewWebSearch(cfg.WebSearch)
	if err != nil {
		log.Debug("Web search tool disabled", "reason", err)
	} else {
		p.tools = []agent.Tool{ws}
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Chat answers the last message of req. It never returns an error: every
// outcome is an agent.FinalAnswer or an agent.Failure.
func (p *Pipeline) Chat(ctx context.Context, req ChatRequest) agent.Result {
	start := time.Now()

	if req.Model == "" {
		req.Model = p.cfg.LLM.DefaultModel
	}
	if err := validate(req); err != nil {
		return agent.Failure{Kind: agent.KindInvalidRequest, Message: err.Error()}
	}

	model, err := p.newModel(req.Model)
	if err != nil {
		log.Warn("Model unavailable", "model", req.Model, "error", err)
		return agent.Fail(err)
	}

	retrieval, err := p.searcher.Retrieve(ctx, req.Username, req.Document, req.Question(), p.cfg.Search.TopK)
	if err != nil {
		log.Warn("Retrieval failed", "user", req.Username, "document", req.Document, "error", err)
		return agent.Fail(err)
	}

	messages := llm.BuildMessages(llm.AssembleContext(retrieval.Passages()), req.History(), req.Question())

	a := agent.New(model, p.tools, agent.Options{
		MaxSteps: p.cfg.LLM.MaxSteps,
		Completion: llm.CompletionOptions{
			Temperature: p.cfg.LLM.Temperature,
			MaxTokens:   p.cfg.LLM.MaxTokens,
		},
	})
	result := a.Run(ctx, messages)

	switch r := result.(type) {
	case agent.FinalAnswer:
		log.Info("Answered question",
			"user", req.Username,
			"scope", retrieval.Scope,
			"model", model.ModelName(),
			"passages", len(retrieval.Results),
			"steps", r.Steps,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	case agent.Failure:
		log.Warn("Chat failed", "user", req.Username, "scope", retrieval.Scope, "kind", r.Kind, "error", r.Message)
	}
	return result
}

// Documents lists the public documents and the user's own documents with
// one of exts, or any supported extension when exts is empty.
func (p *Pipeline) Documents(user string, exts ...string) (DocumentList, error) {
	if len(exts) == 0 {
		exts = fs.SupportedExtensions()
	}

	resolver := p.searcher.Resolver()
	list := DocumentList{User: []string{}}

	public, err := fs.ListDocuments(resolver.DocumentDir(store.PublicOwner), exts...)
	if err != nil {
		return DocumentList{}, err
	}
	list.Public = public

	if user != "" && user != store.PublicOwner {
		if err := store.ValidateOwner(user); err != nil {
			return DocumentList{}, err
		}
		own, err := fs.ListDocuments(resolver.DocumentDir(user), exts...)
		if err != nil {
			return DocumentList{}, err
		}
		list.User = own
	}
	return list, nil
}

// Searcher returns the retrieval layer.
func (p *Pipeline) Searcher() *search.Searcher {
	return p.searcher
}

// TopK is the configured number of passages retrieved per question.
func (p *Pipeline) TopK() int {
	if p.cfg.Search.TopK <= 0 {
		return config.DefaultTopK
	}
	return p.cfg.Search.TopK
}

func validate(req ChatRequest) error {
	switch {
	case strings.TrimSpace(req.Model) == "":
		return fmt.Errorf("%w: model_name is required", ErrInvalidRequest)
	case strings.TrimSpace(req.Document) == "":
		return fmt.Errorf("%w: pdf_name is required", ErrInvalidRequest)
	case strings.TrimSpace(req.Question()) == "":
		return fmt.Errorf("%w: messages must end with a question", ErrInvalidRequest)
	}
	return nil
}
