package mcp

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Ranjithnathk/ClauseWise/internal/agent"
	"github.com/Ranjithnathk/ClauseWise/internal/rag"
)

var (
	askToolName    = "ask_document"
	askDescription = "Answer a question using only the content of one uploaded document. " +
		"The user's own copy of the document is preferred over the public one."

	searchToolName    = "search_document"
	searchDescription = "Return the passages of one uploaded document that are most relevant to a query, without generating an answer."

	listToolName    = "list_documents"
	listDescription = "List the public documents and the current user's documents."
)

// AskInput is the input of the ask_document tool.
type AskInput struct {
	Document string   `json:"document" jsonschema:"document file name, with or without extension"`
	Question string   `json:"question" jsonschema:"the question to answer"`
	Model    string   `json:"model,omitempty" jsonschema:"model name, for example gpt-4o or gemini-1.5-flash"`
	History  []string `json:"history,omitempty" jsonschema:"prior turns alternating user and assistant"`
}

// AskOutput is the answer of the ask_document tool.
type AskOutput struct {
	Answer    string `json:"answer"`
	Steps     int    `json:"steps"`
	Exhausted bool   `json:"exhausted,omitempty"`
}

// SearchInput is the input of the search_document tool.
type SearchInput struct {
	Document string `json:"document" jsonschema:"document file name, with or without extension"`
	Query    string `json:"query" jsonschema:"the search query text"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"number of passages to return (default: search.top_k)"`
}

// Passage is one retrieved passage.
type Passage struct {
	Seq     int     `json:"seq"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
	Page    int     `json:"page,omitempty"`
	Content string  `json:"content"`
}

// SearchOutput is the result of the search_document tool.
type SearchOutput struct {
	Scope    string    `json:"scope"`
	Query    string    `json:"query"`
	Passages []Passage `json:"passages"`
	Count    int       `json:"count"`
}

// ListInput takes no arguments.
type ListInput struct{}

func (s *Server) handleAsk(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	user := s.user(req.Extra)
	log.Debug("MCP ask request", "user", user, "document", input.Document)

	messages := append(append([]string{}, input.History...), input.Question)
	result := s.config.Pipeline.Chat(ctx, rag.ChatRequest{
		Username: user,
		Model:    input.Model,
		Document: input.Document,
		Messages: messages,
	})

	switch r := result.(type) {
	case agent.FinalAnswer:
		return nil, AskOutput{Answer: r.Text, Steps: r.Steps, Exhausted: r.Exhausted}, nil
	case agent.Failure:
		return errorResult(fmt.Sprintf("%s: %s", r.Kind, r.Message)), AskOutput{}, nil
	default:
		return errorResult(fmt.Sprintf("unexpected result %T", result)), AskOutput{}, nil
	}
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	user := s.user(req.Extra)

	topK := input.TopK
	if topK <= 0 {
		topK = s.config.Pipeline.TopK()
	}

	log.Debug("MCP search request", "user", user, "document", input.Document, "top_k", topK)

	retrieval, err := s.config.Pipeline.Searcher().Retrieve(ctx, user, input.Document, input.Query, topK)
	if err != nil {
		return errorResult(fmt.Sprintf("%s: %v", agent.Classify(err), err)), SearchOutput{Passages: []Passage{}}, nil
	}

	out := SearchOutput{
		Scope:    retrieval.Scope.String(),
		Query:    input.Query,
		Passages: make([]Passage, 0, len(retrieval.Results)),
	}
	for _, r := range retrieval.Results {
		out.Passages = append(out.Passages, Passage{
			Seq:     r.Passage.Seq,
			Score:   r.Score,
			Source:  r.Passage.Source,
			Page:    r.Passage.Page,
			Content: r.Passage.Content,
		})
	}
	out.Count = len(out.Passages)
	return nil, out, nil
}

func (s *Server) handleList(ctx context.Context, req *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, rag.DocumentList, error) {
	list, err := s.config.Pipeline.Documents(s.user(req.Extra))
	if err != nil {
		return errorResult(err.Error()), rag.DocumentList{Public: []string{}, User: []string{}}, nil
	}
	return nil, list, nil
}
