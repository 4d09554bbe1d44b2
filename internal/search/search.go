// Package search resolves a requested document to an index scope and
// retrieves the passages nearest to a question.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/Ranjithnathk/ClauseWise/internal/store"
)

// ErrEmptyQuery is returned for a blank question.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Retrieval is the outcome of a single retrieval.
type Retrieval struct {
	Scope   store.Scope    `json:"scope"`
	Results []store.Result `json:"results"`
}

// Passages returns the text of each result in rank order.
func (r *Retrieval) Passages() []string {
	passages := make([]string, len(r.Results))
	for i, res := range r.Results {
		passages[i] = res.Content
	}
	return passages
}

// Searcher retrieves passages for a user's question about a document.
type Searcher struct {
	resolver *Resolver
	store    store.Store
}

// New creates a new Searcher.
func New(resolver *Resolver, st store.Store) *Searcher {
	return &Searcher{
		resolver: resolver,
		store:    st,
	}
}

// Resolver returns the resolver used by the searcher.
func (s *Searcher) Resolver() *Resolver {
	return s.resolver
}

// Retrieve resolves the document for user and returns up to k passages
// nearest to query.
func (s *Searcher) Retrieve(ctx context.Context, user, document, query string, k int) (*Retrieval, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	scope, err := s.resolver.Resolve(user, document)
	if err != nil {
		return nil, err
	}

	idx, err := s.store.Load(ctx, scope)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: index missing for %s", ErrDocumentNotFound, scope)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}
	defer idx.Close()

	log.Debug("Searching index", "scope", scope, "query", truncate(query, 50), "k", k)
	results, err := idx.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	log.Debug("Search complete", "scope", scope, "results", len(results))
	return &Retrieval{Scope: scope, Results: results}, nil
}

// truncate shortens a string for display to at most maxLen bytes, cutting
// on a rune boundary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := max(maxLen-3, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
