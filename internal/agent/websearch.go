package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/llm"
)

// WebSearchToolName is the name the model calls the web search tool by.
const WebSearchToolName = "web_search"

// ErrWebSearchDisabled is returned when web search has no API key.
var ErrWebSearchDisabled = errors.New("web search is not configured")

// WebSearch queries the Tavily search API.
type WebSearch struct {
	apiKey     string
	baseURL    string
	maxResults int
	client     *http.Client
}

type tavilyRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// NewWebSearch creates the tool from configuration.
func NewWebSearch(cfg config.WebSearchConfig) (*WebSearch, error) {
	if !cfg.Enabled || cfg.APIKey == "" {
		return nil, ErrWebSearchDisabled
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultWebSearchURL
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = config.DefaultWebSearchMaxResults
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultWebSearchTimeout
	}

	return &WebSearch{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// Spec describes the tool to the model.
func (w *WebSearch) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WebSearchToolName,
		Description: "Search the web for current information. Input should be a search query.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
	}
}

// Call runs a search and renders the results as plain text.
func (w *WebSearch) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("query is required")
	}

	body, err := json.Marshal(tavilyRequest{Query: in.Query, MaxResults: w.maxResults})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	log.Debug("Searching the web", "query", in.Query, "max_results", w.maxResults)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("search returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Results) == 0 {
		return "No results found.", nil
	}

	var sb strings.Builder
	for i, r := range result.Results {
		if i >= w.maxResults {
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	return strings.TrimSpace(sb.String()), nil
}
