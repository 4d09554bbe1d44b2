package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const defaultAnthropicURL = "https://api.anthropic.com/v1"

// AnthropicService implements the chat service using Anthropic Claude.
type AnthropicService struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// anthropicRequest is the request body for the Anthropic API.
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// anthropicResponse is the response from the Anthropic API.
type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
}

// NewAnthropicService creates a new Anthropic chat service.
func NewAnthropicService(apiKey, model, baseURL string, timeout time.Duration) (*AnthropicService, error) {
	if apiKey == "" {
		return nil, missingKey(FamilyAnthropic)
	}
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}

	return &AnthropicService{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  newHTTPClient(timeout),
	}, nil
}

// Chat sends the conversation to the messages endpoint.
func (s *AnthropicService) Chat(ctx context.Context, messages []Message, tools []ToolSpec, opts CompletionOptions) (*Reply, error) {
	log.Debug("Requesting completion from Anthropic", "model", s.model, "messages", len(messages))

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultCompletionOptions().MaxTokens
	}

	req := anthropicRequest{
		Model:       s.model,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	}

	// Extract system messages; tool results travel as user turns
	var system []string
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			var blocks []anthropicContent
			if m.Content != "" {
				blocks = append(blocks, anthropicContent{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicContent{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments})
			}
			req.Messages = appendAnthropicMessage(req.Messages, "assistant", blocks)
		case RoleTool:
			req.Messages = appendAnthropicMessage(req.Messages, "user", []anthropicContent{{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			}})
		default:
			req.Messages = appendAnthropicMessage(req.Messages, "user", []anthropicContent{{Type: "text", Text: m.Content}})
		}
	}
	req.System = strings.Join(system, "\n\n")

	for _, t := range tools {
		req.Tools = append(req.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}

	headers := map[string]string{
		"x-api-key":         s.apiKey,
		"anthropic-version": "2023-06-01",
	}

	var resp anthropicResponse
	if err := postJSON(ctx, s.client, FamilyAnthropic, s.baseURL+"/messages", headers, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Content) == 0 {
		return nil, unavailable(FamilyAnthropic, fmt.Errorf("no content in response"))
	}

	reply := &Reply{}
	var text []string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			args := block.Input
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	reply.Content = strings.Join(text, "")

	return reply, nil
}

// Family returns the provider family.
func (s *AnthropicService) Family() Family {
	return FamilyAnthropic
}

// ModelName returns the model name.
func (s *AnthropicService) ModelName() string {
	return s.model
}

// appendAnthropicMessage merges consecutive turns of the same role, which
// the API requires to alternate.
func appendAnthropicMessage(messages []anthropicMessage, role string, blocks []anthropicContent) []anthropicMessage {
	if len(blocks) == 0 {
		return messages
	}
	if n := len(messages); n > 0 && messages[n-1].Role == role {
		messages[n-1].Content = append(messages[n-1].Content, blocks...)
		return messages
	}
	return append(messages, anthropicMessage{Role: role, Content: blocks})
}
