// Package llm dispatches model names to chat providers and speaks each
// provider's tool-calling protocol.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
)

// Family is a closed set of supported model providers.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyGoogle    Family = "google"
	FamilyGroq      Family = "groq"
	FamilyAnthropic Family = "anthropic"
	FamilyOllama    Family = "ollama"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

var (
	// ErrUnsupportedModel matches every UnsupportedModelError.
	ErrUnsupportedModel = errors.New("unsupported model")

	// ErrModelUnavailable marks transport, auth and status failures of a provider.
	ErrModelUnavailable = errors.New("model provider unavailable")

	// ErrMissingAPIKey reports a hosted family with no credentials configured.
	ErrMissingAPIKey = errors.New("missing API key")
)

// UnsupportedModelError names a model that matches no family.
type UnsupportedModelError struct {
	Name string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("unsupported model name: %s", e.Name)
}

func (e *UnsupportedModelError) Is(target error) bool {
	return target == ErrUnsupportedModel
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant" or "tool"
	Content string `json:"content"`

	// ToolCalls holds the calls an assistant message requested.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name identify the call a tool message answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// ToolSpec describes a tool the model may call.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema object
}

// ToolCall is a model's request to run a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Reply is one model turn.
type Reply struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// CompletionOptions configures the completion request.
type CompletionOptions struct {
	// Temperature controls randomness (0-1).
	Temperature float64

	// MaxTokens limits the response length.
	MaxTokens int
}

// DefaultCompletionOptions returns the deterministic settings used for answers.
func DefaultCompletionOptions() CompletionOptions {
	return CompletionOptions{
		Temperature: config.DefaultTemperature,
		MaxTokens:   config.DefaultMaxTokens,
	}
}

// Service defines the interface for chat model services.
type Service interface {
	// Chat sends the conversation and returns the model's next turn.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec, opts CompletionOptions) (*Reply, error)

	// Family returns the provider family.
	Family() Family

	// ModelName returns the model name sent to the provider.
	ModelName() string
}

// Model is a resolved model name.
type Model struct {
	Family Family
	Name   string // Name as sent to the provider
}

var familyPrefixes = []struct {
	family   Family
	prefixes []string
}{
	{FamilyOpenAI, []string{"gpt", "openai", "o1", "o3", "o4"}},
	{FamilyGoogle, []string{"gemini"}},
	{FamilyGroq, []string{"groq", "llama", "mistral", "mixtral", "deepseek", "qwen", "gemma"}},
	{FamilyAnthropic, []string{"claude"}},
}

const ollamaPrefix = "ollama/"

// ResolveModel matches a model name against the family prefixes,
// case-insensitively. It never performs I/O.
func ResolveModel(name string) (Model, error) {
	trimmed := strings.TrimSpace(name)
	lower := strings.ToLower(trimmed)

	if strings.HasPrefix(lower, ollamaPrefix) && len(lower) > len(ollamaPrefix) {
		return Model{Family: FamilyOllama, Name: trimmed[len(ollamaPrefix):]}, nil
	}

	for _, fp := range familyPrefixes {
		for _, p := range fp.prefixes {
			if strings.HasPrefix(lower, p) {
				return Model{Family: fp.family, Name: trimmed}, nil
			}
		}
	}

	return Model{}, &UnsupportedModelError{Name: name}
}

// ResolveFamily returns the family of a model name.
func ResolveFamily(name string) (Family, error) {
	m, err := ResolveModel(name)
	return m.Family, err
}

// NewService creates the chat service for a model name. Unsupported names
// and missing credentials fail before any network call.
func NewService(cfg *config.Config, name string) (Service, error) {
	m, err := ResolveModel(name)
	if err != nil {
		return nil, err
	}

	timeout := cfg.LLM.Timeout
	switch m.Family {
	case FamilyOpenAI:
		return NewOpenAIService(FamilyOpenAI, cfg.LLM.OpenAI.APIKey, m.Name, cfg.LLM.OpenAI.BaseURL, timeout)
	case FamilyGroq:
		return NewOpenAIService(FamilyGroq, cfg.LLM.Groq.APIKey, m.Name, cfg.LLM.Groq.BaseURL, timeout)
	case FamilyGoogle:
		return NewGeminiService(cfg.LLM.Google.APIKey, m.Name, cfg.LLM.Google.BaseURL, timeout)
	case FamilyAnthropic:
		return NewAnthropicService(cfg.LLM.Anthropic.APIKey, m.Name, cfg.LLM.Anthropic.BaseURL, timeout)
	case FamilyOllama:
		return NewOllamaService(cfg.LLM.Ollama.URL, m.Name, timeout)
	default:
		return nil, &UnsupportedModelError{Name: name}
	}
}

func missingKey(f Family) error {
	return fmt.Errorf("%w for %s models", ErrMissingAPIKey, f)
}

func unavailable(f Family, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrModelUnavailable, f, err)
}

// rawArguments returns args as a JSON object, substituting {} for empty input.
func rawArguments(args string) json.RawMessage {
	if strings.TrimSpace(args) == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}
