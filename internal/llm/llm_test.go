package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
)

var (
	_ Service = (*OpenAIService)(nil)
	_ Service = (*GeminiService)(nil)
	_ Service = (*AnthropicService)(nil)
	_ Service = (*OllamaService)(nil)
)

var searchTool = ToolSpec{
	Name:        "web_search",
	Description: "Search the web",
	Parameters: map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []string{"query"},
	},
}

// toolConversation is a conversation after one web_search round trip.
func toolConversation() []Message {
	return []Message{
		{Role: RoleSystem, Content: SystemPrompt},
		{Role: RoleUser, Content: "Here is some context"},
		{Role: RoleUser, Content: "What is the rent?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: "web_search", Arguments: json.RawMessage(`{"query":"rent"}`)}}},
		{Role: RoleTool, ToolCallID: "call_1", Name: "web_search", Content: "no results"},
	}
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		input  string
		family Family
		name   string
	}{
		{"gpt-4o", FamilyOpenAI, "gpt-4o"},
		{"GPT-4o-mini", FamilyOpenAI, "GPT-4o-mini"},
		{"openai-compatible", FamilyOpenAI, "openai-compatible"},
		{"o3-mini", FamilyOpenAI, "o3-mini"},
		{"gemini-1.5-flash", FamilyGoogle, "gemini-1.5-flash"},
		{"llama3-70b-8192", FamilyGroq, "llama3-70b-8192"},
		{"mixtral-8x7b-32768", FamilyGroq, "mixtral-8x7b-32768"},
		{"deepseek-r1-distill-llama-70b", FamilyGroq, "deepseek-r1-distill-llama-70b"},
		{"groq/compound", FamilyGroq, "groq/compound"},
		{"claude-3-5-sonnet-latest", FamilyAnthropic, "claude-3-5-sonnet-latest"},
		{"ollama/llama3.2", FamilyOllama, "llama3.2"},
		{"Ollama/Qwen2.5", FamilyOllama, "Qwen2.5"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m, err := ResolveModel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.family, m.Family)
			assert.Equal(t, tt.name, m.Name)

			f, err := ResolveFamily(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.family, f)
		})
	}
}

func TestResolveModelUnsupported(t *testing.T) {
	for _, name := range []string{"foobar-9000", "", "ollama/", "bert"} {
		t.Run(name, func(t *testing.T) {
			_, err := ResolveModel(name)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedModel)

			var unsupported *UnsupportedModelError
			require.True(t, errors.As(err, &unsupported))
			assert.Equal(t, name, unsupported.Name)
		})
	}
}

func TestNewService(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.OpenAI.APIKey = "sk-test"
	cfg.LLM.Google.APIKey = "google-key"
	cfg.LLM.Groq.APIKey = "groq-key"
	cfg.LLM.Anthropic.APIKey = "sk-ant-test"

	tests := []struct {
		model  string
		family Family
	}{
		{"gpt-4o", FamilyOpenAI},
		{"gemini-1.5-pro", FamilyGoogle},
		{"llama3-8b-8192", FamilyGroq},
		{"claude-3-haiku", FamilyAnthropic},
		{"ollama/mistral", FamilyOllama},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			svc, err := NewService(cfg, tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.family, svc.Family())
		})
	}

	t.Run("unsupported model", func(t *testing.T) {
		_, err := NewService(cfg, "foobar-9000")
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})

	t.Run("missing key", func(t *testing.T) {
		empty := config.DefaultConfig()
		for _, model := range []string{"gpt-4o", "gemini-pro", "mistral-saba", "claude-3"} {
			_, err := NewService(empty, model)
			assert.ErrorIs(t, err, ErrMissingAPIKey, model)
		}

		_, err := NewService(empty, "ollama/llama3")
		assert.NoError(t, err)
	})

	t.Run("groq uses its base URL", func(t *testing.T) {
		svc, err := NewService(cfg, "llama3-8b-8192")
		require.NoError(t, err)
		assert.Equal(t, "llama3-8b-8192", svc.ModelName())
	})
}

func TestOllamaChat(t *testing.T) {
	t.Run("returns tool calls", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/chat", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)

			var req ollamaChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.False(t, req.Stream)
			require.Len(t, req.Tools, 1)
			assert.Equal(t, "web_search", req.Tools[0].Function.Name)
			require.Len(t, req.Messages, 5)
			assert.Equal(t, "web_search", req.Messages[4].ToolName)
			require.Len(t, req.Messages[3].ToolCalls, 1)

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"web_search","arguments":{"query":"lease rent"}}}]},"done":true}`))
		}))
		defer server.Close()

		svc, err := NewOllamaService(server.URL, "llama3", time.Second)
		require.NoError(t, err)

		reply, err := svc.Chat(context.Background(), toolConversation(), []ToolSpec{searchTool}, DefaultCompletionOptions())
		require.NoError(t, err)
		require.Len(t, reply.ToolCalls, 1)
		assert.Equal(t, "web_search", reply.ToolCalls[0].Name)
		assert.JSONEq(t, `{"query":"lease rent"}`, string(reply.ToolCalls[0].Arguments))
		assert.NotEmpty(t, reply.ToolCalls[0].ID)
	})

	t.Run("returns content", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: "The rent is $1,200."},
				Done:    true,
			})
		}))
		defer server.Close()

		svc, _ := NewOllamaService(server.URL+"/", "llama3", time.Second)
		reply, err := svc.Chat(context.Background(), []Message{{Role: RoleUser, Content: "rent?"}}, nil, DefaultCompletionOptions())
		require.NoError(t, err)
		assert.Equal(t, "The rent is $1,200.", reply.Content)
		assert.Empty(t, reply.ToolCalls)
	})

	t.Run("server error is unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("model not found"))
		}))
		defer server.Close()

		svc, _ := NewOllamaService(server.URL, "llama3", time.Second)
		_, err := svc.Chat(context.Background(), []Message{{Role: RoleUser, Content: "test"}}, nil, DefaultCompletionOptions())
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.Contains(t, err.Error(), "status 500")
	})

	t.Run("connection refused is unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		svc, _ := NewOllamaService(url, "llama3", time.Second)
		_, err := svc.Chat(context.Background(), []Message{{Role: RoleUser, Content: "test"}}, nil, DefaultCompletionOptions())
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})
}

func TestOpenAIChat(t *testing.T) {
	t.Run("round trips tool calls", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer groq-key", r.Header.Get("Authorization"))

			var req struct {
				Model    string           `json:"model"`
				Messages []map[string]any `json:"messages"`
				Tools    []map[string]any `json:"tools"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "llama3-70b-8192", req.Model)
			require.Len(t, req.Messages, 5)
			assert.Equal(t, "system", req.Messages[0]["role"])
			assert.Equal(t, "tool", req.Messages[4]["role"])
			assert.Equal(t, "call_1", req.Messages[4]["tool_call_id"])
			assert.NotEmpty(t, req.Messages[3]["tool_calls"])
			require.Len(t, req.Tools, 1)

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"id": "chatcmpl-1",
				"object": "chat.completion",
				"created": 1,
				"model": "llama3-70b-8192",
				"choices": [{
					"index": 0,
					"finish_reason": "tool_calls",
					"message": {
						"role": "assistant",
						"content": null,
						"tool_calls": [{"id": "call_2", "type": "function", "function": {"name": "web_search", "arguments": "{\"query\":\"deposit\"}"}}]
					}
				}]
			}`))
		}))
		defer server.Close()

		svc, err := NewOpenAIService(FamilyGroq, "groq-key", "llama3-70b-8192", server.URL, time.Second)
		require.NoError(t, err)

		reply, err := svc.Chat(context.Background(), toolConversation(), []ToolSpec{searchTool}, DefaultCompletionOptions())
		require.NoError(t, err)
		require.Len(t, reply.ToolCalls, 1)
		assert.Equal(t, "call_2", reply.ToolCalls[0].ID)
		assert.JSONEq(t, `{"query":"deposit"}`, string(reply.ToolCalls[0].Arguments))
		assert.Equal(t, FamilyGroq, svc.Family())
	})

	t.Run("auth failure is unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
		}))
		defer server.Close()

		svc, err := NewOpenAIService(FamilyOpenAI, "sk-bad", "gpt-4o", server.URL, time.Second)
		require.NoError(t, err)

		_, err = svc.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, DefaultCompletionOptions())
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})
}

func TestAnthropicChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, SystemPrompt, req.System)
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "web_search", req.Tools[0].Name)

		// context and question merge into one user turn, the tool result into another
		require.Len(t, req.Messages, 3)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "tool_use", req.Messages[1].Content[0].Type)
		assert.Equal(t, "tool_result", req.Messages[2].Content[0].Type)
		assert.Equal(t, "call_1", req.Messages[2].Content[0].ToolUseID)

		json.NewEncoder(w).Encode(anthropicResponse{
			Role: "assistant",
			Content: []anthropicContent{
				{Type: "text", Text: "The rent is "},
				{Type: "text", Text: "$1,200."},
			},
			StopReason: "end_turn",
		})
	}))
	defer server.Close()

	svc, err := NewAnthropicService("sk-ant-test", "claude-3-haiku", server.URL, time.Second)
	require.NoError(t, err)

	reply, err := svc.Chat(context.Background(), toolConversation(), []ToolSpec{searchTool}, DefaultCompletionOptions())
	require.NoError(t, err)
	assert.Equal(t, "The rent is $1,200.", reply.Content)
	assert.Empty(t, reply.ToolCalls)
}

func TestGeminiChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "google-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, SystemPrompt, req.SystemInstruction.Parts[0].Text)
		require.Len(t, req.Contents, 3)
		assert.Equal(t, "model", req.Contents[1].Role)
		require.NotNil(t, req.Contents[2].Parts[0].FunctionResponse)
		assert.Equal(t, "web_search", req.Contents[2].Parts[0].FunctionResponse.Name)
		require.Len(t, req.Tools, 1)

		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"web_search","args":{"query":"late fee"}}}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	svc, err := NewGeminiService("google-key", "gemini-1.5-flash", server.URL, time.Second)
	require.NoError(t, err)

	reply, err := svc.Chat(context.Background(), toolConversation(), []ToolSpec{searchTool}, DefaultCompletionOptions())
	require.NoError(t, err)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "web_search", reply.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"late fee"}`, string(reply.ToolCalls[0].Arguments))
}

func TestGeminiNoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	svc, _ := NewGeminiService("google-key", "gemini-pro", server.URL, time.Second)
	_, err := svc.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, DefaultCompletionOptions())
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestAssembleContext(t *testing.T) {
	assert.Equal(t, "first\n\nsecond\n\nthird", AssembleContext([]string{"first", "second", "third"}))
	assert.Equal(t, "", AssembleContext(nil))
}

func TestBuildMessages(t *testing.T) {
	t.Run("without history", func(t *testing.T) {
		messages := BuildMessages("rent is $1,200", nil, "What is the rent?")
		require.Len(t, messages, 3)
		assert.Equal(t, RoleSystem, messages[0].Role)
		assert.Contains(t, messages[0].Content, "Use ONLY the context")
		assert.Contains(t, messages[0].Content, NotFoundAnswer)
		assert.Equal(t, "Here is some context from your document:\n\nrent is $1,200", messages[1].Content)
		assert.Equal(t, Message{Role: RoleUser, Content: "What is the rent?"}, messages[2])
	})

	t.Run("history alternates roles", func(t *testing.T) {
		messages := BuildMessages("ctx", []string{"q1", "a1"}, "q2")
		require.Len(t, messages, 5)
		assert.Equal(t, RoleUser, messages[2].Role)
		assert.Equal(t, RoleAssistant, messages[3].Role)
		assert.Equal(t, "q2", messages[4].Content)
	})
}

func TestDefaultCompletionOptions(t *testing.T) {
	opts := DefaultCompletionOptions()
	assert.Equal(t, 0.0, opts.Temperature)
	assert.Equal(t, 2048, opts.MaxTokens)
}
