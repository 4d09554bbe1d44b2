package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiService implements the chat service using Google's generateContent API.
type GeminiService struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type geminiRequest struct {
	SystemInstruction *geminiContent        `json:"systemInstruction,omitempty"`
	Contents          []geminiContent       `json:"contents"`
	Tools             []geminiTool          `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerateConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiGenerateConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// NewGeminiService creates a new Gemini chat service.
func NewGeminiService(apiKey, model, baseURL string, timeout time.Duration) (*GeminiService, error) {
	if apiKey == "" {
		return nil, missingKey(FamilyGoogle)
	}
	if baseURL == "" {
		baseURL = defaultGeminiURL
	}

	return &GeminiService{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  newHTTPClient(timeout),
	}, nil
}

// Chat sends the conversation to generateContent.
func (s *GeminiService) Chat(ctx context.Context, messages []Message, tools []ToolSpec, opts CompletionOptions) (*Reply, error) {
	req := geminiRequest{
		GenerationConfig: &geminiGenerateConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
		},
	}

	var system []string
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			content := geminiContent{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				content.Parts = append(content.Parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: tc.Arguments}})
			}
			req.Contents = appendGeminiContent(req.Contents, content)
		case RoleTool:
			req.Contents = appendGeminiContent(req.Contents, geminiContent{
				Role: "user",
				Parts: []geminiPart{{FunctionResponse: &geminiFunctionResponse{
					Name:     m.Name,
					Response: map[string]any{"content": m.Content},
				}}},
			})
		default:
			req.Contents = appendGeminiContent(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}

	if len(tools) > 0 {
		decls := make([]geminiFunctionDeclaration, len(tools))
		for i, t := range tools {
			decls[i] = geminiFunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
		}
		req.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", s.baseURL, url.PathEscape(s.model))
	log.Debug("Requesting completion from Gemini", "model", s.model, "messages", len(messages))

	var resp geminiResponse
	if err := postJSON(ctx, s.client, FamilyGoogle, endpoint, map[string]string{"x-goog-api-key": s.apiKey}, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 {
		return nil, unavailable(FamilyGoogle, fmt.Errorf("no candidates in response"))
	}

	reply := &Reply{}
	var text []string
	for i, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text = append(text, part.Text)
		}
		if part.FunctionCall != nil {
			args := part.FunctionCall.Args
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			// Gemini calls carry no id; the name is echoed back in the response.
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("%s-%d", part.FunctionCall.Name, i),
				Name:      part.FunctionCall.Name,
				Arguments: args,
			})
		}
	}
	reply.Content = strings.Join(text, "")

	return reply, nil
}

// Family returns the provider family.
func (s *GeminiService) Family() Family {
	return FamilyGoogle
}

// ModelName returns the model name.
func (s *GeminiService) ModelName() string {
	return s.model
}

// appendGeminiContent merges consecutive turns of the same role.
func appendGeminiContent(contents []geminiContent, c geminiContent) []geminiContent {
	if n := len(contents); n > 0 && contents[n-1].Role == c.Role {
		contents[n-1].Parts = append(contents[n-1].Parts, c.Parts...)
		return contents
	}
	return append(contents, c)
}
