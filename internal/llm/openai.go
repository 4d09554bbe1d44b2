package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIService speaks the OpenAI chat completions protocol. It serves the
// OpenAI family and Groq, whose API is OpenAI-compatible.
type OpenAIService struct {
	client  openai.Client
	family  Family
	model   string
	timeout time.Duration
}

// NewOpenAIService creates a chat service for an OpenAI-compatible endpoint.
func NewOpenAIService(family Family, apiKey, model, baseURL string, timeout time.Duration) (*OpenAIService, error) {
	if apiKey == "" {
		return nil, missingKey(family)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &OpenAIService{
		client:  openai.NewClient(opts...),
		family:  family,
		model:   model,
		timeout: timeout,
	}, nil
}

// Chat sends the conversation with the tools exposed as functions.
func (s *OpenAIService) Chat(ctx context.Context, messages []Message, tools []ToolSpec, opts CompletionOptions) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log.Debug("Requesting completion", "family", s.family, "model", s.model, "messages", len(messages), "tools", len(tools))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(s.model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(t.Parameters),
		}))
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, unavailable(s.family, err)
	}

	if len(resp.Choices) == 0 {
		return nil, unavailable(s.family, fmt.Errorf("no completion returned"))
	}

	msg := resp.Choices[0].Message
	reply := &Reply{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		if tc.Type != "" && tc.Type != "function" {
			continue
		}
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: rawArguments(tc.Function.Arguments),
		})
	}

	return reply, nil
}

// Family returns the provider family.
func (s *OpenAIService) Family() Family {
	return s.family
}

// ModelName returns the model name.
func (s *OpenAIService) ModelName() string {
	return s.model
}

// toOpenAIMessages converts messages to OpenAI format.
func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, m := range messages {
		switch m.Role {
		case RoleSystem:
			out[i] = openai.SystemMessage(m.Content)
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out[i] = openai.AssistantMessage(m.Content)
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(tc.Arguments),
						},
					},
				})
			}
			out[i] = openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
		case RoleTool:
			out[i] = openai.ToolMessage(m.Content, m.ToolCallID)
		default:
			out[i] = openai.UserMessage(m.Content)
		}
	}
	return out
}
