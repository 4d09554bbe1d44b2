// Package agent runs the tool-using answer loop over a chat model.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/llm"
)

// Tool is a capability the model may invoke during a turn.
type Tool interface {
	// Spec describes the tool to the model.
	Spec() llm.ToolSpec

	// Call runs the tool with the model-supplied JSON arguments.
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// Options configures an Agent.
type Options struct {
	// MaxSteps bounds the number of model calls in one turn.
	MaxSteps int

	// Completion is passed to every model call.
	Completion llm.CompletionOptions
}

// DefaultOptions returns the default step budget and completion settings.
func DefaultOptions() Options {
	return Options{
		MaxSteps:   config.DefaultMaxSteps,
		Completion: llm.DefaultCompletionOptions(),
	}
}

// Agent alternates model calls and tool calls until the model answers.
type Agent struct {
	model llm.Service
	tools map[string]Tool
	specs []llm.ToolSpec
	opts  Options
}

// New creates an agent over model with the given tools.
func New(model llm.Service, tools []Tool, opts Options) *Agent {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = config.DefaultMaxSteps
	}

	a := &Agent{
		model: model,
		tools: make(map[string]Tool, len(tools)),
		opts:  opts,
	}
	for _, t := range tools {
		spec := t.Spec()
		a.tools[spec.Name] = t
		a.specs = append(a.specs, spec)
	}
	return a
}

// Run drives one turn. It never panics and never returns a bare error:
// every outcome is a FinalAnswer or a Failure.
func (a *Agent) Run(ctx context.Context, messages []llm.Message) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Agent panicked", "panic", r)
			result = Failure{Kind: KindInternal, Message: fmt.Sprintf("Agent execution failed: %v", r)}
		}
	}()

	conversation := append([]llm.Message(nil), messages...)
	var last string

	for step := 1; step <= a.opts.MaxSteps; step++ {
		reply, err := a.model.Chat(ctx, conversation, a.specs, a.opts.Completion)
		if err != nil {
			log.Warn("Model call failed", "step", step, "model", a.model.ModelName(), "error", err)
			return Failure{Kind: Classify(err), Message: "Agent execution failed: " + err.Error()}
		}

		if strings.TrimSpace(reply.Content) != "" {
			last = reply.Content
		}

		if len(reply.ToolCalls) == 0 {
			log.Debug("Agent answered", "steps", step)
			return FinalAnswer{Text: reply.Content, Steps: step}
		}
		if step == a.opts.MaxSteps {
			// No model call is left to read the tool results.
			log.Debug("Skipping tool calls on the last step", "calls", len(reply.ToolCalls))
			break
		}

		conversation = append(conversation, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})
		for _, call := range reply.ToolCalls {
			conversation = append(conversation, llm.Message{
				Role:       llm.RoleTool,
				Content:    a.invoke(ctx, call),
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	log.Warn("Agent step budget exhausted", "max_steps", a.opts.MaxSteps, "has_partial", last != "")
	if last == "" {
		last = fmt.Sprintf(NoAnswerText, a.opts.MaxSteps)
	}
	return FinalAnswer{Text: last, Steps: a.opts.MaxSteps, Exhausted: true}
}

// invoke runs one tool call. Failures become a message for the model so
// the loop can continue without that result.
func (a *Agent) invoke(ctx context.Context, call llm.ToolCall) (out string) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("Tool panicked", "tool", call.Name, "panic", r)
			out = fmt.Sprintf("tool %s failed: %v", call.Name, r)
		}
	}()

	tool, ok := a.tools[call.Name]
	if !ok {
		log.Warn("Model requested unknown tool", "tool", call.Name)
		return fmt.Sprintf("tool %s failed: unknown tool", call.Name)
	}

	log.Debug("Calling tool", "tool", call.Name, "args", string(call.Arguments))
	result, err := tool.Call(ctx, call.Arguments)
	if err != nil {
		log.Warn("Tool call failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("tool %s failed: %v", call.Name, err)
	}
	return result
}
