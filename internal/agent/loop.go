// Package agent runs the bounded conversation loop: project chat history,
// call the completion endpoint, execute requested tools, repeat until the
// model produces text or the step cap is hit.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sendloop/sendloop/internal/providers"
	"github.com/sendloop/sendloop/internal/store"
)

const defaultMaxSteps = 5

// Loop drives one conversation turn against a provider.
type Loop struct {
	provider    providers.Provider
	model       string
	maxSteps    int
	maxTokens   int
	temperature float64
}

// Option configures a Loop.
type Option func(*Loop)

func WithMaxSteps(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxSteps = n
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(l *Loop) { l.maxTokens = n }
}

func NewLoop(provider providers.Provider, model string, opts ...Option) *Loop {
	l := &Loop{
		provider:    provider,
		model:       model,
		maxSteps:    defaultMaxSteps,
		temperature: 0.7,
	}
	if l.model == "" {
		l.model = provider.DefaultModel()
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunRequest is one conversation turn. History holds the thread including
// the inbound message that triggered this run, oldest first.
type RunRequest struct {
	UserID       string
	Prompt       string // caller-configured assistant instructions
	History      []store.Message
	SelfID       string // the business account's own sender id
	SenderName   string
	SenderNumber string
	Tools        []Tool
}

// RunResult is the final text plus loop accounting.
type RunResult struct {
	Content string
	Steps   int
	Usage   providers.Usage
}

// Run executes the turn. It terminates after at most maxSteps provider
// calls; a turn still requesting tools at the cap gets one final call
// without tools to force a textual answer.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	messages := []providers.Message{
		{Role: "system", Content: buildSystemPrompt(req)},
	}
	messages = append(messages, ProjectHistory(req.History, req.SelfID)...)

	toolDefs := toolDefinitions(req.Tools)
	byName := make(map[string]Tool, len(req.Tools))
	for _, tool := range req.Tools {
		byName[tool.Name()] = tool
	}

	var usage providers.Usage
	for step := 1; step <= l.maxSteps; step++ {
		chatReq := providers.ChatRequest{
			Messages:    messages,
			Model:       l.model,
			MaxTokens:   l.maxTokens,
			Temperature: l.temperature,
		}
		// Withhold tools on the last permitted step so the model must answer.
		if step < l.maxSteps {
			chatReq.Tools = toolDefs
		}

		resp, err := l.provider.Chat(ctx, chatReq)
		if err != nil {
			return nil, fmt.Errorf("provider call (step %d): %w", step, err)
		}
		usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			return &RunResult{Content: resp.Content, Steps: step, Usage: usage}, nil
		}

		slog.Debug("agent tool round", "step", step, "calls", len(resp.ToolCalls), "user_id", req.UserID)
		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		messages = append(messages, l.executeTools(ctx, byName, resp.ToolCalls)...)
	}

	return nil, fmt.Errorf("conversation did not settle within %d steps", l.maxSteps)
}

// executeTools runs the requested calls in parallel and returns their tool
// messages in the order the model requested them.
func (l *Loop) executeTools(ctx context.Context, byName map[string]Tool, calls []providers.ToolCall) []providers.Message {
	results := make([]providers.Message, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call providers.ToolCall) {
			defer wg.Done()
			results[i] = providers.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    l.runTool(ctx, byName, call),
			}
		}(i, call)
	}
	wg.Wait()
	return results
}

func (l *Loop) runTool(ctx context.Context, byName map[string]Tool, call providers.ToolCall) string {
	tool, ok := byName[call.Name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", call.Name)
	}
	res := tool.Execute(ctx, call.Arguments)
	if res == nil {
		return "Error: tool returned no result"
	}
	if res.IsError {
		slog.Warn("tool execution failed", "tool", call.Name, "error", res.Err)
		return "Error: " + res.ForLLM
	}
	return res.ForLLM
}

func toolDefinitions(tools []Tool) []providers.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]providers.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return defs
}
