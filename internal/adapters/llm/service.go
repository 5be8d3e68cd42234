package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/longregen/cogexec/internal/adapters/circuitbreaker"
	"github.com/longregen/cogexec/internal/ports"
)

// CompletionTimeout bounds a single Complete call; the Planner treats a
// timed-out completion the same as any other LLM failure and falls back to
// its rule-based strategy.
const CompletionTimeout = 20 * time.Second

// Service implements ports.LanguageModel over an OpenAI-compatible chat
// completions endpoint, wrapped in a circuit breaker so a flapping model
// backend degrades the Planner rather than wedging it.
type Service struct {
	client  *Client
	breaker *circuitbreaker.CircuitBreaker
}

func NewService(client *Client) *Service {
	return &Service{
		client:  client,
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

// Complete implements ports.LanguageModel. When grammar is non-nil, its
// tool name and schema are surfaced to the model as a single function
// definition with tool_choice "auto", so the model may still answer in
// plain text, in which case that text is returned as is; the caller is
// responsible for validating the returned JSON against the schema.
func (s *Service) Complete(ctx context.Context, prompt string, grammar *ports.Grammar) (string, error) {
	var result string
	err := s.breaker.Execute(func() error {
		var err error
		result, err = s.doComplete(ctx, prompt, grammar)
		return err
	})
	return result, err
}

func (s *Service) doComplete(ctx context.Context, prompt string, grammar *ports.Grammar) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, CompletionTimeout)
	defer cancel()

	messages := []ChatMessage{{Role: "user", Content: prompt}}

	var tools []Tool
	if grammar != nil {
		tools = []Tool{grammarToTool(*grammar)}
	}

	var resp *ChatCompletionResponse
	var err error
	if len(tools) > 0 {
		resp, err = s.client.ChatWithTools(ctx, messages, tools)
	} else {
		resp, err = s.client.Chat(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("llm completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm completion returned no choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		return msg.ToolCalls[0].Function.Arguments, nil
	}
	return msg.Content, nil
}

func grammarToTool(g ports.Grammar) Tool {
	properties := make(map[string]any, len(g.Schema.Properties))
	for name, constraint := range g.Schema.Properties {
		prop := map[string]any{"type": constraint.Type}
		if len(constraint.Enum) > 0 {
			prop["enum"] = constraint.Enum
		}
		if constraint.Pattern != "" {
			prop["pattern"] = constraint.Pattern
		}
		properties[name] = prop
	}

	params := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(g.Schema.Required) > 0 {
		params["required"] = g.Schema.Required
	}

	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        g.ToolName,
			Description: "Arguments for tool " + g.ToolName,
			Parameters:  params,
		},
	}
}
