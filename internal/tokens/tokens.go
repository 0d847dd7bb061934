// Package tokens estimates token counts for conversation messages and
// resolves a model's input context limit, for use by the context manager
// and compaction service.
package tokens

import (
	"context"

	"github.com/agentrt/core/internal/message"
	"github.com/agentrt/core/internal/provider"
)

// charsPerToken is the fallback character-to-token ratio used when a
// provider has no tokenizer of its own to call into. It's a coarse
// approximation (English prose averages ~4 chars/token) good enough to
// decide when to compact, not to bill a customer.
const charsPerToken = 4

// defaultInputLimit is used when the provider's model metadata doesn't
// report one.
const defaultInputLimit = 200_000

// Counter estimates token usage for a conversation against a specific
// provider and model.
type Counter struct {
	Provider provider.LLMProvider
	Model    string
}

// Estimate returns an approximate token count for the given messages.
// It sums content, thinking, tool call input, and tool result text and
// divides by the fallback char ratio. Providers that expose a real
// tokenizer should be wired in here as a priority path in the future;
// today the whole pack's providers (anthropic-sdk-go, openai-go, genai)
// only expose token counts via the completion response itself, not a
// standalone counting call, so the estimate is what the Context Manager
// has to decide on before it sends anything.
func (c *Counter) Estimate(msgs []message.Message) int {
	chars := 0
	for _, m := range msgs {
		chars += len(m.Content) + len(m.Thinking)
		for _, tc := range m.ToolCalls {
			chars += len(tc.Name) + len(tc.Input)
		}
	}
	if chars == 0 {
		return 0
	}
	return chars/charsPerToken + 1
}

// ResolveInputLimit returns the effective input-context token limit for the
// counter's model: the provider's reported InputTokenLimit, falling back to
// defaultInputLimit. Grounded on client.Client.ResolveMaxTokens's same
// provider-metadata-then-default pattern, generalized to the input side.
func (c *Counter) ResolveInputLimit(ctx context.Context) int {
	if c.Provider == nil {
		return defaultInputLimit
	}
	models, err := c.Provider.ListModels(ctx)
	if err != nil {
		return defaultInputLimit
	}
	for _, m := range models {
		if m.ID == c.Model && m.InputTokenLimit > 0 {
			return m.InputTokenLimit
		}
	}
	return defaultInputLimit
}
