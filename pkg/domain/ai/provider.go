// Package ai declares the text-generation port used by the advisory.
package ai

import (
	"context"
	"errors"
)

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("provider returned an empty completion")

// CompletionRequest is a single prompt.
type CompletionRequest struct {
	Prompt      string
	System      string
	Temperature float32
	MaxTokens   int
}

// CompletionResponse is the provider's answer.
type CompletionResponse struct {
	Text  string
	Usage TokenUsage
	Model string
}

// TokenUsage as reported by the provider, or estimated when it reports nothing.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

func (u TokenUsage) Total() int { return u.InputTokens + u.OutputTokens }

// EstimateTokens approximates a token count at four bytes per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Provider is implemented by every text-generation backend.
type Provider interface {
	ID() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
