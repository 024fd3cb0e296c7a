package ai

import (
	"context"

	"github.com/felixgeelhaar/milestone/pkg/domain/ai"
)

// MockProvider answers deterministically. Used by tests and offline demos.
type MockProvider struct {
	Model string
	Reply string
	Err   error

	// Prompts records every prompt received.
	Prompts []string
}

func (p *MockProvider) ID() string {
	return "mock:" + p.Model
}

func (p *MockProvider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	p.Prompts = append(p.Prompts, req.Prompt)
	if p.Err != nil {
		return nil, p.Err
	}
	reply := p.Reply
	if reply == "" {
		reply = "Finish the remaining P1 items before starting anything new."
	}
	return &ai.CompletionResponse{Text: reply, Model: p.Model}, nil
}
