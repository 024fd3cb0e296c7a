package ai

import (
	"fmt"
	"os"

	"github.com/felixgeelhaar/milestone/pkg/domain/ai"
)

// NewProvider builds a provider by name. API keys come from the environment.
func NewProvider(providerName string, modelName string) (ai.Provider, error) {
	switch providerName {
	case "gemini", "":
		return NewGeminiProvider(modelName, os.Getenv("GEMINI_API_KEY")), nil
	case "openai":
		return NewOpenAIProvider(modelName, os.Getenv("OPENAI_API_KEY")), nil
	case "ollama":
		return NewOllamaProvider(modelName), nil
	case "mock":
		return &MockProvider{Model: modelName}, nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", providerName)
	}
}

// GetDefaultProvider lets MILESTONE_AI_PROVIDER / MILESTONE_AI_MODEL override the configured choice.
func GetDefaultProvider(providerName, modelName string) (ai.Provider, error) {
	if env := os.Getenv("MILESTONE_AI_PROVIDER"); env != "" {
		providerName = env
	}
	if env := os.Getenv("MILESTONE_AI_MODEL"); env != "" {
		modelName = env
	}
	return NewProvider(providerName, modelName)
}
