package wiring

import (
	"github.com/felixgeelhaar/milestone/internal/infrastructure/config"
	infraai "github.com/felixgeelhaar/milestone/pkg/ai"
	domainai "github.com/felixgeelhaar/milestone/pkg/domain/ai"
)

// LoadAIProvider builds the advisory provider wrapped with the configured timeout and attempts.
func LoadAIProvider(cfg *config.Config) (domainai.Provider, error) {
	providerName := "gemini"
	modelName := ""
	resilienceConfig := infraai.DefaultResilienceConfig()

	if cfg != nil {
		if cfg.AI.Provider != "" {
			providerName = cfg.AI.Provider
		}
		modelName = cfg.AI.Model
		if cfg.AI.MaxAttempts > 0 {
			resilienceConfig.MaxAttempts = cfg.AI.MaxAttempts
		}
		if cfg.AI.Timeout > 0 {
			resilienceConfig.Timeout = cfg.AI.Timeout
		}
	}

	baseProvider, err := infraai.GetDefaultProvider(providerName, modelName)
	if err != nil {
		return nil, err
	}

	return infraai.NewResilientProviderWithConfig(baseProvider, resilienceConfig), nil
}
