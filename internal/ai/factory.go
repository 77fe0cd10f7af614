package ai

import (
	"fmt"

	"github.com/applyflow/applyflow/internal/config"
	"github.com/applyflow/applyflow/pkg/models"
)

// NewCustomizer constructs the configured AI integration.
// Called once at startup.
func NewCustomizer(cfg config.AIConfig) (models.Customizer, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI, cfg.InferenceTimeout), nil
	case "mock":
		return NewMockCustomizer(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of openai, mock", cfg.Provider)
	}
}
