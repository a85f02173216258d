package providers

import (
	"fmt"

	"inkwell-backend/internal/llm"
)

// DefaultFactory creates provider instances for every supported kind. It
// implements llm.ProviderFactory; living here rather than in the llm package
// keeps the interface free of a dependency on the concrete adapters.
type DefaultFactory struct{}

var _ llm.ProviderFactory = (*DefaultFactory)(nil)

// NewDefaultFactory creates the standard factory.
func NewDefaultFactory() *DefaultFactory {
	return &DefaultFactory{}
}

// Create materializes the adapter for cfg's provider kind. An unknown kind
// yields ErrUnsupportedProvider.
func (f *DefaultFactory) Create(cfg *llm.BackendConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case llm.ProviderOllama:
		return NewOllamaProvider(cfg)
	case llm.ProviderOpenAI, llm.ProviderGrok:
		return NewOpenAIProvider(cfg)
	case llm.ProviderAnthropic:
		return NewAnthropicProvider(cfg)
	case llm.ProviderGoogle:
		return NewGoogleProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", llm.ErrUnsupportedProvider, cfg.Provider)
	}
}
