package llm

import (
	"fmt"
	"net/url"
	"time"
)

// Defaults applied by BackendConfig.Validate.
const (
	DefaultTimeout     = 120 * time.Second
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000

	// DefaultOllamaEndpoint is used when a local member has no endpoint set.
	DefaultOllamaEndpoint = "http://localhost:11434"
)

// Fixed base URLs for the cloud provider kinds. Only the Ollama kind has a
// per-config endpoint (the discovery target host varies); cloud kinds get
// their well-known base and normally vary only by model and credential.
// The endpoint stays overridable so a gateway or test server can stand in.
var providerBaseURLs = map[ProviderType]string{
	ProviderOpenAI:    "https://api.openai.com/v1",
	ProviderAnthropic: "https://api.anthropic.com",
	ProviderGoogle:    "https://generativelanguage.googleapis.com",
	ProviderGrok:      "https://api.x.ai/v1",
}

// BaseURLFor returns the fixed base URL for a cloud provider kind, or ""
// for kinds without one.
func BaseURLFor(p ProviderType) string {
	return providerBaseURLs[p]
}

// BackendConfig describes one configured team member. The APIKey field is
// deliberately excluded from JSON so credentials never serialize alongside
// member records; Registry.Serialize lifts them into Snapshot.Credentials.
type BackendConfig struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Provider ProviderType `json:"provider"`
	Model    string       `json:"model"`
	Endpoint string       `json:"endpoint,omitempty"`
	APIKey   string       `json:"-"`

	// Temperature is a pointer so an explicit 0 (deterministic sampling)
	// is distinguishable from "not configured".
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens"`

	Enabled             bool `json:"enabled"`
	SupportsStreaming   bool `json:"supports_streaming"`
	SupportsToolCalling bool `json:"supports_tool_calling"`

	SpeedTier SpeedTier `json:"speed_tier"`
	CostTier  CostTier  `json:"cost_tier"`

	// Timeout bounds each individual request made through this member.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// NewBackendConfig returns a config with the package defaults filled in.
func NewBackendConfig(id, name string, provider ProviderType, model string) BackendConfig {
	temperature := DefaultTemperature
	return BackendConfig{
		ID:                id,
		Name:              name,
		Provider:          provider,
		Model:             model,
		Temperature:       &temperature,
		MaxTokens:         DefaultMaxTokens,
		Enabled:           true,
		SupportsStreaming: true,
		SpeedTier:         SpeedMedium,
		CostTier:          CostLow,
	}
}

// Validate checks the configuration and fills in per-kind defaults.
func (c *BackendConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("backend config has no id")
	}
	if c.Name == "" {
		return fmt.Errorf("backend %q has no name", c.ID)
	}
	if c.Model == "" {
		return fmt.Errorf("backend %q has no model", c.ID)
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Temperature == nil {
		temperature := DefaultTemperature
		c.Temperature = &temperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.SpeedTier == "" {
		c.SpeedTier = SpeedMedium
	}
	if c.CostTier == "" {
		c.CostTier = CostLow
	}

	switch c.Provider {
	case ProviderOllama:
		if c.Endpoint == "" {
			c.Endpoint = DefaultOllamaEndpoint
		}
		if _, err := url.Parse(c.Endpoint); err != nil {
			return fmt.Errorf("backend %q: invalid endpoint %q: %w", c.ID, c.Endpoint, err)
		}

	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderGrok:
		if c.Endpoint == "" {
			c.Endpoint = providerBaseURLs[c.Provider]
		}
		if c.APIKey == "" {
			return fmt.Errorf("backend %q: provider %s requires an API key", c.ID, c.Provider)
		}

	default:
		return fmt.Errorf("backend %q: %w: %s", c.ID, ErrUnsupportedProvider, c.Provider)
	}

	return nil
}
