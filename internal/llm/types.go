// Package llm provides a unified abstraction layer over multiple LLM
// providers. It defines common types, the Provider capability interface,
// error classification, and the team coordinator used to orchestrate
// generation across local and cloud backends.
package llm

// ProviderType identifies the wire protocol family of a backend.
type ProviderType string

const (
	// ProviderOllama is a local-network Ollama inference server.
	ProviderOllama ProviderType = "ollama"
	// ProviderOpenAI is the OpenAI chat completions API.
	ProviderOpenAI ProviderType = "openai"
	// ProviderAnthropic is the Anthropic messages API.
	ProviderAnthropic ProviderType = "anthropic"
	// ProviderGoogle is the Google Gemini API.
	ProviderGoogle ProviderType = "google"
	// ProviderGrok is the xAI Grok API (OpenAI-compatible envelope).
	ProviderGrok ProviderType = "grok"
)

// SpeedTier is a coarse latency classification used by task routing.
type SpeedTier string

const (
	SpeedFast   SpeedTier = "fast"
	SpeedMedium SpeedTier = "medium"
	SpeedSlow   SpeedTier = "slow"
)

// CostTier is a coarse price classification used by task routing.
type CostTier string

const (
	CostFree   CostTier = "free"
	CostLow    CostTier = "low"
	CostMedium CostTier = "medium"
	CostHigh   CostTier = "high"
)

// TaskType selects a routing policy in Team.RouteByTask.
type TaskType string

const (
	// TaskQuick prefers fast, cheap members for simple prompts.
	TaskQuick TaskType = "quick"
	// TaskCreative prefers medium/slow members, which tend to write better prose.
	TaskCreative TaskType = "creative"
	// TaskAnalytical considers every enabled member.
	TaskAnalytical TaskType = "analytical"
	// TaskStructured requires tool-calling support for structured output.
	TaskStructured TaskType = "structured"
)

// GenerateOptions carries per-request overrides for a generation call.
// Nil fields fall back to the member's configured defaults.
type GenerateOptions struct {
	// System is an optional system prompt.
	System string
	// Temperature overrides the configured sampling temperature.
	Temperature *float64
	// MaxTokens overrides the configured output token limit.
	MaxTokens *int
}

// TemperatureOr returns the override, the configured default, or the
// package default when neither is set.
func (o *GenerateOptions) TemperatureOr(def *float64) float64 {
	if o != nil && o.Temperature != nil {
		return *o.Temperature
	}
	if def != nil {
		return *def
	}
	return DefaultTemperature
}

// MaxTokensOr returns the override or the given default.
func (o *GenerateOptions) MaxTokensOr(def int) int {
	if o != nil && o.MaxTokens != nil {
		return *o.MaxTokens
	}
	return def
}

// SystemPrompt returns the system prompt, tolerating a nil receiver.
func (o *GenerateOptions) SystemPrompt() string {
	if o == nil {
		return ""
	}
	return o.System
}

// StreamChunk is one incremental fragment of a streaming response.
// The stream channel is closed after the chunk with Done set; a chunk may
// carry Err instead of content when the stream fails mid-flight.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}

// GenerationResult is a successful generation attributed to the team member
// that produced it.
type GenerationResult struct {
	MemberID string `json:"member_id"`
	Text     string `json:"text"`
}

// GenerationOutcome is the per-member unit of result for fan-out operations:
// either Text is set, or Err holds the member's classified failure.
type GenerationOutcome struct {
	MemberID string `json:"member_id"`
	Text     string `json:"text,omitempty"`
	Err      error  `json:"-"`
}

// Failed reports whether this member's attempt failed.
func (o GenerationOutcome) Failed() bool {
	return o.Err != nil
}

// Snapshot is the persisted form of a team: the ordered member list, the
// primary designation, and the credentials held apart from the member
// records so an encryption-at-rest layer can wrap them without touching
// the rest of the schema.
type Snapshot struct {
	Members     []BackendConfig   `json:"members"`
	Credentials map[string]string `json:"credentials,omitempty"`
	PrimaryID   string            `json:"primary_id,omitempty"`
}
