package providers

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"inkwell-backend/internal/llm"
	"inkwell-backend/internal/logger"
)

// AnthropicProvider adapts the Anthropic Messages API to the llm.Provider
// interface. The SDK handles the x-api-key header and anthropic-version
// pinning internally.
type AnthropicProvider struct {
	cfg    *llm.BackendConfig
	client anthropic.Client
}

var _ llm.Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a Messages API adapter for cfg.
func NewAnthropicProvider(cfg *llm.BackendConfig) (*AnthropicProvider, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.Endpoint),
	)
	return &AnthropicProvider{cfg: cfg, client: client}, nil
}

// Config returns the configuration this provider was built from.
func (p *AnthropicProvider) Config() *llm.BackendConfig {
	return p.cfg
}

// CheckAvailability runs a single-token message. There is no free list
// endpoint on this API, so the probe is the smallest billable request.
func (p *AnthropicProvider) CheckAvailability(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("Hi")),
		},
	})
	if err != nil {
		logger.Debug("anthropic probe failed", "error", err)
	}
	return err == nil
}

// Generate performs a blocking message request.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, opts *llm.GenerateOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	message, err := p.client.Messages.New(ctx, p.messageParams(prompt, opts))
	if err != nil {
		return "", llm.NewProviderError(llm.ProviderAnthropic, "generate", llm.Classify(err))
	}

	if len(message.Content) == 0 {
		return "", llm.NewProviderError(llm.ProviderAnthropic, "generate", llm.ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		sb.WriteString(block.Text)
	}
	return sb.String(), nil
}

// Stream performs a streaming message request, forwarding text deltas.
func (p *AnthropicProvider) Stream(ctx context.Context, prompt string, opts *llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.messageParams(prompt, opts))

	out := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(out)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			select {
			case out <- llm.StreamChunk{Content: text.Text}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			sendChunk(ctx, out, llm.StreamChunk{
				Done: true,
				Err:  llm.NewProviderError(llm.ProviderAnthropic, "stream", llm.Classify(err)),
			})
			return
		}
		sendChunk(ctx, out, llm.StreamChunk{Done: true})
	}()
	return out, nil
}

// WarmUp issues a minimal throwaway message.
func (p *AnthropicProvider) WarmUp(ctx context.Context) bool {
	maxTokens := 5
	_, err := p.Generate(ctx, "Hello", &llm.GenerateOptions{MaxTokens: &maxTokens})
	if err != nil {
		logger.Debug("anthropic warm-up failed", "error", err)
	}
	return err == nil
}

func (p *AnthropicProvider) messageParams(prompt string, opts *llm.GenerateOptions) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.cfg.Model),
		MaxTokens:   int64(opts.MaxTokensOr(p.cfg.MaxTokens)),
		Temperature: anthropic.Float(opts.TemperatureOr(p.cfg.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if sys := opts.SystemPrompt(); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	return params
}
