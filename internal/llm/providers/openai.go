package providers

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"inkwell-backend/internal/llm"
	"inkwell-backend/internal/logger"
)

// OpenAIProvider adapts any chat-completions compatible API to the
// llm.Provider interface. It serves both the OpenAI and Grok kinds; the two
// differ only in base URL and model names, the wire protocol is identical.
type OpenAIProvider struct {
	cfg    *llm.BackendConfig
	client openai.Client
}

var _ llm.Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a chat-completions adapter for cfg. The provider
// kind recorded in errors follows cfg.Provider, so a Grok member reports as
// grok even though it shares this implementation.
func NewOpenAIProvider(cfg *llm.BackendConfig) (*OpenAIProvider, error) {
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.Endpoint),
	)
	return &OpenAIProvider{cfg: cfg, client: client}, nil
}

// Config returns the configuration this provider was built from.
func (p *OpenAIProvider) Config() *llm.BackendConfig {
	return p.cfg
}

// CheckAvailability lists models, which exercises both reachability and the
// credential without consuming tokens.
func (p *OpenAIProvider) CheckAvailability(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	_, err := p.client.Models.List(ctx)
	if err != nil {
		logger.Debug("model list probe failed", "provider", p.cfg.Provider, "error", err)
	}
	return err == nil
}

// Generate performs a blocking chat completion request.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts *llm.GenerateOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	completion, err := p.client.Chat.Completions.New(ctx, p.completionParams(prompt, opts))
	if err != nil {
		return "", llm.NewProviderError(p.cfg.Provider, "generate", llm.Classify(err))
	}

	if len(completion.Choices) == 0 {
		return "", llm.NewProviderError(p.cfg.Provider, "generate", llm.ErrMalformedResponse)
	}
	return completion.Choices[0].Message.Content, nil
}

// Stream performs a streaming chat completion request.
func (p *OpenAIProvider) Stream(ctx context.Context, prompt string, opts *llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.completionParams(prompt, opts))

	out := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(out)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- llm.StreamChunk{Content: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			sendChunk(ctx, out, llm.StreamChunk{
				Done: true,
				Err:  llm.NewProviderError(p.cfg.Provider, "stream", llm.Classify(err)),
			})
			return
		}
		sendChunk(ctx, out, llm.StreamChunk{Done: true})
	}()
	return out, nil
}

// WarmUp issues a minimal throwaway completion.
func (p *OpenAIProvider) WarmUp(ctx context.Context) bool {
	maxTokens := 5
	_, err := p.Generate(ctx, "Hello", &llm.GenerateOptions{MaxTokens: &maxTokens})
	if err != nil {
		logger.Debug("warm-up failed", "provider", p.cfg.Provider, "error", err)
	}
	return err == nil
}

func (p *OpenAIProvider) completionParams(prompt string, opts *llm.GenerateOptions) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if sys := opts.SystemPrompt(); sys != "" {
		messages = append(messages, openai.SystemMessage(sys))
	}
	messages = append(messages, openai.UserMessage(prompt))

	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.cfg.Model),
		Messages:    messages,
		Temperature: openai.Float(opts.TemperatureOr(p.cfg.Temperature)),
		MaxTokens:   openai.Int(int64(opts.MaxTokensOr(p.cfg.MaxTokens))),
	}
}
