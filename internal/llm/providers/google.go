package providers

import (
	"context"
	"net/http"
	"sync"

	"google.golang.org/genai"

	"inkwell-backend/internal/llm"
	"inkwell-backend/internal/logger"
)

// GoogleProvider adapts the Gemini generateContent API to the llm.Provider
// interface. The SDK client needs a context to construct, so it is built
// lazily on first use.
type GoogleProvider struct {
	cfg *llm.BackendConfig

	mu     sync.Mutex
	client *genai.Client
}

var _ llm.Provider = (*GoogleProvider)(nil)

// NewGoogleProvider creates a Gemini adapter for cfg.
func NewGoogleProvider(cfg *llm.BackendConfig) (*GoogleProvider, error) {
	return &GoogleProvider{cfg: cfg}, nil
}

// Config returns the configuration this provider was built from.
func (p *GoogleProvider) Config() *llm.BackendConfig {
	return p.cfg
}

func (p *GoogleProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      p.cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: p.cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: p.cfg.Endpoint},
	})
	if err != nil {
		return nil, llm.NewProviderError(llm.ProviderGoogle, "init", err)
	}
	p.client = client
	return client, nil
}

// CheckAvailability runs a single-token generation against the configured
// model, exercising reachability, the credential, and the model name at once.
func (p *GoogleProvider) CheckAvailability(ctx context.Context) bool {
	client, err := p.getClient(ctx)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	one := int32(1)
	_, err = client.Models.GenerateContent(ctx, p.cfg.Model, genai.Text("Hi"), &genai.GenerateContentConfig{
		MaxOutputTokens: one,
	})
	if err != nil {
		logger.Debug("gemini probe failed", "error", err)
	}
	return err == nil
}

// Generate performs a blocking generation request.
func (p *GoogleProvider) Generate(ctx context.Context, prompt string, opts *llm.GenerateOptions) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	result, err := client.Models.GenerateContent(ctx, p.cfg.Model, genai.Text(prompt), p.generationConfig(opts))
	if err != nil {
		return "", llm.NewProviderError(llm.ProviderGoogle, "generate", llm.Classify(err))
	}

	text := result.Text()
	if text == "" && len(result.Candidates) == 0 {
		return "", llm.NewProviderError(llm.ProviderGoogle, "generate", llm.ErrMalformedResponse)
	}
	return text, nil
}

// Stream performs a streaming generation request.
func (p *GoogleProvider) Stream(ctx context.Context, prompt string, opts *llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(out)

		for resp, err := range client.Models.GenerateContentStream(ctx, p.cfg.Model, genai.Text(prompt), p.generationConfig(opts)) {
			if err != nil {
				sendChunk(ctx, out, llm.StreamChunk{
					Done: true,
					Err:  llm.NewProviderError(llm.ProviderGoogle, "stream", llm.Classify(err)),
				})
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case out <- llm.StreamChunk{Content: text}:
			case <-ctx.Done():
				return
			}
		}
		sendChunk(ctx, out, llm.StreamChunk{Done: true})
	}()
	return out, nil
}

// WarmUp issues a minimal throwaway generation.
func (p *GoogleProvider) WarmUp(ctx context.Context) bool {
	maxTokens := 5
	_, err := p.Generate(ctx, "Hello", &llm.GenerateOptions{MaxTokens: &maxTokens})
	if err != nil {
		logger.Debug("gemini warm-up failed", "error", err)
	}
	return err == nil
}

func (p *GoogleProvider) generationConfig(opts *llm.GenerateOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(opts.TemperatureOr(p.cfg.Temperature))),
		MaxOutputTokens: int32(opts.MaxTokensOr(p.cfg.MaxTokens)),
	}
	if sys := opts.SystemPrompt(); sys != "" {
		config.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	return config
}
