// Package providers contains the concrete backend adapters and the default
// factory that materializes them from configuration.
package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"inkwell-backend/internal/llm"
	"inkwell-backend/internal/logger"
)

// OllamaProvider adapts a local or LAN Ollama server to the llm.Provider
// interface using the native /api/generate protocol.
type OllamaProvider struct {
	cfg    *llm.BackendConfig
	client *api.Client
}

var _ llm.Provider = (*OllamaProvider)(nil)

// NewOllamaProvider creates an adapter for the Ollama endpoint in cfg.
func NewOllamaProvider(cfg *llm.BackendConfig) (*OllamaProvider, error) {
	baseURL, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, llm.NewProviderError(llm.ProviderOllama, "init", err)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &OllamaProvider{
		cfg:    cfg,
		client: api.NewClient(baseURL, httpClient),
	}, nil
}

// Config returns the configuration this provider was built from.
func (p *OllamaProvider) Config() *llm.BackendConfig {
	return p.cfg
}

// CheckAvailability reports whether the server answers and hosts the
// configured model. Both halves matter: a reachable server without the model
// would still fail every generation.
func (p *OllamaProvider) CheckAvailability(ctx context.Context) bool {
	if err := p.client.Heartbeat(ctx); err != nil {
		logger.Debug("ollama heartbeat failed", "endpoint", p.cfg.Endpoint, "error", err)
		return false
	}

	resp, err := p.client.List(ctx)
	if err != nil {
		return false
	}
	for _, m := range resp.Models {
		if m.Name == p.cfg.Model || strings.TrimSuffix(m.Name, ":latest") == p.cfg.Model {
			return true
		}
	}
	logger.Debug("ollama model not present", "endpoint", p.cfg.Endpoint, "model", p.cfg.Model)
	return false
}

// Generate performs a blocking generation request.
func (p *OllamaProvider) Generate(ctx context.Context, prompt string, opts *llm.GenerateOptions) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   p.cfg.Model,
		Prompt:  prompt,
		System:  opts.SystemPrompt(),
		Stream:  &stream,
		Options: p.requestOptions(opts),
	}

	var sb strings.Builder
	err := p.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", llm.NewProviderError(llm.ProviderOllama, "generate", llm.Classify(err))
	}
	return sb.String(), nil
}

// Stream performs a streaming generation request. Chunks arrive on the
// returned channel; the channel closes after the terminal chunk.
func (p *OllamaProvider) Stream(ctx context.Context, prompt string, opts *llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	stream := true
	req := &api.GenerateRequest{
		Model:   p.cfg.Model,
		Prompt:  prompt,
		System:  opts.SystemPrompt(),
		Stream:  &stream,
		Options: p.requestOptions(opts),
	}

	out := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(out)

		err := p.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
			select {
			case out <- llm.StreamChunk{Content: resp.Response, Done: resp.Done}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			sendChunk(ctx, out, llm.StreamChunk{
				Done: true,
				Err:  llm.NewProviderError(llm.ProviderOllama, "stream", llm.Classify(err)),
			})
		}
	}()
	return out, nil
}

// WarmUp forces the server to load the model by running a tiny generation.
func (p *OllamaProvider) WarmUp(ctx context.Context) bool {
	maxTokens := 5
	_, err := p.Generate(ctx, "Hello", &llm.GenerateOptions{MaxTokens: &maxTokens})
	if err != nil {
		logger.Debug("ollama warm-up failed", "endpoint", p.cfg.Endpoint, "error", err)
	}
	return err == nil
}

func (p *OllamaProvider) requestOptions(opts *llm.GenerateOptions) map[string]any {
	return map[string]any{
		"temperature": opts.TemperatureOr(p.cfg.Temperature),
		"num_predict": opts.MaxTokensOr(p.cfg.MaxTokens),
	}
}
