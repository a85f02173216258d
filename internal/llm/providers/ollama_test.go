package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell-backend/internal/llm"
)

// fakeOllama serves the subset of the Ollama API the adapter touches.
func fakeOllama(t *testing.T, models []string, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/" && (r.Method == http.MethodHead || r.Method == http.MethodGet):
			w.WriteHeader(http.StatusOK)

		case r.URL.Path == "/api/tags":
			type tag struct {
				Name string `json:"name"`
			}
			tags := make([]tag, len(models))
			for i, m := range models {
				tags[i] = tag{Name: m}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"models": tags})

		case r.URL.Path == "/api/generate":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.NotEmpty(t, req["model"])

			_ = json.NewEncoder(w).Encode(map[string]any{
				"model":    req["model"],
				"response": response,
				"done":     true,
			})

		default:
			http.NotFound(w, r)
		}
	}))
}

func ollamaConfig(t *testing.T, endpoint string) *llm.BackendConfig {
	t.Helper()
	cfg := llm.NewBackendConfig("local", "local", llm.ProviderOllama, "llama3")
	cfg.Endpoint = endpoint
	cfg.Timeout = 5 * time.Second
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestOllamaCheckAvailability(t *testing.T) {
	server := fakeOllama(t, []string{"llama3:latest", "mistral:7b"}, "")
	defer server.Close()

	p, err := NewOllamaProvider(ollamaConfig(t, server.URL))
	require.NoError(t, err)
	assert.True(t, p.CheckAvailability(context.Background()))
}

func TestOllamaCheckAvailabilityModelMissing(t *testing.T) {
	server := fakeOllama(t, []string{"mistral:7b"}, "")
	defer server.Close()

	p, err := NewOllamaProvider(ollamaConfig(t, server.URL))
	require.NoError(t, err)
	assert.False(t, p.CheckAvailability(context.Background()), "reachable server without the model is not available")
}

func TestOllamaCheckAvailabilityServerDown(t *testing.T) {
	server := fakeOllama(t, nil, "")
	server.Close()

	p, err := NewOllamaProvider(ollamaConfig(t, server.URL))
	require.NoError(t, err)
	assert.False(t, p.CheckAvailability(context.Background()))
}

func TestOllamaGenerate(t *testing.T) {
	server := fakeOllama(t, []string{"llama3:latest"}, "the answer is 42")
	defer server.Close()

	p, err := NewOllamaProvider(ollamaConfig(t, server.URL))
	require.NoError(t, err)

	text, err := p.Generate(context.Background(), "what is the answer?", nil)
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", text)
}

func TestOllamaGenerateUnreachable(t *testing.T) {
	server := fakeOllama(t, nil, "")
	server.Close()

	p, err := NewOllamaProvider(ollamaConfig(t, server.URL))
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "hi", nil)
	assert.True(t, llm.IsUnreachable(err), "got: %v", err)
}

func TestOllamaStream(t *testing.T) {
	server := fakeOllama(t, []string{"llama3:latest"}, "chunked text")
	defer server.Close()

	p, err := NewOllamaProvider(ollamaConfig(t, server.URL))
	require.NoError(t, err)

	chunks, err := p.Stream(context.Background(), "hi", nil)
	require.NoError(t, err)

	var text string
	sawDone := false
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		text += chunk.Content
		if chunk.Done {
			sawDone = true
		}
	}
	assert.Equal(t, "chunked text", text)
	assert.True(t, sawDone, "stream must end with a terminal chunk")
}

func TestOllamaStreamAbandonedConsumer(t *testing.T) {
	// Streams more chunks than the channel buffers so the producer is
	// mid-send when the consumer walks away.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 64; i++ {
			_, _ = w.Write([]byte(`{"response":"x","done":false}` + "\n"))
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}))
	defer server.Close()

	p, err := NewOllamaProvider(ollamaConfig(t, server.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	chunks, err := p.Stream(ctx, "hi", nil)
	require.NoError(t, err)

	// Abandon the stream without reading a single chunk, then cancel.
	time.Sleep(100 * time.Millisecond)
	cancel()
	time.Sleep(200 * time.Millisecond)

	// The producer must have closed the channel on its own rather than
	// blocking on a terminal chunk; only already-buffered content remains.
	for chunk := range chunks {
		assert.NoError(t, chunk.Err)
		assert.False(t, chunk.Done)
	}
}

func TestOllamaWarmUp(t *testing.T) {
	server := fakeOllama(t, []string{"llama3:latest"}, "Hi")
	defer server.Close()

	p, err := NewOllamaProvider(ollamaConfig(t, server.URL))
	require.NoError(t, err)
	assert.True(t, p.WarmUp(context.Background()))

	server.Close()
	assert.False(t, p.WarmUp(context.Background()), "warm-up failures are swallowed into false")
}
