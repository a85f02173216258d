package llm

import (
	"context"
)

// Provider is the uniform capability interface every backend adapter
// implements. Protocol differences (request envelope, auth header scheme,
// response parsing) are entirely internal to the concrete adapters.
type Provider interface {
	// Config returns the configuration this provider was built from.
	Config() *BackendConfig

	// CheckAvailability is a lightweight reachability probe. It never
	// returns an error for unreachability; it reports false.
	CheckAvailability(ctx context.Context) bool

	// Generate performs a single blocking generation request. Failures are
	// classified into the package's sentinel error kinds before returning.
	Generate(ctx context.Context, prompt string, opts *GenerateOptions) (string, error)

	// Stream performs a streaming generation request. The returned channel
	// yields incremental chunks and is closed after a chunk with Done set.
	// Cancelling ctx stops the stream and releases the connection.
	Stream(ctx context.Context, prompt string, opts *GenerateOptions) (<-chan StreamChunk, error)

	// WarmUp issues a minimal throwaway generation to force backend-side
	// model loading. Failures are swallowed into the boolean outcome.
	WarmUp(ctx context.Context) bool
}

// ProviderFactory creates Provider instances from configuration.
// The concrete implementation lives in the providers package to avoid an
// import cycle.
type ProviderFactory interface {
	Create(cfg *BackendConfig) (Provider, error)
}
