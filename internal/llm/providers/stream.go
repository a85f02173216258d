package providers

import (
	"context"

	"inkwell-backend/internal/llm"
)

// sendChunk delivers a chunk unless the consumer has gone away. Terminal
// chunks in particular must not leave a producer blocked on a channel
// nobody reads after the context is cancelled.
func sendChunk(ctx context.Context, out chan<- llm.StreamChunk, chunk llm.StreamChunk) {
	select {
	case out <- chunk:
	case <-ctx.Done():
	}
}
