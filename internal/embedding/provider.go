// Package embedding turns memory text into vectors, with a process-wide
// cache, a deterministic fallback when the configured model is unavailable,
// and retry/circuit-breaker protection around remote providers.
package embedding

import (
	"context"
)

// Provider is the contract every embedding backend implements: ollama or
// openai (through LLMAdapter), or the built-in hashed-token fallback. It must be
// deterministic for identical input and safe for concurrent use.
type Provider interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedMany batches multiple texts. Implementations that lack native
	// batch support may embed sequentially; callers should prefer this
	// over a loop of Embed so batching providers get the benefit.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the fixed output width of this provider's vectors.
	// A storage backend captures this at creation and rejects any later
	// provider whose dimension differs.
	Dimension() int

	// Model identifies the underlying model, for cache keying and stats.
	Model() string
}

// Result pairs a vector with whether it came from the fallback provider,
// so callers can tag the memory's metadata accordingly.
type Result struct {
	Vector   []float32
	Fallback bool
}
