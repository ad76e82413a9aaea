package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// FallbackProvider produces a deterministic, lower-quality embedding by
// hashing each token of the input into a bucket of a fixed-width vector.
// It never fails and never calls out to a network, so the service stays up
// when the configured model is unreachable. Vectors it produces should be
// tagged with types.ReservedFallbackEmbeddingTag by the caller so
// consolidation can skip building associations out of them.
type FallbackProvider struct {
	dimension int
}

// NewFallbackProvider builds a fallback provider with the given output width.
func NewFallbackProvider(dimension int) *FallbackProvider {
	if dimension <= 0 {
		dimension = 256
	}
	return &FallbackProvider{dimension: dimension}
}

func (p *FallbackProvider) Dimension() int { return p.dimension }

func (p *FallbackProvider) Model() string { return "fallback-hashed-bow" }

func (p *FallbackProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return hashedBagOfTokens(text, p.dimension), nil
}

func (p *FallbackProvider) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashedBagOfTokens(t, p.dimension)
	}
	return out, nil
}

// hashedBagOfTokens tokenizes on whitespace, hashes each token with
// SHA-256, and accumulates a signed +1/-1 weight into a bucket of the
// output vector chosen by the hash. The result is L2-normalized so its
// magnitude is comparable to a real model's embeddings.
func hashedBagOfTokens(text string, dim int) []float32 {
	vec := make([]float64, dim)
	tokens := strings.Fields(strings.ToLower(text))
	for _, tok := range tokens {
		sum := sha256.Sum256([]byte(tok))
		bucket := binary.BigEndian.Uint64(sum[0:8]) % uint64(dim)
		sign := 1.0
		if sum[8]&1 == 1 {
			sign = -1.0
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dim)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
