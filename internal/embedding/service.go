package embedding

import (
	"context"
	"log"

	"github.com/scrypster/memento/internal/llm"
	"github.com/scrypster/memento/internal/storage"
)

// Service wraps a primary Provider with the text->vector cache, retry with
// backoff, a circuit breaker, and the deterministic fallback provider.
// Callers depend on Service, never on a bare Provider, so every embedding
// call gets the same resilience behavior regardless of backend.
type Service struct {
	primary  Provider
	fallback Provider
	breaker  *llm.CircuitBreaker
	cache    *vectorCache
	models   *modelCache
	retry    RetryConfig
}

// NewService builds a Service around primary. If primary is nil, the
// service runs permanently in fallback mode (useful for tests and for
// deployments with no configured model).
func NewService(primary Provider, retry RetryConfig) *Service {
	dim := 256
	if primary != nil {
		dim = primary.Dimension()
	}
	return &Service{
		primary:  primary,
		fallback: NewFallbackProvider(dim),
		breaker:  llm.NewCircuitBreaker(),
		cache:    newVectorCache(),
		models:   newModelCache(),
		retry:    retry,
	}
}

// Dimension returns the primary provider's width, or the fallback's when
// no primary is configured.
func (s *Service) Dimension() int {
	if s.primary != nil {
		return s.primary.Dimension()
	}
	return s.fallback.Dimension()
}

// Embed returns the vector for text, using the cache first, then the
// primary provider with retry/circuit-breaker protection, falling back to
// the deterministic hashed embedding when the primary is unavailable.
// It never returns EmbeddingUnavailable to the caller of store() — per
// spec, a store() must succeed even when the configured model is down, by
// degrading to the fallback and tagging the result so consolidation can
// treat it appropriately.
func (s *Service) Embed(ctx context.Context, text string) (Result, error) {
	if v, ok := s.cache.get(text); ok {
		return Result{Vector: v}, nil
	}

	if s.primary == nil {
		v, err := s.fallback.Embed(ctx, text)
		if err != nil {
			return Result{}, storage.EmbeddingFailed(err.Error())
		}
		return Result{Vector: v, Fallback: true}, nil
	}

	var vec []float32
	callErr := withRetry(ctx, s.retry, func() error {
		result, err := s.breaker.Execute(ctx, func() (interface{}, error) {
			return s.primary.Embed(ctx, text)
		})
		if err != nil {
			return err
		}
		vec = result.([]float32)
		return nil
	})

	if callErr == nil {
		s.cache.put(text, vec)
		return Result{Vector: vec}, nil
	}

	log.Printf("embedding: primary provider %q unavailable, using fallback: %v", s.primary.Model(), callErr)
	v, err := s.fallback.Embed(ctx, text)
	if err != nil {
		return Result{}, storage.EmbeddingFailed(err.Error())
	}
	return Result{Vector: v, Fallback: true}, nil
}

// EmbedMany embeds a batch, splitting out anything already cached and
// sending the rest to the primary provider's native EmbedMany under the
// same retry/circuit-breaker protection as Embed, falling back to the
// deterministic hashed embedding for the whole uncached remainder if the
// primary is unavailable.
func (s *Service) EmbedMany(ctx context.Context, texts []string) ([]Result, error) {
	out := make([]Result, len(texts))

	if s.primary == nil {
		for i, t := range texts {
			r, err := s.Embed(ctx, t)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}

	uncachedIdx := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))
	for i, t := range texts {
		if v, ok := s.cache.get(t); ok {
			out[i] = Result{Vector: v}
			continue
		}
		uncachedIdx = append(uncachedIdx, i)
		uncachedTexts = append(uncachedTexts, t)
	}
	if len(uncachedTexts) == 0 {
		return out, nil
	}

	var vecs [][]float32
	callErr := withRetry(ctx, s.retry, func() error {
		result, err := s.breaker.Execute(ctx, func() (interface{}, error) {
			return s.primary.EmbedMany(ctx, uncachedTexts)
		})
		if err != nil {
			return err
		}
		vecs = result.([][]float32)
		return nil
	})

	if callErr == nil {
		for j, i := range uncachedIdx {
			s.cache.put(uncachedTexts[j], vecs[j])
			out[i] = Result{Vector: vecs[j]}
		}
		return out, nil
	}

	log.Printf("embedding: primary provider %q batch unavailable, using fallback: %v", s.primary.Model(), callErr)
	fallbackVecs, err := s.fallback.EmbedMany(ctx, uncachedTexts)
	if err != nil {
		return nil, storage.EmbeddingFailed(err.Error())
	}
	for j, i := range uncachedIdx {
		out[i] = Result{Vector: fallbackVecs[j], Fallback: true}
	}
	return out, nil
}
