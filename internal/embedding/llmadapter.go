package embedding

import (
	"context"
	"fmt"

	"github.com/scrypster/memento/internal/llm"
)

// LLMAdapter adapts an internal/llm.EmbeddingGenerator (ollama, openai, ...)
// to the embedding.Provider contract expected by Service. The generators
// don't know their own output dimension up front, so it's supplied by the
// caller (from config) rather than probed at construction time.
type LLMAdapter struct {
	gen  llm.EmbeddingGenerator
	dim  int
	name string
}

// NewLLMAdapter wraps gen. dim is the configured embedding dimension for
// the model backing gen; it is used for validation and for sizing the
// deterministic fallback when gen is unavailable.
func NewLLMAdapter(gen llm.EmbeddingGenerator, dim int) *LLMAdapter {
	return &LLMAdapter{gen: gen, dim: dim, name: gen.GetModel()}
}

func (a *LLMAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := a.gen.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if a.dim > 0 && len(v) != a.dim {
		return nil, fmt.Errorf("embedding: model %s returned dimension %d, want %d", a.name, len(v), a.dim)
	}
	return v, nil
}

func (a *LLMAdapter) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := a.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (a *LLMAdapter) Dimension() int { return a.dim }

func (a *LLMAdapter) Model() string { return a.name }
