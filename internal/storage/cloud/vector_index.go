package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/scrypster/memento/internal/storage"
)

// vectorIndexConfig configures the managed Weaviate class backing the
// cloud backend's search-acceleration structure. The SQL metadata
// service remains authoritative; this is a disposable index that the
// reconciler can rebuild from scratch.
type vectorIndexConfig struct {
	Host      string
	Scheme    string
	APIKey    string
	ClassName string
}

// vectorIndex wraps a Weaviate class configured with vectorizer "none"
// (callers always supply their own embedding). Schema creation is
// idempotent and guarded so concurrent callers don't race to create it.
type vectorIndex struct {
	cfg    vectorIndexConfig
	client *weaviate.Client

	ensureMu   sync.Mutex
	ensureDone bool
}

func newVectorIndex(cfg vectorIndexConfig) (*vectorIndex, error) {
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.ClassName == "" {
		cfg.ClassName = "Memory"
	}
	wcfg := weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	}
	if cfg.APIKey != "" {
		wcfg.Headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, storage.Wrap(storage.KindMisconfigured, "create weaviate client", "", err)
	}
	return &vectorIndex{cfg: cfg, client: client}, nil
}

// weaviateNamespace produces deterministic object IDs from content
// hashes so repeated upserts of the same memory land on the same
// Weaviate object rather than accumulating duplicates.
var weaviateNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("memento.cloud.vector-index"))

func weaviateObjectID(contentHash string) string {
	return uuid.NewSHA1(weaviateNamespace, []byte(contentHash)).String()
}

// ensureSchema creates the backing Weaviate class on first successful
// call and remembers that success permanently. A failure (Weaviate
// unreachable, transient network error) is never cached: the next
// caller — an upsert, a search, or the reconciler's periodic sweep —
// retries from scratch instead of being locked out for the process
// lifetime by one bad moment at startup.
func (v *vectorIndex) ensureSchema(ctx context.Context, dimension int) error {
	v.ensureMu.Lock()
	defer v.ensureMu.Unlock()
	if v.ensureDone {
		return nil
	}

	exists, err := v.client.Schema().ClassExistenceChecker().WithClassName(v.cfg.ClassName).Do(ctx)
	if err != nil {
		return storage.Wrap(storage.KindIO, "check weaviate class existence", "", err)
	}
	if exists {
		v.ensureDone = true
		return nil
	}

	class := &models.Class{
		Class:      v.cfg.ClassName,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "contentHash", DataType: []string{"text"}},
			{Name: "memoryType", DataType: []string{"text"}},
		},
	}
	if err := v.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return storage.Wrap(storage.KindIO, "create weaviate class", "", err)
	}
	log.Printf("cloud: created weaviate class %s (dim=%d)", v.cfg.ClassName, dimension)
	v.ensureDone = true
	return nil
}

// upsert writes or replaces the vector for one memory.
func (v *vectorIndex) upsert(ctx context.Context, contentHash string, embedding []float32, memoryType string) error {
	if err := v.ensureSchema(ctx, len(embedding)); err != nil {
		return err
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	obj := &models.Object{
		Class: v.cfg.ClassName,
		ID:    strfmt.UUID(weaviateObjectID(contentHash)),
		Properties: map[string]any{
			"contentHash": contentHash,
			"memoryType":  memoryType,
		},
		Vector: vec,
	}

	_, err := v.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return storage.Wrap(storage.KindIO, "weaviate batch upsert", contentHash, err)
	}
	return nil
}

// search runs a kNN query and returns content hashes with their cosine
// similarity (1 - certainty's complement, since Weaviate's "certainty"
// for cosine distance is already a 0..1 similarity-like score).
func (v *vectorIndex) search(ctx context.Context, queryVector []float32, topK int, memoryTypeFilter string) ([]vectorHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec := make([]float32, len(queryVector))
	copy(vec, queryVector)

	nearVector := v.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	builder := v.client.GraphQL().Get().
		WithClassName(v.cfg.ClassName).
		WithNearVector(nearVector).
		WithLimit(topK).
		WithFields(
			graphql.Field{Name: "contentHash"},
			graphql.Field{Name: "memoryType"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{
				{Name: "certainty"},
				{Name: "distance"},
			}},
		)

	if memoryTypeFilter != "" {
		where := filters.Where().
			WithPath([]string{"memoryType"}).
			WithOperator(filters.Equal).
			WithValueText(memoryTypeFilter)
		builder = builder.WithWhere(where)
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		return nil, storage.Wrap(storage.KindIO, "weaviate nearVector search", "", err)
	}
	if len(resp.Errors) > 0 {
		return nil, storage.Wrap(storage.KindIO, fmt.Sprintf("weaviate graphql error: %s", resp.Errors[0].Message), "", nil)
	}

	raw, err := json.Marshal(resp.Data["Get"])
	if err != nil {
		return nil, storage.Wrap(storage.KindIO, "marshal weaviate response", "", err)
	}
	var payload map[string][]struct {
		ContentHash string `json:"contentHash"`
		MemoryType  string `json:"memoryType"`
		Additional  struct {
			Certainty *float64 `json:"certainty"`
			Distance  *float64 `json:"distance"`
		} `json:"_additional"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, storage.Wrap(storage.KindIO, "decode weaviate response", "", err)
	}

	rows := payload[v.cfg.ClassName]
	out := make([]vectorHit, 0, len(rows))
	for _, r := range rows {
		sim := 0.0
		switch {
		case r.Additional.Certainty != nil:
			sim = *r.Additional.Certainty
		case r.Additional.Distance != nil:
			sim = 1.0 - *r.Additional.Distance
		}
		out = append(out, vectorHit{ContentHash: r.ContentHash, Similarity: sim})
	}
	return out, nil
}

func (v *vectorIndex) delete(ctx context.Context, contentHash string) error {
	err := v.client.Data().Deleter().
		WithClassName(v.cfg.ClassName).
		WithID(weaviateObjectID(contentHash)).
		Do(ctx)
	if err != nil {
		return storage.Wrap(storage.KindIO, "weaviate delete", contentHash, err)
	}
	return nil
}

type vectorHit struct {
	ContentHash string
	Similarity  float64
}
