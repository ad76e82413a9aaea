// Package consolidation implements the scheduled background pipeline that
// keeps a memory store healthy over time: exponential relevance decay,
// associative link discovery, density-based clustering, cluster
// compression into summaries, and controlled forgetting of stale content.
//
// Every stage talks to the store exclusively through storage.Store — the
// pipeline has no privileged path into a concrete backend, matching the
// normal caller the MCP/HTTP surfaces use.
package consolidation

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrypster/memento/internal/embedding"
	"github.com/scrypster/memento/internal/planner"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// Config holds every tunable the pipeline's five stages use. New uses the
// values as given; DefaultConfig returns the defaults. Only sampleActive
// substitutes 2000 for a non-positive SampleSize.
type Config struct {
	// SampleSize bounds how many memories a stage pulls from the store per
	// run via GetRecent. This stands in for "every active memory" on
	// stores too large to enumerate in full within one pass.
	SampleSize int

	RelevanceThreshold float64 // forgetting: r below this is a candidate
	AccessThresholdDays float64 // forgetting: no access in this many days
	ForgetGraceDays     float64 // forgetting: archived this long before hard delete

	MaxAssociationPairs int     // associative discovery: cap per run
	MinSimilarity       float64 // associative discovery: lower bound of the "interesting middle"
	MaxSimilarity       float64 // associative discovery: upper bound

	MinClusterSize     int  // clustering: minimum members to count as a cluster
	CompressionMinSize int  // compression: minimum cluster size to compress
	PreserveOriginals  bool // compression: keep member memories after compressing
}

// DefaultConfig returns spec §4.H's stated defaults.
func DefaultConfig() Config {
	return Config{
		SampleSize:          2000,
		RelevanceThreshold:  0.1,
		AccessThresholdDays: 90,
		ForgetGraceDays:     30,
		MaxAssociationPairs: 100,
		MinSimilarity:       0.3,
		MaxSimilarity:       0.7,
		MinClusterSize:      5,
		CompressionMinSize:  5,
		PreserveOriginals:   true,
	}
}

// Reserved tags and memory types the pipeline's derived entities carry, so
// later passes (and external callers) can recognize system-produced
// memories without a dedicated side table.
const (
	TagAssociation    = "consolidated:association"
	TagCluster        = "consolidated:cluster"
	MemoryTypeAssoc   = "association"
	MemoryTypeCluster = "cluster"
)

// StageResult reports one stage's own success metrics. A stage that fails
// partway still returns whatever it completed plus the error; the
// pipeline logs it and moves on to the next stage.
type StageResult struct {
	Stage     string
	Processed int
	Produced  int
	Err       error
}

// RunResult is the outcome of one RunAll pass: every stage's own result,
// in execution order. Errors in one stage do not suppress the others.
type RunResult struct {
	Stages  []StageResult
	Started time.Time
	Elapsed time.Duration
}

// Pipeline runs the five consolidation stages against a single store. Runs
// are serialized: a second RunAll while one is in flight blocks on mu
// rather than racing the store.
type Pipeline struct {
	store  storage.Store
	embed  *embedding.Service
	weights planner.Weights
	cfg    Config

	mu sync.Mutex
}

// New builds a Pipeline over an already-initialized store.
func New(store storage.Store, embed *embedding.Service, cfg Config) *Pipeline {
	return &Pipeline{store: store, embed: embed, weights: planner.DefaultWeights(), cfg: cfg}
}

// WithWeights overrides the planner weights used by stages that score
// candidates (associative discovery, clustering).
func (p *Pipeline) WithWeights(w planner.Weights) *Pipeline {
	p.weights = w
	return p
}

// RunAll runs every stage in spec order: decay, associative
// discovery, clustering, compression, forgetting. Each stage acquires
// only the normal storage interface and reports its own metrics; a
// failure in one does not prevent the next from running.
func (p *Pipeline) RunAll(ctx context.Context) RunResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := RunResult{Started: time.Now()}
	defer func() { result.Elapsed = time.Since(result.Started) }()

	stages := []func(context.Context) StageResult{
		p.runDecay,
		p.runAssociativeDiscovery,
		p.runClustering,
		p.runCompression,
		p.runForgetting,
	}

	for _, stage := range stages {
		if ctx.Err() != nil {
			break
		}
		r := stage(ctx)
		if r.Err != nil {
			log.Printf("consolidation: stage %s failed after processing %d: %v", r.Stage, r.Processed, r.Err)
		} else {
			log.Printf("consolidation: stage %s processed=%d produced=%d", r.Stage, r.Processed, r.Produced)
		}
		result.Stages = append(result.Stages, r)
	}
	return result
}

// sampleActive pulls up to cfg.SampleSize of the most recently touched
// active memories, the pipeline's stand-in for "every active memory" on a
// store too large to enumerate in one pass.
func (p *Pipeline) sampleActive(ctx context.Context) ([]*types.Memory, error) {
	n := p.cfg.SampleSize
	if n <= 0 {
		n = 2000
	}
	mems, err := p.store.GetRecent(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("consolidation: sample active memories: %w", err)
	}
	return mems, nil
}

// nowSeconds is time.Now() in the fractional-epoch-seconds form every
// timestamp comparison in this system uses (spec: floating seconds
// everywhere, never integers).
func nowSeconds() float64 {
	return types.TimeToSeconds(time.Now())
}

// embeddingOf returns mem's embedding, re-embedding its content through the
// configured provider when the store didn't carry one back out (true for
// every cloud-backend read; pgvector there is a write-only fallback
// column, not a read path).
func (p *Pipeline) embeddingOf(ctx context.Context, mem *types.Memory) ([]float32, error) {
	if len(mem.Embedding) > 0 {
		return mem.Embedding, nil
	}
	result, err := p.embed.Embed(ctx, mem.Content)
	if err != nil {
		return nil, err
	}
	return result.Vector, nil
}

const embedFanOut = 8

// embedAllBounded resolves every memory's embedding concurrently, capped
// at embedFanOut in flight, so associative discovery and clustering don't
// serialize the remote-embedding round trips a cloud-backend re-embed
// requires. A failed lookup leaves that slot nil rather than aborting the
// whole batch; callers already treat nil vectors as skippable.
func (p *Pipeline) embedAllBounded(ctx context.Context, mems []*types.Memory) [][]float32 {
	out := make([][]float32, len(mems))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedFanOut)
	for i, m := range mems {
		i, m := i, m
		g.Go(func() error {
			v, err := p.embeddingOf(gctx, m)
			if err != nil {
				return nil // skip, don't fail the batch
			}
			out[i] = v
			return nil
		})
	}
	_ = g.Wait()
	return out
}
