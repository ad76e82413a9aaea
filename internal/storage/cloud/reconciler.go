package cloud

import (
	"context"
	"log"
	"time"
)

// Reconciler repairs metadata rows marked vector_missing after a failed
// vector write on Store, sweeping against the SQL service's view of the
// world, since it is authoritative. It does not remove stray vectors
// left in the index by a Delete whose vector-delete step failed.
type Reconciler struct {
	store  *Store
	stopCh chan struct{}
}

// NewReconciler builds a reconciler over an already-constructed Store.
func NewReconciler(store *Store) *Reconciler {
	return &Reconciler{store: store, stopCh: make(chan struct{})}
}

// Run starts the reconciliation loop on the given interval, blocking
// until ctx is cancelled or Stop is called. Mirrors the embedded
// backup service's ticker-driven loop shape.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("cloud: reconciler started, interval=%v", interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("cloud: reconciler stopping (context cancelled)")
			return ctx.Err()
		case <-r.stopCh:
			log.Println("cloud: reconciler stopping (stop requested)")
			return nil
		case <-ticker.C:
			if err := r.ReconcileOnce(ctx); err != nil {
				log.Printf("cloud: reconciler sweep failed: %v", err)
			}
		}
	}
}

// Stop signals Run to exit. Safe to call once; a second call panics on
// the closed channel, same trade-off the embedded backup service makes.
func (r *Reconciler) Stop() { close(r.stopCh) }

// ReconcileOnce runs a single sweep: re-embed and re-insert every
// vector_missing row, reporting how many it fixed.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	fixed, err := r.reconcileMissingVectors(ctx)
	if err != nil {
		return err
	}
	if fixed > 0 {
		log.Printf("cloud: reconciler repaired %d vector_missing rows", fixed)
	}
	return nil
}

const reconcileBatchSize = 200

func (r *Reconciler) reconcileMissingVectors(ctx context.Context) (int, error) {
	mems, err := r.store.sql.listVectorMissing(ctx, reconcileBatchSize)
	if err != nil {
		return 0, err
	}

	fixed := 0
	for _, mem := range mems {
		embedding := mem.Embedding
		if len(embedding) == 0 {
			result, err := r.store.embed.Embed(ctx, mem.Content)
			if err != nil {
				log.Printf("cloud: reconciler failed to re-embed %s: %v", mem.ContentHash, err)
				continue
			}
			embedding = result.Vector
		}

		if err := r.store.vectors.upsert(ctx, mem.ContentHash, embedding, mem.MemoryType); err != nil {
			log.Printf("cloud: reconciler vector upsert still failing for %s: %v", mem.ContentHash, err)
			continue
		}
		if err := r.store.sql.markVectorMissing(ctx, mem.ContentHash, false); err != nil {
			log.Printf("cloud: reconciler failed to clear vector_missing for %s: %v", mem.ContentHash, err)
			continue
		}
		fixed++
	}
	return fixed, nil
}
