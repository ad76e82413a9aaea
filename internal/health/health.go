// Package health wraps a storage.Store's Health/GetStats surface for
// spec §4.I: check_database_health and get_stats, plus a Prometheus
// export of the same numbers for operators who scrape rather than poll.
package health

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scrypster/memento/internal/storage"
)

// Reporter wraps a store and exposes its health/stats through both a
// direct call surface (for check_database_health/get_stats) and a
// Prometheus registry (for scrape-based monitoring).
type Reporter struct {
	store storage.Store

	totalMemories   prometheus.Gauge
	totalTags       prometheus.Gauge
	storageBytes    prometheus.Gauge
	fallbackEmbeds  prometheus.Gauge
	byMemoryType    *prometheus.GaugeVec
	healthy         prometheus.Gauge
	lastCheckedUnix prometheus.Gauge
}

// NewReporter builds a Reporter and registers its metrics on reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to expose alongside other process metrics.
func NewReporter(store storage.Store, reg prometheus.Registerer) *Reporter {
	r := &Reporter{
		store: store,
		totalMemories: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memento", Name: "memories_total", Help: "Total active memories in the store.",
		}),
		totalTags: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memento", Name: "tags_total", Help: "Distinct tags in use across active memories.",
		}),
		storageBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memento", Name: "storage_bytes", Help: "Storage size reported by the backend.",
		}),
		fallbackEmbeds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memento", Name: "fallback_embeddings_total", Help: "Memories whose embedding was produced by the fallback provider.",
		}),
		byMemoryType: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "memento", Name: "memories_by_type", Help: "Active memories per memory_type.",
		}, []string{"memory_type"}),
		healthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memento", Name: "backend_healthy", Help: "1 if the last health check succeeded, else 0.",
		}),
		lastCheckedUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memento", Name: "last_health_check_unix", Help: "Unix timestamp of the last health check.",
		}),
	}
	reg.MustRegister(r.totalMemories, r.totalTags, r.storageBytes, r.fallbackEmbeds, r.byMemoryType, r.healthy, r.lastCheckedUnix)
	return r
}

// Check runs Health against the backend, updates the healthy/timestamp
// gauges, and returns the raw status for check_database_health.
func (r *Reporter) Check(ctx context.Context) storage.HealthStatus {
	status := r.store.Health(ctx)
	if status.Healthy {
		r.healthy.Set(1)
	} else {
		r.healthy.Set(0)
	}
	r.lastCheckedUnix.Set(float64(time.Now().Unix()))
	return status
}

// Stats runs GetStats against the backend, updates every stats gauge, and
// returns the raw Stats for get_stats.
func (r *Reporter) Stats(ctx context.Context) (storage.Stats, error) {
	stats, err := r.store.GetStats(ctx)
	if err != nil {
		return stats, err
	}
	r.totalMemories.Set(float64(stats.TotalMemories))
	r.totalTags.Set(float64(stats.TotalTags))
	r.storageBytes.Set(float64(stats.StorageBytes))
	r.fallbackEmbeds.Set(float64(stats.FallbackEmbeddingCount))
	r.byMemoryType.Reset()
	for memType, count := range stats.ByMemoryType {
		r.byMemoryType.WithLabelValues(memType).Set(float64(count))
	}
	return stats, nil
}
