package consolidation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/scrypster/memento/internal/planner"
	"github.com/scrypster/memento/pkg/types"
)

// runClustering implements spec §4.H rule 3: density-based clustering over
// the embedding space (min cluster size cfg.MinClusterSize, ε chosen from
// a k-distance heuristic), persisting each cluster as a system-tagged
// memory carrying its centroid, theme, and member hashes.
func (p *Pipeline) runClustering(ctx context.Context) StageResult {
	res := StageResult{Stage: "clustering"}

	mems, err := p.sampleActive(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	mems = excludeSystemTagged(mems)
	if len(mems) < p.cfg.MinClusterSize {
		return res
	}

	vecs := p.embedAllBounded(ctx, mems)
	for _, v := range vecs {
		if v != nil {
			res.Processed++
		}
	}

	eps := kDistanceEpsilon(vecs, p.cfg.MinClusterSize)
	labels := dbscan(vecs, eps, p.cfg.MinClusterSize)

	byCluster := make(map[int][]int)
	for i, label := range labels {
		if label < 0 {
			continue // noise point
		}
		byCluster[label] = append(byCluster[label], i)
	}

	now := nowSeconds()
	for _, members := range byCluster {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		if len(members) < p.cfg.MinClusterSize {
			continue
		}
		cluster := buildCluster(mems, vecs, members, now)
		if err := p.storeCluster(ctx, cluster); err == nil {
			res.Produced++
		}
	}
	return res
}

// kDistanceEpsilon approximates the k-distance heuristic for choosing ε:
// for each point, the distance to its k-th nearest neighbor (k =
// minClusterSize) is computed, and ε is the median of those distances —
// the "knee" of the sorted k-distance curve, approximated by its midpoint
// rather than a full elbow-detection pass.
func kDistanceEpsilon(vecs [][]float32, k int) float64 {
	n := len(vecs)
	if n == 0 || k <= 0 {
		return 0.5
	}
	if k >= n {
		k = n - 1
	}
	if k <= 0 {
		return 0.5
	}

	kDistances := make([]float64, 0, n)
	for i, v := range vecs {
		if v == nil {
			continue
		}
		dists := make([]float64, 0, n-1)
		for j, w := range vecs {
			if i == j || w == nil {
				continue
			}
			dists = append(dists, cosineDistance(v, w))
		}
		sort.Float64s(dists)
		if k-1 < len(dists) {
			kDistances = append(kDistances, dists[k-1])
		}
	}
	if len(kDistances) == 0 {
		return 0.5
	}
	sort.Float64s(kDistances)
	return kDistances[len(kDistances)/2]
}

func cosineDistance(a, b []float32) float64 {
	return 1 - planner.CosineSimilarity(a, b)
}

// dbscan is a minimal density-based clustering pass: a point is a core
// point when at least minPts neighbors (including itself) fall within eps
// cosine distance; clusters grow by connecting core points and absorbing
// their neighbors. Returns a label per input index; -1 marks noise.
// nil vectors (embedding lookup failures) are always noise.
func dbscan(vecs [][]float32, eps float64, minPts int) []int {
	n := len(vecs)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	visited := make([]bool, n)
	nextLabel := 0

	neighbors := func(i int) []int {
		out := []int{}
		if vecs[i] == nil {
			return out
		}
		for j, v := range vecs {
			if v == nil || i == j {
				continue
			}
			if cosineDistance(vecs[i], v) <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	for i := 0; i < n; i++ {
		if visited[i] || vecs[i] == nil {
			continue
		}
		visited[i] = true
		neigh := neighbors(i)
		if len(neigh)+1 < minPts {
			continue // stays noise (-1)
		}

		label := nextLabel
		nextLabel++
		labels[i] = label

		queue := append([]int{}, neigh...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if !visited[j] {
				visited[j] = true
				jn := neighbors(j)
				if len(jn)+1 >= minPts {
					queue = append(queue, jn...)
				}
			}
			if labels[j] < 0 {
				labels[j] = label
			}
		}
	}
	return labels
}

// clusterInfo is the in-memory shape buildCluster/storeCluster pass
// between themselves before the cluster is written as a Memory.
type clusterInfo struct {
	Centroid []float32
	Members  []string
	Theme    string
	CreatedAt float64
}

func buildCluster(mems []*types.Memory, vecs [][]float32, indices []int, now float64) clusterInfo {
	dim := 0
	for _, i := range indices {
		if vecs[i] != nil {
			dim = len(vecs[i])
			break
		}
	}
	centroid := make([]float32, dim)
	counted := 0
	tagCounts := make(map[string]int)
	hashes := make([]string, 0, len(indices))

	for _, i := range indices {
		m := mems[i]
		hashes = append(hashes, m.ContentHash)
		for _, t := range m.Tags {
			tagCounts[t]++
		}
		if vecs[i] == nil || len(vecs[i]) != dim {
			continue
		}
		for d := 0; d < dim; d++ {
			centroid[d] += vecs[i][d]
		}
		counted++
	}
	if counted > 0 {
		for d := range centroid {
			centroid[d] /= float32(counted)
		}
	}

	return clusterInfo{Centroid: centroid, Members: hashes, Theme: majorityTagTheme(tagCounts), CreatedAt: now}
}

// majorityTagTheme implements the Open Question decision (DESIGN.md):
// theme label = the most frequently shared tags among the cluster's
// members, joined for readability. Falls back to "untagged-cluster" when
// no member carries any tag.
func majorityTagTheme(tagCounts map[string]int) string {
	if len(tagCounts) == 0 {
		return "untagged-cluster"
	}
	type tc struct {
		tag   string
		count int
	}
	pairs := make([]tc, 0, len(tagCounts))
	for t, c := range tagCounts {
		pairs = append(pairs, tc{t, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].tag < pairs[j].tag
	})
	top := pairs
	if len(top) > 3 {
		top = top[:3]
	}
	labels := make([]string, len(top))
	for i, t := range top {
		labels[i] = t.tag
	}
	return strings.Join(labels, "+")
}

func (p *Pipeline) storeCluster(ctx context.Context, c clusterInfo) error {
	id := uuid.New().String()
	content := fmt.Sprintf("cluster %s: theme=%q members=%d", id, c.Theme, len(c.Members))
	meta := types.Metadata{
		"cluster_id":     types.NewTextScalar(id),
		"theme":          types.NewTextScalar(c.Theme),
		"member_hashes":  types.NewTextScalar(marshalHashes(c.Members)),
		"member_count":   types.NewIntScalar(int64(len(c.Members))),
	}
	mem, err := types.New(content, []string{TagCluster}, MemoryTypeCluster, meta)
	if err != nil {
		return err
	}
	mem.Embedding = c.Centroid
	return p.store.Store(ctx, mem)
}
