package types

// Association is an ordered pair of memories whose embeddings land in the
// "interesting middle" of cosine similarity (0.3-0.7): similar enough to be
// related, dissimilar enough not to be redundant duplicates.
type Association struct {
	HashA        string  `json:"hash_a"`
	HashB        string  `json:"hash_b"`
	Strength     float64 `json:"strength"`
	DiscoveredAt float64 `json:"discovered_at"`
}

// Cluster is a set of member memories discovered by density-based
// clustering over the embedding space, with a centroid and a theme label.
type Cluster struct {
	ID         string    `json:"id"`
	MemberHashes []string  `json:"member_hashes"`
	Centroid   []float32 `json:"centroid"`
	Theme      string    `json:"theme"`
	CreatedAt  float64   `json:"created_at"`
}

// CompressedSummary describes the provenance of a memory produced by the
// compression stage: it is itself stored as a regular Memory (tagged
// ReservedCompressedTag), this struct just carries the back-reference list
// so callers don't need to parse it back out of metadata.
type CompressedSummary struct {
	SummaryHash string   `json:"summary_hash"`
	SourceHashes []string `json:"source_hashes"`
	ClusterID   string   `json:"cluster_id"`
}

// MemoryType bonus table (spec §4.G). Unknown types get 0.
var memoryTypeBonus = map[string]float64{
	"decision":     0.30,
	"architecture": 0.30,
	"reference":    0.20,
	"insight":      0.20,
	"session":      0.15,
	"bug-fix":      0.15,
	"feature":      0.10,
	"note":         0.05,
	"todo":         0.05,
	"temporary":    -0.10,
}

// TypeBonus returns the additive ranking bonus for a memory_type, 0 for
// unrecognized types.
func TypeBonus(memoryType string) float64 {
	return memoryTypeBonus[memoryType]
}

// Half-lives (days) used by the decay consolidation stage, keyed by
// memory_type tier. Types outside this table use "standard".
var halfLifeDays = map[string]float64{
	"critical":  365,
	"reference": 180,
	"standard":  30,
	"temporary": 7,
}

// HalfLifeDays returns the decay half-life in days for a relevance tier.
// Unknown tiers fall back to "standard" (30 days).
func HalfLifeDays(tier string) float64 {
	if d, ok := halfLifeDays[tier]; ok {
		return d
	}
	return halfLifeDays["standard"]
}
