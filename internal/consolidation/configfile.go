package consolidation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with yaml tags; a zero value (or, for
// PreserveOriginals, an absent key) means "keep the DefaultConfig value,"
// as LoadConfigFile applies it.
type fileConfig struct {
	SampleSize int `yaml:"sample_size"`

	RelevanceThreshold  float64 `yaml:"relevance_threshold"`
	AccessThresholdDays float64 `yaml:"access_threshold_days"`
	ForgetGraceDays     float64 `yaml:"forget_grace_days"`

	MaxAssociationPairs int     `yaml:"max_association_pairs"`
	MinSimilarity       float64 `yaml:"min_similarity"`
	MaxSimilarity       float64 `yaml:"max_similarity"`

	MinClusterSize     int   `yaml:"min_cluster_size"`
	CompressionMinSize int   `yaml:"compression_min_size"`
	PreserveOriginals  *bool `yaml:"preserve_originals"`
}

// LoadConfigFile reads a YAML consolidation config from path, layering it
// over DefaultConfig(): any field the file omits (left at its YAML zero
// value) keeps the spec default rather than getting zeroed out, since
// false/0 are valid YAML zero values that would otherwise silently
// disable thresholds the operator didn't mean to touch.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("consolidation: read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("consolidation: parse config file: %w", err)
	}

	if fc.SampleSize != 0 {
		cfg.SampleSize = fc.SampleSize
	}
	if fc.RelevanceThreshold != 0 {
		cfg.RelevanceThreshold = fc.RelevanceThreshold
	}
	if fc.AccessThresholdDays != 0 {
		cfg.AccessThresholdDays = fc.AccessThresholdDays
	}
	if fc.ForgetGraceDays != 0 {
		cfg.ForgetGraceDays = fc.ForgetGraceDays
	}
	if fc.MaxAssociationPairs != 0 {
		cfg.MaxAssociationPairs = fc.MaxAssociationPairs
	}
	if fc.MinSimilarity != 0 {
		cfg.MinSimilarity = fc.MinSimilarity
	}
	if fc.MaxSimilarity != 0 {
		cfg.MaxSimilarity = fc.MaxSimilarity
	}
	if fc.MinClusterSize != 0 {
		cfg.MinClusterSize = fc.MinClusterSize
	}
	if fc.CompressionMinSize != 0 {
		cfg.CompressionMinSize = fc.CompressionMinSize
	}
	if fc.PreserveOriginals != nil {
		cfg.PreserveOriginals = *fc.PreserveOriginals
	}

	return cfg, nil
}
