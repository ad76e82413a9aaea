package consolidation_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/internal/consolidation"
)

func TestLoadConfigFile_OverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consolidation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
min_cluster_size: 8
preserve_originals: false
`), 0o600))

	cfg, err := consolidation.LoadConfigFile(path)
	require.NoError(t, err)

	defaults := consolidation.DefaultConfig()
	assert.Equal(t, 8, cfg.MinClusterSize)
	assert.False(t, cfg.PreserveOriginals)
	assert.Equal(t, defaults.SampleSize, cfg.SampleSize)
	assert.Equal(t, defaults.RelevanceThreshold, cfg.RelevanceThreshold)
}

func TestLoadConfigFile_MissingFileReturnsError(t *testing.T) {
	_, err := consolidation.LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigFile_InvalidYAMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o600))

	_, err := consolidation.LoadConfigFile(path)
	assert.Error(t, err)
}
