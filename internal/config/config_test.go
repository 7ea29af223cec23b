package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.1, cfg.Tracking.DiscRadiusMiles)
	assert.Equal(t, 0.02, cfg.Tracking.MinDistanceMiles)
	assert.Equal(t, 0.005, cfg.Tracking.ManualMinDistanceMiles)
	assert.Equal(t, "last_point", cfg.Tracking.FilterStrategy)
	assert.Equal(t, 180, cfg.Sharing.ChunkSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Sharing.WriteDelay)
	assert.Equal(t, 185, cfg.Sharing.MTUHint)
	assert.NoError(t, cfg.validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
tracking:
  disc_radius_miles: 0.25
  filter_strategy: neighborhood
sharing:
  chunk_size: 64
  known_peers:
    - id: ws://192.168.1.10:8080/ws/exchange
      name: phone
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.25, cfg.Tracking.DiscRadiusMiles)
	assert.Equal(t, "neighborhood", cfg.Tracking.FilterStrategy)
	assert.Equal(t, 64, cfg.Sharing.ChunkSize)
	require.Len(t, cfg.Sharing.KnownPeers, 1)
	assert.Equal(t, "phone", cfg.Sharing.KnownPeers[0].Name)

	// Untouched sections keep their defaults.
	assert.Equal(t, 0.02, cfg.Tracking.MinDistanceMiles)
	assert.Equal(t, "fogtrack.db", cfg.Storage.Path)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tracking:\n  filter_strategy: quadtree\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("tracking:\n  disc_radius_miles: -1\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestNewFilterStrategySelection(t *testing.T) {
	cfg := DefaultConfig().Tracking
	assert.NotNil(t, cfg.NewFilter())
	cfg.FilterStrategy = "neighborhood"
	assert.NotNil(t, cfg.NewFilter())
}
