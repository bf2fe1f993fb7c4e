package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmbus/shmbus/ring"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Len(t, cfg.Topics, 1)
	assert.Equal(t, "shmbus.default", cfg.Region)
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "region.yaml")
	yaml := `
region: telemetry
size: 16MB
topics:
  - name: events
    slot_count: 1024
    payload_max: 256B
    kind: swmr
  - name: counters
    slot_count: 64
    payload_max: 64B
    kind: mwmr
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "telemetry", cfg.Region)
	assert.Equal(t, 16*datasize.MB, cfg.Size)
	require.Len(t, cfg.Topics, 2)
	assert.Equal(t, "events", cfg.Topics[0].Name)
	assert.Equal(t, "mwmr", cfg.Topics[1].Kind)
}

func TestRingTopicsResolvesKindsAndSizes(t *testing.T) {
	cfg := &Config{
		Region: "r",
		Size:   4 * datasize.MB,
		Topics: []TopicConfig{
			{Name: "a", SlotCount: 16, PayloadMax: 128 * datasize.B, Kind: "swmr"},
			{Name: "b", SlotCount: 16, PayloadMax: 128 * datasize.B, Kind: "mwmr"},
			{Name: "c", SlotCount: 16, PayloadMax: 128 * datasize.B},
		},
	}

	topics, err := cfg.RingTopics()
	require.NoError(t, err)
	require.Len(t, topics, 3)

	assert.Equal(t, ring.KindSWMR, topics[0].Kind)
	assert.Equal(t, ring.KindMWMR, topics[1].Kind)
	assert.Equal(t, ring.KindSWMR, topics[2].Kind, "an unspecified kind defaults to SWMR")
	assert.EqualValues(t, 128, topics[0].PayloadMax)
}

func TestRingTopicsRejectsUnknownKind(t *testing.T) {
	cfg := &Config{
		Region: "r",
		Size:   datasize.MB,
		Topics: []TopicConfig{{Name: "a", SlotCount: 1, Kind: "broadcast"}},
	}
	_, err := cfg.RingTopics()
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
