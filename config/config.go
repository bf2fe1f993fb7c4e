// Package config loads the YAML description of a region and its topics
// that cmd/ringctl builds from. Nothing in package ring or package shm
// depends on this package: the core engine only ever sees a
// ring.TopicConfig slice, never a config file.
package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/shmbus/shmbus/ring"
)

// Config is the on-disk description of one region and the topics carved
// out of it.
type Config struct {
	// Region names the /dev/shm segment to create or attach.
	Region string `yaml:"region"`
	// Size is the total region size, accepting human units ("64MB", "1GiB")
	// via datasize.ByteSize instead of a bare byte count.
	Size datasize.ByteSize `yaml:"size"`
	// Topics lists every topic to carve out of the region, in the order
	// they are laid out.
	Topics []TopicConfig `yaml:"topics"`
}

// TopicConfig is one topic entry in the YAML file.
type TopicConfig struct {
	Name       string            `yaml:"name"`
	SlotCount  uint32            `yaml:"slot_count"`
	PayloadMax datasize.ByteSize `yaml:"payload_max"`
	Kind       string            `yaml:"kind"`
}

// DefaultConfig returns the base configuration LoadConfig overlays a file
// onto: a single best-effort SWMR topic, enough to smoke-test an attach.
func DefaultConfig() *Config {
	return &Config{
		Region: "shmbus.default",
		Size:   64 * datasize.MB,
		Topics: []TopicConfig{
			{
				Name:       "default",
				SlotCount:  1024,
				PayloadMax: 1 * datasize.KB,
				Kind:       "swmr",
			},
		},
	}
}

// LoadConfig loads a region/topic configuration from a YAML file,
// starting from DefaultConfig and overlaying whatever the file specifies
// (the same DefaultConfig-then-yaml.Unmarshal shape the teacher's
// coordinator package uses for its own config).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	return cfg, nil
}

// RingTopics converts the YAML topic list into the ring.TopicConfig slice
// ring.Create expects, resolving each topic's "kind" string and byte-sized
// fields into their native ring types.
func (c *Config) RingTopics() ([]ring.TopicConfig, error) {
	out := make([]ring.TopicConfig, 0, len(c.Topics))
	for _, t := range c.Topics {
		kind, err := parseKind(t.Kind)
		if err != nil {
			return nil, fmt.Errorf("topic %q: %w", t.Name, err)
		}
		out = append(out, ring.TopicConfig{
			Name:       t.Name,
			SlotCount:  t.SlotCount,
			PayloadMax: uint32(t.PayloadMax.Bytes()),
			Kind:       kind,
		})
	}
	return out, nil
}

func parseKind(s string) (ring.RingKind, error) {
	switch s {
	case "", "swmr":
		return ring.KindSWMR, nil
	case "mwmr":
		return ring.KindMWMR, nil
	default:
		return 0, fmt.Errorf("unknown ring kind %q, want \"swmr\" or \"mwmr\"", s)
	}
}
