package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChannelSpec defines one cross-platform channel in channels.yaml: a human
// label, the native channel id per platform, and optional adapter-specific
// metadata (webhook credentials and the like).
type ChannelSpec struct {
	Name  string            `yaml:"name" json:"name"`
	IDs   map[string]string `yaml:"ids" json:"ids"`
	Extra map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// channelsFile is the top-level structure of channels.yaml.
type channelsFile struct {
	Channels []ChannelSpec `yaml:"channels"`
}

// LoadChannelSpecs reads and parses a channels.yaml file.
func LoadChannelSpecs(path string) ([]ChannelSpec, error) {
	if path == "" {
		path = GetChannelsPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // no channels.yaml → nothing to relay, still valid
		}
		return nil, fmt.Errorf("read channels.yaml: %w", err)
	}

	var f channelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse channels.yaml: %w", err)
	}
	for i, spec := range f.Channels {
		if spec.Name == "" {
			return nil, fmt.Errorf("channels.yaml: channel %d has no name", i)
		}
	}
	return f.Channels, nil
}
