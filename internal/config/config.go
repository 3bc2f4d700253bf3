// Package config loads the daemon's YAML configuration file (spec §6):
// global-settings, backends, and resources. Struct shape follows the
// teacher's layered *Config composition (internal/broker.Config wrapping
// internal/partition.PartitionConfig), generalized with yaml.v3 tags
// since this config is read from a file rather than constructed by a
// parent package.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bsc-ssrg/echofs-ng/pkg/sizeunit"
)

// GlobalSettings is the config file's global-settings section.
type GlobalSettings struct {
	RootDir      string `yaml:"root-dir"`
	MountDir     string `yaml:"mount-dir"`
	ResultsDir   string `yaml:"results-dir"`
	LogFile      string `yaml:"log-file"`
	Workers      int    `yaml:"workers"`
	TransferSize string `yaml:"transfer-size"`
}

// Backend is one entry of the config file's backends list.
type Backend struct {
	ID          string `yaml:"id"`
	Type        string `yaml:"type"`
	Capacity    string `yaml:"capacity"`
	DaxFS       string `yaml:"daxfs"`
	SegmentSize string `yaml:"segment-size,omitempty"`
}

// Resource is one preload entry of the config file's resources list.
type Resource struct {
	Path    string `yaml:"path"`
	Backend string `yaml:"backend"`
	Flags   string `yaml:"flags,omitempty"`
}

// Config is the fully parsed daemon configuration file (spec §6).
type Config struct {
	Global    GlobalSettings `yaml:"global-settings"`
	Backends  []Backend      `yaml:"backends"`
	Resources []Resource     `yaml:"resources"`
}

// Default values applied when the config file omits them (spec §6).
const (
	DefaultWorkers      = 8
	DefaultTransferSize = "128K"
)

// Load reads and parses the YAML file at path, applying defaults and
// validating required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.Global.Workers == 0 {
		cfg.Global.Workers = DefaultWorkers
	}
	if cfg.Global.TransferSize == "" {
		cfg.Global.TransferSize = DefaultTransferSize
	}

	for i, b := range cfg.Backends {
		if b.ID == "" {
			return nil, fmt.Errorf("config: backend %d missing id", i)
		}
		if b.Type != "NVRAM-NVML" {
			return nil, fmt.Errorf("config: backend %q has unsupported type %q", b.ID, b.Type)
		}
		if b.DaxFS == "" {
			return nil, fmt.Errorf("config: backend %q missing daxfs", b.ID)
		}
		if _, err := sizeunit.Parse(b.Capacity); err != nil {
			return nil, fmt.Errorf("config: backend %q: %w", b.ID, err)
		}
	}

	return &cfg, nil
}

// TransferSizeBytes resolves the configured transfer-size string to a
// byte count.
func (c *Config) TransferSizeBytes() (int64, error) {
	return sizeunit.Parse(c.Global.TransferSize)
}

// CapacityBytes resolves a backend's capacity string to a byte count.
func (b *Backend) CapacityBytes() (int64, error) {
	return sizeunit.Parse(b.Capacity)
}
