// Package config loads the redress configuration file. Nested sections
// reuse the option structs of the packages they configure; zero values
// flow through so each package applies its own defaults at construction.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obba100/redress/chunk"
	"github.com/obba100/redress/crossref"
	"github.com/obba100/redress/docext"
	"github.com/obba100/redress/embedder"
	"github.com/obba100/redress/timeline"
)

// Config is the top-level redress configuration.
type Config struct {
	// Addr is the HTTP listen address. Default: ":8090".
	Addr string `yaml:"addr"`
	// DBPath is the SQLite database file. Default: "data/redress.db".
	DBPath string `yaml:"db_path"`
	// SourcesFile is the YAML source list synced at boot and on change.
	// Default: "sources.yaml"; a missing file skips the sync.
	SourcesFile string `yaml:"sources_file"`
	// SnapshotDir enables markdown extraction snapshots when set.
	SnapshotDir string `yaml:"snapshot_dir"`
	// FileBaseDir confines file:// source locations when set.
	FileBaseDir string `yaml:"file_base_dir"`

	Chunk     chunk.Options   `yaml:"chunk"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Extract   docext.Config   `yaml:"extract"`
	Embed     embedder.Config `yaml:"embed"`
	Retrieval crossref.Config `yaml:"retrieval"`
	Timeline  timeline.Config `yaml:"timeline"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// FetchConfig carries the fetcher knobs that belong in a config file.
type FetchConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxBytes   int64         `yaml:"max_bytes"`
	UserAgent  string        `yaml:"user_agent"`
	RatePerSec float64       `yaml:"rate_per_sec"`
	Burst      int           `yaml:"burst"`
}

// SchedulerConfig controls the ingestion scheduler.
type SchedulerConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	MaxFailCount  int           `yaml:"max_fail_count"`
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.DBPath == "" {
		c.DBPath = "data/redress.db"
	}
	if c.SourcesFile == "" {
		c.SourcesFile = "sources.yaml"
	}
	if c.Scheduler.CheckInterval <= 0 {
		c.Scheduler.CheckInterval = time.Minute
	}
	if c.Scheduler.MaxFailCount <= 0 {
		c.Scheduler.MaxFailCount = 10
	}
}

// Load reads the YAML config at path. A missing file yields pure defaults
// so a bare binary still boots; environment overrides are the mains' job.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.defaults()
	return &cfg, nil
}
