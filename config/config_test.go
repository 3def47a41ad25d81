package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8090" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.DBPath != "data/redress.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.SourcesFile != "sources.yaml" {
		t.Errorf("SourcesFile = %q", cfg.SourcesFile)
	}
	if cfg.Scheduler.CheckInterval != time.Minute {
		t.Errorf("CheckInterval = %v", cfg.Scheduler.CheckInterval)
	}
	if cfg.Scheduler.MaxFailCount != 10 {
		t.Errorf("MaxFailCount = %d", cfg.Scheduler.MaxFailCount)
	}
}

func TestLoad_File(t *testing.T) {
	yaml := `
db_path: "/tmp/redress.db"
sources_file: "/etc/redress/sources.yaml"
snapshot_dir: "/var/lib/redress/snapshots"
chunk:
  size: 900
  overlap: 150
fetch:
  timeout: 45s
  max_bytes: 5242880
  user_agent: "redress-test/0.1"
  rate_per_sec: 0.5
  burst: 2
embed:
  endpoint: "http://localhost:8003"
  api_key: "sk-test"
  model: "text-embedding-3-small"
  dimension: 1536
retrieval:
  limit: 12
  aux_timeout: 5s
timeline:
  enforcement_date: 2026-01-05
scheduler:
  check_interval: 2m
  max_fail_count: 3
`
	path := filepath.Join(t.TempDir(), "redress.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Unset top-level fields still get defaults.
	if cfg.Addr != ":8090" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.DBPath != "/tmp/redress.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.SnapshotDir != "/var/lib/redress/snapshots" {
		t.Errorf("SnapshotDir = %q", cfg.SnapshotDir)
	}
	if cfg.Chunk.Size != 900 || cfg.Chunk.Overlap != 150 {
		t.Errorf("Chunk = %+v", cfg.Chunk)
	}
	if cfg.Fetch.Timeout != 45*time.Second {
		t.Errorf("Fetch.Timeout = %v", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.MaxBytes != 5242880 {
		t.Errorf("Fetch.MaxBytes = %d", cfg.Fetch.MaxBytes)
	}
	if cfg.Fetch.RatePerSec != 0.5 {
		t.Errorf("Fetch.RatePerSec = %v", cfg.Fetch.RatePerSec)
	}
	if cfg.Embed.Endpoint != "http://localhost:8003" {
		t.Errorf("Embed.Endpoint = %q", cfg.Embed.Endpoint)
	}
	if cfg.Embed.APIKey != "sk-test" {
		t.Errorf("Embed.APIKey = %q", cfg.Embed.APIKey)
	}
	if cfg.Embed.Dimension != 1536 {
		t.Errorf("Embed.Dimension = %d", cfg.Embed.Dimension)
	}
	if cfg.Retrieval.Limit != 12 {
		t.Errorf("Retrieval.Limit = %d", cfg.Retrieval.Limit)
	}
	if cfg.Retrieval.AuxTimeout != 5*time.Second {
		t.Errorf("Retrieval.AuxTimeout = %v", cfg.Retrieval.AuxTimeout)
	}
	want := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	if !cfg.Timeline.EnforcementDate.Equal(want) {
		t.Errorf("EnforcementDate = %v, want %v", cfg.Timeline.EnforcementDate, want)
	}
	if cfg.Scheduler.CheckInterval != 2*time.Minute {
		t.Errorf("CheckInterval = %v", cfg.Scheduler.CheckInterval)
	}
	if cfg.Scheduler.MaxFailCount != 3 {
		t.Errorf("MaxFailCount = %d", cfg.Scheduler.MaxFailCount)
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("addr: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
