// redress-ingest runs one ingestion pass over the configured sources and
// prints the run report as JSON on stdout. Partial failures show up in
// the report, not the exit code; only configuration or database errors
// fail the process.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/obba100/redress/config"
	"github.com/obba100/redress/corpus"
	"github.com/obba100/redress/dbopen"
	"github.com/obba100/redress/docext"
	"github.com/obba100/redress/embedder"
	"github.com/obba100/redress/internal/fetch"
	"github.com/obba100/redress/vecstore"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "redress.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	// The report goes to stdout; logs stay on stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	applyEnvOverrides(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		logger.Error("open db", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := corpus.ApplySchema(db); err != nil {
		logger.Error("corpus schema", "error", err)
		os.Exit(1)
	}
	if err := vecstore.ApplySchema(db); err != nil {
		logger.Error("vecstore schema", "error", err)
		os.Exit(1)
	}

	embCfg := cfg.Embed
	embCfg.Logger = logger
	extCfg := cfg.Extract
	extCfg.Logger = logger

	var opts []corpus.Option
	if cfg.SnapshotDir != "" {
		opts = append(opts, corpus.WithSnapshots(cfg.SnapshotDir))
	}
	svc := corpus.New(db, corpus.Deps{
		Fetcher: fetch.New(fetch.Config{
			Timeout:    cfg.Fetch.Timeout,
			MaxBytes:   cfg.Fetch.MaxBytes,
			UserAgent:  cfg.Fetch.UserAgent,
			RatePerSec: cfg.Fetch.RatePerSec,
			Burst:      cfg.Fetch.Burst,
		}),
		Extractor: docext.New(extCfg),
		Embedder:  embedder.New(embCfg),
		Vectors:   vecstore.NewStore(db),
	}, corpus.Config{Chunk: cfg.Chunk, FileBaseDir: cfg.FileBaseDir}, logger, opts...)

	specs, err := corpus.LoadSourceList(cfg.SourcesFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("no source list file, using registered sources", "path", cfg.SourcesFile)
	case err != nil:
		logger.Error("load source list", "path", cfg.SourcesFile, "error", err)
		os.Exit(1)
	default:
		added, updated, err := svc.SyncSources(ctx, specs)
		if err != nil {
			logger.Error("sync sources", "error", err)
			os.Exit(1)
		}
		logger.Info("source list synced", "added", added, "updated", updated)
	}

	rep, err := svc.Run(ctx)
	if err != nil {
		logger.Error("ingestion run", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		logger.Error("encode report", "error", err)
		os.Exit(1)
	}
	if rep.Failed > 0 {
		logger.Warn("run finished with failed sources", "failed", rep.Failed)
	}
}

// applyEnvOverrides mirrors redressd: the environment wins over the file
// for paths and embedding credentials.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SOURCES_FILE"); v != "" {
		cfg.SourcesFile = v
	}
	if v := os.Getenv("SNAPSHOT_DIR"); v != "" {
		cfg.SnapshotDir = v
	}
	if v := os.Getenv("FILE_BASE_DIR"); v != "" {
		cfg.FileBaseDir = v
	}
	if v := os.Getenv("EMBED_ENDPOINT"); v != "" {
		cfg.Embed.Endpoint = v
	}
	if v := os.Getenv("EMBED_API_KEY"); v != "" {
		cfg.Embed.APIKey = v
	}
	if v := os.Getenv("EMBED_MODEL"); v != "" {
		cfg.Embed.Model = v
	}
}
