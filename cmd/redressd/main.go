// redressd serves the legal knowledge base behind the complaint-letter
// assistant: a chi HTTP API for context assembly, source management, and
// ingestion control, or the same surface as MCP tools over stdio when
// MCP_TRANSPORT=stdio. A background scheduler keeps registered sources
// fresh either way.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/obba100/redress/briefing"
	"github.com/obba100/redress/config"
	"github.com/obba100/redress/corpus"
	"github.com/obba100/redress/crossref"
	"github.com/obba100/redress/dbopen"
	"github.com/obba100/redress/docext"
	"github.com/obba100/redress/embedder"
	"github.com/obba100/redress/internal/fetch"
	"github.com/obba100/redress/internal/schedule"
	"github.com/obba100/redress/shield"
	"github.com/obba100/redress/vecstore"
)

func main() {
	_ = godotenv.Load()

	mcpTransport := env("MCP_TRANSPORT", "")

	// Logging. Stdio MCP owns stdout, so logs move to stderr there.
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logOut := os.Stdout
	if mcpTransport == "stdio" {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	configPath := env("REDRESS_CONFIG", "redress.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	applyEnvOverrides(cfg, logger)

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

	if cfg.Embed.Endpoint == "" {
		logger.Warn("no embedding endpoint configured, vectors will be zero")
	}
	embCfg := cfg.Embed
	embCfg.Logger = logger
	emb := embedder.New(embCfg)

	extCfg := cfg.Extract
	extCfg.Logger = logger
	extractor := docext.New(extCfg)

	fetcher := fetch.New(fetch.Config{
		Timeout:    cfg.Fetch.Timeout,
		MaxBytes:   cfg.Fetch.MaxBytes,
		UserAgent:  cfg.Fetch.UserAgent,
		RatePerSec: cfg.Fetch.RatePerSec,
		Burst:      cfg.Fetch.Burst,
	})

	store := vecstore.NewStore(db)

	var opts []corpus.Option
	if cfg.SnapshotDir != "" {
		opts = append(opts, corpus.WithSnapshots(cfg.SnapshotDir))
	}
	svc := corpus.New(db, corpus.Deps{
		Fetcher:   fetcher,
		Extractor: extractor,
		Embedder:  emb,
		Vectors:   store,
	}, corpus.Config{Chunk: cfg.Chunk, FileBaseDir: cfg.FileBaseDir}, logger, opts...)

	if err := syncSourceList(ctx, svc, cfg.SourcesFile, logger); err != nil {
		logger.Error("sync source list", "path", cfg.SourcesFile, "error", err)
		os.Exit(1)
	}

	sched := schedule.New(svc.CountDue, func(ctx context.Context) error {
		rep, err := svc.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info("scheduled ingestion finished",
			"succeeded", rep.Succeeded, "failed", rep.Failed,
			"unchanged", rep.Unchanged, "upserted", rep.Upserted)
		return nil
	}, schedule.Config{
		CheckInterval: cfg.Scheduler.CheckInterval,
		MaxFailCount:  cfg.Scheduler.MaxFailCount,
	}, logger)
	go sched.Run(ctx)

	if env("WATCH_SOURCES", "") == "1" {
		go func() {
			if err := svc.WatchSourceList(ctx, cfg.SourcesFile); err != nil && ctx.Err() == nil {
				logger.Error("source list watch", "error", err)
			}
		}()
	}

	retriever := crossref.New(store, emb, cfg.Retrieval, logger)
	builder := &briefing.Builder{
		Retriever: retriever,
		Timeline:  cfg.Timeline,
		Logger:    logger,
	}

	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "redress",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		builder.RegisterMCP(mcpSrv)
		logger.Info("mcp server starting", "transport", "stdio")
		if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			logger.Error("mcp server", "error", err)
			os.Exit(1)
		}
		return
	}

	r := chi.NewRouter()
	r.Use(shield.TraceID)
	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
	r.Use(shield.MaxBody(1 << 20))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Post("/api/context", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query        string          `json:"query"`
			Conversation []briefing.Turn `json:"conversation"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		brief, err := builder.Build(r.Context(), req.Query, req.Conversation)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, brief)
	})

	r.Post("/api/ingest/run", func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.Run(r.Context())
		if err != nil {
			if errors.Is(err, corpus.ErrRunInProgress) {
				writeError(w, 409, err)
				return
			}
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, rep)
	})

	r.Route("/api/sources", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			sources, err := svc.ListSources(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if sources == nil {
				sources = []*corpus.Source{}
			}
			writeJSON(w, 200, sources)
		})

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req sourceReq
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			created, err := svc.AddSource(r.Context(), req.source(""))
			if err != nil {
				writeSourceError(w, err)
				return
			}
			writeJSON(w, 201, created)
		})

		r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
			var req sourceReq
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			src := req.source(chi.URLParam(r, "id"))
			if err := svc.UpdateSource(r.Context(), src); err != nil {
				writeSourceError(w, err)
				return
			}
			writeJSON(w, 200, src)
		})

		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.DeleteSource(r.Context(), chi.URLParam(r, "id")); err != nil {
				writeSourceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "deleted"})
		})

		r.Get("/{id}/log", func(w http.ResponseWriter, r *http.Request) {
			limit := queryInt(r, "limit", 50)
			entries, err := svc.FetchLog(r.Context(), chi.URLParam(r, "id"), limit)
			if err != nil {
				writeSourceError(w, err)
				return
			}
			if entries == nil {
				entries = []*corpus.FetchLogEntry{}
			}
			writeJSON(w, 200, entries)
		})
	})

	r.Get("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, stats)
	})

	// Raw similarity search, mainly for inspecting what a query pulls in.
	r.Get("/api/search", func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			writeError(w, 400, fmt.Errorf("q is required"))
			return
		}
		limit := queryInt(r, "limit", 10)
		vec, err := emb.Embed(r.Context(), q)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		results, err := store.Search(r.Context(), vec, 0, limit)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if results == nil {
			results = []vecstore.Result{}
		}
		writeJSON(w, 200, results)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
}

// sourceReq is the JSON body for source create and update. Update is a
// full replace; empty format, tag, and interval fall back to registry
// defaults.
type sourceReq struct {
	Name          string `json:"name"`
	Location      string `json:"location"`
	Format        string `json:"format"`
	Tag           string `json:"tag"`
	FetchInterval int64  `json:"fetch_interval"`
	Enabled       *bool  `json:"enabled"`
}

func (r *sourceReq) source(id string) *corpus.Source {
	src := &corpus.Source{
		ID:            id,
		Name:          r.Name,
		Location:      r.Location,
		Format:        r.Format,
		Tag:           r.Tag,
		FetchInterval: r.FetchInterval,
		Enabled:       true,
	}
	if r.Enabled != nil {
		src.Enabled = *r.Enabled
	}
	return src
}

func writeSourceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, corpus.ErrSourceNotFound):
		writeError(w, 404, err)
	case errors.Is(err, corpus.ErrDuplicateSource):
		writeError(w, 409, err)
	case errors.Is(err, corpus.ErrInvalidSource):
		writeError(w, 400, err)
	default:
		writeError(w, 500, err)
	}
}

// syncSourceList applies the declarative source list at boot. A missing
// file is fine; a malformed one is a configuration error.
func syncSourceList(ctx context.Context, svc *corpus.Service, path string, logger *slog.Logger) error {
	specs, err := corpus.LoadSourceList(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("no source list file, skipping sync", "path", path)
		return nil
	}
	if err != nil {
		return err
	}
	added, updated, err := svc.SyncSources(ctx, specs)
	if err != nil {
		return err
	}
	logger.Info("source list synced", "path", path, "added", added, "updated", updated)
	return nil
}

// applyEnvOverrides lets the deploy environment win over the config file
// for addresses, paths, and secrets.
func applyEnvOverrides(cfg *config.Config, logger *slog.Logger) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
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
	if v := os.Getenv("ENFORCEMENT_DATE"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			logger.Warn("invalid ENFORCEMENT_DATE, keeping configured date", "value", v)
		} else {
			cfg.Timeline.EnforcementDate = d
		}
	}
}

func parseDate(s string) (time.Time, error) {
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return d, nil
	}
	return time.Parse("2006-01-02", s)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
