// Package corpus manages the legal knowledge sources behind retrieval:
// a registry of HTTP and file sources, the sequential ingestion run that
// turns them into embedded chunks, and the schedule/watch plumbing
// around it.
//
// Sources carry a tag ("core" for established legal knowledge, "update"
// for recently-sourced legislation updates) that flows through chunking
// into the vector store, where retrieval uses it to partition context.
package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/obba100/redress/chunk"
	"github.com/obba100/redress/docext"
	"github.com/obba100/redress/embedder"
	"github.com/obba100/redress/guard"
	"github.com/obba100/redress/idgen"
	"github.com/obba100/redress/internal/fetch"
	"github.com/obba100/redress/internal/snapshot"
	"github.com/obba100/redress/vecstore"
)

// Fetcher retrieves remote documents with change detection.
type Fetcher interface {
	Fetch(ctx context.Context, url, etag, lastMod, prevHash string) (*fetch.Result, error)
}

// Extractor converts raw document bytes into plain text.
type Extractor interface {
	Extract(data []byte, format docext.Format) (*docext.Document, error)
	PDFEnabled() bool
}

// VectorStore persists embedded chunks.
type VectorStore interface {
	Upsert(ctx context.Context, docs []vecstore.Document) error
	Count(ctx context.Context) (int, error)
	DeleteBySource(ctx context.Context, source string) (int64, error)
}

// Deps are the pipeline stages the service orchestrates.
type Deps struct {
	Fetcher   Fetcher
	Extractor Extractor
	Embedder  embedder.Embedder
	Vectors   VectorStore
}

// Config tunes the service.
type Config struct {
	// Chunk is the window geometry for splitting extracted text.
	Chunk chunk.Options `yaml:"chunk"`

	// FileBaseDir is the directory local source locations must resolve
	// under. Empty forbids file sources entirely.
	FileBaseDir string `yaml:"file_base_dir"`
}

// Service owns the source registry and the ingestion pipeline.
type Service struct {
	registry    *Registry
	deps        Deps
	cfg         Config
	logger      *slog.Logger
	newID       func() string
	validateURL func(string) error
	snapshots   *snapshot.Writer

	mu      sync.Mutex
	running bool
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithSnapshots enables markdown snapshots of each extraction under dir.
func WithSnapshots(dir string) Option {
	return func(s *Service) { s.snapshots = snapshot.NewWriter(dir) }
}

// WithURLValidator replaces the SSRF guard used to vet source URLs.
func WithURLValidator(fn func(string) error) Option {
	return func(s *Service) { s.validateURL = fn }
}

// WithIDGenerator replaces the ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// New creates a Service over an already-opened database.
func New(db *sql.DB, deps Deps, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		registry:    NewRegistry(db),
		deps:        deps,
		cfg:         cfg,
		logger:      logger,
		newID:       idgen.New,
		validateURL: guard.ValidateURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the underlying data access layer.
func (s *Service) Registry() *Registry { return s.registry }

// AddSource validates and registers a new source, returning it with its
// generated ID and defaults applied.
func (s *Service) AddSource(ctx context.Context, src *Source) (*Source, error) {
	if err := s.validateSource(src); err != nil {
		return nil, err
	}

	existing, err := s.registry.GetByLocation(ctx, src.Location)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, src.Location)
	}

	if src.ID == "" {
		src.ID = s.newID()
	}
	if err := s.registry.Insert(ctx, src); err != nil {
		return nil, err
	}
	s.logger.Info("corpus: source added",
		"source_id", src.ID, "name", src.Name, "tag", src.Tag)
	return src, nil
}

// GetSource retrieves a source by ID.
func (s *Service) GetSource(ctx context.Context, id string) (*Source, error) {
	src, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	return src, nil
}

// ListSources returns all sources in insertion order.
func (s *Service) ListSources(ctx context.Context) ([]*Source, error) {
	return s.registry.List(ctx)
}

// UpdateSource validates and saves changes to an existing source.
func (s *Service) UpdateSource(ctx context.Context, src *Source) error {
	if err := s.validateSource(src); err != nil {
		return err
	}
	existing, err := s.GetSource(ctx, src.ID)
	if err != nil {
		return err
	}
	if src.Location != existing.Location {
		other, err := s.registry.GetByLocation(ctx, src.Location)
		if err != nil {
			return err
		}
		if other != nil && other.ID != src.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateSource, src.Location)
		}
	}
	return s.registry.Update(ctx, src)
}

// DeleteSource removes a source and its embedded chunks.
func (s *Service) DeleteSource(ctx context.Context, id string) error {
	src, err := s.GetSource(ctx, id)
	if err != nil {
		return err
	}
	if err := s.registry.Delete(ctx, id); err != nil {
		return err
	}
	deleted, err := s.deps.Vectors.DeleteBySource(ctx, src.Name)
	if err != nil {
		return fmt.Errorf("delete vectors for %q: %w", src.Name, err)
	}
	s.logger.Info("corpus: source deleted",
		"source_id", id, "name", src.Name, "vectors_deleted", deleted)
	return nil
}

// FetchLog returns the fetch history for a source, newest first.
func (s *Service) FetchLog(ctx context.Context, sourceID string, limit int) ([]*FetchLogEntry, error) {
	if _, err := s.GetSource(ctx, sourceID); err != nil {
		return nil, err
	}
	return s.registry.FetchHistory(ctx, sourceID, limit)
}

// Stats summarizes the corpus state.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	sources, enabled, logs, err := s.registry.Counts(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := s.deps.Vectors.Count(ctx)
	if err != nil {
		return nil, err
	}
	last, err := s.registry.LastRun(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Sources:        sources,
		EnabledSources: enabled,
		Documents:      docs,
		FetchLogs:      logs,
		LastRun:        last,
	}, nil
}

// CountDue reports how many enabled sources are past their fetch interval,
// excluding those at or over maxFailCount. The scheduler polls this.
func (s *Service) CountDue(ctx context.Context, maxFailCount int) (int, error) {
	return s.registry.CountDue(ctx, maxFailCount)
}

func (s *Service) validateSource(src *Source) error {
	if strings.TrimSpace(src.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSource)
	}
	if strings.TrimSpace(src.Location) == "" {
		return fmt.Errorf("%w: location is required", ErrInvalidSource)
	}
	if src.Format != "" && src.Format != FormatHTML && src.Format != FormatPDF {
		return fmt.Errorf("%w: unknown format %q", ErrInvalidSource, src.Format)
	}
	if src.Tag != "" && src.Tag != TagCore && src.Tag != TagUpdate {
		return fmt.Errorf("%w: unknown tag %q", ErrInvalidSource, src.Tag)
	}

	if isURL(src.Location) {
		if err := s.validateURL(src.Location); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
		return nil
	}
	if s.cfg.FileBaseDir == "" {
		return fmt.Errorf("%w: file sources are disabled (no base dir configured)", ErrInvalidSource)
	}
	if _, err := guard.SafePath(s.cfg.FileBaseDir, src.Location); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	return nil
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
