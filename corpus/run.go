package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/obba100/redress/chunk"
	"github.com/obba100/redress/docext"
	"github.com/obba100/redress/guard"
	"github.com/obba100/redress/internal/fetch"
	"github.com/obba100/redress/internal/snapshot"
	"github.com/obba100/redress/vecstore"
)

// Run executes one full ingestion pass: every enabled source is fetched,
// extracted, and chunked in insertion order, then the accumulated chunks
// are deduplicated across sources, embedded in batches, and upserted.
//
// A failing source never aborts the run; it is recorded and the next
// source proceeds. A failing embed or upsert batch is likewise skipped so
// the remaining batches still land. Only a bad chunk geometry (before any
// source is touched), a concurrent run, or context cancellation abort.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	splitter, err := chunk.New(s.cfg.Chunk)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	rep := &Report{ID: s.newID(), StartedAt: time.Now()}

	sources, err := s.registry.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	rep.SourcesTotal = len(sources)
	s.logger.Info("corpus: run started", "run_id", rep.ID, "sources", len(sources))

	var all []chunk.Chunk
	tagBySource := make(map[string]string, len(sources))

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks, status := s.processSource(ctx, splitter, src)
		switch status {
		case StatusOK:
			rep.Succeeded++
			tagBySource[src.Name] = src.Tag
			all = append(all, chunks...)
		case StatusUnchanged:
			rep.Unchanged++
		case StatusSkipped:
			rep.Skipped++
		default:
			rep.Failed++
		}
	}

	rep.Chunks = len(all)
	deduped := chunk.Dedupe(all)
	rep.Duplicates = len(all) - len(deduped)
	s.logger.Debug("corpus: run state", "run_id", rep.ID,
		"state", "deduplicating", "chunks", rep.Chunks, "duplicates", rep.Duplicates)

	s.embedAndUpsert(ctx, deduped, tagBySource, rep)

	rep.FinishedAt = time.Now()
	if err := s.registry.InsertRun(ctx, rep); err != nil {
		s.logger.Warn("corpus: persist run report failed", "error", err)
	}

	s.logger.Info("corpus: run finished", "run_id", rep.ID,
		"succeeded", rep.Succeeded, "failed", rep.Failed,
		"skipped", rep.Skipped, "unchanged", rep.Unchanged,
		"upserted", rep.Upserted, "failed_batches", rep.FailedBatches,
		"duration_ms", rep.FinishedAt.Sub(rep.StartedAt).Milliseconds())
	return rep, nil
}

// processSource walks one source through fetch → extract → chunk and
// returns its chunks plus the terminal status. Every exit writes a
// fetch_log row and updates the source row.
func (s *Service) processSource(ctx context.Context, splitter *chunk.Splitter, src *Source) ([]chunk.Chunk, string) {
	log := s.logger.With("source_id", src.ID, "name", src.Name)
	start := time.Now()

	logEntry := &FetchLogEntry{
		ID:        s.newID(),
		SourceID:  src.ID,
		FetchedAt: start.UnixMilli(),
	}
	fail := func(stage string, err error) string {
		logEntry.Status = StatusError
		logEntry.ErrorMessage = err.Error()
		logEntry.DurationMs = time.Since(start).Milliseconds()
		s.registry.InsertFetchLog(ctx, logEntry)
		s.registry.RecordFetchError(ctx, src.ID, stage+": "+err.Error())
		log.Warn("corpus: source failed", "stage", stage, "error", err)
		return StatusError
	}

	log.Debug("corpus: source state", "state", "fetching")
	result, err := s.fetchSource(ctx, src)
	if result != nil {
		logEntry.StatusCode = result.StatusCode
	}
	if err != nil {
		return nil, fail("fetch", err)
	}
	logEntry.ContentHash = result.Hash

	if !result.Changed {
		logEntry.Status = StatusUnchanged
		logEntry.DurationMs = time.Since(start).Milliseconds()
		s.registry.InsertFetchLog(ctx, logEntry)
		s.registry.RecordFetchUnchanged(ctx, src.ID)
		log.Debug("corpus: source unchanged", "duration_ms", logEntry.DurationMs)
		return nil, StatusUnchanged
	}

	log.Debug("corpus: source state", "state", "extracting")
	doc, err := s.deps.Extractor.Extract(result.Body, docext.Format(src.Format))
	if err != nil {
		if errors.Is(err, docext.ErrPDFDisabled) {
			logEntry.Status = StatusSkipped
			logEntry.ErrorMessage = err.Error()
			logEntry.DurationMs = time.Since(start).Milliseconds()
			s.registry.InsertFetchLog(ctx, logEntry)
			s.registry.RecordFetchSkipped(ctx, src.ID, err.Error())
			log.Debug("corpus: source skipped", "reason", err)
			return nil, StatusSkipped
		}
		return nil, fail("extract", err)
	}

	s.writeSnapshot(ctx, src, result, doc, log)

	log.Debug("corpus: source state", "state", "chunking")
	chunks := splitter.Split(src.Name, doc.Text)

	logEntry.Status = StatusOK
	logEntry.DurationMs = time.Since(start).Milliseconds()
	s.registry.InsertFetchLog(ctx, logEntry)
	s.registry.RecordFetchSuccess(ctx, src.ID, result.Hash)

	log.Info("corpus: source processed",
		"chunks", len(chunks), "text_len", len(doc.Text),
		"duration_ms", logEntry.DurationMs)
	return chunks, StatusOK
}

// fetchSource retrieves a source's bytes: URLs through the Fetcher
// (conditional GET against the stored hash), local paths through a
// guarded read with the same hash-based change detection.
func (s *Service) fetchSource(ctx context.Context, src *Source) (*fetch.Result, error) {
	if isURL(src.Location) {
		return s.deps.Fetcher.Fetch(ctx, src.Location, "", "", src.LastHash)
	}

	resolved, err := guard.SafePath(s.cfg.FileBaseDir, src.Location)
	if err != nil {
		return nil, fmt.Errorf("path blocked: %w", err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	return &fetch.Result{
		Body:    data,
		Hash:    hash,
		Changed: src.LastHash == "" || hash != src.LastHash,
	}, nil
}

// writeSnapshot deposits the optional .md snapshot. Failures only warn;
// a snapshot never fails its source.
func (s *Service) writeSnapshot(ctx context.Context, src *Source, result *fetch.Result, doc *docext.Document, log *slog.Logger) {
	if s.snapshots == nil {
		return
	}
	html := ""
	if src.Format == FormatHTML {
		html = string(result.Body)
	}
	meta := snapshot.Metadata{
		SourceID:    src.ID,
		SourceName:  src.Name,
		Location:    src.Location,
		Format:      src.Format,
		Tag:         src.Tag,
		Title:       doc.Title,
		ContentHash: result.Hash,
		ExtractedAt: time.Now().UTC(),
	}
	if _, err := s.snapshots.Write(ctx, meta, html, doc.Text); err != nil {
		log.Warn("corpus: snapshot write failed", "error", err)
	}
}

// embedAndUpsert pushes deduplicated chunks through the embedder and into
// the vector store, one batch at a time. Failed batches are counted and
// skipped so one bad batch cannot sink the rest.
func (s *Service) embedAndUpsert(ctx context.Context, chunks []chunk.Chunk, tags map[string]string, rep *Report) {
	if len(chunks) == 0 {
		return
	}
	batchSize := s.deps.Embedder.BatchSize()
	if batchSize <= 0 {
		batchSize = 32
	}

	s.logger.Debug("corpus: run state", "run_id", rep.ID,
		"state", "embedding", "chunks", len(chunks), "batch_size", batchSize)

	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		batch := chunks[start:end]
		rep.Batches++

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := s.deps.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			rep.FailedBatches++
			s.logger.Warn("corpus: embed batch failed",
				"batch", rep.Batches, "size", len(batch), "error", err)
			continue
		}

		docs := make([]vecstore.Document, len(batch))
		for i, c := range batch {
			docs[i] = vecstore.Document{
				ID:        s.newID(),
				Content:   c.Content,
				Embedding: vectors[i],
				Source:    c.Source,
				Tag:       tags[c.Source],
			}
		}
		if err := s.deps.Vectors.Upsert(ctx, docs); err != nil {
			rep.FailedBatches++
			s.logger.Warn("corpus: upsert batch failed",
				"batch", rep.Batches, "size", len(batch), "error", err)
			continue
		}
		rep.Upserted += len(docs)
	}
}
