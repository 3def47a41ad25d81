package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/obba100/redress/chunk"
	"github.com/obba100/redress/docext"
)

// Two byte-identical pages chunk to identical windows, exercising
// cross-source dedup. Both fit one 50-rune window.
const (
	pageAck  = `<html><head><title>Ack</title></head><body><p>Acknowledge in five days.</p></body></html>`
	pageResp = `<html><head><title>Resp</title></head><body><p>Respond within ten days.</p></body></html>`
)

func TestRun_EndToEnd(t *testing.T) {
	// WHAT: A full pass over three sources: two serving identical content,
	// one distinct. Checks every report counter, cross-source dedup, tag
	// propagation into the vector store, and run persistence.
	// WHY: This is the pipeline's contract in one place.
	env := newTestEnv(t)
	ctx := context.Background()

	env.fetcher.pages["https://a.example"] = []byte(pageAck)
	env.fetcher.pages["https://b.example"] = []byte(pageAck)
	env.fetcher.pages["https://c.example"] = []byte(pageResp)

	env.addSource(t, &Source{Name: "ack-a", Location: "https://a.example", Enabled: true})
	env.addSource(t, &Source{Name: "ack-b", Location: "https://b.example", Enabled: true})
	env.addSource(t, &Source{Name: "updates-c", Location: "https://c.example", Tag: TagUpdate, Enabled: true})

	rep, err := env.svc.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if rep.SourcesTotal != 3 {
		t.Errorf("sources_total: got %d, want 3", rep.SourcesTotal)
	}
	if rep.Succeeded != 3 || rep.Failed != 0 {
		t.Errorf("succeeded/failed: got %d/%d, want 3/0", rep.Succeeded, rep.Failed)
	}
	if rep.Chunks != 3 {
		t.Errorf("chunks: got %d, want 3", rep.Chunks)
	}
	if rep.Duplicates != 1 {
		t.Errorf("duplicates: got %d, want 1 (a and b serve identical text)", rep.Duplicates)
	}
	if rep.Batches != 1 || rep.FailedBatches != 0 {
		t.Errorf("batches: got %d/%d failed, want 1/0", rep.Batches, rep.FailedBatches)
	}
	if rep.Upserted != 2 {
		t.Errorf("upserted: got %d, want 2", rep.Upserted)
	}

	count, _ := env.vectors.Count(ctx)
	if count != 2 {
		t.Errorf("vector count: got %d, want 2", count)
	}

	// The distinct source's chunk carries its update tag.
	var tag string
	if err := env.db.QueryRow(`SELECT tag FROM documents WHERE source = ?`, "updates-c").Scan(&tag); err != nil {
		t.Fatalf("query tag: %v", err)
	}
	if tag != TagUpdate {
		t.Errorf("tag: got %q, want %q", tag, TagUpdate)
	}

	// The run report is persisted.
	last, err := env.svc.Registry().LastRun(ctx)
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if last == nil || last.ID != rep.ID {
		t.Errorf("persisted run: got %+v, want id %s", last, rep.ID)
	}

	// Source rows reflect success.
	sources, _ := env.svc.ListSources(ctx)
	for _, src := range sources {
		if src.LastStatus != StatusOK {
			t.Errorf("%s status: got %q, want %q", src.Name, src.LastStatus, StatusOK)
		}
		if src.LastHash == "" {
			t.Errorf("%s: hash should be recorded", src.Name)
		}
	}
}

func TestRun_UnchangedShortCircuits(t *testing.T) {
	// WHAT: A second run over unmodified sources terminates each as
	// unchanged: nothing is re-extracted, re-embedded, or re-upserted.
	// WHY: Scheduled re-runs against stable legal texts must be cheap
	// and must leave previously upserted rows in place.
	env := newTestEnv(t)
	ctx := context.Background()

	env.fetcher.pages["https://a.example"] = []byte(pageAck)
	env.addSource(t, &Source{Name: "ack", Location: "https://a.example", Enabled: true})

	first, err := env.svc.Run(ctx)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Succeeded != 1 || first.Upserted != 1 {
		t.Fatalf("first run: got succeeded=%d upserted=%d", first.Succeeded, first.Upserted)
	}

	second, err := env.svc.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Unchanged != 1 || second.Succeeded != 0 {
		t.Errorf("second run: got unchanged=%d succeeded=%d, want 1/0", second.Unchanged, second.Succeeded)
	}
	if second.Chunks != 0 || second.Batches != 0 || second.Upserted != 0 {
		t.Errorf("second run did work: chunks=%d batches=%d upserted=%d",
			second.Chunks, second.Batches, second.Upserted)
	}

	count, _ := env.vectors.Count(ctx)
	if count != 1 {
		t.Errorf("vector count: got %d, want 1 (rows remain)", count)
	}

	src, _ := env.svc.ListSources(ctx)
	if src[0].LastStatus != StatusUnchanged {
		t.Errorf("status: got %q, want %q", src[0].LastStatus, StatusUnchanged)
	}
}

func TestRun_FailedSourceContinues(t *testing.T) {
	// WHAT: A fetch failure records the error and moves on; later sources
	// still ingest.
	// WHY: One dead URL must never block the rest of the corpus.
	env := newTestEnv(t)
	ctx := context.Background()

	env.fetcher.errs["https://bad.example"] = errors.New("connection refused")
	env.fetcher.pages["https://good.example"] = []byte(pageAck)

	bad := env.addSource(t, &Source{Name: "bad", Location: "https://bad.example", Enabled: true})
	env.addSource(t, &Source{Name: "good", Location: "https://good.example", Enabled: true})

	rep, err := env.svc.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Failed != 1 || rep.Succeeded != 1 {
		t.Errorf("failed/succeeded: got %d/%d, want 1/1", rep.Failed, rep.Succeeded)
	}
	if rep.Upserted != 1 {
		t.Errorf("upserted: got %d, want 1 (good source still lands)", rep.Upserted)
	}

	got, _ := env.svc.GetSource(ctx, bad.ID)
	if got.FailCount != 1 {
		t.Errorf("fail_count: got %d, want 1", got.FailCount)
	}
	if got.LastStatus != StatusError {
		t.Errorf("status: got %q, want %q", got.LastStatus, StatusError)
	}
	if !strings.Contains(got.LastError, "connection refused") {
		t.Errorf("last_error: got %q", got.LastError)
	}

	entries, _ := env.svc.FetchLog(ctx, bad.ID, 10)
	if len(entries) != 1 || entries[0].Status != StatusError {
		t.Errorf("fetch log: got %+v, want one error entry", entries)
	}
}

func TestRun_PDFSkippedWhenDisabled(t *testing.T) {
	// WHAT: With PDF extraction off, a PDF source terminates as skipped:
	// no failure recorded, no fail_count growth, run continues.
	// WHY: Skipping is a config decision; it must not trip the
	// scheduler's failure backoff.
	env := newTestEnv(t)
	env.deps.Extractor = docext.New(docext.Config{DisablePDF: true, Logger: discardLogger()})
	svc := env.service()
	ctx := context.Background()

	env.fetcher.pages["https://pdf.example/law.pdf"] = []byte("%PDF-1.4 raw bytes")
	env.fetcher.pages["https://html.example"] = []byte(pageAck)

	pdf := env.addSource(t, &Source{Name: "law-pdf", Location: "https://pdf.example/law.pdf", Format: FormatPDF, Enabled: true})
	env.addSource(t, &Source{Name: "html", Location: "https://html.example", Enabled: true})

	rep, err := svc.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Skipped != 1 || rep.Succeeded != 1 {
		t.Errorf("skipped/succeeded: got %d/%d, want 1/1", rep.Skipped, rep.Succeeded)
	}

	got, _ := svc.GetSource(ctx, pdf.ID)
	if got.LastStatus != StatusSkipped {
		t.Errorf("status: got %q, want %q", got.LastStatus, StatusSkipped)
	}
	if got.FailCount != 0 {
		t.Errorf("fail_count: got %d, want 0", got.FailCount)
	}
}

func TestRun_BadWindowFailsBeforeAnyFetch(t *testing.T) {
	// WHAT: Invalid chunk geometry aborts the run before any source is
	// touched.
	// WHY: A run that fetched everything and then failed to chunk would
	// waste quota and clobber conditional-GET state.
	env := newTestEnv(t)
	env.fetcher.pages["https://a.example"] = []byte(pageAck)
	env.addSource(t, &Source{Name: "a", Location: "https://a.example", Enabled: true})

	env.cfg.Chunk = chunk.Options{Size: 10, Overlap: 20}
	svc := env.service()

	_, err := svc.Run(context.Background())
	if !errors.Is(err, chunk.ErrBadWindow) {
		t.Fatalf("got %v, want ErrBadWindow", err)
	}
	if env.fetcher.calls != 0 {
		t.Errorf("fetch calls: got %d, want 0", env.fetcher.calls)
	}
}

func TestRun_FailedEmbedBatchSkipsOnlyThatBatch(t *testing.T) {
	// WHAT: When one embedding batch fails, the others still upsert.
	// WHY: Partial ingestion beats losing the whole run to a transient
	// backend error.
	env := newTestEnv(t)
	ctx := context.Background()

	// 174 runes of extracted text → five 50-rune windows at stride 40.
	page := `<html><head><title>Repairs Guide</title></head><body><p>The landlord shall keep in repair the structure and exterior of the dwelling including drains gutters and pipes and installations for water gas and electricity.</p></body></html>`
	env.fetcher.pages["https://guide.example"] = []byte(page)
	env.addSource(t, &Source{Name: "guide", Location: "https://guide.example", Enabled: true})

	env.embed.batchSize = 2
	env.embed.failBatch = 2

	rep, err := env.svc.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Chunks != 5 || rep.Duplicates != 0 {
		t.Fatalf("chunks/duplicates: got %d/%d, want 5/0", rep.Chunks, rep.Duplicates)
	}
	if rep.Batches != 3 {
		t.Errorf("batches: got %d, want 3", rep.Batches)
	}
	if rep.FailedBatches != 1 {
		t.Errorf("failed_batches: got %d, want 1", rep.FailedBatches)
	}
	if rep.Upserted != 3 {
		t.Errorf("upserted: got %d, want 3 (batches 1 and 3)", rep.Upserted)
	}

	count, _ := env.vectors.Count(ctx)
	if count != 3 {
		t.Errorf("vector count: got %d, want 3", count)
	}
}

func TestRun_SecondRunRejectedWhileRunning(t *testing.T) {
	// WHAT: A run started while another is in flight returns
	// ErrRunInProgress instead of interleaving.
	// WHY: Two concurrent runs would double-fetch and race on source rows.
	env := newTestEnv(t)
	ctx := context.Background()

	env.fetcher.pages["https://a.example"] = []byte(pageAck)
	env.fetcher.started = make(chan struct{})
	env.fetcher.release = make(chan struct{})
	env.addSource(t, &Source{Name: "a", Location: "https://a.example", Enabled: true})

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.Run(ctx)
		done <- err
	}()
	<-env.fetcher.started

	if _, err := env.svc.Run(ctx); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("concurrent run: got %v, want ErrRunInProgress", err)
	}

	close(env.fetcher.release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}

	// The guard releases once the run finishes.
	if _, err := env.svc.Run(ctx); err != nil {
		t.Errorf("follow-up run: %v", err)
	}
}

func TestRun_FileSource(t *testing.T) {
	// WHAT: A file location under the base dir is read and hashed like a
	// URL, with the same unchanged short-circuit on re-runs.
	// WHY: Operators ingest local statute extracts without an HTTP server.
	env := newTestEnv(t)
	ctx := context.Background()

	base := t.TempDir()
	path := filepath.Join(base, "guide.html")
	if err := os.WriteFile(path, []byte(pageAck), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	env.cfg.FileBaseDir = base
	svc := env.service()
	if _, err := svc.AddSource(ctx, &Source{Name: "local", Location: "guide.html", Enabled: true}); err != nil {
		t.Fatalf("add: %v", err)
	}

	first, err := svc.Run(ctx)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Succeeded != 1 {
		t.Fatalf("first run succeeded: got %d, want 1", first.Succeeded)
	}

	second, _ := svc.Run(ctx)
	if second.Unchanged != 1 {
		t.Errorf("second run unchanged: got %d, want 1", second.Unchanged)
	}

	// Edit the file: the next run picks it up.
	if err := os.WriteFile(path, []byte(pageResp), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}
	third, _ := svc.Run(ctx)
	if third.Succeeded != 1 {
		t.Errorf("third run succeeded: got %d, want 1", third.Succeeded)
	}

	if env.fetcher.calls != 0 {
		t.Errorf("fetcher calls: got %d, want 0 (file sources bypass HTTP)", env.fetcher.calls)
	}
}

func TestRun_SnapshotsWritten(t *testing.T) {
	// WHAT: With snapshots enabled, each successful extraction deposits
	// one .md file carrying the source name in its frontmatter.
	// WHY: Snapshots are the operator's audit trail of what was ingested.
	env := newTestEnv(t)
	ctx := context.Background()

	dir := t.TempDir()
	svc := env.service(WithSnapshots(dir))

	env.fetcher.pages["https://a.example"] = []byte(pageAck)
	env.addSource(t, &Source{Name: "ack-snap", Location: "https://a.example", Enabled: true})

	if _, err := svc.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("snapshot files: got %d, want 1", len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if !strings.Contains(string(data), "ack-snap") {
		t.Errorf("snapshot should carry the source name, got:\n%s", data)
	}
}
