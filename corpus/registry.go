package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/obba100/redress/docext"
)

// Registry is the data access layer for the source tables.
type Registry struct {
	DB *sql.DB
}

// NewRegistry creates a Registry from an already-opened database connection.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{DB: db}
}

const sourceColumns = `id, name, location, format, tag, fetch_interval, enabled,
	last_fetched_at, last_hash, last_status, last_error, fail_count,
	created_at, updated_at`

const defaultFetchIntervalMs = 24 * 60 * 60 * 1000 // daily

// applyDefaults fills empty mutable fields before a write. Format is
// detected from the location so .pdf sources land as pdf without the
// caller saying so.
func applyDefaults(src *Source) {
	if src.Format == "" {
		src.Format = string(docext.DetectFormat(src.Location))
	}
	if src.Tag == "" {
		src.Tag = TagCore
	}
	if src.FetchInterval == 0 {
		src.FetchInterval = defaultFetchIntervalMs
	}
}

// Insert adds a new source.
func (r *Registry) Insert(ctx context.Context, src *Source) error {
	now := time.Now().UnixMilli()
	if src.CreatedAt == 0 {
		src.CreatedAt = now
	}
	if src.UpdatedAt == 0 {
		src.UpdatedAt = now
	}
	applyDefaults(src)
	if src.LastStatus == "" {
		src.LastStatus = StatusPending
	}

	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO sources (`+sourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Name, src.Location, src.Format, src.Tag, src.FetchInterval,
		src.Enabled, src.LastFetchedAt, src.LastHash, src.LastStatus, src.LastError,
		src.FailCount, src.CreatedAt, src.UpdatedAt,
	)
	return err
}

// Get retrieves a source by ID. Returns nil when not found.
func (r *Registry) Get(ctx context.Context, id string) (*Source, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	return scanSource(row)
}

// GetByLocation returns the source registered for a location, or nil.
func (r *Registry) GetByLocation(ctx context.Context, location string) (*Source, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE location = ? LIMIT 1`, location)
	return scanSource(row)
}

// List returns all sources in insertion order.
func (r *Registry) List(ctx context.Context) ([]*Source, error) {
	return r.listWhere(ctx, ``)
}

// ListEnabled returns enabled sources in insertion order. Ingestion
// processes them sequentially in exactly this order.
func (r *Registry) ListEnabled(ctx context.Context) ([]*Source, error) {
	return r.listWhere(ctx, `WHERE enabled = 1`)
}

func (r *Registry) listWhere(ctx context.Context, where string) ([]*Source, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources `+where+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		src, err := scanSourceRows(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// Update updates a source's mutable fields.
func (r *Registry) Update(ctx context.Context, src *Source) error {
	applyDefaults(src)
	src.UpdatedAt = time.Now().UnixMilli()
	_, err := r.DB.ExecContext(ctx,
		`UPDATE sources SET name=?, location=?, format=?, tag=?, fetch_interval=?,
		enabled=?, updated_at=?
		WHERE id=?`,
		src.Name, src.Location, src.Format, src.Tag, src.FetchInterval,
		src.Enabled, src.UpdatedAt, src.ID,
	)
	return err
}

// Delete removes a source (cascades to fetch_log).
func (r *Registry) Delete(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	return err
}

// CountDue reports how many enabled sources have passed their next fetch
// time (last_fetched_at + fetch_interval). Never-fetched sources are always
// due. Sources at or over maxFailCount are excluded until re-enabled.
func (r *Registry) CountDue(ctx context.Context, maxFailCount int) (int, error) {
	now := time.Now().UnixMilli()
	var count int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sources
		WHERE enabled = 1
		  AND fail_count < ?
		  AND (last_fetched_at IS NULL OR last_fetched_at + fetch_interval <= ?)`,
		maxFailCount, now).Scan(&count)
	return count, err
}

// RecordFetchSuccess updates a source after a successful ingestion.
func (r *Registry) RecordFetchSuccess(ctx context.Context, id, hash string) error {
	now := time.Now().UnixMilli()
	_, err := r.DB.ExecContext(ctx,
		`UPDATE sources SET last_fetched_at=?, last_hash=?, last_status=?,
		last_error='', fail_count=0, updated_at=?
		WHERE id=?`, now, hash, StatusOK, now, id)
	return err
}

// RecordFetchUnchanged updates last_fetched_at without touching the hash.
func (r *Registry) RecordFetchUnchanged(ctx context.Context, id string) error {
	now := time.Now().UnixMilli()
	_, err := r.DB.ExecContext(ctx,
		`UPDATE sources SET last_fetched_at=?, last_status=?,
		last_error='', fail_count=0, updated_at=?
		WHERE id=?`, now, StatusUnchanged, now, id)
	return err
}

// RecordFetchSkipped marks a source skipped (e.g. PDF extraction disabled)
// without counting it as a failure.
func (r *Registry) RecordFetchSkipped(ctx context.Context, id, reason string) error {
	now := time.Now().UnixMilli()
	_, err := r.DB.ExecContext(ctx,
		`UPDATE sources SET last_fetched_at=?, last_status=?,
		last_error=?, updated_at=?
		WHERE id=?`, now, StatusSkipped, reason, now, id)
	return err
}

// RecordFetchError updates a source after a failure at any pipeline stage.
func (r *Registry) RecordFetchError(ctx context.Context, id, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := r.DB.ExecContext(ctx,
		`UPDATE sources SET last_fetched_at=?, last_status=?,
		last_error=?, fail_count=fail_count+1, updated_at=?
		WHERE id=?`, now, StatusError, errMsg, now, id)
	return err
}

// InsertFetchLog records a fetch attempt.
func (r *Registry) InsertFetchLog(ctx context.Context, entry *FetchLogEntry) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO fetch_log (id, source_id, status, status_code, content_hash,
		error_message, duration_ms, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SourceID, entry.Status, entry.StatusCode,
		entry.ContentHash, entry.ErrorMessage, entry.DurationMs, entry.FetchedAt,
	)
	return err
}

// FetchHistory returns fetch log entries for a source, newest first.
func (r *Registry) FetchHistory(ctx context.Context, sourceID string, limit int) ([]*FetchLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, source_id, status, status_code, content_hash,
		error_message, duration_ms, fetched_at
		FROM fetch_log WHERE source_id = ?
		ORDER BY fetched_at DESC LIMIT ?`, sourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*FetchLogEntry
	for rows.Next() {
		var e FetchLogEntry
		if err := rows.Scan(&e.ID, &e.SourceID, &e.Status, &e.StatusCode,
			&e.ContentHash, &e.ErrorMessage, &e.DurationMs, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan fetch log: %w", err)
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

// InsertRun persists a run report.
func (r *Registry) InsertRun(ctx context.Context, rep *Report) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, started_at, finished_at, sources_total,
		succeeded, failed, skipped, unchanged, chunks, duplicates, batches,
		failed_batches, upserted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, rep.StartedAt.UnixMilli(), rep.FinishedAt.UnixMilli(),
		rep.SourcesTotal, rep.Succeeded, rep.Failed, rep.Skipped, rep.Unchanged,
		rep.Chunks, rep.Duplicates, rep.Batches, rep.FailedBatches, rep.Upserted,
	)
	return err
}

// LastRun returns the most recent run report, or nil when none exists.
func (r *Registry) LastRun(ctx context.Context) (*Report, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, sources_total, succeeded, failed,
		skipped, unchanged, chunks, duplicates, batches, failed_batches, upserted
		FROM ingest_runs ORDER BY started_at DESC LIMIT 1`)

	var rep Report
	var started, finished int64
	err := row.Scan(&rep.ID, &started, &finished, &rep.SourcesTotal,
		&rep.Succeeded, &rep.Failed, &rep.Skipped, &rep.Unchanged,
		&rep.Chunks, &rep.Duplicates, &rep.Batches, &rep.FailedBatches, &rep.Upserted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	rep.StartedAt = time.UnixMilli(started)
	rep.FinishedAt = time.UnixMilli(finished)
	return &rep, nil
}

// Counts returns (total sources, enabled sources, fetch log rows).
func (r *Registry) Counts(ctx context.Context) (int, int, int, error) {
	var sources, enabled, logs int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&sources); err != nil {
		return 0, 0, 0, err
	}
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources WHERE enabled = 1`).Scan(&enabled); err != nil {
		return 0, 0, 0, err
	}
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM fetch_log`).Scan(&logs); err != nil {
		return 0, 0, 0, err
	}
	return sources, enabled, logs, nil
}

func scanSource(row *sql.Row) (*Source, error) {
	var src Source
	var enabled int
	err := row.Scan(
		&src.ID, &src.Name, &src.Location, &src.Format, &src.Tag, &src.FetchInterval,
		&enabled, &src.LastFetchedAt, &src.LastHash, &src.LastStatus, &src.LastError,
		&src.FailCount, &src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.Enabled = enabled != 0
	return &src, nil
}

func scanSourceRows(rows *sql.Rows) (*Source, error) {
	var src Source
	var enabled int
	err := rows.Scan(
		&src.ID, &src.Name, &src.Location, &src.Format, &src.Tag, &src.FetchInterval,
		&enabled, &src.LastFetchedAt, &src.LastHash, &src.LastStatus, &src.LastError,
		&src.FailCount, &src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.Enabled = enabled != 0
	return &src, nil
}
