// Package vecstore persists embedded knowledge chunks in SQLite and serves
// cosine-similarity search over them.
//
// Vectors are stored as little-endian float32 BLOBs next to a precomputed
// L2 norm, so a search is one full table scan with a dot product per row.
// At corpus scale (thousands of chunks, not millions) this stays well under
// a millisecond and needs no vector index extension.
//
// Content is the natural key: upserting a chunk whose text already exists
// replaces the stored embedding and metadata instead of duplicating the row.
package vecstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/obba100/redress/embedder"
)

// ErrEmptyEmbedding is returned by Upsert when a document carries no vector.
var ErrEmptyEmbedding = errors.New("vecstore: document has empty embedding")

// Schema creates the documents table. Applied per database, idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
    id         TEXT PRIMARY KEY,
    content    TEXT NOT NULL UNIQUE,
    embedding  BLOB NOT NULL,
    norm       REAL NOT NULL,
    source     TEXT NOT NULL DEFAULT '',
    tag        TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);
`

// ApplySchema creates the vector store tables on the given database.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("vecstore: apply schema: %w", err)
	}
	return nil
}

// Store wraps an open database for vector operations.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Document is one embedded chunk of knowledge heading into the store.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Source    string
	Tag       string
}

// Result is a search hit.
type Result struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Tag     string  `json:"tag"`
	Score   float64 `json:"score"`
}

// Upsert writes documents in a single transaction. A document whose content
// already exists replaces the stored row (embedding, norm, source, tag);
// content and vector always land together, so readers never observe a chunk
// without its embedding.
func (s *Store) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	for _, d := range docs {
		if len(d.Embedding) == 0 {
			return fmt.Errorf("%w: id %s", ErrEmptyEmbedding, d.ID)
		}
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vecstore: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for _, d := range docs {
		blob := embedder.SerializeVector(d.Embedding)
		norm := embedder.Norm(d.Embedding)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, content, embedding, norm, source, tag, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(content) DO UPDATE SET
				embedding  = excluded.embedding,
				norm       = excluded.norm,
				source     = excluded.source,
				tag        = excluded.tag,
				updated_at = excluded.updated_at`,
			d.ID, d.Content, blob, norm, d.Source, d.Tag, now, now,
		)
		if err != nil {
			return fmt.Errorf("vecstore: upsert %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// DeleteBySource removes every document ingested from the given source and
// reports how many rows went away.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM documents WHERE source = ?`, source)
	if err != nil {
		return 0, fmt.Errorf("vecstore: delete by source: %w", err)
	}
	return res.RowsAffected()
}
