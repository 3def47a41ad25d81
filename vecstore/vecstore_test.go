package vecstore

import (
	"context"
	"errors"
	"testing"

	"github.com/obba100/redress/dbopen"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return NewStore(db)
}

func TestUpsertAndCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	docs := []Document{
		{ID: "d1", Content: "the landlord must acknowledge within five working days", Embedding: []float32{1, 0, 0}, Source: "code", Tag: "core"},
		{ID: "d2", Content: "damp and mould must be investigated promptly", Embedding: []float32{0, 1, 0}, Source: "awaab", Tag: "update"},
	}
	if err := s.Upsert(ctx, docs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("count: got %d, want 2", count)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	// WHAT: Re-upserting identical content replaces the row, never duplicates.
	// WHY: The same legal text appears on multiple pages; content is the
	// dedup key so re-ingesting an unchanged corpus adds zero rows.
	s := openTestStore(t)
	ctx := context.Background()

	doc := Document{ID: "d1", Content: "repeat after me", Embedding: []float32{1, 2, 3}, Source: "a", Tag: "core"}
	if err := s.Upsert(ctx, []Document{doc}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Same content, new ID, new metadata.
	doc2 := Document{ID: "d2", Content: "repeat after me", Embedding: []float32{4, 5, 6}, Source: "b", Tag: "update"}
	if err := s.Upsert(ctx, []Document{doc2}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	count, _ := s.Count(ctx)
	if count != 1 {
		t.Fatalf("count after re-upsert: got %d, want 1", count)
	}

	// The replacement's metadata and vector win.
	results, err := s.Search(ctx, []float32{4, 5, 6}, 0.99, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results: got %d, want 1", len(results))
	}
	if results[0].Source != "b" {
		t.Errorf("source: got %q, want %q", results[0].Source, "b")
	}
	if results[0].Tag != "update" {
		t.Errorf("tag: got %q, want %q", results[0].Tag, "update")
	}
}

func TestUpsertEmptyEmbedding(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx, []Document{{ID: "bad", Content: "no vector"}})
	if !errors.Is(err, ErrEmptyEmbedding) {
		t.Fatalf("err = %v, want ErrEmptyEmbedding", err)
	}

	// Nothing was written.
	count, _ := s.Count(ctx)
	if count != 0 {
		t.Fatalf("count: got %d, want 0", count)
	}
}

func TestUpsertEmptySlice(t *testing.T) {
	s := openTestStore(t)
	if err := s.Upsert(context.Background(), nil); err != nil {
		t.Fatalf("upsert nil: %v", err)
	}
}

func TestSearch(t *testing.T) {
	// WHAT: Search orders by cosine similarity, filters below threshold,
	// and caps at limit.
	s := openTestStore(t)
	ctx := context.Background()

	docs := []Document{
		{ID: "exact", Content: "exact match", Embedding: []float32{1, 0, 0}},
		{ID: "close", Content: "close match", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "far", Content: "unrelated", Embedding: []float32{0, 0, 1}},
	}
	if err := s.Upsert(ctx, docs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0}, 0.5, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results: got %d, want 2 (orthogonal doc filtered)", len(results))
	}
	if results[0].ID != "exact" {
		t.Errorf("first result: got %s, want exact", results[0].ID)
	}
	if results[1].ID != "close" {
		t.Errorf("second result: got %s, want close", results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by score descending")
	}

	// Limit caps the result set.
	capped, err := s.Search(ctx, []float32{1, 0, 0}, 0.0, 1)
	if err != nil {
		t.Fatalf("search capped: %v", err)
	}
	if len(capped) != 1 {
		t.Fatalf("capped results: got %d, want 1", len(capped))
	}
}

func TestSearchEmptyStore(t *testing.T) {
	// An empty corpus is a valid state: no error, no results.
	s := openTestStore(t)
	results, err := s.Search(context.Background(), []float32{1, 0}, 0.3, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results: got %d, want 0", len(results))
	}
}

func TestDeleteBySource(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	docs := []Document{
		{ID: "a1", Content: "one", Embedding: []float32{1}, Source: "gone"},
		{ID: "a2", Content: "two", Embedding: []float32{1}, Source: "gone"},
		{ID: "b1", Content: "three", Embedding: []float32{1}, Source: "kept"},
	}
	if err := s.Upsert(ctx, docs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := s.DeleteBySource(ctx, "gone")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted: got %d, want 2", n)
	}

	count, _ := s.Count(ctx)
	if count != 1 {
		t.Fatalf("remaining: got %d, want 1", count)
	}
}
