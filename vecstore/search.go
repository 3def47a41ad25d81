package vecstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/obba100/redress/embedder"
)

// Search scans all stored documents, scores them against the query vector
// with precomputed norms, and returns hits at or above threshold, best first,
// capped at limit. An empty result set is a valid outcome, not an error.
func (s *Store) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	queryNorm := embedder.Norm(query)

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, content, embedding, norm, source, tag FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("vecstore: search: %w", err)
	}
	defer rows.Close()

	type scored struct {
		result Result
		score  float64
	}
	var candidates []scored

	for rows.Next() {
		var r Result
		var blob []byte
		var docNorm float64
		if err := rows.Scan(&r.ID, &r.Content, &blob, &docNorm, &r.Source, &r.Tag); err != nil {
			return nil, fmt.Errorf("vecstore: scan: %w", err)
		}

		vec := embedder.DeserializeVector(blob)
		score := embedder.CosineSimilarityNormed(query, vec, queryNorm, docNorm)
		if score >= threshold {
			candidates = append(candidates, scored{result: r, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vecstore: search rows: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	results := make([]Result, 0, min(limit, len(candidates)))
	for i := 0; i < limit && i < len(candidates); i++ {
		r := candidates[i].result
		r.Score = candidates[i].score
		results = append(results, r)
	}
	return results, nil
}
