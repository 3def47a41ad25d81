// Package crossref retrieves the legal knowledge a complaint letter needs
// by running one primary vector search over the tenant's own words and a
// battery of auxiliary searches for the statutes the situation implicates.
//
// The auxiliary battery always covers complaint-handling timescales,
// repair obligations, and fitness for habitation; issue-specific topics
// join it when their keywords appear in the conversation. Sub-searches
// degrade independently: a failed or slow query shrinks the result set
// and never fails the request.
package crossref

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/obba100/redress/embedder"
	"github.com/obba100/redress/vecstore"
)

// SearchStore is the slice of the vector store the retriever uses,
// satisfied by *vecstore.Store.
type SearchStore interface {
	Search(ctx context.Context, query []float32, threshold float64, limit int) ([]vecstore.Result, error)
}

// Result is a retrieved knowledge chunk.
type Result = vecstore.Result

// Config tunes retrieval breadth and patience.
type Config struct {
	// Limit caps primary search hits. Default: 8.
	Limit int `yaml:"limit"`
	// PrimaryThreshold is the minimum similarity for primary hits. Default: 0.40.
	PrimaryThreshold float64 `yaml:"primary_threshold"`
	// AuxThreshold is the minimum similarity for auxiliary hits. Default: 0.30.
	AuxThreshold float64 `yaml:"aux_threshold"`
	// AuxLimit caps hits per auxiliary query. Default: 3.
	AuxLimit int `yaml:"aux_limit"`
	// AuxAllowance is how many hits the auxiliary battery may add beyond
	// Limit after the merge. Default: 6.
	AuxAllowance int `yaml:"aux_allowance"`
	// MaxContextChars caps the conversation text embedded for the primary
	// query. Default: 2000.
	MaxContextChars int `yaml:"max_context_chars"`
	// AuxTimeout bounds each auxiliary embed+search pair. Default: 10s.
	AuxTimeout time.Duration `yaml:"aux_timeout"`
}

func (c *Config) defaults() {
	if c.Limit <= 0 {
		c.Limit = 8
	}
	if c.PrimaryThreshold <= 0 {
		c.PrimaryThreshold = 0.40
	}
	if c.AuxThreshold <= 0 {
		c.AuxThreshold = 0.30
	}
	if c.AuxLimit <= 0 {
		c.AuxLimit = 3
	}
	if c.AuxAllowance <= 0 {
		c.AuxAllowance = 6
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 2000
	}
	if c.AuxTimeout <= 0 {
		c.AuxTimeout = 10 * time.Second
	}
}

// Retriever runs cross-referenced searches against one vector store.
type Retriever struct {
	store    SearchStore
	embedder embedder.Embedder
	cfg      Config
	logger   *slog.Logger
}

// New builds a Retriever with defaults applied to cfg.
func New(store SearchStore, emb embedder.Embedder, cfg Config, logger *slog.Logger) *Retriever {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, embedder: emb, cfg: cfg, logger: logger}
}

// coreTopics are searched on every request: the bodies of law a
// social-housing complaint letter almost always cites.
var coreTopics = []string{
	"complaint handling timescales and remedies social landlord",
	"landlord repair obligations Landlord and Tenant Act 1985 section 11",
	"fitness for human habitation Homes (Fitness for Human Habitation) Act 2018",
}

// issueTopics join the battery when a keyword appears in the conversation.
// Declaration order is stable so merges are deterministic.
var issueTopics = []struct {
	keywords []string
	queries  []string
}{
	{
		keywords: []string{"damp", "mould", "condensation"},
		queries: []string{
			"Awaab's Law duty to investigate damp and mould timescales",
			"HHSRS category 1 hazard damp and mould health risk",
		},
	},
	{
		keywords: []string{"repair", "maintenance", "broken", "leak"},
		queries: []string{
			"landlord repairing covenant structure and exterior of the dwelling",
			"notice of disrepair reasonable time to complete repairs",
		},
	},
	{
		keywords: []string{"heating", "boiler", "cold"},
		queries: []string{
			"excess cold hazard emergency heating and hot water repairs",
		},
	},
	{
		keywords: []string{"noise", "antisocial", "neighbour"},
		queries: []string{
			"statutory nuisance landlord duty antisocial behaviour",
		},
	},
}

// Retrieve gathers knowledge for the query and conversation. The primary
// search runs first and its hits take merge priority; the auxiliary
// battery then fans out concurrently, each query under its own timeout.
// Sub-search failures shrink the result set rather than erroring; the
// call itself fails only when ctx ends. Zero results is a valid outcome.
func (r *Retriever) Retrieve(ctx context.Context, query, conversation string) ([]Result, error) {
	primary := r.searchPrimary(ctx, query, conversation)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queries := r.auxQueries(query + " " + conversation)
	batches := make([][]Result, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batches[i] = r.searchAux(ctx, q)
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := r.merge(primary, batches)
	r.logger.Debug("crossref: retrieval complete",
		"primary", len(primary), "aux_queries", len(queries), "merged", len(merged))
	return merged, nil
}

func (r *Retriever) searchPrimary(ctx context.Context, query, conversation string) []Result {
	text := truncate(strings.TrimSpace(query+" "+conversation), r.cfg.MaxContextChars)
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		r.logger.Warn("crossref: primary embed failed", "error", err)
		return nil
	}
	hits, err := r.store.Search(ctx, vec, r.cfg.PrimaryThreshold, r.cfg.Limit)
	if err != nil {
		r.logger.Warn("crossref: primary search failed", "error", err)
		return nil
	}
	return hits
}

// searchAux runs one auxiliary embed+search pair under its own deadline so
// a stuck query cannot hold the whole request.
func (r *Retriever) searchAux(ctx context.Context, query string) []Result {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.AuxTimeout)
	defer cancel()
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Debug("crossref: auxiliary embed dropped", "query", query, "error", err)
		return nil
	}
	hits, err := r.store.Search(ctx, vec, r.cfg.AuxThreshold, r.cfg.AuxLimit)
	if err != nil {
		r.logger.Debug("crossref: auxiliary search dropped", "query", query, "error", err)
		return nil
	}
	return hits
}

// auxQueries assembles the battery: core topics always, issue topics when
// their keywords appear in the text.
func (r *Retriever) auxQueries(text string) []string {
	queries := append([]string(nil), coreTopics...)
	lower := strings.ToLower(text)
	for _, group := range issueTopics {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				queries = append(queries, group.queries...)
				break
			}
		}
	}
	return queries
}

// merge keeps primary hits first, then auxiliary batches in battery order.
// The first occurrence of an ID wins and the total is capped at
// Limit + AuxAllowance.
func (r *Retriever) merge(primary []Result, batches [][]Result) []Result {
	limit := r.cfg.Limit + r.cfg.AuxAllowance
	seen := make(map[string]bool, limit)
	merged := make([]Result, 0, limit)
	add := func(hits []Result) {
		for _, h := range hits {
			if len(merged) >= limit {
				return
			}
			if seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			merged = append(merged, h)
		}
	}
	add(primary)
	for _, batch := range batches {
		add(batch)
	}
	return merged
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}
