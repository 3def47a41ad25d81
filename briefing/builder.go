package briefing

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/obba100/redress/timeline"
)

// Turn is one conversation message. Only Content is read; Role travels
// through for the transports that carry it.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Briefing is the assembled context for one request.
type Briefing struct {
	Context string           `json:"context"`
	Report  *timeline.Report `json:"report,omitempty"`
	Results []Result         `json:"results"`
}

// Retriever is the slice of crossref the builder needs.
type Retriever interface {
	Retrieve(ctx context.Context, query, conversation string) ([]Result, error)
}

// Builder runs the request path: extract timeline facts from the
// conversation, measure deadline breaches, retrieve supporting law, and
// format the lot into one context block.
type Builder struct {
	Retriever Retriever
	Timeline  timeline.Config

	// Clock overrides time.Now for deterministic output. Optional.
	Clock func() time.Time

	Logger *slog.Logger
}

func (b *Builder) now() time.Time {
	if b.Clock != nil {
		return b.Clock()
	}
	return time.Now()
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// Build assembles the briefing for one request. The query is the user's
// latest message; conversation carries the prior turns. All of that text
// is scanned for timeline evidence, and the retriever sees the query and
// conversation separately.
//
// A retrieval failure degrades to a briefing without documents; empty
// inputs yield the date-line-only briefing. Build errors only when ctx
// ends.
func (b *Builder) Build(ctx context.Context, query string, conversation []Turn) (*Briefing, error) {
	now := b.now()

	parts := make([]string, 0, len(conversation))
	for _, t := range conversation {
		if t.Content != "" {
			parts = append(parts, t.Content)
		}
	}
	convo := strings.Join(parts, "\n")

	fact := timeline.Extract(strings.TrimSpace(query+"\n"+convo), now)
	rep := timeline.Calculate(fact, now, b.Timeline)

	results, err := b.Retriever.Retrieve(ctx, query, convo)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.logger().Warn("briefing: retrieval failed, continuing without documents", "error", err)
		results = nil
	}

	b.logger().Debug("briefing: built",
		"issue", fact.IssueType,
		"dated", fact.ReportedDate != nil,
		"documents", len(results),
		"has_breaches", rep != nil && rep.HasBreaches)

	return &Briefing{
		Context: Format(now, results, rep),
		Report:  rep,
		Results: results,
	}, nil
}
