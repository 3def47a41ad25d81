package corpus

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/obba100/redress/mcpkit"
)

// RegisterMCP registers corpus management tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerRunTool(srv)
	s.registerAddSourceTool(srv)
	s.registerSourcesTool(srv)
	s.registerStatsTool(srv)
}

// --- run ---

func (s *Service) registerRunTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "corpus_run",
		Description: "Run a full ingestion pass over all enabled legal sources and report the outcome.",
		InputSchema: mcpkit.InputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Run(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*mcpkit.DecodeResult, error) {
		return &mcpkit.DecodeResult{Request: nil}, nil
	}

	mcpkit.Register(srv, tool, endpoint, decode)
}

// --- add source ---

type addSourceReq struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Format   string `json:"format,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

func (s *Service) registerAddSourceTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "corpus_add_source",
		Description: "Register a new legal source (HTTP URL or file path) for ingestion.",
		InputSchema: mcpkit.InputSchema(map[string]any{
			"name":     map[string]any{"type": "string", "description": "Human-readable source name, used as chunk provenance"},
			"location": map[string]any{"type": "string", "description": "http(s) URL or path under the configured base dir"},
			"format":   map[string]any{"type": "string", "description": "html or pdf (default: detected from location)"},
			"tag":      map[string]any{"type": "string", "description": "core or update (default: core)"},
		}, []string{"name", "location"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*addSourceReq)
		src := &Source{
			Name:     r.Name,
			Location: r.Location,
			Format:   r.Format,
			Tag:      r.Tag,
			Enabled:  true,
		}
		return s.AddSource(ctx, src)
	}

	decode := func(req *mcp.CallToolRequest) (*mcpkit.DecodeResult, error) {
		var r addSourceReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &mcpkit.DecodeResult{Request: &r}, nil
	}

	mcpkit.Register(srv, tool, endpoint, decode)
}

// --- sources ---

func (s *Service) registerSourcesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "corpus_sources",
		Description: "List all registered legal sources with their fetch state.",
		InputSchema: mcpkit.InputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		sources, err := s.ListSources(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"sources": sources, "count": len(sources)}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*mcpkit.DecodeResult, error) {
		return &mcpkit.DecodeResult{Request: nil}, nil
	}

	mcpkit.Register(srv, tool, endpoint, decode)
}

// --- stats ---

func (s *Service) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "corpus_stats",
		Description: "Get corpus statistics: source counts, embedded document count, last run report.",
		InputSchema: mcpkit.InputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Stats(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*mcpkit.DecodeResult, error) {
		return &mcpkit.DecodeResult{Request: nil}, nil
	}

	mcpkit.Register(srv, tool, endpoint, decode)
}
