package briefing

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/obba100/redress/mcpkit"
	"github.com/obba100/redress/timeline"
)

// RegisterMCP registers the request-path tools on an MCP server.
func (b *Builder) RegisterMCP(srv *mcp.Server) {
	b.registerLegalContextTool(srv)
	b.registerTimelineAnalyzeTool(srv)
}

// --- legal_context ---

type legalContextReq struct {
	Query        string `json:"query"`
	Conversation []Turn `json:"conversation,omitempty"`
}

func (b *Builder) registerLegalContextTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "legal_context",
		Description: "Assemble the legal briefing for a tenant's situation: timeline breach analysis plus retrieved housing law, ready to ground a complaint letter.",
		InputSchema: mcpkit.InputSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "The tenant's latest message"},
			"conversation": map[string]any{
				"type":        "array",
				"description": "Prior conversation turns, oldest first; only content is read",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"role":    map[string]any{"type": "string"},
						"content": map[string]any{"type": "string"},
					},
				},
			},
		}, []string{"query"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*legalContextReq)
		briefing, err := b.Build(ctx, r.Query, r.Conversation)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"context":      briefing.Context,
			"report":       briefing.Report,
			"result_count": len(briefing.Results),
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*mcpkit.DecodeResult, error) {
		var r legalContextReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &mcpkit.DecodeResult{Request: &r}, nil
	}

	mcpkit.Register(srv, tool, endpoint, decode)
}

// --- timeline_analyze ---

type timelineAnalyzeReq struct {
	Conversation string `json:"conversation"`
}

func (b *Builder) registerTimelineAnalyzeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "timeline_analyze",
		Description: "Extract the report date, issue type and vulnerability signals from conversation text and measure elapsed time against statutory deadlines.",
		InputSchema: mcpkit.InputSchema(map[string]any{
			"conversation": map[string]any{"type": "string", "description": "Free conversation text describing the complaint"},
		}, []string{"conversation"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*timelineAnalyzeReq)
		now := b.now()
		fact := timeline.Extract(r.Conversation, now)
		return map[string]any{
			"fact":   fact,
			"report": timeline.Calculate(fact, now, b.Timeline),
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*mcpkit.DecodeResult, error) {
		var r timelineAnalyzeReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &mcpkit.DecodeResult{Request: &r}, nil
	}

	mcpkit.Register(srv, tool, endpoint, decode)
}
