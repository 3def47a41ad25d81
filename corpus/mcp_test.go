package corpus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "corpus-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func callToolExpectError(t *testing.T, session *mcp.ClientSession, name string, args any) error {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	toolErr := result.GetError()
	if !result.IsError {
		t.Fatalf("CallTool(%s): expected tool error", name)
	}
	return toolErr
}

// --- corpus_add_source + corpus_sources ---

func TestMCP_AddSourceAndList(t *testing.T) {
	env := newTestEnv(t)
	session := mcpSession(t, env.svc)

	text := callTool(t, session, "corpus_add_source", map[string]any{
		"name":     "ombudsman-code",
		"location": "https://example.org/code",
	})

	var added Source
	if err := json.Unmarshal([]byte(text), &added); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if added.ID == "" {
		t.Error("ID should be generated")
	}
	if added.Tag != TagCore {
		t.Errorf("tag: got %q, want core default", added.Tag)
	}

	text = callTool(t, session, "corpus_sources", map[string]any{})
	var listResp struct {
		Sources []Source `json:"sources"`
		Count   int      `json:"count"`
	}
	if err := json.Unmarshal([]byte(text), &listResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if listResp.Count != 1 {
		t.Errorf("count: got %d, want 1", listResp.Count)
	}
	if listResp.Sources[0].Name != "ombudsman-code" {
		t.Errorf("name: got %q", listResp.Sources[0].Name)
	}
}

func TestMCP_AddSource_InvalidIsToolError(t *testing.T) {
	env := newTestEnv(t)
	session := mcpSession(t, env.svc)

	// Missing location: a tool-level error, not a transport failure.
	callToolExpectError(t, session, "corpus_add_source", map[string]any{
		"name": "incomplete",
	})
}

// --- corpus_run + corpus_stats ---

func TestMCP_RunAndStats(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.pages["https://a.example"] = []byte(pageAck)
	env.addSource(t, &Source{Name: "ack", Location: "https://a.example", Enabled: true})

	session := mcpSession(t, env.svc)

	text := callTool(t, session, "corpus_run", map[string]any{})
	var rep struct {
		SourcesTotal int `json:"sources_total"`
		Succeeded    int `json:"succeeded"`
		Upserted     int `json:"upserted"`
	}
	if err := json.Unmarshal([]byte(text), &rep); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rep.SourcesTotal != 1 || rep.Succeeded != 1 {
		t.Errorf("run: got total=%d succeeded=%d, want 1/1", rep.SourcesTotal, rep.Succeeded)
	}
	if rep.Upserted != 1 {
		t.Errorf("upserted: got %d, want 1", rep.Upserted)
	}

	text = callTool(t, session, "corpus_stats", map[string]any{})
	var stats struct {
		Sources   int `json:"sources"`
		Documents int `json:"documents"`
		LastRun   *struct {
			Succeeded int `json:"succeeded"`
		} `json:"last_run"`
	}
	if err := json.Unmarshal([]byte(text), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Sources != 1 || stats.Documents != 1 {
		t.Errorf("stats: got sources=%d documents=%d, want 1/1", stats.Sources, stats.Documents)
	}
	if stats.LastRun == nil || stats.LastRun.Succeeded != 1 {
		t.Errorf("last_run: got %+v", stats.LastRun)
	}
}
