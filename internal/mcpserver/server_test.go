package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/engram/internal/storage"
	"github.com/starford/engram/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv(t)
	env.Seed(t)
	return New(env.Svc, "test"), env
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"vcs_status":         srv.status,
		"vcs_log":            srv.log,
		"vcs_show":           srv.show,
		"vcs_diff":           srv.diff,
		"vcs_branches":       srv.branches,
		"search_blocks":      srv.searchBlocks,
		"get_block":          srv.getBlock,
		"append_block":       srv.appendBlock,
		"get_block_contract": srv.getBlockContract,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestAppendAndGetBlock(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "append_block", map[string]interface{}{
		"category":   "solutions",
		"session_id": "s1",
		"content":    "Retry with jittered backoff. See [[d1]].",
	})
	if text := resultText(r); text != "appended: solutions/s1" {
		t.Errorf("append result = %q", text)
	}

	r = callTool(t, srv, "get_block", map[string]interface{}{
		"category":   "solutions",
		"session_id": "s1",
	})
	if r.IsError {
		t.Fatalf("get_block error: %s", resultText(r))
	}
	var got struct {
		Content string   `json:"content"`
		Links   []string `json:"links"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatal(err)
	}
	if got.Content != "Retry with jittered backoff. See [[d1]]." {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.Links) != 1 || got.Links[0] != "d1" {
		t.Errorf("links = %v", got.Links)
	}
}

func TestGetBlockMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_block", map[string]interface{}{"category": "decisions", "session_id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing block")
	}
	r = callTool(t, srv, "get_block", map[string]interface{}{"category": "decisions"})
	if !r.IsError {
		t.Error("expected error for missing session_id")
	}
}

func TestAppendBlockDuplicate(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "append_block", map[string]interface{}{
		"category":   "decisions",
		"session_id": "d1",
		"content":    "again",
	})
	if !r.IsError {
		t.Error("expected error for duplicate session id")
	}
}

func TestAppendBlockInvalidID(t *testing.T) {
	srv, env := testServer(t)
	before, _ := env.Store.Read(storage.CategoryPath("decisions"))

	r := callTool(t, srv, "append_block", map[string]interface{}{
		"category":   "decisions",
		"session_id": "bad id",
		"content":    "hello",
	})
	if !r.IsError || !strings.Contains(resultText(r), "invalid block") {
		t.Fatalf("result = %q, want invalid block error", resultText(r))
	}
	after, _ := env.Store.Read(storage.CategoryPath("decisions"))
	if string(after) != string(before) {
		t.Errorf("decisions.md changed:\n%s", after)
	}
}

func TestStatusAfterAppend(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "append_block", map[string]interface{}{
		"category": "patterns",
		"content":  "Table tests everywhere.",
	})

	r := callTool(t, srv, "vcs_status", map[string]interface{}{})
	var st struct {
		UnstagedNew []struct {
			Categories []string `json:"categories"`
		} `json:"unstaged_new"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &st); err != nil {
		t.Fatal(err)
	}
	if len(st.UnstagedNew) != 1 || len(st.UnstagedNew[0].Categories) != 1 || st.UnstagedNew[0].Categories[0] != "patterns" {
		t.Errorf("status = %s", resultText(r))
	}
}

func TestLogAndBranches(t *testing.T) {
	srv, _ := testServer(t)

	text := resultText(callTool(t, srv, "vcs_log", map[string]interface{}{}))
	if !strings.Contains(text, "main (2 sessions) first") {
		t.Errorf("log = %q", text)
	}
	text = resultText(callTool(t, srv, "vcs_log", map[string]interface{}{"grep": "nothing-like-this"}))
	if text != "no commits" {
		t.Errorf("grep log = %q", text)
	}

	text = resultText(callTool(t, srv, "vcs_branches", map[string]interface{}{}))
	if !strings.HasPrefix(text, "* main ") {
		t.Errorf("branches = %q", text)
	}
}

func TestShowAndDiff(t *testing.T) {
	srv, env := testServer(t)

	r := callTool(t, srv, "vcs_show", map[string]interface{}{"ref": "HEAD"})
	if r.IsError {
		t.Fatalf("show error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"d2"`) {
		t.Errorf("show = %s", resultText(r))
	}
	if r := callTool(t, srv, "vcs_show", map[string]interface{}{}); !r.IsError {
		t.Error("expected error without ref")
	}

	text := resultText(callTool(t, srv, "vcs_diff", map[string]interface{}{}))
	if !strings.HasPrefix(text, "no differences") {
		t.Errorf("clean diff = %q", text)
	}

	env.WriteCategory(t, "decisions",
		testutil.Block("d1", "2025-01-01T10:00:00Z", "Use sqlite for the block index."),
	)
	text = resultText(callTool(t, srv, "vcs_diff", map[string]interface{}{}))
	if !strings.Contains(text, "[decisions]") || !strings.Contains(text, "- d2") {
		t.Errorf("diff = %q", text)
	}
}

func TestSearchBlocks(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "search_blocks", map[string]interface{}{"query": "sqlite"})
	if r.IsError {
		t.Fatalf("search error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"d1"`) {
		t.Errorf("search = %s", resultText(r))
	}
}

func TestBlockContract(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_block_contract", map[string]interface{}{}))
	if !strings.Contains(text, "decisions, solutions, patterns, preferences") {
		t.Errorf("contract does not list categories: %q", text[:min(len(text), 200)])
	}
	if !strings.Contains(text, "## Session: <id> (<timestamp>)") {
		t.Error("contract does not describe the header")
	}
}
