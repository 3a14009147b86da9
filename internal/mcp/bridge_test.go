package mcpbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"lookupbot/internal/api"
	"lookupbot/internal/api/handlers"
	ws "lookupbot/internal/api/websocket"
	"lookupbot/internal/config"
	"lookupbot/internal/knowledge"
	"lookupbot/internal/storage/flatfile"
)

func TestMCPInProcessToolRoundTrip(t *testing.T) {
	env := setupMCPTestEnv(t)
	bridge := New(Options{Config: env.cfg, Router: env.router})

	client, err := mcpclient.NewInProcessClient(bridge.MCPServer())
	if err != nil {
		t.Fatalf("new in-process client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		t.Fatalf("start client: %v", err)
	}
	if _, err := client.Initialize(ctx, initializeRequest()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	tools, err := client.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	for _, spec := range ToolSpecs() {
		if !hasTool(tools.Tools, spec.Name) {
			t.Fatalf("tool %s not exposed", spec.Name)
		}
	}

	added := callTool(t, client, "entries_add", map[string]any{"keys": "cough,kashel", "text": "Give syrup."})
	if added.IsError {
		t.Fatalf("entries_add returned error: %s", resultText(added))
	}
	if env.svc.Len() != 1 {
		t.Fatalf("expected entry to be stored, have %d", env.svc.Len())
	}

	matched := callTool(t, client, "entries_match", map[string]any{"q": "dry kashel"})
	if matched.IsError || !strings.Contains(resultText(matched), "Give syrup.") {
		t.Fatalf("unexpected match result: %s", resultText(matched))
	}

	edited := callTool(t, client, "entries_edit", map[string]any{"keys": "cough", "text": "Warm tea."})
	if edited.IsError {
		t.Fatalf("entries_edit returned error: %s", resultText(edited))
	}
	if got := env.svc.Match("cough"); len(got) != 1 || got[0] != "Warm tea." {
		t.Fatalf("unexpected text after edit: %v", got)
	}

	deleted := callTool(t, client, "entries_delete", map[string]any{"keys": "flu,kashel"})
	if deleted.IsError || env.svc.Len() != 0 {
		t.Fatalf("entries_delete failed: %s", resultText(deleted))
	}
	if text := resultText(deleted); !strings.Contains(text, "not_found") || !strings.Contains(text, "flu") {
		t.Fatalf("expected flu reported as not found: %s", text)
	}
}

func TestMCPToolErrors(t *testing.T) {
	env := setupMCPTestEnv(t)
	bridge := New(Options{Config: env.cfg, Router: env.router})
	client, err := mcpclient.NewInProcessClient(bridge.MCPServer())
	if err != nil {
		t.Fatalf("new in-process client: %v", err)
	}
	defer client.Close()
	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		t.Fatalf("start client: %v", err)
	}
	if _, err := client.Initialize(ctx, initializeRequest()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	res := callTool(t, client, "entries_add", map[string]any{"keys": "", "text": "x"})
	if !res.IsError || !strings.Contains(resultText(res), "VALIDATION_ERROR") {
		t.Fatalf("expected validation error, got %s", resultText(res))
	}
	res = callTool(t, client, "entries_delete", map[string]any{})
	if !res.IsError {
		t.Fatalf("expected missing path argument error")
	}
	res = callTool(t, client, "admin_backup", nil)
	if !res.IsError || !strings.Contains(resultText(res), "BACKUP_DISABLED") {
		t.Fatalf("expected backup disabled error, got %s", resultText(res))
	}
}

func TestMCPHTTPHandler(t *testing.T) {
	env := setupMCPTestEnv(t)
	bridge := New(Options{Config: env.cfg, Router: env.router})
	ts := httptest.NewServer(bridge.HTTPHandler())
	defer ts.Close()

	client, err := mcpclient.NewStreamableHttpClient(ts.URL + env.cfg.MCP.HTTP.Path)
	if err != nil {
		t.Fatalf("new http client: %v", err)
	}
	defer client.Close()
	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		t.Fatalf("start client: %v", err)
	}
	if _, err := client.Initialize(ctx, initializeRequest()); err != nil {
		t.Fatalf("init client: %v", err)
	}
	res, err := client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{Name: "entries_list"},
	})
	if err != nil {
		t.Fatalf("entries_list: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
}

type mcpTestEnv struct {
	cfg    config.Config
	svc    *knowledge.Service
	router http.Handler
}

func setupMCPTestEnv(t *testing.T) mcpTestEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.File.Path = filepath.Join(t.TempDir(), "entries.txt")
	cfg.MCP.Enabled = true
	cfg.MCP.HTTP.Enabled = true
	cfg.MCP.HTTP.Path = "/mcp"

	svc := knowledge.New(flatfile.New(cfg.Storage.File.Path))
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	router := api.NewRouter(handlers.New(svc, nil, cfg), ws.NewHub(svc))
	return mcpTestEnv{cfg: cfg, svc: svc, router: router}
}

type toolCaller interface {
	CallTool(ctx context.Context, request mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error)
}

func callTool(t *testing.T, c toolCaller, name string, args map[string]any) *mcptypes.CallToolResult {
	t.Helper()
	req := mcptypes.CallToolRequest{Params: mcptypes.CallToolParams{Name: name}}
	if args != nil {
		req.Params.Arguments = args
	}
	res, err := c.CallTool(context.Background(), req)
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	return res
}

func resultText(res *mcptypes.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := mcptypes.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		b, _ := json.Marshal(res.StructuredContent)
		parts = append(parts, string(b))
	}
	return strings.Join(parts, "\n")
}

func initializeRequest() mcptypes.InitializeRequest {
	return mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: mcptypes.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcptypes.Implementation{
				Name:    "lookupbot-test-client",
				Version: "0.0.1",
			},
			Capabilities: mcptypes.ClientCapabilities{},
		},
	}
}

func hasTool(tools []mcptypes.Tool, name string) bool {
	for _, tool := range tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}
