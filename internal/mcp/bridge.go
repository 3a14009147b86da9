// Package mcpbridge exposes the REST API as MCP tools. Every tool call is
// served by the in-process router so both surfaces share one code path.
package mcpbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"lookupbot/internal/config"
)

type Options struct {
	Config  config.Config
	Router  http.Handler
	Version string
}

type Bridge struct {
	cfg    config.Config
	router http.Handler
	server *mcpserver.MCPServer
}

// Field is a string argument forwarded to the REST call.
type Field struct {
	Name        string
	Description string
	Required    bool
}

type ToolSpec struct {
	Name        string
	Description string
	Method      string
	Path        string
	Query       []Field
	Body        []Field
}

type apiEnvelope struct {
	OK         bool `json:"ok"`
	Data       any  `json:"data"`
	Error      any  `json:"error"`
	Pagination any  `json:"pagination"`
}

var routeParamPattern = regexp.MustCompile(`\{([^{}]+)\}`)

func New(opts Options) *Bridge {
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	b := &Bridge{
		cfg:    opts.Config,
		router: opts.Router,
	}
	b.server = mcpserver.NewMCPServer(
		"lookupbot",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions("Use lookupbot tools to inspect and edit the keyword reference entries the chat bot answers from."),
	)
	for _, spec := range ToolSpecs() {
		b.server.AddTool(spec.toTool(), b.makeToolHandler(spec))
	}
	return b
}

func (b *Bridge) MCPServer() *mcpserver.MCPServer {
	return b.server
}

func (b *Bridge) ServeStdio() error {
	return mcpserver.ServeStdio(b.server)
}

func (b *Bridge) HTTPHandler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(
		b.server,
		mcpserver.WithEndpointPath(b.cfg.MCP.HTTP.Path),
	)
}

func ToolSpecs() []ToolSpec {
	keysArg := Field{Name: "keys", Description: "Comma-separated keys, e.g. \"aspirin,asa\"", Required: true}
	textArg := Field{Name: "text", Description: "Reply text sent when a key matches", Required: true}
	return []ToolSpec{
		{Name: "entries_list", Description: "List stored entries in order", Method: http.MethodGet, Path: "/api/v1/entries",
			Query: []Field{
				{Name: "key", Description: "Only entries carrying this key"},
				{Name: "page", Description: "Page number, from 1"},
				{Name: "limit", Description: "Entries per page"},
			}},
		{Name: "entries_add", Description: "Append an entry", Method: http.MethodPost, Path: "/api/v1/entries",
			Body: []Field{keysArg, textArg}},
		{Name: "entries_delete", Description: "Delete every entry carrying any of the keys", Method: http.MethodDelete, Path: "/api/v1/entries/{keys}"},
		{Name: "entries_edit", Description: "Replace the text of the first entry carrying any of the keys", Method: http.MethodPut, Path: "/api/v1/entries/{keys}",
			Body: []Field{textArg}},
		{Name: "entries_match", Description: "Return the texts the bot would reply with for a message", Method: http.MethodGet, Path: "/api/v1/match",
			Query: []Field{{Name: "q", Description: "Incoming chat message", Required: true}}},
		{Name: "admin_reload", Description: "Reload entries from the storage backend", Method: http.MethodPost, Path: "/api/v1/admin/reload"},
		{Name: "admin_backup", Description: "Write a snapshot of the entries now", Method: http.MethodPost, Path: "/api/v1/admin/backup"},
	}
}

func (s ToolSpec) toTool() mcptypes.Tool {
	opts := []mcptypes.ToolOption{
		mcptypes.WithDescription(s.Description),
	}
	for _, param := range pathParams(s.Path) {
		opts = append(opts, mcptypes.WithString(param, mcptypes.Required(), mcptypes.Description("Path parameter: "+param)))
	}
	for _, f := range append(append([]Field{}, s.Query...), s.Body...) {
		fieldOpts := []mcptypes.PropertyOption{mcptypes.Description(f.Description)}
		if f.Required {
			fieldOpts = append(fieldOpts, mcptypes.Required())
		}
		opts = append(opts, mcptypes.WithString(f.Name, fieldOpts...))
	}
	return mcptypes.NewTool(s.Name, opts...)
}

func (b *Bridge) makeToolHandler(spec ToolSpec) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]any{}
		}

		path, err := fillPath(spec.Path, args)
		if err != nil {
			return mcptypes.NewToolResultError(err.Error()), nil
		}

		query := url.Values{}
		for _, f := range spec.Query {
			if v := argString(args, f.Name); v != "" {
				query.Set(f.Name, v)
			} else if f.Required {
				return mcptypes.NewToolResultError("missing required argument: " + f.Name), nil
			}
		}

		var payload map[string]any
		if methodHasBody(spec.Method) {
			payload = map[string]any{}
			for _, f := range spec.Body {
				payload[f.Name] = argString(args, f.Name)
			}
		}

		env, status, err := b.invokeREST(ctx, spec.Method, path, query, payload)
		if err != nil {
			return mcptypes.NewToolResultError(err.Error()), nil
		}
		if !env.OK {
			return mcptypes.NewToolResultError(apiErrorText(env.Error, status)), nil
		}

		out := map[string]any{
			"status_code": status,
			"data":        env.Data,
		}
		if env.Pagination != nil {
			out["pagination"] = env.Pagination
		}
		return mcptypes.NewToolResultJSON(out)
	}
}

func (b *Bridge) invokeREST(ctx context.Context, method, path string, query url.Values, payload map[string]any) (apiEnvelope, int, error) {
	target := path
	if qs := query.Encode(); qs != "" {
		target += "?" + qs
	}

	body := bytes.NewReader(nil)
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return apiEnvelope{}, 0, err
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, body).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	// In-process calls share one limiter bucket per transport.
	req.RemoteAddr = "mcp:0"

	rr := httptest.NewRecorder()
	b.router.ServeHTTP(rr, req)

	var env apiEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		return apiEnvelope{}, rr.Code, fmt.Errorf("invalid API response: %w", err)
	}
	return env, rr.Code, nil
}

func fillPath(path string, args map[string]any) (string, error) {
	out := path
	for _, key := range pathParams(path) {
		value := strings.TrimSpace(argString(args, key))
		if value == "" {
			return "", fmt.Errorf("missing required path argument: %s", key)
		}
		out = strings.ReplaceAll(out, "{"+key+"}", url.PathEscape(value))
	}
	return out, nil
}

func pathParams(path string) []string {
	matches := routeParamPattern.FindAllStringSubmatch(path, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) == 2 {
			out = append(out, m[1])
		}
	}
	return out
}

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, it := range t {
			parts = append(parts, fmt.Sprint(it))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}

func methodHasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

func apiErrorText(apiErr any, status int) string {
	if m, ok := apiErr.(map[string]any); ok {
		code := fmt.Sprint(m["code"])
		msg := fmt.Sprint(m["message"])
		if code != "" && msg != "" {
			return code + ": " + msg
		}
		if msg != "" {
			return msg
		}
	}
	if apiErr != nil {
		return fmt.Sprint(apiErr)
	}
	return fmt.Sprintf("request failed with status %d", status)
}
