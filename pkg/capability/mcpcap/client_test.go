package mcpcap

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ausweis-dev/ausweis/pkg/api"
)

type testTool struct {
	tool    *mcp.Tool
	handler mcp.ToolHandler
}

// setupTestServer wires an in-memory MCP server to a Client.
func setupTestServer(t *testing.T, cfg ServerConfig, serverTools []testTool) *Client {
	t.Helper()

	server := mcp.NewServer(
		&mcp.Implementation{Name: "test-server", Version: "1.0.0"},
		nil,
	)
	for _, tt := range serverTools {
		server.AddTool(tt.tool, tt.handler)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	client := NewClient(cfg)
	if err := client.Connect(ctx, clientTransport); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func echoTool(name string, readOnly bool) testTool {
	tool := &mcp.Tool{
		Name:        name,
		Description: "Test tool: " + name,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"value": map[string]any{"type": "string"},
			},
			"required":             []any{"value"},
			"additionalProperties": false,
		},
	}
	if readOnly {
		tool.Annotations = &mcp.ToolAnnotations{ReadOnlyHint: true}
	}
	return testTool{
		tool: tool,
		handler: func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			raw, _ := json.Marshal(req.Params.Arguments)
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
			}, nil
		},
	}
}

func TestDiscover(t *testing.T) {
	client := setupTestServer(t, ServerConfig{
		Name: "test-server",
		SideEffects: map[string]api.SideEffect{
			"issue": api.SideEffectCredential,
		},
	}, []testTool{
		echoTool("lookup", true),
		echoTool("update", false),
		echoTool("issue", false),
	})

	reg, err := client.Registry(context.Background())
	if err != nil {
		t.Fatalf("Registry failed: %v", err)
	}
	if reg.Len() != 3 {
		t.Fatalf("expected 3 capabilities, got %d", reg.Len())
	}

	tests := []struct {
		name string
		se   api.SideEffect
	}{
		{"lookup", api.SideEffectReadOnly},
		{"update", api.SideEffectMutating},
		{"issue", api.SideEffectCredential},
	}
	for _, tt := range tests {
		d, ok := reg.Lookup(tt.name)
		if !ok {
			t.Errorf("expected capability %s to be discovered", tt.name)
			continue
		}
		if d.SideEffect != tt.se {
			t.Errorf("capability %s: expected side effect %s, got %s", tt.name, tt.se, d.SideEffect)
		}
		if d.MCPTool != tt.name {
			t.Errorf("capability %s: expected MCP tool binding, got %q", tt.name, d.MCPTool)
		}
	}

	// Discovery is cached.
	again, err := client.Discover(context.Background())
	if err != nil {
		t.Fatalf("second Discover failed: %v", err)
	}
	if len(again) != 3 {
		t.Errorf("expected cached discovery, got %d descriptors", len(again))
	}
}

func TestInvoke(t *testing.T) {
	client := setupTestServer(t, ServerConfig{Name: "test-server"},
		[]testTool{echoTool("lookup", true)})

	reg, err := client.Registry(context.Background())
	if err != nil {
		t.Fatalf("Registry failed: %v", err)
	}
	d, _ := reg.Lookup("lookup")

	res := client.Invoke(context.Background(), d, json.RawMessage(`{"value":"hello"}`))
	if res.Outcome != api.OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Message)
	}
	if string(res.Payload) != `{"value":"hello"}` {
		t.Errorf("unexpected payload: %s", res.Payload)
	}
}

func TestInvokeValidatesFirst(t *testing.T) {
	calls := 0
	tool := echoTool("lookup", true)
	tool.handler = func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		calls++
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "ok"}},
		}, nil
	}
	client := setupTestServer(t, ServerConfig{Name: "test-server"}, []testTool{tool})

	reg, err := client.Registry(context.Background())
	if err != nil {
		t.Fatalf("Registry failed: %v", err)
	}
	d, _ := reg.Lookup("lookup")

	res := client.Invoke(context.Background(), d, json.RawMessage(`{"wrong":"field"}`))
	if res.Outcome != api.OutcomeValidationError {
		t.Fatalf("expected validation error, got %s", res.Outcome)
	}
	if calls != 0 {
		t.Errorf("expected no tool call for invalid arguments, got %d", calls)
	}
}

func TestInvokeToolError(t *testing.T) {
	tool := echoTool("lookup", true)
	tool.handler = func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "record not found"}},
		}, nil
	}
	client := setupTestServer(t, ServerConfig{Name: "test-server"}, []testTool{tool})

	reg, err := client.Registry(context.Background())
	if err != nil {
		t.Fatalf("Registry failed: %v", err)
	}
	d, _ := reg.Lookup("lookup")

	res := client.Invoke(context.Background(), d, json.RawMessage(`{"value":"x"}`))
	if res.Outcome != api.OutcomeRemoteError {
		t.Fatalf("expected remote error, got %s", res.Outcome)
	}
	if res.Message != "record not found" {
		t.Errorf("unexpected message: %q", res.Message)
	}
}
