package mcpcap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/capability"
	"github.com/ausweis-dev/ausweis/pkg/capability/invoker"
)

// Ensure Client satisfies the invoker contract at compile time.
var _ invoker.Invoker = (*Client)(nil)

// Invoke validates the arguments against the descriptor and calls the
// remote tool. Like the HTTP invoker, an invalid proposal never reaches
// the server and at most one call is issued.
func (c *Client) Invoke(ctx context.Context, d *capability.Descriptor, args json.RawMessage) invoker.Result {
	if err := d.ValidateArguments(args); err != nil {
		return invoker.Result{Outcome: api.OutcomeValidationError, Message: err.Message}
	}

	if c.session == nil {
		return invoker.Result{
			Outcome: api.OutcomeTransportError,
			Message: fmt.Sprintf("MCP client %q not connected", c.cfg.Name),
		}
	}

	var argMap map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argMap); err != nil {
			return invoker.Result{Outcome: api.OutcomeValidationError, Message: "decoding arguments: " + err.Error()}
		}
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      d.MCPTool,
		Arguments: argMap,
	})
	if err != nil {
		// No result came back. For a mutating tool the call may still
		// have taken effect on the server.
		outcome := api.OutcomeIndeterminate
		if d.SideEffect.Repeatable() {
			outcome = api.OutcomeTransportError
		}
		return invoker.Result{Outcome: outcome, Message: err.Error()}
	}

	payload := resultPayload(result)

	if result.IsError {
		return invoker.Result{
			Outcome: api.OutcomeRemoteError,
			Payload: payload,
			Code:    "tool_error",
			Message: textContent(result),
		}
	}

	return invoker.Result{Outcome: api.OutcomeSuccess, Payload: payload}
}

// resultPayload normalizes a tool result into JSON. Structured content
// wins; otherwise the text content passes through as JSON when valid and
// is wrapped as a JSON string when not.
func resultPayload(result *mcp.CallToolResult) json.RawMessage {
	if result.StructuredContent != nil {
		if raw, err := json.Marshal(result.StructuredContent); err == nil {
			return raw
		}
	}

	text := textContent(result)
	if text == "" {
		return nil
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text)
	}
	wrapped, _ := json.Marshal(text)
	return wrapped
}

func textContent(result *mcp.CallToolResult) string {
	var out string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}
