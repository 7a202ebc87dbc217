package mcpcap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/capability"
)

// ServerConfig describes one MCP server to source capabilities from.
type ServerConfig struct {
	// Name is the logical server name, used in logs and errors.
	Name string `json:"name" yaml:"name"`

	// Transport is "sse" or "streamable-http". Empty defaults to
	// streamable-http.
	Transport string `json:"transport" yaml:"transport"`

	// URL is the MCP server endpoint.
	URL string `json:"url" yaml:"url"`

	// Headers are sent with every request, typically for authentication.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// SideEffects overrides the side-effect class per tool name. Tools
	// without an override fall back to the server's annotations: a
	// read-only hint maps to read-only, everything else is treated as
	// mutating. Credential-sensitive tools must be listed here since no
	// annotation expresses that class.
	SideEffects map[string]api.SideEffect `json:"side_effects,omitempty" yaml:"side_effects,omitempty"`
}

// Client wraps an MCP SDK client session for a single server. It
// discovers tools as capability descriptors and invokes them.
type Client struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession

	mu          sync.Mutex
	descriptors []*capability.Descriptor
	discovered  bool
}

// NewClient creates a Client for the given server. Call Connect before
// discovering or invoking.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect establishes the MCP connection and performs the protocol
// handshake. A nil transport is created from the server configuration;
// tests pass their own.
func (c *Client) Connect(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{
			Name:    "ausweis",
			Version: "1.0.0",
		},
		&mcp.ClientOptions{
			Capabilities: &mcp.ClientCapabilities{},
		},
	)

	if transport == nil {
		t, err := c.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
		transport = t
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	return nil
}

func (c *Client) createTransport() (mcp.Transport, error) {
	httpClient := c.buildHTTPClient()

	switch c.cfg.Transport {
	case "sse":
		transport := &mcp.SSEClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	case "streamable-http", "":
		transport := &mcp.StreamableClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

func (c *Client) buildHTTPClient() *http.Client {
	if len(c.cfg.Headers) == 0 {
		return nil
	}
	return &http.Client{
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: c.cfg.Headers,
		},
	}
}

// headerTransport adds static headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// Discover lists the server's tools and converts them into capability
// descriptors. Results are cached; subsequent calls return the cache.
func (c *Client) Discover(ctx context.Context) ([]*capability.Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.discovered {
		return c.descriptors, nil
	}
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var descriptors []*capability.Descriptor
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		d, convErr := c.convertTool(tool)
		if convErr != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, convErr)
		}
		descriptors = append(descriptors, d)
	}

	c.descriptors = descriptors
	c.discovered = true
	return descriptors, nil
}

// Registry builds a capability registry from the discovered tools.
func (c *Client) Registry(ctx context.Context) (*capability.Registry, error) {
	descriptors, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return capability.BuildFromDescriptors(descriptors)
}

func (c *Client) convertTool(t *mcp.Tool) (*capability.Descriptor, error) {
	var schemaJSON json.RawMessage
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshaling input schema: %w", err)
		}
		schemaJSON = data
	}
	return capability.NewMCPDescriptor(t.Name, t.Description, c.sideEffect(t), schemaJSON)
}

// sideEffect resolves a tool's side-effect class: explicit configuration
// wins, then the server's read-only annotation, then mutating.
func (c *Client) sideEffect(t *mcp.Tool) api.SideEffect {
	if se, ok := c.cfg.SideEffects[t.Name]; ok {
		return se
	}
	if t.Annotations != nil && t.Annotations.ReadOnlyHint {
		return api.SideEffectReadOnly
	}
	return api.SideEffectMutating
}

// Close closes the MCP session.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
