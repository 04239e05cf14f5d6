package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/companion"
)

// Remote exposes the tools of an MCP server as capabilities.
//
// Remote is safe for concurrent use. The tool list is cached locally and
// can be refreshed with [Remote.Refresh].
type Remote struct {
	name   string
	client *client.Client

	mu   sync.RWMutex
	caps []ai.Capability
}

// Connect starts an MCP server subprocess and loads its tools. name becomes
// the piece of every loaded capability.
func Connect(ctx context.Context, name, command string, env []string, args ...string) (*Remote, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("mcp: create stdio client: %w", err)
	}
	return NewRemote(ctx, name, c)
}

// ConnectSSE connects to an MCP server over SSE and loads its tools.
func ConnectSSE(ctx context.Context, name, baseURL string) (*Remote, error) {
	c, err := client.NewSSEMCPClient(baseURL)
	if err != nil {
		return nil, fmt.Errorf("mcp: create SSE client: %w", err)
	}
	return NewRemote(ctx, name, c)
}

// NewRemote starts and initializes c, then loads its tools.
func NewRemote(ctx context.Context, name string, c *client.Client) (*Remote, error) {
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp: start client: %w", err)
	}

	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "toolflow",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: initialize session: %w", err)
	}

	r := &Remote{name: name, client: c}
	if err := r.Refresh(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return r, nil
}

// Name returns the server name used as the capabilities' piece.
func (r *Remote) Name() string {
	return r.name
}

// Close closes the connection to the MCP server.
func (r *Remote) Close() error {
	return r.client.Close()
}

// Refresh fetches the current list of tools from the server.
func (r *Remote) Refresh(ctx context.Context) error {
	result, err := r.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("mcp: list tools: %w", err)
	}

	comp := companion.ForPiece(r.name)
	caps := make([]ai.Capability, 0, len(result.Tools))
	for _, t := range result.Tools {
		caps = append(caps, ai.Capability{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  inputSchema(t),
			Piece:       r.name,
			Companion:   comp,
			Invoke:      r.invoker(t.Name),
		})
	}

	r.mu.Lock()
	r.caps = caps
	r.mu.Unlock()
	return nil
}

// Capabilities returns the loaded capabilities in server order.
func (r *Remote) Capabilities() []ai.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ai.Capability(nil), r.caps...)
}

func (r *Remote) invoker(name string) ai.Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		result, err := r.client.CallTool(ctx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{Name: name, Arguments: args},
		})
		if err != nil {
			return nil, fmt.Errorf("mcp: call %s: %w", name, err)
		}
		v, err := resultValue(result)
		if err != nil {
			return nil, fmt.Errorf("mcp: %s: %w", name, err)
		}
		return v, nil
	}
}
