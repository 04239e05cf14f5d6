package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/capability"
)

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	name    string
	version string
}

// WithName sets the server name reported to MCP clients.
func WithName(name string) ServerOption {
	return func(c *serverConfig) {
		c.name = name
	}
}

// WithVersion sets the server version reported to MCP clients.
func WithVersion(version string) ServerOption {
	return func(c *serverConfig) {
		c.version = version
	}
}

// NewServer creates an MCP server exposing every capability in catalog that
// has an implementation. Arguments are passed through unresolved.
func NewServer(catalog *capability.Catalog, opts ...ServerOption) *server.MCPServer {
	cfg := &serverConfig{
		name:    "toolflow",
		version: "1.0.0",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := server.NewMCPServer(
		cfg.name,
		cfg.version,
		server.WithToolCapabilities(true),
	)

	for _, c := range catalog.List() {
		if c.Invoke == nil {
			continue
		}
		s.AddTool(ToMCPTool(c), handler(c))
	}
	return s
}

func handler(c ai.Capability) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		v, err := c.Invoke(ctx, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toResult(v), nil
	}
}

// ServeStdio serves catalog over stdin/stdout, the standard transport for
// MCP servers run as subprocesses.
func ServeStdio(catalog *capability.Catalog, opts ...ServerOption) error {
	return server.ServeStdio(NewServer(catalog, opts...))
}
