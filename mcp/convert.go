// Package mcp connects toolflow capabilities to the Model Context Protocol.
//
// Two directions are supported:
//
//   - Remote: tools listed by an MCP server become catalog capabilities.
//     Their piece is the server name and their companion comes from
//     [companion.ForPiece], so well-known integrations keep their aliases
//     and prompts while everything else gets the generic companion.
//   - Server: a [capability.Catalog] is exposed as MCP tools, for clients
//     such as desktop assistants.
//
// Loading a remote server into a coordinator:
//
//	remote, err := mcp.Connect(ctx, "slack", "./slack-mcp", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer remote.Close()
//
//	catalog := capability.NewCatalog(remote.Capabilities())
//	coord, err := agent.New(gen, agent.FromCatalog(catalog))
//
// Serving a catalog over stdio:
//
//	if err := mcp.ServeStdio(catalog, mcp.WithName("my-tools")); err != nil {
//	    log.Fatal(err)
//	}
package mcp

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	ai "github.com/spetersoncode/toolflow"
)

// ToMCPTool converts a capability to an MCP tool. The capability's parameter
// schema is sent as is.
func ToMCPTool(c ai.Capability) mcp.Tool {
	if len(c.Parameters) == 0 {
		return mcp.NewTool(c.Name, mcp.WithDescription(c.Description))
	}
	return mcp.NewToolWithRawSchema(c.Name, c.Description, c.Parameters)
}

// inputSchema extracts the JSON schema of an MCP tool, preferring the raw form.
func inputSchema(t mcp.Tool) json.RawMessage {
	if len(t.RawInputSchema) > 0 {
		return t.RawInputSchema
	}
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil
	}
	return data
}

// resultValue converts a tool result into a capability result. Structured
// content wins; otherwise text parts are joined and decoded as JSON when
// possible. Error results become errors.
func resultValue(result *mcp.CallToolResult) (any, error) {
	if result == nil {
		return nil, errors.New("mcp: empty result")
	}

	var parts []string
	for _, c := range result.Content {
		switch content := c.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		default:
			if data, err := json.Marshal(content); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	text := strings.Join(parts, "\n")

	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, errors.New(text)
	}
	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err == nil {
		return decoded, nil
	}
	return text, nil
}

// toResult converts a capability result into an MCP tool result. Strings
// are sent as text and everything else as JSON text.
func toResult(v any) *mcp.CallToolResult {
	if s, ok := v.(string); ok {
		return mcp.NewToolResultText(s)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError("failed to encode result: " + err.Error())
	}
	return mcp.NewToolResultText(string(data))
}
