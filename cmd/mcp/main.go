// Command mcp serves the demo Slack workspace capabilities over MCP stdio.
//
// MCP clients (desktop assistants or another toolflow agent with an mcp
// server configured) can discover and call the capabilities.
//
// Usage:
//
//	go run ./cmd/mcp
//
// Client configuration:
//
//	{
//	    "mcpServers": {
//	        "slack-demo": {
//	            "command": "go",
//	            "args": ["run", "./cmd/mcp"],
//	            "cwd": "/path/to/toolflow"
//	        }
//	    }
//	}
package main

import (
	"log"
	"os"

	"github.com/spetersoncode/toolflow/capability"
	"github.com/spetersoncode/toolflow/internal/demo"
	"github.com/spetersoncode/toolflow/mcp"
	"github.com/spetersoncode/toolflow/telemetry"
)

func main() {
	// stdout carries the protocol, so logs go to stderr.
	logger := telemetry.NewLogger(os.Stderr, os.Getenv("TOOLFLOW_LOG__LEVEL"), "text")

	catalog := capability.NewCatalog(demo.NewWorkspace().Capabilities(), capability.WithLogger(logger))
	logger.Info("serving capabilities", "count", catalog.Len())

	if err := mcp.ServeStdio(catalog,
		mcp.WithName("toolflow-slack-demo"),
		mcp.WithVersion("0.1.0"),
	); err != nil {
		log.Fatal(err)
	}
}
