// Command calculator-mcp serves the calculator MCP server on stdio; the
// MCP client integration tests spawn it as their external-tool fixture.
package main

import (
	"log"

	"github.com/mark3labs/mcp-go/server"
	"github.com/agentcore/orchestrator/pkg/mcpserver/calculator"
)

func main() {
	s := calculator.NewServer()
	if err := server.ServeStdio(s); err != nil {
		log.Fatal(err)
	}
}
