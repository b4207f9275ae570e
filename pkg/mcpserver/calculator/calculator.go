// Package calculator is a minimal MCP server used to exercise the MCP
// client end to end: one arithmetic tool, no external state.
package calculator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer assembles the server with its sum tool registered.
func NewServer() *server.MCPServer {
	s := server.NewMCPServer(
		"calculator",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(mcp.NewTool("sum",
		mcp.WithDescription("Calculates the sum of an array of numbers"),
		mcp.WithArray("numbers",
			mcp.Required(),
			mcp.Description("Array of numbers to sum"),
			mcp.Items(map[string]any{"type": "number"}),
		),
	), sumHandler)

	return s
}

// sumHandler adds up the numbers argument. Bad input comes back as a
// tool-result error, never a transport error.
func sumHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	numbersArg, ok := request.GetArguments()["numbers"]
	if !ok {
		return mcp.NewToolResultError("numbers argument is required"), nil
	}

	numbers, err := toFloat64Slice(numbersArg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid numbers: %v", err)), nil
	}

	var sum float64
	for _, n := range numbers {
		sum += n
	}
	return mcp.NewToolResultText(formatFloat(sum)), nil
}

// toFloat64Slice widens whatever numeric slice JSON decoding produced.
func toFloat64Slice(v any) ([]float64, error) {
	switch arr := v.(type) {
	case []any:
		result := make([]float64, len(arr))
		for i, elem := range arr {
			switch n := elem.(type) {
			case float64:
				result[i] = n
			case int:
				result[i] = float64(n)
			case int64:
				result[i] = float64(n)
			default:
				return nil, fmt.Errorf("element %d is not a number: %T", i, elem)
			}
		}
		return result, nil
	case []float64:
		return arr, nil
	case []int:
		result := make([]float64, len(arr))
		for i, n := range arr {
			result[i] = float64(n)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("expected array, got %T", v)
	}
}

// formatFloat renders without trailing zeros ("6" rather than "6.000000").
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
