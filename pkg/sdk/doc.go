// Package sdk provides a typed Go client for the milestone MCP server.
//
// The client wraps mcp-go/client.CallTool with one method per tool and
// retries transport failures via fortify.
//
// Usage:
//
//	transport, _ := client.NewStdioTransport("milestone", "mcp")
//	c := sdk.NewClient(transport)
//	defer c.Close()
//
//	if _, err := c.Initialize(ctx); err != nil { ... }
//	status, _ := c.Status(ctx, "P1")
//	fmt.Println(status.Stats.Percentage)
package sdk
