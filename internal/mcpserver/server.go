package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all peerflag tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("peerflag", "1.0.0")
	client := NewPeerflagClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolCheckPurchase, h.HandleCheckPurchase)
	s.AddTool(ToolGetUserFlags, h.HandleGetUserFlags)
	s.AddTool(ToolListFlags, h.HandleListFlags)
	s.AddTool(ToolGetNetworkFeed, h.HandleGetNetworkFeed)
	s.AddTool(ToolGetNeighborhood, h.HandleGetNeighborhood)
	s.AddTool(ToolGetNetworkStats, h.HandleGetNetworkStats)

	return s
}
