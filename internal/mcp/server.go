package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerName is announced to MCP clients during initialization.
const ServerName = "n8n-mcp-server"

type Server struct {
	mcpServer  *server.MCPServer
	dispatcher Dispatcher
}

func NewServer(dispatcher Dispatcher, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			ServerName,
			version,
			server.WithToolCapabilities(true),
		),
		dispatcher: dispatcher,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	for _, tool := range s.dispatcher.Tools() {
		s.mcpServer.AddTool(tool, s.handle(tool.Name))
	}
}

func (s *Server) handle(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, ok := request.Params.Arguments.(map[string]interface{})
		if !ok && request.Params.Arguments != nil {
			return mcp.NewToolResultError("Invalid arguments type"), nil
		}

		result, err := s.dispatcher.Call(ctx, name, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		jsonBytes, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}
}

// SSEHandler serves the MCP SSE transport at /mcp/sse and /mcp/message.
func SSEHandler(mcpServer *server.MCPServer) http.Handler {
	return server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))
}
