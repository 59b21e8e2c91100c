// Package api contains the HTTP front door of the bridge.
package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"n8n-mcp/backend/internal/mcp"
	"n8n-mcp/backend/internal/services"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Server.
type Options struct {
	Dispatcher   mcp.Dispatcher
	Registry     *mcp.Registry
	Version      string
	Capabilities []string
	// Debug adds stack traces to error responses.
	Debug  bool
	Logger Logger
}

// Server holds the dependencies of the REST handlers.
type Server struct {
	dispatcher   mcp.Dispatcher
	registry     *mcp.Registry
	version      string
	capabilities []string
	debug        bool
	logger       Logger
}

// NewServer creates a new Server.
func NewServer(opts Options) *Server {
	return &Server{
		dispatcher:   opts.Dispatcher,
		registry:     opts.Registry,
		version:      opts.Version,
		capabilities: opts.Capabilities,
		debug:        opts.Debug,
		logger:       opts.Logger,
	}
}

// RegisterRoutes mounts the REST surface. read guards listing routes and
// write guards routes that call tools.
func (s *Server) RegisterRoutes(e *echo.Echo, read, write []echo.MiddlewareFunc) {
	e.GET("/health", s.Health)
	e.POST("/mcp/tools/list", s.ListTools, read...)
	e.POST("/mcp/tools/call", s.CallTool, write...)

	e.GET("/workflows", s.ListWorkflows, read...)
	e.POST("/workflows", s.CreateWorkflow, write...)
	e.POST("/workflows/:id/execute", s.ExecuteWorkflow, write...)

	e.GET("/openapi.yaml", echo.WrapHandler(SpecHandler()))
	e.GET("/docs", echo.WrapHandler(SwaggerHandler()))
}

// Health returns the aggregate health snapshot. The status code is always
// 200; the body carries healthy, degraded or unhealthy.
func (s *Server) Health(c echo.Context) error {
	result, err := s.dispatcher.Call(c.Request().Context(), mcp.ToolHealth, nil)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// ToolList is the response of POST /mcp/tools/list.
type ToolList struct {
	Tools        interface{} `json:"tools"`
	Version      string      `json:"version"`
	Capabilities []string    `json:"capabilities"`
}

// ListTools returns the tool catalog.
func (s *Server) ListTools(c echo.Context) error {
	return c.JSON(http.StatusOK, ToolList{
		Tools:        s.registry.Catalog(),
		Version:      s.version,
		Capabilities: s.capabilities,
	})
}

// ToolCall is the body of POST /mcp/tools/call.
type ToolCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolResult wraps a successful tool call.
type ToolResult struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result"`
}

// CallTool dispatches one tool call.
func (s *Server) CallTool(c echo.Context) error {
	var call ToolCall
	if err := bindBody(c, &call); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error()})
	}
	result, err := s.dispatcher.Call(c.Request().Context(), call.Name, call.Arguments)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ToolResult{Success: true, Result: result})
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Stack   string `json:"stack,omitempty"`
}

// StatusFor maps a dispatch error to an HTTP status: caller mistakes are 400,
// engine failures 502 and everything else 500.
func StatusFor(err error) int {
	if mcp.IsClientError(err) {
		return http.StatusBadRequest
	}
	if _, ok := services.AsUpstreamError(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c echo.Context, err error) error {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && s.logger != nil {
		s.logger.Error("request failed", "path", c.Path(), "status", status, "error", err)
	}
	resp := ErrorResponse{Error: err.Error()}
	if s.debug {
		resp.Stack = fmt.Sprintf("%+v", err)
	}
	return c.JSON(status, resp)
}
