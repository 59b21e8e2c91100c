package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"n8n-mcp/backend/internal/mcp"
)

// ListWorkflows mirrors list_workflows with query-string arguments.
// (GET /workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	args := s.registry.ArgsFromQuery(mcp.ToolListWorkflows, c.QueryParams())
	return s.mirror(c, mcp.ToolListWorkflows, args)
}

// CreateWorkflow mirrors create_workflow with the JSON body as arguments.
// (POST /workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	var args map[string]interface{}
	if err := bindBody(c, &args); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error()})
	}
	return s.mirror(c, mcp.ToolCreateWorkflow, args)
}

// ExecuteWorkflow mirrors execute_workflow. The JSON body is the input data
// and query parameters such as waitForCompletion pass through.
// (POST /workflows/:id/execute)
func (s *Server) ExecuteWorkflow(c echo.Context) error {
	var data map[string]interface{}
	if err := bindBody(c, &data); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error()})
	}
	args := s.registry.ArgsFromQuery(mcp.ToolExecuteWorkflow, c.QueryParams())
	args["workflowId"] = c.Param("id")
	if data != nil {
		args["data"] = data
	}
	return s.mirror(c, mcp.ToolExecuteWorkflow, args)
}

func (s *Server) mirror(c echo.Context, tool string, args map[string]interface{}) error {
	result, err := s.dispatcher.Call(c.Request().Context(), tool, args)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// bindBody decodes only the request body; path and query values stay out of
// tool arguments.
func bindBody(c echo.Context, out interface{}) error {
	return (&echo.DefaultBinder{}).BindBody(c, out)
}
