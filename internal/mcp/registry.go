package mcp

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/xeipuuv/gojsonschema"

	"n8n-mcp/backend/pkg/models"
)

// Tool names.
const (
	ToolHealth            = "get_n8n_health"
	ToolListWorkflows     = "list_workflows"
	ToolCreateWorkflow    = "create_workflow"
	ToolUpdateWorkflow    = "update_workflow"
	ToolDeleteWorkflow    = "delete_workflow"
	ToolDuplicateWorkflow = "duplicate_workflow"
	ToolExecuteWorkflow   = "execute_workflow"
	ToolGetExecutions     = "get_executions"
	ToolStopExecution     = "stop_execution"
	ToolRetryExecution    = "retry_execution"
	ToolImportWorkflow    = "import_workflow"
	ToolExportWorkflow    = "export_workflow"
	ToolAnalyzeWorkflow   = "analyze_workflow"
	ToolBatchOperation    = "batch_operation"
	ToolListCredentials   = "list_credentials"
	ToolCreateCredential  = "create_credential"
	ToolTestCredential    = "test_credential"
	ToolListWebhooks      = "list_webhooks"
	ToolTestWebhook       = "test_webhook"
	ToolSuggestWorkflow   = "suggest_workflow"
	ToolOptimizeWorkflow  = "optimize_workflow"
	ToolSystemInfo        = "get_system_info"
	ToolDebugWorkflow     = "debug_workflow"
	ToolGetLogs           = "get_logs"
)

// TemplateChoices are the template names accepted by create_workflow.
// Names without a library entry build a custom workflow.
var TemplateChoices = []string{
	"content-multiplication-engine",
	"audience-intelligence-system",
	"lead-qualification-pipeline",
	"newsletter-automation-suite",
	"social-media-orchestrator",
	"customer-journey-automation",
	"data-synthesis-pipeline",
	"ai-content-generator",
	"community-engagement-bot",
	"revenue-tracking-system",
	"competitor-monitoring",
	"idea-capture-processor",
	"course-delivery-automation",
	"feedback-analysis-engine",
	"personal-assistant-bot",
	"custom",
}

var stringItems = mcp.Items(map[string]interface{}{"type": "string"})

func definitions() []mcp.Tool {
	return []mcp.Tool{
		// workflow management
		mcp.NewTool(ToolHealth,
			mcp.WithDescription("Comprehensive health check with system stats"),
		),
		mcp.NewTool(ToolListWorkflows,
			mcp.WithDescription("List workflows with filtering, sorting, and statistics"),
			mcp.WithBoolean("active", mcp.Description("Filter by active status")),
			mcp.WithArray("tags", stringItems, mcp.Description("Keep workflows carrying any of these tags")),
			mcp.WithString("search", mcp.Description("Search in workflow names and descriptions")),
			mcp.WithNumber("limit", mcp.DefaultNumber(50), mcp.Min(1)),
			mcp.WithBoolean("includeStats", mcp.DefaultBool(true)),
		),
		mcp.NewTool(ToolCreateWorkflow,
			mcp.WithDescription("Create sophisticated workflows from templates or custom definitions"),
			mcp.WithString("name", mcp.Required()),
			mcp.WithString("description"),
			mcp.WithString("template", mcp.Enum(TemplateChoices...)),
			mcp.WithObject("configuration", mcp.Description("Template parameters such as schedule, checkInterval, slackChannel or custom nodes")),
			mcp.WithArray("tags", stringItems),
			mcp.WithObject("settings"),
		),
		mcp.NewTool(ToolUpdateWorkflow,
			mcp.WithDescription("Update existing workflow configuration"),
			mcp.WithString("workflowId", mcp.Required()),
			mcp.WithObject("updates", mcp.Required()),
			mcp.WithBoolean("version", mcp.DefaultBool(true), mcp.Description("Return the previous definition alongside the update")),
		),
		mcp.NewTool(ToolDeleteWorkflow,
			mcp.WithDescription("Delete workflow with optional backup"),
			mcp.WithString("workflowId", mcp.Required()),
			mcp.WithBoolean("createBackup", mcp.DefaultBool(true)),
		),
		mcp.NewTool(ToolDuplicateWorkflow,
			mcp.WithDescription("Clone a workflow with modifications"),
			mcp.WithString("workflowId", mcp.Required()),
			mcp.WithString("newName", mcp.Required()),
			mcp.WithObject("modifications"),
		),

		// execution and monitoring
		mcp.NewTool(ToolExecuteWorkflow,
			mcp.WithDescription("Execute workflow with data and monitoring"),
			mcp.WithString("workflowId", mcp.Required()),
			mcp.WithObject("data"),
			mcp.WithString("mode", mcp.Enum("test", "production"), mcp.DefaultString("production")),
			mcp.WithBoolean("waitForCompletion", mcp.DefaultBool(true)),
		),
		mcp.NewTool(ToolGetExecutions,
			mcp.WithDescription("Get workflow execution history with detailed metrics"),
			mcp.WithString("workflowId"),
			mcp.WithString("status", mcp.Enum("success", "error", "running", "waiting", "all")),
			mcp.WithNumber("limit", mcp.DefaultNumber(20), mcp.Min(1)),
			mcp.WithBoolean("includeData", mcp.DefaultBool(false)),
		),
		mcp.NewTool(ToolStopExecution,
			mcp.WithDescription("Stop a running workflow execution"),
			mcp.WithString("executionId", mcp.Required()),
		),
		mcp.NewTool(ToolRetryExecution,
			mcp.WithDescription("Retry a failed execution"),
			mcp.WithString("executionId", mcp.Required()),
			mcp.WithString("fromNode", mcp.Description("Retry from specific node")),
		),

		// advanced
		mcp.NewTool(ToolImportWorkflow,
			mcp.WithDescription("Import workflow from JSON, URL, or template library"),
			mcp.WithString("source", mcp.Required(), mcp.Enum("json", "url", "library")),
			mcp.WithString("data", mcp.Required(), mcp.Description("Workflow JSON, a URL returning workflow JSON, or a library template name")),
			mcp.WithString("name"),
			mcp.WithBoolean("activate", mcp.DefaultBool(false)),
		),
		mcp.NewTool(ToolExportWorkflow,
			mcp.WithDescription("Export workflow in various formats"),
			mcp.WithString("workflowId", mcp.Required()),
			mcp.WithString("format", mcp.Enum("json", "yaml", "markdown"), mcp.DefaultString("json")),
			mcp.WithBoolean("includeCredentials", mcp.DefaultBool(false)),
		),
		mcp.NewTool(ToolAnalyzeWorkflow,
			mcp.WithDescription("Get detailed analytics and optimization suggestions"),
			mcp.WithString("workflowId", mcp.Required()),
			mcp.WithString("period", mcp.DefaultString("7d")),
		),
		mcp.NewTool(ToolBatchOperation,
			mcp.WithDescription("Perform operations on multiple workflows"),
			mcp.WithString("operation", mcp.Required(), mcp.Enum("activate", "deactivate", "delete", "tag", "export")),
			mcp.WithArray("workflowIds", mcp.Required(), stringItems),
			mcp.WithObject("parameters", mcp.Description(`For "tag": {"tags": ["name", ...]}`)),
		),

		// credentials
		mcp.NewTool(ToolListCredentials,
			mcp.WithDescription("List all configured credentials"),
			mcp.WithString("type"),
		),
		mcp.NewTool(ToolCreateCredential,
			mcp.WithDescription("Create new credential configuration"),
			mcp.WithString("name", mcp.Required()),
			mcp.WithString("type", mcp.Required()),
			mcp.WithObject("data", mcp.Required()),
		),
		mcp.NewTool(ToolTestCredential,
			mcp.WithDescription("Test credential connectivity"),
			mcp.WithString("credentialId", mcp.Required()),
		),

		// webhooks
		mcp.NewTool(ToolListWebhooks,
			mcp.WithDescription("List all active webhooks"),
			mcp.WithString("workflowId"),
		),
		mcp.NewTool(ToolTestWebhook,
			mcp.WithDescription("Send test data to webhook"),
			mcp.WithString("webhookUrl", mcp.Required()),
			mcp.WithObject("testData"),
		),

		// helpers
		mcp.NewTool(ToolSuggestWorkflow,
			mcp.WithDescription("AI-powered workflow suggestions based on use case"),
			mcp.WithString("useCase", mcp.Required()),
			mcp.WithArray("currentTools", stringItems),
			mcp.WithArray("businessGoals", stringItems),
		),
		mcp.NewTool(ToolOptimizeWorkflow,
			mcp.WithDescription("Get optimization suggestions for existing workflow"),
			mcp.WithString("workflowId", mcp.Required()),
		),

		// system
		mcp.NewTool(ToolSystemInfo,
			mcp.WithDescription("Get detailed system information and limits"),
		),
		mcp.NewTool(ToolDebugWorkflow,
			mcp.WithDescription("Debug workflow with step-by-step execution"),
			mcp.WithString("workflowId", mcp.Required()),
			mcp.WithArray("breakpoints", stringItems),
		),
		mcp.NewTool(ToolGetLogs,
			mcp.WithDescription("Get system and workflow logs"),
			mcp.WithString("type", mcp.Enum("system", "workflow", "execution"), mcp.DefaultString("system")),
			mcp.WithString("id"),
			mcp.WithNumber("lines", mcp.DefaultNumber(100), mcp.Min(1)),
		),
	}
}

// Registry is the immutable tool catalog. Each tool's input schema is
// compiled once for argument validation.
type Registry struct {
	tools   []mcp.Tool
	index   map[string]int
	schemas []*gojsonschema.Schema
	catalog []models.ToolDescriptor
}

// NewRegistry builds the catalog in its published order.
func NewRegistry() (*Registry, error) {
	defs := definitions()
	r := &Registry{
		tools:   defs,
		index:   make(map[string]int, len(defs)),
		schemas: make([]*gojsonschema.Schema, len(defs)),
		catalog: make([]models.ToolDescriptor, len(defs)),
	}
	for i, tool := range defs {
		if _, dup := r.index[tool.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", tool.Name)
		}
		r.index[tool.Name] = i

		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema of %s: %w", tool.Name, err)
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema of %s: %w", tool.Name, err)
		}
		r.schemas[i] = compiled
		r.catalog[i] = models.ToolDescriptor{Name: tool.Name, Description: tool.Description, InputSchema: schema}
	}
	return r, nil
}

// Tools returns the mcp-go tool definitions.
func (r *Registry) Tools() []mcp.Tool {
	out := make([]mcp.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Catalog returns the published tool descriptors.
func (r *Registry) Catalog() []models.ToolDescriptor {
	out := make([]models.ToolDescriptor, len(r.catalog))
	copy(out, r.catalog)
	return out
}

// Validate checks arguments against the tool's input schema.
func (r *Registry) Validate(name string, args map[string]interface{}) error {
	i, ok := r.index[name]
	if !ok {
		return &UnknownToolError{Name: name}
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	res, err := r.schemas[i].Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &InvalidArgumentsError{Tool: name, Reason: err.Error()}
	}
	if !res.Valid() {
		reasons := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			reasons = append(reasons, e.String())
		}
		return &InvalidArgumentsError{Tool: name, Reason: strings.Join(reasons, "; ")}
	}
	return nil
}

// NormalizeIDs returns args with numeric identifiers rewritten as strings.
// The engine encodes execution ids as JSON numbers and callers pass them
// through as they got them. Identifiers are string parameters named id or
// ending in Id, and string arrays ending in Ids. args is not modified.
func (r *Registry) NormalizeIDs(name string, args map[string]interface{}) map[string]interface{} {
	i, ok := r.index[name]
	if !ok || len(args) == 0 {
		return args
	}
	props := r.tools[i].InputSchema.Properties

	out := make(map[string]interface{}, len(args))
	for key, v := range args {
		out[key] = v
		p, ok := props[key].(map[string]any)
		if !ok {
			continue
		}
		switch p["type"] {
		case "string":
			if key == "id" || strings.HasSuffix(key, "Id") {
				if s, ok := idString(v); ok {
					out[key] = s
				}
			}
		case "array":
			list, ok := v.([]interface{})
			if !ok || !strings.HasSuffix(key, "Ids") {
				continue
			}
			ids := make([]interface{}, len(list))
			for j, item := range list {
				ids[j] = item
				if s, ok := idString(item); ok {
					ids[j] = s
				}
			}
			out[key] = ids
		}
	}
	return out
}

// idString formats whole numbers; anything else is left for validation.
func idString(v interface{}) (string, bool) {
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return strconv.FormatFloat(n, 'f', -1, 64), true
		}
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return n.String(), true
		}
	}
	return "", false
}

// ArgsFromQuery converts query-string values into arguments typed after the
// tool's declared parameters. Arrays accept repeated or comma-separated
// values. Values that do not parse are kept as strings so validation reports
// them.
func (r *Registry) ArgsFromQuery(name string, query url.Values) map[string]interface{} {
	var props map[string]any
	if i, ok := r.index[name]; ok {
		props = r.tools[i].InputSchema.Properties
	}

	args := make(map[string]interface{}, len(query))
	for key, values := range query {
		if len(values) == 0 {
			continue
		}
		kind := ""
		if p, ok := props[key].(map[string]any); ok {
			kind, _ = p["type"].(string)
		}

		switch kind {
		case "array":
			items := []interface{}{}
			for _, v := range values {
				for _, part := range strings.Split(v, ",") {
					if part = strings.TrimSpace(part); part != "" {
						items = append(items, part)
					}
				}
			}
			args[key] = items
		case "boolean":
			if b, err := strconv.ParseBool(values[0]); err == nil {
				args[key] = b
			} else {
				args[key] = values[0]
			}
		case "number", "integer":
			if f, err := strconv.ParseFloat(values[0], 64); err == nil {
				args[key] = f
			} else {
				args[key] = values[0]
			}
		default:
			args[key] = values[0]
		}
	}
	return args
}
