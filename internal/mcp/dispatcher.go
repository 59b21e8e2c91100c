package mcp

import (
	"context"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"

	"n8n-mcp/backend/internal/metrics"
	"n8n-mcp/backend/internal/services"
)

// Dispatcher routes a named tool call to its handler.
type Dispatcher interface {
	Call(ctx context.Context, name string, args map[string]interface{}) (interface{}, error)
	Tools() []mcp.Tool
}

// Logger is the logging surface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// ToolDispatcher validates arguments against the registry, decodes them into
// the typed request of the tool and runs the matching ToolService method.
type ToolDispatcher struct {
	registry *Registry
	handlers map[string]handler
	logger   Logger
}

// NewToolDispatcher wires every registry tool to the service.
func NewToolDispatcher(registry *Registry, svc *services.ToolService, logger Logger) *ToolDispatcher {
	return &ToolDispatcher{
		registry: registry,
		logger:   logger,
		handlers: map[string]handler{
			ToolHealth:            noArgs(svc.GetHealth),
			ToolListWorkflows:     typed(svc.ListWorkflows),
			ToolCreateWorkflow:    typed(svc.CreateWorkflow),
			ToolUpdateWorkflow:    typed(svc.UpdateWorkflow),
			ToolDeleteWorkflow:    typed(svc.DeleteWorkflow),
			ToolDuplicateWorkflow: typed(svc.DuplicateWorkflow),
			ToolExecuteWorkflow:   typed(svc.ExecuteWorkflow),
			ToolGetExecutions:     typed(svc.GetExecutions),
			ToolStopExecution:     typed(svc.StopExecution),
			ToolRetryExecution:    typed(svc.RetryExecution),
			ToolImportWorkflow:    typed(svc.ImportWorkflow),
			ToolExportWorkflow:    typed(svc.ExportWorkflow),
			ToolAnalyzeWorkflow:   typed(svc.AnalyzeWorkflow),
			ToolBatchOperation:    typed(svc.BatchOperation),
			ToolListCredentials:   typed(svc.ListCredentials),
			ToolCreateCredential:  typed(svc.CreateCredential),
			ToolTestCredential:    typed(svc.TestCredential),
			ToolListWebhooks:      typed(svc.ListWebhooks),
			ToolTestWebhook:       typed(svc.TestWebhook),
			ToolSuggestWorkflow:   typed(svc.SuggestWorkflow),
			ToolOptimizeWorkflow:  typed(svc.OptimizeWorkflow),
			ToolSystemInfo:        noArgs(svc.GetSystemInfo),
			ToolDebugWorkflow:     typed(svc.DebugWorkflow),
			ToolGetLogs:           typed(svc.GetLogs),
		},
	}
}

// Tools returns the registry's tool definitions.
func (d *ToolDispatcher) Tools() []mcp.Tool {
	return d.registry.Tools()
}

// Call runs one tool. Returned errors carry a stack trace.
func (d *ToolDispatcher) Call(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	start := time.Now()
	h, ok := d.handlers[name]
	if !ok {
		metrics.RecordToolCall(name, "unknown", time.Since(start))
		return nil, errors.WithStack(&UnknownToolError{Name: name})
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	args = d.registry.NormalizeIDs(name, args)
	if err := d.registry.Validate(name, args); err != nil {
		metrics.RecordToolCall(name, "invalid", time.Since(start))
		d.logger.Debug("tool arguments rejected", "tool", name, "error", err)
		return nil, errors.WithStack(err)
	}

	result, err := h(ctx, args)
	var invalid *InvalidArgumentsError
	if errors.As(err, &invalid) {
		invalid.Tool = name
		metrics.RecordToolCall(name, "invalid", time.Since(start))
		return nil, errors.WithStack(err)
	}
	if err != nil {
		metrics.RecordToolCall(name, "error", time.Since(start))
		d.logger.Warn("tool call failed", "tool", name, "error", err)
		return nil, errors.WithStack(err)
	}
	metrics.RecordToolCall(name, "ok", time.Since(start))
	d.logger.Debug("tool call completed", "tool", name, "duration", time.Since(start))
	return result, nil
}

// typed adapts a service method taking a decoded request.
func typed[Req any, Resp any](run func(context.Context, Req) (Resp, error)) handler {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		var req Req
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		resp, err := run(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}

func noArgs[Resp any](run func(context.Context) (Resp, error)) handler {
	return func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
		resp, err := run(ctx)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}

func decodeArgs(args map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return &InvalidArgumentsError{Reason: err.Error()}
	}
	return nil
}
