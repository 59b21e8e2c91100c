package services

import (
	"context"
	"encoding/json"
	"fmt"

	"n8n-mcp/backend/internal/analytics"
	"n8n-mcp/backend/internal/monitor"
	"n8n-mcp/backend/pkg/models"
)

const defaultExecutionLimit = 20

// ExecuteWorkflowRequest is the execute_workflow input.
type ExecuteWorkflowRequest struct {
	WorkflowID        string                 `mapstructure:"workflowId"`
	Data              map[string]interface{} `mapstructure:"data"`
	Mode              string                 `mapstructure:"mode"`
	WaitForCompletion *bool                  `mapstructure:"waitForCompletion"`
}

// ExecuteResponse is the execute_workflow result. Outcome is only set when
// the call waited for completion.
type ExecuteResponse struct {
	Success     bool            `json:"success"`
	Outcome     monitor.Outcome `json:"outcome,omitempty"`
	Status      string          `json:"status,omitempty"`
	Message     string          `json:"message"`
	ExecutionID string          `json:"executionId"`
	Duration    string          `json:"duration,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	TrackingURL string          `json:"trackingUrl,omitempty"`
	Hint        string          `json:"hint,omitempty"`
}

// ExecuteWorkflow starts a run and, by default, waits for it to finish.
func (s *ToolService) ExecuteWorkflow(ctx context.Context, req ExecuteWorkflowRequest) (*ExecuteResponse, error) {
	exec, err := s.engine.ExecuteWorkflow(ctx, req.WorkflowID, req.Mode == "test", req.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute workflow %s: %w", req.WorkflowID, err)
	}
	id := exec.ID.String()
	tracking := fmt.Sprintf("%s/executions/%s", s.engine.BaseURL(), id)

	if req.WaitForCompletion != nil && !*req.WaitForCompletion {
		return &ExecuteResponse{
			Success:     true,
			Status:      "running",
			Message:     "Workflow execution started",
			ExecutionID: id,
			TrackingURL: tracking,
		}, nil
	}

	result, err := s.waiter.Wait(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &ExecuteResponse{
		Success:     result.Success(),
		Outcome:     result.Outcome,
		Message:     result.Message,
		ExecutionID: id,
		Duration:    result.Duration,
		TrackingURL: tracking,
	}
	if result.Execution != nil {
		resp.Status = result.Execution.Status
		resp.Data = result.Execution.Data
	}
	if result.Outcome == monitor.OutcomeTimedOut {
		resp.Status = "running"
		resp.Hint = "Check execution manually in n8n UI or call get_executions later"
	}
	return resp, nil
}

// GetExecutionsRequest is the get_executions input.
type GetExecutionsRequest struct {
	WorkflowID  string `mapstructure:"workflowId"`
	Status      string `mapstructure:"status"`
	Limit       int    `mapstructure:"limit"`
	IncludeData bool   `mapstructure:"includeData"`
}

// ExecutionsResponse is the get_executions result.
type ExecutionsResponse struct {
	Executions  []*models.Execution `json:"executions"`
	Count       int                 `json:"count"`
	SuccessRate int                 `json:"successRate"`
	AvgDuration string              `json:"avgExecutionTime"`
	PeakHours   string              `json:"peakHours"`
	NextCursor  string              `json:"nextCursor,omitempty"`
}

// GetExecutions lists recent executions with summary metrics.
func (s *ToolService) GetExecutions(ctx context.Context, req GetExecutionsRequest) (*ExecutionsResponse, error) {
	q := ExecutionQuery{WorkflowID: req.WorkflowID, Limit: req.Limit, IncludeData: req.IncludeData}
	if q.Limit <= 0 {
		q.Limit = defaultExecutionLimit
	}
	if req.Status != "all" {
		q.Status = req.Status
	}
	list, err := s.engine.ListExecutions(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return &ExecutionsResponse{
		Executions:  list.Data,
		Count:       len(list.Data),
		SuccessRate: analytics.SuccessRate(list.Data),
		AvgDuration: analytics.AverageDuration(list.Data),
		PeakHours:   analytics.PeakHour(list.Data),
		NextCursor:  list.NextCursor,
	}, nil
}

// ExecutionRequest names one execution.
type ExecutionRequest struct {
	ExecutionID string `mapstructure:"executionId"`
	FromNode    string `mapstructure:"fromNode"`
}

// ExecutionResponse is the result of stop_execution and retry_execution.
type ExecutionResponse struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	ExecutionID string            `json:"executionId"`
	Execution   *models.Execution `json:"execution,omitempty"`
	Note        string            `json:"note,omitempty"`
}

// StopExecution stops a running execution.
func (s *ToolService) StopExecution(ctx context.Context, req ExecutionRequest) (*ExecutionResponse, error) {
	e, err := s.engine.StopExecution(ctx, req.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to stop execution %s: %w", req.ExecutionID, err)
	}
	return &ExecutionResponse{
		Success:     true,
		Message:     "Execution stopped",
		ExecutionID: req.ExecutionID,
		Execution:   e,
	}, nil
}

// RetryExecution retries a failed execution. The engine always reruns the
// whole workflow; with FromNode the saved definition is kept so the rerun
// reuses the execution's stored data.
func (s *ToolService) RetryExecution(ctx context.Context, req ExecutionRequest) (*ExecutionResponse, error) {
	e, err := s.engine.RetryExecution(ctx, req.ExecutionID, req.FromNode == "")
	if err != nil {
		return nil, fmt.Errorf("failed to retry execution %s: %w", req.ExecutionID, err)
	}
	resp := &ExecutionResponse{
		Success:     true,
		Message:     "Execution retried",
		ExecutionID: e.ID.String(),
		Execution:   e,
	}
	if req.FromNode != "" {
		resp.Note = fmt.Sprintf("n8n retries whole executions; %q is not used as a start node", req.FromNode)
	}
	return resp, nil
}
