package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"n8n-mcp/backend/internal/analytics"
	"n8n-mcp/backend/internal/templates"
	"n8n-mcp/backend/pkg/models"
)

const (
	defaultListLimit   = 50
	statsExecutionPage = 20
	healthExecutions   = 10
)

// writableFields are the workflow fields the engine accepts on create and
// update. Everything else is engine-managed.
var writableFields = []string{"name", "nodes", "connections", "settings", "staticData", "description"}

// GetHealth builds the aggregate health snapshot. The two upstream reads run
// in parallel and each degrades to an empty list when it fails.
func (s *ToolService) GetHealth(ctx context.Context) (*models.HealthStatus, error) {
	var (
		workflows            []*models.Workflow
		executions           []*models.Execution
		workflowErr, execErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		workflows, workflowErr = s.engine.ListWorkflows(gctx)
		return nil
	})
	g.Go(func() error {
		var list *models.ExecutionList
		list, execErr = s.engine.ListExecutions(gctx, ExecutionQuery{Limit: healthExecutions})
		if execErr == nil {
			executions = list.Data
		}
		return nil
	})
	_ = g.Wait()

	status := &models.HealthStatus{
		BaseURL:   s.engine.BaseURL(),
		Timestamp: s.now().UTC(),
	}
	if workflowErr != nil && execErr != nil {
		status.Status = "unhealthy"
		status.Message = "n8n Health Check FAILED"
		status.Error = workflowErr.Error()
		status.Troubleshooting = []string{
			"Check n8n container is running",
			"Verify API key is correct",
			"Ensure network connectivity",
		}
		return status, nil
	}

	status.APIConnected = true
	status.Status = "healthy"
	status.Message = "n8n Health Check PASSED"
	if workflowErr != nil || execErr != nil {
		status.Status = "degraded"
		status.Message = "n8n Health Check PASSED with partial data"
		if workflowErr != nil {
			status.Error = workflowErr.Error()
		} else {
			status.Error = execErr.Error()
		}
	}

	active := 0
	for _, w := range workflows {
		if w.Active {
			active++
		}
	}
	status.Stats = &models.HealthStats{
		TotalWorkflows:   len(workflows),
		ActiveWorkflows:  active,
		RecentExecutions: len(executions),
		SuccessRate:      fmt.Sprintf("%d%%", analytics.SuccessRate(executions)),
		CachedWorkflows:  s.cachedCount(ctx),
	}
	status.Performance = &models.HealthPerformance{
		AvgExecutionTime: analytics.AverageDuration(executions),
		PeakHours:        analytics.PeakHour(executions),
	}
	return status, nil
}

// ListWorkflowsRequest filters list_workflows.
type ListWorkflowsRequest struct {
	Active       *bool    `mapstructure:"active"`
	Tags         []string `mapstructure:"tags"`
	Search       string   `mapstructure:"search"`
	Limit        int      `mapstructure:"limit"`
	IncludeStats *bool    `mapstructure:"includeStats"`
}

// ListWorkflowsResponse is the list_workflows result.
type ListWorkflowsResponse struct {
	Workflows []*models.Workflow `json:"workflows"`
	Count     int                `json:"count"`
	Message   string             `json:"message"`
	NextSteps []string           `json:"nextSteps,omitempty"`
}

// ListWorkflows filters the engine's workflows and optionally attaches
// per-workflow execution statistics. Output keeps the engine's order.
func (s *ToolService) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	all, err := s.engine.ListWorkflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	s.remember(ctx, all...)

	search := strings.ToLower(req.Search)
	results := make([]*models.Workflow, 0, len(all))
	for _, w := range all {
		if req.Active != nil && w.Active != *req.Active {
			continue
		}
		if len(req.Tags) > 0 && !hasAnyTag(w, req.Tags) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(w.Name), search) &&
			!strings.Contains(strings.ToLower(w.Description), search) {
			continue
		}
		results = append(results, w)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}

	if req.IncludeStats == nil || *req.IncludeStats {
		s.attachStats(ctx, results)
	}

	resp := &ListWorkflowsResponse{Workflows: results, Count: len(results)}
	switch len(results) {
	case 0:
		resp.Message = "No workflows found - Ready to create your first automation!"
		resp.NextSteps = []string{
			"Create your first workflow with create_workflow",
			"Import existing workflows with import_workflow",
			"Get workflow suggestions with suggest_workflow",
		}
	case 1:
		resp.Message = "Found 1 workflow"
	default:
		resp.Message = fmt.Sprintf("Found %d workflows", len(results))
	}
	return resp, nil
}

func (s *ToolService) attachStats(ctx context.Context, workflows []*models.Workflow) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, w := range workflows {
		w := w
		g.Go(func() error {
			list, err := s.engine.ListExecutions(gctx, ExecutionQuery{WorkflowID: w.ID.String(), Limit: statsExecutionPage})
			if err != nil {
				w.Stats = &models.WorkflowStats{Error: "Failed to fetch stats"}
				return nil
			}
			stats := &models.WorkflowStats{
				TotalExecutions: len(list.Data),
				LastExecution:   "Never",
				SuccessRate:     analytics.SuccessRate(list.Data),
			}
			if len(list.Data) > 0 && list.Data[0].StartedAt != nil {
				stats.LastExecution = list.Data[0].StartedAt.UTC().Format(time.RFC3339)
			}
			w.Stats = stats
			return nil
		})
	}
	_ = g.Wait()
}

func hasAnyTag(w *models.Workflow, wanted []string) bool {
	for _, t := range w.Tags {
		for _, name := range wanted {
			if t.Name == name {
				return true
			}
		}
	}
	return false
}

// CreateWorkflowRequest is the create_workflow input.
type CreateWorkflowRequest struct {
	Name          string                 `mapstructure:"name"`
	Description   string                 `mapstructure:"description"`
	Template      string                 `mapstructure:"template"`
	Configuration map[string]interface{} `mapstructure:"configuration"`
	Tags          []string               `mapstructure:"tags"`
	Settings      map[string]interface{} `mapstructure:"settings"`
}

// WorkflowResponse is the result of tools that create or change a workflow.
type WorkflowResponse struct {
	Success          bool                   `json:"success"`
	Message          string                 `json:"message"`
	WorkflowID       string                 `json:"workflowId"`
	SourceWorkflowID string                 `json:"sourceWorkflowId,omitempty"`
	Workflow         *models.Workflow       `json:"workflow,omitempty"`
	PreviousVersion  map[string]interface{} `json:"previousVersion,omitempty"`
	Backup           map[string]interface{} `json:"backup,omitempty"`
	Webhooks         []analytics.Webhook    `json:"webhooks,omitempty"`
	NextSteps        []string               `json:"nextSteps,omitempty"`
}

// CreateWorkflow materializes a template and creates it on the engine.
func (s *ToolService) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (*WorkflowResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("workflow name is required")
	}
	params, err := templates.ParamsFromConfig(req.Name, req.Description, req.Configuration)
	if err != nil {
		return nil, err
	}
	name := req.Template
	if name == "" {
		name = templates.Custom
	}
	doc, err := templates.Render(name, params)
	if err != nil {
		return nil, err
	}
	doc["settings"] = mergeObjects(asObject(doc["settings"]), req.Settings)

	created, err := s.createDocument(ctx, doc, req.Tags)
	if err != nil {
		return nil, err
	}
	return &WorkflowResponse{
		Success:    true,
		Message:    fmt.Sprintf("Created workflow: %s", created.Name),
		WorkflowID: created.ID.String(),
		Workflow:   created,
		Webhooks:   analytics.Webhooks(created, s.engine.BaseURL()),
		NextSteps: []string{
			"Test the workflow with sample data",
			"Configure credentials if needed",
			"Activate when ready",
			"Monitor execution logs",
		},
	}, nil
}

// createDocument posts the writable part of doc, applies tags by name and
// caches the result. The engine-side workflow stays even if tagging fails.
func (s *ToolService) createDocument(ctx context.Context, doc map[string]interface{}, tags []string) (*models.Workflow, error) {
	created, err := s.engine.CreateWorkflow(ctx, writable(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}
	if len(tags) > 0 {
		applied, err := s.engine.SetWorkflowTags(ctx, created.ID.String(), tags)
		if err != nil {
			return nil, fmt.Errorf("workflow %s created but tagging failed: %w", created.ID, err)
		}
		created.Tags = applied
	}
	s.remember(ctx, created)
	return created, nil
}

// UpdateWorkflowRequest is the update_workflow input.
type UpdateWorkflowRequest struct {
	WorkflowID string                 `mapstructure:"workflowId"`
	Updates    map[string]interface{} `mapstructure:"updates"`
	Version    *bool                  `mapstructure:"version"`
}

// UpdateWorkflow shallow-merges updates into the current definition and
// writes it back. "active" toggles activation and "tags" replaces tags by
// name.
func (s *ToolService) UpdateWorkflow(ctx context.Context, req UpdateWorkflowRequest) (*WorkflowResponse, error) {
	current, err := s.engine.GetWorkflowDocument(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", req.WorkflowID, err)
	}

	updates := make(map[string]interface{}, len(req.Updates))
	for k, v := range req.Updates {
		updates[k] = v
	}
	active, toggle := updates["active"].(bool)
	delete(updates, "active")
	tags, retag := stringList(updates["tags"])
	delete(updates, "tags")

	merged := mergeObjects(cloneObject(current), updates)
	updated, err := s.engine.UpdateWorkflow(ctx, req.WorkflowID, writable(merged))
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow %s: %w", req.WorkflowID, err)
	}

	if toggle && active != updated.Active {
		var toggled *models.Workflow
		if active {
			toggled, err = s.engine.ActivateWorkflow(ctx, req.WorkflowID)
		} else {
			toggled, err = s.engine.DeactivateWorkflow(ctx, req.WorkflowID)
		}
		if err != nil {
			return nil, fmt.Errorf("workflow %s updated but activation change failed: %w", req.WorkflowID, err)
		}
		updated.Active = toggled.Active
	}
	if retag {
		applied, err := s.engine.SetWorkflowTags(ctx, req.WorkflowID, tags)
		if err != nil {
			return nil, fmt.Errorf("workflow %s updated but tagging failed: %w", req.WorkflowID, err)
		}
		updated.Tags = applied
	}
	s.remember(ctx, updated)

	resp := &WorkflowResponse{
		Success:    true,
		Message:    fmt.Sprintf("Updated workflow: %s", updated.Name),
		WorkflowID: req.WorkflowID,
		Workflow:   updated,
	}
	if req.Version == nil || *req.Version {
		resp.PreviousVersion = current
	}
	return resp, nil
}

// DeleteWorkflowRequest is the delete_workflow input.
type DeleteWorkflowRequest struct {
	WorkflowID   string `mapstructure:"workflowId"`
	CreateBackup *bool  `mapstructure:"createBackup"`
}

// DeleteWorkflow deletes a workflow, returning its definition as a backup
// when requested.
func (s *ToolService) DeleteWorkflow(ctx context.Context, req DeleteWorkflowRequest) (*WorkflowResponse, error) {
	resp := &WorkflowResponse{Success: true, WorkflowID: req.WorkflowID}
	if req.CreateBackup == nil || *req.CreateBackup {
		backup, err := s.engine.GetWorkflowDocument(ctx, req.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to back up workflow %s: %w", req.WorkflowID, err)
		}
		resp.Backup = backup
	}
	deleted, err := s.engine.DeleteWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete workflow %s: %w", req.WorkflowID, err)
	}
	s.forget(ctx, req.WorkflowID)
	resp.Message = fmt.Sprintf("Deleted workflow: %s", deleted.Name)
	return resp, nil
}

// DuplicateWorkflowRequest is the duplicate_workflow input.
type DuplicateWorkflowRequest struct {
	WorkflowID    string                 `mapstructure:"workflowId"`
	NewName       string                 `mapstructure:"newName"`
	Modifications map[string]interface{} `mapstructure:"modifications"`
}

// DuplicateWorkflow copies a workflow under a new name. The copy starts
// inactive and carries the source's tags.
func (s *ToolService) DuplicateWorkflow(ctx context.Context, req DuplicateWorkflowRequest) (*WorkflowResponse, error) {
	source, err := s.engine.GetWorkflowDocument(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", req.WorkflowID, err)
	}
	sourceWorkflow, err := models.DecodeWorkflow(source)
	if err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", req.WorkflowID, err)
	}

	doc := mergeObjects(writable(cloneObject(source)), req.Modifications)
	doc["name"] = req.NewName

	created, err := s.createDocument(ctx, doc, sourceWorkflow.TagNames())
	if err != nil {
		return nil, err
	}
	return &WorkflowResponse{
		Success:          true,
		Message:          fmt.Sprintf("Duplicated %s as %s", sourceWorkflow.Name, created.Name),
		WorkflowID:       created.ID.String(),
		SourceWorkflowID: req.WorkflowID,
		Workflow:         created,
	}, nil
}

// ImportWorkflowRequest is the import_workflow input.
type ImportWorkflowRequest struct {
	Source   string `mapstructure:"source"`
	Data     string `mapstructure:"data"`
	Name     string `mapstructure:"name"`
	Activate bool   `mapstructure:"activate"`
}

// ImportWorkflow creates a workflow from inline JSON, a URL or a library
// template.
func (s *ToolService) ImportWorkflow(ctx context.Context, req ImportWorkflowRequest) (*WorkflowResponse, error) {
	var doc map[string]interface{}
	switch req.Source {
	case "json":
		if err := json.Unmarshal([]byte(req.Data), &doc); err != nil {
			return nil, fmt.Errorf("invalid workflow JSON: %w", err)
		}
	case "url":
		resp, err := s.engine.Fetch(ctx, http.MethodGet, req.Data, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch workflow from %s: %w", req.Data, err)
		}
		if err := json.Unmarshal(resp.Body, &doc); err != nil {
			return nil, fmt.Errorf("%s did not return workflow JSON: %w", req.Data, err)
		}
	case "library":
		if !templates.Has(req.Data) {
			return nil, fmt.Errorf("unknown library template %q (available: %s)", req.Data, strings.Join(templates.Names(), ", "))
		}
		rendered, err := templates.Render(req.Data, templates.Params{Name: req.Name})
		if err != nil {
			return nil, err
		}
		doc = rendered
	default:
		return nil, fmt.Errorf("unsupported import source %q", req.Source)
	}
	if doc == nil {
		return nil, fmt.Errorf("imported workflow is empty")
	}
	if req.Name != "" {
		doc["name"] = req.Name
	}
	if name, _ := doc["name"].(string); name == "" {
		return nil, fmt.Errorf("imported workflow has no name; pass one with name")
	}

	created, err := s.createDocument(ctx, doc, nil)
	if err != nil {
		return nil, err
	}
	if req.Activate {
		activated, err := s.engine.ActivateWorkflow(ctx, created.ID.String())
		if err != nil {
			return nil, fmt.Errorf("workflow %s imported but activation failed: %w", created.ID, err)
		}
		created.Active = activated.Active
	}
	return &WorkflowResponse{
		Success:    true,
		Message:    fmt.Sprintf("Imported workflow: %s", created.Name),
		WorkflowID: created.ID.String(),
		Workflow:   created,
		Webhooks:   analytics.Webhooks(created, s.engine.BaseURL()),
	}, nil
}

// BatchRequest is the batch_operation input.
type BatchRequest struct {
	Operation   string                 `mapstructure:"operation"`
	WorkflowIDs []string               `mapstructure:"workflowIds"`
	Parameters  map[string]interface{} `mapstructure:"parameters"`
}

// BatchItem is the outcome of one workflow in a batch.
type BatchItem struct {
	WorkflowID string      `json:"workflowId"`
	Success    bool        `json:"success"`
	Error      string      `json:"error,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// BatchResponse is the batch_operation result.
type BatchResponse struct {
	Success   bool        `json:"success"`
	Operation string      `json:"operation"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Results   []BatchItem `json:"results"`
}

// BatchOperation applies one operation to many workflows. Items are
// independent: a failure is reported on its item and does not stop the rest.
func (s *ToolService) BatchOperation(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	var tags []string
	if req.Operation == "tag" {
		var ok bool
		tags, ok = stringList(req.Parameters["tags"])
		if !ok || len(tags) == 0 {
			return nil, fmt.Errorf(`tag operation requires parameters.tags`)
		}
	}

	results := make([]BatchItem, len(req.WorkflowIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range req.WorkflowIDs {
		i, id := i, id
		g.Go(func() error {
			data, err := s.batchOne(gctx, req.Operation, id, tags)
			item := BatchItem{WorkflowID: id, Success: err == nil, Data: data}
			if err != nil {
				item.Error = err.Error()
			}
			results[i] = item
			return nil
		})
	}
	_ = g.Wait()

	resp := &BatchResponse{Operation: req.Operation, Results: results}
	for _, r := range results {
		if r.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	resp.Success = resp.Failed == 0
	return resp, nil
}

func (s *ToolService) batchOne(ctx context.Context, op, id string, tags []string) (interface{}, error) {
	switch op {
	case "activate":
		w, err := s.engine.ActivateWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		s.remember(ctx, w)
		return map[string]interface{}{"active": w.Active}, nil
	case "deactivate":
		w, err := s.engine.DeactivateWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		s.remember(ctx, w)
		return map[string]interface{}{"active": w.Active}, nil
	case "delete":
		if _, err := s.engine.DeleteWorkflow(ctx, id); err != nil {
			return nil, err
		}
		s.forget(ctx, id)
		return nil, nil
	case "tag":
		applied, err := s.engine.SetWorkflowTags(ctx, id, tags)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"tags": applied}, nil
	case "export":
		doc, err := s.engine.GetWorkflowDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		return stripCredentials(writable(doc)), nil
	default:
		return nil, fmt.Errorf("unsupported batch operation %q", op)
	}
}

func writable(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(writableFields))
	for _, k := range writableFields {
		if v, ok := doc[k]; ok && v != nil {
			out[k] = v
		}
	}
	if _, ok := out["settings"]; !ok {
		out["settings"] = map[string]interface{}{}
	}
	if _, ok := out["connections"]; !ok {
		out["connections"] = map[string]interface{}{}
	}
	if _, ok := out["nodes"]; !ok {
		out["nodes"] = []interface{}{}
	}
	return out
}

func asObject(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	if m == nil {
		m = map[string]interface{}{}
	}
	return m
}

func mergeObjects(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = map[string]interface{}{}
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneObject(doc map[string]interface{}) map[string]interface{} {
	data, err := json.Marshal(doc)
	if err != nil {
		return mergeObjects(nil, doc)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return mergeObjects(nil, doc)
	}
	return out
}

func stringList(v interface{}) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
