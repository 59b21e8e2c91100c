package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"n8n-mcp/backend/pkg/models"
)

func boolPtr(b bool) *bool { return &b }

func TestGetHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		f := newFakeEngine(t)
		f.addWorkflow(map[string]interface{}{"name": "A", "active": true})
		f.addWorkflow(map[string]interface{}{"name": "B"})
		stop := time.Date(2026, 3, 1, 9, 0, 1, 0, time.UTC)
		start := stop.Add(-time.Second)
		f.addExecution(&models.Execution{ID: "1", Finished: true, Status: "success", StartedAt: &start, StoppedAt: &stop})

		h, err := f.service().GetHealth(ctx)
		require.NoError(t, err)
		assert.Equal(t, "healthy", h.Status)
		assert.True(t, h.APIConnected)
		assert.Equal(t, 2, h.Stats.TotalWorkflows)
		assert.Equal(t, 1, h.Stats.ActiveWorkflows)
		assert.Equal(t, 1, h.Stats.RecentExecutions)
		assert.Equal(t, "100%", h.Stats.SuccessRate)
		assert.Equal(t, "1000ms", h.Performance.AvgExecutionTime)
		assert.Equal(t, f.server.URL, h.BaseURL)
	})

	t.Run("degraded", func(t *testing.T) {
		f := newFakeEngine(t)
		f.fail("GET /api/v1/executions", http.StatusInternalServerError)

		h, err := f.service().GetHealth(ctx)
		require.NoError(t, err)
		assert.Equal(t, "degraded", h.Status)
		assert.True(t, h.APIConnected)
		assert.Contains(t, h.Error, "engine exploded")
	})

	t.Run("unhealthy", func(t *testing.T) {
		f := newFakeEngine(t)
		f.fail("GET /api/v1/executions", http.StatusInternalServerError)
		f.fail("GET /api/v1/workflows", http.StatusBadGateway)

		h, err := f.service().GetHealth(ctx)
		require.NoError(t, err)
		assert.Equal(t, "unhealthy", h.Status)
		assert.False(t, h.APIConnected)
		assert.Nil(t, h.Stats)
		assert.NotEmpty(t, h.Troubleshooting)
	})
}

func TestListWorkflowsFilters(t *testing.T) {
	f := newFakeEngine(t)
	f.addWorkflow(map[string]interface{}{"name": "Lead scoring", "active": true, "tags": []interface{}{map[string]interface{}{"id": "1", "name": "sales"}}})
	f.addWorkflow(map[string]interface{}{"name": "Newsletter", "description": "weekly LEAD digest"})
	f.addWorkflow(map[string]interface{}{"name": "Backup", "active": true})
	svc := f.service()
	ctx := context.Background()

	resp, err := svc.ListWorkflows(ctx, ListWorkflowsRequest{Active: boolPtr(true), IncludeStats: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "Found 2 workflows", resp.Message)
	assert.Equal(t, "Lead scoring", resp.Workflows[0].Name, "engine order is kept")

	resp, err = svc.ListWorkflows(ctx, ListWorkflowsRequest{Search: "lead", IncludeStats: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count, "search matches name and description case-insensitively")

	resp, err = svc.ListWorkflows(ctx, ListWorkflowsRequest{Tags: []string{"sales"}, IncludeStats: boolPtr(false)})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "Found 1 workflow", resp.Message)

	resp, err = svc.ListWorkflows(ctx, ListWorkflowsRequest{Limit: 1, IncludeStats: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Count)

	assert.Equal(t, 0, f.called("GET /api/v1/executions"))
}

func TestListWorkflowsEmpty(t *testing.T) {
	f := newFakeEngine(t)

	resp, err := f.service().ListWorkflows(context.Background(), ListWorkflowsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Workflows)
	assert.Contains(t, resp.Message, "No workflows found")
	assert.Len(t, resp.NextSteps, 3)
}

func TestListWorkflowsStats(t *testing.T) {
	f := newFakeEngine(t)
	id := f.addWorkflow(map[string]interface{}{"name": "With runs"})
	other := f.addWorkflow(map[string]interface{}{"name": "Never run"})
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	stop := start.Add(time.Second)
	f.addExecution(&models.Execution{ID: "1", WorkflowID: models.ID(id), Finished: true, Status: "success", StartedAt: &start, StoppedAt: &stop})
	f.addExecution(&models.Execution{ID: "2", WorkflowID: models.ID(id), Status: "error", StartedAt: &start, StoppedAt: &stop})

	resp, err := f.service().ListWorkflows(context.Background(), ListWorkflowsRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Count)

	stats := resp.Workflows[0].Stats
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.TotalExecutions)
	assert.Equal(t, 50, stats.SuccessRate)
	assert.Equal(t, "2026-03-02T10:00:00Z", stats.LastExecution)

	assert.Equal(t, models.ID(other), resp.Workflows[1].ID)
	assert.Equal(t, "Never", resp.Workflows[1].Stats.LastExecution)
}

func TestListWorkflowsIsRepeatable(t *testing.T) {
	f := newFakeEngine(t)
	id := f.addWorkflow(map[string]interface{}{"name": "Orders", "active": true, "tags": []interface{}{map[string]interface{}{"id": "1", "name": "ops"}}})
	f.addWorkflow(map[string]interface{}{"name": "Digest", "active": true})
	f.addWorkflow(map[string]interface{}{"name": "Archive"})
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	stop := start.Add(2 * time.Second)
	f.addExecution(&models.Execution{ID: "1", WorkflowID: models.ID(id), Finished: true, Status: "success", StartedAt: &start, StoppedAt: &stop})
	f.addExecution(&models.Execution{ID: "2", WorkflowID: models.ID(id), Status: "error", StartedAt: &start, StoppedAt: &stop})
	svc := f.service()
	ctx := context.Background()

	for _, req := range []ListWorkflowsRequest{
		{},
		{Active: boolPtr(true)},
		{Tags: []string{"ops"}, Search: "ord", Limit: 5},
	} {
		first, err := svc.ListWorkflows(ctx, req)
		require.NoError(t, err)
		second, err := svc.ListWorkflows(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, first.Count, second.Count)
		assert.Equal(t, first.Message, second.Message)
		require.Equal(t, len(first.Workflows), len(second.Workflows))
		for i := range first.Workflows {
			assert.Equal(t, first.Workflows[i].ID, second.Workflows[i].ID)
			require.NotNil(t, first.Workflows[i].Stats, "stats are on by default")
			assert.Equal(t, *first.Workflows[i].Stats, *second.Workflows[i].Stats)
		}
		assert.Equal(t, first, second)
	}
}

func TestListWorkflowsStatsFailureIsMarked(t *testing.T) {
	f := newFakeEngine(t)
	f.addWorkflow(map[string]interface{}{"name": "A"})
	f.fail("GET /api/v1/executions", http.StatusInternalServerError)

	resp, err := f.service().ListWorkflows(context.Background(), ListWorkflowsRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "Failed to fetch stats", resp.Workflows[0].Stats.Error)
}

func TestListWorkflowsUpstreamFailure(t *testing.T) {
	f := newFakeEngine(t)
	f.fail("GET /api/v1/workflows", http.StatusInternalServerError)

	_, err := f.service().ListWorkflows(context.Background(), ListWorkflowsRequest{})
	_, ok := AsUpstreamError(err)
	assert.True(t, ok)
}

func TestCreateWorkflowFromTemplate(t *testing.T) {
	f := newFakeEngine(t)
	svc := f.service()

	resp, err := svc.CreateWorkflow(context.Background(), CreateWorkflowRequest{
		Name:     "Repurpose posts",
		Template: "content-multiplication-engine",
		Tags:     []string{"content"},
		Settings: map[string]interface{}{"timezone": "UTC"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Created workflow: Repurpose posts", resp.Message)
	require.Len(t, resp.Workflow.Tags, 1)
	assert.Equal(t, "content", resp.Workflow.Tags[0].Name)

	require.Len(t, resp.Webhooks, 1)
	assert.Equal(t, f.server.URL+"/webhook/multiply-content", resp.Webhooks[0].URL)
	assert.Equal(t, "POST", resp.Webhooks[0].Method)

	sent := f.body(t, "POST /api/v1/workflows")
	assert.Equal(t, "Repurpose posts", sent["name"])
	assert.NotContains(t, sent, "tags")
	assert.NotContains(t, sent, "active")
	assert.Equal(t, "UTC", sent["settings"].(map[string]interface{})["timezone"])

	n, err := svc.Cache().Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateWorkflowCustom(t *testing.T) {
	f := newFakeEngine(t)

	resp, err := f.service().CreateWorkflow(context.Background(), CreateWorkflowRequest{
		Name: "Hook",
		Configuration: map[string]interface{}{
			"nodes": []interface{}{
				map[string]interface{}{
					"id":         "w1",
					"name":       "In",
					"type":       "n8n-nodes-base.webhook",
					"parameters": map[string]interface{}{"path": "incoming"},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Workflow.Nodes, 1)
	require.Len(t, resp.Webhooks, 1)
	assert.Equal(t, "GET", resp.Webhooks[0].Method)
	assert.Equal(t, "incoming", resp.Webhooks[0].Path)
}

func TestCreateWorkflowRequiresName(t *testing.T) {
	f := newFakeEngine(t)
	_, err := f.service().CreateWorkflow(context.Background(), CreateWorkflowRequest{Name: "  "})
	assert.Error(t, err)
	assert.Equal(t, 0, f.called("POST /api/v1/workflows"))
}

func TestCreateWorkflowRejectsBadSchedule(t *testing.T) {
	f := newFakeEngine(t)
	_, err := f.service().CreateWorkflow(context.Background(), CreateWorkflowRequest{
		Name:          "Digest",
		Template:      "ai-content-generator",
		Configuration: map[string]interface{}{"schedule": "every day"},
	})
	assert.ErrorContains(t, err, "invalid schedule")
	assert.Equal(t, 0, f.called("POST /api/v1/workflows"))
}

func TestUpdateWorkflow(t *testing.T) {
	f := newFakeEngine(t)
	id := f.addWorkflow(map[string]interface{}{"name": "Old", "nodes": []interface{}{}, "connections": map[string]interface{}{}})
	svc := f.service()

	resp, err := svc.UpdateWorkflow(context.Background(), UpdateWorkflowRequest{
		WorkflowID: id,
		Updates:    map[string]interface{}{"name": "New", "active": true, "tags": []interface{}{"ops"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "New", resp.Workflow.Name)
	assert.True(t, resp.Workflow.Active)
	require.Len(t, resp.Workflow.Tags, 1)
	assert.Equal(t, "Old", resp.PreviousVersion["name"])
	assert.Equal(t, 1, f.called("POST /api/v1/workflows/"+id+"/activate"))

	sent := f.body(t, "PUT /api/v1/workflows/"+id)
	assert.NotContains(t, sent, "active")
	assert.NotContains(t, sent, "id")

	resp, err = svc.UpdateWorkflow(context.Background(), UpdateWorkflowRequest{
		WorkflowID: id,
		Updates:    map[string]interface{}{"active": true},
		Version:    boolPtr(false),
	})
	require.NoError(t, err)
	assert.Nil(t, resp.PreviousVersion)
	assert.Equal(t, 1, f.called("POST /api/v1/workflows/"+id+"/activate"), "already active")
}

func TestUpdateWorkflowMissing(t *testing.T) {
	f := newFakeEngine(t)
	_, err := f.service().UpdateWorkflow(context.Background(), UpdateWorkflowRequest{WorkflowID: "nope", Updates: map[string]interface{}{"name": "x"}})
	upstream, ok := AsUpstreamError(err)
	require.True(t, ok)
	assert.True(t, upstream.NotFound())
}

func TestDeleteWorkflow(t *testing.T) {
	f := newFakeEngine(t)
	id := f.addWorkflow(map[string]interface{}{"name": "Doomed"})
	svc := f.service()

	resp, err := svc.DeleteWorkflow(context.Background(), DeleteWorkflowRequest{WorkflowID: id})
	require.NoError(t, err)
	assert.Equal(t, "Deleted workflow: Doomed", resp.Message)
	assert.Equal(t, "Doomed", resp.Backup["name"])

	id = f.addWorkflow(map[string]interface{}{"name": "No backup"})
	resp, err = svc.DeleteWorkflow(context.Background(), DeleteWorkflowRequest{WorkflowID: id, CreateBackup: boolPtr(false)})
	require.NoError(t, err)
	assert.Nil(t, resp.Backup)
	assert.Equal(t, 0, f.called("GET /api/v1/workflows/"+id))
}

func TestDuplicateWorkflow(t *testing.T) {
	f := newFakeEngine(t)
	f.tags = []models.Tag{{ID: "t1", Name: "ops"}}
	id := f.addWorkflow(map[string]interface{}{
		"name":   "Source",
		"active": true,
		"tags":   []interface{}{map[string]interface{}{"id": "t1", "name": "ops"}},
		"nodes":  []interface{}{map[string]interface{}{"name": "Start", "type": "n8n-nodes-base.manualTrigger"}},
	})

	resp, err := f.service().DuplicateWorkflow(context.Background(), DuplicateWorkflowRequest{
		WorkflowID:    id,
		NewName:       "Copy",
		Modifications: map[string]interface{}{"settings": map[string]interface{}{"timezone": "UTC"}},
	})
	require.NoError(t, err)
	assert.Equal(t, id, resp.SourceWorkflowID)
	assert.NotEqual(t, id, resp.WorkflowID)
	assert.Equal(t, "Copy", resp.Workflow.Name)
	assert.False(t, resp.Workflow.Active)
	assert.Len(t, resp.Workflow.Nodes, 1)
	assert.Equal(t, []string{"ops"}, resp.Workflow.TagNames())
	assert.Equal(t, 0, f.called("POST /api/v1/tags"), "existing tag reused")
}

func TestImportWorkflow(t *testing.T) {
	ctx := context.Background()

	t.Run("json", func(t *testing.T) {
		f := newFakeEngine(t)
		resp, err := f.service().ImportWorkflow(ctx, ImportWorkflowRequest{
			Source: "json",
			Data:   `{"id":"9","name":"Inline","active":true,"nodes":[],"connections":{}}`,
		})
		require.NoError(t, err)
		assert.Equal(t, "Imported workflow: Inline", resp.Message)
		assert.False(t, resp.Workflow.Active)
	})

	t.Run("url with activation", func(t *testing.T) {
		f := newFakeEngine(t)
		resp, err := f.service().ImportWorkflow(ctx, ImportWorkflowRequest{
			Source:   "url",
			Data:     f.server.URL + "/shared/workflow.json",
			Activate: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "Shared Flow", resp.Workflow.Name)
		assert.True(t, resp.Workflow.Active)
	})

	t.Run("library", func(t *testing.T) {
		f := newFakeEngine(t)
		resp, err := f.service().ImportWorkflow(ctx, ImportWorkflowRequest{Source: "library", Data: "content-multiplication-engine", Name: "Mine"})
		require.NoError(t, err)
		assert.Equal(t, "Mine", resp.Workflow.Name)
		assert.NotEmpty(t, resp.Webhooks)
	})

	t.Run("unknown library entry", func(t *testing.T) {
		f := newFakeEngine(t)
		_, err := f.service().ImportWorkflow(ctx, ImportWorkflowRequest{Source: "library", Data: "nope"})
		assert.ErrorContains(t, err, "unknown library template")
	})

	t.Run("bad json", func(t *testing.T) {
		f := newFakeEngine(t)
		_, err := f.service().ImportWorkflow(ctx, ImportWorkflowRequest{Source: "json", Data: "{"})
		assert.ErrorContains(t, err, "invalid workflow JSON")
		assert.Equal(t, 0, f.called("POST /api/v1/workflows"))
	})

	t.Run("nameless", func(t *testing.T) {
		f := newFakeEngine(t)
		_, err := f.service().ImportWorkflow(ctx, ImportWorkflowRequest{Source: "json", Data: `{"nodes":[]}`})
		assert.ErrorContains(t, err, "no name")
	})
}

func TestBatchOperation(t *testing.T) {
	f := newFakeEngine(t)
	a := f.addWorkflow(map[string]interface{}{"name": "A"})
	b := f.addWorkflow(map[string]interface{}{"name": "B"})

	resp, err := f.service(WithConcurrency(2)).BatchOperation(context.Background(), BatchRequest{
		Operation:   "activate",
		WorkflowIDs: []string{a, "missing", b},
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, a, resp.Results[0].WorkflowID)
	assert.True(t, resp.Results[0].Success)
	assert.Equal(t, "missing", resp.Results[1].WorkflowID)
	assert.Contains(t, resp.Results[1].Error, "404")
	assert.True(t, resp.Results[2].Success)
}

func TestBatchTagRequiresTags(t *testing.T) {
	f := newFakeEngine(t)
	_, err := f.service().BatchOperation(context.Background(), BatchRequest{Operation: "tag", WorkflowIDs: []string{"1"}})
	assert.Error(t, err)
}

func TestBatchExportStripsCredentials(t *testing.T) {
	f := newFakeEngine(t)
	id := f.addWorkflow(map[string]interface{}{
		"name": "Secrets",
		"nodes": []interface{}{map[string]interface{}{
			"name":        "Slack",
			"type":        "n8n-nodes-base.slack",
			"credentials": map[string]interface{}{"slackApi": map[string]interface{}{"id": "7"}},
		}},
	})

	resp, err := f.service().BatchOperation(context.Background(), BatchRequest{Operation: "export", WorkflowIDs: []string{id}})
	require.NoError(t, err)
	require.True(t, resp.Success)
	doc := resp.Results[0].Data.(map[string]interface{})
	node := doc["nodes"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, node, "credentials")
}
