package mcp

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	require.NoError(t, err)
	return r
}

func TestRegistryCatalog(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	catalog := r.Catalog()
	require.Len(t, catalog, 24)
	assert.Equal(t, ToolHealth, catalog[0].Name)
	assert.Equal(t, ToolGetLogs, catalog[len(catalog)-1].Name)

	seen := map[string]bool{}
	for _, d := range catalog {
		assert.False(t, seen[d.Name], "duplicate %s", d.Name)
		seen[d.Name] = true
		assert.NotEmpty(t, d.Description, d.Name)
		assert.True(t, json.Valid(d.InputSchema), d.Name)
	}

	var schema struct {
		Required []string `json:"required"`
	}
	for _, d := range catalog {
		if d.Name == ToolCreateWorkflow {
			require.NoError(t, json.Unmarshal(d.InputSchema, &schema))
		}
	}
	assert.Equal(t, []string{"name"}, schema.Required)
}

func TestRegistryValidate(t *testing.T) {
	r := testRegistry(t)

	assert.NoError(t, r.Validate(ToolHealth, nil))
	assert.NoError(t, r.Validate(ToolCreateWorkflow, map[string]interface{}{"name": "x", "tags": []interface{}{"a"}}))
	assert.NoError(t, r.Validate(ToolExecuteWorkflow, map[string]interface{}{"workflowId": "1", "mode": "test", "waitForCompletion": false}))

	cases := map[string]struct {
		tool string
		args map[string]interface{}
	}{
		"missing required": {ToolCreateWorkflow, map[string]interface{}{}},
		"wrong type":       {ToolListWorkflows, map[string]interface{}{"limit": "ten"}},
		"enum":             {ToolExecuteWorkflow, map[string]interface{}{"workflowId": "1", "mode": "fast"}},
		"below minimum":    {ToolGetLogs, map[string]interface{}{"lines": 0}},
		"array items":      {ToolBatchOperation, map[string]interface{}{"operation": "delete", "workflowIds": []interface{}{1}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := r.Validate(tc.tool, tc.args)
			var invalid *InvalidArgumentsError
			require.True(t, errors.As(err, &invalid), "got %v", err)
			assert.Equal(t, tc.tool, invalid.Tool)
			assert.True(t, IsClientError(err))
		})
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := testRegistry(t)

	err := r.Validate("drop_database", nil)
	assert.EqualError(t, err, "Unknown tool: drop_database")
	assert.True(t, IsClientError(err))
}

func TestArgsFromQuery(t *testing.T) {
	r := testRegistry(t)
	q := url.Values{
		"active":       {"true"},
		"tags":         {"ops, daily", "sales"},
		"limit":        {"5"},
		"search":       {"digest"},
		"includeStats": {"maybe"},
	}

	args := r.ArgsFromQuery(ToolListWorkflows, q)
	assert.Equal(t, true, args["active"])
	assert.Equal(t, []interface{}{"ops", "daily", "sales"}, args["tags"])
	assert.Equal(t, 5.0, args["limit"])
	assert.Equal(t, "digest", args["search"])
	assert.Equal(t, "maybe", args["includeStats"])

	err := r.Validate(ToolListWorkflows, args)
	assert.ErrorContains(t, err, "includeStats")

	delete(args, "includeStats")
	assert.NoError(t, r.Validate(ToolListWorkflows, args))
}

func TestArgsFromQueryUnknownToolKeepsStrings(t *testing.T) {
	args := testRegistry(t).ArgsFromQuery("nope", url.Values{"limit": {"5"}})
	assert.Equal(t, "5", args["limit"])
}

func TestNormalizeIDs(t *testing.T) {
	r := testRegistry(t)

	in := map[string]interface{}{"executionId": 123.0, "fromNode": 7.0}
	args := r.NormalizeIDs(ToolRetryExecution, in)
	assert.Equal(t, "123", args["executionId"])
	assert.Equal(t, 7.0, args["fromNode"], "only identifiers are rewritten")
	assert.Equal(t, 123.0, in["executionId"], "input is not modified")
	assert.NoError(t, r.Validate(ToolRetryExecution, args))

	args = r.NormalizeIDs(ToolBatchOperation, map[string]interface{}{
		"operation":   "delete",
		"workflowIds": []interface{}{1.0, "abc", json.Number("42")},
	})
	assert.Equal(t, []interface{}{"1", "abc", "42"}, args["workflowIds"])
	assert.NoError(t, r.Validate(ToolBatchOperation, args))

	args = r.NormalizeIDs(ToolGetLogs, map[string]interface{}{"type": "execution", "id": 1.5})
	assert.Equal(t, 1.5, args["id"])
	assert.Error(t, r.Validate(ToolGetLogs, args))
}
