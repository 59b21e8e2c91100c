package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"n8n-mcp/backend/pkg/models"
)

// ExportWorkflowRequest is the export_workflow input.
type ExportWorkflowRequest struct {
	WorkflowID         string `mapstructure:"workflowId"`
	Format             string `mapstructure:"format"`
	IncludeCredentials bool   `mapstructure:"includeCredentials"`
}

// ExportResponse is the export_workflow result. Data is the workflow object
// for json and a rendered document for yaml and markdown.
type ExportResponse struct {
	Success    bool        `json:"success"`
	WorkflowID string      `json:"workflowId"`
	Format     string      `json:"format"`
	Data       interface{} `json:"data"`
}

// ExportWorkflow renders a workflow definition. Node credential references
// are removed unless IncludeCredentials is set.
func (s *ToolService) ExportWorkflow(ctx context.Context, req ExportWorkflowRequest) (*ExportResponse, error) {
	doc, err := s.engine.GetWorkflowDocument(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", req.WorkflowID, err)
	}
	if !req.IncludeCredentials {
		doc = stripCredentials(doc)
	}

	format := req.Format
	if format == "" {
		format = "json"
	}
	resp := &ExportResponse{Success: true, WorkflowID: req.WorkflowID, Format: format}
	switch format {
	case "json":
		resp.Data = doc
	case "yaml":
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode workflow as yaml: %w", err)
		}
		resp.Data = string(out)
	case "markdown":
		w, err := models.DecodeWorkflow(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode workflow %s: %w", req.WorkflowID, err)
		}
		resp.Data = renderMarkdown(w)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	return resp, nil
}

// stripCredentials returns a copy of doc without node credential references.
func stripCredentials(doc map[string]interface{}) map[string]interface{} {
	out := cloneObject(doc)
	nodes, _ := out["nodes"].([]interface{})
	for _, n := range nodes {
		if node, ok := n.(map[string]interface{}); ok {
			delete(node, "credentials")
		}
	}
	return out
}

func renderMarkdown(w *models.Workflow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", w.Name)
	if w.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", w.Description)
	}
	fmt.Fprintf(&b, "- **ID:** %s\n", w.ID)
	fmt.Fprintf(&b, "- **Active:** %t\n", w.Active)
	if tags := w.TagNames(); len(tags) > 0 {
		fmt.Fprintf(&b, "- **Tags:** %s\n", strings.Join(tags, ", "))
	}
	fmt.Fprintf(&b, "- **Nodes:** %d\n\n", len(w.Nodes))

	nodes := table.NewWriter()
	nodes.AppendHeader(table.Row{"#", "Name", "Type", "Disabled"})
	for i, n := range w.Nodes {
		nodes.AppendRow(table.Row{i + 1, n.Name, n.Type, n.Disabled})
	}
	b.WriteString("## Nodes\n\n")
	b.WriteString(nodes.RenderMarkdown())
	b.WriteString("\n\n")

	sources := make([]string, 0, len(w.Connections))
	for source := range w.Connections {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	edges := table.NewWriter()
	edges.AppendHeader(table.Row{"From", "Output", "To", "Input"})
	for _, source := range sources {
		for i, output := range w.Connections[source]["main"] {
			for _, edge := range output {
				edges.AppendRow(table.Row{source, i, edge.Node, edge.Index})
			}
		}
	}
	b.WriteString("## Connections\n\n")
	b.WriteString(edges.RenderMarkdown())
	b.WriteString("\n")
	return b.String()
}
