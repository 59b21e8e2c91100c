// Package models defines the engine-side documents observed by the bridge
// and the descriptors it publishes to tool callers.
package models

import (
	"encoding/json"
	"time"
)

// Workflow is a snapshot of a workflow owned by the remote engine.
type Workflow struct {
	ID          ID                         `json:"id,omitempty"`
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Active      bool                       `json:"active"`
	Tags        []Tag                      `json:"tags,omitempty"`
	Nodes       []Node                     `json:"nodes"`
	Connections map[string]NodeConnections `json:"connections"`
	Settings    map[string]interface{}     `json:"settings,omitempty"`
	CreatedAt   *time.Time                 `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time                 `json:"updatedAt,omitempty"`
	Stats       *WorkflowStats             `json:"stats,omitempty"`
}

// Tag is a workflow label.
type Tag struct {
	ID   ID     `json:"id,omitempty"`
	Name string `json:"name"`
}

// Node is one typed step of a workflow graph.
type Node struct {
	ID          string                 `json:"id,omitempty"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	TypeVersion float64                `json:"typeVersion,omitempty"`
	Position    []float64              `json:"position,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Credentials map[string]interface{} `json:"credentials,omitempty"`
	Disabled    bool                   `json:"disabled,omitempty"`
}

// NodeConnections maps an output type (usually "main") to the outputs of a
// node; each output holds the edges leaving it.
type NodeConnections map[string][][]Connection

// Connection is a single edge to a downstream node input.
type Connection struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// WorkflowStats is attached to listed workflows when statistics are requested.
// Error is set instead of the counters when the per-workflow fetch failed.
type WorkflowStats struct {
	TotalExecutions int    `json:"totalExecutions"`
	LastExecution   string `json:"lastExecution,omitempty"`
	SuccessRate     int    `json:"successRate"`
	Error           string `json:"error,omitempty"`
}

// WorkflowList is the engine's paginated workflow listing.
type WorkflowList struct {
	Data       []*Workflow `json:"data"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

// TagNames returns the workflow tag names.
func (w *Workflow) TagNames() []string {
	names := make([]string, 0, len(w.Tags))
	for _, t := range w.Tags {
		names = append(names, t.Name)
	}
	return names
}

// Node returns the node with the given name, or nil.
func (w *Workflow) Node(name string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].Name == name {
			return &w.Nodes[i]
		}
	}
	return nil
}

// Clone returns a deep copy made through JSON.
func (w *Workflow) Clone() (*Workflow, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	var out Workflow
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeWorkflow converts a loosely typed document into a Workflow.
func DecodeWorkflow(doc interface{}) (*Workflow, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &w, nil
}
