package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"n8n-mcp/backend/pkg/models"
)

// Complexity is a coarse ordinal keyed on node count.
type Complexity string

const (
	Simple      Complexity = "Simple"
	Moderate    Complexity = "Moderate"
	Complex     Complexity = "Complex"
	VeryComplex Complexity = "Very Complex"
)

// ClassifyComplexity maps a node count onto the four tiers (<5, <15, <30, else).
func ClassifyComplexity(nodeCount int) Complexity {
	switch {
	case nodeCount < 5:
		return Simple
	case nodeCount < 15:
		return Moderate
	case nodeCount < 30:
		return Complex
	default:
		return VeryComplex
	}
}

// WorkflowComplexity classifies a workflow by its node count.
func WorkflowComplexity(w *models.Workflow) Complexity {
	if w == nil {
		return Simple
	}
	return ClassifyComplexity(len(w.Nodes))
}

// WebhookNodeType is the engine's webhook trigger node.
const WebhookNodeType = "n8n-nodes-base.webhook"

// Webhook is an inbound endpoint exposed by a workflow node.
type Webhook struct {
	WorkflowID string `json:"workflowId,omitempty"`
	Workflow   string `json:"workflow,omitempty"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	Method     string `json:"method"`
	URL        string `json:"url"`
}

// Webhooks lists the webhook nodes of a workflow with their public URLs.
func Webhooks(w *models.Workflow, baseURL string) []Webhook {
	hooks := []Webhook{}
	if w == nil {
		return hooks
	}
	for _, n := range w.Nodes {
		if n.Type != WebhookNodeType {
			continue
		}
		path, _ := n.Parameters["path"].(string)
		method, _ := n.Parameters["httpMethod"].(string)
		if method == "" {
			method = "GET"
		}
		hooks = append(hooks, Webhook{
			WorkflowID: w.ID.String(),
			Workflow:   w.Name,
			ID:         n.ID,
			Name:       n.Name,
			Path:       path,
			Method:     method,
			URL:        strings.TrimRight(baseURL, "/") + "/webhook/" + path,
		})
	}
	return hooks
}

// SequentialNodes returns nodes whose first main output feeds exactly one
// downstream node.
func SequentialNodes(w *models.Workflow) []models.Node {
	var out []models.Node
	if w == nil {
		return out
	}
	for _, n := range w.Nodes {
		outputs := w.Connections[n.Name]["main"]
		if len(outputs) > 0 && len(outputs[0]) == 1 {
			out = append(out, n)
		}
	}
	return out
}

// Suggestion is an optimization hint.
type Suggestion struct {
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
}

// OptimizationSuggestions inspects a workflow for parallelism, error handling
// and batching opportunities.
func OptimizationSuggestions(w *models.Workflow) []Suggestion {
	suggestions := []Suggestion{}
	if w == nil {
		return suggestions
	}
	if len(SequentialNodes(w)) > 3 {
		suggestions = append(suggestions, Suggestion{
			Type:        "parallelization",
			Priority:    "high",
			Description: "Consider parallelizing independent operations",
			Impact:      "Could reduce execution time by up to 50%",
		})
	}
	if errorWorkflow, _ := w.Settings["errorWorkflow"].(string); errorWorkflow == "" {
		suggestions = append(suggestions, Suggestion{
			Type:        "error-handling",
			Priority:    "high",
			Description: "Add error handling workflow",
			Impact:      "Prevent workflow failures from going unnoticed",
		})
	}
	if countNodes(w, "splitInBatches") > 0 {
		suggestions = append(suggestions, Suggestion{
			Type:        "batch-processing",
			Priority:    "medium",
			Description: "Optimize batch sizes for better performance",
			Impact:      "Improve processing speed and reduce API calls",
		})
	}
	return suggestions
}

// Bottleneck is a likely slow spot in a workflow.
type Bottleneck struct {
	Node       string `json:"node"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
}

// Bottlenecks flags node kinds known to dominate run time.
func Bottlenecks(w *models.Workflow) []Bottleneck {
	out := []Bottleneck{}
	if countNodes(w, "httpRequest") > 0 {
		out = append(out, Bottleneck{
			Node:       "HTTP Request nodes",
			Issue:      "External API calls may slow down execution",
			Suggestion: "Consider caching responses or batch processing",
		})
	}
	if countNodes(w, "langchain") > 0 {
		out = append(out, Bottleneck{
			Node:       "AI model nodes",
			Issue:      "Model calls are slow and rate limited",
			Suggestion: "Cache prompts with stable inputs and lower maxTokens where possible",
		})
	}
	return out
}

// Cost is a rough usage projection.
type Cost struct {
	EstimatedMonthlyExecutions int        `json:"estimatedMonthlyExecutions"`
	ComputeComplexity          Complexity `json:"computeComplexity"`
	ExternalAPICalls           int        `json:"externalAPICalls"`
	Recommendation             string     `json:"recommendation"`
}

// CostEstimate projects monthly volume assuming execs covers one week.
func CostEstimate(w *models.Workflow, execs []*models.Execution) Cost {
	return CostEstimateOver(w, execs, 7)
}

// CostEstimateOver projects monthly volume from executions observed over
// the given number of days.
func CostEstimateOver(w *models.Workflow, execs []*models.Execution, days float64) Cost {
	if days <= 0 {
		days = 7
	}
	perMonth := int(math.Round(float64(len(execs)) / days * 30))
	recommendation := "Current usage is within optimal range"
	if perMonth > 1000 {
		recommendation = "Consider optimizing for high-volume usage"
	}
	return Cost{
		EstimatedMonthlyExecutions: perMonth,
		ComputeComplexity:          WorkflowComplexity(w),
		ExternalAPICalls:           countNodes(w, "httpRequest"),
		Recommendation:             recommendation,
	}
}

// Recommendations lists plain-language improvements.
func Recommendations(w *models.Workflow, execs []*models.Execution) []string {
	out := []string{}
	if SuccessRate(execs) < 90 {
		out = append(out, "Improve error handling to increase success rate")
	}
	if w != nil && len(w.Nodes) > 20 {
		out = append(out, "Consider breaking down into smaller, modular workflows")
	}
	if w == nil || w.Description == "" {
		out = append(out, "Add detailed description for better documentation")
	}
	return out
}

// GraphIssue is a structural problem found in a workflow graph.
type GraphIssue struct {
	Severity string `json:"severity"`
	Node     string `json:"node,omitempty"`
	Message  string `json:"message"`
}

// GraphIssues checks edges, reachability, triggers and breakpoint names.
// Issues are ordered by severity then node name.
func GraphIssues(w *models.Workflow, breakpoints []string) []GraphIssue {
	issues := []GraphIssue{}
	if w == nil {
		return issues
	}

	names := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		names[n.Name] = true
	}

	incoming := map[string]int{}
	for source, outputs := range w.Connections {
		if !names[source] {
			issues = append(issues, GraphIssue{Severity: "error", Node: source, Message: fmt.Sprintf("connections declared for unknown node %q", source)})
		}
		for _, edges := range outputs {
			for _, output := range edges {
				for _, edge := range output {
					if !names[edge.Node] {
						issues = append(issues, GraphIssue{Severity: "error", Node: source, Message: fmt.Sprintf("connects to unknown node %q", edge.Node)})
						continue
					}
					incoming[edge.Node]++
				}
			}
		}
	}

	triggers := 0
	for _, n := range w.Nodes {
		if IsTrigger(n) {
			triggers++
			continue
		}
		if incoming[n.Name] == 0 {
			issues = append(issues, GraphIssue{Severity: "warning", Node: n.Name, Message: "node has no incoming connection and will never run"})
		}
		if n.Disabled {
			issues = append(issues, GraphIssue{Severity: "info", Node: n.Name, Message: "node is disabled"})
		}
	}
	if len(w.Nodes) > 0 && triggers == 0 {
		issues = append(issues, GraphIssue{Severity: "warning", Message: "workflow has no trigger node"})
	}

	for _, bp := range breakpoints {
		if !names[bp] {
			issues = append(issues, GraphIssue{Severity: "error", Node: bp, Message: "breakpoint does not match any node"})
		}
	}

	rank := map[string]int{"error": 0, "warning": 1, "info": 2}
	sort.SliceStable(issues, func(i, j int) bool {
		if rank[issues[i].Severity] != rank[issues[j].Severity] {
			return rank[issues[i].Severity] < rank[issues[j].Severity]
		}
		if issues[i].Node != issues[j].Node {
			return issues[i].Node < issues[j].Node
		}
		return issues[i].Message < issues[j].Message
	})
	return issues
}

// IsTrigger reports whether a node starts a workflow run.
func IsTrigger(n models.Node) bool {
	t := strings.ToLower(n.Type)
	for _, marker := range []string{"trigger", "webhook", "cron", "schedule"} {
		if strings.Contains(t, marker) && !strings.Contains(t, "respondtowebhook") {
			return true
		}
	}
	return false
}

func countNodes(w *models.Workflow, typeFragment string) int {
	if w == nil {
		return 0
	}
	n := 0
	for _, node := range w.Nodes {
		if strings.Contains(node.Type, typeFragment) {
			n++
		}
	}
	return n
}

// ExecutionOrder lists node names in breadth-first order from the trigger
// nodes, following main connections. Nodes that cannot be reached are left
// out.
func ExecutionOrder(w *models.Workflow) []string {
	order := []string{}
	if w == nil {
		return order
	}
	seen := map[string]bool{}
	var queue []string
	for _, n := range w.Nodes {
		if IsTrigger(n) && !n.Disabled {
			queue = append(queue, n.Name)
			seen[n.Name] = true
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if w.Node(name) == nil {
			continue
		}
		order = append(order, name)
		for _, output := range w.Connections[name]["main"] {
			for _, edge := range output {
				if !seen[edge.Node] {
					seen[edge.Node] = true
					queue = append(queue, edge.Node)
				}
			}
		}
	}
	return order
}
