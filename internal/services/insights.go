package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"n8n-mcp/backend/internal/analytics"
	"n8n-mcp/backend/internal/logging"
	"n8n-mcp/backend/internal/templates"
	"n8n-mcp/backend/pkg/models"
)

const (
	analysisExecutions = 100
	debugExecutions    = 20
	defaultLogLines    = 100
)

// AnalyzeWorkflowRequest is the analyze_workflow input.
type AnalyzeWorkflowRequest struct {
	WorkflowID string `mapstructure:"workflowId"`
	Period     string `mapstructure:"period"`
}

// Analysis is the analyze_workflow result.
type Analysis struct {
	Workflow     WorkflowSummary     `json:"workflow"`
	Performance  PerformanceSummary  `json:"performance"`
	Optimization OptimizationSummary `json:"optimization"`
	Insights     InsightSummary      `json:"insights"`
}

// WorkflowSummary describes the analyzed workflow.
type WorkflowSummary struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	NodeCount   int                  `json:"nodeCount"`
	Complexity  analytics.Complexity `json:"complexity"`
	LastUpdated *time.Time           `json:"lastUpdated,omitempty"`
}

// PerformanceSummary aggregates the executions of the analyzed period.
type PerformanceSummary struct {
	Period           string                   `json:"period"`
	TotalExecutions  int                      `json:"totalExecutions"`
	SuccessRate      int                      `json:"successRate"`
	AvgExecutionTime string                   `json:"avgExecutionTime"`
	ErrorPatterns    []analytics.ErrorPattern `json:"errorPatterns"`
}

// OptimizationSummary lists improvement opportunities.
type OptimizationSummary struct {
	Suggestions  []analytics.Suggestion `json:"suggestions"`
	Bottlenecks  []analytics.Bottleneck `json:"bottlenecks"`
	CostEstimate analytics.Cost         `json:"costEstimate"`
}

// InsightSummary describes usage patterns.
type InsightSummary struct {
	PeakUsageTimes  string                `json:"peakUsageTimes"`
	DataPatterns    analytics.DataPattern `json:"dataPatterns"`
	Recommendations []string              `json:"recommendations"`
}

// AnalyzeWorkflow combines static analysis of the workflow with statistics
// over its executions started within the period.
func (s *ToolService) AnalyzeWorkflow(ctx context.Context, req AnalyzeWorkflowRequest) (*Analysis, error) {
	period := req.Period
	if period == "" {
		period = "7d"
	}
	window, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}

	w, execs, err := s.workflowWithExecutions(ctx, req.WorkflowID, analysisExecutions, true)
	if err != nil {
		return nil, err
	}
	since := s.now().Add(-window)
	inPeriod := make([]*models.Execution, 0, len(execs))
	for _, e := range execs {
		if e.StartedAt == nil || !e.StartedAt.Before(since) {
			inPeriod = append(inPeriod, e)
		}
	}

	return &Analysis{
		Workflow: WorkflowSummary{
			ID:          w.ID.String(),
			Name:        w.Name,
			NodeCount:   len(w.Nodes),
			Complexity:  analytics.WorkflowComplexity(w),
			LastUpdated: w.UpdatedAt,
		},
		Performance: PerformanceSummary{
			Period:           period,
			TotalExecutions:  len(inPeriod),
			SuccessRate:      analytics.SuccessRate(inPeriod),
			AvgExecutionTime: analytics.AverageDuration(inPeriod),
			ErrorPatterns:    analytics.ErrorPatterns(inPeriod),
		},
		Optimization: OptimizationSummary{
			Suggestions:  analytics.OptimizationSuggestions(w),
			Bottlenecks:  analytics.Bottlenecks(w),
			CostEstimate: analytics.CostEstimateOver(w, inPeriod, window.Hours()/24),
		},
		Insights: InsightSummary{
			PeakUsageTimes:  analytics.PeakHour(inPeriod),
			DataPatterns:    analytics.DataPatterns(inPeriod),
			Recommendations: analytics.Recommendations(w, inPeriod),
		},
	}, nil
}

// ParsePeriod accepts "<n>h", "<n>d", "<n>w" or any time.ParseDuration
// string.
func ParsePeriod(period string) (time.Duration, error) {
	p := strings.TrimSpace(strings.ToLower(period))
	if len(p) > 1 {
		unit := map[byte]time.Duration{'d': 24 * time.Hour, 'w': 7 * 24 * time.Hour}[p[len(p)-1]]
		if unit > 0 {
			n, err := strconv.Atoi(p[:len(p)-1])
			if err == nil && n > 0 {
				return time.Duration(n) * unit, nil
			}
		}
	}
	d, err := time.ParseDuration(p)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid period %q: use a form like 24h, 7d or 2w", period)
	}
	return d, nil
}

// OptimizeWorkflowRequest names the workflow to optimize.
type OptimizeWorkflowRequest struct {
	WorkflowID string `mapstructure:"workflowId"`
}

// OptimizationReport is the optimize_workflow result.
type OptimizationReport struct {
	WorkflowID      string                 `json:"workflowId"`
	Name            string                 `json:"name"`
	Complexity      analytics.Complexity   `json:"complexity"`
	Optimizations   []analytics.Suggestion `json:"optimizations"`
	Bottlenecks     []analytics.Bottleneck `json:"bottlenecks"`
	Recommendations []string               `json:"recommendations"`
}

// OptimizeWorkflow reports optimization opportunities for a workflow.
func (s *ToolService) OptimizeWorkflow(ctx context.Context, req OptimizeWorkflowRequest) (*OptimizationReport, error) {
	w, execs, err := s.workflowWithExecutions(ctx, req.WorkflowID, analysisExecutions, false)
	if err != nil {
		return nil, err
	}
	return &OptimizationReport{
		WorkflowID:      w.ID.String(),
		Name:            w.Name,
		Complexity:      analytics.WorkflowComplexity(w),
		Optimizations:   analytics.OptimizationSuggestions(w),
		Bottlenecks:     analytics.Bottlenecks(w),
		Recommendations: analytics.Recommendations(w, execs),
	}, nil
}

// SuggestWorkflowRequest is the suggest_workflow input.
type SuggestWorkflowRequest struct {
	UseCase       string   `mapstructure:"useCase"`
	CurrentTools  []string `mapstructure:"currentTools"`
	BusinessGoals []string `mapstructure:"businessGoals"`
}

// SuggestionResponse is the suggest_workflow result.
type SuggestionResponse struct {
	Suggestions          []templates.Suggestion `json:"suggestions"`
	CustomRecommendation string                 `json:"customRecommendation"`
	ImplementationPlan   []string               `json:"implementationPlan"`
}

// SuggestWorkflow ranks the template library against a use case.
func (s *ToolService) SuggestWorkflow(_ context.Context, req SuggestWorkflowRequest) (*SuggestionResponse, error) {
	suggestions := templates.Suggest(req.UseCase, req.CurrentTools, req.BusinessGoals)
	resp := &SuggestionResponse{
		Suggestions: suggestions,
		ImplementationPlan: []string{
			"Start with the highest-match template",
			"Customize for your specific tools and workflows",
			"Test with small data sets first",
			"Scale up gradually while monitoring performance",
		},
	}
	if len(suggestions) > 0 {
		resp.CustomRecommendation = fmt.Sprintf(
			"Based on your use case %q, start with the %s and customize it for your specific needs.",
			req.UseCase, suggestions[0].Title)
	}
	return resp, nil
}

// DebugWorkflowRequest is the debug_workflow input.
type DebugWorkflowRequest struct {
	WorkflowID  string   `mapstructure:"workflowId"`
	Breakpoints []string `mapstructure:"breakpoints"`
}

// DebugSession is the debug_workflow result.
type DebugSession struct {
	WorkflowID     string                   `json:"workflowId"`
	Name           string                   `json:"name"`
	Active         bool                     `json:"active"`
	ExecutionOrder []string                 `json:"executionOrder"`
	Breakpoints    []string                 `json:"breakpoints"`
	Issues         []analytics.GraphIssue   `json:"issues"`
	RecentFailures int                      `json:"recentFailures"`
	LastFailedNode string                   `json:"lastFailedNode,omitempty"`
	ErrorPatterns  []analytics.ErrorPattern `json:"errorPatterns"`
}

// DebugResponse wraps a debug session.
type DebugResponse struct {
	DebugSession DebugSession `json:"debugSession"`
}

// DebugWorkflow runs static checks on the workflow graph and correlates them
// with recent failed executions.
func (s *ToolService) DebugWorkflow(ctx context.Context, req DebugWorkflowRequest) (*DebugResponse, error) {
	w, execs, err := s.workflowWithExecutions(ctx, req.WorkflowID, debugExecutions, true)
	if err != nil {
		return nil, err
	}

	breakpoints := []string{}
	for _, bp := range req.Breakpoints {
		if w.Node(bp) != nil {
			breakpoints = append(breakpoints, bp)
		}
	}
	failures := 0
	for _, e := range execs {
		if analytics.Failed(e) {
			failures++
		}
	}
	return &DebugResponse{DebugSession: DebugSession{
		WorkflowID:     w.ID.String(),
		Name:           w.Name,
		Active:         w.Active,
		ExecutionOrder: analytics.ExecutionOrder(w),
		Breakpoints:    breakpoints,
		Issues:         analytics.GraphIssues(w, req.Breakpoints),
		RecentFailures: failures,
		LastFailedNode: analytics.LastFailedNode(execs),
		ErrorPatterns:  analytics.ErrorPatterns(execs),
	}}, nil
}

func (s *ToolService) workflowWithExecutions(ctx context.Context, id string, limit int, includeData bool) (*models.Workflow, []*models.Execution, error) {
	w, err := s.engine.GetWorkflow(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
	}
	s.remember(ctx, w)
	list, err := s.engine.ListExecutions(ctx, ExecutionQuery{WorkflowID: id, Limit: limit, IncludeData: includeData})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list executions of %s: %w", id, err)
	}
	return w, list.Data, nil
}

// SystemInfo is the get_system_info result.
type SystemInfo struct {
	Version         string            `json:"version"`
	ServerTime      time.Time         `json:"serverTime"`
	Uptime          string            `json:"uptime"`
	BaseURL         string            `json:"baseUrl"`
	Capabilities    []string          `json:"capabilities"`
	Limits          map[string]string `json:"limits"`
	CachedWorkflows int               `json:"cachedWorkflows"`
	Templates       []string          `json:"templates"`
}

// GetSystemInfo describes the bridge itself. It does not call the engine.
func (s *ToolService) GetSystemInfo(ctx context.Context) (*SystemInfo, error) {
	now := s.now()
	return &SystemInfo{
		Version:      Version,
		ServerTime:   now.UTC(),
		Uptime:       now.Sub(s.startedAt).Round(time.Second).String(),
		BaseURL:      s.engine.BaseURL(),
		Capabilities: Capabilities,
		Limits: map[string]string{
			"maxWorkflows":        "unlimited",
			"maxExecutionsPerDay": "unlimited",
			"maxNodesPerWorkflow": "1000",
			"webhookTimeout":      "300s",
			"executionWait":       s.waitBudget.String(),
			"batchConcurrency":    strconv.Itoa(s.concurrency),
		},
		CachedWorkflows: s.cachedCount(ctx),
		Templates:       templates.Names(),
	}, nil
}

// GetLogsRequest is the get_logs input.
type GetLogsRequest struct {
	Type  string `mapstructure:"type"`
	ID    string `mapstructure:"id"`
	Lines int    `mapstructure:"lines"`
}

// LogsResponse is the get_logs result.
type LogsResponse struct {
	Type  string      `json:"type"`
	ID    string      `json:"id,omitempty"`
	Count int         `json:"count"`
	Logs  interface{} `json:"logs"`
}

// ExecutionLogLine summarises one execution of a workflow.
type ExecutionLogLine struct {
	ExecutionID string     `json:"executionId"`
	Status      string     `json:"status"`
	Mode        string     `json:"mode,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	StoppedAt   *time.Time `json:"stoppedAt,omitempty"`
	Duration    string     `json:"duration,omitempty"`
}

// ExecutionLog is the detail of one execution.
type ExecutionLog struct {
	ExecutionLogLine
	LastNode  string            `json:"lastNodeExecuted,omitempty"`
	Execution *models.Execution `json:"execution"`
}

// GetLogs returns recent bridge log lines, a workflow's execution history or
// the detail of one execution.
func (s *ToolService) GetLogs(ctx context.Context, req GetLogsRequest) (*LogsResponse, error) {
	lines := req.Lines
	if lines <= 0 {
		lines = defaultLogLines
	}
	kind := req.Type
	if kind == "" {
		kind = "system"
	}

	switch kind {
	case "system":
		entries := []logging.Entry{}
		if s.logs != nil {
			entries = s.logs.Recent(lines)
		}
		return &LogsResponse{Type: kind, Count: len(entries), Logs: entries}, nil

	case "workflow":
		if req.ID == "" {
			return nil, fmt.Errorf("workflow logs require id")
		}
		list, err := s.engine.ListExecutions(ctx, ExecutionQuery{WorkflowID: req.ID, Limit: lines})
		if err != nil {
			return nil, fmt.Errorf("failed to list executions of %s: %w", req.ID, err)
		}
		out := make([]ExecutionLogLine, 0, len(list.Data))
		for _, e := range list.Data {
			out = append(out, logLine(e))
		}
		return &LogsResponse{Type: kind, ID: req.ID, Count: len(out), Logs: out}, nil

	case "execution":
		if req.ID == "" {
			return nil, fmt.Errorf("execution logs require id")
		}
		e, err := s.engine.GetExecution(ctx, req.ID, true)
		if err != nil {
			return nil, fmt.Errorf("failed to load execution %s: %w", req.ID, err)
		}
		detail := ExecutionLog{ExecutionLogLine: logLine(e), Execution: e}
		if analytics.Failed(e) {
			detail.LastNode = analytics.LastFailedNode([]*models.Execution{e})
		}
		return &LogsResponse{Type: kind, ID: req.ID, Count: 1, Logs: detail}, nil

	default:
		return nil, fmt.Errorf("unsupported log type %q", kind)
	}
}

func logLine(e *models.Execution) ExecutionLogLine {
	line := ExecutionLogLine{
		ExecutionID: e.ID.String(),
		Status:      executionStatus(e),
		Mode:        e.Mode,
		StartedAt:   e.StartedAt,
		StoppedAt:   e.StoppedAt,
	}
	if d, ok := e.Duration(); ok {
		line.Duration = fmt.Sprintf("%dms", d.Milliseconds())
	}
	return line
}

func executionStatus(e *models.Execution) string {
	switch {
	case e.Status != "":
		return e.Status
	case analytics.Succeeded(e):
		return "success"
	case analytics.Failed(e):
		return "error"
	default:
		return "running"
	}
}
