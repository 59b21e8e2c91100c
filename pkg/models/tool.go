package models

import (
	"encoding/json"
	"time"
)

// ToolDescriptor describes one callable tool. Descriptors are built at start
// and never mutated.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// HealthStatus is the aggregate snapshot served on /health and by the
// get_n8n_health tool.
type HealthStatus struct {
	Status          string             `json:"status"`
	Message         string             `json:"message"`
	BaseURL         string             `json:"baseUrl"`
	APIConnected    bool               `json:"apiConnected"`
	Timestamp       time.Time          `json:"timestamp"`
	Stats           *HealthStats       `json:"stats,omitempty"`
	Performance     *HealthPerformance `json:"performance,omitempty"`
	Error           string             `json:"error,omitempty"`
	Troubleshooting []string           `json:"troubleshooting,omitempty"`
}

// HealthStats summarises the engine's workflow inventory.
type HealthStats struct {
	TotalWorkflows   int    `json:"totalWorkflows"`
	ActiveWorkflows  int    `json:"activeWorkflows"`
	RecentExecutions int    `json:"recentExecutions"`
	SuccessRate      string `json:"successRate"`
	CachedWorkflows  int    `json:"cachedWorkflows"`
}

// HealthPerformance summarises recent execution timing.
type HealthPerformance struct {
	AvgExecutionTime string `json:"avgExecutionTime"`
	PeakHours        string `json:"peakHours"`
}
