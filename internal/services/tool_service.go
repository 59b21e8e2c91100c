package services

import (
	"context"
	"time"

	"n8n-mcp/backend/internal/logging"
	"n8n-mcp/backend/internal/monitor"
	"n8n-mcp/backend/internal/repository"
	"n8n-mcp/backend/pkg/models"
)

const (
	// Version is reported by get_system_info and the tool listing.
	Version = "2.0.0"

	defaultConcurrency = 8
	defaultCacheSize   = 256
	defaultCacheTTL    = 10 * time.Minute
)

// Capabilities advertised to tool callers.
var Capabilities = []string{
	"workflow-management",
	"execution-monitoring",
	"credential-management",
	"analytics",
	"ai-suggestions",
	"batch-operations",
	"webhook-management",
	"real-time-websocket",
}

// Waiter blocks until an execution is terminal or a budget elapses.
type Waiter interface {
	Wait(ctx context.Context, id string) (*monitor.WaitResult, error)
}

// LogSource returns recent system log entries, oldest first.
type LogSource interface {
	Recent(n int) []logging.Entry
}

// ServiceOption configures a ToolService.
type ServiceOption func(*ToolService)

// WithWaiter sets the execution waiter used by execute_workflow.
func WithWaiter(w Waiter) ServiceOption {
	return func(s *ToolService) { s.waiter = w }
}

// WithCache replaces the default in-memory workflow cache.
func WithCache(c repository.WorkflowCache) ServiceOption {
	return func(s *ToolService) { s.cache = c }
}

// WithLogSource sets where get_logs reads system logs from.
func WithLogSource(l LogSource) ServiceOption {
	return func(s *ToolService) { s.logs = l }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l Logger) ServiceOption {
	return func(s *ToolService) { s.logger = l }
}

// WithConcurrency bounds the parallel engine calls of fan-out tools.
func WithConcurrency(n int) ServiceOption {
	return func(s *ToolService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithWaitBudget records the execution wait budget reported in system limits.
func WithWaitBudget(d time.Duration) ServiceOption {
	return func(s *ToolService) { s.waitBudget = d }
}

// ToolService implements the tool operations on top of the engine client.
type ToolService struct {
	engine      EngineClient
	waiter      Waiter
	cache       repository.WorkflowCache
	logs        LogSource
	logger      Logger
	concurrency int
	waitBudget  time.Duration
	startedAt   time.Time
	now         func() time.Time
}

// NewToolService creates a ToolService. Without WithWaiter, executions are
// awaited with a default monitor over the same engine client.
func NewToolService(engine EngineClient, opts ...ServiceOption) *ToolService {
	s := &ToolService{
		engine:      engine,
		concurrency: defaultConcurrency,
		waitBudget:  monitor.DefaultMaxWait,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.waiter == nil {
		s.waiter = monitor.New(engine)
	}
	if s.cache == nil {
		s.cache = repository.NewMemoryCache(defaultCacheSize, defaultCacheTTL)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.startedAt = s.now()
	return s
}

// Engine returns the underlying engine client.
func (s *ToolService) Engine() EngineClient {
	return s.engine
}

// Cache returns the advisory workflow cache.
func (s *ToolService) Cache() repository.WorkflowCache {
	return s.cache
}

func (s *ToolService) remember(ctx context.Context, workflows ...*models.Workflow) {
	for _, w := range workflows {
		if w == nil || w.ID == "" {
			continue
		}
		if err := s.cache.Put(ctx, w); err != nil {
			s.logger.Warn("workflow cache write failed", "workflowId", w.ID, "error", err)
		}
	}
}

func (s *ToolService) forget(ctx context.Context, ids ...string) {
	for _, id := range ids {
		if err := s.cache.Delete(ctx, id); err != nil {
			s.logger.Warn("workflow cache delete failed", "workflowId", id, "error", err)
		}
	}
}

func (s *ToolService) cachedCount(ctx context.Context) int {
	n, err := s.cache.Len(ctx)
	if err != nil {
		s.logger.Warn("workflow cache size unavailable", "error", err)
		return 0
	}
	return n
}
