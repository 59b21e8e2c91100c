// Package monitor watches engine executions until they reach a terminal
// state, either by waiting on behalf of one caller or by streaming snapshots
// to a subscriber.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"n8n-mcp/backend/internal/analytics"
	"n8n-mcp/backend/internal/metrics"
	"n8n-mcp/backend/pkg/models"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxWait      = 30 * time.Second
	DefaultFetchTimeout = 30 * time.Second
)

// Outcome tags how a wait ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeTimedOut means the budget ran out before a terminal state was
	// observed. The execution may still finish; it is not a failure verdict.
	OutcomeTimedOut Outcome = "timed_out"
)

// WaitResult is the tagged result of Wait. Duration and Data are only set
// for terminal outcomes.
type WaitResult struct {
	Outcome     Outcome           `json:"outcome"`
	ExecutionID string            `json:"executionId"`
	Duration    string            `json:"duration,omitempty"`
	Execution   *models.Execution `json:"data,omitempty"`
	Message     string            `json:"message"`
}

// Success reports whether the execution finished normally.
func (r *WaitResult) Success() bool {
	return r.Outcome == OutcomeSucceeded
}

// ExecutionFetcher reads one execution snapshot from the engine.
type ExecutionFetcher interface {
	GetExecution(ctx context.Context, id string, includeData bool) (*models.Execution, error)
}

// Update message types pushed to subscribers.
const (
	UpdateExecution = "execution-update"
	UpdateError     = "error"
)

// Update is one notification pushed to a subscriber.
type Update struct {
	Type        string            `json:"type"`
	ExecutionID string            `json:"executionId,omitempty"`
	Data        *models.Execution `json:"data,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Publisher receives subscription updates. A Publish error ends the
// subscription.
type Publisher interface {
	Publish(ctx context.Context, update Update) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, update Update) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, update Update) error {
	return f(ctx, update)
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPollInterval sets the polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMaxWait sets the wall-clock budget of Wait.
func WithMaxWait(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.maxWait = d
		}
	}
}

// WithFetchTimeout bounds one upstream poll. A poll shared by several callers
// is not cancelled by any of them, so this is its only deadline.
func WithFetchTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.fetchTimeout = d
		}
	}
}

// WithLogger sets the monitor's logger.
func WithLogger(l Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// Monitor polls execution state. Concurrent polls of the same execution id
// share one upstream request.
type Monitor struct {
	fetcher      ExecutionFetcher
	interval     time.Duration
	maxWait      time.Duration
	fetchTimeout time.Duration
	logger       Logger
	group        singleflight.Group
}

// New creates a Monitor.
func New(fetcher ExecutionFetcher, opts ...Option) *Monitor {
	m := &Monitor{
		fetcher:      fetcher,
		interval:     DefaultPollInterval,
		maxWait:      DefaultMaxWait,
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status queries the execution once.
func (m *Monitor) Status(ctx context.Context, id string) (*models.Execution, error) {
	return m.poll(ctx, id)
}

// Wait polls until the execution is terminal or the budget elapses. Poll
// errors are returned as errors; budget exhaustion is OutcomeTimedOut. A
// cancelled ctx returns ctx.Err().
func (m *Monitor) Wait(ctx context.Context, id string) (*WaitResult, error) {
	waitCtx, cancel := context.WithTimeout(ctx, m.maxWait)
	defer cancel()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		e, err := m.poll(waitCtx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if waitCtx.Err() != nil {
				return m.timedOut(id), nil
			}
			return nil, fmt.Errorf("failed to poll execution %s: %w", id, err)
		}
		if e.Terminal() {
			return m.terminal(id, e), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-waitCtx.Done():
			return m.timedOut(id), nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) terminal(id string, e *models.Execution) *WaitResult {
	r := &WaitResult{ExecutionID: id, Execution: e}
	if analytics.Succeeded(e) {
		r.Outcome = OutcomeSucceeded
		r.Message = "Execution completed successfully"
	} else {
		r.Outcome = OutcomeFailed
		r.Message = "Execution stopped without finishing"
	}
	if d, ok := e.Duration(); ok {
		r.Duration = fmt.Sprintf("%dms", d.Milliseconds())
	}
	metrics.RecordWaitOutcome(string(r.Outcome))
	return r
}

func (m *Monitor) timedOut(id string) *WaitResult {
	metrics.RecordWaitOutcome(string(OutcomeTimedOut))
	return &WaitResult{
		Outcome:     OutcomeTimedOut,
		ExecutionID: id,
		Message:     fmt.Sprintf("Execution still running after %s; check its status later", m.maxWait),
	}
}

// Subscribe pushes a snapshot of the execution on every poll until it is
// terminal, ctx is cancelled or the publisher fails. A failed poll pushes an
// error update and the subscription continues.
func (m *Monitor) Subscribe(ctx context.Context, id string, pub Publisher) error {
	metrics.SubscriptionStarted()
	defer metrics.SubscriptionEnded()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		e, err := m.poll(ctx, id)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			if m.logger != nil {
				m.logger.Warn("execution poll failed", "executionId", id, "error", err)
			}
			if perr := pub.Publish(ctx, Update{Type: UpdateError, ExecutionID: id, Error: err.Error()}); perr != nil {
				return perr
			}
		default:
			if perr := pub.Publish(ctx, Update{Type: UpdateExecution, ExecutionID: id, Data: e}); perr != nil {
				return perr
			}
			if e.Terminal() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) poll(ctx context.Context, id string) (*models.Execution, error) {
	ch := m.group.DoChan(id, func() (interface{}, error) {
		// The flight outlives the caller that started it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.fetchTimeout)
		defer cancel()
		return m.fetcher.GetExecution(fetchCtx, id, true)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		e, ok := res.Val.(*models.Execution)
		if !ok || e == nil {
			return nil, errors.New("empty execution response")
		}
		if res.Shared && m.logger != nil {
			m.logger.Debug("execution poll coalesced", "executionId", id)
		}
		return e, nil
	}
}
