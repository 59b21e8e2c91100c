package repository

import (
	"context"

	"n8n-mcp/backend/pkg/models"
)

// WorkflowCache holds recently seen workflow snapshots keyed by workflow id.
// It is advisory only: the engine stays the source of truth and a miss or a
// stale entry never changes a tool's result.
type WorkflowCache interface {
	// Get returns a cached workflow. The bool is false on a miss or when the
	// entry has expired.
	Get(ctx context.Context, id string) (*models.Workflow, bool, error)
	// Put stores or replaces a workflow snapshot.
	Put(ctx context.Context, workflow *models.Workflow) error
	// Delete drops a workflow from the cache.
	Delete(ctx context.Context, id string) error
	// Len returns the number of live entries.
	Len(ctx context.Context) (int, error)
}
