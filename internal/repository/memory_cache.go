package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"n8n-mcp/backend/pkg/models"
)

// MemoryCache is an in-process WorkflowCache with LRU eviction and a TTL.
type MemoryCache struct {
	lru *expirable.LRU[string, *models.Workflow]
}

// NewMemoryCache creates a MemoryCache holding at most size entries, each
// living at most ttl. A zero ttl disables expiry.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 256
	}
	return &MemoryCache{lru: expirable.NewLRU[string, *models.Workflow](size, nil, ttl)}
}

// Get returns a copy of the cached workflow.
func (c *MemoryCache) Get(_ context.Context, id string) (*models.Workflow, bool, error) {
	w, ok := c.lru.Get(id)
	if !ok {
		return nil, false, nil
	}
	clone, err := w.Clone()
	if err != nil {
		return nil, false, err
	}
	return clone, true, nil
}

// Put stores a copy of the workflow so later caller mutations do not leak in.
func (c *MemoryCache) Put(_ context.Context, workflow *models.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return errors.New("workflow cache: missing workflow id")
	}
	clone, err := workflow.Clone()
	if err != nil {
		return err
	}
	c.lru.Add(workflow.ID.String(), clone)
	return nil
}

// Delete removes a workflow.
func (c *MemoryCache) Delete(_ context.Context, id string) error {
	c.lru.Remove(id)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len(_ context.Context) (int, error) {
	return c.lru.Len(), nil
}
