package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"n8n-mcp/backend/pkg/models"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS workflow_cache (
	id TEXT PRIMARY KEY,
	document JSONB NOT NULL,
	cached_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresCache is a PostgreSQL implementation of the WorkflowCache interface.
// Entries older than the TTL are treated as misses and removed lazily.
type PostgresCache struct {
	db  *pgxpool.Pool
	ttl time.Duration
	now func() time.Time
}

// NewPostgresCache creates a new PostgresCache. A zero ttl disables expiry.
func NewPostgresCache(db *pgxpool.Pool, ttl time.Duration) *PostgresCache {
	return &PostgresCache{db: db, ttl: ttl, now: time.Now}
}

// EnsureSchema creates the cache table when it does not exist.
func (c *PostgresCache) EnsureSchema(ctx context.Context) error {
	_, err := c.db.Exec(ctx, createTableSQL)
	return err
}

// Get retrieves a workflow by its ID.
func (c *PostgresCache) Get(ctx context.Context, id string) (*models.Workflow, bool, error) {
	var (
		document []byte
		cachedAt time.Time
	)
	err := c.db.QueryRow(ctx, "SELECT document, cached_at FROM workflow_cache WHERE id = $1", id).Scan(&document, &cachedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if c.ttl > 0 && c.now().Sub(cachedAt) > c.ttl {
		_, err := c.db.Exec(ctx, "DELETE FROM workflow_cache WHERE id = $1 AND cached_at = $2", id, cachedAt)
		return nil, false, err
	}

	var w models.Workflow
	if err := json.Unmarshal(document, &w); err != nil {
		return nil, false, err
	}
	return &w, true, nil
}

// Put upserts a workflow snapshot.
func (c *PostgresCache) Put(ctx context.Context, workflow *models.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return errors.New("workflow cache: missing workflow id")
	}
	document, err := json.Marshal(workflow)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(ctx,
		`INSERT INTO workflow_cache (id, document, cached_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, cached_at = EXCLUDED.cached_at`,
		workflow.ID.String(), document, c.now())
	return err
}

// Delete removes a workflow.
func (c *PostgresCache) Delete(ctx context.Context, id string) error {
	_, err := c.db.Exec(ctx, "DELETE FROM workflow_cache WHERE id = $1", id)
	return err
}

// Len counts the entries that have not expired.
func (c *PostgresCache) Len(ctx context.Context) (int, error) {
	var n int
	var err error
	if c.ttl > 0 {
		err = c.db.QueryRow(ctx, "SELECT count(*) FROM workflow_cache WHERE cached_at > $1", c.now().Add(-c.ttl)).Scan(&n)
	} else {
		err = c.db.QueryRow(ctx, "SELECT count(*) FROM workflow_cache").Scan(&n)
	}
	return n, err
}
