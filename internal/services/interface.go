package services

import (
	"context"
	"encoding/json"

	"n8n-mcp/backend/pkg/models"
)

// EngineClient is the typed surface of the remote workflow engine's REST API.
type EngineClient interface {
	// Call issues an authenticated request under the versioned API prefix and
	// returns the raw JSON body.
	Call(ctx context.Context, method, endpoint string, body interface{}, opts ...CallOption) (json.RawMessage, error)
	// Fetch issues an unauthenticated request to an absolute URL.
	Fetch(ctx context.Context, method, url string, body interface{}) (*FetchResponse, error)
	// BaseURL is the engine's configured root URL.
	BaseURL() string

	ListWorkflows(ctx context.Context) ([]*models.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	GetWorkflowDocument(ctx context.Context, id string) (map[string]interface{}, error)
	CreateWorkflow(ctx context.Context, doc interface{}) (*models.Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, doc interface{}) (*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	ActivateWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	DeactivateWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	SetWorkflowTags(ctx context.Context, id string, names []string) ([]models.Tag, error)
	ExecuteWorkflow(ctx context.Context, id string, test bool, data map[string]interface{}) (*models.Execution, error)

	ListExecutions(ctx context.Context, q ExecutionQuery) (*models.ExecutionList, error)
	GetExecution(ctx context.Context, id string, includeData bool) (*models.Execution, error)
	StopExecution(ctx context.Context, id string) (*models.Execution, error)
	RetryExecution(ctx context.Context, id string, loadWorkflow bool) (*models.Execution, error)

	ListCredentials(ctx context.Context) ([]*models.Credential, error)
	CreateCredential(ctx context.Context, name, credType string, data map[string]interface{}) (*models.Credential, error)
}

// ExecutionQuery filters an execution listing.
type ExecutionQuery struct {
	WorkflowID  string
	Status      string
	Limit       int
	IncludeData bool
}

// FetchResponse is the result of a raw Fetch.
type FetchResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}
