package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"n8n-mcp/backend/internal/analytics"
	"n8n-mcp/backend/pkg/models"
)

// ListCredentialsRequest is the list_credentials input.
type ListCredentialsRequest struct {
	Type string `mapstructure:"type"`
}

// CredentialsResponse is the list_credentials result.
type CredentialsResponse struct {
	Credentials []*models.Credential `json:"credentials"`
	Count       int                  `json:"count"`
}

// ListCredentials lists stored credentials, optionally of one type.
func (s *ToolService) ListCredentials(ctx context.Context, req ListCredentialsRequest) (*CredentialsResponse, error) {
	all, err := s.engine.ListCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	out := make([]*models.Credential, 0, len(all))
	for _, c := range all {
		if req.Type == "" || strings.EqualFold(c.Type, req.Type) {
			out = append(out, c)
		}
	}
	return &CredentialsResponse{Credentials: out, Count: len(out)}, nil
}

// CreateCredentialRequest is the create_credential input.
type CreateCredentialRequest struct {
	Name string                 `mapstructure:"name"`
	Type string                 `mapstructure:"type"`
	Data map[string]interface{} `mapstructure:"data"`
}

// CredentialResponse is the result of create_credential and test_credential.
type CredentialResponse struct {
	Success      bool               `json:"success"`
	Message      string             `json:"message"`
	CredentialID string             `json:"credentialId"`
	Credential   *models.Credential `json:"credential,omitempty"`
}

// CreateCredential stores a new credential. The secret data is never echoed.
func (s *ToolService) CreateCredential(ctx context.Context, req CreateCredentialRequest) (*CredentialResponse, error) {
	c, err := s.engine.CreateCredential(ctx, req.Name, req.Type, req.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential %s: %w", req.Name, err)
	}
	return &CredentialResponse{
		Success:      true,
		Message:      fmt.Sprintf("Created credential: %s", c.Name),
		CredentialID: c.ID.String(),
		Credential:   c,
	}, nil
}

// TestCredentialRequest is the test_credential input.
type TestCredentialRequest struct {
	CredentialID string `mapstructure:"credentialId"`
}

// TestCredential checks that a credential exists on the engine. The engine
// API offers no connectivity test, so existence is what is verified.
func (s *ToolService) TestCredential(ctx context.Context, req TestCredentialRequest) (*CredentialResponse, error) {
	all, err := s.engine.ListCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	for _, c := range all {
		if c.ID.String() == req.CredentialID {
			return &CredentialResponse{
				Success:      true,
				Message:      fmt.Sprintf("Credential %s (%s) is configured", c.Name, c.Type),
				CredentialID: req.CredentialID,
				Credential:   c,
			}, nil
		}
	}
	return &CredentialResponse{
		Success:      false,
		Message:      "Credential not found",
		CredentialID: req.CredentialID,
	}, nil
}

// ListWebhooksRequest is the list_webhooks input.
type ListWebhooksRequest struct {
	WorkflowID string `mapstructure:"workflowId"`
}

// WebhooksResponse is the list_webhooks result.
type WebhooksResponse struct {
	Webhooks []analytics.Webhook `json:"webhooks"`
	Count    int                 `json:"count"`
}

// ListWebhooks lists the webhooks of one workflow, or of every active
// workflow when no id is given.
func (s *ToolService) ListWebhooks(ctx context.Context, req ListWebhooksRequest) (*WebhooksResponse, error) {
	var workflows []*models.Workflow
	if req.WorkflowID != "" {
		w, err := s.engine.GetWorkflow(ctx, req.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow %s: %w", req.WorkflowID, err)
		}
		workflows = []*models.Workflow{w}
	} else {
		all, err := s.engine.ListWorkflows(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list workflows: %w", err)
		}
		for _, w := range all {
			if w.Active {
				workflows = append(workflows, w)
			}
		}
	}
	s.remember(ctx, workflows...)

	hooks := []analytics.Webhook{}
	for _, w := range workflows {
		hooks = append(hooks, analytics.Webhooks(w, s.engine.BaseURL())...)
	}
	return &WebhooksResponse{Webhooks: hooks, Count: len(hooks)}, nil
}

// TestWebhookRequest is the test_webhook input.
type TestWebhookRequest struct {
	WebhookURL string                 `mapstructure:"webhookUrl"`
	TestData   map[string]interface{} `mapstructure:"testData"`
}

// WebhookTestResponse is the test_webhook result.
type WebhookTestResponse struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"statusCode"`
	Response   interface{} `json:"response"`
	Error      string      `json:"error,omitempty"`
}

// TestWebhook posts test data to a webhook URL. A non-2xx answer is reported
// in the result; only an unreachable URL is an error.
func (s *ToolService) TestWebhook(ctx context.Context, req TestWebhookRequest) (*WebhookTestResponse, error) {
	data := req.TestData
	if data == nil {
		data = map[string]interface{}{}
	}
	resp, err := s.engine.Fetch(ctx, http.MethodPost, req.WebhookURL, data)
	if resp == nil {
		return nil, fmt.Errorf("failed to call webhook: %w", err)
	}

	out := &WebhookTestResponse{Success: err == nil, StatusCode: resp.StatusCode}
	if err != nil {
		out.Error = err.Error()
	}
	var parsed interface{}
	if json.Unmarshal(resp.Body, &parsed) == nil {
		out.Response = parsed
	} else {
		out.Response = string(resp.Body)
	}
	return out, nil
}
