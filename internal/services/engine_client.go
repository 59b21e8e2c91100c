package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"n8n-mcp/backend/internal/metrics"
	"n8n-mcp/backend/pkg/models"
)

const (
	apiPrefix      = "/api/v1"
	apiKeyHeader   = "X-N8N-API-KEY"
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 32 << 20
	listPageSize   = 250
	maxListPages   = 40
)

var tracer = otel.Tracer("n8n-mcp/services")

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CallOption adjusts a single engine call.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
	headers map[string]string
}

// WithTimeout overrides the client's default timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHeader adds a request header to one call.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// ClientOption configures an HTTPEngineClient.
type ClientOption func(*HTTPEngineClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPEngineClient) { c.httpClient = hc }
}

// WithDefaultTimeout sets the timeout applied when a call does not override it.
func WithDefaultTimeout(d time.Duration) ClientOption {
	return func(c *HTTPEngineClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps outbound calls per second. Zero disables the limit.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *HTTPEngineClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger used for failed calls.
func WithLogger(l Logger) ClientOption {
	return func(c *HTTPEngineClient) { c.logger = l }
}

// HTTPEngineClient is an HTTP implementation of the EngineClient interface.
type HTTPEngineClient struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     Logger
}

// NewHTTPEngineClient creates a new HTTPEngineClient.
func NewHTTPEngineClient(baseURL, apiKey string, opts ...ClientOption) *HTTPEngineClient {
	c := &HTTPEngineClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the engine root URL.
func (c *HTTPEngineClient) BaseURL() string {
	return c.baseURL
}

// Call sends a request to <base>/api/v1<endpoint>. Any transport failure or
// non-2xx answer becomes an *UpstreamError. Calls are never retried.
func (c *HTTPEngineClient) Call(ctx context.Context, method, endpoint string, body interface{}, opts ...CallOption) (json.RawMessage, error) {
	o := callOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracer.Start(ctx, "n8n "+method)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("n8n.endpoint", endpoint),
	)

	fail := func(status int, msg string) error {
		err := &UpstreamError{Method: method, Endpoint: endpoint, StatusCode: status, Message: msg}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if c.logger != nil {
			c.logger.Error("n8n API error", "method", method, "endpoint", endpoint, "status", status, "error", msg)
		}
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fail(0, err.Error())
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		requestBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(requestBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstream(method, 0, time.Since(start))
		return nil, fail(0, err.Error())
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.RecordUpstream(method, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		return nil, fail(resp.StatusCode, "failed to read response body: "+err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(resp.StatusCode, upstreamMessage(payload))
	}

	if len(bytes.TrimSpace(payload)) == 0 {
		return json.RawMessage("null"), nil
	}
	return payload, nil
}

// Fetch calls an absolute URL, for example a workflow webhook.
func (c *HTTPEngineClient) Fetch(ctx context.Context, method, rawURL string, body interface{}) (*FetchResponse, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		requestBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(requestBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Method: method, Endpoint: rawURL, Message: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &UpstreamError{Method: method, Endpoint: rawURL, StatusCode: resp.StatusCode, Message: err.Error()}
	}
	out := &FetchResponse{StatusCode: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Body: payload}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &UpstreamError{Method: method, Endpoint: rawURL, StatusCode: resp.StatusCode, Message: upstreamMessage(payload)}
	}
	return out, nil
}

func (c *HTTPEngineClient) callInto(ctx context.Context, method, endpoint string, body, out interface{}) error {
	raw, err := c.Call(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, endpoint, err)
	}
	return nil
}

// ListWorkflows returns every workflow, following pagination cursors.
func (c *HTTPEngineClient) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	var all []*models.Workflow
	cursor := ""
	for page := 0; page < maxListPages; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(listPageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var list models.WorkflowList
		if err := c.callInto(ctx, http.MethodGet, "/workflows?"+q.Encode(), nil, &list); err != nil {
			return nil, err
		}
		all = append(all, list.Data...)
		if list.NextCursor == "" {
			break
		}
		cursor = list.NextCursor
	}
	if all == nil {
		all = []*models.Workflow{}
	}
	return all, nil
}

// GetWorkflow returns one workflow.
func (c *HTTPEngineClient) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	var w models.Workflow
	if err := c.callInto(ctx, http.MethodGet, workflowPath(id), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWorkflowDocument returns one workflow as an untyped document so fields
// the bridge does not model survive a round trip.
func (c *HTTPEngineClient) GetWorkflowDocument(ctx context.Context, id string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := c.callInto(ctx, http.MethodGet, workflowPath(id), nil, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("workflow %s: empty response", id)
	}
	return doc, nil
}

// CreateWorkflow creates a workflow from a document.
func (c *HTTPEngineClient) CreateWorkflow(ctx context.Context, doc interface{}) (*models.Workflow, error) {
	var w models.Workflow
	if err := c.callInto(ctx, http.MethodPost, "/workflows", doc, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateWorkflow replaces a workflow definition.
func (c *HTTPEngineClient) UpdateWorkflow(ctx context.Context, id string, doc interface{}) (*models.Workflow, error) {
	var w models.Workflow
	if err := c.callInto(ctx, http.MethodPut, workflowPath(id), doc, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// DeleteWorkflow deletes a workflow and returns the deleted definition.
func (c *HTTPEngineClient) DeleteWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	var w models.Workflow
	if err := c.callInto(ctx, http.MethodDelete, workflowPath(id), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ActivateWorkflow enables a workflow's triggers.
func (c *HTTPEngineClient) ActivateWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	var w models.Workflow
	if err := c.callInto(ctx, http.MethodPost, workflowPath(id)+"/activate", nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// DeactivateWorkflow disables a workflow's triggers.
func (c *HTTPEngineClient) DeactivateWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	var w models.Workflow
	if err := c.callInto(ctx, http.MethodPost, workflowPath(id)+"/deactivate", nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// SetWorkflowTags replaces a workflow's tags by name, creating missing tags.
func (c *HTTPEngineClient) SetWorkflowTags(ctx context.Context, id string, names []string) ([]models.Tag, error) {
	var existing struct {
		Data []models.Tag `json:"data"`
	}
	if err := c.callInto(ctx, http.MethodGet, "/tags?limit="+strconv.Itoa(listPageSize), nil, &existing); err != nil {
		return nil, err
	}
	byName := make(map[string]models.ID, len(existing.Data))
	for _, t := range existing.Data {
		byName[t.Name] = t.ID
	}

	refs := make([]map[string]string, 0, len(names))
	for _, name := range names {
		tagID, ok := byName[name]
		if !ok {
			var created models.Tag
			if err := c.callInto(ctx, http.MethodPost, "/tags", map[string]string{"name": name}, &created); err != nil {
				return nil, err
			}
			tagID = created.ID
			byName[name] = tagID
		}
		refs = append(refs, map[string]string{"id": tagID.String()})
	}

	var tags []models.Tag
	if err := c.callInto(ctx, http.MethodPut, workflowPath(id)+"/tags", refs, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// ExecuteWorkflow starts a run. Test mode uses the engine's test endpoint.
func (c *HTTPEngineClient) ExecuteWorkflow(ctx context.Context, id string, test bool, data map[string]interface{}) (*models.Execution, error) {
	endpoint := workflowPath(id) + "/execute"
	if test {
		endpoint = workflowPath(id) + "/test"
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	var e models.Execution
	if err := c.callInto(ctx, http.MethodPost, endpoint, map[string]interface{}{"data": data}, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExecutions returns one page of executions.
func (c *HTTPEngineClient) ListExecutions(ctx context.Context, query ExecutionQuery) (*models.ExecutionList, error) {
	q := url.Values{}
	if query.WorkflowID != "" {
		q.Set("workflowId", query.WorkflowID)
	}
	if query.Status != "" {
		q.Set("status", query.Status)
	}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.IncludeData {
		q.Set("includeData", "true")
	}
	endpoint := "/executions"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var list models.ExecutionList
	if err := c.callInto(ctx, http.MethodGet, endpoint, nil, &list); err != nil {
		return nil, err
	}
	if list.Data == nil {
		list.Data = []*models.Execution{}
	}
	return &list, nil
}

// GetExecution returns one execution snapshot.
func (c *HTTPEngineClient) GetExecution(ctx context.Context, id string, includeData bool) (*models.Execution, error) {
	endpoint := executionPath(id)
	if includeData {
		endpoint += "?includeData=true"
	}
	var e models.Execution
	if err := c.callInto(ctx, http.MethodGet, endpoint, nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// StopExecution stops a running execution.
func (c *HTTPEngineClient) StopExecution(ctx context.Context, id string) (*models.Execution, error) {
	var e models.Execution
	if err := c.callInto(ctx, http.MethodPost, executionPath(id)+"/stop", nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// RetryExecution reruns a failed execution. loadWorkflow selects the current
// workflow definition instead of the one saved with the execution.
func (c *HTTPEngineClient) RetryExecution(ctx context.Context, id string, loadWorkflow bool) (*models.Execution, error) {
	var e models.Execution
	body := map[string]bool{"loadWorkflow": loadWorkflow}
	if err := c.callInto(ctx, http.MethodPost, executionPath(id)+"/retry", body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListCredentials returns the stored credentials.
func (c *HTTPEngineClient) ListCredentials(ctx context.Context) ([]*models.Credential, error) {
	var list models.CredentialList
	if err := c.callInto(ctx, http.MethodGet, "/credentials?limit="+strconv.Itoa(listPageSize), nil, &list); err != nil {
		return nil, err
	}
	if list.Data == nil {
		list.Data = []*models.Credential{}
	}
	return list.Data, nil
}

// CreateCredential stores a new credential.
func (c *HTTPEngineClient) CreateCredential(ctx context.Context, name, credType string, data map[string]interface{}) (*models.Credential, error) {
	var cred models.Credential
	body := map[string]interface{}{"name": name, "type": credType, "data": data}
	if err := c.callInto(ctx, http.MethodPost, "/credentials", body, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func workflowPath(id string) string {
	return "/workflows/" + url.PathEscape(id)
}

func executionPath(id string) string {
	return "/executions/" + url.PathEscape(id)
}

// upstreamMessage extracts the engine's error message from a response body.
func upstreamMessage(payload []byte) string {
	if msg := gjson.GetBytes(payload, "message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	text := strings.TrimSpace(string(payload))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
