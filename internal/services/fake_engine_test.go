package services

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"n8n-mcp/backend/internal/monitor"
	"n8n-mcp/backend/pkg/models"
)

const testAPIKey = "test-key"

// fakeEngine is an in-memory stand-in for the engine's public REST API.
type fakeEngine struct {
	mu          sync.Mutex
	server      *httptest.Server
	workflows   map[string]map[string]interface{}
	order       []string
	executions  []*models.Execution
	credentials []*models.Credential
	tags        []models.Tag
	nextID      int
	calls       []string
	bodies      map[string][]byte
	failures    map[string]int
	// pending executions started by execute stay running until finished.
	pending bool
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	f := &fakeEngine{
		workflows: map[string]map[string]interface{}{},
		bodies:    map[string][]byte{},
		failures:  map[string]int{},
		nextID:    100,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/workflows", f.listWorkflows)
	mux.HandleFunc("POST /api/v1/workflows", f.createWorkflow)
	mux.HandleFunc("GET /api/v1/workflows/{id}", f.getWorkflow)
	mux.HandleFunc("PUT /api/v1/workflows/{id}", f.updateWorkflow)
	mux.HandleFunc("DELETE /api/v1/workflows/{id}", f.deleteWorkflow)
	mux.HandleFunc("POST /api/v1/workflows/{id}/activate", f.setActive(true))
	mux.HandleFunc("POST /api/v1/workflows/{id}/deactivate", f.setActive(false))
	mux.HandleFunc("PUT /api/v1/workflows/{id}/tags", f.putTags)
	mux.HandleFunc("POST /api/v1/workflows/{id}/execute", f.execute)
	mux.HandleFunc("POST /api/v1/workflows/{id}/test", f.execute)
	mux.HandleFunc("GET /api/v1/tags", f.listTags)
	mux.HandleFunc("POST /api/v1/tags", f.createTag)
	mux.HandleFunc("GET /api/v1/executions", f.listExecutions)
	mux.HandleFunc("GET /api/v1/executions/{id}", f.getExecution)
	mux.HandleFunc("POST /api/v1/executions/{id}/stop", f.stopExecution)
	mux.HandleFunc("POST /api/v1/executions/{id}/retry", f.retryExecution)
	mux.HandleFunc("GET /api/v1/credentials", f.listCredentials)
	mux.HandleFunc("POST /api/v1/credentials", f.createCredential)
	mux.HandleFunc("POST /webhook/{path}", f.webhook)
	mux.HandleFunc("GET /shared/workflow.json", f.sharedWorkflow)

	f.server = httptest.NewServer(f.record(mux))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeEngine) client() *HTTPEngineClient {
	return NewHTTPEngineClient(f.server.URL, testAPIKey)
}

// service returns a ToolService whose waiter polls the fake quickly.
func (f *fakeEngine) service(opts ...ServiceOption) *ToolService {
	c := f.client()
	waiter := monitor.New(c, monitor.WithPollInterval(5*time.Millisecond), monitor.WithMaxWait(200*time.Millisecond))
	return NewToolService(c, append([]ServiceOption{WithWaiter(waiter)}, opts...)...)
}

func (f *fakeEngine) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		f.calls = append(f.calls, key)
		if len(body) > 0 {
			f.bodies[key] = body
		}
		status, fail := f.failures[key]
		f.mu.Unlock()

		if strings.HasPrefix(r.URL.Path, "/api/") && r.Header.Get(apiKeyHeader) != testAPIKey {
			writeFake(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		if fail {
			writeFake(w, status, map[string]string{"message": "engine exploded"})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

// fail makes every request matching "METHOD /path" answer with status.
func (f *fakeEngine) fail(key string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key] = status
}

func (f *fakeEngine) called(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

func (f *fakeEngine) body(t *testing.T, key string) map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out map[string]interface{}
	if err := json.Unmarshal(f.bodies[key], &out); err != nil {
		t.Fatalf("no JSON body recorded for %s: %v", key, err)
	}
	return out
}

func (f *fakeEngine) newID() string {
	f.nextID++
	return strconv.Itoa(f.nextID)
}

func (f *fakeEngine) addWorkflow(doc map[string]interface{}) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := doc["id"].(string)
	if id == "" {
		id = f.newID()
		doc["id"] = id
	}
	if _, ok := doc["active"]; !ok {
		doc["active"] = false
	}
	f.workflows[id] = doc
	f.order = append(f.order, id)
	return id
}

func (f *fakeEngine) addExecution(e *models.Execution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions = append(f.executions, e)
}

func (f *fakeEngine) finish(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.executions {
		if e.ID.String() == id {
			now := time.Now().UTC()
			e.Finished = true
			e.Status = "success"
			e.StoppedAt = &now
		}
	}
}

func writeFake(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	writeFake(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

func decodeFake(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (f *fakeEngine) listWorkflows(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := make([]map[string]interface{}, 0, len(f.order))
	for _, id := range f.order {
		if doc, ok := f.workflows[id]; ok {
			data = append(data, doc)
		}
	}
	writeFake(w, http.StatusOK, map[string]interface{}{"data": data})
}

func (f *fakeEngine) getWorkflow(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.workflows[r.PathValue("id")]
	if !ok {
		notFound(w)
		return
	}
	writeFake(w, http.StatusOK, doc)
}

func (f *fakeEngine) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var doc map[string]interface{}
	if err := decodeFake(r, &doc); err != nil {
		writeFake(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	for _, field := range []string{"id", "active", "tags"} {
		if _, ok := doc[field]; ok {
			writeFake(w, http.StatusBadRequest, map[string]string{"message": "request/body/" + field + " is read-only"})
			return
		}
	}
	f.addWorkflow(doc)
	writeFake(w, http.StatusOK, doc)
}

func (f *fakeEngine) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := decodeFake(r, &body); err != nil {
		writeFake(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.workflows[r.PathValue("id")]
	if !ok {
		notFound(w)
		return
	}
	for k, v := range body {
		doc[k] = v
	}
	writeFake(w, http.StatusOK, doc)
}

func (f *fakeEngine) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("id")
	doc, ok := f.workflows[id]
	if !ok {
		notFound(w)
		return
	}
	delete(f.workflows, id)
	writeFake(w, http.StatusOK, doc)
}

func (f *fakeEngine) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		doc, ok := f.workflows[r.PathValue("id")]
		if !ok {
			notFound(w)
			return
		}
		doc["active"] = active
		writeFake(w, http.StatusOK, doc)
	}
}

func (f *fakeEngine) listTags(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeFake(w, http.StatusOK, map[string]interface{}{"data": f.tags})
}

func (f *fakeEngine) createTag(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	_ = decodeFake(r, &body)
	f.mu.Lock()
	defer f.mu.Unlock()
	tag := models.Tag{ID: models.ID("tag-" + f.newID()), Name: body.Name}
	f.tags = append(f.tags, tag)
	writeFake(w, http.StatusOK, tag)
}

func (f *fakeEngine) putTags(w http.ResponseWriter, r *http.Request) {
	var refs []struct {
		ID string `json:"id"`
	}
	if err := decodeFake(r, &refs); err != nil {
		writeFake(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.workflows[r.PathValue("id")]
	if !ok {
		notFound(w)
		return
	}
	applied := []models.Tag{}
	for _, ref := range refs {
		for _, t := range f.tags {
			if t.ID.String() == ref.ID {
				applied = append(applied, t)
			}
		}
	}
	doc["tags"] = applied
	writeFake(w, http.StatusOK, applied)
}

func (f *fakeEngine) execute(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wfID := r.PathValue("id")
	if _, ok := f.workflows[wfID]; !ok {
		notFound(w)
		return
	}
	start := time.Now().UTC().Add(-250 * time.Millisecond)
	e := &models.Execution{
		ID:         models.ID(f.newID()),
		WorkflowID: models.ID(wfID),
		Mode:       "manual",
		StartedAt:  &start,
		Status:     "running",
	}
	if !f.pending {
		stop := start.Add(250 * time.Millisecond)
		e.Finished = true
		e.Status = "success"
		e.StoppedAt = &stop
		e.Data = json.RawMessage(`{"resultData":{"lastNodeExecuted":"Reply"}}`)
	}
	f.executions = append(f.executions, e)
	writeFake(w, http.StatusOK, map[string]interface{}{"id": e.ID, "workflowId": wfID})
}

func (f *fakeEngine) listExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	includeData := q.Get("includeData") == "true"

	f.mu.Lock()
	defer f.mu.Unlock()
	data := []models.Execution{}
	for _, e := range f.executions {
		if wf := q.Get("workflowId"); wf != "" && e.WorkflowID.String() != wf {
			continue
		}
		if st := q.Get("status"); st != "" && e.Status != st {
			continue
		}
		copied := *e
		if !includeData {
			copied.Data = nil
		}
		data = append(data, copied)
		if limit > 0 && len(data) == limit {
			break
		}
	}
	writeFake(w, http.StatusOK, map[string]interface{}{"data": data})
}

func (f *fakeEngine) findExecution(id string) *models.Execution {
	for _, e := range f.executions {
		if e.ID.String() == id {
			return e
		}
	}
	return nil
}

func (f *fakeEngine) getExecution(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.findExecution(r.PathValue("id"))
	if e == nil {
		notFound(w)
		return
	}
	writeFake(w, http.StatusOK, e)
}

func (f *fakeEngine) stopExecution(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.findExecution(r.PathValue("id"))
	if e == nil {
		notFound(w)
		return
	}
	now := time.Now().UTC()
	e.StoppedAt = &now
	e.Status = "canceled"
	writeFake(w, http.StatusOK, e)
}

func (f *fakeEngine) retryExecution(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	orig := f.findExecution(r.PathValue("id"))
	if orig == nil {
		notFound(w)
		return
	}
	retry := &models.Execution{
		ID:         models.ID(f.newID()),
		WorkflowID: orig.WorkflowID,
		RetryOf:    orig.ID,
		Mode:       "retry",
		Status:     "running",
	}
	f.executions = append(f.executions, retry)
	writeFake(w, http.StatusOK, retry)
}

func (f *fakeEngine) listCredentials(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeFake(w, http.StatusOK, map[string]interface{}{"data": f.credentials})
}

func (f *fakeEngine) createCredential(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string                 `json:"name"`
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	if err := decodeFake(r, &body); err != nil || body.Data == nil {
		writeFake(w, http.StatusBadRequest, map[string]string{"message": "request/body must have required property 'data'"})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &models.Credential{ID: models.ID(f.newID()), Name: body.Name, Type: body.Type}
	f.credentials = append(f.credentials, c)
	writeFake(w, http.StatusOK, c)
}

func (f *fakeEngine) webhook(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("path") == "broken" {
		writeFake(w, http.StatusInternalServerError, map[string]string{"message": "Workflow could not be started"})
		return
	}
	var body interface{}
	_ = decodeFake(r, &body)
	writeFake(w, http.StatusOK, map[string]interface{}{"received": body})
}

func (f *fakeEngine) sharedWorkflow(w http.ResponseWriter, r *http.Request) {
	writeFake(w, http.StatusOK, map[string]interface{}{
		"name":        "Shared Flow",
		"nodes":       []interface{}{},
		"connections": map[string]interface{}{},
	})
}
