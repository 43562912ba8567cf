package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/dagflow/internal/domain"
	"github.com/shaiso/dagflow/internal/orchestrator"
	"github.com/shaiso/dagflow/internal/store"
	"github.com/shaiso/dagflow/internal/telemetry"
	"github.com/shaiso/dagflow/internal/trigger"
)

// --- Test helpers ---

type fakePersister struct {
	mu    sync.Mutex
	saved []string
}

func (p *fakePersister) Upsert(_ context.Context, def domain.WorkflowDefinition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, def.ID)
	return nil
}

type testEnv struct {
	server     *httptest.Server
	store      *store.DefinitionStore
	controller *orchestrator.Controller
	persister  *fakePersister
	gate       chan struct{}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	gate := make(chan struct{})
	executor := orchestrator.StepExecutorFunc(func(ctx context.Context, req domain.StepRequest) (any, error) {
		if req.Config["block"] == true {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return map[string]any{"step": req.StepID}, nil
	})

	st := store.New(store.Config{Logger: logger})
	ctrl := orchestrator.New(orchestrator.Config{
		Workflows: st,
		Executor:  executor,
		Metrics:   metrics,
		Logger:    logger,
	})
	persister := &fakePersister{}

	handler := NewHandler(Config{
		Workflows:      st,
		Executions:     ctrl,
		Persister:      persister,
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         logger,
	})

	server := httptest.NewServer(handler.Routes())

	env := &testEnv{
		server:     server,
		store:      st,
		controller: ctrl,
		persister:  persister,
		gate:       gate,
	}

	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ctrl.Shutdown(ctx)
	})

	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (e *testEnv) waitRunning(t *testing.T, id uuid.UUID) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		execution, err := e.controller.Status(id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if execution.Status == domain.ExecutionStatusRunning {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("execution %s never started running", id)
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()

	var envelope struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode response: %v (%s)", err, body)
	}
	return envelope.Data
}

func decodeError(t *testing.T, body []byte) ErrorDetail {
	t.Helper()

	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode error: %v (%s)", err, body)
	}
	return resp.Error
}

const seq2JSON = `{
  "id": "seq2",
  "steps": [
    {"id": "a"},
    {"id": "b", "depends_on": ["a"]}
  ],
  "variables": {"env": "dev"}
}`

// --- Workflow Tests ---

func TestRegisterAndGetWorkflow(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPut, "/api/v1/workflows/seq2", seq2JSON)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	def := decodeData[domain.WorkflowDefinition](t, body)
	if def.ID != "seq2" || len(def.Steps) != 2 {
		t.Errorf("unexpected definition: %+v", def)
	}
	if def.Steps[0].Kind != domain.StepKindAction {
		t.Errorf("kind should default to action, got %q", def.Steps[0].Kind)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/workflows/seq2", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/workflows", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	list := decodeData[[]WorkflowSummary](t, body)
	if len(list) != 1 || list[0].Steps != 2 {
		t.Errorf("unexpected list: %+v", list)
	}

	if len(env.persister.saved) != 1 || env.persister.saved[0] != "seq2" {
		t.Errorf("workflow should be persisted, got %v", env.persister.saved)
	}
}

func TestRegisterWorkflow_YAML(t *testing.T) {
	env := newTestEnv(t)

	yamlBody := `
steps:
  - id: fetch
  - id: report
    depends_on: [fetch]
`
	resp, body := env.do(t, http.MethodPut, "/api/v1/workflows/from-yaml", yamlBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	def := decodeData[domain.WorkflowDefinition](t, body)
	if def.ID != "from-yaml" {
		t.Errorf("id should be taken from path, got %q", def.ID)
	}
}

func TestRegisterWorkflow_ValidationError(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"no steps", "/api/v1/workflows/empty", `{"id": "empty", "steps": []}`},
		{"duplicate step", "/api/v1/workflows/dup", `{"steps": [{"id": "a"}, {"id": "a"}]}`},
		{"unknown kind", "/api/v1/workflows/kind", `{"steps": [{"id": "a", "kind": "magic"}]}`},
		{"empty body", "/api/v1/workflows/nothing", ""},
		{"invalid cron", "/api/v1/workflows/cron", `{"steps": [{"id": "a"}], "triggers": [{"type": "schedule", "config": {"cron": "every day"}}]}`},
		{"schedule without cron", "/api/v1/workflows/nocron", `{"steps": [{"id": "a"}], "triggers": [{"type": "schedule"}]}`},
		{"event without name", "/api/v1/workflows/noevent", `{"steps": [{"id": "a"}], "triggers": [{"type": "event", "config": {}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPut, tt.path, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
			}
			if code := decodeError(t, body).Code; code != ErrCodeValidation {
				t.Errorf("expected %s, got %s", ErrCodeValidation, code)
			}
		})
	}
}

func TestRegisterWorkflow_InvalidTriggerNotStored(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPut, "/api/v1/workflows/cron",
		`{"steps": [{"id": "a"}], "triggers": [{"type": "schedule", "config": {"cron": "61 * * * *"}}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	if _, err := env.store.Lookup(context.Background(), "cron"); err == nil {
		t.Error("workflow with invalid trigger must not be registered")
	}
	env.persister.mu.Lock()
	defer env.persister.mu.Unlock()
	if len(env.persister.saved) != 0 {
		t.Errorf("workflow with invalid trigger must not be persisted: %v", env.persister.saved)
	}
}

func TestRegisterWorkflow_SchedulesCronTrigger(t *testing.T) {
	env := newTestEnv(t)

	cron := trigger.NewCronScheduler(trigger.CronConfig{
		Starter:   env.controller,
		Workflows: env.store,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	cron.Sync()
	env.store.Subscribe(cron.OnRegister)

	resp, body := env.do(t, http.MethodPut, "/api/v1/workflows/nightly",
		`{"steps": [{"id": "a"}], "triggers": [{"type": "schedule", "config": {"cron": "0 3 * * *"}}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	next := cron.Scheduled()["nightly"]
	if len(next) != 1 {
		t.Fatalf("workflow registered after startup should be scheduled: %v", cron.Scheduled())
	}
	if next[0].UTC().Hour() != 3 {
		t.Errorf("unexpected next run %v", next[0])
	}

	// Замена определения меняет расписание
	resp, _ = env.do(t, http.MethodPut, "/api/v1/workflows/nightly",
		`{"steps": [{"id": "a"}], "triggers": [{"type": "schedule", "config": {"cron": "@hourly"}}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(cron.Scheduled()["nightly"]) != 1 {
		t.Errorf("replaced workflow should have exactly one schedule: %v", cron.Scheduled())
	}
}

func TestRegisterWorkflow_IDMismatch(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPut, "/api/v1/workflows/other", seq2JSON)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetWorkflow_NotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/workflows/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if code := decodeError(t, body).Code; code != ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %s", code)
	}
}

// --- Execution Tests ---

func TestStartExecution(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/api/v1/workflows/seq2", seq2JSON)

	resp, body := env.do(t, http.MethodPost, "/api/v1/workflows/seq2/executions",
		`{"variables": {"env": "prod"}}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}

	started := decodeData[ExecutionResponse](t, body)
	if started.WorkflowID != "seq2" || len(started.Steps) != 2 {
		t.Errorf("unexpected execution: %+v", started)
	}
	if started.Variables["env"] != "prod" {
		t.Errorf("caller variables should win, got %v", started.Variables)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := env.controller.Wait(ctx, started.ID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/executions/"+started.ID.String(), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	final := decodeData[ExecutionResponse](t, body)
	if final.Status != string(domain.ExecutionStatusCompleted) {
		t.Errorf("expected completed, got %s", final.Status)
	}
	for _, step := range final.Steps {
		if step.Status != string(domain.StepStatusCompleted) {
			t.Errorf("step %s: expected completed, got %s", step.StepID, step.Status)
		}
	}
}

func TestStartExecution_EmptyBody(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/api/v1/workflows/seq2", seq2JSON)

	resp, body := env.do(t, http.MethodPost, "/api/v1/workflows/seq2/executions", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
}

func TestStartExecution_UnknownWorkflow(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/workflows/ghost/executions", "{}")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStartExecution_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/api/v1/workflows/seq2", seq2JSON)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/workflows/seq2/executions", "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListExecutions_Filter(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/api/v1/workflows/seq2", seq2JSON)
	env.do(t, http.MethodPut, "/api/v1/workflows/single", `{"steps": [{"id": "only"}]}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, wf := range []string{"seq2", "seq2", "single"} {
		id, err := env.controller.Start(ctx, wf, nil)
		if err != nil {
			t.Fatalf("start %s: %v", wf, err)
		}
		env.controller.Wait(ctx, id)
	}

	_, body := env.do(t, http.MethodGet, "/api/v1/executions", "")
	if all := decodeData[[]ExecutionResponse](t, body); len(all) != 3 {
		t.Errorf("expected 3 executions, got %d", len(all))
	}

	_, body = env.do(t, http.MethodGet, "/api/v1/executions?workflow_id=seq2", "")
	if filtered := decodeData[[]ExecutionResponse](t, body); len(filtered) != 2 {
		t.Errorf("expected 2 seq2 executions, got %d", len(filtered))
	}

	_, body = env.do(t, http.MethodGet, "/api/v1/executions?status=failed", "")
	if failed := decodeData[[]ExecutionResponse](t, body); len(failed) != 0 {
		t.Errorf("expected no failed executions, got %d", len(failed))
	}
}

func TestCancelExecution(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/api/v1/workflows/blocking",
		`{"steps": [{"id": "wait", "config": {"block": true}}, {"id": "after", "depends_on": ["wait"]}]}`)

	_, body := env.do(t, http.MethodPost, "/api/v1/workflows/blocking/executions", "{}")
	started := decodeData[ExecutionResponse](t, body)
	env.waitRunning(t, started.ID)

	resp, body := env.do(t, http.MethodPost, "/api/v1/executions/"+started.ID.String()+"/cancel", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	cancelled := decodeData[ExecutionResponse](t, body)
	if cancelled.Status != string(domain.ExecutionStatusCancelled) {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}

	close(env.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := env.controller.Wait(ctx, started.ID)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if step, _ := final.Step("after"); step.Status != domain.StepStatusPending {
		t.Errorf("no step may start after cancel, got %s", step.Status)
	}

	// Повторная отмена завершённого execution — no-op
	resp, _ = env.do(t, http.MethodPost, "/api/v1/executions/"+started.ID.String()+"/cancel", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for repeated cancel, got %d", resp.StatusCode)
	}
}

func TestExecution_InvalidAndUnknownID(t *testing.T) {
	env := newTestEnv(t)

	// Не-UUID не может быть ID execution: 404, как для неизвестного
	resp, body := env.do(t, http.MethodGet, "/api/v1/executions/not-a-uuid", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if code := decodeError(t, body).Code; code != ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %s", code)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/v1/executions/not-a-uuid/cancel", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for cancel, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/executions/"+uuid.NewString(), "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/v1/executions/"+uuid.NewString()+"/cancel", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

// --- Health & Metrics Tests ---

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(body, []byte("ok")) {
		t.Errorf("unexpected healthz: %d %s", resp.StatusCode, body)
	}

	env.do(t, http.MethodGet, "/api/v1/workflows", "")

	resp, body = env.do(t, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `dagflow_http_requests_total{code="200",method="GET"}`) {
		t.Errorf("metrics should count API requests:\n%s", body)
	}
}

// --- Middleware Tests ---

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Chain(Recovery(logger), Logging(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if code := decodeError(t, rec.Body.Bytes()).Code; code != ErrCodeInternalError {
		t.Errorf("expected INTERNAL_ERROR, got %s", code)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(mark("first"), mark("second"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "first,second,handler" {
		t.Errorf("unexpected order: %v", order)
	}
}
