package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

// --- Fake API ---

// fakeAPI — минимальная реализация dagflow API для тестов CLI.
type fakeAPI struct {
	mu          sync.Mutex
	registered  map[string]string // id → content-type
	lastBody    []byte
	lastVars    map[string]any
	polls       int
	pollsToDone int
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()

	api := &fakeAPI{registered: make(map[string]string), pollsToDone: 2}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/v1/workflows", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"id": "deploy", "name": "Deploy", "steps": 3, "triggers": []string{"event"}},
			},
			"total": 1,
		})
	})
	mux.HandleFunc("GET /api/v1/workflows/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "deploy" {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]string{"code": "NOT_FOUND", "message": "workflow not found"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"id": "deploy",
			"steps": []map[string]any{
				{"id": "build", "kind": "action"},
				{"id": "ship", "kind": "action", "depends_on": []string{"build"}, "timeout_sec": 60},
			},
		}})
	})
	mux.HandleFunc("PUT /api/v1/workflows/{id}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		api.mu.Lock()
		api.registered[r.PathValue("id")] = r.Header.Get("Content-Type")
		api.lastBody = body
		api.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"id":    r.PathValue("id"),
			"steps": []map[string]any{{"id": "a"}},
		}})
	})
	mux.HandleFunc("POST /api/v1/workflows/{id}/executions", func(w http.ResponseWriter, r *http.Request) {
		var req StartExecutionRequest
		json.NewDecoder(r.Body).Decode(&req)
		api.mu.Lock()
		api.lastVars = req.Variables
		api.mu.Unlock()
		writeJSON(w, http.StatusAccepted, map[string]any{"data": map[string]any{
			"id": "exec-1", "workflow_id": r.PathValue("id"), "status": "pending",
		}})
	})
	mux.HandleFunc("GET /api/v1/executions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"id": "exec-1", "workflow_id": r.URL.Query().Get("workflow_id"), "status": "completed", "duration_ms": 1500},
			},
			"total": 1,
		})
	})
	mux.HandleFunc("GET /api/v1/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.polls++
		status := "running"
		if api.polls >= api.pollsToDone {
			status = "completed"
		}
		api.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"id": r.PathValue("id"), "workflow_id": "deploy", "status": status,
			"steps": []map[string]any{{"step_id": "build", "status": "completed"}},
		}})
	})
	mux.HandleFunc("POST /api/v1/executions/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"id": r.PathValue("id"), "workflow_id": "deploy", "status": "cancelled",
		}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api, srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// runCmd выполняет команду и возвращает stdout и stderr.
func runCmd(t *testing.T, srv *httptest.Server, jsonMode bool, build func(func() *Client, func() *Output) *cobra.Command, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	clientFn := func() *Client { return NewClient(srv.URL) }
	outputFn := func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) }

	cmd := build(clientFn, outputFn)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// --- Client Tests ---

func TestClient_ErrorResponse(t *testing.T) {
	_, srv := newFakeAPI(t)
	client := NewClient(srv.URL + "/")

	_, err := client.GetWorkflow("missing")
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND error, got %v", err)
	}
}

func TestClient_Health(t *testing.T) {
	_, srv := newFakeAPI(t)

	if err := NewClient(srv.URL).Health(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClient_WaitExecution(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.pollsToDone = 3

	exec, err := NewClient(srv.URL).WaitExecution("exec-1", time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Status != "completed" {
		t.Errorf("expected completed, got %s", exec.Status)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.polls != 3 {
		t.Errorf("expected 3 polls, got %d", api.polls)
	}
}

func TestClient_WaitExecutionTimeout(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.pollsToDone = 1 << 30

	_, err := NewClient(srv.URL).WaitExecution("exec-1", time.Millisecond, 20*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "still running") {
		t.Errorf("expected timeout error, got %v", err)
	}
}

// --- Workflow Command Tests ---

func TestWorkflowList(t *testing.T) {
	_, srv := newFakeAPI(t)

	stdout, _, err := runCmd(t, srv, false, NewWorkflowCmd, "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "deploy") || !strings.Contains(stdout, "TRIGGERS") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

func TestWorkflowShow(t *testing.T) {
	_, srv := newFakeAPI(t)

	stdout, _, err := runCmd(t, srv, false, NewWorkflowCmd, "show", "deploy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "ship") || !strings.Contains(stdout, "60s") {
		t.Errorf("unexpected output:\n%s", stdout)
	}

	stdout, _, err = runCmd(t, srv, false, NewWorkflowCmd, "show", "deploy", "--yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "depends_on:") {
		t.Errorf("expected yaml output:\n%s", stdout)
	}
}

func TestWorkflowRegister(t *testing.T) {
	api, srv := newFakeAPI(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	os.WriteFile(path, []byte("id: pipeline\nsteps:\n  - id: a\n"), 0o644)

	_, stderr, err := runCmd(t, srv, false, NewWorkflowCmd, "register", "--file", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "Workflow registered: pipeline") {
		t.Errorf("unexpected stderr: %s", stderr)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.registered["pipeline"] != "application/yaml" {
		t.Errorf("expected yaml content type, got %q", api.registered["pipeline"])
	}
	if !bytes.Contains(api.lastBody, []byte("steps:")) {
		t.Error("body should be sent as is")
	}
}

func TestWorkflowRegister_ExplicitID(t *testing.T) {
	api, srv := newFakeAPI(t)

	path := filepath.Join(t.TempDir(), "wf.json")
	os.WriteFile(path, []byte(`{"steps":[{"id":"a"}]}`), 0o644)

	if _, _, err := runCmd(t, srv, false, NewWorkflowCmd, "register", "custom", "-f", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.registered["custom"] != "application/json" {
		t.Errorf("expected json content type, got %q", api.registered["custom"])
	}
}

func TestWorkflowRegister_NoID(t *testing.T) {
	_, srv := newFakeAPI(t)

	path := filepath.Join(t.TempDir(), "wf.yaml")
	os.WriteFile(path, []byte("steps: []\n"), 0o644)

	_, _, err := runCmd(t, srv, false, NewWorkflowCmd, "register", "--file", path)
	if err == nil || !strings.Contains(err.Error(), "no id") {
		t.Errorf("expected missing id error, got %v", err)
	}
}

// --- Execution Command Tests ---

func TestExecutionStart(t *testing.T) {
	api, srv := newFakeAPI(t)

	_, stderr, err := runCmd(t, srv, false, NewExecutionCmd,
		"start", "deploy", "--var", "env=prod", "--var", "replicas=3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "Execution started: exec-1") {
		t.Errorf("unexpected stderr: %s", stderr)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.lastVars["env"] != "prod" || api.lastVars["replicas"] != float64(3) {
		t.Errorf("unexpected variables: %v", api.lastVars)
	}
}

func TestExecutionStart_Wait(t *testing.T) {
	_, srv := newFakeAPI(t)

	stdout, _, err := runCmd(t, srv, true, NewExecutionCmd,
		"start", "deploy", "--wait", "--poll-interval", "1ms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var exec ExecutionResponse
	if err := json.Unmarshal([]byte(stdout), &exec); err != nil {
		t.Fatalf("expected json output: %v\n%s", err, stdout)
	}
	if exec.Status != "completed" {
		t.Errorf("expected completed, got %s", exec.Status)
	}
}

func TestExecutionList(t *testing.T) {
	_, srv := newFakeAPI(t)

	stdout, _, err := runCmd(t, srv, false, NewExecutionCmd, "list", "--workflow", "deploy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "exec-1") || !strings.Contains(stdout, "1.5s") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

func TestExecutionShow(t *testing.T) {
	_, srv := newFakeAPI(t)

	stdout, _, err := runCmd(t, srv, false, NewExecutionCmd, "show", "exec-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "STEP") || !strings.Contains(stdout, "build") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

func TestExecutionCancel(t *testing.T) {
	_, srv := newFakeAPI(t)

	_, stderr, err := runCmd(t, srv, false, NewExecutionCmd, "cancel", "exec-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "cancelled") {
		t.Errorf("unexpected stderr: %s", stderr)
	}
}

// --- Helper Tests ---

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"name=web", "count=2", "debug=true", `tags=["a","b"]`, "empty="})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vars["name"] != "web" || vars["count"] != float64(2) || vars["debug"] != true || vars["empty"] != "" {
		t.Errorf("unexpected vars: %v", vars)
	}
	if tags, ok := vars["tags"].([]any); !ok || len(tags) != 2 {
		t.Errorf("tags should decode as array: %v", vars["tags"])
	}

	if _, err := parseVars([]string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
	if vars, _ := parseVars(nil); vars != nil {
		t.Error("nil input should give nil map")
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.yaml": "application/yaml",
		"a.YML":  "application/yaml",
		"a.json": "application/json",
		"a":      "application/json",
	}
	for path, want := range tests {
		if got := contentTypeFor(path); got != want {
			t.Errorf("%s: expected %s, got %s", path, want, got)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(250); got != "250ms" {
		t.Errorf("expected 250ms, got %s", got)
	}
	if got := formatDuration(1500); got != "1.5s" {
		t.Errorf("expected 1.5s, got %s", got)
	}
}
