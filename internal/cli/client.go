package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkflowResponse — краткое описание workflow из API.
type WorkflowResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Steps       int      `json:"steps"`
	Triggers    []string `json:"triggers,omitempty"`
}

// WorkflowDefinition — полное определение workflow из API.
type WorkflowDefinition struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name,omitempty" yaml:"name,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []StepDefinition `json:"steps" yaml:"steps"`
	Variables   map[string]any   `json:"variables,omitempty" yaml:"variables,omitempty"`
	Triggers    []map[string]any `json:"triggers,omitempty" yaml:"triggers,omitempty"`
}

// StepDefinition — шаг в определении workflow.
type StepDefinition struct {
	ID         string         `json:"id" yaml:"id"`
	Name       string         `json:"name,omitempty" yaml:"name,omitempty"`
	Kind       string         `json:"kind,omitempty" yaml:"kind,omitempty"`
	DependsOn  []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Config     map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	TimeoutSec int            `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
}

// ExecutionResponse — execution из API.
type ExecutionResponse struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	Status      string         `json:"status"`
	StartedAt   string         `json:"started_at"`
	CompletedAt string         `json:"completed_at,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	Variables   map[string]any `json:"variables,omitempty"`
	Steps       []StepResponse `json:"steps"`
	Error       string         `json:"error,omitempty"`
	FailureKind string         `json:"failure_kind,omitempty"`
}

// IsTerminal возвращает true, если execution завершён.
func (e *ExecutionResponse) IsTerminal() bool {
	switch e.Status {
	case "completed", "failed", "cancelled":
		return true
	default:
		return false
	}
}

// StepResponse — состояние шага из API.
type StepResponse struct {
	StepID      string `json:"step_id"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	Output      any    `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
}

// --- Request types ---

// StartExecutionRequest — запуск execution.
type StartExecutionRequest struct {
	Variables map[string]any `json:"variables,omitempty"`
}

// ListExecutionsOpts — параметры фильтрации executions.
type ListExecutionsOpts struct {
	WorkflowID string
	Status     string
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для dagflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Workflows ---

// ListWorkflows возвращает все зарегистрированные workflows.
func (c *Client) ListWorkflows() ([]WorkflowResponse, error) {
	var workflows []WorkflowResponse
	err := c.list("/api/v1/workflows", nil, &workflows)
	return workflows, err
}

// GetWorkflow возвращает определение workflow по ID.
func (c *Client) GetWorkflow(id string) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	err := c.get("/api/v1/workflows/"+url.PathEscape(id), &def)
	return &def, err
}

// RegisterWorkflow регистрирует (или заменяет) workflow.
// Тело отправляется как есть; contentType — application/json или application/yaml.
func (c *Client) RegisterWorkflow(id string, body []byte, contentType string) (*WorkflowDefinition, error) {
	resp, err := c.doRaw(http.MethodPut, "/api/v1/workflows/"+url.PathEscape(id), bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var def WorkflowDefinition
	if err := c.decodeData(resp, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// --- Executions ---

// StartExecution запускает execution workflow.
func (c *Client) StartExecution(workflowID string, req StartExecutionRequest) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.post("/api/v1/workflows/"+url.PathEscape(workflowID)+"/executions", req, &exec)
	return &exec, err
}

// GetExecution возвращает execution по ID.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.get("/api/v1/executions/"+url.PathEscape(id), &exec)
	return &exec, err
}

// ListExecutions возвращает executions с фильтрацией.
func (c *Client) ListExecutions(opts ListExecutionsOpts) ([]ExecutionResponse, error) {
	params := url.Values{}
	if opts.WorkflowID != "" {
		params.Set("workflow_id", opts.WorkflowID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}

	var execs []ExecutionResponse
	err := c.list("/api/v1/executions", params, &execs)
	return execs, err
}

// CancelExecution отменяет execution.
func (c *Client) CancelExecution(id string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.post("/api/v1/executions/"+url.PathEscape(id)+"/cancel", nil, &exec)
	return &exec, err
}

// WaitExecution опрашивает execution, пока он не завершится или не истечёт timeout.
// timeout <= 0 — ждать без ограничения.
func (c *Client) WaitExecution(id string, interval, timeout time.Duration) (*ExecutionResponse, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		exec, err := c.GetExecution(id)
		if err != nil {
			return nil, err
		}
		if exec.IsTerminal() {
			return exec, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return exec, fmt.Errorf("execution %s still %s after %s", id, exec.Status, timeout)
		}
		time.Sleep(interval)
	}
}

// --- Health ---

// Health проверяет доступность API.
func (c *Client) Health() error {
	resp, err := c.do(http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.decodeData(resp, result)
}

func (c *Client) decodeData(resp *http.Response, result any) error {
	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	if body == nil {
		return c.doRaw(method, path, nil, "")
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.doRaw(method, path, bytes.NewReader(data), "application/json")
}

func (c *Client) doRaw(method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error.Code == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}

// contentTypeFor определяет Content-Type по расширению файла.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/json"
	}
}
