package worker

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// HandlerHTTP — имя HTTP обработчика.
	HandlerHTTP = "http"

	// Значения по умолчанию.
	defaultHTTPTimeout  = 30 * time.Second
	maxResponseBody     = 10 * 1024 * 1024 // 10 MB
	maxErrorBody        = 1024
	maxIdleConnsPerHost = 8
	idleConnTimeout     = 90 * time.Second
)

// Ключи конфигурации HTTP обработчика.
const (
	configMethod          = "method"
	configURL             = "url"
	configHeaders         = "headers"
	configBody            = "body"
	configFollowRedirects = "follow_redirects"
	configValidateSSL     = "validate_ssl"
	configTimeoutSec      = "timeout_sec"
)

// HTTPHandler — обработчик HTTP запроса.
//
// Конфигурация:
//
//	{
//	    "handler": "http",
//	    "method": "POST",
//	    "url": "https://api.github.com/repos/{{ .vars.repo }}/issues",
//	    "headers": {"Authorization": "Bearer {{ .vars.token }}"},
//	    "body": {"title": "{{ .vars.title }}"},
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 30
//	}
//
// Outputs:
//
//	{
//	    "status_code": 201,
//	    "url": "https://api.github.com/repos/shaiso/dagflow/issues",
//	    "headers": {"Content-Type": "application/json", ...},
//	    "body": {...}  // parsed JSON or string
//	}
//
// Ответ 4xx/5xx считается ошибкой шага (*HTTPError).
//
// Соединения переиспользуются между шагами: у обработчика два общих
// Transport (с проверкой TLS и без), idle-соединения закрываются по
// idleConnTimeout или через Close.
type HTTPHandler struct {
	verified   *http.Transport
	unverified *http.Transport
}

// NewHTTPHandler создаёт новый HTTPHandler.
func NewHTTPHandler() *HTTPHandler {
	return &HTTPHandler{
		verified:   newTransport(true),
		unverified: newTransport(false),
	}
}

// newTransport создаёт Transport на основе http.DefaultTransport.
func newTransport(validateSSL bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = maxIdleConnsPerHost
	t.IdleConnTimeout = idleConnTimeout
	if !validateSSL {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return t
}

// Name возвращает имя обработчика.
func (h *HTTPHandler) Name() string {
	return HandlerHTTP
}

// Close закрывает idle-соединения обоих Transport.
func (h *HTTPHandler) Close() error {
	h.verified.CloseIdleConnections()
	h.unverified.CloseIdleConnections()
	return nil
}

// Execute выполняет HTTP запрос.
func (h *HTTPHandler) Execute(ctx context.Context, req *Request) (map[string]any, error) {
	call, err := newHTTPCall(req.Config)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, call.timeout(req.Timeout))
	defer cancel()

	httpReq, err := call.request(callCtx)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := h.client(call).Do(httpReq)
	if err != nil {
		// Отмена шага отличается от таймаута самого запроса
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s: timeout after %s", ErrHTTPRequest, call.method, call.url, call.timeout(req.Timeout))
		}
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer release(resp)

	return call.outputs(resp)
}

// client возвращает клиент поверх общего Transport.
// http.Client без состояния, поэтому создаётся на каждый вызов.
func (h *HTTPHandler) client(call *httpCall) *http.Client {
	transport := h.verified
	if !call.validateSSL {
		transport = h.unverified
	}

	client := &http.Client{Transport: transport}
	if !call.followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

// release дочитывает и закрывает тело ответа, чтобы соединение
// вернулось в пул Transport.
func release(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
	resp.Body.Close()
}

// httpCall — один HTTP вызов, собранный из конфигурации шага.
type httpCall struct {
	method          string
	url             string
	headers         http.Header
	body            any
	followRedirects bool
	validateSSL     bool
	timeoutSec      int
}

// newHTTPCall разбирает конфигурацию HTTP обработчика.
func newHTTPCall(config map[string]any) (*httpCall, error) {
	call := &httpCall{
		method:          strings.ToUpper(GetConfigString(config, configMethod)),
		url:             GetConfigString(config, configURL),
		headers:         make(http.Header),
		body:            config[configBody],
		followRedirects: GetConfigBool(config, configFollowRedirects, true),
		validateSSL:     GetConfigBool(config, configValidateSSL, true),
		timeoutSec:      GetConfigInt(config, configTimeoutSec),
	}

	if call.url == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, HandlerHTTP)
	}
	if call.method == "" {
		call.method = http.MethodGet
	}

	for key, value := range GetConfigMapString(config, configHeaders) {
		call.headers.Set(key, value)
	}

	return call, nil
}

// timeout возвращает таймаут запроса: timeout_sec (или значение по
// умолчанию), но не больше таймаута шага.
func (c *httpCall) timeout(stepTimeout time.Duration) time.Duration {
	timeout := defaultHTTPTimeout
	if c.timeoutSec > 0 {
		timeout = time.Duration(c.timeoutSec) * time.Second
	}
	if stepTimeout > 0 && stepTimeout < timeout {
		timeout = stepTimeout
	}
	return timeout
}

// request создаёт *http.Request. Body-объект кодируется в JSON,
// Content-Type по умолчанию — application/json.
func (c *httpCall) request(ctx context.Context) (*http.Request, error) {
	var payload io.Reader

	if c.body != nil {
		data, err := encodeBody(c.body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, c.url, payload)
	if err != nil {
		return nil, err
	}

	req.Header = c.headers.Clone()
	if c.body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// encodeBody превращает body из конфигурации в байты.
func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// outputs превращает ответ в outputs шага или *HTTPError для 4xx/5xx.
func (c *httpCall) outputs(resp *http.Response) (map[string]any, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       truncate(string(data), maxErrorBody),
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"url":         resp.Request.URL.String(),
		"headers":     headers,
		"body":        decodeBody(resp.Header.Get("Content-Type"), data),
	}, nil
}

// decodeBody разбирает JSON-ответ; всё остальное возвращается строкой.
func decodeBody(contentType string, data []byte) any {
	if !strings.Contains(contentType, "json") {
		return string(data)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// HTTPError — ответ сервера со статусом 4xx/5xx.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// Unwrap позволяет проверять errors.Is(err, ErrHTTPRequest).
func (e *HTTPError) Unwrap() error {
	return ErrHTTPRequest
}
