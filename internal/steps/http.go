package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/shaiso/Cascade/internal/domain"
)

const (
	maxResponseBody = 10 * 1024 * 1024 // 10 MB
	maxErrorBody    = 1024
)

// Параметры HTTP шага.
const (
	paramMethod        = "method"
	paramURL           = "url"
	paramHeaders       = "headers"
	paramBody          = "body"
	paramAllowedStatus = "allowed_status"
)

// HTTPExecutor — исполнитель шага http.
//
// Параметры:
//
//	{
//	    "method": "POST",
//	    "url": "https://api.example.com/data",
//	    "headers": {"Authorization": "Bearer token"},
//	    "body": {"data": [1, 2, 3]},
//	    "timeout_seconds": 30,
//	    "allowed_status": [200, 201]
//	}
//
// Результат — HTTPResult; Body — распарсенный JSON или строка.
type HTTPExecutor struct {
	client *http.Client
}

// HTTPResult — результат успешного HTTP шага.
type HTTPResult struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       any               `json:"body"`
}

// NewHTTPExecutor создаёт HTTPExecutor.
// Таймаут задаётся контекстом, а не http.Client.
func NewHTTPExecutor() *HTTPExecutor {
	return &HTTPExecutor{client: &http.Client{}}
}

// NewHTTPExecutorWithClient создаёт HTTPExecutor с заданным клиентом.
func NewHTTPExecutorWithClient(client *http.Client) *HTTPExecutor {
	return &HTTPExecutor{client: client}
}

// Execute выполняет HTTP запрос.
func (e *HTTPExecutor) Execute(ctx context.Context, step *domain.Step) (any, error) {
	cfg, err := parseHTTPConfig(step)
	if err != nil {
		return nil, err
	}

	stepCtx, cancel := context.WithTimeoutCause(ctx, cfg.Timeout, ErrStepTimeout)
	defer cancel()

	req, err := buildRequest(stepCtx, cfg)
	if err != nil {
		return nil, configError(step, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if intErr := interruption(ctx, stepCtx, step, cfg.Timeout); intErr != nil {
			return nil, intErr
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrHTTPRequest, cfg.Method, cfg.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if intErr := interruption(ctx, stepCtx, step, cfg.Timeout); intErr != nil {
			return nil, intErr
		}
		return nil, fmt.Errorf("%w: read response body: %v", ErrHTTPRequest, err)
	}

	if !slices.Contains(cfg.AllowedStatus, resp.StatusCode) {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       truncate(string(body), maxErrorBody),
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return &HTTPResult{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       decodeBody(body),
	}, nil
}

// httpConfig — разобранные параметры HTTP шага.
type httpConfig struct {
	Method        string
	URL           string
	Headers       map[string]string
	Body          domain.Value
	HasBody       bool
	Timeout       time.Duration
	AllowedStatus []int
}

func parseHTTPConfig(step *domain.Step) (*httpConfig, error) {
	url, err := step.Params.String(paramURL)
	if err != nil {
		return nil, configError(step, err)
	}
	if url == "" {
		return nil, configError(step, fmt.Errorf("url is required"))
	}

	method, err := step.Params.StringOr(paramMethod, http.MethodGet)
	if err != nil {
		return nil, configError(step, err)
	}

	headers, err := step.Params.StringMap(paramHeaders)
	if err != nil {
		return nil, configError(step, err)
	}
	if headers == nil {
		headers = make(map[string]string)
	}

	timeout, err := stepTimeout(step)
	if err != nil {
		return nil, err
	}

	codes, err := step.Params.IntList(paramAllowedStatus)
	if err != nil {
		return nil, configError(step, err)
	}
	allowed := []int{http.StatusOK}
	if len(codes) > 0 {
		allowed = make([]int, len(codes))
		for i, c := range codes {
			allowed[i] = int(c)
		}
	}

	body, hasBody := step.Params.Get(paramBody)

	return &httpConfig{
		Method:        strings.ToUpper(method),
		URL:           url,
		Headers:       headers,
		Body:          body,
		HasBody:       hasBody,
		Timeout:       timeout,
		AllowedStatus: allowed,
	}, nil
}

func buildRequest(ctx context.Context, cfg *httpConfig) (*http.Request, error) {
	var bodyReader io.Reader

	if cfg.HasBody {
		var payload []byte
		if s, ok := cfg.Body.AsString(); ok {
			payload = []byte(s)
		} else {
			b, err := json.Marshal(cfg.Body)
			if err != nil {
				return nil, fmt.Errorf("serialize body: %w", err)
			}
			payload = b
			if _, ok := cfg.Headers["Content-Type"]; !ok {
				cfg.Headers["Content-Type"] = "application/json"
			}
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// decodeBody пытается распарсить тело как JSON; при неудаче возвращает строку.
func decodeBody(body []byte) any {
	if len(body) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}

// HTTPError — ответ с кодом, не входящим в allowed_status.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Status, e.Body)
}

// Is позволяет сравнивать с ErrUnexpectedStatus.
func (e *HTTPError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}
