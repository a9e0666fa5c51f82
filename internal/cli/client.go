package cli

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

	"github.com/shaiso/Cascade/internal/domain"
)

// --- Типы ответов API ---

// WorkflowSummary — строка списка workflow.
type WorkflowSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Steps     int       `json:"steps"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Schedule  string    `json:"schedule,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowResponse — workflow из API.
type WorkflowResponse struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Kind      string        `json:"kind"`
	Params    domain.Params `json:"params,omitempty"`
	Steps     []domain.Step `json:"steps"`
	Endpoint  string        `json:"endpoint,omitempty"`
	Schedule  string        `json:"schedule,omitempty"`
	NextRunAt *time.Time    `json:"next_run_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ValidateResponse — результат проверки workflow.
type ValidateResponse struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// RunResponse — run с деревом результатов шагов.
type RunResponse struct {
	domain.Run
	DurationMS int64 `json:"duration_ms"`
}

// RunSummary — строка истории run.
type RunSummary struct {
	ID           string    `json:"id"`
	WorkflowID   string    `json:"workflow_id"`
	WorkflowName string    `json:"workflow_name"`
	State        string    `json:"state"`
	Error        string    `json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// APIError — ответ API с ошибкой.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    []string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	msg := e.Code + ": " + e.Message
	if len(e.Details) > 0 {
		msg += "\n  - " + strings.Join(e.Details, "\n  - ")
	}
	return msg
}

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент Cascade API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Синхронный запуск (--wait) длится столько же, сколько run
			Timeout: 0,
		},
	}
}

// --- Workflows ---

// ListWorkflows возвращает все workflow.
func (c *Client) ListWorkflows(ctx context.Context) ([]WorkflowSummary, error) {
	var workflows []WorkflowSummary
	err := c.doData(ctx, http.MethodGet, "/api/v1/workflows", nil, &workflows)
	return workflows, err
}

// CreateWorkflow создаёт workflow из JSON-определения.
func (c *Client) CreateWorkflow(ctx context.Context, definition json.RawMessage) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.doData(ctx, http.MethodPost, "/api/v1/workflows", definition, &wf)
	return &wf, err
}

// GetWorkflow возвращает workflow по ID.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.doData(ctx, http.MethodGet, "/api/v1/workflows/"+url.PathEscape(id), nil, &wf)
	return &wf, err
}

// DeleteWorkflow удаляет workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	return c.doData(ctx, http.MethodDelete, "/api/v1/workflows/"+url.PathEscape(id), nil, nil)
}

// ValidateWorkflow проверяет определение без сохранения.
func (c *Client) ValidateWorkflow(ctx context.Context, definition json.RawMessage) (*ValidateResponse, error) {
	var result ValidateResponse
	err := c.doData(ctx, http.MethodPost, "/api/v1/workflows/validate", definition, &result)
	return &result, err
}

// --- Runs ---

// StartRun запускает workflow. wait — дождаться финального состояния.
func (c *Client) StartRun(ctx context.Context, workflowID string, wait bool) (*RunResponse, error) {
	path := "/api/v1/workflows/" + url.PathEscape(workflowID) + "/runs"
	if wait {
		path += "?wait=true"
	}

	var run RunResponse
	err := c.doData(ctx, http.MethodPost, path, nil, &run)
	return &run, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(ctx context.Context, id string) (*RunResponse, error) {
	var run RunResponse
	err := c.doData(ctx, http.MethodGet, "/api/v1/runs/"+url.PathEscape(id), nil, &run)
	return &run, err
}

// CancelRun отменяет run.
func (c *Client) CancelRun(ctx context.Context, id string) error {
	return c.doData(ctx, http.MethodPost, "/api/v1/runs/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// History возвращает историю run workflow, новые первыми.
func (c *Client) History(ctx context.Context, workflowID string, limit int) ([]RunSummary, error) {
	path := "/api/v1/workflows/" + url.PathEscape(workflowID) + "/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var runs []RunSummary
	err := c.doData(ctx, http.MethodGet, path, nil, &runs)
	return runs, err
}

// --- HTTP helpers ---

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent || result == nil {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(dr.Data, result)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		bodyReader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: resp.Status}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       er.Error.Code,
		Message:    er.Error.Message,
		Details:    er.Error.Details,
	}
}
