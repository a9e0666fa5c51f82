package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/orchestrator"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/steps"
	"github.com/shaiso/Cascade/internal/telemetry"
)

type testServer struct {
	mux     *http.ServeMux
	orch    *orchestrator.Orchestrator
	metrics *telemetry.Metrics
	release chan struct{}
}

// newTestServer поднимает API поверх memory-хранилища.
// http-шаг с параметром block ждёт закрытия release.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	release := make(chan struct{})

	registry := steps.NewRegistry()
	registry.Register(domain.StepKindHTTP, steps.ExecutorFunc(func(ctx context.Context, step *domain.Step) (any, error) {
		if block, _ := step.Params.BoolOr("block", false); block {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return map[string]any{"status": 200}, nil
	}))

	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	orch := orchestrator.New(orchestrator.Config{
		Storage:  repo.NewMemoryStorage(),
		Registry: registry,
		Metrics:  metrics,
		Logger:   logger,
	})
	t.Cleanup(orch.Stop)

	mux := http.NewServeMux()
	NewHandler(Config{Orchestrator: orch, Metrics: metrics, Logger: logger}).RegisterRoutes(mux)

	return &testServer{mux: mux, orch: orch, metrics: metrics, release: release}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var resp struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func workflowBody(name string, params map[string]any, stepParams map[string]any) map[string]any {
	sp := map[string]any{"url": "http://example.invalid/ping"}
	for k, v := range stepParams {
		sp[k] = v
	}
	body := map[string]any{
		"name": name,
		"kind": "standard",
		"steps": []map[string]any{
			{"id": "ping", "kind": "http", "params": sp},
		},
	}
	if params != nil {
		body["params"] = params
	}
	return body
}

func (s *testServer) createWorkflow(t *testing.T, body map[string]any) WorkflowResponse {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/v1/workflows", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create workflow: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decodeData[WorkflowResponse](t, rec)
}

func TestWorkflowCRUD(t *testing.T) {
	s := newTestServer(t)

	created := s.createWorkflow(t, workflowBody("sync-orders", map[string]any{"schedule": "*/5 * * * *"}, nil))
	if created.ID == uuid.Nil || created.Name != "sync-orders" {
		t.Fatalf("unexpected workflow: %+v", created)
	}
	if created.NextRunAt == nil {
		t.Error("expected next_run_at for scheduled workflow")
	}

	rec := s.do(t, http.MethodGet, "/api/v1/workflows/"+created.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	if got := decodeData[WorkflowResponse](t, rec); len(got.Steps) != 1 || got.Steps[0].ID != "ping" {
		t.Errorf("unexpected steps: %+v", got.Steps)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/workflows", nil)
	if list := decodeData[[]WorkflowSummary](t, rec); len(list) != 1 {
		t.Errorf("expected 1 workflow, got %d", len(list))
	}

	rec = s.do(t, http.MethodPut, "/api/v1/workflows/"+created.ID.String(), workflowBody("sync-orders-v2", nil, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeData[WorkflowResponse](t, rec); got.Name != "sync-orders-v2" || got.ID != created.ID {
		t.Errorf("unexpected updated workflow: %+v", got)
	}

	rec = s.do(t, http.MethodDelete, "/api/v1/workflows/"+created.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodDelete, "/api/v1/workflows/"+created.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestCreateWorkflow_ValidationReportsAllProblems(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows", map[string]any{"kind": "standard"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	detail := decodeError(t, rec)
	if detail.Code != ErrCodeValidationFailed {
		t.Errorf("expected VALIDATION_FAILED, got %s", detail.Code)
	}
	// Пустое имя и отсутствие шагов
	if len(detail.Details) < 2 {
		t.Errorf("expected all problems reported, got %v", detail.Details)
	}
}

func TestCreateWorkflow_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows", "{broken")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCreateWorkflow_EndpointConflict(t *testing.T) {
	s := newTestServer(t)

	s.createWorkflow(t, workflowBody("first", map[string]any{"endpoint": "/orders"}, nil))

	rec := s.do(t, http.MethodPost, "/api/v1/workflows", workflowBody("second", map[string]any{"endpoint": "/orders"}, nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestValidateWorkflow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/validate", workflowBody("ok", nil, nil))
	if got := decodeData[ValidateResponse](t, rec); !got.Valid {
		t.Errorf("expected valid workflow, got %+v", got)
	}

	invalid := workflowBody("bad", nil, nil)
	invalid["steps"] = []map[string]any{{"id": "x", "kind": "serial"}}
	rec = s.do(t, http.MethodPost, "/api/v1/workflows/validate", invalid)
	if got := decodeData[ValidateResponse](t, rec); got.Valid || len(got.Problems) == 0 {
		t.Errorf("expected problems, got %+v", got)
	}
}

func TestStartRun_Wait(t *testing.T) {
	s := newTestServer(t)
	wf := s.createWorkflow(t, workflowBody("wait", nil, nil))

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/runs?wait=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	run := decodeData[RunResponse](t, rec)
	if run.Run == nil || run.State != domain.StateCompleted {
		t.Fatalf("expected COMPLETED run, got %+v", run.Run)
	}
	if len(run.Steps) != 1 || run.Steps[0].State != domain.StateCompleted {
		t.Errorf("unexpected step outcomes: %+v", run.Steps)
	}

	// История содержит run
	rec = s.do(t, http.MethodGet, "/api/v1/workflows/"+wf.ID.String()+"/runs?limit=5", nil)
	history := decodeData[[]RunSummary](t, rec)
	if len(history) != 1 || history[0].ID != run.ID {
		t.Errorf("unexpected history: %+v", history)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/runs?workflow=wait", nil)
	if byName := decodeData[[]RunSummary](t, rec); len(byName) != 1 {
		t.Errorf("expected 1 run by name, got %d", len(byName))
	}
}

func TestStartRun_SubmitAndCancel(t *testing.T) {
	s := newTestServer(t)
	wf := s.createWorkflow(t, workflowBody("blocking", nil, map[string]any{"block": true}))

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/runs", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	run := decodeData[RunResponse](t, rec)

	rec = s.do(t, http.MethodPost, "/api/v1/runs/"+run.ID.String()+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	s.orch.Wait()

	rec = s.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String(), nil)
	got := decodeData[RunResponse](t, rec)
	if got.State != domain.StateCancelled {
		t.Errorf("expected CANCELLED, got %s", got.State)
	}

	// Повторная отмена завершённого run
	rec = s.do(t, http.MethodPost, "/api/v1/runs/"+run.ID.String()+"/cancel", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestRunErrors(t *testing.T) {
	s := newTestServer(t)
	unknown := uuid.New().String()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"get unknown run", http.MethodGet, "/api/v1/runs/" + unknown, http.StatusNotFound},
		{"cancel unknown run", http.MethodPost, "/api/v1/runs/" + unknown + "/cancel", http.StatusNotFound},
		{"start unknown workflow", http.MethodPost, "/api/v1/workflows/" + unknown + "/runs", http.StatusNotFound},
		{"bad run id", http.MethodGet, "/api/v1/runs/nope", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/v1/runs?workflow=x&limit=-1", http.StatusBadRequest},
		{"missing workflow name", http.MethodGet, "/api/v1/runs", http.StatusBadRequest},
		{"unknown hook", http.MethodPost, "/hooks/missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(t, tt.method, tt.path, nil); rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTriggerHook(t *testing.T) {
	s := newTestServer(t)
	wf := s.createWorkflow(t, workflowBody("hooked", map[string]any{"endpoint": "/orders/created"}, nil))

	rec := s.do(t, http.MethodPost, "/hooks/orders/created?wait=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	run := decodeData[RunResponse](t, rec)
	if run.WorkflowID != wf.ID || run.State != domain.StateCompleted {
		t.Errorf("unexpected run: %+v", run.Run)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodGet, "/api/v1/workflows", nil)
	s.do(t, http.MethodGet, "/api/v1/runs/"+uuid.New().String(), nil)

	if got := testutil.ToFloat64(s.metrics.HTTPRequests.WithLabelValues("GET", "200")); got != 1 {
		t.Errorf("expected 1 GET 200, got %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.HTTPRequests.WithLabelValues("GET", "404")); got != 1 {
		t.Errorf("expected 1 GET 404, got %v", got)
	}
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
