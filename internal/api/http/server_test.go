package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appExecution "github.com/Isydoria/lighton-workflow-generator/internal/application/execution"
	appWorkflow "github.com/Isydoria/lighton-workflow-generator/internal/application/workflow"
	"github.com/Isydoria/lighton-workflow-generator/internal/domain/execution"
	"github.com/Isydoria/lighton-workflow-generator/internal/domain/workflow"
	"github.com/Isydoria/lighton-workflow-generator/internal/infrastructure/memory"
	"github.com/Isydoria/lighton-workflow-generator/internal/paradigm"
	"github.com/Isydoria/lighton-workflow-generator/internal/sandbox"
)

const testScript = `fn execute_workflow(user_input)
	answer = search(user_input)
	return answer
end`

type stubGenerator struct {
	code string
	err  error
}

func (g *stubGenerator) Generate(context.Context, string, string) (string, error) {
	return g.code, g.err
}

// stubDocClient answers every operation with fixed values.
type stubDocClient struct{}

func (stubDocClient) UploadFile(_ context.Context, _ []byte, filename, _ string) (*paradigm.RemoteFile, error) {
	return &paradigm.RemoteFile{ID: 1, Filename: filename, Status: "uploading"}, nil
}
func (stubDocClient) WaitUntilReady(context.Context, int64) (string, error) { return "embedded", nil }
func (stubDocClient) GetFile(_ context.Context, id int64) (*paradigm.RemoteFile, error) {
	return &paradigm.RemoteFile{ID: id, Status: "embedded"}, nil
}
func (stubDocClient) Search(context.Context, string, []int64, string) (*paradigm.SearchResult, error) {
	return &paradigm.SearchResult{Answer: "the answer"}, nil
}
func (stubDocClient) AnalyzeWithPolling(context.Context, string, []int64) (string, error) {
	return "analysis", nil
}
func (stubDocClient) ChatCompletion(context.Context, string, string) (string, error) {
	return "chat", nil
}
func (stubDocClient) AskQuestion(context.Context, int64, string) (*paradigm.AskResult, error) {
	return &paradigm.AskResult{Answer: "asked"}, nil
}
func (stubDocClient) GetFileChunks(context.Context, int64) (*paradigm.ChunkSet, error) {
	return &paradigm.ChunkSet{}, nil
}
func (stubDocClient) FilterChunks(context.Context, string, []string, int) (*paradigm.ChunkSet, error) {
	return &paradigm.ChunkSet{}, nil
}
func (stubDocClient) QueryChunks(context.Context, string, string, int) (*paradigm.ChunkSet, error) {
	return &paradigm.ChunkSet{}, nil
}
func (stubDocClient) CleanupUploads(context.Context) int { return 0 }

func newTestServer(t *testing.T, gen *stubGenerator) http.Handler {
	t.Helper()
	logger := zerolog.Nop()
	wfRepo := memory.NewWorkflowStore()
	execRepo := memory.NewExecutionStore()

	workflowSvc := appWorkflow.NewService(wfRepo, gen, appExecution.OperationNames(), time.Hour, logger)
	runner := sandbox.NewRunner(time.Minute, logger)
	executionSvc := appExecution.NewService(wfRepo, execRepo, runner,
		func() appExecution.DocumentClient { return stubDocClient{} }, time.Hour, logger)

	return NewServer(workflowSvc, executionSvc, nil, []string{"*"}).Router()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func createWorkflow(t *testing.T, h http.Handler) workflow.Workflow {
	t.Helper()
	rr := doJSON(t, h, http.MethodPost, "/v1/workflows", map[string]string{
		"name":        "lookup",
		"description": "search the docs",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var wf workflow.Workflow
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &wf))
	return wf
}

func TestCreateWorkflow(t *testing.T) {
	h := newTestServer(t, &stubGenerator{code: testScript})
	wf := createWorkflow(t, h)
	assert.Equal(t, workflow.StatusReady, wf.Status)
	assert.Equal(t, testScript, wf.GeneratedCode)
}

func TestCreateWorkflow_MissingName(t *testing.T) {
	h := newTestServer(t, &stubGenerator{code: testScript})
	rr := doJSON(t, h, http.MethodPost, "/v1/workflows", map[string]string{"description": "d"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateWorkflow_UnknownFieldRejected(t *testing.T) {
	h := newTestServer(t, &stubGenerator{code: testScript})
	rr := doJSON(t, h, http.MethodPost, "/v1/workflows", map[string]string{
		"name": "n", "description": "d", "bogus": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	h := newTestServer(t, &stubGenerator{code: testScript})
	rr := doJSON(t, h, http.MethodGet, "/v1/workflows/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetWorkflow_BadID(t *testing.T) {
	h := newTestServer(t, &stubGenerator{code: testScript})
	rr := doJSON(t, h, http.MethodGet, "/v1/workflows/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteWorkflow(t *testing.T) {
	h := newTestServer(t, &stubGenerator{code: testScript})
	wf := createWorkflow(t, h)

	rr := doJSON(t, h, http.MethodDelete, "/v1/workflows/"+wf.WorkflowID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, h, http.MethodGet, "/v1/workflows/"+wf.WorkflowID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestExecuteWorkflow(t *testing.T) {
	h := newTestServer(t, &stubGenerator{code: testScript})
	wf := createWorkflow(t, h)

	rr := doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/workflows/%s/execute", wf.WorkflowID), map[string]interface{}{
		"user_input": "where is the total",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var rec execution.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, execution.StatusCompleted, rec.Status)
	assert.Equal(t, "the answer", rec.Result)

	// the record is retrievable afterwards
	rr = doJSON(t, h, http.MethodGet, "/v1/executions/"+rec.ExecutionID.String(), nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodGet, fmt.Sprintf("/v1/workflows/%s/executions", wf.WorkflowID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Executions []execution.Record `json:"executions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list.Executions, 1)
}

func TestExecuteWorkflow_NotReady(t *testing.T) {
	h := newTestServer(t, &stubGenerator{err: fmt.Errorf("model unavailable")})
	rr := doJSON(t, h, http.MethodPost, "/v1/workflows", map[string]string{
		"name": "broken", "description": "d",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var wf workflow.Workflow
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &wf))
	require.Equal(t, workflow.StatusFailed, wf.Status)

	rr = doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/workflows/%s/execute", wf.WorkflowID), map[string]interface{}{
		"user_input": "q",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestExecuteWorkflow_InvalidBase64(t *testing.T) {
	h := newTestServer(t, &stubGenerator{code: testScript})
	wf := createWorkflow(t, h)

	rr := doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/workflows/%s/execute", wf.WorkflowID), map[string]interface{}{
		"user_input": "q",
		"documents":  []map[string]string{{"filename": "a.txt", "content": "not base64!!!"}},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetExecution_NotFound(t *testing.T) {
	h := newTestServer(t, &stubGenerator{code: testScript})
	rr := doJSON(t, h, http.MethodGet, "/v1/executions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, &stubGenerator{code: testScript})
	rr := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
