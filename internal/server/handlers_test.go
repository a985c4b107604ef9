package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrun-ai/agentrun/internal/event"
	"github.com/agentrun-ai/agentrun/internal/executor"
	"github.com/agentrun-ai/agentrun/internal/orchestrator"
	"github.com/agentrun-ai/agentrun/internal/provider"
	"github.com/agentrun-ai/agentrun/internal/storage"
	"github.com/agentrun-ai/agentrun/internal/store"
	"github.com/agentrun-ai/agentrun/internal/tool"
	"github.com/agentrun-ai/agentrun/pkg/types"
)

// scriptedAdapter plays back a fixed sequence of completions.
type scriptedAdapter struct {
	mu    sync.Mutex
	turns []*provider.CompletionResult
	calls int
}

func (a *scriptedAdapter) ID() string { return "fake" }

func (a *scriptedAdapter) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls >= len(a.turns) {
		return nil, fmt.Errorf("unexpected provider call %d", a.calls+1)
	}
	result := a.turns[a.calls]
	a.calls++
	return result, nil
}

func completionText(text string) *provider.CompletionResult {
	return &provider.CompletionResult{
		Texts:        []string{text},
		FinishReason: provider.FinishStop,
	}
}

func askUserCompletion(prompt string) *provider.CompletionResult {
	args, _ := json.Marshal(map[string]any{
		"questions": []map[string]string{{"prompt": prompt}},
	})
	return &provider.CompletionResult{
		ToolCalls: []provider.ToolCallSegment{
			{CallID: "call_ask", Name: tool.AskUserToolID, Arguments: args},
		},
		FinishReason: provider.FinishToolCalls,
	}
}

func newTestServer(t *testing.T, turns ...*provider.CompletionResult) (*Server, *orchestrator.Orchestrator) {
	t.Helper()

	st := store.New(storage.New(filepath.Join(t.TempDir(), "storage")))
	providers := provider.NewRegistry()
	providers.Register(&scriptedAdapter{turns: turns})
	tools := tool.DefaultRegistry()
	exec := executor.New(tools, executor.Options{})
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	orch := orchestrator.New(st, providers, tools, exec, bus, orchestrator.Options{
		DefaultProvider: "fake",
		DefaultModel:    "test-model",
		WorkspaceRoot:   t.TempDir(),
	})

	cfg := DefaultConfig()
	cfg.EnableCORS = false
	return New(cfg, orch, bus), orch
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	return resp.Error.Code
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestStartSession_InvalidRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/session", map[string]any{
		"agentKind": "mystery-kind",
		"prompt":    "hello",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeInvalidRequest, errorCode(t, rec))

	rec = doJSON(t, srv, http.MethodPost, "/session", map[string]any{
		"agentKind":  string(types.KindDatabaseReader),
		"kindConfig": map[string]any{},
		"prompt":     "hello",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewBufferString("{not json"))
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartAndGetSession(t *testing.T) {
	srv, orch := newTestServer(t, completionText("all done"))

	rec := doJSON(t, srv, http.MethodPost, "/session", map[string]any{
		"agentKind":  string(types.KindClarificationOnly),
		"kindConfig": map[string]any{},
		"prompt":     "hello",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created types.Session
	decodeBody(t, rec, &created)
	require.NotEmpty(t, created.ID)
	orch.Wait(created.ID)

	rec = doJSON(t, srv, http.MethodGet, "/session/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view orchestrator.SessionView
	decodeBody(t, rec, &view)
	assert.Equal(t, types.SessionCompleted, view.Session.Status)
	require.NotNil(t, view.Session.Result)
	assert.Equal(t, "all done", *view.Session.Result)
	assert.Len(t, view.Messages, 2)
}

func TestGetSession_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/session/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, errorCode(t, rec))
}

func TestQuestions_Conflicts(t *testing.T) {
	srv, orch := newTestServer(t, completionText("done"))

	rec := doJSON(t, srv, http.MethodPost, "/session", map[string]any{
		"agentKind":  string(types.KindClarificationOnly),
		"kindConfig": map[string]any{},
		"prompt":     "hello",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created types.Session
	decodeBody(t, rec, &created)
	orch.Wait(created.ID)

	// The session completed without asking anything.
	rec = doJSON(t, srv, http.MethodGet, "/session/"+created.ID+"/questions", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ErrCodeConflict, errorCode(t, rec))

	rec = doJSON(t, srv, http.MethodPost, "/session/"+created.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClarificationOverHTTP(t *testing.T) {
	srv, orch := newTestServer(t,
		askUserCompletion("Which database?"),
		completionText("Using the orders database."),
	)

	rec := doJSON(t, srv, http.MethodPost, "/session", map[string]any{
		"agentKind":  string(types.KindClarificationOnly),
		"kindConfig": map[string]any{},
		"prompt":     "run the report",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created types.Session
	decodeBody(t, rec, &created)
	orch.Wait(created.ID)

	rec = doJSON(t, srv, http.MethodGet, "/session/"+created.ID+"/questions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var qs struct {
		Questions []types.Question `json:"questions"`
	}
	decodeBody(t, rec, &qs)
	require.Len(t, qs.Questions, 1)
	assert.Equal(t, "Which database?", qs.Questions[0].Prompt)

	// Incomplete answers are a 400, not a conflict.
	rec = doJSON(t, srv, http.MethodPost, "/session/"+created.ID+"/answers", map[string]any{
		"answers": []map[string]string{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeInvalidRequest, errorCode(t, rec))

	rec = doJSON(t, srv, http.MethodPost, "/session/"+created.ID+"/answers", map[string]any{
		"answers": []map[string]string{
			{"questionID": qs.Questions[0].ID, "text": "orders"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	orch.Wait(created.ID)

	rec = doJSON(t, srv, http.MethodGet, "/session/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view orchestrator.SessionView
	decodeBody(t, rec, &view)
	assert.Equal(t, types.SessionCompleted, view.Session.Status)

	// A second submission hits a session that is no longer waiting.
	rec = doJSON(t, srv, http.MethodPost, "/session/"+created.ID+"/answers", map[string]any{
		"answers": []map[string]string{
			{"questionID": qs.Questions[0].ID, "text": "orders"},
		},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelOverHTTP(t *testing.T) {
	srv, orch := newTestServer(t, askUserCompletion("Anything?"))

	rec := doJSON(t, srv, http.MethodPost, "/session", map[string]any{
		"agentKind":  string(types.KindClarificationOnly),
		"kindConfig": map[string]any{},
		"prompt":     "wait for me",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created types.Session
	decodeBody(t, rec, &created)
	orch.Wait(created.ID)

	rec = doJSON(t, srv, http.MethodPost, "/session/"+created.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var ok map[string]bool
	decodeBody(t, rec, &ok)
	assert.True(t, ok["success"])

	rec = doJSON(t, srv, http.MethodGet, "/session/"+created.ID, nil)
	var view orchestrator.SessionView
	decodeBody(t, rec, &view)
	assert.Equal(t, types.SessionFailed, view.Session.Status)
}
