package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"agentloop/internal/adapter/tool"
	"agentloop/internal/application/port/input"
	"agentloop/internal/application/port/output"
	"agentloop/internal/application/service"
	"agentloop/internal/domain/entity"
	"agentloop/internal/infrastructure/llm/replay"
	"agentloop/internal/infrastructure/logger"
	"agentloop/internal/infrastructure/metrics"
	"agentloop/internal/infrastructure/snapshot"
	"agentloop/internal/usecase/executor"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func answer(text string) []entity.Delta {
	return []entity.Delta{
		{ID: "msg", Role: "assistant", Content: []entity.Fragment{{Type: entity.FragmentText, Index: 0, Text: text}}},
		{StopReason: "end_turn"},
	}
}

func jsonQueryCall(id string) []entity.Delta {
	return []entity.Delta{
		{
			ID:       "msg",
			Content:  []entity.Fragment{{Type: entity.FragmentToolUse, Index: 0}},
			ToolCall: &entity.ToolCallStart{ID: id, Name: "json_query"},
		},
		{Content: []entity.Fragment{{Type: entity.FragmentInputJSON, Index: 0, Input: `{"document":"{\"a\":1}","path":"a"}`}}},
		{StopReason: "tool_use"},
	}
}

type fixture struct {
	server  *httptest.Server
	pause   atomic.Bool
	metrics *metrics.Service
}

func newFixture(t *testing.T, responses ...[]entity.Delta) *fixture {
	t.Helper()

	log := logger.NewNop()
	registry, err := service.NewToolRegistry(tool.NewJSONQueryTool())
	require.NoError(t, err)

	store, err := snapshot.NewFileStore(afero.NewMemMapFs(), "/state")
	require.NoError(t, err)

	transport := replay.New(replay.Script{Responses: responses}, log)
	f := &fixture{metrics: metrics.NewService()}

	observer := output.ObserverFunc(func(ctx context.Context, event entity.Event) entity.Signal {
		if event.Kind == entity.EventModelTurn && f.pause.CompareAndSwap(true, false) {
			return entity.SignalPause
		}
		return entity.SignalContinue
	})

	newRunner := func() input.AgentRunner {
		return executor.New(transport, registry, log,
			executor.WithObserver(observer),
			executor.WithMetrics(f.metrics))
	}

	srv := NewServer(newRunner, registry, store, f.metrics.Handler(), log)
	f.server = httptest.NewServer(NewRouter(srv))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, string) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestHealthAndTools(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", gjson.Get(body, "status").String())

	status, body = f.do(t, http.MethodGet, "/tools", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "json_query", gjson.Get(body, "0.name").String())
}

func TestCreateRun_Completes(t *testing.T) {
	f := newFixture(t, jsonQueryCall("c1"), answer("a is 1"))

	status, body := f.do(t, http.MethodPost, "/runs", CreateRunRequest{Input: "what is a?"})
	require.Equal(t, http.StatusCreated, status, body)

	id := gjson.Get(body, "id").String()
	assert.NotEmpty(t, id)
	assert.Equal(t, "completed", gjson.Get(body, "status").String())
	assert.Equal(t, "a is 1", gjson.Get(body, "finalAnswer").String())
	assert.Equal(t, int64(4), gjson.Get(body, "state.transcript.#").Int())
	assert.Equal(t, "1", gjson.Get(body, "state.transcript.2.content").String())

	status, body = f.do(t, http.MethodGet, "/runs/"+id, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "a is 1", gjson.Get(body, "finalAnswer").String())

	status, body = f.do(t, http.MethodGet, "/runs", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, gjson.Get(body, "runs.0").String())

	status, body = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `agentloop_tool_calls_total{outcome="ok",tool="json_query"} 1`)
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t, jsonQueryCall("c1"), answer("done"))
	f.pause.Store(true)

	status, body := f.do(t, http.MethodPost, "/runs", CreateRunRequest{Input: "go"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "paused", gjson.Get(body, "status").String())
	assert.Equal(t, int64(2), gjson.Get(body, "state.transcript.#").Int())

	id := gjson.Get(body, "id").String()
	status, body = f.do(t, http.MethodPost, "/runs/"+id+"/resume", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "completed", gjson.Get(body, "status").String())
	assert.Equal(t, "done", gjson.Get(body, "finalAnswer").String())
	assert.Equal(t, int64(2), gjson.Get(body, "state.iteration").Int())
}

func TestCreateRun_ModelFailureKeepsSnapshot(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/runs", CreateRunRequest{Input: "hi"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, gjson.Get(body, "error").String(), "no more responses")

	id := gjson.Get(body, "id").String()
	status, body = f.do(t, http.MethodGet, "/runs/"+id, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hi", gjson.Get(body, "state.transcript.0.content").String())
}

func TestRequestErrors(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodPost, "/runs", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodGet, "/runs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPost, "/runs/unknown/resume", nil)
	assert.Equal(t, http.StatusNotFound, status)
}
