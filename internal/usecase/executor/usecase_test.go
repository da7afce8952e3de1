package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"agentloop/internal/application/port/output"
	"agentloop/internal/application/service"
	"agentloop/internal/domain/entity"
	"agentloop/internal/infrastructure/logger"
	"agentloop/internal/usecase/aggregator"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceStream struct {
	deltas []entity.Delta
	pos    int
}

func (s *sliceStream) Next() bool {
	if s.pos >= len(s.deltas) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Current() entity.Delta { return s.deltas[s.pos-1] }
func (s *sliceStream) Err() error            { return nil }
func (s *sliceStream) Close() error          { return nil }

type scriptedTransport struct {
	mu       sync.Mutex
	script   [][]entity.Delta
	calls    int
	requests []output.ModelRequest
	err      error
}

func (s *scriptedTransport) Name() string { return "scripted" }

func (s *scriptedTransport) Stream(ctx context.Context, req output.ModelRequest) (output.DeltaStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if s.calls >= len(s.script) {
		return nil, errors.New("script exhausted")
	}
	deltas := s.script[s.calls]
	s.calls++
	return &sliceStream{deltas: deltas}, nil
}

type call struct {
	id   string
	name string
	args string
}

func answer(text string) []entity.Delta {
	return []entity.Delta{
		{ID: "msg", Role: "assistant", Usage: &entity.Usage{InputTokens: 10}},
		{Content: []entity.Fragment{{Type: entity.FragmentText, Index: 0, Text: text}}},
		{StopReason: "end_turn", Usage: &entity.Usage{OutputTokens: 2}},
	}
}

func toolCalls(calls ...call) []entity.Delta {
	deltas := []entity.Delta{
		{ID: "msg", Role: "assistant", Usage: &entity.Usage{InputTokens: 10}},
		{Content: []entity.Fragment{{Type: entity.FragmentText, Index: 0, Text: "working on it"}}},
	}
	for i, c := range calls {
		deltas = append(deltas,
			entity.Delta{
				Content:  []entity.Fragment{{Type: entity.FragmentToolUse, Index: i + 1}},
				ToolCall: &entity.ToolCallStart{ID: c.id, Name: c.name},
			},
			entity.Delta{Content: []entity.Fragment{{Type: entity.FragmentInputJSON, Index: i + 1, Input: c.args}}},
		)
	}
	return append(deltas, entity.Delta{StopReason: "tool_use", Usage: &entity.Usage{OutputTokens: 5}})
}

type echoTool struct{}

func (echoTool) Name() string               { return "echo" }
func (echoTool) Description() string        { return "echoes its input" }
func (echoTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (echoTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	return map[string]any{"echo": input["value"]}, nil
}

type funcTool struct {
	name string
	fn   func(map[string]any) (any, error)
}

func (f funcTool) Name() string               { return f.name }
func (f funcTool) Description() string        { return f.name }
func (f funcTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (f funcTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	return f.fn(input)
}

func newRegistry(t *testing.T, tools ...output.ToolPort) output.ToolRegistry {
	t.Helper()
	registry, err := service.NewToolRegistry(append([]output.ToolPort{echoTool{}}, tools...)...)
	require.NoError(t, err)
	return registry
}

func pauseOn(kind entity.EventKind, nth int) output.Observer {
	seen := 0
	return output.ObserverFunc(func(ctx context.Context, event entity.Event) entity.Signal {
		if event.Kind != kind {
			return entity.SignalContinue
		}
		seen++
		if seen == nth {
			return entity.SignalPause
		}
		return entity.SignalContinue
	})
}

func countRole(turns []entity.Turn, role entity.Role) int {
	n := 0
	for _, t := range turns {
		if t.Role == role {
			n++
		}
	}
	return n
}

func TestRun_NoToolCallsCompletes(t *testing.T) {
	transport := &scriptedTransport{script: [][]entity.Delta{answer("42")}}
	uc := New(transport, newRegistry(t), logger.NewNop())

	result, err := uc.Run(context.Background(), "what is the answer?")
	require.NoError(t, err)

	assert.Equal(t, "42", result.FinalAnswer)
	assert.True(t, result.State.Completed)
	assert.Equal(t, entity.StatusCompleted, result.State.Status)
	assert.Equal(t, 1, result.State.Iteration)
	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, 0, countRole(result.State.Transcript, entity.RoleTool))
	require.NotNil(t, result.State.LastAssistantText)
	assert.Equal(t, "42", *result.State.LastAssistantText)
	assert.Equal(t, entity.Usage{InputTokens: 10, OutputTokens: 2}, result.Usage)
}

func TestRun_DispatchesToolsInOrder(t *testing.T) {
	transport := &scriptedTransport{script: [][]entity.Delta{
		toolCalls(call{"t1", "echo", `{"value":1}`}, call{"t2", "echo", `{"value":"two"}`}),
		answer("done"),
	}}
	uc := New(transport, newRegistry(t), logger.NewNop(), WithSystemPrompt("be brief"))

	result, err := uc.Run(context.Background(), "go")
	require.NoError(t, err)

	turns := result.State.Transcript
	require.Len(t, turns, 5)
	assert.Equal(t, []entity.Role{
		entity.RoleUser, entity.RoleAssistant, entity.RoleTool, entity.RoleTool, entity.RoleAssistant,
	}, []entity.Role{turns[0].Role, turns[1].Role, turns[2].Role, turns[3].Role, turns[4].Role})

	assert.Equal(t, "t1", turns[2].ToolCallID)
	assert.Equal(t, `{"echo":1}`, turns[2].Content)
	assert.Equal(t, "t2", turns[3].ToolCallID)
	assert.Equal(t, `{"echo":"two"}`, turns[3].Content)
	assert.Equal(t, "working on it\ndone", result.FinalAnswer)
	assert.Equal(t, 2, result.State.Iteration)
	assert.Equal(t, entity.Usage{InputTokens: 20, OutputTokens: 7}, result.Usage)

	require.Len(t, transport.requests, 2)
	assert.Equal(t, "be brief", transport.requests[0].System)
	assert.Len(t, transport.requests[0].Transcript, 1)
	assert.Len(t, transport.requests[1].Transcript, 4)
	require.Len(t, transport.requests[0].Tools, 1)
	assert.Equal(t, "echo", transport.requests[0].Tools[0].Name)
}

func TestRun_ToolFailureIsRecorded(t *testing.T) {
	failing := funcTool{name: "fail", fn: func(map[string]any) (any, error) {
		return nil, errors.New("disk full")
	}}
	panicking := funcTool{name: "explode", fn: func(map[string]any) (any, error) {
		panic("kaboom")
	}}
	transport := &scriptedTransport{script: [][]entity.Delta{
		toolCalls(call{"t1", "fail", `{}`}, call{"t2", "explode", ``}),
		answer("recovered"),
	}}
	uc := New(transport, newRegistry(t, failing, panicking), logger.NewNop())

	result, err := uc.Run(context.Background(), "go")
	require.NoError(t, err)

	turns := result.State.Transcript
	require.Len(t, turns, 5)
	assert.True(t, turns[2].IsError)
	assert.Equal(t, "tool fail failed: disk full", turns[2].Content)
	assert.True(t, turns[3].IsError)
	assert.Contains(t, turns[3].Content, "kaboom")
	assert.True(t, result.State.Completed)
}

func TestRun_ToolNotFoundIsFatal(t *testing.T) {
	transport := &scriptedTransport{script: [][]entity.Delta{
		toolCalls(call{"t1", "echo", `{}`}, call{"t2", "missing", `{}`}),
	}}
	uc := New(transport, newRegistry(t), logger.NewNop())

	_, err := uc.Run(context.Background(), "go")
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrToolNotFound)

	snapshot := uc.Snapshot()
	assert.False(t, snapshot.Completed)
	assert.Len(t, snapshot.Transcript, 3)
}

func TestRun_IterationLimitIsNotAnError(t *testing.T) {
	transport := &scriptedTransport{script: [][]entity.Delta{
		toolCalls(call{"t1", "echo", `{}`}),
		toolCalls(call{"t2", "echo", `{}`}),
		toolCalls(call{"t3", "echo", `{}`}),
	}}
	uc := New(transport, newRegistry(t), logger.NewNop(), WithMaxIterations(2))

	result, err := uc.Run(context.Background(), "loop forever")
	require.NoError(t, err)

	assert.False(t, result.State.Completed)
	assert.Equal(t, entity.StatusIterationLimit, result.State.Status)
	assert.Equal(t, 2, result.State.Iteration)
	assert.Equal(t, 2, transport.calls)
	assert.Equal(t, 2, countRole(result.State.Transcript, entity.RoleTool))
}

func TestRun_ProtocolViolationAborts(t *testing.T) {
	transport := &scriptedTransport{script: [][]entity.Delta{{
		{Content: []entity.Fragment{{Type: "image", Index: 0}}},
	}}}
	uc := New(transport, newRegistry(t), logger.NewNop())

	_, err := uc.Run(context.Background(), "go")
	require.Error(t, err)
	assert.ErrorIs(t, err, aggregator.ErrUnrecognizedContentType)
	assert.Len(t, uc.Snapshot().Transcript, 1)
}

func TestRun_TransportError(t *testing.T) {
	transport := &scriptedTransport{err: errors.New("401 unauthorized")}
	uc := New(transport, newRegistry(t), logger.NewNop())

	_, err := uc.Run(context.Background(), "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model request failed")
}

func TestRun_ObservationTruncated(t *testing.T) {
	big := funcTool{name: "big", fn: func(map[string]any) (any, error) {
		return strings.Repeat("x", 100), nil
	}}
	transport := &scriptedTransport{script: [][]entity.Delta{
		toolCalls(call{"t1", "big", `{}`}),
		answer("ok"),
	}}
	uc := New(transport, newRegistry(t, big), logger.NewNop(), WithObservationLimit(10))

	result, err := uc.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("x", 10)+"\n... (truncated)", result.State.Transcript[2].Content)
}

func TestRun_ObservationTruncatedOnRuneBoundary(t *testing.T) {
	accents := funcTool{name: "accents", fn: func(map[string]any) (any, error) {
		return strings.Repeat("é", 10), nil
	}}
	transport := &scriptedTransport{script: [][]entity.Delta{
		toolCalls(call{"t1", "accents", `{}`}),
		answer("ok"),
	}}
	uc := New(transport, newRegistry(t, accents), logger.NewNop(), WithObservationLimit(3))

	result, err := uc.Run(context.Background(), "go")
	require.NoError(t, err)

	content := result.State.Transcript[2].Content
	assert.True(t, utf8.ValidString(content), "content %q", content)
	assert.Equal(t, "é\n... (truncated)", content)
}

func TestRun_ContinuesConversation(t *testing.T) {
	transport := &scriptedTransport{script: [][]entity.Delta{answer("first"), answer("second")}}
	uc := New(transport, newRegistry(t), logger.NewNop())

	_, err := uc.Run(context.Background(), "one")
	require.NoError(t, err)
	result, err := uc.Run(context.Background(), "two")
	require.NoError(t, err)

	assert.Equal(t, "second", result.FinalAnswer)
	assert.Equal(t, 1, result.State.Iteration)
	assert.Len(t, result.State.Transcript, 4)
	assert.Equal(t, entity.Usage{InputTokens: 10, OutputTokens: 2}, result.Usage)
}

func TestRunTranscript_ReplacesTranscript(t *testing.T) {
	transport := &scriptedTransport{script: [][]entity.Delta{answer("fresh")}}
	uc := New(transport, newRegistry(t), logger.NewNop())

	turns := []entity.Turn{entity.NewSystemTurn("ctx"), entity.NewUserTurn("hi")}
	result, err := uc.RunTranscript(context.Background(), turns)
	require.NoError(t, err)

	assert.Len(t, result.State.Transcript, 3)
	assert.Equal(t, "fresh", result.FinalAnswer)
	assert.Len(t, turns, 2)
}

func TestRunTranscript_EndingInAnswerCallsModel(t *testing.T) {
	transport := &scriptedTransport{script: [][]entity.Delta{answer("new")}}
	uc := New(transport, newRegistry(t), logger.NewNop())

	turns := []entity.Turn{
		entity.NewUserTurn("hi"),
		entity.NewAssistantTurn([]entity.ContentBlock{entity.NewTextBlock("old")}),
	}
	result, err := uc.RunTranscript(context.Background(), turns)
	require.NoError(t, err)

	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, 1, result.State.Iteration)
	assert.Equal(t, entity.StatusCompleted, result.State.Status)
	assert.Len(t, result.State.Transcript, 3)
	assert.Equal(t, "old\nnew", result.FinalAnswer)
}

func TestRun_FailedModelCallIsNotCounted(t *testing.T) {
	transport := &scriptedTransport{script: [][]entity.Delta{toolCalls(call{"t1", "echo", `{"value":"x"}`})}}
	uc := New(transport, newRegistry(t), logger.NewNop())

	_, err := uc.Run(context.Background(), "go")
	require.Error(t, err)

	snapshot := uc.Snapshot()
	assert.Equal(t, 1, snapshot.Iteration)
	assert.Equal(t, entity.StatusInProgress, snapshot.Status)
	assert.Len(t, snapshot.Transcript, 3)

	transport.script = append(transport.script, answer("done"))
	result, err := New(transport, newRegistry(t), logger.NewNop()).Resume(context.Background(), snapshot)
	require.NoError(t, err)

	assert.Equal(t, 2, result.State.Iteration)
	assert.Equal(t, entity.StatusCompleted, result.State.Status)
	assert.Equal(t, "done", result.FinalAnswer)
}

func TestObserver_PauseAfterModelTurnSkipsModelOnResume(t *testing.T) {
	script := [][]entity.Delta{
		toolCalls(call{"t1", "echo", `{"value":1}`}),
		answer("done"),
	}

	reference, err := New(&scriptedTransport{script: script}, newRegistry(t), logger.NewNop()).
		Run(context.Background(), "go")
	require.NoError(t, err)

	transport := &scriptedTransport{script: script}
	paused, err := New(transport, newRegistry(t), logger.NewNop(), WithObserver(pauseOn(entity.EventModelTurn, 1))).
		Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, entity.StatusPaused, paused.State.Status)
	assert.False(t, paused.State.Completed)
	assert.Equal(t, 0, countRole(paused.State.Transcript, entity.RoleTool))
	assert.Equal(t, 1, transport.calls)

	resumed, err := New(transport, newRegistry(t), logger.NewNop()).Resume(context.Background(), paused.State)
	require.NoError(t, err)

	assert.Equal(t, 2, transport.calls)
	assert.Empty(t, cmp.Diff(reference.State.Transcript, resumed.State.Transcript))
	assert.Equal(t, reference.State.Iteration, resumed.State.Iteration)
	assert.Equal(t, entity.StatusCompleted, resumed.State.Status)
	assert.Equal(t, reference.FinalAnswer, resumed.FinalAnswer)
}

func TestObserver_InterruptAfterNthToolResult(t *testing.T) {
	script := [][]entity.Delta{
		toolCalls(
			call{"t1", "echo", `{"value":1}`},
			call{"t2", "echo", `{"value":2}`},
			call{"t3", "echo", `{"value":3}`},
		),
		answer("all done"),
	}

	reference, err := New(&scriptedTransport{script: script}, newRegistry(t), logger.NewNop()).
		Run(context.Background(), "go")
	require.NoError(t, err)

	for n := 1; n <= 3; n++ {
		t.Run(fmt.Sprintf("after %d", n), func(t *testing.T) {
			transport := &scriptedTransport{script: script}
			uc := New(transport, newRegistry(t), logger.NewNop(), WithObserver(pauseOn(entity.EventToolResult, n)))

			paused, err := uc.Run(context.Background(), "go")
			require.NoError(t, err)

			assert.Equal(t, n, countRole(paused.State.Transcript, entity.RoleTool))
			assert.False(t, paused.State.Completed)
			assert.Equal(t, entity.StatusPaused, paused.State.Status)
			assert.Equal(t, 1, transport.calls)

			resumed, err := New(transport, newRegistry(t), logger.NewNop()).Resume(context.Background(), paused.State)
			require.NoError(t, err)

			assert.Equal(t, 2, transport.calls)
			assert.Empty(t, cmp.Diff(reference.State.Transcript, resumed.State.Transcript))
			assert.Equal(t, reference.State.Iteration, resumed.State.Iteration)
			assert.True(t, resumed.State.Completed)
		})
	}
}

func TestObserver_ReceivesSnapshots(t *testing.T) {
	var kinds []entity.EventKind
	var sizes []int
	observer := output.ObserverFunc(func(ctx context.Context, event entity.Event) entity.Signal {
		kinds = append(kinds, event.Kind)
		sizes = append(sizes, len(event.State.Transcript))
		event.State.Transcript[0].Content = "tampered"
		return entity.SignalContinue
	})

	transport := &scriptedTransport{script: [][]entity.Delta{
		toolCalls(call{"t1", "echo", `{}`}),
		answer("ok"),
	}}
	uc := New(transport, newRegistry(t), logger.NewNop(), WithObserver(observer))

	result, err := uc.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, []entity.EventKind{entity.EventModelTurn, entity.EventToolResult, entity.EventModelTurn}, kinds)
	assert.Equal(t, []int{2, 3, 4}, sizes)
	assert.Equal(t, "go", result.State.Transcript[0].Content)
}

func TestObserver_StopIsTerminal(t *testing.T) {
	stop := output.ObserverFunc(func(ctx context.Context, event entity.Event) entity.Signal {
		return entity.SignalStop
	})
	transport := &scriptedTransport{script: [][]entity.Delta{toolCalls(call{"t1", "echo", `{}`})}}
	uc := New(transport, newRegistry(t), logger.NewNop(), WithObserver(stop))

	result, err := uc.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusStopped, result.State.Status)

	_, err = New(transport, newRegistry(t), logger.NewNop()).Resume(context.Background(), result.State)
	assert.ErrorIs(t, err, entity.ErrRunStopped)
}

func TestResume_CompletedStateReturnsImmediately(t *testing.T) {
	transport := &scriptedTransport{}
	state := entity.AgentState{
		Transcript: []entity.Turn{
			entity.NewUserTurn("q"),
			entity.NewAssistantTurn([]entity.ContentBlock{entity.NewTextBlock("a")}),
		},
		Completed: true,
		Iteration: 1,
	}

	result, err := New(transport, newRegistry(t), logger.NewNop()).Resume(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 0, transport.calls)
	assert.Equal(t, entity.StatusCompleted, result.State.Status)
	assert.Equal(t, "a", result.FinalAnswer)
}

func TestResume_FinalAnswerWithoutCompletedFlag(t *testing.T) {
	transport := &scriptedTransport{}
	state := entity.AgentState{
		Transcript: []entity.Turn{
			entity.NewUserTurn("q"),
			entity.NewAssistantTurn([]entity.ContentBlock{entity.NewTextBlock("a")}),
		},
		Iteration: 1,
		Status:    entity.StatusPaused,
	}

	result, err := New(transport, newRegistry(t), logger.NewNop()).Resume(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 0, transport.calls)
	assert.True(t, result.State.Completed)
	assert.Equal(t, 1, result.State.Iteration)
}

func TestResume_PendingDispatchRunsAtIterationLimit(t *testing.T) {
	transport := &scriptedTransport{}
	state := entity.AgentState{
		Transcript: []entity.Turn{
			entity.NewUserTurn("q"),
			entity.NewAssistantTurn([]entity.ContentBlock{
				entity.NewToolUseBlock("t1", "echo", map[string]any{"value": "x"}),
			}),
		},
		Iteration: 3,
		Status:    entity.StatusPaused,
	}

	result, err := New(transport, newRegistry(t), logger.NewNop(), WithMaxIterations(3)).
		Resume(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 0, transport.calls)
	assert.Equal(t, entity.StatusIterationLimit, result.State.Status)
	assert.Equal(t, 3, result.State.Iteration)
	require.Len(t, result.State.Transcript, 3)
	assert.Equal(t, `{"echo":"x"}`, result.State.Transcript[2].Content)
}

func TestResume_DoesNotAliasCallerState(t *testing.T) {
	transport := &scriptedTransport{script: [][]entity.Delta{answer("ok")}}
	state := entity.AgentState{
		Transcript: []entity.Turn{entity.NewUserTurn("q")},
		Status:     entity.StatusPaused,
	}

	_, err := New(transport, newRegistry(t), logger.NewNop()).Resume(context.Background(), state)
	require.NoError(t, err)

	assert.Len(t, state.Transcript, 1)
}

type blockingTransport struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingTransport) Name() string { return "blocking" }

func (b *blockingTransport) Stream(ctx context.Context, req output.ModelRequest) (output.DeltaStream, error) {
	close(b.started)
	<-b.release
	return &sliceStream{deltas: answer("late")}, nil
}

func TestRun_BusyWhileRunning(t *testing.T) {
	transport := &blockingTransport{started: make(chan struct{}), release: make(chan struct{})}
	uc := New(transport, newRegistry(t), logger.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := uc.Run(context.Background(), "first")
		done <- err
	}()

	<-transport.started
	_, err := uc.Run(context.Background(), "second")
	assert.ErrorIs(t, err, entity.ErrBusy)

	close(transport.release)
	require.NoError(t, <-done)
}

func TestRun_CanceledContextStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancelling := funcTool{name: "cancel", fn: func(map[string]any) (any, error) {
		cancel()
		return "ok", nil
	}}
	transport := &scriptedTransport{script: [][]entity.Delta{
		toolCalls(call{"t1", "cancel", `{}`}, call{"t2", "echo", `{}`}),
	}}
	uc := New(transport, newRegistry(t, cancelling), logger.NewNop())

	_, err := uc.Run(ctx, "go")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, countRole(uc.Snapshot().Transcript, entity.RoleTool))
}
