package executor

import (
	"context"
	"sync/atomic"
	"time"

	"agentloop/internal/application/port/input"
	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"
)

var _ input.AgentRunner = (*UseCase)(nil)

const (
	DefaultMaxIterations     = 10
	DefaultMaxObservationLen = 20000
)

type Option func(*UseCase)

func WithSystemPrompt(prompt string) Option {
	return func(uc *UseCase) {
		uc.systemPrompt = prompt
	}
}

func WithMaxIterations(n int) Option {
	return func(uc *UseCase) {
		if n > 0 {
			uc.maxIterations = n
		}
	}
}

func WithObserver(observer output.Observer) Option {
	return func(uc *UseCase) {
		uc.observer = observer
	}
}

func WithMetrics(metrics output.MetricsPort) Option {
	return func(uc *UseCase) {
		if metrics != nil {
			uc.metrics = metrics
		}
	}
}

// WithObservationLimit caps the size of a serialized tool result. Zero
// disables truncation.
func WithObservationLimit(n int) Option {
	return func(uc *UseCase) {
		uc.maxObservationLen = n
	}
}

// UseCase drives the model/tool loop for one conversation. The transcript is
// owned by the UseCase; callers only ever see copies.
type UseCase struct {
	transport output.ModelTransport
	tools     output.ToolRegistry
	logger    output.LoggerPort
	metrics   output.MetricsPort
	observer  output.Observer

	systemPrompt      string
	maxIterations     int
	maxObservationLen int

	running atomic.Bool
	state   entity.AgentState
	usage   entity.Usage
}

func New(
	transport output.ModelTransport,
	tools output.ToolRegistry,
	logger output.LoggerPort,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		transport:         transport,
		tools:             tools,
		logger:            logger,
		metrics:           nopMetrics{},
		maxIterations:     DefaultMaxIterations,
		maxObservationLen: DefaultMaxObservationLen,
		state:             entity.NewAgentState(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *UseCase) MaxIterations() int {
	return uc.maxIterations
}

// Run appends text as a new user turn and runs the loop with a fresh
// iteration budget.
func (uc *UseCase) Run(ctx context.Context, text string) (*input.RunResult, error) {
	if !uc.running.CompareAndSwap(false, true) {
		return nil, entity.ErrBusy
	}
	defer uc.running.Store(false)

	uc.state.Transcript = append(uc.state.Transcript, entity.NewUserTurn(text))
	uc.restart()
	return uc.loop(ctx)
}

// RunTranscript replaces the transcript and runs the loop with a fresh
// iteration budget.
func (uc *UseCase) RunTranscript(ctx context.Context, turns []entity.Turn) (*input.RunResult, error) {
	if !uc.running.CompareAndSwap(false, true) {
		return nil, entity.ErrBusy
	}
	defer uc.running.Store(false)

	uc.state.Transcript = entity.CloneTurns(turns)
	if uc.state.Transcript == nil {
		uc.state.Transcript = []entity.Turn{}
	}
	uc.restart()
	return uc.loop(ctx)
}

// Resume restores a snapshot and continues where it stopped. Tool calls the
// model already requested are dispatched before any new model call. A
// snapshot ending in an assistant answer is complete.
func (uc *UseCase) Resume(ctx context.Context, state entity.AgentState) (*input.RunResult, error) {
	if state.Status == entity.StatusStopped {
		return nil, entity.ErrRunStopped
	}
	if !uc.running.CompareAndSwap(false, true) {
		return nil, entity.ErrBusy
	}
	defer uc.running.Store(false)

	uc.state = state.Clone()
	uc.usage = entity.Usage{}

	if !uc.state.Completed && endsWithAnswer(uc.state.Transcript) {
		uc.state.Completed = true
	}
	if uc.state.Completed {
		uc.state.Status = entity.StatusCompleted
		return uc.result(), nil
	}

	uc.logger.Info("Resuming run", "iteration", uc.state.Iteration, "turns", len(uc.state.Transcript))
	uc.state.Status = entity.StatusInProgress
	return uc.loop(ctx)
}

// Snapshot returns a deep copy of the current state with the last assistant
// text recomputed from the transcript.
func (uc *UseCase) Snapshot() entity.AgentState {
	snapshot := uc.state.Clone()
	snapshot.LastAssistantText = entity.LastAssistantText(snapshot.Transcript)
	return snapshot
}

func (uc *UseCase) restart() {
	uc.state.Iteration = 0
	uc.state.Completed = false
	uc.state.Status = entity.StatusInProgress
	uc.usage = entity.Usage{}
}

func (uc *UseCase) result() *input.RunResult {
	state := uc.Snapshot()
	return &input.RunResult{
		State:       state,
		FinalAnswer: entity.FinalAnswer(state.Transcript),
		Usage:       uc.usage,
	}
}

type nopMetrics struct{}

func (nopMetrics) ObserveModelCall(string, time.Duration, entity.Usage, error) {}
func (nopMetrics) ObserveToolCall(string, time.Duration, bool)                  {}
func (nopMetrics) ObserveRun(entity.Status, int)                                {}
