package input

import (
	"context"

	"agentloop/internal/domain/entity"
)

type RunResult struct {
	State       entity.AgentState
	FinalAnswer string
	Usage       entity.Usage
}

type AgentRunner interface {
	Run(ctx context.Context, text string) (*RunResult, error)
	RunTranscript(ctx context.Context, turns []entity.Turn) (*RunResult, error)
	Resume(ctx context.Context, state entity.AgentState) (*RunResult, error)
	Snapshot() entity.AgentState
}
