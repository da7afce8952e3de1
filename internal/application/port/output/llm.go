package output

import (
	"context"

	"agentloop/internal/domain/entity"
)

type ModelRequest struct {
	System     string
	Transcript []entity.Turn
	Tools      []entity.ToolDefinition
}

// DeltaStream yields the deltas of one model response in arrival order.
type DeltaStream interface {
	Next() bool
	Current() entity.Delta
	Err() error
	Close() error
}

type ModelTransport interface {
	Name() string
	Stream(ctx context.Context, req ModelRequest) (DeltaStream, error)
}
