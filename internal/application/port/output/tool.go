package output

import (
	"context"

	"agentloop/internal/domain/entity"
)

type ToolPort interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, input map[string]any) (any, error)
}

type ToolRegistry interface {
	Get(name string) (ToolPort, bool)
	All() []ToolPort
	Names() []string
	Definitions() []entity.ToolDefinition
}
