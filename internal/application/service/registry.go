package service

import (
	"fmt"

	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"
)

var _ output.ToolRegistry = (*ToolRegistryImpl)(nil)

// ToolRegistryImpl is built once from a fixed tool list and never changes
// afterwards.
type ToolRegistryImpl struct {
	tools map[string]output.ToolPort
	order []string
}

func NewToolRegistry(tools ...output.ToolPort) (*ToolRegistryImpl, error) {
	r := &ToolRegistryImpl{
		tools: make(map[string]output.ToolPort, len(tools)),
		order: make([]string, 0, len(tools)),
	}

	for _, tool := range tools {
		name := tool.Name()
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("%w: %s", entity.ErrDuplicateTool, name)
		}
		r.tools[name] = tool
		r.order = append(r.order, name)
	}

	return r, nil
}

func (r *ToolRegistryImpl) Get(name string) (output.ToolPort, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

func (r *ToolRegistryImpl) All() []output.ToolPort {
	result := make([]output.ToolPort, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.tools[name])
	}
	return result
}

func (r *ToolRegistryImpl) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *ToolRegistryImpl) Definitions() []entity.ToolDefinition {
	result := make([]entity.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		result = append(result, entity.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  entity.CloneObject(tool.Parameters()),
		})
	}
	return result
}
