package entity

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolInvocation is a request from the model to run a tool. It is only ever
// derived from a finalized tool_use block.
type ToolInvocation struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

func (i ToolInvocation) Clone() ToolInvocation {
	out := i
	out.Input = CloneObject(i.Input)
	if out.Input == nil {
		out.Input = map[string]any{}
	}
	return out
}
