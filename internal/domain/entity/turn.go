package entity

import "strings"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one entry of a conversation transcript. User and system turns use
// Content, assistant turns use Blocks, tool turns reference the invocation
// they answer through ToolCallID.
type Turn struct {
	Role       Role           `json:"role"`
	Content    string         `json:"content,omitempty"`
	Blocks     []ContentBlock `json:"blocks,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	Name       string         `json:"name,omitempty"`
	IsError    bool           `json:"isError,omitempty"`
}

func NewUserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

func NewSystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

func NewAssistantTurn(blocks []ContentBlock) Turn {
	return Turn{Role: RoleAssistant, Blocks: CloneBlocks(blocks)}
}

func NewToolTurn(toolCallID, name, content string, isError bool) Turn {
	return Turn{
		Role:       RoleTool,
		ToolCallID: toolCallID,
		Name:       name,
		Content:    content,
		IsError:    isError,
	}
}

func (t Turn) Clone() Turn {
	out := t
	out.Blocks = CloneBlocks(t.Blocks)
	return out
}

// Invocations returns the tool requests carried by an assistant turn.
func (t Turn) Invocations() []ToolInvocation {
	if t.Role != RoleAssistant {
		return nil
	}
	var out []ToolInvocation
	for _, b := range t.Blocks {
		if inv, ok := b.Invocation(); ok {
			out = append(out, inv)
		}
	}
	return out
}

func (t Turn) Text() string {
	if t.Role != RoleAssistant {
		return t.Content
	}
	var parts []string
	for _, b := range t.Blocks {
		if b.Type == BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
