package entity

type BlockType string

const (
	BlockText     BlockType = "text"
	BlockThinking BlockType = "thinking"
	BlockToolUse  BlockType = "tool_use"
)

type ContentBlock struct {
	Type      BlockType      `json:"type"`
	Text      string         `json:"text,omitempty"`
	Thinking  string         `json:"thinking,omitempty"`
	Signature string         `json:"signature,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
}

func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

func NewThinkingBlock(thinking, signature string) ContentBlock {
	return ContentBlock{Type: BlockThinking, Thinking: thinking, Signature: signature}
}

func NewToolUseBlock(id, name string, input map[string]any) ContentBlock {
	if input == nil {
		input = map[string]any{}
	}
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// Clone returns a structural deep copy. Nested maps and slices in Input are
// copied, so the clone shares no mutable state with b.
func (b ContentBlock) Clone() ContentBlock {
	out := b
	if b.Input != nil {
		out.Input = CloneObject(b.Input)
	} else if b.Type == BlockToolUse {
		out.Input = map[string]any{}
	}
	return out
}

func (b ContentBlock) Invocation() (ToolInvocation, bool) {
	if b.Type != BlockToolUse {
		return ToolInvocation{}, false
	}
	input := map[string]any{}
	if b.Input != nil {
		input = CloneObject(b.Input)
	}
	return ToolInvocation{ID: b.ID, Name: b.Name, Input: input}, true
}

func CloneBlocks(blocks []ContentBlock) []ContentBlock {
	if blocks == nil {
		return nil
	}
	out := make([]ContentBlock, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
	}
	return out
}

// CloneObject deep-copies a decoded JSON object.
func CloneObject(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneObject(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}
