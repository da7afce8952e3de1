package entity

type FragmentType string

const (
	FragmentText      FragmentType = "text"
	FragmentThinking  FragmentType = "thinking"
	FragmentToolUse   FragmentType = "tool_use"
	FragmentInputJSON FragmentType = "input_json_delta"
)

func (t FragmentType) Known() bool {
	switch t {
	case FragmentText, FragmentThinking, FragmentToolUse, FragmentInputJSON:
		return true
	}
	return false
}

// Fragment is one piece of a content block as it arrives on the wire.
// Index identifies the block the fragment belongs to.
type Fragment struct {
	Type      FragmentType `json:"type"`
	Index     int          `json:"index"`
	Text      string       `json:"text,omitempty"`
	Thinking  string       `json:"thinking,omitempty"`
	Signature string       `json:"signature,omitempty"`
	Input     string       `json:"input,omitempty"`
}

// ToolCallStart carries the id and name of a tool_use block. Providers send
// them next to the opening fragment rather than inside it.
type ToolCallStart struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

func (u Usage) IsZero() bool {
	return u == Usage{}
}

// Delta is one increment of a streamed model response.
type Delta struct {
	ID         string         `json:"id,omitempty"`
	Model      string         `json:"model,omitempty"`
	Role       string         `json:"role,omitempty"`
	StopReason string         `json:"stopReason,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
	Content    []Fragment     `json:"content,omitempty"`
	ToolCall   *ToolCallStart `json:"toolCall,omitempty"`
}
