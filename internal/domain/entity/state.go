package entity

type Status string

const (
	StatusInProgress     Status = "in_progress"
	StatusCompleted      Status = "completed"
	StatusPaused         Status = "paused"
	StatusStopped        Status = "stopped"
	StatusIterationLimit Status = "iteration_limit"
)

// AgentState is the resumable snapshot of a control loop session. It encodes
// to a plain JSON document and carries everything needed to resume.
type AgentState struct {
	Transcript        []Turn  `json:"transcript"`
	Completed         bool    `json:"completed"`
	LastAssistantText *string `json:"lastAssistantText,omitempty"`
	Iteration         int     `json:"iteration"`
	Status            Status  `json:"status,omitempty"`
}

func NewAgentState() AgentState {
	return AgentState{
		Transcript: []Turn{},
		Status:     StatusInProgress,
	}
}

func (s AgentState) Clone() AgentState {
	out := s
	out.Transcript = CloneTurns(s.Transcript)
	if out.Transcript == nil {
		out.Transcript = []Turn{}
	}
	if s.LastAssistantText != nil {
		text := *s.LastAssistantText
		out.LastAssistantText = &text
	}
	return out
}

func (s AgentState) FinalAnswer() string {
	return FinalAnswer(s.Transcript)
}

// Resumable reports whether the loop can continue from this snapshot under
// the budget it ran with. An exhausted budget only moves with a new run.
func (s AgentState) Resumable() bool {
	return !s.Completed && s.Status != StatusStopped && s.Status != StatusIterationLimit
}
