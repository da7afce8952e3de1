package entity

// Signal is what an observer returns at each suspension point of the loop.
type Signal int

const (
	SignalContinue Signal = iota
	SignalPause
	SignalStop
)

func (s Signal) String() string {
	switch s {
	case SignalContinue:
		return "continue"
	case SignalPause:
		return "pause"
	case SignalStop:
		return "stop"
	default:
		return "unknown"
	}
}

type EventKind string

const (
	EventModelTurn  EventKind = "model_turn"
	EventToolResult EventKind = "tool_result"
)

// Event describes a state change of the control loop. State is a copy owned
// by the receiver.
type Event struct {
	Kind       EventKind
	State      AgentState
	Response   *Response
	Invocation *ToolInvocation
	Result     *Turn
}
