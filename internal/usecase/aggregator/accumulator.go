package aggregator

import (
	"encoding/json"
	"fmt"
	"strings"

	"agentloop/internal/domain/entity"

	"github.com/tidwall/gjson"
)

const maxArgsInError = 200

type accState int

const (
	accIdle accState = iota
	accOpen
)

// blockAccumulator holds the single block being streamed. Transitions:
// idle --open--> open --append--> open --finalize--> idle.
type blockAccumulator struct {
	state accState
	index int
	block entity.ContentBlock
	args  strings.Builder
}

func (a *blockAccumulator) isOpen() bool {
	return a.state == accOpen
}

func (a *blockAccumulator) open(f entity.Fragment, call *entity.ToolCallStart) error {
	if a.state != accIdle {
		return fmt.Errorf("block %d is still open", a.index)
	}

	var block entity.ContentBlock
	switch f.Type {
	case entity.FragmentText:
		block = entity.NewTextBlock(f.Text)
	case entity.FragmentThinking:
		block = entity.NewThinkingBlock(f.Thinking, f.Signature)
	case entity.FragmentToolUse:
		if call == nil {
			return protocolError(f, ErrMissingToolCall)
		}
		block = entity.ContentBlock{Type: entity.BlockToolUse, ID: call.ID, Name: call.Name}
	case entity.FragmentInputJSON:
		return protocolError(f, ErrNoOpenBlock)
	default:
		return protocolError(f, ErrUnrecognizedContentType)
	}

	a.state = accOpen
	a.index = f.Index
	a.block = block
	a.args.Reset()
	return nil
}

func (a *blockAccumulator) append(f entity.Fragment) error {
	if a.state != accOpen {
		return protocolError(f, ErrBlockClosed)
	}

	switch f.Type {
	case entity.FragmentText:
		if a.block.Type != entity.BlockText {
			return protocolError(f, ErrBlockTypeMismatch)
		}
		a.block.Text += f.Text
	case entity.FragmentThinking:
		if a.block.Type != entity.BlockThinking {
			return protocolError(f, ErrBlockTypeMismatch)
		}
		a.block.Thinking += f.Thinking
		if f.Signature != "" {
			a.block.Signature = f.Signature
		}
	case entity.FragmentInputJSON:
		if a.block.Type != entity.BlockToolUse {
			return protocolError(f, ErrBlockTypeMismatch)
		}
		a.args.WriteString(f.Input)
	case entity.FragmentToolUse:
		return protocolError(f, ErrToolUseContinuation)
	default:
		return protocolError(f, ErrUnrecognizedContentType)
	}
	return nil
}

// finalize closes the open block. For tool_use blocks the buffered arguments
// are parsed into Input and an invocation is derived.
func (a *blockAccumulator) finalize() (entity.ContentBlock, *entity.ToolInvocation, error) {
	if a.state != accOpen {
		return entity.ContentBlock{}, nil, fmt.Errorf("no open block to finalize")
	}

	block := a.block
	var invocation *entity.ToolInvocation

	if block.Type == entity.BlockToolUse {
		input, err := parseArguments(a.args.String())
		if err != nil {
			return entity.ContentBlock{}, nil, &ProtocolError{
				Index: a.index,
				Type:  entity.FragmentInputJSON,
				Err:   err,
			}
		}
		block.Input = input
		inv, _ := block.Invocation()
		invocation = &inv
	}

	a.state = accIdle
	a.block = entity.ContentBlock{}
	a.args.Reset()
	return block, invocation, nil
}

func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return nil, fmt.Errorf("%w: %s", ErrMalformedToolArguments, clip(raw))
	}

	input := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToolArguments, err)
	}
	return input, nil
}

func clip(s string) string {
	if len(s) <= maxArgsInError {
		return s
	}
	return s[:maxArgsInError] + "..."
}
