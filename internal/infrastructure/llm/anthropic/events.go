package anthropic

import (
	"agentloop/internal/domain/entity"

	"github.com/anthropics/anthropic-sdk-go"
)

// translate maps one provider stream event onto a Delta. Events that carry
// nothing for the aggregator (ping, block stop, message stop) are skipped.
// Block types the aggregator does not know are passed through unchanged so
// that it can reject them.
func translate(event anthropic.MessageStreamEventUnion) (entity.Delta, bool) {
	switch ev := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		in := int(ev.Message.Usage.InputTokens)
		return entity.Delta{
			ID:    ev.Message.ID,
			Model: string(ev.Message.Model),
			Role:  string(ev.Message.Role),
			Usage: &entity.Usage{InputTokens: in, TotalTokens: in},
		}, true

	case anthropic.ContentBlockStartEvent:
		index := int(ev.Index)
		block := ev.ContentBlock
		switch block.Type {
		case "text":
			return single(entity.Fragment{Type: entity.FragmentText, Index: index, Text: block.Text}), true
		case "thinking":
			return single(entity.Fragment{
				Type:      entity.FragmentThinking,
				Index:     index,
				Thinking:  block.Thinking,
				Signature: block.Signature,
			}), true
		case "tool_use":
			delta := single(entity.Fragment{Type: entity.FragmentToolUse, Index: index})
			delta.ToolCall = &entity.ToolCallStart{ID: block.ID, Name: block.Name}
			return delta, true
		default:
			return single(entity.Fragment{Type: entity.FragmentType(block.Type), Index: index}), true
		}

	case anthropic.ContentBlockDeltaEvent:
		index := int(ev.Index)
		d := ev.Delta
		switch d.Type {
		case "text_delta":
			return single(entity.Fragment{Type: entity.FragmentText, Index: index, Text: d.Text}), true
		case "thinking_delta":
			return single(entity.Fragment{Type: entity.FragmentThinking, Index: index, Thinking: d.Thinking}), true
		case "signature_delta":
			return single(entity.Fragment{Type: entity.FragmentThinking, Index: index, Signature: d.Signature}), true
		case "input_json_delta":
			return single(entity.Fragment{Type: entity.FragmentInputJSON, Index: index, Input: d.PartialJSON}), true
		case "citations_delta":
			return entity.Delta{}, false
		default:
			return single(entity.Fragment{Type: entity.FragmentType(d.Type), Index: index}), true
		}

	case anthropic.MessageDeltaEvent:
		out := int(ev.Usage.OutputTokens)
		return entity.Delta{
			StopReason: string(ev.Delta.StopReason),
			Usage:      &entity.Usage{OutputTokens: out, TotalTokens: out},
		}, true
	}

	return entity.Delta{}, false
}

func single(f entity.Fragment) entity.Delta {
	return entity.Delta{Content: []entity.Fragment{f}}
}
