package langchain

import (
	"context"
	"encoding/json"
	"fmt"

	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"
	"agentloop/internal/infrastructure/llm/deltastream"
	"agentloop/internal/infrastructure/llm/tokens"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

const streamBuffer = 32

var _ output.ModelTransport = (*Transport)(nil)

// Transport drives any langchaingo model. Text is streamed as it arrives;
// tool calls are only known once the model returns and are emitted last.
type Transport struct {
	model     llms.Model
	modelName string
	maxTokens int
	counter   *tokens.Counter
	logger    output.LoggerPort
}

type Option func(*Transport)

func WithModelName(name string) Option {
	return func(t *Transport) { t.modelName = name }
}

func WithMaxTokens(n int) Option {
	return func(t *Transport) { t.maxTokens = n }
}

// WithCounter sets the counter used when the model reports no usage.
func WithCounter(c *tokens.Counter) Option {
	return func(t *Transport) { t.counter = c }
}

func New(model llms.Model, logger output.LoggerPort, opts ...Option) *Transport {
	t := &Transport{
		model:   model,
		counter: tokens.NewEstimator(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Name() string {
	return "langchain"
}

func (t *Transport) Stream(ctx context.Context, req output.ModelRequest) (output.DeltaStream, error) {
	messages, err := convertMessages(req.System, req.Transcript)
	if err != nil {
		return nil, err
	}

	stream := deltastream.NewChanStream(ctx, streamBuffer)
	go t.generate(ctx, stream, req, messages)
	return stream, nil
}

func (t *Transport) generate(ctx context.Context, stream *deltastream.ChanStream, req output.ModelRequest, messages []llms.MessageContent) {
	if err := stream.Send(entity.Delta{ID: "lc_" + uuid.NewString(), Model: t.modelName, Role: string(entity.RoleAssistant)}); err != nil {
		stream.Finish(err)
		return
	}

	next := 0
	textIndex := -1
	streamed := 0

	opts := []llms.CallOption{
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			if textIndex < 0 {
				textIndex = next
				next++
			}
			streamed += len(chunk)
			return stream.Send(textDelta(textIndex, string(chunk)))
		}),
	}
	if tools := convertTools(req.Tools); len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}
	if t.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(t.maxTokens))
	}

	resp, err := t.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		t.logger.Error("Model generation failed", "error", err)
		stream.Finish(fmt.Errorf("generate content: %w", err))
		return
	}
	if len(resp.Choices) == 0 {
		stream.Finish(fmt.Errorf("no choices in response"))
		return
	}
	choice := resp.Choices[0]

	// Some models ignore the streaming callback.
	if streamed == 0 && choice.Content != "" {
		textIndex = next
		next++
		if err := stream.Send(textDelta(textIndex, choice.Content)); err != nil {
			stream.Finish(err)
			return
		}
	}

	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil {
			continue
		}
		index := next
		next++
		delta := entity.Delta{
			Content:  []entity.Fragment{{Type: entity.FragmentToolUse, Index: index}},
			ToolCall: &entity.ToolCallStart{ID: call.ID, Name: call.FunctionCall.Name},
		}
		if call.FunctionCall.Arguments != "" {
			delta.Content = append(delta.Content, entity.Fragment{Type: entity.FragmentInputJSON, Index: index, Input: call.FunctionCall.Arguments})
		}
		if err := stream.Send(delta); err != nil {
			stream.Finish(err)
			return
		}
	}

	usage := t.usage(choice, req)
	final := entity.Delta{
		StopReason: stopReason(choice),
		Usage:      &usage,
	}
	if err := stream.Send(final); err != nil {
		stream.Finish(err)
		return
	}
	stream.Finish(nil)
}

func (t *Transport) usage(choice *llms.ContentChoice, req output.ModelRequest) entity.Usage {
	info := choice.GenerationInfo
	in := firstInt(info, "PromptTokens", "InputTokens", "input_tokens", "prompt_tokens")
	out := firstInt(info, "CompletionTokens", "OutputTokens", "output_tokens", "completion_tokens")

	if in == 0 && out == 0 {
		in = t.counter.CountTranscript(req.System, req.Transcript)
		out = t.counter.CountTokens(choice.Content)
		for _, call := range choice.ToolCalls {
			if call.FunctionCall != nil {
				out += t.counter.CountTokens(call.FunctionCall.Name + call.FunctionCall.Arguments)
			}
		}
		t.logger.Debug("Usage estimated", "inputTokens", in, "outputTokens", out)
	}
	return entity.Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}

func stopReason(choice *llms.ContentChoice) string {
	if len(choice.ToolCalls) > 0 {
		return "tool_use"
	}
	switch choice.StopReason {
	case "", "stop", "end_turn", "STOP":
		return "end_turn"
	case "length", "max_tokens", "MAX_TOKENS":
		return "max_tokens"
	default:
		return choice.StopReason
	}
}

func textDelta(index int, text string) entity.Delta {
	return entity.Delta{Content: []entity.Fragment{{Type: entity.FragmentText, Index: index, Text: text}}}
}

func firstInt(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

func convertMessages(system string, turns []entity.Turn) ([]llms.MessageContent, error) {
	messages := make([]llms.MessageContent, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}

	for _, turn := range turns {
		switch turn.Role {
		case entity.RoleSystem:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, turn.Content))
		case entity.RoleUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, turn.Content))
		case entity.RoleTool:
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: turn.ToolCallID,
					Name:       turn.Name,
					Content:    turn.Content,
				}},
			})
		case entity.RoleAssistant:
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			for _, block := range turn.Blocks {
				switch block.Type {
				case entity.BlockText:
					if block.Text != "" {
						msg.Parts = append(msg.Parts, llms.TextPart(block.Text))
					}
				case entity.BlockToolUse:
					input := block.Input
					if input == nil {
						input = map[string]any{}
					}
					args, err := json.Marshal(input)
					if err != nil {
						return nil, fmt.Errorf("encode arguments of %s: %w", block.Name, err)
					}
					msg.Parts = append(msg.Parts, llms.ToolCall{
						ID:   block.ID,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      block.Name,
							Arguments: string(args),
						},
					})
				}
			}
			if len(msg.Parts) == 0 && turn.Content != "" {
				msg.Parts = append(msg.Parts, llms.TextPart(turn.Content))
			}
			if len(msg.Parts) > 0 {
				messages = append(messages, msg)
			}
		}
	}
	return messages, nil
}

func convertTools(defs []entity.ToolDefinition) []llms.Tool {
	tools := make([]llms.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return tools
}
