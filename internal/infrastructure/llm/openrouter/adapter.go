package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"
	"agentloop/internal/infrastructure/llm/roundtrip"

	"github.com/sashabaranov/go-openai"
)

var _ output.ModelTransport = (*OpenRouterAdapter)(nil)

type OpenRouterAdapter struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    output.LoggerPort
}

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	HTTPClient *http.Client
	Logger     output.LoggerPort
}

func DefaultConfig(apiKey, model string) Config {
	return Config{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: "https://openrouter.ai/api/v1",
	}
}

func NewOpenRouterAdapter(cfg Config) *OpenRouterAdapter {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	switch {
	case cfg.HTTPClient != nil:
		config.HTTPClient = cfg.HTTPClient
	case cfg.Logger != nil:
		config.HTTPClient = roundtrip.NewLoggingClient(cfg.Logger)
	}

	return &OpenRouterAdapter{
		client:    openai.NewClientWithConfig(config),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

func (a *OpenRouterAdapter) Name() string {
	return "openrouter"
}

func (a *OpenRouterAdapter) Stream(ctx context.Context, req output.ModelRequest) (output.DeltaStream, error) {
	messages, err := convertMessages(req.System, req.Transcript)
	if err != nil {
		return nil, err
	}
	tools := convertTools(req.Tools)

	if a.logger != nil {
		totalChars := 0
		for _, msg := range messages {
			totalChars += len(msg.Content)
		}
		a.logger.Debug("Creating chat completion stream",
			"model", a.model,
			"messagesCount", len(messages),
			"toolsCount", len(tools),
			"totalChars", totalChars)
	}

	request := openai.ChatCompletionRequest{
		Model:         a.model,
		Messages:      messages,
		Tools:         tools,
		MaxTokens:     a.maxTokens,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if len(tools) > 0 {
		request.ToolChoice = "auto"
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		if a.logger != nil {
			a.logger.Error("Failed to create stream", "error", err)
		}
		return nil, fmt.Errorf("chat stream failed: %w", err)
	}

	return &chunkStream{stream: stream, translator: newTranslator()}, nil
}

// chunkStream re-indexes the flat chunk stream into content block deltas.
type chunkStream struct {
	stream     *openai.ChatCompletionStream
	translator *translator
	queue      []entity.Delta
	current    entity.Delta
	err        error
}

func (s *chunkStream) Next() bool {
	for len(s.queue) == 0 {
		if s.err != nil {
			return false
		}
		chunk, err := s.stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = fmt.Errorf("stream recv error: %w", err)
			}
			return false
		}
		s.queue = s.translator.translate(chunk)
	}

	s.current = s.queue[0]
	s.queue = s.queue[1:]
	return true
}

func (s *chunkStream) Current() entity.Delta {
	return s.current
}

func (s *chunkStream) Err() error {
	return s.err
}

func (s *chunkStream) Close() error {
	return s.stream.Close()
}

type blockKind int

const (
	kindNone blockKind = iota
	kindThinking
	kindText
	kindTool
)

// translator assigns block indices the way the Messages API does: reasoning,
// text and each tool call index open a new block when they start.
type translator struct {
	next       int
	kind       blockKind
	toolBlocks map[int]int
}

func newTranslator() *translator {
	return &translator{toolBlocks: map[int]int{}}
}

func (t *translator) open(kind blockKind) int {
	t.kind = kind
	t.next++
	return t.next - 1
}

func (t *translator) translate(chunk openai.ChatCompletionStreamResponse) []entity.Delta {
	head := entity.Delta{ID: chunk.ID, Model: chunk.Model}
	var extra []entity.Delta

	if chunk.Usage != nil {
		head.Usage = &entity.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
			TotalTokens:  chunk.Usage.TotalTokens,
		}
	}

	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		d := choice.Delta
		head.Role = d.Role

		if d.ReasoningContent != "" {
			index := t.next - 1
			if t.kind != kindThinking {
				index = t.open(kindThinking)
			}
			head.Content = append(head.Content, entity.Fragment{Type: entity.FragmentThinking, Index: index, Thinking: d.ReasoningContent})
		}

		if d.Content != "" {
			index := t.next - 1
			if t.kind != kindText {
				index = t.open(kindText)
			}
			head.Content = append(head.Content, entity.Fragment{Type: entity.FragmentText, Index: index, Text: d.Content})
		}

		for _, tc := range d.ToolCalls {
			callIndex := 0
			if tc.Index != nil {
				callIndex = *tc.Index
			}

			index, started := t.toolBlocks[callIndex]
			if !started {
				index = t.open(kindTool)
				t.toolBlocks[callIndex] = index

				start := entity.Delta{
					Content:  []entity.Fragment{{Type: entity.FragmentToolUse, Index: index}},
					ToolCall: &entity.ToolCallStart{ID: tc.ID, Name: tc.Function.Name},
				}
				if tc.Function.Arguments != "" {
					start.Content = append(start.Content, entity.Fragment{Type: entity.FragmentInputJSON, Index: index, Input: tc.Function.Arguments})
				}
				extra = append(extra, start)
				continue
			}

			if tc.Function.Arguments != "" {
				extra = append(extra, entity.Delta{
					Content: []entity.Fragment{{Type: entity.FragmentInputJSON, Index: index, Input: tc.Function.Arguments}},
				})
			}
		}

		if choice.FinishReason != "" {
			extra = append(extra, entity.Delta{StopReason: stopReason(choice.FinishReason)})
		}
	}

	return append([]entity.Delta{head}, extra...)
}

func stopReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return "tool_use"
	case openai.FinishReasonStop:
		return "end_turn"
	case openai.FinishReasonLength:
		return "max_tokens"
	default:
		return string(reason)
	}
}

func convertMessages(system string, turns []entity.Turn) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if strings.TrimSpace(system) != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, turn := range turns {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		}

		switch turn.Role {
		case entity.RoleTool:
			oaiMsg.ToolCallID = turn.ToolCallID
			oaiMsg.Name = turn.Name
		case entity.RoleAssistant:
			var fullContent string
			for _, block := range turn.Blocks {
				switch block.Type {
				case entity.BlockThinking:
					if block.Thinking != "" {
						fullContent += "<thinking>\n" + block.Thinking + "\n</thinking>\n"
					}
				case entity.BlockText:
					fullContent += block.Text
				case entity.BlockToolUse:
					args, err := json.Marshal(block.Input)
					if err != nil {
						return nil, fmt.Errorf("encode arguments of %s: %w", block.Name, err)
					}
					if block.Input == nil {
						args = []byte("{}")
					}
					oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
						ID:   block.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      block.Name,
							Arguments: string(args),
						},
					})
				}
			}
			if fullContent != "" {
				oaiMsg.Content = fullContent
			}
		default:
			oaiMsg.Content = turn.Text()
		}

		result = append(result, oaiMsg)
	}
	return result, nil
}

func convertTools(tools []entity.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return result
}
