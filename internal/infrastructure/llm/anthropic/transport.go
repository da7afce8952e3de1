package anthropic

import (
	"context"
	"fmt"
	"net/http"

	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 8192
)

var _ output.ModelTransport = (*Transport)(nil)

type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	ThinkingBudget int
	HTTPClient     *http.Client
}

// Transport streams Messages API responses and hands them over as deltas.
type Transport struct {
	client anthropic.Client
	config Config
	logger output.LoggerPort
}

func New(config Config, logger output.LoggerPort) (*Transport, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	}

	return &Transport{
		client: anthropic.NewClient(opts...),
		config: config,
		logger: logger,
	}, nil
}

func (t *Transport) Name() string {
	return "anthropic"
}

func (t *Transport) Stream(ctx context.Context, req output.ModelRequest) (output.DeltaStream, error) {
	params := t.buildParams(req)

	t.logger.Debug("Sending Anthropic request",
		"model", t.config.Model,
		"messages", len(params.Messages),
		"tools", len(params.Tools))

	stream := t.client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}
	return &eventStream{stream: stream}, nil
}

func (t *Transport) buildParams(req output.ModelRequest) anthropic.MessageNewParams {
	system, messages := convertTranscript(req.System, req.Transcript)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(t.config.Model),
		MaxTokens: int64(t.config.MaxTokens),
		Messages:  messages,
		System:    system,
		Tools:     convertTools(req.Tools),
	}
	if t.config.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(t.config.ThinkingBudget))
	}
	return params
}

// eventStream adapts the SDK's SSE stream to output.DeltaStream.
type eventStream struct {
	stream  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	current entity.Delta
}

func (s *eventStream) Next() bool {
	for s.stream.Next() {
		if delta, ok := translate(s.stream.Current()); ok {
			s.current = delta
			return true
		}
	}
	return false
}

func (s *eventStream) Current() entity.Delta {
	return s.current
}

func (s *eventStream) Err() error {
	return s.stream.Err()
}

func (s *eventStream) Close() error {
	return s.stream.Close()
}
