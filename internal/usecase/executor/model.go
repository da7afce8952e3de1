package executor

import (
	"context"
	"fmt"
	"time"

	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"
	"agentloop/internal/usecase/aggregator"
)

func (uc *UseCase) invokeModel(ctx context.Context) (*entity.Response, error) {
	start := time.Now()
	transport := uc.transport.Name()

	stream, err := uc.transport.Stream(ctx, output.ModelRequest{
		System:     uc.systemPrompt,
		Transcript: entity.CloneTurns(uc.state.Transcript),
		Tools:      uc.tools.Definitions(),
	})
	if err != nil {
		uc.metrics.ObserveModelCall(transport, time.Since(start), entity.Usage{}, err)
		uc.logger.Error("Model request failed", "transport", transport, "error", err)
		return nil, fmt.Errorf("model request failed: %w", err)
	}

	resp, err := aggregator.New(uc.logger).Consume(ctx, stream)
	if err != nil {
		uc.metrics.ObserveModelCall(transport, time.Since(start), entity.Usage{}, err)
		uc.logger.Error("Model response rejected", "transport", transport, "error", err)
		return nil, fmt.Errorf("model request failed: %w", err)
	}

	uc.metrics.ObserveModelCall(transport, time.Since(start), resp.Usage, nil)
	uc.usage = uc.usage.Add(resp.Usage)

	if !resp.Complete() {
		uc.logger.Warn("Model response ended without stop reason", "transport", transport, "blocks", len(resp.Blocks))
	}
	uc.logger.Debug("Model turn received",
		"stopReason", resp.Info.StopReason,
		"blocks", len(resp.Blocks),
		"toolCalls", len(resp.Invocations),
		"elapsed", time.Since(start).String())

	return resp, nil
}
