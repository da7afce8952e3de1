package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"
)

// dispatch runs the invocations strictly in order. Each result is appended
// before the observer is asked whether to go on.
func (uc *UseCase) dispatch(ctx context.Context, invocations []entity.ToolInvocation) (entity.Signal, error) {
	for i := range invocations {
		inv := invocations[i]

		if err := ctx.Err(); err != nil {
			return entity.SignalContinue, err
		}

		tool, ok := uc.tools.Get(inv.Name)
		if !ok {
			uc.logger.Error("Unknown tool called", "name", inv.Name, "id", inv.ID)
			return entity.SignalContinue, fmt.Errorf("%w: %s", entity.ErrToolNotFound, inv.Name)
		}

		turn := uc.executeTool(ctx, tool, inv)
		uc.state.Transcript = append(uc.state.Transcript, turn)

		event := entity.Event{Kind: entity.EventToolResult, Invocation: &inv, Result: &turn}
		if signal := uc.notify(ctx, event); signal != entity.SignalContinue {
			return signal, nil
		}
	}
	return entity.SignalContinue, nil
}

func (uc *UseCase) executeTool(ctx context.Context, tool output.ToolPort, inv entity.ToolInvocation) entity.Turn {
	uc.logger.Info("Executing tool", "name", inv.Name, "id", inv.ID, "input", inv.Input)

	start := time.Now()
	result, err := safeExecute(ctx, tool, entity.CloneObject(inv.Input))
	elapsed := time.Since(start)

	if err == nil {
		var content string
		content, err = serializeResult(result)
		if err == nil {
			content = uc.truncate(content)
			uc.metrics.ObserveToolCall(inv.Name, elapsed, false)
			uc.logger.Debug("Tool completed", "name", inv.Name, "resultLen", len(content), "elapsed", elapsed.String())
			return entity.NewToolTurn(inv.ID, inv.Name, content, false)
		}
	}

	uc.metrics.ObserveToolCall(inv.Name, elapsed, true)
	uc.logger.Error("Tool execution failed", "name", inv.Name, "error", err)
	return entity.NewToolTurn(inv.ID, inv.Name, fmt.Sprintf("tool %s failed: %v", inv.Name, err), true)
}

func safeExecute(ctx context.Context, tool output.ToolPort, input map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tool.Execute(ctx, input)
}

// serializeResult keeps strings as they are and encodes everything else as
// JSON.
func serializeResult(result any) (string, error) {
	switch v := result.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}

func (uc *UseCase) truncate(content string) string {
	if uc.maxObservationLen <= 0 || len(content) <= uc.maxObservationLen {
		return content
	}
	n := uc.maxObservationLen
	for n > 0 && !utf8.RuneStart(content[n]) {
		n--
	}
	return content[:n] + "\n... (truncated)"
}
