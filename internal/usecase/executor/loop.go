package executor

import (
	"context"

	"agentloop/internal/application/port/input"
	"agentloop/internal/domain/entity"
)

func (uc *UseCase) loop(ctx context.Context) (*input.RunResult, error) {
	pending := entity.PendingInvocations(uc.state.Transcript)
	if len(pending) > 0 {
		uc.logger.Info("Dispatching pending tool calls", "count", len(pending), "iteration", uc.state.Iteration)
	}

	// A pending dispatch belongs to an iteration that was already counted, so
	// it runs even when the budget is used up.
	for !uc.state.Completed && (len(pending) > 0 || uc.state.Iteration < uc.maxIterations) {
		if len(pending) == 0 {
			uc.state.Iteration++
			uc.logger.Debug("Starting iteration", "iteration", uc.state.Iteration)

			resp, err := uc.invokeModel(ctx)
			if err != nil {
				// no assistant turn was produced, so the call does not count
				uc.state.Iteration--
				return nil, err
			}

			uc.state.Transcript = append(uc.state.Transcript, entity.NewAssistantTurn(resp.Blocks))
			if signal := uc.notify(ctx, entity.Event{Kind: entity.EventModelTurn, Response: resp}); signal != entity.SignalContinue {
				return uc.suspend(signal), nil
			}

			if len(resp.Invocations) == 0 {
				uc.state.Completed = true
				break
			}
			pending = resp.Invocations
		}

		signal, err := uc.dispatch(ctx, pending)
		pending = nil
		if err != nil {
			return nil, err
		}
		if signal != entity.SignalContinue {
			return uc.suspend(signal), nil
		}
	}

	return uc.finish(), nil
}

func (uc *UseCase) notify(ctx context.Context, event entity.Event) entity.Signal {
	if uc.observer == nil {
		return entity.SignalContinue
	}

	event.State = uc.Snapshot()
	signal := uc.observer.Notify(ctx, event)
	if signal != entity.SignalContinue {
		uc.logger.Info("Run interrupted", "signal", signal.String(), "event", event.Kind, "iteration", uc.state.Iteration)
	}
	return signal
}

func (uc *UseCase) suspend(signal entity.Signal) *input.RunResult {
	if signal == entity.SignalStop {
		uc.state.Status = entity.StatusStopped
	} else {
		uc.state.Status = entity.StatusPaused
	}
	uc.metrics.ObserveRun(uc.state.Status, uc.state.Iteration)
	return uc.result()
}

func (uc *UseCase) finish() *input.RunResult {
	if uc.state.Completed {
		uc.state.Status = entity.StatusCompleted
		uc.logger.Info("Run completed", "iterations", uc.state.Iteration)
	} else {
		uc.state.Status = entity.StatusIterationLimit
		uc.logger.Warn("Iteration limit reached", "iterations", uc.state.Iteration, "max", uc.maxIterations)
	}
	uc.metrics.ObserveRun(uc.state.Status, uc.state.Iteration)
	return uc.result()
}

func endsWithAnswer(turns []entity.Turn) bool {
	if len(turns) == 0 {
		return false
	}
	last := turns[len(turns)-1]
	return last.Role == entity.RoleAssistant && len(last.Invocations()) == 0
}
