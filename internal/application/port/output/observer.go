package output

import (
	"context"

	"agentloop/internal/domain/entity"
)

type Observer interface {
	Notify(ctx context.Context, event entity.Event) entity.Signal
}

type ObserverFunc func(ctx context.Context, event entity.Event) entity.Signal

func (f ObserverFunc) Notify(ctx context.Context, event entity.Event) entity.Signal {
	return f(ctx, event)
}
