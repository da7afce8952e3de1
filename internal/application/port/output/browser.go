package output

import (
	"context"

	"agentloop/internal/domain/entity"
)

type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*entity.Page, error)
	Close()
}
