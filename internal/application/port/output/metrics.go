package output

import (
	"time"

	"agentloop/internal/domain/entity"
)

type MetricsPort interface {
	ObserveModelCall(transport string, elapsed time.Duration, usage entity.Usage, err error)
	ObserveToolCall(tool string, elapsed time.Duration, failed bool)
	ObserveRun(status entity.Status, iterations int)
}
