package output

import "agentloop/internal/domain/entity"

type SnapshotStore interface {
	Save(id string, state entity.AgentState) error
	Load(id string) (entity.AgentState, error)
	List() ([]string, error)
}
