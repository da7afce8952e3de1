package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"

	"github.com/spf13/afero"
)

const ext = ".json"

var _ output.SnapshotStore = (*FileStore)(nil)

// FileStore keeps one JSON document per snapshot id under dir.
type FileStore struct {
	mu  sync.RWMutex
	fs  afero.Fs
	dir string
}

func NewFileStore(fs afero.Fs, dir string) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{fs: fs, dir: dir}, nil
}

func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, id+ext)
}

func (s *FileStore) Save(id string, state entity.AgentState) error {
	if err := validID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return WriteFile(s.fs, s.Path(id), state)
}

func (s *FileStore) Load(id string) (entity.AgentState, error) {
	if err := validID(id); err != nil {
		return entity.AgentState{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := ReadFile(s.fs, s.Path(id))
	if errors.Is(err, os.ErrNotExist) {
		return entity.AgentState{}, fmt.Errorf("%w: %s", entity.ErrSnapshotNotFound, id)
	}
	return state, err
}

func (s *FileStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	ids := []string{}
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(info.Name(), ext))
	}
	sort.Strings(ids)
	return ids, nil
}

// WriteFile stores state as indented JSON at path.
func WriteFile(fs afero.Fs, path string, state entity.AgentState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func ReadFile(fs afero.Fs, path string) (entity.AgentState, error) {
	var state entity.AgentState

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return state, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if state.Transcript == nil {
		state.Transcript = []entity.Turn{}
	}
	return state, nil
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid snapshot id %q", id)
	}
	return nil
}
