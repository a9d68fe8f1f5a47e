package delegation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// stateStore owns the single serialized delegation-state document,
// written atomically via stage-and-rename after every mutation, mirroring
// the registry's per-agent atomic write pattern.
type stateStore struct {
	path string
}

func newStateStore(dataDir string) *stateStore {
	return &stateStore{path: filepath.Join(dataDir, "delegated_tasks.json")}
}

func (s *stateStore) load() (persistedState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return persistedState{}, nil
		}
		return persistedState{}, err
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return persistedState{}, fmt.Errorf("decode delegation state: %w", err)
	}
	return state, nil
}

func (s *stateStore) save(state persistedState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure delegation state dir: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode delegation state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp delegation state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename delegation state: %w", err)
	}
	return nil
}
