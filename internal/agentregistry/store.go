package agentregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// documentStore owns the agent-document directory: one JSON file per agent,
// written atomically via stage-and-rename so no reader ever observes a
// half-written file.
type documentStore struct {
	dir string
}

func newDocumentStore(dir string) *documentStore {
	return &documentStore{dir: dir}
}

func (s *documentStore) ensureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}

func (s *documentStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// write serializes agent to its document file atomically: write to a
// temp file in the same directory, then rename over the target.
func (s *documentStore) write(agent *Agent) error {
	data, err := encodeAgent(agent)
	if err != nil {
		return fmt.Errorf("encode agent %q: %w", agent.ID, err)
	}
	target := s.path(agent.ID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp agent file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename agent file: %w", err)
	}
	return nil
}

func (s *documentStore) read(id string) (*Agent, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}
	return decodeAgent(data)
}

func (s *documentStore) remove(id string) error {
	return os.Remove(s.path(id))
}

func (s *documentStore) exists(id string) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// listIDs returns the agent ids for every "<id>.json" file in the
// directory (ignoring ".tmp" staging files and non-JSON entries).
func (s *documentStore) listIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// encodeAgent marshals an agent document with stable, pretty-printed,
// sorted-key JSON. encoding/json already serializes struct fields in
// declaration order and map keys in sorted order, so using it directly on
// Agent (whose fields are declared in document-schema order) yields
// deterministic output across writes.
func encodeAgent(agent *Agent) ([]byte, error) {
	return json.MarshalIndent(agent, "", "  ")
}

// decodeAgent tolerates unknown fields (encoding/json does this by
// default) and missing optional fields (Go zero values apply).
func decodeAgent(data []byte) (*Agent, error) {
	var a Agent
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
