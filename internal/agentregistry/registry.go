package agentregistry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry is the in-process cache and authority over the set of agent
// persona documents, backed by one JSON file per agent under dir. All
// mutating operations hold mu for the duration of both the in-memory
// update and the disk write, matching the teacher's single-mailbox
// concurrency pattern: no Registry method calls out to another
// component while holding mu.
type Registry struct {
	mu     sync.Mutex
	store  *documentStore
	agents map[string]*Agent
	logger *zap.Logger
}

// New constructs a Registry rooted at dir. Call Bootstrap before serving
// traffic; New itself performs no disk I/O.
func New(dir string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:  newDocumentStore(dir),
		agents: make(map[string]*Agent),
		logger: logger,
	}
}

// List returns a snapshot of every agent, with the built-in agent first
// and the rest case-insensitive alphabetical by display name.
func (r *Registry) List() []*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsBuiltIn != out[j].IsBuiltIn {
			return out[i].IsBuiltIn
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Get returns the agent with the given id.
func (r *Registry) Get(id string) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.clone(), nil
}

// Create inserts a new agent. If agent.ID is empty, an id is derived from
// agent.Name via slugify; if that id is already taken, ErrAlreadyExists is
// returned rather than silently disambiguating, matching the teacher's
// preference for explicit conflicts over surprising auto-renaming.
func (r *Registry) Create(agent *Agent) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := agent.ID
	if id == "" {
		id = slugify(agent.Name)
	}
	if !validID(id) {
		return nil, ErrInvalidID
	}
	if _, exists := r.agents[id]; exists {
		return nil, ErrAlreadyExists
	}

	cp := agent.clone()
	cp.ID = id
	cp.IsBuiltIn = false
	cp.CreatedAt = time.Now().UTC()
	if cp.DirectoryScopes == nil {
		cp.DirectoryScopes = []string{}
	}
	if cp.EnabledSkillIDs == nil {
		cp.EnabledSkillIDs = []string{}
	}

	if err := r.store.write(cp); err != nil {
		return nil, fmt.Errorf("persist agent %q: %w", id, err)
	}
	r.agents[id] = cp
	return cp.clone(), nil
}

// Update replaces the stored fields of an existing agent with those of
// updated, preserving id, isBuiltIn, and createdAt from the stored copy.
func (r *Registry) Update(id string, updated *Agent) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.agents[id]
	if !ok {
		return nil, ErrNotFound
	}

	cp := updated.clone()
	cp.ID = existing.ID
	cp.IsBuiltIn = existing.IsBuiltIn
	cp.CreatedAt = existing.CreatedAt
	if cp.DirectoryScopes == nil {
		cp.DirectoryScopes = []string{}
	}
	if cp.EnabledSkillIDs == nil {
		cp.EnabledSkillIDs = []string{}
	}

	if err := r.store.write(cp); err != nil {
		return nil, fmt.Errorf("persist agent %q: %w", id, err)
	}
	r.agents[id] = cp
	return cp.clone(), nil
}

// Delete removes a non-built-in agent.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.agents[id]
	if !ok {
		return ErrNotFound
	}
	if existing.IsBuiltIn {
		return ErrCannotDeleteBuilt
	}
	if err := r.store.remove(id); err != nil {
		return fmt.Errorf("remove agent file %q: %w", id, err)
	}
	delete(r.agents, id)
	return nil
}

// Reset restores the built-in agent to its current default template,
// discarding any customization, and leaves every other agent untouched.
func (r *Registry) Reset() (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := newBuiltInAgent(time.Now().UTC())
	if existing, ok := r.agents[builtInID]; ok {
		fresh.CreatedAt = existing.CreatedAt
	}
	if err := r.store.write(fresh); err != nil {
		return nil, fmt.Errorf("persist reset built-in agent: %w", err)
	}
	r.agents[builtInID] = fresh
	return fresh.clone(), nil
}

// Export serializes every agent document as a JSON array, sorted by id
// for deterministic output.
func (r *Registry) Export() ([]byte, error) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	agents := make([]*Agent, 0, len(r.agents))
	for _, id := range ids {
		agents = append(agents, r.agents[id].clone())
	}
	r.mu.Unlock()

	return json.MarshalIndent(agents, "", "  ")
}

// Import decodes a JSON array of agent documents produced by Export and
// writes each one, overwriting any existing agent with the same id.
// Import does not delete agents absent from data.
func (r *Registry) Import(data []byte) (int, error) {
	var incoming []*Agent
	if err := json.Unmarshal(data, &incoming); err != nil {
		return 0, fmt.Errorf("decode import payload: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, agent := range incoming {
		if !validID(agent.ID) {
			r.logger.Warn("skipping import of agent with invalid id", zap.String("id", agent.ID))
			continue
		}
		cp := agent.clone()
		if cp.DirectoryScopes == nil {
			cp.DirectoryScopes = []string{}
		}
		if cp.EnabledSkillIDs == nil {
			cp.EnabledSkillIDs = []string{}
		}
		if err := r.store.write(cp); err != nil {
			return count, fmt.Errorf("persist imported agent %q: %w", cp.ID, err)
		}
		r.agents[cp.ID] = cp
		count++
	}
	return count, nil
}
