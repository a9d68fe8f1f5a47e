package agentregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// legacyFileName is the single-document file used by older releases
// before the registry moved to one file per agent.
const legacyFileName = "agent.json"

// Bootstrap runs the one-shot startup sequence from spec.md §4.2: ensure
// the storage directory, migrate any legacy single-document file, load
// every persisted agent (warning on decode failures rather than failing
// startup), and insert or upgrade the built-in agent. It is an explicit
// method rather than constructor-time side effect, so callers control
// exactly when disk I/O and migration happen.
func (r *Registry) Bootstrap() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.ensureDir(); err != nil {
		return fmt.Errorf("ensure registry directory: %w", err)
	}

	if err := r.migrateLegacyFile(); err != nil {
		return fmt.Errorf("migrate legacy agent file: %w", err)
	}

	if err := r.loadAll(); err != nil {
		return fmt.Errorf("load agents: %w", err)
	}

	r.ensureBuiltIn()

	return nil
}

// migrateLegacyFile moves the fields of an old single-document
// agent.json into the built-in agent's per-agent file, then deletes the
// legacy file. It is a no-op if the legacy file is absent; if the target
// per-agent file already exists, it only deletes the legacy file.
func (r *Registry) migrateLegacyFile() error {
	legacyPath := filepath.Join(r.store.dir, legacyFileName)
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if r.store.exists(builtInID) {
		// Target already migrated in a prior run; just drop the legacy file.
		return os.Remove(legacyPath)
	}

	template := newBuiltInAgent(time.Now().UTC())
	if err := json.Unmarshal(data, template); err != nil {
		r.logger.Warn("legacy agent file failed to decode, using default template", zap.Error(err))
		template = newBuiltInAgent(time.Now().UTC())
	}
	template.ID = builtInID
	template.IsBuiltIn = true

	if err := r.store.write(template); err != nil {
		return fmt.Errorf("write migrated built-in agent: %w", err)
	}
	return os.Remove(legacyPath)
}

// loadAll reads every persisted agent document into memory, logging a
// warning and skipping any file that fails to decode rather than aborting
// bootstrap.
func (r *Registry) loadAll() error {
	ids, err := r.store.listIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		agent, err := r.store.read(id)
		if err != nil {
			r.logger.Warn("failed to decode agent document, skipping",
				zap.String("id", id), zap.Error(err))
			continue
		}
		r.agents[id] = agent
	}
	return nil
}

// ensureBuiltIn inserts the built-in agent if it is entirely missing, or
// upgrades it in place if its persisted fields exactly match a known
// previous default (meaning the user never customized it) but differ
// from the current default. Any other stored value is left untouched.
func (r *Registry) ensureBuiltIn() {
	current, ok := r.agents[builtInID]
	if !ok {
		fresh := newBuiltInAgent(time.Now().UTC())
		if err := r.store.write(fresh); err != nil {
			r.logger.Error("failed to write default built-in agent", zap.Error(err))
			return
		}
		r.agents[builtInID] = fresh
		return
	}

	fresh := newBuiltInAgent(current.CreatedAt)
	if current.Name == fresh.Name && current.Role == fresh.Role && current.PersonalityPreset == fresh.PersonalityPreset {
		return
	}
	if !matchesKnownPreviousDefault(current) {
		return
	}

	fresh.ID = builtInID
	fresh.IsBuiltIn = true
	if err := r.store.write(fresh); err != nil {
		r.logger.Error("failed to upgrade built-in agent to current default", zap.Error(err))
		return
	}
	r.agents[builtInID] = fresh
	r.logger.Info("upgraded built-in agent to current default template")
}
