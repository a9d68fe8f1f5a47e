package agentregistry

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, path, contents string) error {
	t.Helper()
	return os.WriteFile(path, []byte(contents), 0o644)
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(t.TempDir(), zaptest.NewLogger(t))
	if err := r.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return r
}

func TestBootstrapInsertsBuiltInAgent(t *testing.T) {
	r := newTestRegistry(t)
	agent, err := r.Get(builtInID)
	if err != nil {
		t.Fatalf("Get built-in: %v", err)
	}
	if !agent.IsBuiltIn {
		t.Error("expected built-in agent to be marked IsBuiltIn")
	}
}

func TestCreateGetUpdateDelete(t *testing.T) {
	r := newTestRegistry(t)

	created, err := r.Create(&Agent{Name: "Research Helper", AccessLevel: LevelRead})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "research-helper" {
		t.Fatalf("expected slugified id, got %q", created.ID)
	}

	got, err := r.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Research Helper" {
		t.Fatalf("unexpected name: %q", got.Name)
	}

	got.AccessLevel = LevelWrite
	updated, err := r.Update(created.ID, got)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.AccessLevel != LevelWrite {
		t.Fatalf("expected updated access level, got %v", updated.AccessLevel)
	}
	if updated.CreatedAt != created.CreatedAt {
		t.Fatal("Update must preserve CreatedAt")
	}

	if err := r.Delete(created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Get(created.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCreateDuplicateIDRejected(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Create(&Agent{ID: "dup", Name: "Dup"}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := r.Create(&Agent{ID: "dup", Name: "Dup Again"}); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestDeleteBuiltInRejected(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Delete(builtInID); err != ErrCannotDeleteBuilt {
		t.Fatalf("expected ErrCannotDeleteBuilt, got %v", err)
	}
}

func TestResetRestoresBuiltInTemplate(t *testing.T) {
	r := newTestRegistry(t)
	agent, err := r.Get(builtInID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	agent.CustomInstructions = "be extremely terse"
	if _, err := r.Update(builtInID, agent); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reset, err := r.Reset()
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if reset.CustomInstructions != "" {
		t.Fatalf("expected reset to clear customization, got %q", reset.CustomInstructions)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Create(&Agent{ID: "helper", Name: "Helper", AccessLevel: LevelChat}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	data, err := r.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	r2 := New(t.TempDir(), zaptest.NewLogger(t))
	if err := r2.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	n, err := r2.Import(data)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 2 { // built-in + helper
		t.Fatalf("expected 2 imported agents, got %d", n)
	}
	if _, err := r2.Get("helper"); err != nil {
		t.Fatalf("Get helper after import: %v", err)
	}
}

func TestBootstrapMigratesLegacyFile(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"name":"Legacy Name","role":"legacy role","personalityPreset":"legacy","accessLevel":3}`
	if err := writeFile(t, filepath.Join(dir, legacyFileName), legacy); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	r := New(dir, zaptest.NewLogger(t))
	if err := r.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	agent, err := r.Get(builtInID)
	if err != nil {
		t.Fatalf("Get built-in: %v", err)
	}
	if agent.Name != "Legacy Name" || agent.AccessLevel != LevelWrite {
		t.Fatalf("legacy fields not migrated: %+v", agent)
	}
}

func TestBootstrapUpgradesKnownPreviousDefault(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, zaptest.NewLogger(t))
	if err := r.Bootstrap(); err != nil {
		t.Fatalf("first Bootstrap: %v", err)
	}

	stale, err := r.Get(builtInID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	stale.Name = "Assistant"
	stale.Role = "general-purpose assistant"
	stale.PersonalityPreset = "neutral"
	if _, err := r.Update(builtInID, stale); err != nil {
		t.Fatalf("Update: %v", err)
	}

	r2 := New(dir, zaptest.NewLogger(t))
	if err := r2.Bootstrap(); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	upgraded, err := r2.Get(builtInID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if upgraded.PersonalityPreset != "balanced" {
		t.Fatalf("expected upgrade to current default, got %+v", upgraded)
	}
}

func TestBootstrapLeavesCustomizedBuiltInAlone(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, zaptest.NewLogger(t))
	if err := r.Bootstrap(); err != nil {
		t.Fatalf("first Bootstrap: %v", err)
	}
	customized, err := r.Get(builtInID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	customized.Role = "my very own custom role"
	if _, err := r.Update(builtInID, customized); err != nil {
		t.Fatalf("Update: %v", err)
	}

	r2 := New(dir, zaptest.NewLogger(t))
	if err := r2.Bootstrap(); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	after, err := r2.Get(builtInID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.Role != "my very own custom role" {
		t.Fatalf("expected customization preserved, got %+v", after)
	}
}
