package iam

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/torbobase/core/internal/agentregistry"
	"go.uber.org/zap/zaptest"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "iam.sqlite")
	e, err := Open(path, time.Minute, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestDenyPathLogged(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.Register(ctx, "a1", "", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	allowed := e.CheckAndLog(ctx, "a1", "tool:run_command", "execute")
	if allowed {
		t.Fatal("expected deny with no grants")
	}

	log := e.GetAccessLog(ctx, "a1", "", 10, 0)
	if len(log) != 1 {
		t.Fatalf("expected 1 log row, got %d", len(log))
	}
	if log[0].Allowed {
		t.Fatal("expected allowed=false")
	}
	want := "No matching permission for execute on tool:run_command"
	if log[0].Reason != want {
		t.Fatalf("reason = %q, want %q", log[0].Reason, want)
	}
}

func TestToolWildcardMatch(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.Grant(ctx, "a1", "tool:*", []string{"use"}, "admin"); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	if !e.Check(ctx, "a1", "tool:web_search", "use") {
		t.Error("expected use on tool:web_search to be allowed")
	}
	if e.Check(ctx, "a1", "tool:web_search", "execute") {
		t.Error("expected execute on tool:web_search to be denied")
	}
}

func TestGrantReplacesExistingPermission(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.Grant(ctx, "a1", "file:*", []string{"read"}, "admin"); err != nil {
		t.Fatalf("first Grant: %v", err)
	}
	if err := e.Grant(ctx, "a1", "file:*", []string{"write"}, "admin"); err != nil {
		t.Fatalf("second Grant: %v", err)
	}

	if e.Check(ctx, "a1", "file:/tmp/x", "read") {
		t.Error("expected read grant to have been replaced")
	}
	if !e.Check(ctx, "a1", "file:/tmp/x", "write") {
		t.Error("expected replaced write grant to be active")
	}
}

func TestAccessLevelBoundaries(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	for _, grant := range grantsForLevel(0) {
		_ = e.Grant(ctx, "off-agent", grant.Resource, grant.Actions, "migration")
	}
	if e.Check(ctx, "off-agent", "tool:web_search", "use") {
		t.Error("level 0 should deny every action")
	}

	for _, grant := range grantsForLevel(5) {
		if err := e.Grant(ctx, "full-agent", grant.Resource, grant.Actions, "migration"); err != nil {
			t.Fatalf("Grant: %v", err)
		}
	}
	if !e.Check(ctx, "full-agent", "anything:goes", "whatever") {
		t.Error("level 5 should allow every action on every resource")
	}
}

func TestLevel4DefaultInstall(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	registry := agentregistry.New(t.TempDir(), zaptest.NewLogger(t))
	if err := registry.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, err := registry.Create(&agentregistry.Agent{ID: "a1", Name: "A1", AccessLevel: agentregistry.LevelExec}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := e.AutoMigrateExistingAgents(ctx, registry); err != nil {
		t.Fatalf("AutoMigrateExistingAgents: %v", err)
	}

	if !e.Check(ctx, "a1", "tool:execute_code", "execute") {
		t.Error("expected level-4 agent to be granted execute on tool:execute_code")
	}
	if e.Check(ctx, "a1", "*", "*") {
		t.Error("level-4 agent should not have the full wildcard grant")
	}
}

func TestPrivilegeEscalationAnomaly(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.Register(ctx, "a1", "", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for i := 0; i < 6; i++ {
		e.Log(ctx, "a1", "tool:execute_code", "execute", false, "denied")
	}

	anomalies, err := e.DetectAnomalies(ctx, "a1")
	if err != nil {
		t.Fatalf("DetectAnomalies: %v", err)
	}

	found := false
	for _, a := range anomalies {
		if a.Type == AnomalyPrivilegeEscalation && a.Severity == SeverityHigh && a.AgentID == "a1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a privilege_escalation/high anomaly, got %+v", anomalies)
	}
}

func TestUnusualResourceNotFlaggedOnFirstEverAccess(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.Register(ctx, "a1", "", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	e.Log(ctx, "a1", "tool:new_thing", "read", true, "")

	anomalies, err := e.DetectAnomalies(ctx, "a1")
	if err != nil {
		t.Fatalf("DetectAnomalies: %v", err)
	}
	for _, a := range anomalies {
		if a.Type == AnomalyUnusualResource {
			t.Fatalf("agent's first-ever access must not be flagged as unusual, got %+v", a)
		}
	}
}

func TestUnusualResourceFlaggedWithPriorHistory(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.Register(ctx, "a1", "", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	old := time.Now().UTC().Add(-48 * time.Hour).Unix()
	if _, err := e.db.ExecContext(ctx,
		`INSERT INTO iam_access_log (agent_id, resource, action, timestamp, allowed, reason) VALUES (?, ?, ?, ?, ?, ?)`,
		"a1", "tool:known_thing", "read", old, 1, nil); err != nil {
		t.Fatalf("seed old access: %v", err)
	}

	e.Log(ctx, "a1", "tool:brand_new_thing", "read", true, "")

	anomalies, err := e.DetectAnomalies(ctx, "a1")
	if err != nil {
		t.Fatalf("DetectAnomalies: %v", err)
	}
	found := false
	for _, a := range anomalies {
		if a.Type == AnomalyUnusualResource && a.AgentID == "a1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an unusual_resource anomaly for a resource newer than prior history, got %+v", anomalies)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.Register(ctx, "a1", "owner1", "purpose1"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := e.Register(ctx, "a1", "owner2", "purpose2"); err != nil {
		t.Fatalf("second Register: %v", err)
	}

	agents, err := e.ListAgents(ctx, "")
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	count := 0
	for _, a := range agents {
		if a.ID == "a1" {
			count++
			if a.Owner != "owner1" {
				t.Errorf("expected first registration's owner to stick, got %q", a.Owner)
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 row for a1, got %d", count)
	}
}

func TestRiskScoreReflectsWildcardAndExecute(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.Grant(ctx, "a1", "*", []string{"*"}, "admin"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	score, err := e.CalculateRisk(ctx, "a1")
	if err != nil {
		t.Fatalf("CalculateRisk: %v", err)
	}
	if score < 0.30 {
		t.Fatalf("expected wildcard resource to contribute at least 0.30, got %v", score)
	}
}

func TestExplainRiskListsWildcardFinding(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.Grant(ctx, "a1", "*", []string{"*", "execute"}, "admin"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	findings, err := e.ExplainRisk(ctx, "a1")
	if err != nil {
		t.Fatalf("ExplainRisk: %v", err)
	}
	var sawWildcard bool
	for _, f := range findings {
		if f.Rule == "wildcard_resource" {
			sawWildcard = true
		}
	}
	if !sawWildcard {
		t.Fatalf("expected a wildcard_resource finding, got %+v", findings)
	}
}

func TestPruneDeletesOldLogRows(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	e.Log(ctx, "a1", "tool:x", "use", true, "")

	// olderThanDays=-1 pushes the cutoff a day into the future, guaranteeing
	// the row just inserted is treated as "older" regardless of test timing.
	n, err := e.Prune(ctx, -1)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row pruned, got %d", n)
	}
}
