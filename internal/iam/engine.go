package iam

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// checkActions is the fixed action list find_agents_with_access probes
// when deciding whether an agent can reach a resource at all.
var checkActions = []string{"read", "write", "execute", "use", "*"}

// Engine is the IAM component: identities, permissions, access log, and
// the risk/anomaly analysis over them. All public methods are safe for
// concurrent use; the database itself (single writer connection) and the
// in-process caches are the only shared state.
type Engine struct {
	db     *sql.DB
	cache  *caches
	logger *zap.Logger
}

// Option to open path. cacheTTL controls how long resolved identities and
// permission sets stay warm before a cache miss forces a reload.
func Open(path string, cacheTTL time.Duration, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Engine{db: db, cache: newCaches(cacheTTL), logger: logger}, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// Register inserts an agent identity if absent. Idempotent: a second call
// with an existing id is a no-op that still warms the identity cache.
func (e *Engine) Register(ctx context.Context, id, owner, purpose string) error {
	if id == "" {
		return ErrInvalidGrant
	}

	if existing, ok := e.cache.getIdentity(id); ok {
		_ = existing
		return nil
	}

	identity, err := e.loadIdentity(ctx, id)
	if err == nil {
		e.cache.putIdentity(identity)
		return nil
	}
	if err != ErrNoIdentity {
		e.logger.Error("iam: load identity failed", zap.String("agent", id), zap.Error(err))
		return err
	}

	now := time.Now().UTC()
	_, err = e.db.ExecContext(ctx,
		`INSERT INTO agent_identities (id, owner, purpose, created_at, risk_score) VALUES (?, ?, ?, ?, 0)`,
		id, owner, purpose, now.Unix())
	if err != nil {
		e.logger.Error("iam: register failed", zap.String("agent", id), zap.Error(err))
		return fmt.Errorf("register agent %q: %w", id, err)
	}

	e.cache.putIdentity(&AgentIdentity{ID: id, Owner: owner, Purpose: purpose, CreatedAt: now})
	return nil
}

// Grant ensures the agent identity exists, replaces any existing
// permission for exactly this (agent, resource) pair, and inserts the new
// grant. Empty resource or actions are rejected silently (matching
// spec.md's "empty inputs are rejected silently").
func (e *Engine) Grant(ctx context.Context, agentID, resource string, actions []string, grantedBy string) error {
	if agentID == "" || resource == "" || len(actions) == 0 {
		return nil
	}

	if err := e.Register(ctx, agentID, "", ""); err != nil {
		return err
	}

	csv := actionsCSV(actions)
	if csv == "" {
		return nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grant transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM iam_permissions WHERE agent_id = ? AND resource = ?`, agentID, resource); err != nil {
		return fmt.Errorf("delete existing permission: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO iam_permissions (agent_id, resource, actions, granted_at, granted_by) VALUES (?, ?, ?, ?, ?)`,
		agentID, resource, csv, time.Now().UTC().Unix(), grantedBy); err != nil {
		return fmt.Errorf("insert permission: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grant: %w", err)
	}

	e.cache.invalidate(agentID)
	return nil
}

// Revoke deletes the permission row for exactly (agent, resource).
func (e *Engine) Revoke(ctx context.Context, agentID, resource string) error {
	if _, err := e.db.ExecContext(ctx,
		`DELETE FROM iam_permissions WHERE agent_id = ? AND resource = ?`, agentID, resource); err != nil {
		e.logger.Error("iam: revoke failed", zap.String("agent", agentID), zap.Error(err))
		return fmt.Errorf("revoke: %w", err)
	}
	e.cache.invalidate(agentID)
	return nil
}

// RevokeAll deletes every permission row for agent.
func (e *Engine) RevokeAll(ctx context.Context, agentID string) error {
	if _, err := e.db.ExecContext(ctx,
		`DELETE FROM iam_permissions WHERE agent_id = ?`, agentID); err != nil {
		e.logger.Error("iam: revoke_all failed", zap.String("agent", agentID), zap.Error(err))
		return fmt.Errorf("revoke_all: %w", err)
	}
	e.cache.invalidate(agentID)
	return nil
}

// Remove deletes the agent identity; permissions cascade via the foreign
// key's ON DELETE CASCADE.
func (e *Engine) Remove(ctx context.Context, agentID string) error {
	if _, err := e.db.ExecContext(ctx, `DELETE FROM agent_identities WHERE id = ?`, agentID); err != nil {
		e.logger.Error("iam: remove failed", zap.String("agent", agentID), zap.Error(err))
		return fmt.Errorf("remove: %w", err)
	}
	e.cache.invalidate(agentID)
	return nil
}

// Check reports whether agent has action on resource: a direct permission
// match, or a wildcard-resource permission listing the action or "*".
func (e *Engine) Check(ctx context.Context, agentID, resource, action string) bool {
	perms, err := e.permissionsFor(ctx, agentID)
	if err != nil {
		e.logger.Error("iam: check failed, denying", zap.String("agent", agentID), zap.Error(err))
		return false
	}
	return permissionGrants(perms, resource, action)
}

// CheckAndLog calls Check, then logs the access with the outcome. Denied
// accesses are logged with a generated reason and should be surfaced
// externally (e.g. onto the event bus) as warnings by the caller.
func (e *Engine) CheckAndLog(ctx context.Context, agentID, resource, action string) bool {
	allowed := e.Check(ctx, agentID, resource, action)
	reason := ""
	if !allowed {
		reason = fmt.Sprintf("No matching permission for %s on %s", action, resource)
	}
	e.Log(ctx, agentID, resource, action, allowed, reason)
	return allowed
}

// Log appends a raw access-log row.
func (e *Engine) Log(ctx context.Context, agentID, resource, action string, allowed bool, reason string) {
	allowedInt := 0
	if allowed {
		allowedInt = 1
	}
	var reasonArg interface{}
	if reason != "" {
		reasonArg = reason
	}
	if _, err := e.db.ExecContext(ctx,
		`INSERT INTO iam_access_log (agent_id, resource, action, timestamp, allowed, reason) VALUES (?, ?, ?, ?, ?, ?)`,
		agentID, resource, action, time.Now().UTC().Unix(), allowedInt, reasonArg); err != nil {
		e.logger.Error("iam: log failed", zap.String("agent", agentID), zap.Error(err))
	}
}

// ListAgents returns every identity, optionally filtered by owner.
func (e *Engine) ListAgents(ctx context.Context, owner string) ([]AgentIdentity, error) {
	query := `SELECT id, owner, purpose, created_at, risk_score FROM agent_identities`
	args := []interface{}{}
	if owner != "" {
		query += ` WHERE owner = ?`
		args = append(args, owner)
	}
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		e.logger.Error("iam: list_agents failed", zap.Error(err))
		return nil, nil
	}
	defer rows.Close()

	var out []AgentIdentity
	for rows.Next() {
		var a AgentIdentity
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.Owner, &a.Purpose, &createdAt, &a.RiskScore); err != nil {
			e.logger.Error("iam: scan identity failed", zap.Error(err))
			continue
		}
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, a)
	}
	return out, nil
}

// Get returns the identity for id, always refreshing its permissions from
// disk even when the identity itself is cache-hit.
func (e *Engine) Get(ctx context.Context, id string) (*AgentIdentity, []Permission, error) {
	identity, ok := e.cache.getIdentity(id)
	if !ok {
		loaded, err := e.loadIdentity(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		identity = loaded
		e.cache.putIdentity(identity)
	}

	perms, err := e.loadPermissions(ctx, id)
	if err != nil {
		return identity, nil, err
	}
	e.cache.putPermissions(id, perms)
	return identity, perms, nil
}

// FindAgentsWithAccess enumerates distinct agent ids holding any
// permission row, then returns those for whom Check succeeds for at
// least one of read/write/execute/use/*.
func (e *Engine) FindAgentsWithAccess(ctx context.Context, resource string) []string {
	rows, err := e.db.QueryContext(ctx, `SELECT DISTINCT agent_id FROM iam_permissions`)
	if err != nil {
		e.logger.Error("iam: find_agents_with_access failed", zap.Error(err))
		return nil
	}
	defer rows.Close()

	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		candidates = append(candidates, id)
	}

	var matched []string
	for _, id := range candidates {
		for _, action := range checkActions {
			if e.Check(ctx, id, resource, action) {
				matched = append(matched, id)
				break
			}
		}
	}
	return matched
}

// GetAccessLog returns log rows filtered by optional agent and resource
// (resource using SQL LIKE with "*" translated to "%"), newest first.
func (e *Engine) GetAccessLog(ctx context.Context, agentID, resource string, limit, offset int) []AccessLogEntry {
	query := `SELECT id, agent_id, resource, action, timestamp, allowed, COALESCE(reason, '') FROM iam_access_log WHERE 1=1`
	var args []interface{}
	if agentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, agentID)
	}
	if resource != "" {
		query += ` AND resource LIKE ?`
		args = append(args, strings.ReplaceAll(resource, "*", "%"))
	}
	query += ` ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		e.logger.Error("iam: get_access_log failed", zap.Error(err))
		return nil
	}
	defer rows.Close()

	var out []AccessLogEntry
	for rows.Next() {
		var entry AccessLogEntry
		var ts int64
		var allowedInt int
		if err := rows.Scan(&entry.ID, &entry.AgentID, &entry.Resource, &entry.Action, &ts, &allowedInt, &entry.Reason); err != nil {
			continue
		}
		entry.Timestamp = time.Unix(ts, 0).UTC()
		entry.Allowed = allowedInt != 0
		out = append(out, entry)
	}
	return out
}

// Prune deletes access-log rows older than olderThanDays and reports how
// many were removed.
func (e *Engine) Prune(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays).Unix()
	res, err := e.db.ExecContext(ctx, `DELETE FROM iam_access_log WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune access log: %w", err)
	}
	return res.RowsAffected()
}

// CalculateRisk computes, persists, and returns the current risk score
// for agentID, rebuilding its identity cache entry with the new value.
func (e *Engine) CalculateRisk(ctx context.Context, agentID string) (float64, error) {
	score, err := e.calculateRisk(ctx, agentID)
	if err != nil {
		return 0, err
	}
	if _, err := e.db.ExecContext(ctx, `UPDATE agent_identities SET risk_score = ? WHERE id = ?`, score, agentID); err != nil {
		return 0, fmt.Errorf("persist risk score: %w", err)
	}
	if identity, err := e.loadIdentity(ctx, agentID); err == nil {
		e.cache.putIdentity(identity)
	}
	return score, nil
}

// ExplainRisk returns the individual additive factors behind agentID's
// risk score, supplementing the scalar CalculateRisk result with
// operator-facing diagnostics. It does not persist anything.
func (e *Engine) ExplainRisk(ctx context.Context, agentID string) ([]RiskFinding, error) {
	return e.explainRisk(ctx, agentID)
}

// DetectAnomalies returns the union of every anomaly rule's findings for
// agentID.
func (e *Engine) DetectAnomalies(ctx context.Context, agentID string) ([]Anomaly, error) {
	return e.detectAnomalies(ctx, agentID)
}

// ---- internal loaders ----

func (e *Engine) loadIdentity(ctx context.Context, id string) (*AgentIdentity, error) {
	var a AgentIdentity
	var createdAt int64
	err := e.db.QueryRowContext(ctx,
		`SELECT id, owner, purpose, created_at, risk_score FROM agent_identities WHERE id = ?`, id,
	).Scan(&a.ID, &a.Owner, &a.Purpose, &createdAt, &a.RiskScore)
	if err == sql.ErrNoRows {
		return nil, ErrNoIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("load identity %q: %w", id, err)
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &a, nil
}

func (e *Engine) loadPermissions(ctx context.Context, agentID string) ([]Permission, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT id, agent_id, resource, actions, granted_at, granted_by FROM iam_permissions WHERE agent_id = ?`, agentID)
	if err != nil {
		return nil, fmt.Errorf("load permissions for %q: %w", agentID, err)
	}
	defer rows.Close()

	var out []Permission
	for rows.Next() {
		var p Permission
		var csv string
		var grantedAt int64
		if err := rows.Scan(&p.ID, &p.AgentID, &p.Resource, &csv, &grantedAt, &p.GrantedBy); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		p.Actions = parseActionsCSV(csv)
		p.GrantedAt = time.Unix(grantedAt, 0).UTC()
		out = append(out, p)
	}
	return out, nil
}

// permissionsFor returns agentID's permission set, cache-first.
func (e *Engine) permissionsFor(ctx context.Context, agentID string) ([]Permission, error) {
	if perms, ok := e.cache.getPermissions(agentID); ok {
		return perms, nil
	}
	perms, err := e.loadPermissions(ctx, agentID)
	if err != nil {
		return nil, err
	}
	e.cache.putPermissions(agentID, perms)
	return perms, nil
}

func (e *Engine) accessCounts(ctx context.Context, agentID string, window time.Duration) (denied int, total int, err error) {
	since := time.Now().UTC().Add(-window).Unix()
	err = e.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN allowed = 0 THEN 1 ELSE 0 END), 0)
		 FROM iam_access_log WHERE agent_id = ? AND timestamp >= ?`, agentID, since,
	).Scan(&total, &denied)
	if err != nil {
		return 0, 0, fmt.Errorf("access counts: %w", err)
	}
	return denied, total, nil
}

func (e *Engine) countAccesses(ctx context.Context, agentID string, window time.Duration, deniedOnly bool) (int, error) {
	since := time.Now().UTC().Add(-window).Unix()
	query := `SELECT COUNT(*) FROM iam_access_log WHERE agent_id = ? AND timestamp >= ?`
	args := []interface{}{agentID, since}
	if deniedOnly {
		query += ` AND allowed = 0`
	}
	var count int
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count accesses: %w", err)
	}
	return count, nil
}

func (e *Engine) countPrivilegedDenials(ctx context.Context, agentID string, window time.Duration) (int, error) {
	since := time.Now().UTC().Add(-window).Unix()
	rows, err := e.db.QueryContext(ctx,
		`SELECT resource, action FROM iam_access_log WHERE agent_id = ? AND timestamp >= ? AND allowed = 0`,
		agentID, since)
	if err != nil {
		return 0, fmt.Errorf("count privileged denials: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var resource, action string
		if err := rows.Scan(&resource, &action); err != nil {
			continue
		}
		if isPrivilegedResourceOrAction(resource, action) {
			count++
		}
	}
	return count, nil
}

// hasAccessHistoryBefore reports whether agentID has any access log rows
// older than the given unix timestamp, i.e. whether it has any history at
// all predating a detection window.
func (e *Engine) hasAccessHistoryBefore(ctx context.Context, agentID string, since int64) (bool, error) {
	var exists bool
	err := e.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM iam_access_log WHERE agent_id = ? AND timestamp < ?)`,
		agentID, since,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("access history check: %w", err)
	}
	return exists, nil
}

// firstAccessWithinWindowOnly returns every resource accessed by agentID
// whose earliest-ever access timestamp falls inside the last `window`
// (i.e. the agent has no access history for that resource before the
// window started). An agent with no access history at all before the
// window is never flagged: a brand new agent's first interaction with
// the system is not "unusual", it simply has no history yet.
func (e *Engine) firstAccessWithinWindowOnly(ctx context.Context, agentID string, window time.Duration) ([]string, error) {
	since := time.Now().UTC().Add(-window).Unix()

	hasHistory, err := e.hasAccessHistoryBefore(ctx, agentID, since)
	if err != nil {
		return nil, err
	}
	if !hasHistory {
		return nil, nil
	}

	rows, err := e.db.QueryContext(ctx,
		`SELECT resource, MIN(timestamp) FROM iam_access_log WHERE agent_id = ? GROUP BY resource`, agentID)
	if err != nil {
		return nil, fmt.Errorf("first access scan: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var resource string
		var first int64
		if err := rows.Scan(&resource, &first); err != nil {
			continue
		}
		if first >= since {
			out = append(out, resource)
		}
	}
	return out, nil
}
