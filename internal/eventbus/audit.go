package eventbus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"go.uber.org/zap"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	topic TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	source TEXT NOT NULL,
	severity TEXT NOT NULL,
	timestamp REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_topic ON audit_events(topic);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
`

// auditStore persists the critical subset of events to SQLite. A nil
// *auditStore (or one whose db is nil) disables persistence without
// disabling the rest of the bus — per spec.md §4.1's failure semantics,
// "audit DB open failure is logged and disables persistence only."
type auditStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// openAuditStore opens (creating if necessary) the audit SQLite database at
// path. On failure it returns a disabled store and a non-nil error so the
// caller can log and continue in degraded mode.
func openAuditStore(path string, logger *zap.Logger) (*auditStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return &auditStore{logger: logger}, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer avoids SQLITE_BUSY under WAL
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return &auditStore{logger: logger}, fmt.Errorf("init audit schema: %w", err)
	}
	return &auditStore{db: db, logger: logger}, nil
}

func (s *auditStore) enabled() bool { return s != nil && s.db != nil }

func (s *auditStore) close() error {
	if !s.enabled() {
		return nil
	}
	return s.db.Close()
}

func (s *auditStore) persist(ctx context.Context, ev Event, severity string) {
	if !s.enabled() {
		return
	}
	payloadJSON, err := json.Marshal(ev.Payload)
	if err != nil {
		s.logger.Error("eventbus: marshal audit payload", zap.Error(err))
		return
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (topic, payload_json, source, severity, timestamp) VALUES (?, ?, ?, ?, ?)`,
		ev.Name, string(payloadJSON), ev.Source, severity, float64(ev.Timestamp),
	)
	if err != nil {
		s.logger.Error("eventbus: persist audit event", zap.String("topic", ev.Name), zap.Error(err))
	}
}

// criticalEvents returns up to limit persisted critical events, optionally
// filtered by exact topic name, ordered most recent first.
func (s *auditStore) criticalEvents(ctx context.Context, limit int, name string) ([]CriticalRecord, error) {
	if !s.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, topic, payload_json, source, severity, timestamp FROM audit_events`
	args := []any{}
	if name != "" {
		query += ` WHERE topic = ?`
		args = append(args, name)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []CriticalRecord
	for rows.Next() {
		var rec CriticalRecord
		var payloadJSON string
		if err := rows.Scan(&rec.ID, &rec.Topic, &payloadJSON, &rec.Source, &rec.Severity, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &rec.Payload); err != nil {
			rec.Payload = map[string]string{}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
