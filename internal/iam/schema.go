package iam

const schema = `
CREATE TABLE IF NOT EXISTS agent_identities (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	purpose TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	risk_score REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS iam_permissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL REFERENCES agent_identities(id) ON DELETE CASCADE,
	resource TEXT NOT NULL,
	actions TEXT NOT NULL,
	granted_at INTEGER NOT NULL,
	granted_by TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS iam_access_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	resource TEXT NOT NULL,
	action TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	allowed INTEGER NOT NULL,
	reason TEXT
);

CREATE INDEX IF NOT EXISTS idx_permissions_agent ON iam_permissions(agent_id);
CREATE INDEX IF NOT EXISTS idx_permissions_resource ON iam_permissions(resource);
CREATE INDEX IF NOT EXISTS idx_access_log_agent ON iam_access_log(agent_id);
CREATE INDEX IF NOT EXISTS idx_access_log_timestamp ON iam_access_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_access_log_resource ON iam_access_log(resource);
`
