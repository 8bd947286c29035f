package sqlite

// Schema defines the SQLite database schema.
const Schema = `
-- SLO definitions table
CREATE TABLE IF NOT EXISTS slo_definitions (
	id TEXT PRIMARY KEY,
	service TEXT NOT NULL,
	team TEXT NOT NULL DEFAULT '',
	enabled BOOLEAN NOT NULL DEFAULT 1,
	definition_json TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_slo_definitions_service ON slo_definitions(service);
CREATE INDEX IF NOT EXISTS idx_slo_definitions_team ON slo_definitions(team);

-- Current state, one row per SLO
CREATE TABLE IF NOT EXISTS slo_state (
	slo_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	state_json TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Measurement history, append-only
CREATE TABLE IF NOT EXISTS slo_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slo_id TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	value REAL NOT NULL,
	target REAL NOT NULL,
	status TEXT NOT NULL,
	remaining_percent REAL NOT NULL,
	burn_rate REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_slo_history_slo_id ON slo_history(slo_id);
CREATE INDEX IF NOT EXISTS idx_slo_history_timestamp ON slo_history(timestamp);

-- Alerts, updated in place, never deleted
CREATE TABLE IF NOT EXISTS slo_alerts (
	id TEXT PRIMARY KEY,
	slo_id TEXT NOT NULL,
	type TEXT NOT NULL,
	severity TEXT NOT NULL,
	resolved BOOLEAN NOT NULL DEFAULT 0,
	alert_json TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_slo_alerts_slo_id ON slo_alerts(slo_id);
CREATE INDEX IF NOT EXISTS idx_slo_alerts_resolved ON slo_alerts(resolved);
CREATE INDEX IF NOT EXISTS idx_slo_alerts_created_at ON slo_alerts(created_at DESC);

-- Burn-rate rules, keyed by (slo_id, name)
CREATE TABLE IF NOT EXISTS burn_rules (
	slo_id TEXT NOT NULL,
	name TEXT NOT NULL,
	rule_json TEXT NOT NULL,
	PRIMARY KEY (slo_id, name)
);
`
