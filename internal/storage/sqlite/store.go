// Package sqlite is the durable Store implementation on SQLite. Records
// are stored as JSON blobs next to the columns that queries filter on.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/emberops/ember/internal/alert"
	"github.com/emberops/ember/internal/budget"
	"github.com/emberops/ember/internal/slo"
	"github.com/emberops/ember/internal/storage"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (and migrates) a SQLite database at the given path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

var _ storage.Store = (*Store)(nil)

// GetDefinition returns the definition or nil when unknown.
func (s *Store) GetDefinition(id string) (*slo.Definition, error) {
	var blob string
	err := s.db.QueryRow("SELECT definition_json FROM slo_definitions WHERE id = ?", id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}

	var def slo.Definition
	if err := json.Unmarshal([]byte(blob), &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
	}
	return &def, nil
}

// SaveDefinition inserts or replaces the definition.
func (s *Store) SaveDefinition(def *slo.Definition) error {
	blob, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	query := `
		INSERT INTO slo_definitions (id, service, team, enabled, definition_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			service = excluded.service,
			team = excluded.team,
			enabled = excluded.enabled,
			definition_json = excluded.definition_json,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = s.db.Exec(query, def.ID, def.Service, def.Team, def.Enabled, string(blob))
	if err != nil {
		return fmt.Errorf("failed to save definition: %w", err)
	}
	return nil
}

// DeleteDefinition removes a definition, reporting whether it existed.
func (s *Store) DeleteDefinition(id string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM slo_definitions WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete definition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListDefinitions returns definitions matching the filter, ordered by id.
func (s *Store) ListDefinitions(filter storage.DefinitionFilter) ([]slo.Definition, error) {
	query := "SELECT definition_json FROM slo_definitions WHERE 1=1"
	args := []interface{}{}

	if filter.Service != "" {
		query += " AND service = ?"
		args = append(args, filter.Service)
	}
	if filter.Team != "" {
		query += " AND team = ?"
		args = append(args, filter.Team)
	}
	if filter.Enabled != nil {
		query += " AND enabled = ?"
		args = append(args, *filter.Enabled)
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var defs []slo.Definition
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var def slo.Definition
		if err := json.Unmarshal([]byte(blob), &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// GetState returns the current state snapshot or nil when unknown.
func (s *Store) GetState(sloID string) (*budget.State, error) {
	var blob string
	err := s.db.QueryRow("SELECT state_json FROM slo_state WHERE slo_id = ?", sloID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}

	var state budget.State
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// SaveState replaces the state snapshot for the SLO.
func (s *Store) SaveState(state *budget.State) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := `
		INSERT INTO slo_state (slo_id, status, state_json)
		VALUES (?, ?, ?)
		ON CONFLICT(slo_id) DO UPDATE SET
			status = excluded.status,
			state_json = excluded.state_json,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = s.db.Exec(query, state.SLOID, string(state.Status), string(blob))
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// DeleteState drops the state snapshot for an SLO.
func (s *Store) DeleteState(sloID string) error {
	if _, err := s.db.Exec("DELETE FROM slo_state WHERE slo_id = ?", sloID); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

// AppendHistory appends one history entry.
func (s *Store) AppendHistory(entry budget.HistoryEntry) error {
	query := `
		INSERT INTO slo_history (slo_id, timestamp, value, target, status, remaining_percent, burn_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		entry.SLOID,
		entry.Timestamp,
		entry.Value,
		entry.Target,
		string(entry.Status),
		entry.RemainingPercent,
		entry.BurnRate,
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// HistoryRange returns entries with start <= timestamp <= end in temporal
// order.
func (s *Store) HistoryRange(sloID string, start, end time.Time) ([]budget.HistoryEntry, error) {
	query := `
		SELECT slo_id, timestamp, value, target, status, remaining_percent, burn_rate
		FROM slo_history
		WHERE slo_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`
	rows, err := s.db.Query(query, sloID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []budget.HistoryEntry
	for rows.Next() {
		var entry budget.HistoryEntry
		var status string
		err := rows.Scan(
			&entry.SLOID,
			&entry.Timestamp,
			&entry.Value,
			&entry.Target,
			&status,
			&entry.RemainingPercent,
			&entry.BurnRate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entry.Status = slo.Status(status)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PruneHistory removes entries older than cutoff and returns the count.
func (s *Store) PruneHistory(cutoff time.Time) (int, error) {
	res, err := s.db.Exec("DELETE FROM slo_history WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// SaveAlert inserts or replaces an alert record.
func (s *Store) SaveAlert(a *alert.Alert) error {
	blob, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	query := `
		INSERT INTO slo_alerts (id, slo_id, type, severity, resolved, alert_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			resolved = excluded.resolved,
			alert_json = excluded.alert_json
	`
	_, err = s.db.Exec(query, a.ID, a.SLOID, string(a.Type), string(a.Severity), a.Resolved, string(blob), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// GetAlert returns the alert or nil when unknown.
func (s *Store) GetAlert(id string) (*alert.Alert, error) {
	var blob string
	err := s.db.QueryRow("SELECT alert_json FROM slo_alerts WHERE id = ?", id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	var a alert.Alert
	if err := json.Unmarshal([]byte(blob), &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
	}
	return &a, nil
}

// ListAlerts returns alerts matching the filter, newest first.
func (s *Store) ListAlerts(filter storage.AlertFilter) ([]alert.Alert, error) {
	query := "SELECT alert_json FROM slo_alerts WHERE 1=1"
	args := []interface{}{}

	if filter.SLOID != "" {
		query += " AND slo_id = ?"
		args = append(args, filter.SLOID)
	}
	if filter.Resolved != nil {
		query += " AND resolved = ?"
		args = append(args, *filter.Resolved)
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []alert.Alert
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var a alert.Alert
		if err := json.Unmarshal([]byte(blob), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// UpdateAlert overwrites an existing alert record.
func (s *Store) UpdateAlert(a *alert.Alert) error {
	return s.SaveAlert(a)
}

// SaveBurnRule inserts or replaces a rule keyed by (sloID, name).
func (s *Store) SaveBurnRule(sloID string, rule slo.BurnRule) error {
	blob, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal burn rule: %w", err)
	}

	query := `
		INSERT INTO burn_rules (slo_id, name, rule_json)
		VALUES (?, ?, ?)
		ON CONFLICT(slo_id, name) DO UPDATE SET rule_json = excluded.rule_json
	`
	if _, err := s.db.Exec(query, sloID, rule.Name, string(blob)); err != nil {
		return fmt.Errorf("failed to save burn rule: %w", err)
	}
	return nil
}

// ListBurnRules returns all rules for an SLO, ordered by name.
func (s *Store) ListBurnRules(sloID string) ([]slo.BurnRule, error) {
	rows, err := s.db.Query("SELECT rule_json FROM burn_rules WHERE slo_id = ? ORDER BY name", sloID)
	if err != nil {
		return nil, fmt.Errorf("failed to list burn rules: %w", err)
	}
	defer rows.Close()

	var rules []slo.BurnRule
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var rule slo.BurnRule
		if err := json.Unmarshal([]byte(blob), &rule); err != nil {
			return nil, fmt.Errorf("failed to unmarshal burn rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeleteBurnRule removes one rule, reporting whether it existed.
func (s *Store) DeleteBurnRule(sloID, name string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM burn_rules WHERE slo_id = ? AND name = ?", sloID, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete burn rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
