// Package memory is the reference in-memory Store implementation. It backs
// tests and single-process setups; everything is lost on restart.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/emberops/ember/internal/alert"
	"github.com/emberops/ember/internal/budget"
	"github.com/emberops/ember/internal/slo"
	"github.com/emberops/ember/internal/storage"
)

// Store keeps everything in maps behind one RWMutex. Good enough for the
// reference implementation: state writes for different SLOs only contend on
// the map lock, never on each other's records.
type Store struct {
	mu          sync.RWMutex
	definitions map[string]slo.Definition
	states      map[string]budget.State
	history     map[string][]budget.HistoryEntry
	alerts      map[string]alert.Alert
	alertOrder  []string
	burnRules   map[string]map[string]slo.BurnRule
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		definitions: make(map[string]slo.Definition),
		states:      make(map[string]budget.State),
		history:     make(map[string][]budget.HistoryEntry),
		alerts:      make(map[string]alert.Alert),
		burnRules:   make(map[string]map[string]slo.BurnRule),
	}
}

var _ storage.Store = (*Store)(nil)

// GetDefinition returns a copy of the definition, or nil when unknown.
func (s *Store) GetDefinition(id string) (*slo.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.definitions[id]
	if !ok {
		return nil, nil
	}
	return &def, nil
}

// SaveDefinition stores a copy of the definition.
func (s *Store) SaveDefinition(def *slo.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.definitions[def.ID] = *def
	return nil
}

// DeleteDefinition removes a definition, reporting whether it existed.
func (s *Store) DeleteDefinition(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[id]; !ok {
		return false, nil
	}
	delete(s.definitions, id)
	return true, nil
}

// ListDefinitions returns copies of definitions matching the filter.
func (s *Store) ListDefinitions(filter storage.DefinitionFilter) ([]slo.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []slo.Definition
	for _, def := range s.definitions {
		if filter.Service != "" && def.Service != filter.Service {
			continue
		}
		if filter.Team != "" && def.Team != filter.Team {
			continue
		}
		if filter.Enabled != nil && def.Enabled != *filter.Enabled {
			continue
		}
		out = append(out, def)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetState returns a copy of the current state, or nil when unknown.
func (s *Store) GetState(sloID string) (*budget.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[sloID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// SaveState replaces the current state snapshot.
func (s *Store) SaveState(state *budget.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.SLOID] = *state
	return nil
}

// DeleteState drops the state snapshot for an SLO.
func (s *Store) DeleteState(sloID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, sloID)
	return nil
}

// AppendHistory appends one immutable history entry.
func (s *Store) AppendHistory(entry budget.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[entry.SLOID] = append(s.history[entry.SLOID], entry)
	return nil
}

// HistoryRange returns entries with start <= timestamp <= end in temporal
// order.
func (s *Store) HistoryRange(sloID string, start, end time.Time) ([]budget.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []budget.HistoryEntry
	for _, entry := range s.history[sloID] {
		if entry.Timestamp.Before(start) || entry.Timestamp.After(end) {
			continue
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// PruneHistory removes entries older than cutoff and returns the count.
func (s *Store) PruneHistory(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for sloID, entries := range s.history {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.Timestamp.Before(cutoff) {
				pruned++
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == 0 {
			delete(s.history, sloID)
		} else {
			s.history[sloID] = kept
		}
	}

	return pruned, nil
}

// SaveAlert stores a copy of the alert, preserving creation order for
// listing.
func (s *Store) SaveAlert(a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[a.ID]; !ok {
		s.alertOrder = append(s.alertOrder, a.ID)
	}
	s.alerts[a.ID] = *a
	return nil
}

// GetAlert returns a copy of an alert, or nil when unknown.
func (s *Store) GetAlert(id string) (*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// ListAlerts returns alerts matching the filter, newest first.
func (s *Store) ListAlerts(filter storage.AlertFilter) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []alert.Alert
	for i := len(s.alertOrder) - 1; i >= 0; i-- {
		a := s.alerts[s.alertOrder[i]]
		if filter.SLOID != "" && a.SLOID != filter.SLOID {
			continue
		}
		if filter.Resolved != nil && a.Resolved != *filter.Resolved {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		out = append(out, a)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// UpdateAlert overwrites an existing alert record.
func (s *Store) UpdateAlert(a *alert.Alert) error {
	return s.SaveAlert(a)
}

// SaveBurnRule stores a rule keyed by (sloID, name).
func (s *Store) SaveBurnRule(sloID string, rule slo.BurnRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, ok := s.burnRules[sloID]
	if !ok {
		rules = make(map[string]slo.BurnRule)
		s.burnRules[sloID] = rules
	}
	rules[rule.Name] = rule
	return nil
}

// ListBurnRules returns all rules for an SLO, sorted by name.
func (s *Store) ListBurnRules(sloID string) ([]slo.BurnRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []slo.BurnRule
	for _, rule := range s.burnRules[sloID] {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteBurnRule removes one rule, reporting whether it existed.
func (s *Store) DeleteBurnRule(sloID, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, ok := s.burnRules[sloID]
	if !ok {
		return false, nil
	}
	if _, ok := rules[name]; !ok {
		return false, nil
	}
	delete(rules, name)
	return true, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
