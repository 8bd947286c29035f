package storage

import (
	"time"

	"github.com/emberops/ember/internal/alert"
	"github.com/emberops/ember/internal/budget"
	"github.com/emberops/ember/internal/slo"
)

// DefinitionFilter narrows ListDefinitions.
type DefinitionFilter struct {
	Service string
	Team    string
	Enabled *bool
}

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	SLOID    string
	Resolved *bool
	Severity alert.Severity
	Limit    int
}

// Store is the pluggable persistence contract. Lookups for unknown ids
// return (nil, nil), not an error.
//
// A write for one SLO must never block or corrupt a concurrent write for
// another; writes for the same SLO arrive serialized by the measurement
// scheduling discipline, so single-record atomicity is all that's required.
type Store interface {
	// Definitions.
	GetDefinition(id string) (*slo.Definition, error)
	SaveDefinition(def *slo.Definition) error
	DeleteDefinition(id string) (bool, error)
	ListDefinitions(filter DefinitionFilter) ([]slo.Definition, error)

	// Current state, one snapshot per SLO.
	GetState(sloID string) (*budget.State, error)
	SaveState(state *budget.State) error
	DeleteState(sloID string) error

	// Measurement history, append-only.
	AppendHistory(entry budget.HistoryEntry) error
	HistoryRange(sloID string, start, end time.Time) ([]budget.HistoryEntry, error)
	// PruneHistory removes entries with timestamp < cutoff across all SLOs
	// and returns the count removed.
	PruneHistory(cutoff time.Time) (int, error)

	// Alerts. Never deleted, only updated (acknowledge/resolve).
	SaveAlert(a *alert.Alert) error
	GetAlert(id string) (*alert.Alert, error)
	ListAlerts(filter AlertFilter) ([]alert.Alert, error)
	UpdateAlert(a *alert.Alert) error

	// Burn-rate rules, keyed by (sloID, name).
	SaveBurnRule(sloID string, rule slo.BurnRule) error
	ListBurnRules(sloID string) ([]slo.BurnRule, error)
	DeleteBurnRule(sloID, name string) (bool, error)

	Close() error
}
