package budget

import (
	"time"

	"github.com/emberops/ember/internal/slo"
)

// Measurement is one normalized SLI sample handed to the calculator.
// For ratio SLIs, Good holds the ratio and Total the unit base of 100.
type Measurement struct {
	Good      float64   `json:"good"`
	Total     float64   `json:"total"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Trend tags the direction the burn rate is heading.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
)

// ErrorBudget is a snapshot of budget consumption. All budget fields share
// the percentage unit of the SLI; Total is 100 minus the target.
//
// Invariants: 0 <= Remaining <= Total, Consumed = Total - Remaining
// (Consumed clamps at Total on overrun), BurnRate >= 0.
type ErrorBudget struct {
	Total               float64    `json:"total"`
	Consumed            float64    `json:"consumed"`
	Remaining           float64    `json:"remaining"`
	RemainingPercent    float64    `json:"remainingPercent"`
	BurnRate            float64    `json:"burnRate"`
	Trend               Trend      `json:"trend"`
	ProjectedExhaustion *time.Time `json:"projectedExhaustion,omitempty"`
	DaysRemaining       *float64   `json:"daysRemaining,omitempty"`
}

// State is the live snapshot for one SLO. It is owned by the measurement
// cycle and replaced wholesale on every measurement, never mutated in place
// from two places.
type State struct {
	SLOID            string      `json:"sloId"`
	Status           slo.Status  `json:"status"`
	CurrentValue     float64     `json:"currentValue"`
	Target           float64     `json:"target"`
	Budget           ErrorBudget `json:"budget"`
	WindowStart      time.Time   `json:"windowStart"`
	TotalGood        float64     `json:"totalGood"`
	TotalEvents      float64     `json:"totalEvents"`
	LastMeasurement  time.Time   `json:"lastMeasurement"`
	MeasurementCount int64       `json:"measurementCount"`
}

// NewState returns the initial state for a freshly created definition:
// status unknown, untouched budget, window starting now.
func NewState(def *slo.Definition, now time.Time) *State {
	target := def.EffectiveTarget()
	total := 100 - target
	return &State{
		SLOID:        def.ID,
		Status:       slo.StatusUnknown,
		Target:       target,
		WindowStart:  windowStart(def.Window, now),
		CurrentValue: 0,
		Budget: ErrorBudget{
			Total:            total,
			Remaining:        total,
			RemainingPercent: 100,
			Trend:            TrendStable,
		},
	}
}

// HistoryEntry is the immutable per-measurement record appended to storage.
// Entries are never mutated or deleted except by retention pruning.
type HistoryEntry struct {
	SLOID            string     `json:"sloId"`
	Timestamp        time.Time  `json:"timestamp"`
	Value            float64    `json:"value"`
	Target           float64    `json:"target"`
	Status           slo.Status `json:"status"`
	RemainingPercent float64    `json:"remainingPercent"`
	BurnRate         float64    `json:"burnRate"`
}

// EntryFromState derives the history record for a freshly computed state.
func EntryFromState(s *State) HistoryEntry {
	return HistoryEntry{
		SLOID:            s.SLOID,
		Timestamp:        s.LastMeasurement,
		Value:            s.CurrentValue,
		Target:           s.Target,
		Status:           s.Status,
		RemainingPercent: s.Budget.RemainingPercent,
		BurnRate:         s.Budget.BurnRate,
	}
}
