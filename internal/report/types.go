package report

import (
	"time"

	"github.com/emberops/ember/internal/slo"
)

// Period names a trailing reporting window.
type Period string

const (
	PeriodDay     Period = "day"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

// Range is an explicit custom reporting window.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Trend classifies how the SLI moved between the two halves of the period.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// Report is a derived, on-demand aggregate over a reporting period. It is
// never persisted.
type Report struct {
	SLOID   string `json:"sloId"`
	SLOName string `json:"sloName"`
	Service string `json:"service"`

	Period Period    `json:"period"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`

	AchievedValue float64 `json:"achievedValue"`
	Target        float64 `json:"target"`
	Met           bool    `json:"met"`

	// Uptime is the fraction of measurements in healthy or warning.
	Uptime float64 `json:"uptime"`

	BudgetRemainingPercent float64 `json:"budgetRemainingPercent"`

	IncidentCount int            `json:"incidentCount"`
	TotalDowntime time.Duration  `json:"totalDowntime"`
	MTTR          *time.Duration `json:"mttr,omitempty"`

	Trend         Trend   `json:"trend"`
	ChangePercent float64 `json:"changePercent"`

	EntryCount  int       `json:"entryCount"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Summary is the fleet-wide snapshot derived from current states, not
// history.
type Summary struct {
	Total    int                `json:"total"`
	ByStatus map[slo.Status]int `json:"byStatus"`

	// AverageRemainingPercent is the mean budget-remaining percent across
	// all enabled SLOs with a measured state.
	AverageRemainingPercent float64 `json:"averageRemainingPercent"`

	// OverallHealth is the share of SLOs currently healthy, in percent.
	OverallHealth float64 `json:"overallHealth"`

	GeneratedAt time.Time `json:"generatedAt"`
}
