package slo

import (
	"time"
)

// Status classifies the health of an SLO from its error budget.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusBreached Status = "breached"
)

// Rank orders statuses from best to worst. Unknown ranks below healthy so
// that the first classification is always an observable transition.
func (s Status) Rank() int {
	switch s {
	case StatusHealthy:
		return 1
	case StatusWarning:
		return 2
	case StatusCritical:
		return 3
	case StatusBreached:
		return 4
	default:
		return 0
	}
}

// SLIType is the dimension of service behavior an SLI measures.
type SLIType string

const (
	SLIAvailability SLIType = "availability"
	SLILatency      SLIType = "latency"
	SLIThroughput   SLIType = "throughput"
	SLIErrorRate    SLIType = "error_rate"
	SLISaturation   SLIType = "saturation"
	SLIFreshness    SLIType = "freshness"
	SLICorrectness  SLIType = "correctness"
	SLICoverage     SLIType = "coverage"
	SLIDurability   SLIType = "durability"
)

// MetricSource identifies which registered metric provider serves an SLI.
type MetricSource string

const (
	SourcePrometheus MetricSource = "prometheus"
	SourceCustom     MetricSource = "custom"
	SourceLogs       MetricSource = "logs"
	SourceTraces     MetricSource = "traces"
	SourceSynthetic  MetricSource = "synthetic"
)

// WindowType selects how the compliance window advances.
type WindowType string

const (
	// WindowRolling restarts the window wherever the previous one expired.
	WindowRolling WindowType = "rolling"
	// WindowCalendar aligns the window start to the calendar boundary
	// (day, ISO week, month, quarter, year) matching its duration.
	WindowCalendar WindowType = "calendar"
)

// SLIConfig describes what to measure and how. Either GoodQuery+TotalQuery
// or a single RatioQuery must be set, never both.
type SLIConfig struct {
	Type               SLIType           `json:"type" yaml:"type"`
	Source             MetricSource      `json:"source" yaml:"source"`
	GoodQuery          string            `json:"goodQuery,omitempty" yaml:"goodQuery,omitempty"`
	TotalQuery         string            `json:"totalQuery,omitempty" yaml:"totalQuery,omitempty"`
	RatioQuery         string            `json:"ratioQuery,omitempty" yaml:"ratioQuery,omitempty"`
	LatencyThresholdMs *int              `json:"latencyThresholdMs,omitempty" yaml:"latencyThresholdMs,omitempty"`
	LatencyPercentile  *float64          `json:"latencyPercentile,omitempty" yaml:"latencyPercentile,omitempty"`
	Labels             map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// IsRatio reports whether the SLI is measured with a single ratio query.
func (c SLIConfig) IsRatio() bool {
	return c.RatioQuery != ""
}

// Target is the objective percentage for the SLI, with optional per-window
// overrides keyed by duration string ("7d", "30d").
type Target struct {
	Value   float64            `json:"value" yaml:"value"`
	Windows map[string]float64 `json:"windows,omitempty" yaml:"windows,omitempty"`
}

// ForWindow resolves the effective target for a window duration.
func (t Target) ForWindow(d Duration) float64 {
	if v, ok := t.Windows[d.String()]; ok {
		return v
	}
	return t.Value
}

// Window is the SLO compliance window.
type Window struct {
	Type     WindowType `json:"type,omitempty" yaml:"type,omitempty"`
	Duration Duration   `json:"duration" yaml:"duration"`
}

// AlertThresholds are budget-remaining percentages below which the SLO is
// classified warning or critical.
type AlertThresholds struct {
	Warning  float64 `json:"warning" yaml:"warning"`
	Critical float64 `json:"critical" yaml:"critical"`
}

// Default classification thresholds, in percent of budget remaining.
const (
	DefaultWarningThreshold  = 50.0
	DefaultCriticalThreshold = 20.0
)

// RuleSeverity is the paging weight of a burn-rate rule.
type RuleSeverity string

const (
	SeverityPage   RuleSeverity = "page"
	SeverityTicket RuleSeverity = "ticket"
	SeverityLog    RuleSeverity = "log"
)

// BurnRule is a multi-window burn-rate alerting rule. It fires only when
// both windows are burning at or above their thresholds at the same time.
type BurnRule struct {
	Name           string       `json:"name" yaml:"name"`
	ShortWindow    Duration     `json:"shortWindow" yaml:"shortWindow"`
	ShortThreshold float64      `json:"shortThreshold" yaml:"shortThreshold"`
	LongWindow     Duration     `json:"longWindow" yaml:"longWindow"`
	LongThreshold  float64      `json:"longThreshold" yaml:"longThreshold"`
	Severity       RuleSeverity `json:"severity" yaml:"severity"`
	Enabled        bool         `json:"enabled" yaml:"enabled"`
}

// Definition is a complete SLO definition. Identity and CreatedAt never
// change after creation; everything else changes only via explicit update.
type Definition struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Service     string          `json:"service" yaml:"service"`
	Team        string          `json:"team,omitempty" yaml:"team,omitempty"`
	SLI         SLIConfig       `json:"sli" yaml:"sli"`
	Target      Target          `json:"target" yaml:"target"`
	Window      Window          `json:"window" yaml:"window"`
	Thresholds  AlertThresholds `json:"thresholds" yaml:"thresholds"`
	BurnRules   []BurnRule      `json:"burnRules,omitempty" yaml:"burnRules,omitempty"`
	Tags        []string        `json:"tags,omitempty" yaml:"tags,omitempty"`
	Enabled     bool            `json:"enabled" yaml:"enabled"`
	CreatedAt   time.Time       `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt" yaml:"updatedAt"`
}

// EffectiveTarget is the target percentage for the definition's own window.
func (d *Definition) EffectiveTarget() float64 {
	return d.Target.ForWindow(d.Window.Duration)
}
