package alert

import (
	"time"

	"github.com/google/uuid"
)

// Type names what condition raised an alert.
type Type string

const (
	TypeBudgetWarning   Type = "budget_warning"
	TypeBudgetCritical  Type = "budget_critical"
	TypeBudgetExhausted Type = "budget_exhausted"
	TypeSLORecovered    Type = "slo_recovered"
	TypeBurnRateHigh    Type = "burn_rate_high"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an event record created on a status transition or burn-rate
// breach. Alerts are never deleted, only updated in place as they move
// through unacknowledged -> acknowledged -> resolved.
type Alert struct {
	ID       string   `json:"id"`
	Type     Type     `json:"type"`
	Severity Severity `json:"severity"`
	SLOID    string   `json:"sloId"`
	SLOName  string   `json:"sloName"`
	Service  string   `json:"service"`
	Message  string   `json:"message"`

	// Triggering values.
	Value            float64 `json:"value"`
	Target           float64 `json:"target"`
	RemainingPercent float64 `json:"remainingPercent"`
	BurnRate         float64 `json:"burnRate,omitempty"`
	ShortBurnRate    float64 `json:"shortBurnRate,omitempty"`
	LongBurnRate     float64 `json:"longBurnRate,omitempty"`
	RuleName         string  `json:"ruleName,omitempty"`

	CreatedAt      time.Time  `json:"createdAt"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

func newAlert(t Type, severity Severity, now time.Time) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Type:      t,
		Severity:  severity,
		CreatedAt: now,
	}
}

// Acknowledge stamps the alert with an actor. It reports false when the
// alert was already acknowledged or resolved.
func (a *Alert) Acknowledge(by string, now time.Time) bool {
	if a.Acknowledged || a.Resolved {
		return false
	}
	a.Acknowledged = true
	a.AcknowledgedBy = by
	a.AcknowledgedAt = &now
	return true
}

// Resolve marks the alert resolved. It reports false when already resolved.
// Resolution does not require prior acknowledgement.
func (a *Alert) Resolve(now time.Time) bool {
	if a.Resolved {
		return false
	}
	a.Resolved = true
	a.ResolvedAt = &now
	return true
}
