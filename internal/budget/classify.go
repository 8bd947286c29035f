package budget

import (
	"github.com/emberops/ember/internal/slo"
)

// Classify maps a budget snapshot to a status. It is a pure function of the
// remaining budget percent and the SLO's thresholds; the previous status
// plays no part (transitions are the alert engine's concern).
func Classify(b ErrorBudget, t slo.AlertThresholds) slo.Status {
	switch {
	case b.RemainingPercent <= 0:
		return slo.StatusBreached
	case b.RemainingPercent < t.Critical:
		return slo.StatusCritical
	case b.RemainingPercent < t.Warning:
		return slo.StatusWarning
	default:
		return slo.StatusHealthy
	}
}
