package alert

import (
	"fmt"
	"time"

	"github.com/emberops/ember/internal/budget"
	"github.com/emberops/ember/internal/slo"
)

// Engine turns status transitions and burn-rate breaches into alert
// records. It holds no state of its own: persistence and event emission
// belong to the caller.
type Engine struct{}

// NewEngine creates a new alert engine.
func NewEngine() *Engine {
	return &Engine{}
}

// OnTransition compares the statuses around a measurement and returns the
// alert the transition warrants, or nil.
//
//   - entering warning from healthy or unknown raises budget_warning
//   - any transition into critical raises budget_critical
//   - any transition into breached raises budget_exhausted
//   - returning to healthy from warning/critical/breached raises
//     slo_recovered, already marked resolved
//
// Acknowledging an earlier alert never suppresses alerts for new
// transitions.
func (e *Engine) OnTransition(def *slo.Definition, prev slo.Status, state *budget.State, now time.Time) *Alert {
	next := state.Status
	if next == prev {
		return nil
	}

	var a Alert
	switch {
	// Entering warning from below (healthy or unknown); a critical or
	// breached SLO easing back to warning is an improvement, not news.
	case next == slo.StatusWarning && prev.Rank() < slo.StatusWarning.Rank():
		a = newAlert(TypeBudgetWarning, SeverityWarning, now)
		a.Message = fmt.Sprintf("%s: error budget warning: %.1f%% remaining (value %.3f%%, target %.3f%%)",
			def.Name, state.Budget.RemainingPercent, state.CurrentValue, state.Target)

	case next == slo.StatusCritical && prev != slo.StatusCritical:
		a = newAlert(TypeBudgetCritical, SeverityCritical, now)
		a.Message = fmt.Sprintf("%s: error budget critical: %.1f%% remaining (value %.3f%%, target %.3f%%)",
			def.Name, state.Budget.RemainingPercent, state.CurrentValue, state.Target)

	case next == slo.StatusBreached && prev != slo.StatusBreached:
		a = newAlert(TypeBudgetExhausted, SeverityCritical, now)
		a.Message = fmt.Sprintf("%s: error budget exhausted (value %.3f%%, target %.3f%%)",
			def.Name, state.CurrentValue, state.Target)

	// Recovery only from a degraded status; the first classification out
	// of unknown has nothing to recover from.
	case next == slo.StatusHealthy && prev.Rank() > slo.StatusHealthy.Rank():
		a = newAlert(TypeSLORecovered, SeverityInfo, now)
		a.Message = fmt.Sprintf("%s: recovered, %.1f%% of error budget remaining",
			def.Name, state.Budget.RemainingPercent)
		a.Resolve(now)

	default:
		return nil
	}

	e.fill(&a, def, state)
	return &a
}

// RuleBurnRates carries the measured burn rates for one rule's windows.
type RuleBurnRates struct {
	Short float64
	Long  float64
}

// OnBurnRule evaluates one multi-window rule. The rule fires only when
// both the short and the long window burn at or above their thresholds;
// requiring confirmation at two time scales is what keeps short transient
// spikes from paging anyone.
func (e *Engine) OnBurnRule(def *slo.Definition, rule slo.BurnRule, rates RuleBurnRates, state *budget.State, now time.Time) *Alert {
	if !rule.Enabled {
		return nil
	}
	if rates.Short < rule.ShortThreshold || rates.Long < rule.LongThreshold {
		return nil
	}

	a := newAlert(TypeBurnRateHigh, ruleSeverity(rule.Severity), now)
	a.Message = fmt.Sprintf("%s: burn rate high (%s): short[%s]=%.2fx >= %.2fx, long[%s]=%.2fx >= %.2fx",
		def.Name, rule.Name,
		rule.ShortWindow, rates.Short, rule.ShortThreshold,
		rule.LongWindow, rates.Long, rule.LongThreshold)
	a.RuleName = rule.Name
	a.ShortBurnRate = rates.Short
	a.LongBurnRate = rates.Long

	e.fill(&a, def, state)
	return &a
}

func (e *Engine) fill(a *Alert, def *slo.Definition, state *budget.State) {
	a.SLOID = def.ID
	a.SLOName = def.Name
	a.Service = def.Service
	a.Value = state.CurrentValue
	a.Target = state.Target
	a.RemainingPercent = state.Budget.RemainingPercent
	if a.BurnRate == 0 {
		a.BurnRate = state.Budget.BurnRate
	}
}

// ruleSeverity maps a rule's paging weight to an alert severity.
func ruleSeverity(s slo.RuleSeverity) Severity {
	switch s {
	case slo.SeverityPage:
		return SeverityCritical
	case slo.SeverityTicket:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
