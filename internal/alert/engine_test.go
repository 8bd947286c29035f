package alert

import (
	"strings"
	"testing"
	"time"

	"github.com/emberops/ember/internal/budget"
	"github.com/emberops/ember/internal/slo"
)

func alertTestDef() *slo.Definition {
	d30, _ := slo.ParseDuration("30d")
	return &slo.Definition{
		ID:      "slo-1",
		Name:    "api-availability",
		Service: "api",
		Target:  slo.Target{Value: 99.9},
		Window:  slo.Window{Type: slo.WindowRolling, Duration: d30},
		Thresholds: slo.AlertThresholds{
			Warning:  slo.DefaultWarningThreshold,
			Critical: slo.DefaultCriticalThreshold,
		},
		Enabled: true,
	}
}

func stateWithStatus(status slo.Status, remainingPercent float64) *budget.State {
	return &budget.State{
		SLOID:        "slo-1",
		Status:       status,
		CurrentValue: 99.5,
		Target:       99.9,
		Budget:       budget.ErrorBudget{RemainingPercent: remainingPercent, BurnRate: 1.2},
	}
}

func TestOnTransitionMatrix(t *testing.T) {
	tests := []struct {
		name     string
		prev     slo.Status
		next     slo.Status
		wantType Type
		wantNil  bool
	}{
		{"healthy to warning", slo.StatusHealthy, slo.StatusWarning, TypeBudgetWarning, false},
		{"unknown to warning", slo.StatusUnknown, slo.StatusWarning, TypeBudgetWarning, false},
		{"critical to warning is not a warning alert", slo.StatusCritical, slo.StatusWarning, "", true},
		{"breached to warning is not a warning alert", slo.StatusBreached, slo.StatusWarning, "", true},
		{"healthy to critical", slo.StatusHealthy, slo.StatusCritical, TypeBudgetCritical, false},
		{"warning to critical", slo.StatusWarning, slo.StatusCritical, TypeBudgetCritical, false},
		{"unknown to critical", slo.StatusUnknown, slo.StatusCritical, TypeBudgetCritical, false},
		{"breached to critical", slo.StatusBreached, slo.StatusCritical, TypeBudgetCritical, false},
		{"healthy to breached", slo.StatusHealthy, slo.StatusBreached, TypeBudgetExhausted, false},
		{"unknown to breached", slo.StatusUnknown, slo.StatusBreached, TypeBudgetExhausted, false},
		{"critical to breached", slo.StatusCritical, slo.StatusBreached, TypeBudgetExhausted, false},
		{"warning to healthy", slo.StatusWarning, slo.StatusHealthy, TypeSLORecovered, false},
		{"critical to healthy", slo.StatusCritical, slo.StatusHealthy, TypeSLORecovered, false},
		{"breached to healthy", slo.StatusBreached, slo.StatusHealthy, TypeSLORecovered, false},
		{"unknown to healthy is not a recovery", slo.StatusUnknown, slo.StatusHealthy, "", true},
		{"no change healthy", slo.StatusHealthy, slo.StatusHealthy, "", true},
		{"no change critical", slo.StatusCritical, slo.StatusCritical, "", true},
	}

	engine := NewEngine()
	def := alertTestDef()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := stateWithStatus(tt.next, 42)
			a := engine.OnTransition(def, tt.prev, state, now)

			if tt.wantNil {
				if a != nil {
					t.Fatalf("expected no alert, got %v", a.Type)
				}
				return
			}
			if a == nil {
				t.Fatal("expected an alert, got nil")
			}
			if a.Type != tt.wantType {
				t.Errorf("type = %v, want %v", a.Type, tt.wantType)
			}
			if a.SLOID != def.ID || a.SLOName != def.Name || a.Service != def.Service {
				t.Errorf("identity not filled: %+v", a)
			}
			if a.ID == "" {
				t.Error("expected a generated alert ID")
			}
		})
	}
}

func TestRecoveryAlertIsBornResolved(t *testing.T) {
	engine := NewEngine()
	def := alertTestDef()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	a := engine.OnTransition(def, slo.StatusCritical, stateWithStatus(slo.StatusHealthy, 80), now)
	if a == nil {
		t.Fatal("expected a recovery alert")
	}
	if !a.Resolved || a.ResolvedAt == nil {
		t.Error("recovery alerts must be resolved on creation")
	}
	if a.Severity != SeverityInfo {
		t.Errorf("severity = %v, want info", a.Severity)
	}
}

func TestTransitionSeverities(t *testing.T) {
	engine := NewEngine()
	def := alertTestDef()
	now := time.Now()

	warn := engine.OnTransition(def, slo.StatusHealthy, stateWithStatus(slo.StatusWarning, 40), now)
	if warn.Severity != SeverityWarning {
		t.Errorf("budget_warning severity = %v, want warning", warn.Severity)
	}

	crit := engine.OnTransition(def, slo.StatusWarning, stateWithStatus(slo.StatusCritical, 10), now)
	if crit.Severity != SeverityCritical {
		t.Errorf("budget_critical severity = %v, want critical", crit.Severity)
	}

	exhausted := engine.OnTransition(def, slo.StatusCritical, stateWithStatus(slo.StatusBreached, 0), now)
	if exhausted.Severity != SeverityCritical {
		t.Errorf("budget_exhausted severity = %v, want critical", exhausted.Severity)
	}
	if !strings.Contains(exhausted.Message, "exhausted") {
		t.Errorf("message %q should mention exhaustion", exhausted.Message)
	}
}

func burnTestRule() slo.BurnRule {
	h1, _ := slo.ParseDuration("1h")
	h6, _ := slo.ParseDuration("6h")
	return slo.BurnRule{
		Name:           "fast-burn",
		ShortWindow:    h1,
		ShortThreshold: 14.4,
		LongWindow:     h6,
		LongThreshold:  6,
		Severity:       slo.SeverityPage,
		Enabled:        true,
	}
}

func TestOnBurnRuleRequiresBothWindows(t *testing.T) {
	tests := []struct {
		name    string
		short   float64
		long    float64
		wantNil bool
	}{
		{"both breach", 15, 7, false},
		{"both exactly at threshold", 14.4, 6, false},
		{"only short breaches", 20, 2, true},
		{"only long breaches", 5, 10, true},
		{"neither breaches", 1, 1, true},
	}

	engine := NewEngine()
	def := alertTestDef()
	rule := burnTestRule()
	state := stateWithStatus(slo.StatusWarning, 40)
	now := time.Now()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := engine.OnBurnRule(def, rule, RuleBurnRates{Short: tt.short, Long: tt.long}, state, now)
			if tt.wantNil {
				if a != nil {
					t.Fatalf("expected suppression, got alert %v", a.Message)
				}
				return
			}
			if a == nil {
				t.Fatal("expected an alert, got nil")
			}
			if a.Type != TypeBurnRateHigh {
				t.Errorf("type = %v, want burn_rate_high", a.Type)
			}
			if a.RuleName != "fast-burn" {
				t.Errorf("rule name = %q", a.RuleName)
			}
			if a.ShortBurnRate != tt.short || a.LongBurnRate != tt.long {
				t.Errorf("burn rates not recorded: %+v", a)
			}
		})
	}
}

func TestOnBurnRuleDisabledRuleNeverFires(t *testing.T) {
	engine := NewEngine()
	rule := burnTestRule()
	rule.Enabled = false

	a := engine.OnBurnRule(alertTestDef(), rule, RuleBurnRates{Short: 100, Long: 100},
		stateWithStatus(slo.StatusWarning, 40), time.Now())
	if a != nil {
		t.Error("disabled rule must not fire")
	}
}

func TestOnBurnRuleSeverityMapping(t *testing.T) {
	tests := []struct {
		rule     slo.RuleSeverity
		expected Severity
	}{
		{slo.SeverityPage, SeverityCritical},
		{slo.SeverityTicket, SeverityWarning},
		{slo.SeverityLog, SeverityInfo},
	}

	engine := NewEngine()
	def := alertTestDef()
	state := stateWithStatus(slo.StatusWarning, 40)
	now := time.Now()

	for _, tt := range tests {
		rule := burnTestRule()
		rule.Severity = tt.rule
		a := engine.OnBurnRule(def, rule, RuleBurnRates{Short: 20, Long: 10}, state, now)
		if a == nil {
			t.Fatalf("severity %v: expected alert", tt.rule)
		}
		if a.Severity != tt.expected {
			t.Errorf("rule severity %v mapped to %v, want %v", tt.rule, a.Severity, tt.expected)
		}
	}
}

func TestAcknowledgeAndResolveLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	a := newAlert(TypeBudgetWarning, SeverityWarning, now)

	if !a.Acknowledge("oncall@example.com", now) {
		t.Fatal("first acknowledge should succeed")
	}
	if a.Acknowledge("someone-else", now) {
		t.Error("second acknowledge should report false")
	}
	if a.AcknowledgedBy != "oncall@example.com" {
		t.Errorf("acknowledgedBy = %q", a.AcknowledgedBy)
	}

	if !a.Resolve(now) {
		t.Fatal("resolve should succeed")
	}
	if a.Resolve(now) {
		t.Error("second resolve should report false")
	}
	if a.Acknowledge("late", now) {
		t.Error("acknowledge after resolve should report false")
	}
}

func TestResolveWithoutAcknowledge(t *testing.T) {
	now := time.Now()
	a := newAlert(TypeBudgetCritical, SeverityCritical, now)
	if !a.Resolve(now) {
		t.Error("resolution must not require acknowledgement")
	}
}
