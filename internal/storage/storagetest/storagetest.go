// Package storagetest holds the behavioral contract suite every Store
// implementation must pass.
package storagetest

import (
	"testing"
	"time"

	"github.com/emberops/ember/internal/alert"
	"github.com/emberops/ember/internal/budget"
	"github.com/emberops/ember/internal/slo"
	"github.com/emberops/ember/internal/storage"
)

// Factory builds a fresh, empty store for one subtest. Cleanup is wired
// through t.Cleanup by the factory itself.
type Factory func(t *testing.T) storage.Store

// Run exercises the storage contract against the given factory.
func Run(t *testing.T, factory Factory) {
	t.Run("Definitions", func(t *testing.T) { testDefinitions(t, factory(t)) })
	t.Run("State", func(t *testing.T) { testState(t, factory(t)) })
	t.Run("History", func(t *testing.T) { testHistory(t, factory(t)) })
	t.Run("Alerts", func(t *testing.T) { testAlerts(t, factory(t)) })
	t.Run("BurnRules", func(t *testing.T) { testBurnRules(t, factory(t)) })
}

func definition(id, service, team string, enabled bool) *slo.Definition {
	d30, _ := slo.ParseDuration("30d")
	return &slo.Definition{
		ID:      id,
		Name:    id + "-availability",
		Service: service,
		Team:    team,
		SLI: slo.SLIConfig{
			Type:       slo.SLIAvailability,
			Source:     slo.SourcePrometheus,
			GoodQuery:  "good",
			TotalQuery: "total",
		},
		Target: slo.Target{Value: 99.9},
		Window: slo.Window{Type: slo.WindowRolling, Duration: d30},
		Thresholds: slo.AlertThresholds{
			Warning:  slo.DefaultWarningThreshold,
			Critical: slo.DefaultCriticalThreshold,
		},
		Enabled:   enabled,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testDefinitions(t *testing.T, store storage.Store) {
	if def, err := store.GetDefinition("missing"); err != nil || def != nil {
		t.Fatalf("unknown id should be (nil, nil), got (%v, %v)", def, err)
	}

	defs := []*slo.Definition{
		definition("slo-a", "api", "core", true),
		definition("slo-b", "api", "edge", false),
		definition("slo-c", "billing", "core", true),
	}
	for _, def := range defs {
		if err := store.SaveDefinition(def); err != nil {
			t.Fatalf("save %s: %v", def.ID, err)
		}
	}

	got, err := store.GetDefinition("slo-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Name != "slo-a-availability" || got.Service != "api" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Window.Duration.String() != "30d" || got.Target.Value != 99.9 {
		t.Errorf("nested fields lost: %+v", got)
	}

	// Overwrite updates in place.
	updated := definition("slo-a", "api", "core", true)
	updated.Name = "renamed"
	if err := store.SaveDefinition(updated); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = store.GetDefinition("slo-a")
	if got.Name != "renamed" {
		t.Errorf("overwrite not applied: %q", got.Name)
	}

	// Filters.
	all, err := store.ListDefinitions(storage.DefinitionFilter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("list all = %d defs, err %v", len(all), err)
	}
	byService, _ := store.ListDefinitions(storage.DefinitionFilter{Service: "api"})
	if len(byService) != 2 {
		t.Errorf("service filter = %d, want 2", len(byService))
	}
	byTeam, _ := store.ListDefinitions(storage.DefinitionFilter{Team: "core"})
	if len(byTeam) != 2 {
		t.Errorf("team filter = %d, want 2", len(byTeam))
	}
	enabled := true
	byEnabled, _ := store.ListDefinitions(storage.DefinitionFilter{Enabled: &enabled})
	if len(byEnabled) != 2 {
		t.Errorf("enabled filter = %d, want 2", len(byEnabled))
	}
	combined, _ := store.ListDefinitions(storage.DefinitionFilter{Service: "api", Enabled: &enabled})
	if len(combined) != 1 || combined[0].ID != "slo-a" {
		t.Errorf("combined filter = %+v, want slo-a only", combined)
	}

	// Delete.
	existed, err := store.DeleteDefinition("slo-b")
	if err != nil || !existed {
		t.Fatalf("delete existing = (%v, %v)", existed, err)
	}
	existed, err = store.DeleteDefinition("slo-b")
	if err != nil || existed {
		t.Errorf("delete twice = (%v, %v), want (false, nil)", existed, err)
	}
}

func testState(t *testing.T, store storage.Store) {
	if st, err := store.GetState("missing"); err != nil || st != nil {
		t.Fatalf("unknown state should be (nil, nil), got (%v, %v)", st, err)
	}

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	projected := now.Add(48 * time.Hour)
	days := 2.0
	state := &budget.State{
		SLOID:        "slo-a",
		Status:       slo.StatusWarning,
		CurrentValue: 99.2,
		Target:       99.9,
		Budget: budget.ErrorBudget{
			Total:               0.1,
			Consumed:            0.07,
			Remaining:           0.03,
			RemainingPercent:    30,
			BurnRate:            1.4,
			Trend:               budget.TrendStable,
			ProjectedExhaustion: &projected,
			DaysRemaining:       &days,
		},
		WindowStart:      now.Add(-10 * 24 * time.Hour),
		TotalGood:        99200,
		TotalEvents:      100000,
		LastMeasurement:  now,
		MeasurementCount: 42,
	}
	if err := store.SaveState(state); err != nil {
		t.Fatalf("save state: %v", err)
	}

	got, err := store.GetState("slo-a")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if got.Status != slo.StatusWarning || got.MeasurementCount != 42 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Budget.ProjectedExhaustion == nil || !got.Budget.ProjectedExhaustion.Equal(projected) {
		t.Errorf("projection lost: %+v", got.Budget)
	}

	// Replace wholesale.
	state.Status = slo.StatusCritical
	state.MeasurementCount = 43
	if err := store.SaveState(state); err != nil {
		t.Fatalf("replace state: %v", err)
	}
	got, _ = store.GetState("slo-a")
	if got.Status != slo.StatusCritical || got.MeasurementCount != 43 {
		t.Errorf("replace not applied: %+v", got)
	}

	if err := store.DeleteState("slo-a"); err != nil {
		t.Fatalf("delete state: %v", err)
	}
	if got, _ := store.GetState("slo-a"); got != nil {
		t.Error("state should be gone after delete")
	}
}

func testHistory(t *testing.T, store storage.Store) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := store.AppendHistory(budget.HistoryEntry{
			SLOID:            "slo-a",
			Timestamp:        base.Add(time.Duration(i) * time.Hour),
			Value:            99.9,
			Target:           99.9,
			Status:           slo.StatusHealthy,
			RemainingPercent: 100,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	// A second SLO's history must stay isolated.
	if err := store.AppendHistory(budget.HistoryEntry{
		SLOID: "slo-b", Timestamp: base, Value: 50, Target: 99.9, Status: slo.StatusBreached,
	}); err != nil {
		t.Fatalf("append other: %v", err)
	}

	entries, err := store.HistoryRange("slo-a", base, base.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			t.Fatal("entries out of temporal order")
		}
	}

	// Inclusive bounds.
	bounded, _ := store.HistoryRange("slo-a", base.Add(time.Hour), base.Add(3*time.Hour))
	if len(bounded) != 3 {
		t.Errorf("inclusive range = %d entries, want 3", len(bounded))
	}

	// Prune drops entries older than the cutoff, across SLOs.
	pruned, err := store.PruneHistory(base.Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 3 {
		t.Errorf("pruned = %d, want 3 (two from slo-a, one from slo-b)", pruned)
	}

	// Prune is idempotent at the same cutoff.
	pruned, err = store.PruneHistory(base.Add(2 * time.Hour))
	if err != nil || pruned != 0 {
		t.Errorf("second prune = (%d, %v), want (0, nil)", pruned, err)
	}

	remaining, _ := store.HistoryRange("slo-a", base, base.Add(10*time.Hour))
	if len(remaining) != 3 {
		t.Errorf("remaining = %d entries, want 3", len(remaining))
	}
}

func testAlerts(t *testing.T, store storage.Store) {
	if a, err := store.GetAlert("missing"); err != nil || a != nil {
		t.Fatalf("unknown alert should be (nil, nil), got (%v, %v)", a, err)
	}

	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	alerts := []*alert.Alert{
		{ID: "al-1", Type: alert.TypeBudgetWarning, Severity: alert.SeverityWarning, SLOID: "slo-a", CreatedAt: base},
		{ID: "al-2", Type: alert.TypeBudgetCritical, Severity: alert.SeverityCritical, SLOID: "slo-a", CreatedAt: base.Add(time.Minute)},
		{ID: "al-3", Type: alert.TypeBurnRateHigh, Severity: alert.SeverityCritical, SLOID: "slo-b", RuleName: "fast-burn", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, a := range alerts {
		if err := store.SaveAlert(a); err != nil {
			t.Fatalf("save %s: %v", a.ID, err)
		}
	}

	all, err := store.ListAlerts(storage.AlertFilter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("list all = %d, err %v", len(all), err)
	}
	if all[0].ID != "al-3" || all[2].ID != "al-1" {
		t.Errorf("expected newest first, got %s..%s", all[0].ID, all[2].ID)
	}

	bySLO, _ := store.ListAlerts(storage.AlertFilter{SLOID: "slo-a"})
	if len(bySLO) != 2 {
		t.Errorf("slo filter = %d, want 2", len(bySLO))
	}
	bySeverity, _ := store.ListAlerts(storage.AlertFilter{Severity: alert.SeverityCritical})
	if len(bySeverity) != 2 {
		t.Errorf("severity filter = %d, want 2", len(bySeverity))
	}
	limited, _ := store.ListAlerts(storage.AlertFilter{Limit: 1})
	if len(limited) != 1 || limited[0].ID != "al-3" {
		t.Errorf("limit = %+v, want just al-3", limited)
	}

	// Acknowledge and resolve through UpdateAlert.
	a, _ := store.GetAlert("al-1")
	a.Acknowledge("oncall", base.Add(5*time.Minute))
	a.Resolve(base.Add(6 * time.Minute))
	if err := store.UpdateAlert(a); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := store.GetAlert("al-1")
	if !got.Acknowledged || got.AcknowledgedBy != "oncall" || !got.Resolved {
		t.Errorf("update not persisted: %+v", got)
	}

	unresolved := false
	open, _ := store.ListAlerts(storage.AlertFilter{Resolved: &unresolved})
	if len(open) != 2 {
		t.Errorf("unresolved filter = %d, want 2", len(open))
	}
}

func testBurnRules(t *testing.T, store storage.Store) {
	rules, err := store.ListBurnRules("slo-a")
	if err != nil || len(rules) != 0 {
		t.Fatalf("empty list = (%d, %v)", len(rules), err)
	}

	for _, rule := range slo.GoogleSREBurnRules() {
		if err := store.SaveBurnRule("slo-a", rule); err != nil {
			t.Fatalf("save rule: %v", err)
		}
	}

	rules, err = store.ListBurnRules("slo-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].Name != "fast-burn" || rules[1].Name != "slow-burn" {
		t.Errorf("rules not sorted by name: %v, %v", rules[0].Name, rules[1].Name)
	}
	if rules[0].ShortThreshold != 14.4 {
		t.Errorf("rule fields lost: %+v", rules[0])
	}

	// Replace by (sloID, name).
	changed := rules[0]
	changed.ShortThreshold = 10
	if err := store.SaveBurnRule("slo-a", changed); err != nil {
		t.Fatalf("replace: %v", err)
	}
	rules, _ = store.ListBurnRules("slo-a")
	if len(rules) != 2 || rules[0].ShortThreshold != 10 {
		t.Errorf("replace not applied: %+v", rules)
	}

	existed, err := store.DeleteBurnRule("slo-a", "fast-burn")
	if err != nil || !existed {
		t.Fatalf("delete = (%v, %v)", existed, err)
	}
	existed, _ = store.DeleteBurnRule("slo-a", "fast-burn")
	if existed {
		t.Error("second delete should report false")
	}
	rules, _ = store.ListBurnRules("slo-a")
	if len(rules) != 1 {
		t.Errorf("expected 1 rule left, got %d", len(rules))
	}
}
