package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/emberops/ember/internal/adapter/synthetic"
	"github.com/emberops/ember/internal/alert"
	"github.com/emberops/ember/internal/event"
	"github.com/emberops/ember/internal/provider"
	"github.com/emberops/ember/internal/report"
	"github.com/emberops/ember/internal/slo"
	"github.com/emberops/ember/internal/storage"
	"github.com/emberops/ember/internal/storage/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	manager *Manager
	store   *memory.Store
	adapter *synthetic.Adapter
	clock   *fakeClock

	mu     sync.Mutex
	events []event.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:   memory.NewStore(),
		adapter: synthetic.NewAdapter(),
		clock:   &fakeClock{t: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)},
	}

	registry := provider.NewRegistry()
	registry.Register(slo.SourcePrometheus, h.adapter)

	mgr, err := New(Options{
		Store:           h.store,
		Providers:       registry,
		AlertingEnabled: true,
		BurnRateAlerts:  true,
		Now:             h.clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	h.manager = mgr

	mgr.Bus().SubscribeAll(func(e event.Event) {
		h.mu.Lock()
		h.events = append(h.events, e)
		h.mu.Unlock()
	})

	return h
}

func (h *harness) eventsOfType(t event.Type) []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []event.Event
	for _, e := range h.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) definition(target float64, window string) slo.Definition {
	d, _ := slo.ParseDuration(window)
	return slo.Definition{
		Name:    "api-availability",
		Service: "api",
		SLI: slo.SLIConfig{
			Type:       slo.SLIAvailability,
			Source:     slo.SourcePrometheus,
			GoodQuery:  "good",
			TotalQuery: "total",
		},
		Target:  slo.Target{Value: target},
		Window:  slo.Window{Type: slo.WindowRolling, Duration: d},
		Enabled: true,
	}
}

func TestCreateSLO(t *testing.T) {
	h := newHarness(t)

	def := h.definition(99.9, "30d")
	def.BurnRules = slo.GoogleSREBurnRules()

	created, err := h.manager.CreateSLO(def)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated ID")
	}
	if created.Thresholds.Warning != slo.DefaultWarningThreshold {
		t.Errorf("thresholds not defaulted: %+v", created.Thresholds)
	}

	state, err := h.manager.GetState(created.ID)
	if err != nil || state == nil {
		t.Fatalf("initial state: (%v, %v)", state, err)
	}
	if state.Status != slo.StatusUnknown {
		t.Errorf("initial status = %v, want unknown", state.Status)
	}
	if state.Budget.RemainingPercent != 100 {
		t.Errorf("initial remaining = %v, want 100", state.Budget.RemainingPercent)
	}

	rules, err := h.store.ListBurnRules(created.ID)
	if err != nil || len(rules) != 2 {
		t.Errorf("burn rules persisted = %d, want 2", len(rules))
	}

	if got := h.eventsOfType(event.SLOCreated); len(got) != 1 {
		t.Errorf("sloCreated events = %d, want 1", len(got))
	}
}

func TestCreateSLORejectsInvalid(t *testing.T) {
	h := newHarness(t)

	def := h.definition(0, "30d")
	if _, err := h.manager.CreateSLO(def); err == nil {
		t.Fatal("expected validation error")
	}

	defs, _ := h.manager.ListSLOs(storage.DefinitionFilter{})
	if len(defs) != 0 {
		t.Error("invalid definition must not be persisted")
	}
}

func TestMeasureHealthy(t *testing.T) {
	h := newHarness(t)

	created, err := h.manager.CreateSLO(h.definition(99.0, "30d"))
	if err != nil {
		t.Fatal(err)
	}
	h.adapter.SetValue("good", 9995)
	h.adapter.SetValue("total", 10000)

	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatalf("measure: %v", err)
	}

	state, _ := h.manager.GetState(created.ID)
	if state.Status != slo.StatusHealthy {
		t.Errorf("status = %v, want healthy", state.Status)
	}
	if state.CurrentValue != 99.95 {
		t.Errorf("current value = %v, want 99.95", state.CurrentValue)
	}
	if state.Budget.RemainingPercent != 100 {
		t.Errorf("remaining = %v, want 100", state.Budget.RemainingPercent)
	}

	if got := h.eventsOfType(event.Measured); len(got) != 1 {
		t.Errorf("measured events = %d, want 1", len(got))
	}
	// unknown -> healthy is a state change but not an alert.
	if got := h.eventsOfType(event.StateChanged); len(got) != 1 {
		t.Errorf("stateChanged events = %d, want 1", len(got))
	}
	if got := h.eventsOfType(event.AlertTriggered); len(got) != 0 {
		t.Errorf("alertTriggered events = %d, want 0", len(got))
	}
}

func TestMeasureBudgetExhausted(t *testing.T) {
	h := newHarness(t)

	created, err := h.manager.CreateSLO(h.definition(99.9, "30d"))
	if err != nil {
		t.Fatal(err)
	}
	// 99.0% against a 99.9% target wipes the whole budget at once.
	h.adapter.SetValue("good", 9900)
	h.adapter.SetValue("total", 10000)

	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatalf("measure: %v", err)
	}

	state, _ := h.manager.GetState(created.ID)
	if state.Status != slo.StatusBreached {
		t.Fatalf("status = %v, want breached", state.Status)
	}

	alerts, _ := h.manager.ListAlerts(storage.AlertFilter{SLOID: created.ID})
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Type != alert.TypeBudgetExhausted {
		t.Errorf("alert type = %v, want budget_exhausted", alerts[0].Type)
	}
	if got := h.eventsOfType(event.BudgetExhausted); len(got) != 1 {
		t.Errorf("budgetExhausted events = %d, want 1", len(got))
	}
}

func TestDegradationFiresWarningThenCritical(t *testing.T) {
	h := newHarness(t)

	created, err := h.manager.CreateSLO(h.definition(99.0, "30d"))
	if err != nil {
		t.Fatal(err)
	}

	// First cycle: 98.4% leaves 40% of budget, inside the warning band.
	h.adapter.SetValue("good", 9840)
	h.adapter.SetValue("total", 10000)
	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}

	state, _ := h.manager.GetState(created.ID)
	if state.Status != slo.StatusWarning {
		t.Fatalf("after first cycle status = %v, want warning", state.Status)
	}

	// Second cycle drags the cumulative value to 98.1%, 10% remaining.
	h.clock.Advance(time.Minute)
	h.adapter.SetValue("good", 9780)
	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}

	state, _ = h.manager.GetState(created.ID)
	if state.Status != slo.StatusCritical {
		t.Fatalf("after second cycle status = %v, want critical", state.Status)
	}

	alerts, _ := h.manager.ListAlerts(storage.AlertFilter{SLOID: created.ID})
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want exactly 2", len(alerts))
	}
	// Newest first.
	if alerts[0].Type != alert.TypeBudgetCritical || alerts[1].Type != alert.TypeBudgetWarning {
		t.Errorf("alert types = %v, %v; want budget_critical then budget_warning", alerts[0].Type, alerts[1].Type)
	}
}

func TestRecoveryAfterWindowRollover(t *testing.T) {
	h := newHarness(t)

	created, err := h.manager.CreateSLO(h.definition(99.0, "1h"))
	if err != nil {
		t.Fatal(err)
	}

	h.adapter.SetValue("good", 9840)
	h.adapter.SetValue("total", 10000)
	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}
	state, _ := h.manager.GetState(created.ID)
	if state.Status != slo.StatusWarning {
		t.Fatalf("status = %v, want warning", state.Status)
	}

	// Past the window end the counters reset with no carry-over.
	h.clock.Advance(2 * time.Hour)
	h.adapter.SetValue("good", 10000)
	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}

	state, _ = h.manager.GetState(created.ID)
	if state.Status != slo.StatusHealthy {
		t.Fatalf("status = %v, want healthy after rollover", state.Status)
	}
	if state.TotalEvents != 10000 {
		t.Errorf("counters carried over: %v", state.TotalEvents)
	}

	alerts, _ := h.manager.ListAlerts(storage.AlertFilter{SLOID: created.ID})
	var recovered *alert.Alert
	for i := range alerts {
		if alerts[i].Type == alert.TypeSLORecovered {
			recovered = &alerts[i]
		}
	}
	if recovered == nil {
		t.Fatal("expected an slo_recovered alert")
	}
	if !recovered.Resolved {
		t.Error("recovery alert must be born resolved")
	}
	if got := h.eventsOfType(event.AlertResolved); len(got) != 1 {
		t.Errorf("alertResolved events = %d, want 1", len(got))
	}
}

func TestMissingProviderSkipsCycle(t *testing.T) {
	h := newHarness(t)

	def := h.definition(99.0, "30d")
	def.SLI.Source = slo.SourceLogs
	created, err := h.manager.CreateSLO(def)
	if err != nil {
		t.Fatal(err)
	}

	err = h.manager.MeasureNow(context.Background(), created.ID)
	if err == nil {
		t.Fatal("expected provider-missing error")
	}
	if _, ok := err.(*ProviderMissingError); !ok {
		t.Errorf("error type = %T, want *ProviderMissingError", err)
	}

	state, _ := h.manager.GetState(created.ID)
	if state.Status != slo.StatusUnknown || state.MeasurementCount != 0 {
		t.Errorf("state must stay untouched, got %+v", state)
	}
}

func TestQueryFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)

	created, err := h.manager.CreateSLO(h.definition(99.0, "30d"))
	if err != nil {
		t.Fatal(err)
	}
	h.adapter.SetValue("good", 9950)
	h.adapter.SetValue("total", 10000)
	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}

	h.adapter.FailQuery("good")
	err = h.manager.MeasureNow(context.Background(), created.ID)
	if err == nil {
		t.Fatal("expected query error")
	}
	if _, ok := err.(*QueryError); !ok {
		t.Errorf("error type = %T, want *QueryError", err)
	}

	state, _ := h.manager.GetState(created.ID)
	if state.MeasurementCount != 1 {
		t.Errorf("failed cycle must not advance state: count = %d", state.MeasurementCount)
	}
}

func TestBurnRateAlertAndDedup(t *testing.T) {
	h := newHarness(t)

	def := h.definition(99.0, "30d")
	def.BurnRules = []slo.BurnRule{slo.GoogleSREBurnRules()[0]} // fast-burn 1h/6h
	created, err := h.manager.CreateSLO(def)
	if err != nil {
		t.Fatal(err)
	}

	// Healthy on the compliance window, burning hard on the rule windows.
	h.adapter.SetValue("good", 9950)
	h.adapter.SetValue("total", 10000)
	h.adapter.SetWindowValue("good", "1h", 856)
	h.adapter.SetWindowValue("total", "1h", 1000)
	h.adapter.SetWindowValue("good", "6h", 940)
	h.adapter.SetWindowValue("total", "6h", 1000)

	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}

	burnAlerts := func() []alert.Alert {
		all, _ := h.manager.ListAlerts(storage.AlertFilter{SLOID: created.ID})
		var out []alert.Alert
		for _, a := range all {
			if a.Type == alert.TypeBurnRateHigh {
				out = append(out, a)
			}
		}
		return out
	}

	got := burnAlerts()
	if len(got) != 1 {
		t.Fatalf("burn alerts = %d, want 1", len(got))
	}
	if got[0].RuleName != "fast-burn" || got[0].Severity != alert.SeverityCritical {
		t.Errorf("unexpected burn alert: %+v", got[0])
	}
	if got[0].ShortBurnRate < 14.4 || got[0].LongBurnRate < 6 {
		t.Errorf("burn rates = %v/%v", got[0].ShortBurnRate, got[0].LongBurnRate)
	}

	// Still burning: the open alert suppresses a duplicate.
	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}
	if got := burnAlerts(); len(got) != 1 {
		t.Fatalf("burn alerts after second cycle = %d, want still 1", len(got))
	}

	// After resolution the rule may fire again.
	if ok, err := h.manager.ResolveAlert(got[0].ID); err != nil || !ok {
		t.Fatalf("resolve: (%v, %v)", ok, err)
	}
	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}
	if got := burnAlerts(); len(got) != 2 {
		t.Errorf("burn alerts after resolve = %d, want 2", len(got))
	}
}

func TestBurnRuleBothWindowsRequired(t *testing.T) {
	h := newHarness(t)

	def := h.definition(99.0, "30d")
	def.BurnRules = []slo.BurnRule{slo.GoogleSREBurnRules()[0]}
	created, err := h.manager.CreateSLO(def)
	if err != nil {
		t.Fatal(err)
	}

	// Short window burns, long window does not: a transient spike.
	h.adapter.SetValue("good", 9950)
	h.adapter.SetValue("total", 10000)
	h.adapter.SetWindowValue("good", "1h", 800)
	h.adapter.SetWindowValue("total", "1h", 1000)
	h.adapter.SetWindowValue("good", "6h", 999)
	h.adapter.SetWindowValue("total", "6h", 1000)

	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}

	alerts, _ := h.manager.ListAlerts(storage.AlertFilter{SLOID: created.ID})
	for _, a := range alerts {
		if a.Type == alert.TypeBurnRateHigh {
			t.Fatal("spike confined to the short window must not fire")
		}
	}
}

func TestAcknowledgeAndResolveAlert(t *testing.T) {
	h := newHarness(t)

	created, err := h.manager.CreateSLO(h.definition(99.9, "30d"))
	if err != nil {
		t.Fatal(err)
	}
	h.adapter.SetValue("good", 9900)
	h.adapter.SetValue("total", 10000)
	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}

	alerts, _ := h.manager.ListAlerts(storage.AlertFilter{SLOID: created.ID})
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	id := alerts[0].ID

	ok, err := h.manager.AcknowledgeAlert(id, "oncall@example.com")
	if err != nil || !ok {
		t.Fatalf("acknowledge = (%v, %v)", ok, err)
	}
	ok, _ = h.manager.AcknowledgeAlert(id, "again")
	if ok {
		t.Error("second acknowledge should report false")
	}

	ok, err = h.manager.ResolveAlert(id)
	if err != nil || !ok {
		t.Fatalf("resolve = (%v, %v)", ok, err)
	}
	ok, _ = h.manager.ResolveAlert(id)
	if ok {
		t.Error("second resolve should report false")
	}

	if got := h.eventsOfType(event.AlertAcknowledged); len(got) != 1 {
		t.Errorf("alertAcknowledged events = %d, want 1", len(got))
	}

	ok, err = h.manager.AcknowledgeAlert("missing", "nobody")
	if err != nil || ok {
		t.Errorf("unknown alert acknowledge = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestUpdateSLOReplacesBurnRules(t *testing.T) {
	h := newHarness(t)

	def := h.definition(99.0, "30d")
	def.BurnRules = slo.GoogleSREBurnRules()
	created, err := h.manager.CreateSLO(def)
	if err != nil {
		t.Fatal(err)
	}

	updated := *created
	updated.BurnRules = []slo.BurnRule{slo.GoogleSREBurnRules()[1]} // slow-burn only
	result, err := h.manager.UpdateSLO(updated)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if result == nil {
		t.Fatal("update returned nil for existing SLO")
	}

	rules, _ := h.store.ListBurnRules(created.ID)
	if len(rules) != 1 || rules[0].Name != "slow-burn" {
		t.Errorf("rules after update = %+v, want slow-burn only", rules)
	}
	if !result.CreatedAt.Equal(created.CreatedAt) {
		t.Error("update must keep CreatedAt")
	}
}

func TestUpdateUnknownSLO(t *testing.T) {
	h := newHarness(t)

	def := h.definition(99.0, "30d")
	def.ID = "never-created"
	result, err := h.manager.UpdateSLO(def)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if result != nil {
		t.Error("expected nil for unknown SLO")
	}
}

func TestDeleteSLOKeepsHistoryAndAlerts(t *testing.T) {
	h := newHarness(t)

	created, err := h.manager.CreateSLO(h.definition(99.9, "30d"))
	if err != nil {
		t.Fatal(err)
	}
	h.adapter.SetValue("good", 9900)
	h.adapter.SetValue("total", 10000)
	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}

	deleted, err := h.manager.DeleteSLO(created.ID)
	if err != nil || !deleted {
		t.Fatalf("delete = (%v, %v)", deleted, err)
	}

	if def, _ := h.manager.GetSLO(created.ID); def != nil {
		t.Error("definition should be gone")
	}
	if state, _ := h.manager.GetState(created.ID); state != nil {
		t.Error("state should be gone")
	}

	alerts, _ := h.manager.ListAlerts(storage.AlertFilter{SLOID: created.ID})
	if len(alerts) != 1 {
		t.Errorf("alerts must survive deletion, got %d", len(alerts))
	}
	entries, _ := h.store.HistoryRange(created.ID, h.clock.Now().Add(-time.Hour), h.clock.Now().Add(time.Hour))
	if len(entries) != 1 {
		t.Errorf("history must survive deletion, got %d entries", len(entries))
	}

	deleted, _ = h.manager.DeleteSLO(created.ID)
	if deleted {
		t.Error("second delete should report false")
	}
}

func TestGenerateReportThroughManager(t *testing.T) {
	h := newHarness(t)

	created, err := h.manager.CreateSLO(h.definition(99.0, "30d"))
	if err != nil {
		t.Fatal(err)
	}
	h.adapter.SetValue("good", 9950)
	h.adapter.SetValue("total", 10000)

	for i := 0; i < 3; i++ {
		if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
			t.Fatal(err)
		}
		h.clock.Advance(time.Minute)
	}

	r, err := h.manager.GenerateReport(created.ID, report.PeriodDay, nil)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if r == nil || r.EntryCount != 3 {
		t.Fatalf("report = %+v, want 3 entries", r)
	}
	if got := h.eventsOfType(event.ReportGenerated); len(got) != 1 {
		t.Errorf("reportGenerated events = %d, want 1", len(got))
	}

	// Unknown SLO produces no report and no event.
	r, err = h.manager.GenerateReport("missing", report.PeriodDay, nil)
	if err != nil || r != nil {
		t.Errorf("unknown SLO report = (%v, %v), want (nil, nil)", r, err)
	}
}

func TestSummaryThroughManager(t *testing.T) {
	h := newHarness(t)

	h.adapter.SetValue("good", 9995)
	h.adapter.SetValue("total", 10000)

	a, _ := h.manager.CreateSLO(h.definition(99.0, "30d"))
	if err := h.manager.MeasureNow(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}

	s, err := h.manager.GetSummary()
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.Total != 1 || s.ByStatus[slo.StatusHealthy] != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.OverallHealth != 100 {
		t.Errorf("overall health = %v, want 100", s.OverallHealth)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	h := newHarness(t)

	if err := h.manager.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.manager.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}

	h.manager.Stop()
	h.manager.Stop()
}

func TestDisabledSLOIsNotMeasured(t *testing.T) {
	h := newHarness(t)

	def := h.definition(99.0, "30d")
	def.Enabled = false
	created, err := h.manager.CreateSLO(def)
	if err != nil {
		t.Fatal(err)
	}
	h.adapter.SetValue("good", 9950)
	h.adapter.SetValue("total", 10000)

	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatalf("measure on disabled SLO should be a no-op, got %v", err)
	}
	state, _ := h.manager.GetState(created.ID)
	if state.MeasurementCount != 0 {
		t.Errorf("disabled SLO was measured: %+v", state)
	}
}

func TestRatioSLIMeasurement(t *testing.T) {
	h := newHarness(t)

	d30, _ := slo.ParseDuration("30d")
	def := slo.Definition{
		Name:    "api-error-rate",
		Service: "api",
		SLI: slo.SLIConfig{
			Type:       slo.SLIErrorRate,
			Source:     slo.SourcePrometheus,
			RatioQuery: "success_ratio",
		},
		Target:  slo.Target{Value: 99.0},
		Window:  slo.Window{Type: slo.WindowRolling, Duration: d30},
		Enabled: true,
	}
	created, err := h.manager.CreateSLO(def)
	if err != nil {
		t.Fatal(err)
	}

	h.adapter.SetValue("success_ratio", 99.5)
	if err := h.manager.MeasureNow(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}

	state, _ := h.manager.GetState(created.ID)
	if state.CurrentValue != 99.5 {
		t.Errorf("ratio value = %v, want 99.5", state.CurrentValue)
	}
	if state.Status != slo.StatusHealthy {
		t.Errorf("status = %v, want healthy", state.Status)
	}
}
