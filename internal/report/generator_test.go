package report

import (
	"math"
	"testing"
	"time"

	"github.com/emberops/ember/internal/budget"
	"github.com/emberops/ember/internal/slo"
	"github.com/emberops/ember/internal/storage/memory"
)

func reportTestDef(id, service string) *slo.Definition {
	d30, _ := slo.ParseDuration("30d")
	return &slo.Definition{
		ID:      id,
		Name:    id + "-availability",
		Service: service,
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
		Enabled: true,
	}
}

func appendEntries(t *testing.T, store *memory.Store, sloID string, base time.Time, step time.Duration, values []float64, statuses []slo.Status) {
	t.Helper()
	for i := range values {
		err := store.AppendHistory(budget.HistoryEntry{
			SLOID:            sloID,
			Timestamp:        base.Add(time.Duration(i) * step),
			Value:            values[i],
			Target:           99.9,
			Status:           statuses[i],
			RemainingPercent: 50,
			BurnRate:         1,
		})
		if err != nil {
			t.Fatalf("append history: %v", err)
		}
	}
}

func TestGenerateUnknownSLOIsNil(t *testing.T) {
	g := NewGenerator(memory.NewStore())

	r, err := g.Generate("nope", PeriodWeek, nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != nil {
		t.Error("expected nil report for unknown SLO")
	}
}

func TestGenerateEmptyHistoryIsNil(t *testing.T) {
	store := memory.NewStore()
	if err := store.SaveDefinition(reportTestDef("slo-1", "api")); err != nil {
		t.Fatal(err)
	}
	g := NewGenerator(store)

	r, err := g.Generate("slo-1", PeriodWeek, nil, time.Now())
	if err != nil {
		t.Fatalf("empty history must not be an error, got %v", err)
	}
	if r != nil {
		t.Error("expected nil report for empty history")
	}
}

func TestGenerateUnknownPeriodIsError(t *testing.T) {
	store := memory.NewStore()
	if err := store.SaveDefinition(reportTestDef("slo-1", "api")); err != nil {
		t.Fatal(err)
	}
	g := NewGenerator(store)

	if _, err := g.Generate("slo-1", "fortnight", nil, time.Now()); err == nil {
		t.Error("expected error for unknown period")
	}
}

func TestGenerateBasicAggregates(t *testing.T) {
	store := memory.NewStore()
	if err := store.SaveDefinition(reportTestDef("slo-1", "api")); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	base := now.Add(-4 * time.Hour)
	appendEntries(t, store, "slo-1", base, time.Hour,
		[]float64{99.95, 99.93, 99.91, 99.97},
		[]slo.Status{slo.StatusHealthy, slo.StatusHealthy, slo.StatusWarning, slo.StatusHealthy})

	r, err := NewGenerator(store).Generate("slo-1", PeriodDay, nil, now)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if r == nil {
		t.Fatal("expected a report")
	}

	wantAchieved := (99.95 + 99.93 + 99.91 + 99.97) / 4
	if math.Abs(r.AchievedValue-wantAchieved) > 1e-9 {
		t.Errorf("achieved = %v, want %v", r.AchievedValue, wantAchieved)
	}
	if !r.Met {
		t.Error("achieved above target should report met")
	}
	if r.Uptime != 1.0 {
		t.Errorf("uptime = %v, want 1.0 (warning still counts as up)", r.Uptime)
	}
	if r.IncidentCount != 0 {
		t.Errorf("incidents = %d, want 0", r.IncidentCount)
	}
	if r.MTTR != nil {
		t.Error("MTTR must be absent without incidents")
	}
	if r.EntryCount != 4 {
		t.Errorf("entry count = %d, want 4", r.EntryCount)
	}
}

func TestGenerateIncidentsAndMTTR(t *testing.T) {
	store := memory.NewStore()
	if err := store.SaveDefinition(reportTestDef("slo-1", "api")); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	base := now.Add(-8 * time.Hour)

	// Two incidents: entries 1-2 (critical, 1h span) and entry 5 alone
	// (breached, zero span).
	statuses := []slo.Status{
		slo.StatusHealthy,
		slo.StatusCritical, slo.StatusCritical,
		slo.StatusHealthy, slo.StatusHealthy,
		slo.StatusBreached,
		slo.StatusHealthy,
	}
	values := []float64{99.95, 99.1, 99.0, 99.9, 99.95, 98.5, 99.9}
	appendEntries(t, store, "slo-1", base, time.Hour, values, statuses)

	r, err := NewGenerator(store).Generate("slo-1", PeriodDay, nil, now)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if r.IncidentCount != 2 {
		t.Fatalf("incidents = %d, want 2", r.IncidentCount)
	}
	if r.TotalDowntime != time.Hour {
		t.Errorf("downtime = %v, want 1h", r.TotalDowntime)
	}
	if r.MTTR == nil {
		t.Fatal("expected MTTR")
	}
	if *r.MTTR != 30*time.Minute {
		t.Errorf("MTTR = %v, want 30m", *r.MTTR)
	}

	wantUptime := 4.0 / 7.0
	if math.Abs(r.Uptime-wantUptime) > 1e-9 {
		t.Errorf("uptime = %v, want %v", r.Uptime, wantUptime)
	}
}

func TestGenerateTrend(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected Trend
	}{
		{"improving", []float64{99.0, 99.0, 99.8, 99.8}, TrendImproving},
		{"degrading", []float64{99.9, 99.9, 99.0, 99.0}, TrendDegrading},
		{"stable", []float64{99.9, 99.9, 99.95, 99.92}, TrendStable},
	}

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			if err := store.SaveDefinition(reportTestDef("slo-1", "api")); err != nil {
				t.Fatal(err)
			}
			statuses := make([]slo.Status, len(tt.values))
			for i := range statuses {
				statuses[i] = slo.StatusHealthy
			}
			appendEntries(t, store, "slo-1", now.Add(-6*time.Hour), time.Hour, tt.values, statuses)

			r, err := NewGenerator(store).Generate("slo-1", PeriodDay, nil, now)
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if r.Trend != tt.expected {
				t.Errorf("trend = %v, want %v", r.Trend, tt.expected)
			}
		})
	}
}

func TestGenerateCustomRange(t *testing.T) {
	store := memory.NewStore()
	if err := store.SaveDefinition(reportTestDef("slo-1", "api")); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	appendEntries(t, store, "slo-1", now.Add(-10*time.Hour), time.Hour,
		[]float64{99.9, 99.9, 99.9, 99.9},
		[]slo.Status{slo.StatusHealthy, slo.StatusHealthy, slo.StatusHealthy, slo.StatusHealthy})

	g := NewGenerator(store)

	// A custom range covering only two of the four entries.
	custom := &Range{Start: now.Add(-10 * time.Hour), End: now.Add(-8*time.Hour - 30*time.Minute)}
	r, err := g.Generate("slo-1", PeriodWeek, custom, now)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if r == nil || r.EntryCount != 2 {
		t.Fatalf("expected 2 entries in custom range, got %+v", r)
	}

	// Inverted range is an error.
	bad := &Range{Start: now, End: now.Add(-time.Hour)}
	if _, err := g.Generate("slo-1", PeriodWeek, bad, now); err == nil {
		t.Error("expected error for inverted custom range")
	}
}

func TestSummaryCountsAndOverallHealth(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	defs := []struct {
		id     string
		status slo.Status
		pct    float64
	}{
		{"slo-a", slo.StatusHealthy, 90},
		{"slo-b", slo.StatusWarning, 40},
		{"slo-c", slo.StatusBreached, 0},
	}
	for _, d := range defs {
		def := reportTestDef(d.id, "api")
		if err := store.SaveDefinition(def); err != nil {
			t.Fatal(err)
		}
		state := budget.NewState(def, now)
		state.Status = d.status
		state.Budget.RemainingPercent = d.pct
		if err := store.SaveState(state); err != nil {
			t.Fatal(err)
		}
	}

	// Disabled definitions stay out of the summary.
	disabled := reportTestDef("slo-d", "api")
	disabled.Enabled = false
	if err := store.SaveDefinition(disabled); err != nil {
		t.Fatal(err)
	}

	s, err := NewGenerator(store).Summary(now)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}

	if s.Total != 3 {
		t.Errorf("total = %d, want 3", s.Total)
	}
	if s.ByStatus[slo.StatusHealthy] != 1 || s.ByStatus[slo.StatusWarning] != 1 || s.ByStatus[slo.StatusBreached] != 1 {
		t.Errorf("status counts wrong: %+v", s.ByStatus)
	}
	if math.Abs(s.OverallHealth-33.33) > 1e-9 {
		t.Errorf("overall health = %v, want 33.33", s.OverallHealth)
	}
	wantAvg := (90.0 + 40.0 + 0.0) / 3
	if math.Abs(s.AverageRemainingPercent-wantAvg) > 1e-9 {
		t.Errorf("average remaining = %v, want %v", s.AverageRemainingPercent, wantAvg)
	}
}

func TestSummaryEmptyStore(t *testing.T) {
	s, err := NewGenerator(memory.NewStore()).Summary(time.Now())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.Total != 0 || s.OverallHealth != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}
