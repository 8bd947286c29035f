package report

import (
	"fmt"
	"math"
	"time"

	"github.com/emberops/ember/internal/budget"
	"github.com/emberops/ember/internal/slo"
	"github.com/emberops/ember/internal/storage"
)

// trendEpsilon is the change, in SLI percentage points, below which the
// two halves of a period are considered equal.
const trendEpsilon = 0.1

// Generator builds reports from stored history and summaries from current
// states. Derived metrics are reconstructed from history alone; no external
// source is re-queried.
type Generator struct {
	store storage.Store
}

// NewGenerator creates a report generator over the given store.
func NewGenerator(store storage.Store) *Generator {
	return &Generator{store: store}
}

// Generate builds a report for one SLO over a named period, or over the
// custom range when one is supplied. It returns (nil, nil) when the SLO is
// unknown or when the period holds no history: no report is not an error.
func (g *Generator) Generate(sloID string, period Period, custom *Range, now time.Time) (*Report, error) {
	def, err := g.store.GetDefinition(sloID)
	if err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}
	if def == nil {
		return nil, nil
	}

	start, end, err := resolveRange(period, custom, now)
	if err != nil {
		return nil, err
	}

	entries, err := g.store.HistoryRange(sloID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	r := &Report{
		SLOID:       def.ID,
		SLOName:     def.Name,
		Service:     def.Service,
		Period:      period,
		Start:       start,
		End:         end,
		EntryCount:  len(entries),
		GeneratedAt: now,
	}

	var sum float64
	upCount := 0
	for _, entry := range entries {
		sum += entry.Value
		if entry.Status == slo.StatusHealthy || entry.Status == slo.StatusWarning {
			upCount++
		}
	}
	r.AchievedValue = sum / float64(len(entries))
	r.Target = entries[len(entries)-1].Target
	r.Met = r.AchievedValue >= r.Target
	r.Uptime = float64(upCount) / float64(len(entries))
	r.BudgetRemainingPercent = entries[len(entries)-1].RemainingPercent

	r.IncidentCount, r.TotalDowntime = scanIncidents(entries)
	if r.IncidentCount > 0 {
		mttr := r.TotalDowntime / time.Duration(r.IncidentCount)
		r.MTTR = &mttr
	}

	r.Trend, r.ChangePercent = classifyTrend(entries)

	return r, nil
}

// Summary aggregates the current state of every enabled SLO into status
// counts and the mean remaining budget.
func (g *Generator) Summary(now time.Time) (*Summary, error) {
	enabled := true
	defs, err := g.store.ListDefinitions(storage.DefinitionFilter{Enabled: &enabled})
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}

	s := &Summary{
		Total: len(defs),
		ByStatus: map[slo.Status]int{
			slo.StatusUnknown:  0,
			slo.StatusHealthy:  0,
			slo.StatusWarning:  0,
			slo.StatusCritical: 0,
			slo.StatusBreached: 0,
		},
		GeneratedAt: now,
	}

	var remainingSum float64
	measured := 0
	for _, def := range defs {
		state, err := g.store.GetState(def.ID)
		if err != nil {
			return nil, fmt.Errorf("get state for %s: %w", def.ID, err)
		}
		if state == nil {
			s.ByStatus[slo.StatusUnknown]++
			continue
		}
		s.ByStatus[state.Status]++
		remainingSum += state.Budget.RemainingPercent
		measured++
	}

	if measured > 0 {
		s.AverageRemainingPercent = remainingSum / float64(measured)
	}
	if s.Total > 0 {
		s.OverallHealth = round2(float64(s.ByStatus[slo.StatusHealthy]) / float64(s.Total) * 100)
	}

	return s, nil
}

// resolveRange maps a named period to its trailing span, unless an explicit
// custom range overrides it.
func resolveRange(period Period, custom *Range, now time.Time) (time.Time, time.Time, error) {
	if custom != nil {
		if !custom.End.After(custom.Start) {
			return time.Time{}, time.Time{}, fmt.Errorf("custom range end must be after start")
		}
		return custom.Start, custom.End, nil
	}

	var days int
	switch period {
	case PeriodDay:
		days = 1
	case PeriodWeek:
		days = 7
	case PeriodMonth:
		days = 30
	case PeriodQuarter:
		days = 90
	case PeriodYear:
		days = 365
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown report period %q", period)
	}

	return now.AddDate(0, 0, -days), now, nil
}

// scanIncidents treats each maximal contiguous run of critical/breached
// entries as one incident, and sums the wall-clock span of each run as
// downtime.
func scanIncidents(entries []budget.HistoryEntry) (int, time.Duration) {
	count := 0
	var downtime time.Duration

	inIncident := false
	var incidentStart time.Time
	var last time.Time

	for _, entry := range entries {
		down := entry.Status == slo.StatusCritical || entry.Status == slo.StatusBreached
		switch {
		case down && !inIncident:
			inIncident = true
			incidentStart = entry.Timestamp
			count++
		case !down && inIncident:
			inIncident = false
			downtime += last.Sub(incidentStart)
		}
		last = entry.Timestamp
	}
	if inIncident {
		downtime += last.Sub(incidentStart)
	}

	return count, downtime
}

// classifyTrend splits the entries into halves by count and compares mean
// values.
func classifyTrend(entries []budget.HistoryEntry) (Trend, float64) {
	if len(entries) < 2 {
		return TrendStable, 0
	}

	mid := len(entries) / 2
	firstMean := meanValue(entries[:mid])
	secondMean := meanValue(entries[mid:])

	var change float64
	if firstMean != 0 {
		change = (secondMean - firstMean) / firstMean * 100
	}

	switch {
	case secondMean-firstMean > trendEpsilon:
		return TrendImproving, change
	case firstMean-secondMean > trendEpsilon:
		return TrendDegrading, change
	default:
		return TrendStable, change
	}
}

func meanValue(entries []budget.HistoryEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, entry := range entries {
		sum += entry.Value
	}
	return sum / float64(len(entries))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
