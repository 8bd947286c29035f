package budget

import (
	"math"
	"time"

	"github.com/emberops/ember/internal/slo"
)

// Burn-rate trend boundaries.
const (
	trendIncreasingAbove = 1.5
	trendDecreasingBelow = 0.5
)

// Compute folds one measurement into the prior state and recomputes the
// error budget. It is deterministic and side-effect free; persistence and
// alerting happen in the caller.
//
// When the prior window has ended, the cumulative counters reset to zero
// with no carry-over and the window start advances (rolling windows restart
// at now, calendar windows at the current calendar boundary).
func Compute(def *slo.Definition, prior State, m Measurement, now time.Time) State {
	next := prior
	next.SLOID = def.ID
	next.Target = def.EffectiveTarget()

	windowDur := def.Window.Duration.Std()
	if next.WindowStart.IsZero() {
		next.WindowStart = windowStart(def.Window, now)
	}
	if windowEnded(def.Window, next.WindowStart, now) {
		next.TotalGood = 0
		next.TotalEvents = 0
		next.WindowStart = windowStart(def.Window, now)
	}

	next.TotalGood += m.Good
	next.TotalEvents += m.Total

	if next.TotalEvents > 0 {
		next.CurrentValue = next.TotalGood / next.TotalEvents * 100
	} else {
		next.CurrentValue = 0
	}

	next.Budget = computeBudget(next.Target, next.CurrentValue, next.WindowStart, windowDur, now)
	next.LastMeasurement = now
	next.MeasurementCount = prior.MeasurementCount + 1

	return next
}

func computeBudget(target, currentValue float64, windowStart time.Time, windowDur time.Duration, now time.Time) ErrorBudget {
	total := 100 - target

	consumed := math.Max(0, target-currentValue)
	if consumed > total {
		consumed = total
	}
	remaining := total - consumed

	var remainingPercent float64
	if total > 0 {
		remainingPercent = remaining / total * 100
	}

	elapsed := now.Sub(windowStart)
	if elapsed < 0 {
		elapsed = 0
	}
	if windowDur > 0 && elapsed > windowDur {
		elapsed = windowDur
	}

	var burnRate float64
	if windowDur > 0 {
		expectedConsumed := total * (float64(elapsed) / float64(windowDur))
		if expectedConsumed > 0 {
			burnRate = consumed / expectedConsumed
		}
	}

	b := ErrorBudget{
		Total:            total,
		Consumed:         consumed,
		Remaining:        remaining,
		RemainingPercent: remainingPercent,
		BurnRate:         burnRate,
		Trend:            trendFor(burnRate),
	}

	// Project exhaustion only while burning faster than the window allows
	// and there is still budget left.
	if burnRate > 1 && remaining > 0 && consumed > 0 {
		remainingDur := time.Duration(remaining / consumed * float64(elapsed))
		projected := now.Add(remainingDur)
		days := remainingDur.Hours() / 24
		b.ProjectedExhaustion = &projected
		b.DaysRemaining = &days
	}

	return b
}

func trendFor(burnRate float64) Trend {
	switch {
	case burnRate > trendIncreasingAbove:
		return TrendIncreasing
	case burnRate < trendDecreasingBelow:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// WindowBurnRate converts windowed good/total counts into a burn rate:
// the observed error rate divided by the error-budget fraction the target
// allows. 1.0 means burning exactly on pace to exhaust at window end.
func WindowBurnRate(good, total, target float64) float64 {
	if total <= 0 {
		return 0
	}
	if good > total {
		good = total
	}
	errorRate := math.Max(0, 1-good/total)

	budgetFraction := (100 - target) / 100
	if budgetFraction <= 0 {
		return 0
	}
	return errorRate / budgetFraction
}

// windowStart resolves where the current window begins. Calendar windows
// align to the boundary matching their duration; anything else starts now.
func windowStart(w slo.Window, now time.Time) time.Time {
	if w.Type == slo.WindowCalendar {
		if b, ok := calendarBoundary(w.Duration, now); ok {
			return b
		}
	}
	return now
}

// windowEnded reports whether the window that began at start is over.
// Rolling windows end once their nominal duration elapses. Calendar windows
// end when the calendar boundary moves: a "30d" month window spans the whole
// of a 31-day March, so the trigger is the boundary changing, not 30 days
// passing.
func windowEnded(w slo.Window, start, now time.Time) bool {
	if w.Type == slo.WindowCalendar {
		if b, ok := calendarBoundary(w.Duration, now); ok {
			return !b.Equal(start)
		}
	}
	dur := w.Duration.Std()
	return dur > 0 && now.Sub(start) >= dur
}

// calendarBoundary returns the start of the calendar period matching the
// duration, or false when no calendar period corresponds to it.
func calendarBoundary(d slo.Duration, now time.Time) (time.Time, bool) {
	const day = 24 * time.Hour
	switch d.Std() {
	case day:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), true
	case 7 * day:
		// ISO week, Monday start.
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		offset := (int(start.Weekday()) + 6) % 7
		return start.AddDate(0, 0, -offset), true
	case 30 * day:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), true
	case 90 * day:
		quarterMonth := time.Month((int(now.Month())-1)/3*3 + 1)
		return time.Date(now.Year(), quarterMonth, 1, 0, 0, 0, 0, now.Location()), true
	case 365 * day:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), true
	default:
		return time.Time{}, false
	}
}
