package slo

// Presets for common SLO shapes. These are convenience constructors only;
// the returned definitions behave exactly like hand-built ones.

func presetWindow() Window {
	d, _ := ParseDuration("30d")
	return Window{Type: WindowRolling, Duration: d}
}

// Availability99 is a 99% availability SLO over a rolling 30 days.
func Availability99(service, goodQuery, totalQuery string) Definition {
	return availabilityPreset(service, goodQuery, totalQuery, 99.0)
}

// Availability999 is a 99.9% availability SLO over a rolling 30 days.
func Availability999(service, goodQuery, totalQuery string) Definition {
	return availabilityPreset(service, goodQuery, totalQuery, 99.9)
}

func availabilityPreset(service, goodQuery, totalQuery string, target float64) Definition {
	return Definition{
		Name:    service + "-availability",
		Service: service,
		SLI: SLIConfig{
			Type:       SLIAvailability,
			Source:     SourcePrometheus,
			GoodQuery:  goodQuery,
			TotalQuery: totalQuery,
		},
		Target: Target{Value: target},
		Window: presetWindow(),
		Thresholds: AlertThresholds{
			Warning:  DefaultWarningThreshold,
			Critical: DefaultCriticalThreshold,
		},
		BurnRules: GoogleSREBurnRules(),
		Enabled:   true,
	}
}

// LatencyP99 is a 99% "requests under thresholdMs at p99" SLO over a
// rolling 30 days.
func LatencyP99(service, goodQuery, totalQuery string, thresholdMs int) Definition {
	percentile := 99.0
	return Definition{
		Name:    service + "-latency-p99",
		Service: service,
		SLI: SLIConfig{
			Type:               SLILatency,
			Source:             SourcePrometheus,
			GoodQuery:          goodQuery,
			TotalQuery:         totalQuery,
			LatencyThresholdMs: &thresholdMs,
			LatencyPercentile:  &percentile,
		},
		Target: Target{Value: 99.0},
		Window: presetWindow(),
		Thresholds: AlertThresholds{
			Warning:  DefaultWarningThreshold,
			Critical: DefaultCriticalThreshold,
		},
		Enabled: true,
	}
}

// ErrorRate1Pct is a "99% of requests succeed" SLO (1% error budget) over a
// rolling 30 days, driven by a single error-ratio query.
func ErrorRate1Pct(service, ratioQuery string) Definition {
	return Definition{
		Name:    service + "-error-rate",
		Service: service,
		SLI: SLIConfig{
			Type:       SLIErrorRate,
			Source:     SourcePrometheus,
			RatioQuery: ratioQuery,
		},
		Target: Target{Value: 99.0},
		Window: presetWindow(),
		Thresholds: AlertThresholds{
			Warning:  DefaultWarningThreshold,
			Critical: DefaultCriticalThreshold,
		},
		Enabled: true,
	}
}

// GoogleSREBurnRules returns the multi-window burn-rate rule set from the
// Google SRE workbook: fast burn pages on 1h/6h, slow burn files a ticket
// on 1d/3d.
func GoogleSREBurnRules() []BurnRule {
	h1, _ := ParseDuration("1h")
	h6, _ := ParseDuration("6h")
	d1, _ := ParseDuration("1d")
	d3, _ := ParseDuration("3d")
	return []BurnRule{
		{
			Name:           "fast-burn",
			ShortWindow:    h1,
			ShortThreshold: 14.4,
			LongWindow:     h6,
			LongThreshold:  6,
			Severity:       SeverityPage,
			Enabled:        true,
		},
		{
			Name:           "slow-burn",
			ShortWindow:    d1,
			ShortThreshold: 3,
			LongWindow:     d3,
			LongThreshold:  1,
			Severity:       SeverityTicket,
			Enabled:        true,
		},
	}
}
