package slo

import (
	"testing"
	"time"
)

func TestPresetsProduceValidDefinitions(t *testing.T) {
	presets := map[string]Definition{
		"availability99":  Availability99("api", "good_q", "total_q"),
		"availability999": Availability999("api", "good_q", "total_q"),
		"latencyP99":      LatencyP99("api", "good_q", "total_q", 250),
		"errorRate1Pct":   ErrorRate1Pct("api", "ratio_q"),
	}

	for name, def := range presets {
		t.Run(name, func(t *testing.T) {
			if err := def.Validate(); err != nil {
				t.Errorf("preset %s invalid: %v", name, err)
			}
			if !def.Enabled {
				t.Error("presets should be enabled")
			}
			if def.Window.Duration.Std() != 30*24*time.Hour {
				t.Errorf("window = %v, want 30d", def.Window.Duration)
			}
		})
	}
}

func TestGoogleSREBurnRules(t *testing.T) {
	rules := GoogleSREBurnRules()
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}

	fast, slow := rules[0], rules[1]

	if fast.ShortWindow.Std() != time.Hour || fast.LongWindow.Std() != 6*time.Hour {
		t.Errorf("fast-burn windows = %v/%v, want 1h/6h", fast.ShortWindow, fast.LongWindow)
	}
	if fast.ShortThreshold != 14.4 || fast.LongThreshold != 6 {
		t.Errorf("fast-burn thresholds = %v/%v, want 14.4/6", fast.ShortThreshold, fast.LongThreshold)
	}
	if fast.Severity != SeverityPage {
		t.Errorf("fast-burn severity = %q, want page", fast.Severity)
	}

	if slow.ShortWindow.Std() != 24*time.Hour || slow.LongWindow.Std() != 3*24*time.Hour {
		t.Errorf("slow-burn windows = %v/%v, want 1d/3d", slow.ShortWindow, slow.LongWindow)
	}
	if slow.ShortThreshold != 3 || slow.LongThreshold != 1 {
		t.Errorf("slow-burn thresholds = %v/%v, want 3/1", slow.ShortThreshold, slow.LongThreshold)
	}
	if slow.Severity != SeverityTicket {
		t.Errorf("slow-burn severity = %q, want ticket", slow.Severity)
	}
}

func TestStatusRankOrdering(t *testing.T) {
	order := []Status{StatusUnknown, StatusHealthy, StatusWarning, StatusCritical, StatusBreached}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("Rank(%s)=%d not below Rank(%s)=%d",
				order[i-1], order[i-1].Rank(), order[i], order[i].Rank())
		}
	}
}
