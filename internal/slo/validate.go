package slo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldError reports one invalid field on a definition.
type FieldError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError aggregates every invalid field found on a definition.
// Definitions failing validation are rejected at the boundary and never
// persisted.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "invalid SLO definition: " + strings.Join(msgs, "; ")
}

var validSLITypes = map[SLIType]bool{
	SLIAvailability: true, SLILatency: true, SLIThroughput: true,
	SLIErrorRate: true, SLISaturation: true, SLIFreshness: true,
	SLICorrectness: true, SLICoverage: true, SLIDurability: true,
}

var validSources = map[MetricSource]bool{
	SourcePrometheus: true, SourceCustom: true, SourceLogs: true,
	SourceTraces: true, SourceSynthetic: true,
}

var validSeverities = map[RuleSeverity]bool{
	SeverityPage: true, SeverityTicket: true, SeverityLog: true,
}

// Validate checks every field of the definition and returns a
// *ValidationError listing all problems, or nil.
func (d *Definition) Validate() error {
	var errs []FieldError
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if d.Name == "" {
		add("name", "required")
	}
	if d.Service == "" {
		add("service", "required")
	}

	if !validSLITypes[d.SLI.Type] {
		add("sli.type", "unknown SLI type %q", d.SLI.Type)
	}
	if !validSources[d.SLI.Source] {
		add("sli.source", "unknown metric source %q", d.SLI.Source)
	}
	switch {
	case d.SLI.IsRatio():
		if d.SLI.GoodQuery != "" || d.SLI.TotalQuery != "" {
			add("sli", "ratioQuery is exclusive with goodQuery/totalQuery")
		}
	case d.SLI.GoodQuery == "" || d.SLI.TotalQuery == "":
		add("sli", "either ratioQuery or both goodQuery and totalQuery are required")
	}
	if p := d.SLI.LatencyPercentile; p != nil && (*p <= 0 || *p >= 100) {
		add("sli.latencyPercentile", "must be in (0, 100), got %v", *p)
	}

	if d.Target.Value <= 0 || d.Target.Value >= 100 {
		add("target.value", "must be in (0, 100), got %v", d.Target.Value)
	}
	for window, value := range d.Target.Windows {
		if _, err := ParseDuration(window); err != nil {
			add("target.windows", "invalid window key %q", window)
		}
		if value <= 0 || value >= 100 {
			add("target.windows", "target for %q must be in (0, 100), got %v", window, value)
		}
	}

	if d.Window.Type != WindowRolling && d.Window.Type != WindowCalendar {
		add("window.type", "must be %q or %q, got %q", WindowRolling, WindowCalendar, d.Window.Type)
	}
	if d.Window.Duration <= 0 {
		add("window.duration", "must be positive")
	}

	if d.Thresholds.Warning < 0 || d.Thresholds.Warning > 100 {
		add("thresholds.warning", "must be in [0, 100], got %v", d.Thresholds.Warning)
	}
	if d.Thresholds.Critical < 0 || d.Thresholds.Critical > 100 {
		add("thresholds.critical", "must be in [0, 100], got %v", d.Thresholds.Critical)
	}
	if d.Thresholds.Critical > d.Thresholds.Warning {
		add("thresholds", "critical (%v) must not exceed warning (%v)", d.Thresholds.Critical, d.Thresholds.Warning)
	}

	for i, rule := range d.BurnRules {
		prefix := fmt.Sprintf("burnRules[%d]", i)
		if rule.Name == "" {
			add(prefix+".name", "required")
		}
		if rule.ShortWindow <= 0 {
			add(prefix+".shortWindow", "must be positive")
		}
		if rule.LongWindow <= 0 {
			add(prefix+".longWindow", "must be positive")
		}
		if rule.ShortWindow >= rule.LongWindow && rule.ShortWindow > 0 && rule.LongWindow > 0 {
			add(prefix, "shortWindow (%s) must be shorter than longWindow (%s)", rule.ShortWindow, rule.LongWindow)
		}
		if rule.ShortThreshold <= 0 {
			add(prefix+".shortThreshold", "must be positive")
		}
		if rule.LongThreshold <= 0 {
			add(prefix+".longThreshold", "must be positive")
		}
		if !validSeverities[rule.Severity] {
			add(prefix+".severity", "unknown severity %q", rule.Severity)
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// Normalize fills identity, timestamps and threshold defaults on a new
// definition. Existing values are kept.
func (d *Definition) Normalize(now time.Time) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Window.Type == "" {
		d.Window.Type = WindowRolling
	}
	if d.Thresholds.Warning == 0 && d.Thresholds.Critical == 0 {
		d.Thresholds = AlertThresholds{
			Warning:  DefaultWarningThreshold,
			Critical: DefaultCriticalThreshold,
		}
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
}
