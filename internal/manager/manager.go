// Package manager owns the SLO lifecycle: definition CRUD, the per-SLO
// measurement schedule, alert evaluation and retention pruning.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emberops/ember/internal/alert"
	"github.com/emberops/ember/internal/budget"
	"github.com/emberops/ember/internal/event"
	"github.com/emberops/ember/internal/log"
	"github.com/emberops/ember/internal/provider"
	"github.com/emberops/ember/internal/report"
	"github.com/emberops/ember/internal/slo"
	"github.com/emberops/ember/internal/storage"
	"github.com/emberops/ember/internal/telemetry"
)

// Options configures a Manager.
type Options struct {
	Store     storage.Store
	Providers *provider.Registry
	Bus       *event.Bus
	Logger    log.Logger
	Telemetry *telemetry.Recorder

	MeasurementInterval time.Duration
	RetentionDays       int
	QueryTimeout        time.Duration

	AlertingEnabled bool
	BurnRateAlerts  bool
	WarningDefault  float64
	CriticalDefault float64

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (o *Options) defaults() error {
	if o.Store == nil {
		return fmt.Errorf("store is required")
	}
	if o.Providers == nil {
		return fmt.Errorf("provider registry is required")
	}
	if o.Bus == nil {
		o.Bus = event.NewBus()
	}
	if o.Logger == nil {
		o.Logger = log.Noop
	}
	if o.MeasurementInterval <= 0 {
		o.MeasurementInterval = 60 * time.Second
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = 90
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 10 * time.Second
	}
	if o.WarningDefault == 0 && o.CriticalDefault == 0 {
		o.WarningDefault = slo.DefaultWarningThreshold
		o.CriticalDefault = slo.DefaultCriticalThreshold
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return nil
}

// Manager drives measurement cycles for every enabled SLO. Each SLO owns
// one goroutine with one ticker, so cycles for the same SLO are serialized
// structurally; cycles for different SLOs run concurrently and share only
// the store.
type Manager struct {
	opts    Options
	alerts  *alert.Engine
	reports *report.Generator

	mu      sync.Mutex
	running bool
	root    context.Context
	cancel  context.CancelFunc
	loops   map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Manager.
func New(opts Options) (*Manager, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	return &Manager{
		opts:    opts,
		alerts:  alert.NewEngine(),
		reports: report.NewGenerator(opts.Store),
		loops:   make(map[string]context.CancelFunc),
	}, nil
}

// Bus exposes the event bus for subscriber registration.
func (m *Manager) Bus() *event.Bus {
	return m.opts.Bus
}

// CreateSLO validates, normalizes and persists a new definition, creates
// its initial state (status unknown) and, when the engine is running and
// the definition enabled, schedules its measurement loop.
func (m *Manager) CreateSLO(def slo.Definition) (*slo.Definition, error) {
	now := m.opts.Now()
	if def.Thresholds.Warning == 0 && def.Thresholds.Critical == 0 {
		def.Thresholds = slo.AlertThresholds{
			Warning:  m.opts.WarningDefault,
			Critical: m.opts.CriticalDefault,
		}
	}
	def.Normalize(now)
	if err := def.Validate(); err != nil {
		return nil, err
	}

	if err := m.opts.Store.SaveDefinition(&def); err != nil {
		return nil, fmt.Errorf("save definition: %w", err)
	}
	for _, rule := range def.BurnRules {
		if err := m.opts.Store.SaveBurnRule(def.ID, rule); err != nil {
			return nil, fmt.Errorf("save burn rule %q: %w", rule.Name, err)
		}
	}
	if err := m.opts.Store.SaveState(budget.NewState(&def, now)); err != nil {
		return nil, fmt.Errorf("save initial state: %w", err)
	}

	m.publish(event.SLOCreated, def.ID, &def)

	m.mu.Lock()
	if m.running && def.Enabled {
		m.startLoop(def.ID)
	}
	m.mu.Unlock()

	return &def, nil
}

// GetSLO returns a definition, or nil when unknown.
func (m *Manager) GetSLO(id string) (*slo.Definition, error) {
	return m.opts.Store.GetDefinition(id)
}

// ListSLOs returns definitions matching the filter.
func (m *Manager) ListSLOs(filter storage.DefinitionFilter) ([]slo.Definition, error) {
	return m.opts.Store.ListDefinitions(filter)
}

// UpdateSLO replaces a definition. Identity and creation time are kept from
// the stored record. The SLO's own schedule is restarted or stopped to
// match the enabled flag without disturbing other SLOs. Returns nil when
// the id is unknown.
func (m *Manager) UpdateSLO(def slo.Definition) (*slo.Definition, error) {
	existing, err := m.opts.Store.GetDefinition(def.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = m.opts.Now()
	if err := def.Validate(); err != nil {
		return nil, err
	}

	if err := m.opts.Store.SaveDefinition(&def); err != nil {
		return nil, fmt.Errorf("save definition: %w", err)
	}

	// Burn rules follow the definition wholesale.
	oldRules, err := m.opts.Store.ListBurnRules(def.ID)
	if err != nil {
		return nil, fmt.Errorf("list burn rules: %w", err)
	}
	for _, rule := range oldRules {
		if _, err := m.opts.Store.DeleteBurnRule(def.ID, rule.Name); err != nil {
			return nil, fmt.Errorf("delete burn rule %q: %w", rule.Name, err)
		}
	}
	for _, rule := range def.BurnRules {
		if err := m.opts.Store.SaveBurnRule(def.ID, rule); err != nil {
			return nil, fmt.Errorf("save burn rule %q: %w", rule.Name, err)
		}
	}

	m.publish(event.SLOUpdated, def.ID, &def)

	m.mu.Lock()
	if m.running {
		m.stopLoop(def.ID)
		if def.Enabled {
			m.startLoop(def.ID)
		}
	}
	m.mu.Unlock()

	return &def, nil
}

// DeleteSLO removes a definition and its state, stopping its schedule.
// History and alerts stay behind for reporting and audit. Reports false
// when the id is unknown.
func (m *Manager) DeleteSLO(id string) (bool, error) {
	m.mu.Lock()
	m.stopLoop(id)
	m.mu.Unlock()

	existed, err := m.opts.Store.DeleteDefinition(id)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}
	if err := m.opts.Store.DeleteState(id); err != nil {
		return false, fmt.Errorf("delete state: %w", err)
	}

	m.publish(event.SLODeleted, id, nil)
	return true, nil
}

// GetState returns the current state snapshot for an SLO, or nil.
func (m *Manager) GetState(id string) (*budget.State, error) {
	return m.opts.Store.GetState(id)
}

// Start schedules an immediate measurement plus the recurring timer for
// every enabled SLO, and the daily retention pruning task. Idempotent.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	enabled := true
	defs, err := m.opts.Store.ListDefinitions(storage.DefinitionFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("list definitions: %w", err)
	}

	m.root, m.cancel = context.WithCancel(context.Background())
	m.running = true

	for _, def := range defs {
		m.startLoop(def.ID)
	}

	m.wg.Add(1)
	go m.retentionLoop(m.root)

	m.opts.Logger.Infof("engine started, tracking %d SLOs", len(defs))
	return nil
}

// Stop cancels every timer and waits for in-flight cycles. Safe to call
// repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.loops = make(map[string]context.CancelFunc)
	m.mu.Unlock()

	m.wg.Wait()
	if m.opts.Telemetry != nil {
		m.opts.Telemetry.SetTracked(0)
	}
	m.opts.Logger.Infof("engine stopped")
}

// startLoop must be called with m.mu held and the engine running.
func (m *Manager) startLoop(id string) {
	if _, exists := m.loops[id]; exists {
		return
	}
	ctx, cancel := context.WithCancel(m.root)
	m.loops[id] = cancel
	if m.opts.Telemetry != nil {
		m.opts.Telemetry.SetTracked(len(m.loops))
	}

	m.wg.Add(1)
	go m.runLoop(ctx, id)
}

// stopLoop must be called with m.mu held.
func (m *Manager) stopLoop(id string) {
	if cancel, exists := m.loops[id]; exists {
		cancel()
		delete(m.loops, id)
		if m.opts.Telemetry != nil {
			m.opts.Telemetry.SetTracked(len(m.loops))
		}
	}
}

// runLoop is the single writer for one SLO's state: the first measurement
// runs immediately, then one per tick. A tick firing while a cycle is
// still running coalesces into the next tick instead of interleaving.
func (m *Manager) runLoop(ctx context.Context, id string) {
	defer m.wg.Done()

	m.measure(ctx, id)

	ticker := time.NewTicker(m.opts.MeasurementInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.measure(ctx, id)
		}
	}
}

// measure runs one cycle and records its outcome. Failures are isolated to
// this SLO and this cycle: they surface as an error event and a log line,
// never as a stopped scheduler.
func (m *Manager) measure(ctx context.Context, id string) {
	started := time.Now()
	err := m.cycle(ctx, id)
	if m.opts.Telemetry != nil {
		m.opts.Telemetry.ObserveCycle(time.Since(started), err)
	}
	if err != nil {
		m.opts.Logger.WithValues(log.Kv{"slo": id}).Errorf("measurement failed: %v", err)
		m.publish(event.Error, id, err.Error())
	}
}

// cycle performs one full measurement: query, fold into the budget,
// classify, persist, alert.
func (m *Manager) cycle(ctx context.Context, id string) error {
	def, err := m.opts.Store.GetDefinition(id)
	if err != nil {
		return fmt.Errorf("get definition: %w", err)
	}
	if def == nil || !def.Enabled {
		return nil
	}

	p, ok := m.opts.Providers.Get(def.SLI.Source)
	if !ok {
		return &ProviderMissingError{SLOID: id, Source: def.SLI.Source}
	}

	now := m.opts.Now()
	meas, err := m.query(ctx, p, def, now)
	if err != nil {
		return err
	}

	prior, err := m.opts.Store.GetState(id)
	if err != nil {
		return fmt.Errorf("get state: %w", err)
	}
	if prior == nil {
		prior = budget.NewState(def, now)
	}
	prevStatus := prior.Status

	next := budget.Compute(def, *prior, meas, now)
	next.Status = budget.Classify(next.Budget, def.Thresholds)

	if err := m.opts.Store.SaveState(&next); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := m.opts.Store.AppendHistory(budget.EntryFromState(&next)); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	m.publish(event.Measured, id, &next)
	if next.Status != prevStatus {
		m.publish(event.StateChanged, id, &next)
	}

	if m.opts.AlertingEnabled {
		if a := m.alerts.OnTransition(def, prevStatus, &next, now); a != nil {
			if err := m.fireAlert(a); err != nil {
				return err
			}
		}
		if m.opts.BurnRateAlerts {
			m.evaluateBurnRules(ctx, p, def, &next, now)
		}
	}

	return nil
}

// query measures the SLI window [now-duration, now]. Ratio SLIs take the
// ratio as the value directly over a unit base of 100.
func (m *Manager) query(ctx context.Context, p provider.Provider, def *slo.Definition, now time.Time) (budget.Measurement, error) {
	start := now.Add(-def.Window.Duration.Std())

	if def.SLI.IsRatio() {
		ratio, err := m.boundedQuery(ctx, p, def.SLI.RatioQuery, start, now)
		if err != nil {
			return budget.Measurement{}, &QueryError{SLOID: def.ID, Query: def.SLI.RatioQuery, Err: err}
		}
		return budget.Measurement{Good: ratio, Total: 100, Value: ratio, Timestamp: now}, nil
	}

	good, err := m.boundedQuery(ctx, p, def.SLI.GoodQuery, start, now)
	if err != nil {
		return budget.Measurement{}, &QueryError{SLOID: def.ID, Query: def.SLI.GoodQuery, Err: err}
	}
	total, err := m.boundedQuery(ctx, p, def.SLI.TotalQuery, start, now)
	if err != nil {
		return budget.Measurement{}, &QueryError{SLOID: def.ID, Query: def.SLI.TotalQuery, Err: err}
	}

	var value float64
	if total > 0 {
		value = good / total * 100
	}
	return budget.Measurement{Good: good, Total: total, Value: value, Timestamp: now}, nil
}

func (m *Manager) boundedQuery(ctx context.Context, p provider.Provider, query string, start, end time.Time) (float64, error) {
	qctx, cancel := context.WithTimeout(ctx, m.opts.QueryTimeout)
	defer cancel()
	return p.Query(qctx, query, start, end)
}

// evaluateBurnRules measures each enabled rule's short and long windows
// and fires when both breach. A failed rule-window query skips that rule
// for this cycle only.
func (m *Manager) evaluateBurnRules(ctx context.Context, p provider.Provider, def *slo.Definition, state *budget.State, now time.Time) {
	rules, err := m.opts.Store.ListBurnRules(def.ID)
	if err != nil {
		m.opts.Logger.WithValues(log.Kv{"slo": def.ID}).Errorf("list burn rules: %v", err)
		return
	}

	logger := m.opts.Logger.WithValues(log.Kv{"slo": def.ID})
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		short, err := m.windowBurnRate(ctx, p, def, rule.ShortWindow, now)
		if err != nil {
			logger.Warningf("burn rule %q short window query failed: %v", rule.Name, err)
			continue
		}
		long, err := m.windowBurnRate(ctx, p, def, rule.LongWindow, now)
		if err != nil {
			logger.Warningf("burn rule %q long window query failed: %v", rule.Name, err)
			continue
		}

		a := m.alerts.OnBurnRule(def, rule, alert.RuleBurnRates{Short: short, Long: long}, state, now)
		if a == nil {
			continue
		}
		if m.hasOpenBurnAlert(def.ID, rule.Name) {
			continue
		}
		if err := m.fireAlert(a); err != nil {
			logger.Errorf("burn rule %q alert: %v", rule.Name, err)
		}
	}
}

// windowBurnRate measures one lookback window and converts it to a burn
// rate against the SLO's target.
func (m *Manager) windowBurnRate(ctx context.Context, p provider.Provider, def *slo.Definition, window slo.Duration, now time.Time) (float64, error) {
	start := now.Add(-window.Std())
	target := def.EffectiveTarget()

	if def.SLI.IsRatio() {
		ratio, err := m.boundedQuery(ctx, p, def.SLI.RatioQuery, start, now)
		if err != nil {
			return 0, err
		}
		return budget.WindowBurnRate(ratio, 100, target), nil
	}

	good, err := m.boundedQuery(ctx, p, def.SLI.GoodQuery, start, now)
	if err != nil {
		return 0, err
	}
	total, err := m.boundedQuery(ctx, p, def.SLI.TotalQuery, start, now)
	if err != nil {
		return 0, err
	}
	return budget.WindowBurnRate(good, total, target), nil
}

// hasOpenBurnAlert suppresses duplicate burn-rate alerts while an earlier
// one for the same rule is still unresolved.
func (m *Manager) hasOpenBurnAlert(sloID, ruleName string) bool {
	unresolved := false
	open, err := m.opts.Store.ListAlerts(storage.AlertFilter{SLOID: sloID, Resolved: &unresolved})
	if err != nil {
		return false
	}
	for _, a := range open {
		if a.Type == alert.TypeBurnRateHigh && a.RuleName == ruleName {
			return true
		}
	}
	return false
}

// fireAlert persists an alert and emits its events.
func (m *Manager) fireAlert(a *alert.Alert) error {
	if err := m.opts.Store.SaveAlert(a); err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	if m.opts.Telemetry != nil {
		m.opts.Telemetry.AlertFired(string(a.Type))
	}

	m.publish(event.AlertTriggered, a.SLOID, a)
	switch a.Type {
	case alert.TypeBudgetWarning:
		m.publish(event.BudgetWarning, a.SLOID, a)
	case alert.TypeBudgetCritical:
		m.publish(event.BudgetCritical, a.SLOID, a)
	case alert.TypeBudgetExhausted:
		m.publish(event.BudgetExhausted, a.SLOID, a)
	case alert.TypeBurnRateHigh:
		m.publish(event.BurnRateHigh, a.SLOID, a)
	case alert.TypeSLORecovered:
		// Recovery alerts are born resolved.
		m.publish(event.AlertResolved, a.SLOID, a)
	}

	return nil
}

// AcknowledgeAlert stamps an alert with an actor. Reports false when the
// alert is unknown or already acknowledged/resolved.
func (m *Manager) AcknowledgeAlert(id, by string) (bool, error) {
	a, err := m.opts.Store.GetAlert(id)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, nil
	}
	if !a.Acknowledge(by, m.opts.Now()) {
		return false, nil
	}
	if err := m.opts.Store.UpdateAlert(a); err != nil {
		return false, fmt.Errorf("update alert: %w", err)
	}
	m.publish(event.AlertAcknowledged, a.SLOID, a)
	return true, nil
}

// ResolveAlert marks an alert resolved. Reports false when the alert is
// unknown or already resolved.
func (m *Manager) ResolveAlert(id string) (bool, error) {
	a, err := m.opts.Store.GetAlert(id)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, nil
	}
	if !a.Resolve(m.opts.Now()) {
		return false, nil
	}
	if err := m.opts.Store.UpdateAlert(a); err != nil {
		return false, fmt.Errorf("update alert: %w", err)
	}
	m.publish(event.AlertResolved, a.SLOID, a)
	return true, nil
}

// ListAlerts returns alerts matching the filter.
func (m *Manager) ListAlerts(filter storage.AlertFilter) ([]alert.Alert, error) {
	return m.opts.Store.ListAlerts(filter)
}

// GenerateReport builds a report over the period (or custom range) for one
// SLO. Returns nil when the SLO is unknown or no history exists in range.
func (m *Manager) GenerateReport(sloID string, period report.Period, custom *report.Range) (*report.Report, error) {
	r, err := m.reports.Generate(sloID, period, custom, m.opts.Now())
	if err != nil {
		return nil, err
	}
	if r != nil {
		m.publish(event.ReportGenerated, sloID, r)
	}
	return r, nil
}

// GetSummary aggregates current states across all enabled SLOs.
func (m *Manager) GetSummary() (*report.Summary, error) {
	return m.reports.Summary(m.opts.Now())
}

// MeasureNow forces one immediate measurement cycle for an SLO, outside
// its schedule. The caller is responsible for not racing the scheduled
// loop; it exists for CLI and test use.
func (m *Manager) MeasureNow(ctx context.Context, id string) error {
	return m.cycle(ctx, id)
}

// retentionLoop prunes history entries older than the retention horizon
// once per day.
func (m *Manager) retentionLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := m.opts.Now().AddDate(0, 0, -m.opts.RetentionDays)
			pruned, err := m.opts.Store.PruneHistory(cutoff)
			if err != nil {
				m.opts.Logger.Errorf("history pruning failed: %v", err)
				continue
			}
			if m.opts.Telemetry != nil {
				m.opts.Telemetry.HistoryPruned(pruned)
			}
			if pruned > 0 {
				m.opts.Logger.Infof("pruned %d history entries older than %s", pruned, cutoff.Format(time.RFC3339))
			}
		}
	}
}

func (m *Manager) publish(t event.Type, sloID string, payload interface{}) {
	m.opts.Bus.Publish(event.Event{
		Type:      t,
		SLOID:     sloID,
		Timestamp: m.opts.Now(),
		Payload:   payload,
	})
}
