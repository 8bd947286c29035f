package synthetic

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/emberops/ember/internal/provider"
	"github.com/emberops/ember/internal/slo"
)

// Fixture holds deterministic answers for one query: an optional per-window
// override map keyed by window strings like "1h" or "30d", and a default.
type Fixture struct {
	Windows map[string]float64 `json:"windows,omitempty"`
	Value   float64            `json:"value"`
	Fail    bool               `json:"fail,omitempty"`
}

// Adapter is a deterministic metric provider backed by fixtures. It serves
// development setups and tests; queries are looked up verbatim.
type Adapter struct {
	mu       sync.RWMutex
	fixtures map[string]*Fixture
}

// NewAdapter creates an empty synthetic adapter.
func NewAdapter() *Adapter {
	return &Adapter{fixtures: make(map[string]*Fixture)}
}

var _ provider.Provider = (*Adapter)(nil)

// LoadFixtures loads a fixture file: a JSON object mapping queries to
// fixtures.
func (a *Adapter) LoadFixtures(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture: %w", err)
	}

	var fixtures map[string]*Fixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("failed to parse fixture: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for query, fixture := range fixtures {
		a.fixtures[query] = fixture
	}
	return nil
}

// SetValue sets the default answer for a query.
func (a *Adapter) SetValue(query string, value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f := a.fixture(query)
	f.Value = value
	f.Fail = false
}

// SetWindowValue sets the answer for a query over one specific window.
func (a *Adapter) SetWindowValue(query, window string, value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f := a.fixture(query)
	if f.Windows == nil {
		f.Windows = make(map[string]float64)
	}
	f.Windows[window] = value
}

// FailQuery makes the query return an error until a value is set again.
func (a *Adapter) FailQuery(query string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fixture(query).Fail = true
}

func (a *Adapter) fixture(query string) *Fixture {
	f, ok := a.fixtures[query]
	if !ok {
		f = &Fixture{}
		a.fixtures[query] = f
	}
	return f
}

// Query implements provider.Provider.
func (a *Adapter) Query(_ context.Context, query string, start, end time.Time) (float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	f, ok := a.fixtures[query]
	if !ok {
		return 0, fmt.Errorf("no fixture for query %q", query)
	}
	if f.Fail {
		return 0, fmt.Errorf("fixture failure for query %q", query)
	}

	window := slo.Duration(end.Sub(start)).String()
	if v, ok := f.Windows[window]; ok {
		return v, nil
	}
	return f.Value, nil
}

// QueryRange implements provider.Provider by synthesizing a flat series at
// the query's instant value.
func (a *Adapter) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]provider.Point, error) {
	value, err := a.Query(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive")
	}

	var points []provider.Point
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		points = append(points, provider.Point{Timestamp: ts, Value: value})
	}
	return points, nil
}
