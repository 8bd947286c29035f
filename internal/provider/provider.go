package provider

import (
	"context"
	"time"

	"github.com/emberops/ember/internal/slo"
)

// Point is one sample of a range query result.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Provider answers windowed metric queries for one source kind. Query is
// the only engine operation expected to block on I/O; callers bound it with
// the context deadline.
type Provider interface {
	// Query returns a single aggregate value for the window.
	Query(ctx context.Context, query string, start, end time.Time) (float64, error)

	// QueryRange returns a time series sampled at step. The core budget
	// loop does not need it; it exists for auxiliary analysis.
	QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]Point, error)
}

// Registry maps metric source kinds to providers. A provider must be
// registered before any SLO using that source can be measured; absence is
// a configuration error, not a retryable fault.
type Registry struct {
	providers map[slo.MetricSource]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[slo.MetricSource]Provider)}
}

// Register binds a provider to a source kind, replacing any previous one.
// Registration happens at wiring time, before the engine starts.
func (r *Registry) Register(source slo.MetricSource, p Provider) {
	r.providers[source] = p
}

// Get returns the provider for a source kind.
func (r *Registry) Get(source slo.MetricSource) (Provider, bool) {
	p, ok := r.providers[source]
	return p, ok
}

// Sources lists the registered source kinds.
func (r *Registry) Sources() []slo.MetricSource {
	out := make([]slo.MetricSource, 0, len(r.providers))
	for s := range r.providers {
		out = append(out, s)
	}
	return out
}
