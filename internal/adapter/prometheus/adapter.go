package prometheus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/emberops/ember/internal/provider"
	"github.com/emberops/ember/internal/slo"
)

// Config holds Prometheus adapter configuration.
type Config struct {
	URL            string
	Timeout        time.Duration
	MaxConcurrency int64
	RetryCount     int
	RetryDelay     time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig(prometheusURL string) Config {
	return Config{
		URL:            prometheusURL,
		Timeout:        10 * time.Second,
		MaxConcurrency: 10,
		RetryCount:     1,
		RetryDelay:     100 * time.Millisecond,
	}
}

// Adapter is the Prometheus metric provider. Queries may contain a
// {{window}} placeholder which is substituted with the requested window
// before execution.
type Adapter struct {
	config Config
	client *http.Client
	sem    *semaphore.Weighted
}

// NewAdapter creates a new Prometheus adapter.
func NewAdapter(config Config) *Adapter {
	return &Adapter{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		sem: semaphore.NewWeighted(config.MaxConcurrency),
	}
}

var _ provider.Provider = (*Adapter)(nil)

// Query executes an instant query at end, with {{window}} substituted by
// the start..end span, and returns the summed result.
func (a *Adapter) Query(ctx context.Context, query string, start, end time.Time) (float64, error) {
	instantQuery := substituteWindow(query, end.Sub(start))

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("semaphore acquire: %w", err)
	}
	defer a.sem.Release(1)

	params := url.Values{}
	params.Add("query", instantQuery)
	params.Add("time", strconv.FormatInt(end.Unix(), 10))

	resp, err := a.executeWithRetry(ctx, "/api/v1/query", params)
	if err != nil {
		return 0, err
	}

	return sumVector(resp), nil
}

// QueryRange executes a range query sampled at step.
func (a *Adapter) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]provider.Point, error) {
	rangeQuery := substituteWindow(query, end.Sub(start))

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("semaphore acquire: %w", err)
	}
	defer a.sem.Release(1)

	params := url.Values{}
	params.Add("query", rangeQuery)
	params.Add("start", strconv.FormatInt(start.Unix(), 10))
	params.Add("end", strconv.FormatInt(end.Unix(), 10))
	params.Add("step", strconv.FormatInt(int64(step.Seconds()), 10))

	resp, err := a.executeWithRetry(ctx, "/api/v1/query_range", params)
	if err != nil {
		return nil, err
	}

	return flattenMatrix(resp), nil
}

// executeWithRetry runs one API call with the configured retry budget.
func (a *Adapter) executeWithRetry(ctx context.Context, path string, params url.Values) (*QueryResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= a.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.config.RetryDelay):
			}
		}

		resp, err := a.execute(ctx, path, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("query failed after %d attempts: %w", a.config.RetryCount+1, lastErr)
}

// execute performs a single Prometheus API call.
func (a *Adapter) execute(ctx context.Context, path string, params url.Values) (*QueryResponse, error) {
	fullURL := strings.TrimSuffix(a.config.URL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	var result QueryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("prometheus error: %s", result.Error)
	}

	return &result, nil
}

// substituteWindow replaces {{window}} with a PromQL duration like "5m".
func substituteWindow(query string, window time.Duration) string {
	return strings.ReplaceAll(query, "{{window}}", formatPromDuration(window))
}

func formatPromDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}

// sumVector aggregates all series of an instant vector by summing them.
func sumVector(resp *QueryResponse) float64 {
	if resp == nil {
		return 0
	}

	var sum float64
	for _, result := range resp.Data.Result {
		sum += result.Value.Value()
	}
	return sum
}

// flattenMatrix merges all series of a matrix into one ordered point list,
// summing values that share a timestamp.
func flattenMatrix(resp *QueryResponse) []provider.Point {
	if resp == nil {
		return nil
	}

	byTS := make(map[int64]float64)
	for _, result := range resp.Data.Result {
		for _, sample := range result.Values {
			byTS[sample.Timestamp().Unix()] += sample.Value()
		}
	}

	points := make([]provider.Point, 0, len(byTS))
	for ts, v := range byTS {
		points = append(points, provider.Point{Timestamp: time.Unix(ts, 0), Value: v})
	}
	sortPoints(points)
	return points
}

func sortPoints(points []provider.Point) {
	for i := 1; i < len(points); i++ {
		for j := i; j > 0 && points[j].Timestamp.Before(points[j-1].Timestamp); j-- {
			points[j], points[j-1] = points[j-1], points[j]
		}
	}
}

// Source is the metric source kind this adapter serves.
func (a *Adapter) Source() slo.MetricSource {
	return slo.SourcePrometheus
}
