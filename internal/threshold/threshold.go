package threshold

import (
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/torosent/queuefire/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "ready_time", "http_req_failed"
	Aggregate string  // e.g., "p95", "p99", "avg", "max", "rate", "count"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// ErrNoData is returned when a threshold targets a trend that recorded nothing.
var ErrNoData = errors.New("no data")

// Evaluator evaluates thresholds against a metrics snapshot.
type Evaluator struct {
	thresholds []Threshold
	duration   time.Duration
}

// NewEvaluator creates a new threshold evaluator. Rates per second are
// computed over duration, the configured run length.
func NewEvaluator(thresholds []Threshold, duration time.Duration) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
		duration:   duration,
	}
}

// Evaluate checks all thresholds against the snapshot.
func (e *Evaluator) Evaluate(snap metrics.Snapshot) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, snap))
	}
	return results
}

func (e *Evaluator) evaluateOne(t Threshold, snap metrics.Snapshot) Result {
	actual, err := extractMetricValue(t, snap, e.duration)
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("✗ %s: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value)
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   message,
	}
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

// PrintResults writes one coloured line per result. Colour follows
// color.NoColor, which is off when stdout is not a terminal.
func PrintResults(w io.Writer, results []Result) {
	if len(results) == 0 {
		return
	}
	pass := color.New(color.FgGreen)
	fail := color.New(color.FgRed, color.Bold)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Thresholds:")
	for _, r := range results {
		c := pass
		if !r.Pass {
			c = fail
		}
		fmt.Fprintf(w, "  %s\n", c.Sprint(r.Message))
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

var (
	trendAggregates = []string{"p50", "p90", "p95", "p99", "avg", "min", "max", "count"}
	countAggregates = []string{"count", "rate"}
)

// counters maps the non-trend metrics to their count and rate denominator.
var counters = map[string]struct {
	count func(metrics.Snapshot) int64
	// of is the rate denominator; nil means per second of configured duration.
	of func(metrics.Snapshot) int64
}{
	"http_req_failed": {
		count: metrics.Snapshot.TotalFailures,
		of:    metrics.Snapshot.TotalRequests,
	},
	"http_requests": {
		count: metrics.Snapshot.TotalRequests,
	},
	"enter_failures": {
		count: endpointFailures(metrics.EndpointEnter),
		of:    endpointRequests(metrics.EndpointEnter),
	},
	"status_failures": {
		count: endpointFailures(metrics.EndpointStatus),
		of:    endpointRequests(metrics.EndpointStatus),
	},
	"heartbeat_failures": {
		count: endpointFailures(metrics.EndpointHeartbeat),
		of:    endpointRequests(metrics.EndpointHeartbeat),
	},
	"not_in_queue": {
		count: func(s metrics.Snapshot) int64 { return s.Failures(metrics.KindNotInQueue) },
		of:    endpointRequests(metrics.EndpointStatus),
	},
	"dropped_arrivals": {
		count: func(s metrics.Snapshot) int64 { return s.Dropped },
		of:    func(s metrics.Snapshot) int64 { return s.Scheduled },
	},
	"clients_ready": {
		count: clientCount(metrics.ClientReady),
		of:    clientsStarted,
	},
	"clients_failed": {
		count: clientCount(metrics.ClientFailed),
		of:    clientsStarted,
	},
	"clients_timeout": {
		count: clientCount(metrics.ClientTimedOut),
		of:    clientsStarted,
	},
	"clients_aborted": {
		count: clientCount(metrics.ClientAborted),
		of:    clientsStarted,
	},
}

func endpointFailures(ep metrics.Endpoint) func(metrics.Snapshot) int64 {
	return func(s metrics.Snapshot) int64 { return s.EndpointFailures(ep) }
}

func endpointRequests(ep metrics.Endpoint) func(metrics.Snapshot) int64 {
	return func(s metrics.Snapshot) int64 { return s.Requests(ep) }
}

func clientCount(o metrics.ClientOutcome) func(metrics.Snapshot) int64 {
	return func(s metrics.Snapshot) int64 { return s.Clients(o) }
}

func clientsStarted(s metrics.Snapshot) int64 { return s.Started }

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "ready_time:p95 < 60000"          (trend percentile in ms)
// - "http_req_duration:avg < 200"     (average latency in ms)
// - "enter_duration:max < 1000"       (max latency in ms)
// - "http_req_failed:rate < 0.01"     (failure rate as decimal)
// - "enter_failures:count < 10"       (failure count)
// - "http_requests:rate > 100"        (requests per second)
// - "dropped_arrivals:count == 0"     (arrivals rejected by the pool)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'ready_time:p95 < 60000')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	allowed, ok := aggregatesFor(metric)
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(SupportedMetrics(), ", "))
	}
	if !slices.Contains(allowed, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q for %s (supported: %s)", aggregate, metric, strings.Join(allowed, ", "))
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

// SupportedMetrics lists every metric name a threshold can reference, sorted.
func SupportedMetrics() []string {
	names := make([]string, 0, len(counters)+len(metrics.Trends()))
	for _, t := range metrics.Trends() {
		names = append(names, t.String())
	}
	for name := range counters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func aggregatesFor(metric string) ([]string, bool) {
	if _, ok := metrics.ParseTrend(metric); ok {
		return trendAggregates, true
	}
	if _, ok := counters[metric]; ok {
		return countAggregates, true
	}
	return nil, false
}

func isValidOperator(operator string) bool {
	valid := []string{"<", "<=", ">", ">=", "=="}
	return slices.Contains(valid, operator)
}

func extractMetricValue(t Threshold, snap metrics.Snapshot, duration time.Duration) (float64, error) {
	if trend, ok := metrics.ParseTrend(t.Metric); ok {
		return extractTrendMetric(t.Aggregate, snap.Trend(trend))
	}
	c, ok := counters[t.Metric]
	if !ok {
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
	count := c.count(snap)
	switch t.Aggregate {
	case "count":
		return float64(count), nil
	case "rate":
		if c.of == nil {
			if duration <= 0 {
				return 0, ErrNoData
			}
			return float64(count) / duration.Seconds(), nil
		}
		total := c.of(snap)
		if total == 0 {
			return 0, nil
		}
		return float64(count) / float64(total), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s (use 'count' or 'rate')", t.Aggregate, t.Metric)
	}
}

func extractTrendMetric(aggregate string, stats metrics.TrendStats) (float64, error) {
	if aggregate == "count" {
		return float64(stats.Count), nil
	}
	if stats.Empty() {
		return 0, ErrNoData
	}
	var d time.Duration
	switch aggregate {
	case "p50":
		d = stats.P50
	case "p90":
		d = stats.P90
	case "p95":
		d = stats.P95
	case "p99":
		d = stats.P99
	case "avg", "mean":
		d = stats.Mean
	case "min":
		d = stats.Min
	case "max":
		d = stats.Max
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for a latency trend", aggregate)
	}
	return float64(d) / float64(time.Millisecond), nil
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
