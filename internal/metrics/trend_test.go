package metrics

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"
	"time"
)

func TestTrendExactPercentiles(t *testing.T) {
	tr := newShardedTrend(ExactSampleLimit)
	// 100 samples: 10ms, 20ms, ..., 1000ms.
	for i := 1; i <= 100; i++ {
		tr.record(time.Duration(i*10) * time.Millisecond)
	}
	stats := tr.snapshot()

	if !stats.Exact {
		t.Fatalf("expected exact percentiles below the limit")
	}
	if stats.Count != 100 {
		t.Fatalf("count = %d", stats.Count)
	}
	if stats.Min != 10*time.Millisecond || stats.Max != time.Second {
		t.Errorf("min/max = %s/%s", stats.Min, stats.Max)
	}
	if stats.Mean != 505*time.Millisecond {
		t.Errorf("mean = %s, want 505ms", stats.Mean)
	}

	// Linear interpolation between closest ranks.
	want := map[string]struct {
		got  time.Duration
		want time.Duration
	}{
		"p50": {stats.P50, 505 * time.Millisecond},
		"p90": {stats.P90, 901 * time.Millisecond},
		"p95": {stats.P95, 950500 * time.Microsecond},
		"p99": {stats.P99, 990100 * time.Microsecond},
	}
	for name, tc := range want {
		if tc.got != tc.want {
			t.Errorf("%s = %s, want %s", name, tc.got, tc.want)
		}
	}
}

func TestTrendHistogramErrorBound(t *testing.T) {
	tr := newShardedTrend(0)
	rng := rand.New(rand.NewPCG(1, 2))
	samples := make([]time.Duration, 0, 50_000)
	for i := 0; i < 50_000; i++ {
		d := time.Duration(rng.IntN(5_000_000)+1) * time.Microsecond
		samples = append(samples, d)
		tr.record(d)
	}
	slices.Sort(samples)
	stats := tr.snapshot()
	if stats.Exact {
		t.Fatalf("expected histogram percentiles with a zero limit")
	}

	for _, p := range []int{50, 90, 95, 99} {
		got, _ := stats.Percentile(p)
		exact := exactPercentile(samples, float64(p))
		tolerance := float64(exact)*0.001 + float64(time.Microsecond)
		// Histogram ranks round differently from interpolated ranks.
		r := int(float64(p) / 100 * float64(len(samples)-1))
		lo, hi := max(r-2, 0), min(r+2, len(samples)-1)
		tolerance += float64(samples[hi] - samples[lo])
		if diff := math.Abs(float64(got - exact)); diff > tolerance {
			t.Errorf("p%d = %s, exact %s, diff %.0fns > tolerance %.0fns", p, got, exact, diff, tolerance)
		}
	}
}

func TestTrendSwitchesToHistogramAboveLimit(t *testing.T) {
	tr := newShardedTrend(10)
	for i := 1; i <= 10; i++ {
		tr.record(time.Duration(i) * time.Millisecond)
	}
	if !tr.snapshot().Exact {
		t.Fatalf("expected exact at the limit")
	}
	tr.record(11 * time.Millisecond)
	stats := tr.snapshot()
	if stats.Exact {
		t.Fatalf("expected histogram above the limit")
	}
	if stats.Count != 11 {
		t.Errorf("count = %d", stats.Count)
	}
}

func TestTrendPercentilesStayWithinBounds(t *testing.T) {
	tr := newShardedTrend(0)
	tr.record(1234567 * time.Microsecond)
	stats := tr.snapshot()
	if stats.P99 != stats.Max || stats.P50 != stats.Min {
		t.Errorf("single sample percentiles should equal the sample: %+v", stats)
	}
}

func TestTrendNegativeDurationClamped(t *testing.T) {
	tr := newShardedTrend(ExactSampleLimit)
	tr.record(-time.Second)
	stats := tr.snapshot()
	if stats.Min != 0 || stats.Count != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestExactPercentileEdgeCases(t *testing.T) {
	if got := exactPercentile(nil, 50); got != 0 {
		t.Errorf("empty = %s", got)
	}
	if got := exactPercentile([]time.Duration{7}, 99); got != 7 {
		t.Errorf("single = %s", got)
	}
}

func TestParseTrend(t *testing.T) {
	for _, tr := range Trends() {
		got, ok := ParseTrend(tr.String())
		if !ok || got != tr {
			t.Errorf("ParseTrend(%q) = %v, %v", tr.String(), got, ok)
		}
	}
	if _, ok := ParseTrend("nope"); ok {
		t.Errorf("expected unknown trend")
	}
}

func TestTrendAllocatesHistogramsOnDemand(t *testing.T) {
	c := NewCollector()
	for _, tr := range c.trends {
		for i, shard := range tr.shards {
			if shard.hist != nil {
				t.Fatalf("shard %d has a histogram before any record", i)
			}
		}
	}
	if stats := c.trends[TrendReadyTime].snapshot(); !stats.Empty() {
		t.Fatalf("empty trend snapshot = %+v", stats)
	}

	tr := c.trends[TrendSchedulingDelay]
	tr.record(5 * time.Millisecond)
	allocated := 0
	for _, shard := range tr.shards {
		if shard.hist != nil {
			allocated++
		}
	}
	if allocated != 1 {
		t.Fatalf("allocated %d histograms after one record, want 1", allocated)
	}
}
