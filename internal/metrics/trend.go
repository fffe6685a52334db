package metrics

import (
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Trend names a latency distribution tracked by the collector.
type Trend uint8

const (
	// TrendRequestDuration covers every request regardless of endpoint.
	TrendRequestDuration Trend = iota
	TrendEnterDuration
	TrendStatusDuration
	TrendHeartbeatDuration
	// TrendReadyTime is the enter to ready elapsed time per admitted client.
	TrendReadyTime
	// TrendSchedulingDelay is how late delayed arrivals started.
	TrendSchedulingDelay
	numTrends
)

var trendNames = [numTrends]string{
	TrendRequestDuration:   "http_req_duration",
	TrendEnterDuration:     "enter_duration",
	TrendStatusDuration:    "status_duration",
	TrendHeartbeatDuration: "heartbeat_duration",
	TrendReadyTime:         "ready_time",
	TrendSchedulingDelay:   "scheduling_delay",
}

func (t Trend) String() string {
	if t >= numTrends {
		return "unknown"
	}
	return trendNames[t]
}

// Trends lists every trend in report order.
func Trends() []Trend {
	out := make([]Trend, 0, numTrends)
	for t := Trend(0); t < numTrends; t++ {
		out = append(out, t)
	}
	return out
}

// ParseTrend resolves a trend by its metric name.
func ParseTrend(name string) (Trend, bool) {
	for t := Trend(0); t < numTrends; t++ {
		if trendNames[t] == name {
			return t, true
		}
	}
	return 0, false
}

const (
	shardCount = 32

	// ExactSampleLimit is the number of samples per trend up to which
	// percentiles are computed exactly from raw samples.
	ExactSampleLimit = 10_000

	// Track latencies from 1µs up to 1h with 3 significant figures.
	histogramLowest  = 1
	histogramHighest = 3_600_000_000
	histogramSigFigs = 3
)

// TrendStats summarises a trend at snapshot time. A zero Count means no data.
type TrendStats struct {
	Count int64
	Sum   time.Duration
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P90   time.Duration
	P95   time.Duration
	P99   time.Duration
	// Exact reports whether percentiles came from raw samples.
	Exact bool
}

// Empty reports whether the trend recorded no samples.
func (s TrendStats) Empty() bool { return s.Count == 0 }

// Percentile returns the named percentile (50, 90, 95 or 99).
func (s TrendStats) Percentile(p int) (time.Duration, bool) {
	switch p {
	case 50:
		return s.P50, true
	case 90:
		return s.P90, true
	case 95:
		return s.P95, true
	case 99:
		return s.P99, true
	default:
		return 0, false
	}
}

type trendShard struct {
	mu      sync.Mutex
	hist    *hdrhistogram.Histogram // allocated on first record
	samples []time.Duration
	count   int64
	sum     time.Duration
	min     time.Duration
	max     time.Duration
}

type shardedTrend struct {
	shards     [shardCount]*trendShard
	admitted   atomic.Int64
	exactLimit int64
}

func newShardedTrend(exactLimit int) *shardedTrend {
	t := &shardedTrend{exactLimit: int64(exactLimit)}
	for i := range t.shards {
		t.shards[i] = &trendShard{}
	}
	return t
}

func (t *shardedTrend) record(d time.Duration) {
	if d < 0 {
		d = 0
	}
	keep := t.admitted.Add(1) <= t.exactLimit
	shard := t.shards[rand.IntN(shardCount)]

	shard.mu.Lock()
	shard.record(d, keep)
	shard.mu.Unlock()
}

func (s *trendShard) record(d time.Duration, keep bool) {
	us := d.Microseconds()
	if us < histogramLowest {
		us = histogramLowest
	}
	if us > histogramHighest {
		us = histogramHighest
	}
	if s.hist == nil {
		s.hist = newHistogram()
	}
	_ = s.hist.RecordValue(us)

	if keep {
		s.samples = append(s.samples, d)
	} else if s.samples != nil {
		// Exactness is lost for the whole trend once any sample is dropped.
		s.samples = nil
	}
	if s.count == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.count++
	s.sum += d
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(histogramLowest, histogramHighest, histogramSigFigs)
}

func (t *shardedTrend) snapshot() TrendStats {
	var (
		stats   TrendStats
		samples []time.Duration
		kept    int64
		merged  *hdrhistogram.Histogram
	)
	for _, shard := range t.shards {
		shard.mu.Lock()
		if shard.count > 0 {
			if stats.Count == 0 || shard.min < stats.Min {
				stats.Min = shard.min
			}
			if shard.max > stats.Max {
				stats.Max = shard.max
			}
			stats.Count += shard.count
			stats.Sum += shard.sum
			if merged == nil {
				merged = newHistogram()
			}
			merged.Merge(shard.hist)
			samples = append(samples, shard.samples...)
			kept += int64(len(shard.samples))
		}
		shard.mu.Unlock()
	}
	if stats.Count == 0 {
		return TrendStats{}
	}

	stats.Mean = time.Duration(int64(stats.Sum) / stats.Count)
	if kept == stats.Count {
		slices.Sort(samples)
		stats.Exact = true
		stats.P50 = exactPercentile(samples, 50)
		stats.P90 = exactPercentile(samples, 90)
		stats.P95 = exactPercentile(samples, 95)
		stats.P99 = exactPercentile(samples, 99)
		return stats
	}

	stats.P50 = histogramPercentile(merged, 50, stats)
	stats.P90 = histogramPercentile(merged, 90, stats)
	stats.P95 = histogramPercentile(merged, 95, stats)
	stats.P99 = histogramPercentile(merged, 99, stats)
	return stats
}

// exactPercentile interpolates linearly between the closest ranks of sorted.
func exactPercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + time.Duration(math.Round(frac*float64(sorted[hi]-sorted[lo])))
}

func histogramPercentile(h *hdrhistogram.Histogram, p float64, bounds TrendStats) time.Duration {
	v := time.Duration(h.ValueAtQuantile(p)) * time.Microsecond
	// Bucket upper bounds can overshoot the true extremes.
	if v > bounds.Max {
		v = bounds.Max
	}
	if v < bounds.Min {
		v = bounds.Min
	}
	return v
}
