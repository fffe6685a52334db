package metrics

import (
	"strconv"
	"sync/atomic"
	"time"
)

// maxStatusCode bounds the per-endpoint status buckets; larger codes share
// the last bucket.
const maxStatusCode = 600

// Collector records per-request outcomes in a thread-safe manner.
type Collector struct {
	categories [numCategories]atomic.Int64
	kinds      [numKinds]atomic.Int64
	clients    [numClientOutcomes]atomic.Int64
	codes      [numEndpoints][maxStatusCode + 1]atomic.Int64
	trends     [numTrends]*shardedTrend

	started   atomic.Int64
	active    atomic.Int64
	scheduled atomic.Int64
	delayed   atomic.Int64
	dropped   atomic.Int64

	start atomic.Int64 // unix nanos
}

// NewCollector returns a collector using ExactSampleLimit.
func NewCollector() *Collector {
	return NewCollectorWithLimit(ExactSampleLimit)
}

// NewCollectorWithLimit returns a collector whose trends stay exact up to
// exactLimit samples each. A limit <= 0 always uses the histogram.
func NewCollectorWithLimit(exactLimit int) *Collector {
	if exactLimit < 0 {
		exactLimit = 0
	}
	c := &Collector{}
	for i := range c.trends {
		c.trends[i] = newShardedTrend(exactLimit)
	}
	c.start.Store(time.Now().UnixNano())
	return c
}

// Start marks the beginning of the run for elapsed time calculations.
func (c *Collector) Start() {
	c.start.Store(time.Now().UnixNano())
}

// StartedAt returns the time Start was last called.
func (c *Collector) StartedAt() time.Time {
	return time.Unix(0, c.start.Load())
}

var endpointTrends = [numEndpoints]Trend{
	EndpointEnter:     TrendEnterDuration,
	EndpointStatus:    TrendStatusDuration,
	EndpointHeartbeat: TrendHeartbeatDuration,
}

// Record adds one outcome. Request categories update the endpoint counters,
// status buckets and latency trends; CategoryReady updates the ready trend.
func (c *Collector) Record(o Outcome) {
	if o.Category >= numCategories {
		return
	}
	c.categories[o.Category].Add(1)
	if o.Kind != KindNone && o.Kind < numKinds {
		c.kinds[o.Kind].Add(1)
	}

	ep, isRequest := o.Category.Endpoint()
	if !isRequest {
		c.trends[TrendReadyTime].record(o.Duration)
		return
	}
	c.codes[ep][statusIndex(o.StatusCode)].Add(1)
	c.trends[TrendRequestDuration].record(o.Duration)
	c.trends[endpointTrends[ep]].record(o.Duration)
}

func statusIndex(code int) int {
	if code < 0 {
		return 0
	}
	if code > maxStatusCode {
		return maxStatusCode
	}
	return code
}

// ClientStarted marks a virtual client as running.
func (c *Collector) ClientStarted() {
	c.started.Add(1)
	c.active.Add(1)
}

// ClientFinished records the terminal outcome of a running virtual client.
func (c *Collector) ClientFinished(o ClientOutcome) {
	if o >= numClientOutcomes {
		return
	}
	c.clients[o].Add(1)
	c.active.Add(-1)
	switch o {
	case ClientTimedOut:
		c.kinds[KindResourceExhaustion].Add(1)
	case ClientAborted:
		c.kinds[KindAborted].Add(1)
	}
}

// RecordArrival records a dispatched arrival. A positive delay is how late
// the arrival started against its scheduled instant.
func (c *Collector) RecordArrival(delay time.Duration) {
	c.scheduled.Add(1)
	if delay > 0 {
		c.delayed.Add(1)
		c.trends[TrendSchedulingDelay].record(delay)
	}
}

// RecordDroppedArrival records an arrival rejected because every worker was busy.
func (c *Collector) RecordDroppedArrival() {
	c.scheduled.Add(1)
	c.dropped.Add(1)
}

// Active returns the number of clients currently running.
func (c *Collector) Active() int64 {
	return c.active.Load()
}

// Snapshot returns an immutable view of everything recorded so far.
func (c *Collector) Snapshot() Snapshot {
	now := time.Now()
	s := Snapshot{
		TakenAt:   now,
		StartedAt: c.StartedAt(),
		Started:   c.started.Load(),
		Active:    c.active.Load(),
		Scheduled: c.scheduled.Load(),
		Delayed:   c.delayed.Load(),
		Dropped:   c.dropped.Load(),
	}
	s.Elapsed = now.Sub(s.StartedAt)
	for i := range c.categories {
		s.categories[i] = c.categories[i].Load()
	}
	for i := range c.kinds {
		s.kinds[i] = c.kinds[i].Load()
	}
	for i := range c.clients {
		s.clients[i] = c.clients[i].Load()
	}
	for i, trend := range c.trends {
		s.trends[i] = trend.snapshot()
	}

	buckets := make(map[string]map[string]int)
	for ep := range c.codes {
		for code := range c.codes[ep] {
			n := c.codes[ep][code].Load()
			if n == 0 {
				continue
			}
			name := Endpoint(ep).String()
			if buckets[name] == nil {
				buckets[name] = make(map[string]int)
			}
			buckets[name][statusLabel(code)] = int(n)
		}
	}
	s.statusBuckets = FlattenStatusBuckets(buckets)
	return s
}

func statusLabel(code int) string {
	switch {
	case code == 0:
		return "no_response"
	case code >= maxStatusCode:
		return strconv.Itoa(maxStatusCode) + "+"
	default:
		return strconv.Itoa(code)
	}
}
