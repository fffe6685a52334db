package output

import (
	"time"

	"github.com/torosent/queuefire/internal/metrics"
)

// NoData marks a metric or section that recorded nothing.
const NoData = "no data"

// RunConfig is the subset of run settings a report describes.
type RunConfig struct {
	RunID             string
	ScheduleID        string
	Scenario          string
	Strategy          string
	Overflow          string
	TargetRate        float64
	Duration          time.Duration
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	MaxIterations     int
	VUs               int
	MinWorkers        int
	MaxWorkers        int
}

// Report is the end-of-run summary. Generate builds it; Write* render it.
type Report struct {
	RunID       string                   `json:"run_id" yaml:"run_id"`
	Config      ConfigSection            `json:"config" yaml:"config"`
	Requests    Section[RequestCounts]   `json:"requests" yaml:"requests"`
	Failures    Section[FailureCounts]   `json:"failures" yaml:"failures"`
	Latency     []LatencyEntry           `json:"latency" yaml:"latency"`
	Clients     Section[ClientCounts]    `json:"clients" yaml:"clients"`
	Scheduling  Section[SchedulingStats] `json:"scheduling" yaml:"scheduling"`
	StatusCodes Section[[]StatusCode]    `json:"status_codes" yaml:"status_codes"`
	Throughput  Section[Throughput]      `json:"throughput" yaml:"throughput"`
}

// ConfigSection echoes the run settings the numbers were measured under.
type ConfigSection struct {
	ScheduleID          string `json:"schedule_id" yaml:"schedule_id"`
	Scenario            string `json:"scenario" yaml:"scenario"`
	Strategy            string `json:"strategy" yaml:"strategy"`
	TargetRate          Number `json:"target_rate" yaml:"target_rate"`
	DurationSec         Number `json:"duration_sec" yaml:"duration_sec"`
	PollIntervalMs      Number `json:"poll_interval_ms" yaml:"poll_interval_ms"`
	HeartbeatIntervalMs Number `json:"heartbeat_interval_ms" yaml:"heartbeat_interval_ms"`
	MaxIterations       int    `json:"max_iterations" yaml:"max_iterations"`
	VUs                 int    `json:"vus" yaml:"vus"`
}

type CategoryCount struct {
	Category string `json:"category" yaml:"category"`
	Count    int64  `json:"count" yaml:"count"`
}

type RequestCounts struct {
	Total      int64           `json:"total" yaml:"total"`
	Enter      int64           `json:"enter" yaml:"enter"`
	Status     int64           `json:"status" yaml:"status"`
	Heartbeat  int64           `json:"heartbeat" yaml:"heartbeat"`
	Ready      int64           `json:"ready" yaml:"ready"`
	FailedPct  Number          `json:"failed_pct" yaml:"failed_pct"`
	Categories []CategoryCount `json:"categories" yaml:"categories"`
}

type FailureCounts struct {
	Timeout            int64  `json:"timeout" yaml:"timeout"`
	NotInQueue         int64  `json:"not_in_queue" yaml:"not_in_queue"`
	ServerError        int64  `json:"server_error" yaml:"server_error"`
	Protocol           int64  `json:"protocol" yaml:"protocol"`
	Other              int64  `json:"other" yaml:"other"`
	ResourceExhaustion int64  `json:"resource_exhaustion" yaml:"resource_exhaustion"`
	Aborted            int64  `json:"aborted" yaml:"aborted"`
	Enter              int64  `json:"enter_failures" yaml:"enter_failures"`
	Status             int64  `json:"status_failures" yaml:"status_failures"`
	Heartbeat          int64  `json:"heartbeat_failures" yaml:"heartbeat_failures"`
	Status404Pct       Number `json:"status_404_pct" yaml:"status_404_pct"`
}

// LatencyEntry is one named trend; Stats is NoData when the trend is empty.
type LatencyEntry struct {
	Name  string                `json:"name" yaml:"name"`
	Stats Section[LatencyStats] `json:"stats" yaml:"stats"`
}

// LatencyStats holds a trend summary in milliseconds.
type LatencyStats struct {
	Count int64  `json:"count" yaml:"count"`
	Min   Number `json:"min_ms" yaml:"min_ms"`
	Avg   Number `json:"avg_ms" yaml:"avg_ms"`
	Max   Number `json:"max_ms" yaml:"max_ms"`
	P50   Number `json:"p50_ms" yaml:"p50_ms"`
	P90   Number `json:"p90_ms" yaml:"p90_ms"`
	P95   Number `json:"p95_ms" yaml:"p95_ms"`
	P99   Number `json:"p99_ms" yaml:"p99_ms"`
	Exact bool   `json:"exact" yaml:"exact"`
}

type ClientCounts struct {
	Started  int64 `json:"started" yaml:"started"`
	Ready    int64 `json:"ready" yaml:"ready"`
	Failed   int64 `json:"failed" yaml:"failed"`
	TimedOut int64 `json:"timed_out" yaml:"timed_out"`
	Aborted  int64 `json:"aborted" yaml:"aborted"`
	Active   int64 `json:"active" yaml:"active"`
}

type SchedulingStats struct {
	Scheduled  int64  `json:"scheduled" yaml:"scheduled"`
	Delayed    int64  `json:"delayed" yaml:"delayed"`
	Dropped    int64  `json:"dropped" yaml:"dropped"`
	Overflow   string `json:"overflow" yaml:"overflow"`
	MinWorkers int    `json:"min_workers" yaml:"min_workers"`
	MaxWorkers int    `json:"max_workers" yaml:"max_workers"`
}

type StatusCode struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Code     string `json:"code" yaml:"code"`
	Count    int    `json:"count" yaml:"count"`
}

// Throughput is computed over the configured duration. ObservedSec is the
// wall-clock run time including drain, for reference only.
type Throughput struct {
	DurationSec    Number `json:"duration_sec" yaml:"duration_sec"`
	ObservedSec    Number `json:"observed_sec" yaml:"observed_sec"`
	TotalRPS       Number `json:"total_rps" yaml:"total_rps"`
	EnterRPS       Number `json:"enter_rps" yaml:"enter_rps"`
	StatusRPS      Number `json:"status_rps" yaml:"status_rps"`
	HeartbeatRPS   Number `json:"heartbeat_rps" yaml:"heartbeat_rps"`
	TargetRate     Number `json:"target_rate" yaml:"target_rate"`
	AchievementPct Number `json:"achievement_pct" yaml:"achievement_pct"`
}

// Generate builds the report for a snapshot. It never fails: anything the
// snapshot lacks is marked NoData.
func Generate(snap metrics.Snapshot, cfg RunConfig) Report {
	r := Report{
		RunID: cfg.RunID,
		Config: ConfigSection{
			ScheduleID:          cfg.ScheduleID,
			Scenario:            cfg.Scenario,
			Strategy:            cfg.Strategy,
			TargetRate:          positive(cfg.TargetRate),
			DurationSec:         positive(cfg.Duration.Seconds()),
			PollIntervalMs:      Num(ms(cfg.PollInterval)),
			HeartbeatIntervalMs: Num(ms(cfg.HeartbeatInterval)),
			MaxIterations:       cfg.MaxIterations,
			VUs:                 cfg.VUs,
		},
	}

	total := snap.TotalRequests()
	if total > 0 {
		r.Requests = Some(requestCounts(snap, total))
		r.Failures = Some(failureCounts(snap))
		r.Throughput = Some(throughput(snap, cfg, total))
	}

	for _, trend := range metrics.Trends() {
		entry := LatencyEntry{Name: trend.String()}
		if stats := snap.Trend(trend); !stats.Empty() {
			entry.Stats = Some(latencyStats(stats))
		}
		r.Latency = append(r.Latency, entry)
	}

	if snap.Started > 0 {
		r.Clients = Some(ClientCounts{
			Started:  snap.Started,
			Ready:    snap.Clients(metrics.ClientReady),
			Failed:   snap.Clients(metrics.ClientFailed),
			TimedOut: snap.Clients(metrics.ClientTimedOut),
			Aborted:  snap.Clients(metrics.ClientAborted),
			Active:   snap.Active,
		})
	}

	if snap.Scheduled > 0 {
		r.Scheduling = Some(SchedulingStats{
			Scheduled:  snap.Scheduled,
			Delayed:    snap.Delayed,
			Dropped:    snap.Dropped,
			Overflow:   cfg.Overflow,
			MinWorkers: cfg.MinWorkers,
			MaxWorkers: cfg.MaxWorkers,
		})
	}

	if buckets := snap.StatusBuckets(); len(buckets) > 0 {
		codes := make([]StatusCode, 0, len(buckets))
		for _, b := range buckets {
			codes = append(codes, StatusCode{Endpoint: b.Endpoint, Code: b.Code, Count: b.Count})
		}
		r.StatusCodes = Some(codes)
	}
	return r
}

func requestCounts(snap metrics.Snapshot, total int64) RequestCounts {
	rc := RequestCounts{
		Total:     total,
		Enter:     snap.Requests(metrics.EndpointEnter),
		Status:    snap.Requests(metrics.EndpointStatus),
		Heartbeat: snap.Requests(metrics.EndpointHeartbeat),
		Ready:     snap.Count(metrics.CategoryReady),
		FailedPct: ratioPct(snap.TotalFailures(), total),
	}
	for _, c := range metrics.Categories() {
		rc.Categories = append(rc.Categories, CategoryCount{Category: c.String(), Count: snap.Count(c)})
	}
	return rc
}

func failureCounts(snap metrics.Snapshot) FailureCounts {
	return FailureCounts{
		Timeout:            snap.Failures(metrics.KindTransportTimeout),
		NotInQueue:         snap.Failures(metrics.KindNotInQueue),
		ServerError:        snap.Failures(metrics.KindServerError),
		Protocol:           snap.Failures(metrics.KindProtocolError),
		Other:              snap.Failures(metrics.KindClientError),
		ResourceExhaustion: snap.Failures(metrics.KindResourceExhaustion),
		Aborted:            snap.Failures(metrics.KindAborted),
		Enter:              snap.EndpointFailures(metrics.EndpointEnter),
		Status:             snap.EndpointFailures(metrics.EndpointStatus),
		Heartbeat:          snap.EndpointFailures(metrics.EndpointHeartbeat),
		Status404Pct:       ratioPct(snap.Count(metrics.CategoryStatus404), snap.Requests(metrics.EndpointStatus)),
	}
}

func latencyStats(s metrics.TrendStats) LatencyStats {
	return LatencyStats{
		Count: s.Count,
		Min:   Num(ms(s.Min)),
		Avg:   Num(ms(s.Mean)),
		Max:   Num(ms(s.Max)),
		P50:   Num(ms(s.P50)),
		P90:   Num(ms(s.P90)),
		P95:   Num(ms(s.P95)),
		P99:   Num(ms(s.P99)),
		Exact: s.Exact,
	}
}

func throughput(snap metrics.Snapshot, cfg RunConfig, total int64) Throughput {
	secs := cfg.Duration.Seconds()
	perSec := func(n int64) Number {
		if secs <= 0 {
			return Number{}
		}
		return Num(float64(n) / secs)
	}
	t := Throughput{
		DurationSec:  positive(secs),
		ObservedSec:  positive(snap.Elapsed.Seconds()),
		TotalRPS:     perSec(total),
		EnterRPS:     perSec(snap.Requests(metrics.EndpointEnter)),
		StatusRPS:    perSec(snap.Requests(metrics.EndpointStatus)),
		HeartbeatRPS: perSec(snap.Requests(metrics.EndpointHeartbeat)),
		TargetRate:   positive(cfg.TargetRate),
	}
	if enter, ok := t.EnterRPS.Value(); ok && cfg.TargetRate > 0 {
		t.AchievementPct = Num(enter / cfg.TargetRate * 100)
	}
	return t
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func ratioPct(n, of int64) Number {
	if of <= 0 {
		return Number{}
	}
	return Num(float64(n) / float64(of) * 100)
}

func positive(v float64) Number {
	if v <= 0 {
		return Number{}
	}
	return Num(v)
}
