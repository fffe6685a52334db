// Package metrics provides concurrent outcome aggregation for queue load tests.
//
// Every network attempt made by a virtual client is reported to a [Collector]
// as an [Outcome]. The collector keeps lock-free counters per outcome category
// and per error kind, per-endpoint status code buckets, and latency trends:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//
//	collector.Record(metrics.Outcome{
//		Category:   metrics.CategoryStatus200,
//		StatusCode: 200,
//		Duration:   latency,
//	})
//
//	snap := collector.Snapshot()
//	ready := snap.Count(metrics.CategoryReady)
//	status := snap.Trend(metrics.TrendStatusDuration)
//
// # Trends
//
// Each [Trend] is split into shards guarded by their own mutex; a writer locks
// one randomly chosen shard. Shards hold an HDR histogram and, while the trend
// has seen at most [ExactSampleLimit] samples, the raw samples as well.
//
// Percentiles are exact (linear interpolation between the closest ranks) while
// raw samples are available. Above the limit the merged histogram is used.
// Histogram values are microseconds with 3 significant digits, so a reported
// percentile is within 0.1% of the exact rank value, plus 1µs quantisation.
//
// # Thread Safety
//
// Record, RecordArrival and the client lifecycle methods are safe to call from
// any number of goroutines. [Collector.Snapshot] locks one shard at a time and
// returns an immutable value.
package metrics
