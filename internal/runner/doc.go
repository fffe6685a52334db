// Package runner schedules virtual client arrivals for queuefire.
//
// A [Strategy] decides when arrivals happen and a [Runner] decides where
// they run:
//   - [OpenLoop] fires arrival i at i/rate seconds after the start for
//     floor(rate*duration) arrivals. Offsets are absolute, so slow
//     responses never lower the arrival rate. Arrivals are handed to a
//     bounded worker pool whose overflow policy is recorded.
//   - [ClosedLoop] runs a fixed number of VUs, each starting its next
//     arrival when the previous one returns, paced by a token bucket.
//
// # Basic Usage
//
//	r := runner.New(runner.Options{
//		Strategy:   &runner.OpenLoop{Rate: 100, Duration: 30 * time.Second},
//		Job:        func(ctx context.Context, i int) { machine.Run(ctx, clientFor(i)) },
//		MinWorkers: 100,
//		MaxWorkers: 200,
//		Overflow:   pool.Reject,
//		Deadline:   time.Minute,
//		Recorder:   collector,
//	})
//	result := r.Run(ctx)
//
// The scheduler performs no network I/O. The run deadline (duration plus
// graceful stop) cancels the context passed to jobs still running.
package runner
