package runner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/torosent/queuefire/internal/pool"
)

// Result captures execution summary.
type Result struct {
	Scheduled int64 // arrivals the strategy produced
	Started   int64 // arrivals that ran
	Delayed   int64 // arrivals that started late or waited for a free worker
	Rejected  int64 // arrivals dropped by the overflow policy
	Duration  time.Duration
	// Err is the strategy's error, typically a cancelled context.
	Err error
}

// Runner dispatches arrivals from a Strategy onto a worker pool.
type Runner struct {
	opt Options
}

// New builds a Runner, applying defaults for unset worker bounds.
func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt}
}

// Run blocks until the strategy has produced every arrival and every
// started job has returned, or the deadline passed.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.opt.Deadline > 0 {
		deadlineCtx, deadlineCancel := context.WithTimeout(ctx, r.opt.Deadline)
		ctx = deadlineCtx
		defer deadlineCancel()
	}

	var res Result
	var err error
	switch r.opt.Strategy.Mode() {
	case DispatchInline:
		err = r.runInline(ctx, &res)
	default:
		err = r.runPooled(ctx, &res)
	}
	res.Err = err
	res.Duration = time.Since(start)
	return res
}

func (r *Runner) runPooled(ctx context.Context, res *Result) error {
	p := pool.New(pool.Options{
		MinWorkers: r.opt.MinWorkers,
		MaxWorkers: r.opt.MaxWorkers,
		Policy:     r.opt.Overflow,
		Recorder:   r.opt.Recorder,
	})
	job := r.opt.Job
	err := r.opt.Strategy.Run(ctx, func(ctx context.Context, a Arrival) error {
		return p.SubmitAt(ctx, a.Scheduled, func() { job(ctx, a.Index) })
	})
	p.Close()

	stats := p.Stats()
	res.Scheduled = stats.Submitted
	res.Started = stats.Started
	res.Delayed = stats.Delayed
	res.Rejected = stats.Rejected
	return err
}

func (r *Runner) runInline(ctx context.Context, res *Result) error {
	var scheduled atomic.Int64
	job := r.opt.Job
	err := r.opt.Strategy.Run(ctx, func(ctx context.Context, a Arrival) error {
		scheduled.Add(1)
		if r.opt.Recorder != nil {
			r.opt.Recorder.RecordArrival(0)
		}
		job(ctx, a.Index)
		return nil
	})
	res.Scheduled = scheduled.Load()
	res.Started = res.Scheduled
	return err
}
