package runner

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Arrival is one scheduled client start.
type Arrival struct {
	Index     int
	Scheduled time.Time
}

// Dispatcher starts the work for an arrival. Pooled dispatchers return as
// soon as a worker accepted it; inline dispatchers return when it finished.
type Dispatcher func(ctx context.Context, a Arrival) error

// DispatchMode tells the Runner how a strategy expects dispatch to behave.
type DispatchMode uint8

const (
	// DispatchPooled hands each arrival to the worker pool.
	DispatchPooled DispatchMode = iota
	// DispatchInline runs each arrival on the strategy's own goroutine.
	DispatchInline
)

// Strategy decides when arrivals happen.
type Strategy interface {
	Run(ctx context.Context, dispatch Dispatcher) error
	Mode() DispatchMode
}

// OpenLoop fires ArrivalCount(Rate, Duration) arrivals at fixed offsets from
// the start, independent of how long earlier arrivals take.
type OpenLoop struct {
	Rate     float64
	Duration time.Duration
	Clock    Clock // nil uses the wall clock
}

func (o *OpenLoop) Mode() DispatchMode { return DispatchPooled }

func (o *OpenLoop) Run(ctx context.Context, dispatch Dispatcher) error {
	clock := o.Clock
	if clock == nil {
		clock = systemClock{}
	}
	n := ArrivalCount(o.Rate, o.Duration)
	start := clock.Now()
	for i := 0; i < n; i++ {
		offset := ArrivalOffset(i, o.Rate)
		// Offsets are absolute, so a late wake-up never shifts later arrivals.
		if wait := offset - clock.Now().Sub(start); wait > 0 {
			if err := clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := dispatch(ctx, Arrival{Index: i, Scheduled: start.Add(offset)}); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// ClosedLoop runs VUs goroutines that each start the next arrival as soon as
// the previous one finished, with the total pace capped at Rate.
type ClosedLoop struct {
	VUs      int
	Rate     float64 // <= 0 means no cap
	Duration time.Duration
	// Limiter overrides the limiter built from Rate.
	Limiter *rate.Limiter
}

func (c *ClosedLoop) Mode() DispatchMode { return DispatchInline }

func (c *ClosedLoop) Run(ctx context.Context, dispatch Dispatcher) error {
	vus := c.VUs
	if vus < 1 {
		vus = 1
	}
	limiter := c.Limiter
	if limiter == nil {
		limiter = newLimiter(c.Rate)
	}

	// Pacing stops at Duration; dispatched work keeps ctx so it can drain.
	paceCtx, cancel := context.WithTimeout(ctx, c.Duration)
	defer cancel()

	var next atomic.Int64
	g, vuCtx := errgroup.WithContext(paceCtx)
	for v := 0; v < vus; v++ {
		g.Go(func() error {
			for vuCtx.Err() == nil {
				if err := limiter.Wait(vuCtx); err != nil {
					return nil
				}
				i := int(next.Add(1) - 1)
				_ = dispatch(ctx, Arrival{Index: i, Scheduled: time.Now()})
			}
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}
