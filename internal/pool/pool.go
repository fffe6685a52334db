// Package pool runs arrivals on a bounded set of goroutines.
//
// MinWorkers goroutines are started up front. When every worker is busy a
// new one is spawned, up to MaxWorkers. Past that ceiling the overflow
// policy decides: Reject drops the arrival, Delay blocks the submitter until
// a worker frees up. Both outcomes are reported to the ArrivalRecorder, along
// with how late each started task was against its due instant.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Policy decides what happens to a task when every worker is busy.
type Policy uint8

const (
	Reject Policy = iota
	Delay
)

func (p Policy) String() string {
	switch p {
	case Reject:
		return "reject"
	case Delay:
		return "delay"
	default:
		return "unknown"
	}
}

// ParsePolicy resolves "reject" or "delay".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return Reject, nil
	case "delay":
		return Delay, nil
	default:
		return Reject, fmt.Errorf("unknown overflow policy %q", s)
	}
}

var (
	// ErrRejected is returned by Submit when the Reject policy dropped the task.
	ErrRejected = errors.New("pool: all workers busy, arrival dropped")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("pool: closed")
)

// ArrivalRecorder is told about every submitted task. *metrics.Collector
// implements it.
type ArrivalRecorder interface {
	RecordArrival(delay time.Duration)
	RecordDroppedArrival()
}

// Task is a unit of work run on a worker goroutine.
type Task func()

// Options configure a Pool.
type Options struct {
	MinWorkers int
	MaxWorkers int
	Policy     Policy
	Recorder   ArrivalRecorder
}

func (o *Options) normalize() {
	if o.MinWorkers < 0 {
		o.MinWorkers = 0
	}
	if o.MaxWorkers < o.MinWorkers {
		o.MaxWorkers = o.MinWorkers
	}
	if o.MaxWorkers < 1 {
		o.MaxWorkers = 1
	}
}

// Stats counts what a pool did with submitted tasks.
type Stats struct {
	Submitted int64
	Started   int64
	Delayed   int64 // started at least OnTime late or after waiting for a worker
	Rejected  int64
	Workers   int64 // goroutines alive, idle or busy
	Busy      int64
}

// Pool is a bounded worker pool. Submit may be called from many goroutines,
// but not concurrently with Close.
type Pool struct {
	opt    Options
	tasks  chan Task
	wg     sync.WaitGroup
	closed atomic.Bool

	workers   atomic.Int64
	busy      atomic.Int64
	submitted atomic.Int64
	started   atomic.Int64
	delayed   atomic.Int64
	rejected  atomic.Int64
}

// New starts a pool with opt.MinWorkers idle workers.
func New(opt Options) *Pool {
	opt.normalize()
	p := &Pool{opt: opt, tasks: make(chan Task)}
	var ready sync.WaitGroup
	ready.Add(opt.MinWorkers)
	for i := 0; i < opt.MinWorkers; i++ {
		p.workers.Add(1)
		p.spawn(nil, ready.Done)
	}
	ready.Wait()
	return p
}

func (p *Pool) spawn(first Task, started func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.workers.Add(-1)
		if started != nil {
			started()
		}
		if first != nil {
			p.run(first)
		}
		for task := range p.tasks {
			p.run(task)
		}
	}()
}

func (p *Pool) run(task Task) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	task()
}

// OnTime is the lateness below which an arrival counts as on schedule.
// Timer wake-ups always land a little after the instant they aimed for.
const OnTime = time.Millisecond

// Submit hands task to a worker. It returns ErrRejected when the Reject
// policy dropped the task, or ctx.Err() when ctx ended while the Delay
// policy was waiting; the task counts as dropped in both cases.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	return p.SubmitAt(ctx, time.Time{}, task)
}

// SubmitAt is Submit for a task that was due at the given instant. The
// recorded scheduling delay is how late the task started against due, or
// the time spent waiting for a worker when due is zero or later.
func (p *Pool) SubmitAt(ctx context.Context, due time.Time, task Task) error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.submitted.Add(1)

	select {
	case p.tasks <- task:
		p.accepted(lateness(due))
		return nil
	default:
	}

	if p.grow() {
		p.accepted(lateness(due))
		p.spawn(task, nil)
		return nil
	}

	if p.opt.Policy == Reject {
		p.drop()
		return ErrRejected
	}

	waitStart := time.Now()
	select {
	case p.tasks <- task:
		wait := time.Since(waitStart)
		if wait <= 0 {
			wait = time.Nanosecond
		}
		p.accepted(max(lateness(due), wait))
		return nil
	case <-ctx.Done():
		p.drop()
		return ctx.Err()
	}
}

// lateness is how far past due the current instant is, or zero when that
// stays under OnTime. A zero due is never late.
func lateness(due time.Time) time.Duration {
	if due.IsZero() {
		return 0
	}
	if late := time.Since(due); late >= OnTime {
		return late
	}
	return 0
}

// grow reserves a worker slot if the pool is below MaxWorkers.
func (p *Pool) grow() bool {
	for {
		n := p.workers.Load()
		if n >= int64(p.opt.MaxWorkers) {
			return false
		}
		if p.workers.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (p *Pool) accepted(delay time.Duration) {
	p.started.Add(1)
	if delay > 0 {
		p.delayed.Add(1)
	}
	if p.opt.Recorder != nil {
		p.opt.Recorder.RecordArrival(delay)
	}
}

func (p *Pool) drop() {
	p.rejected.Add(1)
	if p.opt.Recorder != nil {
		p.opt.Recorder.RecordDroppedArrival()
	}
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Started:   p.started.Load(),
		Delayed:   p.delayed.Load(),
		Rejected:  p.rejected.Load(),
		Workers:   p.workers.Load(),
		Busy:      p.busy.Load(),
	}
}

// Close stops accepting tasks and waits for running ones to return.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.tasks)
	p.wg.Wait()
}
