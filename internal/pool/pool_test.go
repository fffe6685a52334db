package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/queuefire/internal/metrics"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", Reject, false},
		{"reject", Reject, false},
		{" Delay ", Delay, false},
		{"queue", Reject, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %s, %v", tt.in, got, err)
		}
	}
}

func TestNormalize(t *testing.T) {
	opt := Options{MinWorkers: -3, MaxWorkers: 0}
	opt.normalize()
	if opt.MinWorkers != 0 || opt.MaxWorkers != 1 {
		t.Fatalf("normalized = %+v", opt)
	}
	opt = Options{MinWorkers: 8, MaxWorkers: 2}
	opt.normalize()
	if opt.MaxWorkers != 8 {
		t.Fatalf("MaxWorkers = %d, want 8", opt.MaxWorkers)
	}
}

func TestPreProvisionedWorkers(t *testing.T) {
	p := New(Options{MinWorkers: 4, MaxWorkers: 8})
	defer p.Close()
	if got := p.Stats().Workers; got != 4 {
		t.Fatalf("workers = %d, want 4", got)
	}
}

// blockingTasks submits n tasks that hold their worker until release is closed.
func blockingTasks(t *testing.T, p *Pool, n int, release <-chan struct{}) {
	t.Helper()
	var running sync.WaitGroup
	running.Add(n)
	for i := 0; i < n; i++ {
		err := p.Submit(context.Background(), func() {
			running.Done()
			<-release
		})
		if err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
	}
	running.Wait()
}

func TestGrowsToMaxThenRejects(t *testing.T) {
	collector := metrics.NewCollector()
	p := New(Options{MaxWorkers: 3, Policy: Reject, Recorder: collector})

	release := make(chan struct{})
	blockingTasks(t, p, 3, release)

	if got := p.Stats().Workers; got != 3 {
		t.Fatalf("workers = %d, want 3", got)
	}
	err := p.Submit(context.Background(), func() { t.Error("rejected task ran") })
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("Submit() error = %v, want ErrRejected", err)
	}

	close(release)
	p.Close()

	stats := p.Stats()
	if stats.Submitted != 4 || stats.Started != 3 || stats.Rejected != 1 || stats.Delayed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	snap := collector.Snapshot()
	if snap.Scheduled != 4 || snap.Dropped != 1 || snap.Delayed != 0 {
		t.Fatalf("snapshot scheduled=%d dropped=%d delayed=%d", snap.Scheduled, snap.Dropped, snap.Delayed)
	}
	if stats.Workers != 0 {
		t.Fatalf("workers after Close = %d", stats.Workers)
	}
}

func TestDelayWaitsForFreeWorker(t *testing.T) {
	collector := metrics.NewCollector()
	p := New(Options{MaxWorkers: 1, Policy: Delay, Recorder: collector})

	release := make(chan struct{})
	blockingTasks(t, p, 1, release)

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(release)
	}()

	var ran atomic.Bool
	start := time.Now()
	if err := p.Submit(context.Background(), func() { ran.Store(true) }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if waited := time.Since(start); waited < 20*time.Millisecond {
		t.Fatalf("Submit returned after %s, expected to wait for the busy worker", waited)
	}
	p.Close()

	if !ran.Load() {
		t.Fatal("delayed task did not run")
	}
	snap := collector.Snapshot()
	if snap.Delayed != 1 || snap.Dropped != 0 {
		t.Fatalf("delayed = %d dropped = %d", snap.Delayed, snap.Dropped)
	}
	delay := snap.Trend(metrics.TrendSchedulingDelay)
	if delay.Count != 1 || delay.Max < 20*time.Millisecond {
		t.Fatalf("scheduling_delay = %+v", delay)
	}
}

func TestSubmitAtRecordsLateness(t *testing.T) {
	collector := metrics.NewCollector()
	p := New(Options{MinWorkers: 1, MaxWorkers: 1, Policy: Delay, Recorder: collector})

	// A free worker does not make an overdue task punctual.
	if err := p.SubmitAt(context.Background(), time.Now().Add(-50*time.Millisecond), func() {}); err != nil {
		t.Fatalf("SubmitAt(overdue) error = %v", err)
	}
	if err := p.SubmitAt(context.Background(), time.Now().Add(time.Second), func() {}); err != nil {
		t.Fatalf("SubmitAt(early) error = %v", err)
	}
	p.Close()

	stats := p.Stats()
	if stats.Started != 2 || stats.Delayed != 1 {
		t.Fatalf("stats = %+v, want 2 started and 1 delayed", stats)
	}
	snap := collector.Snapshot()
	delay := snap.Trend(metrics.TrendSchedulingDelay)
	if snap.Delayed != 1 || delay.Count != 1 || delay.Max < 50*time.Millisecond {
		t.Fatalf("delayed = %d, scheduling_delay = %+v", snap.Delayed, delay)
	}
}

func TestDelayHonoursContext(t *testing.T) {
	collector := metrics.NewCollector()
	p := New(Options{MaxWorkers: 1, Policy: Delay, Recorder: collector})

	release := make(chan struct{})
	blockingTasks(t, p, 1, release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func() { t.Error("cancelled task ran") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit() error = %v", err)
	}
	close(release)
	p.Close()

	if got := collector.Snapshot().Dropped; got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(Options{MinWorkers: 1, MaxWorkers: 1})
	p.Close()
	p.Close()
	if err := p.Submit(context.Background(), func() {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit() error = %v, want ErrClosed", err)
	}
}

func TestConcurrentSubmitters(t *testing.T) {
	p := New(Options{MinWorkers: 4, MaxWorkers: 16, Policy: Delay})
	var done atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = p.Submit(context.Background(), func() {
					time.Sleep(100 * time.Microsecond)
					done.Add(1)
				})
			}
		}()
	}
	wg.Wait()
	p.Close()

	if done.Load() != 800 {
		t.Fatalf("ran %d tasks, want 800", done.Load())
	}
	if w := p.Stats(); w.Started != 800 || w.Rejected != 0 {
		t.Fatalf("stats = %+v", w)
	}
}
