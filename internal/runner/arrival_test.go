package runner

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestArrivalCount(t *testing.T) {
	tests := []struct {
		rate     float64
		duration time.Duration
		want     int
	}{
		{10, 5 * time.Second, 50},
		{2.5, 3 * time.Second, 7},
		{2.3, 10 * time.Second, 23},
		{100, 30 * time.Second, 3000},
		{0.5, 1500 * time.Millisecond, 0},
		{0, time.Second, 0},
		{-5, time.Second, 0},
		{10, 0, 0},
	}
	for _, tt := range tests {
		if got := ArrivalCount(tt.rate, tt.duration); got != tt.want {
			t.Errorf("ArrivalCount(%v, %s) = %d, want %d", tt.rate, tt.duration, got, tt.want)
		}
	}
}

func TestArrivalOffset(t *testing.T) {
	tests := []struct {
		i    int
		rate float64
		want time.Duration
	}{
		{0, 10, 0},
		{1, 10, 100 * time.Millisecond},
		{7, 2.5, 2800 * time.Millisecond},
		{3, 3, time.Second},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := ArrivalOffset(tt.i, tt.rate); got != tt.want {
			t.Errorf("ArrivalOffset(%d, %v) = %s, want %s", tt.i, tt.rate, got, tt.want)
		}
	}
}

// virtualClock jumps forward on Sleep; lag is added to every wake-up to
// model a scheduler that oversleeps.
type virtualClock struct {
	mu  sync.Mutex
	now time.Time
	lag time.Duration
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d + c.lag)
	c.mu.Unlock()
	return nil
}

func TestOpenLoopSpacing(t *testing.T) {
	clock := &virtualClock{now: time.Unix(0, 0)}
	strategy := &OpenLoop{Rate: 20, Duration: time.Second, Clock: clock}

	var arrivals []Arrival
	var fired []time.Time
	err := strategy.Run(context.Background(), func(_ context.Context, a Arrival) error {
		arrivals = append(arrivals, a)
		fired = append(fired, clock.Now())
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(arrivals) != 20 {
		t.Fatalf("arrivals = %d, want 20", len(arrivals))
	}
	start := time.Unix(0, 0)
	for i, a := range arrivals {
		want := start.Add(time.Duration(i) * 50 * time.Millisecond)
		if a.Index != i || !a.Scheduled.Equal(want) {
			t.Fatalf("arrival %d = %+v, want scheduled %s", i, a, want)
		}
		if !fired[i].Equal(want) {
			t.Fatalf("arrival %d fired at %s, want %s", i, fired[i].Sub(start), want.Sub(start))
		}
	}
}

func TestOpenLoopLateWakeupDoesNotDrift(t *testing.T) {
	clock := &virtualClock{now: time.Unix(0, 0), lag: 30 * time.Millisecond}
	strategy := &OpenLoop{Rate: 10, Duration: time.Second, Clock: clock}

	var fired []time.Duration
	start := clock.Now()
	_ = strategy.Run(context.Background(), func(_ context.Context, a Arrival) error {
		fired = append(fired, clock.Now().Sub(start))
		return nil
	})
	if len(fired) != 10 {
		t.Fatalf("arrivals = %d, want 10", len(fired))
	}
	for i, at := range fired {
		target := time.Duration(i) * 100 * time.Millisecond
		if at < target || at > target+30*time.Millisecond {
			t.Fatalf("arrival %d at %s, want within 30ms after %s", i, at, target)
		}
	}
}

func TestOpenLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := &virtualClock{now: time.Unix(0, 0)}
	strategy := &OpenLoop{Rate: 100, Duration: time.Second, Clock: clock}

	n := 0
	err := strategy.Run(ctx, func(context.Context, Arrival) error {
		n++
		if n == 5 {
			cancel()
		}
		return nil
	})
	if err == nil || n != 5 {
		t.Fatalf("Run() = %v after %d arrivals", err, n)
	}
}
