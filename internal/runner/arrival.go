package runner

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// countEpsilon absorbs float error in rate*duration, e.g. 2.3*10 = 22.999...
const countEpsilon = 1e-9

// ArrivalCount is the number of arrivals a fixed-rate run schedules:
// floor(rate * duration seconds), or 0 when either is not positive.
func ArrivalCount(ratePerSec float64, d time.Duration) int {
	if ratePerSec <= 0 || d <= 0 || math.IsNaN(ratePerSec) || math.IsInf(ratePerSec, 0) {
		return 0
	}
	return int(math.Floor(ratePerSec*d.Seconds() + countEpsilon))
}

// ArrivalOffset is the instant of arrival i relative to the run start: i / rate seconds.
func ArrivalOffset(i int, ratePerSec float64) time.Duration {
	if ratePerSec <= 0 || i <= 0 {
		return 0
	}
	return time.Duration(math.Round(float64(i) * float64(time.Second) / ratePerSec))
}

// Clock supplies time to the open-loop scheduler.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// newLimiter paces a closed-loop run. Rate <= 0 means unlimited.
func newLimiter(ratePerSec float64) *rate.Limiter {
	if ratePerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	// Burst of one keeps concurrent VUs from releasing arrivals in clumps.
	return rate.NewLimiter(rate.Limit(ratePerSec), 1)
}
