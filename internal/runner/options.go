package runner

import (
	"context"
	"time"

	"github.com/torosent/queuefire/internal/pool"
)

// Job runs one arrival. ctx ends at the run deadline.
type Job func(ctx context.Context, index int)

// Options configure the Runner.
type Options struct {
	Strategy Strategy // defaults to an empty OpenLoop
	Job      Job      // work per arrival (required)

	MinWorkers int         // pre-provisioned pool goroutines
	MaxWorkers int         // pool ceiling
	Overflow   pool.Policy // what to do when MaxWorkers are busy

	// Deadline bounds the whole run, drain included. Jobs still running
	// when it passes see their context cancelled. 0 means no deadline.
	Deadline time.Duration

	Recorder pool.ArrivalRecorder // optional
}

func (o *Options) normalize() {
	if o.Strategy == nil {
		o.Strategy = &OpenLoop{}
	}
	if o.Job == nil {
		o.Job = func(context.Context, int) {}
	}
	if o.MinWorkers < 0 {
		o.MinWorkers = 0
	}
	if o.MaxWorkers < o.MinWorkers {
		o.MaxWorkers = o.MinWorkers
	}
	if o.MaxWorkers < 1 {
		o.MaxWorkers = 1
	}
	if o.Deadline < 0 {
		o.Deadline = 0
	}
}
