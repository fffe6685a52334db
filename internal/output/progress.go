package output

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/torosent/queuefire/internal/metrics"
)

// SnapshotSource is satisfied by *metrics.Collector.
type SnapshotSource interface {
	Snapshot() metrics.Snapshot
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   SnapshotSource
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source SnapshotSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		source:   source,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// IsTerminal reports whether w is an interactive terminal. Progress lines
// use carriage returns and are only useful there.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, progressLine(p.source.Snapshot()))
		case <-p.done:
			return
		}
	}
}

func progressLine(s metrics.Snapshot) string {
	return fmt.Sprintf("\rElapsed: %s | Active: %d | Enter: %d | Status: %d | Heartbeat: %d | READY: %d | Failures: %d | Dropped: %d",
		s.Elapsed.Truncate(time.Second),
		s.Active,
		s.Requests(metrics.EndpointEnter),
		s.Requests(metrics.EndpointStatus),
		s.Requests(metrics.EndpointHeartbeat),
		s.Count(metrics.CategoryReady),
		s.TotalFailures(),
		s.Dropped,
	)
}
