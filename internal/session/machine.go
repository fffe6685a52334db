package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/torosent/queuefire/internal/credentials"
	"github.com/torosent/queuefire/internal/metrics"
	"github.com/torosent/queuefire/internal/queueclient"
)

// Transport sends the three queue requests. *queueclient.Client implements it.
type Transport interface {
	Enter(ctx context.Context, cred credentials.Credential) (queueclient.Response, error)
	Status(ctx context.Context, cred credentials.Credential) (queueclient.Response, error)
	Heartbeat(ctx context.Context, cred credentials.Credential) (queueclient.Response, error)
}

// Recorder receives outcome events. *metrics.Collector implements it.
type Recorder interface {
	Record(o metrics.Outcome)
	ClientStarted()
	ClientFinished(o metrics.ClientOutcome)
}

// Config holds the protocol timing for every client of a run.
type Config struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	MaxIterations     int
}

// Machine runs clients against a Transport. It holds no per-client state and
// is safe for concurrent use.
type Machine struct {
	transport Transport
	recorder  Recorder
	cfg       Config
	clock     Clock
	logger    *slog.Logger
}

// Option customises a Machine.
type Option func(*Machine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(m *Machine) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger used for per-client debug records.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMachine returns a Machine that drives clients through t and reports
// outcomes to r. MaxIterations below 1 is raised to 1.
func NewMachine(t Transport, r Recorder, cfg Config, opts ...Option) *Machine {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1
	}
	m := &Machine{
		transport: t,
		recorder:  r,
		cfg:       cfg,
		clock:     SystemClock,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// session is the mutable state of one running client.
type session struct {
	client        Client
	state         State
	enteredAt     time.Time
	lastHeartbeat time.Time
	iterations    int
	heartbeats    int
	kind          metrics.Kind
}

func (s *session) advance(next State) {
	if next > s.state && !s.state.Terminal() {
		s.state = next
	}
}

func (s *session) result(now time.Time) Result {
	r := Result{State: s.state, Iterations: s.iterations, Heartbeats: s.heartbeats, Kind: s.kind}
	if s.state == StateReady {
		r.ReadyAfter = now.Sub(s.enteredAt)
	}
	return r
}

// Run drives c through enter, poll and heartbeat until a terminal state.
// Cancelling ctx retires the client as ABORTED; requests cut short by the
// cancellation are not recorded.
func (m *Machine) Run(ctx context.Context, c Client) Result {
	m.recorder.ClientStarted()
	res := m.flow(ctx, c)
	if outcome, ok := res.State.Outcome(); ok {
		m.recorder.ClientFinished(outcome)
	}
	m.logger.Debug("client finished",
		"client", c.Index,
		"user_id", c.Credential.UserID,
		"state", res.State.String(),
		"iterations", res.Iterations,
		"heartbeats", res.Heartbeats,
	)
	return res
}

func (m *Machine) flow(ctx context.Context, c Client) Result {
	s := &session{client: c, state: StateStart}

	if ctx.Err() != nil {
		s.advance(StateAborted)
		return s.result(m.clock.Now())
	}

	s.advance(StateEntering)
	s.enteredAt = m.clock.Now()
	resp, err := m.transport.Enter(ctx, c.Credential)
	if m.observe(ctx, resp, err) {
		s.advance(StateAborted)
		return s.result(m.clock.Now())
	}
	if err != nil {
		s.kind = kindOf(err)
		s.advance(StateFailed)
		return s.result(m.clock.Now())
	}

	s.advance(StateWaiting)
	s.lastHeartbeat = m.clock.Now()

	for {
		if ctx.Err() != nil {
			s.advance(StateAborted)
			break
		}

		now := m.clock.Now()
		if now.Sub(s.lastHeartbeat) >= m.cfg.HeartbeatInterval {
			s.heartbeats++
			hbResp, hbErr := m.transport.Heartbeat(ctx, c.Credential)
			if m.observe(ctx, hbResp, hbErr) {
				s.advance(StateAborted)
				break
			}
			if hbErr == nil {
				s.lastHeartbeat = now
			}
		}

		statusResp, statusErr := m.transport.Status(ctx, c.Credential)
		if m.observe(ctx, statusResp, statusErr) {
			s.advance(StateAborted)
			break
		}
		s.iterations++

		if statusErr == nil && statusResp.Ready() {
			readyAt := m.clock.Now()
			m.recorder.Record(metrics.Outcome{
				Category: metrics.CategoryReady,
				Duration: readyAt.Sub(s.enteredAt),
				At:       readyAt,
			})
			s.advance(StateReady)
			return s.result(readyAt)
		}

		if s.iterations >= m.cfg.MaxIterations {
			s.kind = metrics.KindResourceExhaustion
			s.advance(StateTimedOut)
			break
		}

		if err := m.clock.Sleep(ctx, m.cfg.PollInterval); err != nil {
			s.advance(StateAborted)
			break
		}
	}
	return s.result(m.clock.Now())
}

// RunEnter sends a single enter request. A success leaves the result in
// WAITING; these single-request runs do not count as client lifecycles.
func (m *Machine) RunEnter(ctx context.Context, c Client) Result {
	s := &session{client: c, state: StateEntering}
	resp, err := m.transport.Enter(ctx, c.Credential)
	switch {
	case m.observe(ctx, resp, err):
		s.advance(StateAborted)
	case err != nil:
		s.kind = kindOf(err)
		s.advance(StateFailed)
	default:
		s.advance(StateWaiting)
	}
	return s.result(m.clock.Now())
}

// RunStatus sends a single status poll. READY is recorded as an admission
// whose ready time is the poll latency.
func (m *Machine) RunStatus(ctx context.Context, c Client) Result {
	s := &session{client: c, state: StateWaiting}
	resp, err := m.transport.Status(ctx, c.Credential)
	if m.observe(ctx, resp, err) {
		s.advance(StateAborted)
		return s.result(m.clock.Now())
	}
	s.iterations = 1
	if err != nil {
		s.kind = kindOf(err)
		return s.result(m.clock.Now())
	}
	if resp.Ready() {
		m.recorder.Record(metrics.Outcome{
			Category: metrics.CategoryReady,
			Duration: resp.Duration,
			At:       m.clock.Now(),
		})
		s.advance(StateReady)
		s.enteredAt = m.clock.Now().Add(-resp.Duration)
	}
	return s.result(m.clock.Now())
}

// observe records the outcome of one attempt. It returns true when the
// attempt was cut short by ctx, in which case nothing is recorded.
func (m *Machine) observe(ctx context.Context, resp queueclient.Response, err error) (aborted bool) {
	if err != nil && (queueclient.IsAborted(err) || ctx.Err() != nil) {
		return true
	}
	kind := kindOf(err)
	m.recorder.Record(metrics.Outcome{
		Category:   category(resp, kind),
		Kind:       kind,
		StatusCode: resp.StatusCode,
		Duration:   resp.Duration,
		At:         m.clock.Now(),
	})
	return false
}

// category places an attempt in its outcome category. A 200 status poll
// with a malformed payload stays in status-200 and carries the protocol error kind.
func category(resp queueclient.Response, kind metrics.Kind) metrics.Category {
	switch resp.Endpoint {
	case metrics.EndpointEnter:
		if kind == metrics.KindNone {
			return metrics.CategoryEnterSuccess
		}
		return metrics.CategoryEnterFailure
	case metrics.EndpointHeartbeat:
		if kind == metrics.KindNone {
			return metrics.CategoryHeartbeatSuccess
		}
		return metrics.CategoryHeartbeatFailure
	default:
		if kind == metrics.KindTransportTimeout {
			return metrics.CategoryStatusTimeout
		}
		return metrics.StatusCategory(resp.StatusCode)
	}
}

// kindOf classifies err, treating errors from outside the queue client as
// client-side failures.
func kindOf(err error) metrics.Kind {
	if err == nil {
		return metrics.KindNone
	}
	if kind := queueclient.KindOf(err); kind != metrics.KindNone {
		return kind
	}
	return metrics.KindClientError
}
