// Package exporter exposes live run metrics on a Prometheus /metrics endpoint.
package exporter

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/queuefire/internal/metrics"
)

const namespace = "queuefire"

// SnapshotSource is satisfied by *metrics.Collector.
type SnapshotSource interface {
	Snapshot() metrics.Snapshot
}

// Collector adapts collector snapshots to Prometheus. Every scrape takes one
// snapshot, so values within a scrape are consistent with each other.
type Collector struct {
	source SnapshotSource

	requests  *prometheus.Desc
	failures  *prometheus.Desc
	clients   *prometheus.Desc
	active    *prometheus.Desc
	scheduled *prometheus.Desc
	delayed   *prometheus.Desc
	dropped   *prometheus.Desc
	trends    *prometheus.Desc
}

// NewCollector exports source's snapshots. Each Collect takes one snapshot.
func NewCollector(source SnapshotSource) *Collector {
	return &Collector{
		source: source,
		requests: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "requests_total"),
			"Queue API requests by endpoint and outcome category.", []string{"endpoint", "category"}, nil),
		failures: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "failures_total"),
			"Failures by kind.", []string{"kind"}, nil),
		clients: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "clients_finished_total"),
			"Virtual clients by terminal outcome.", []string{"outcome"}, nil),
		active: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "clients_active"),
			"Virtual clients currently running.", nil, nil),
		scheduled: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "arrivals_scheduled_total"),
			"Arrivals produced by the scheduler, dropped ones included.", nil, nil),
		delayed: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "arrivals_delayed_total"),
			"Arrivals that started behind their scheduled instant.", nil, nil),
		dropped: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "arrivals_dropped_total"),
			"Arrivals rejected because every worker was busy.", nil, nil),
		trends: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "duration_seconds"),
			"Latency trends.", []string{"trend"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.failures
	ch <- c.clients
	ch <- c.active
	ch <- c.scheduled
	ch <- c.delayed
	ch <- c.dropped
	ch <- c.trends
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()

	for _, cat := range metrics.Categories() {
		ep, ok := cat.Endpoint()
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue,
			float64(snap.Count(cat)), ep.String(), cat.String())
	}
	for _, k := range metrics.Kinds() {
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(snap.Failures(k)), k.String())
	}
	for _, o := range metrics.ClientOutcomes() {
		ch <- prometheus.MustNewConstMetric(c.clients, prometheus.CounterValue, float64(snap.Clients(o)), o.String())
	}
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(snap.Active))
	ch <- prometheus.MustNewConstMetric(c.scheduled, prometheus.CounterValue, float64(snap.Scheduled))
	ch <- prometheus.MustNewConstMetric(c.delayed, prometheus.CounterValue, float64(snap.Delayed))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(snap.Dropped))

	for _, t := range metrics.Trends() {
		s := snap.Trend(t)
		quantiles := map[float64]float64{}
		if !s.Empty() {
			quantiles[0.5] = s.P50.Seconds()
			quantiles[0.9] = s.P90.Seconds()
			quantiles[0.95] = s.P95.Seconds()
			quantiles[0.99] = s.P99.Seconds()
		}
		ch <- prometheus.MustNewConstSummary(c.trends, uint64(s.Count), s.Sum.Seconds(), quantiles, t.String())
	}
}

// Handler returns a /metrics handler backed by a private registry.
func Handler(source SnapshotSource) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(source)); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// Server serves /metrics until its context ends.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// Listen binds addr and prepares the metrics server.
func Listen(addr string, source SnapshotSource, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h, err := Handler(source)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	return &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
	}, nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(s.ln) }()
	s.logger.Info("metrics endpoint listening", "addr", s.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
