package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/queuefire/internal/config"
	"github.com/torosent/queuefire/internal/credentials"
	"github.com/torosent/queuefire/internal/exporter"
	"github.com/torosent/queuefire/internal/metrics"
	"github.com/torosent/queuefire/internal/output"
	"github.com/torosent/queuefire/internal/pool"
	"github.com/torosent/queuefire/internal/queueclient"
	"github.com/torosent/queuefire/internal/runner"
	"github.com/torosent/queuefire/internal/session"
	"github.com/torosent/queuefire/internal/threshold"
	"github.com/torosent/queuefire/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// errThresholdsFailed is returned when at least one threshold did not pass.
var errThresholdsFailed = errors.New("one or more thresholds failed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// run executes one load test. It returns an error only for configuration
// problems or failed thresholds; request failures are reported, not returned.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}
	overflow, err := pool.ParsePolicy(string(cfg.Overflow))
	if err != nil {
		return err
	}

	logger := newLogger(stderr, cfg.LogLevel)
	runID := ulid.Make().String()

	tp, err := tracing.Init(ctx, cfg.Tracing, tracing.Run{
		ID:         runID,
		ScheduleID: cfg.ScheduleID,
		Scenario:   string(cfg.Scenario),
		Strategy:   string(cfg.Strategy),
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	opts := queueclient.Options{
		BaseURL:    cfg.BaseURL,
		ScheduleID: cfg.ScheduleID,
		Timeout:    cfg.Timeout,
		Tracer:     tp.Tracer(),
		Propagate:  tp.ShouldPropagate(),
	}
	if cfg.LogErrors {
		opts.FailureLogger = logger
	}
	client, err := queueclient.New(opts)
	if err != nil {
		return err
	}

	creds := credentials.Load(cfg.TokenFile, logger)
	collector := metrics.NewCollector()
	machine := session.NewMachine(client, collector, session.Config{
		PollInterval:      cfg.PollInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		MaxIterations:     cfg.MaxIterations,
	}, session.WithLogger(logger))

	r := runner.New(runner.Options{
		Strategy:   newStrategy(cfg),
		Job:        scenarioJob(cfg.Scenario, machine, creds),
		MinWorkers: cfg.MinWorkers,
		MaxWorkers: cfg.MaxWorkers,
		Overflow:   overflow,
		Deadline:   cfg.RunDeadline(),
		Recorder:   collector,
	})

	if cfg.MetricsAddr != "" {
		srv, err := exporter.Listen(cfg.MetricsAddr, collector, logger)
		if err != nil {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
		metricsCtx, stopMetrics := context.WithCancel(context.Background())
		defer stopMetrics()
		go func() {
			if err := srv.Serve(metricsCtx); err != nil {
				logger.Warn("metrics endpoint stopped", "error", err)
			}
		}()
	}

	var progress *output.ProgressReporter
	if cfg.Progress && output.IsTerminal(stderr) {
		progress = output.NewProgressReporter(collector, progressInterval, stderr)
	}

	logger.Info("starting run",
		"run_id", runID,
		"schedule", cfg.ScheduleID,
		"scenario", cfg.Scenario,
		"strategy", cfg.Strategy,
		"target_rate", cfg.TargetRate,
		"duration", cfg.Duration,
		"tokens", creds.Len(),
	)

	collector.Start()
	if progress != nil {
		progress.Start()
	}
	result := r.Run(ctx)
	if progress != nil {
		progress.Stop()
	}
	logger.Info("run finished",
		"run_id", runID,
		"scheduled", result.Scheduled,
		"started", result.Started,
		"delayed", result.Delayed,
		"rejected", result.Rejected,
		"duration", result.Duration.Round(time.Millisecond),
	)
	if ctx.Err() != nil {
		logger.Warn("run interrupted, reporting partial results")
	}

	snap := collector.Snapshot()
	report := output.Generate(snap, reportConfig(cfg, runID))
	if err := output.Write(stdout, string(cfg.Output), report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	results := threshold.NewEvaluator(thresholds, cfg.Duration).Evaluate(snap)
	// Machine-readable reports keep stdout clean.
	resultsOut := stdout
	if cfg.Output != config.OutputText {
		resultsOut = stderr
	}
	threshold.PrintResults(resultsOut, results)
	if !threshold.AllPassed(results) {
		return errThresholdsFailed
	}
	return nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
