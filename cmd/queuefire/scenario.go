package main

import (
	"context"

	"github.com/torosent/queuefire/internal/config"
	"github.com/torosent/queuefire/internal/credentials"
	"github.com/torosent/queuefire/internal/output"
	"github.com/torosent/queuefire/internal/runner"
	"github.com/torosent/queuefire/internal/session"
)

// scenarioJob binds arrival i to client i and the scenario's protocol.
func scenarioJob(scenario config.Scenario, m *session.Machine, creds *credentials.Set) runner.Job {
	run := m.Run
	switch scenario {
	case config.ScenarioEnter:
		run = m.RunEnter
	case config.ScenarioStatus:
		run = m.RunStatus
	}
	return func(ctx context.Context, i int) {
		run(ctx, session.Client{Index: i, Credential: creds.For(i)})
	}
}

func newStrategy(cfg *config.Config) runner.Strategy {
	if cfg.Strategy == config.StrategyClosed {
		return &runner.ClosedLoop{
			VUs:      cfg.VUs,
			Rate:     cfg.TargetRate,
			Duration: cfg.Duration,
		}
	}
	return &runner.OpenLoop{
		Rate:     cfg.TargetRate,
		Duration: cfg.Duration,
	}
}

func reportConfig(cfg *config.Config, runID string) output.RunConfig {
	return output.RunConfig{
		RunID:             runID,
		ScheduleID:        cfg.ScheduleID,
		Scenario:          string(cfg.Scenario),
		Strategy:          string(cfg.Strategy),
		Overflow:          string(cfg.Overflow),
		TargetRate:        cfg.TargetRate,
		Duration:          cfg.Duration,
		PollInterval:      cfg.PollInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		MaxIterations:     cfg.MaxIterations,
		VUs:               cfg.VUs,
		MinWorkers:        cfg.MinWorkers,
		MaxWorkers:        cfg.MaxWorkers,
	}
}
