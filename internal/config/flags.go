package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "queuefire",
		Short:         "Load test a waiting-room admission queue",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	def := Default()

	// Target flags
	flags.String("base-url", "", "Base URL of the queue service (e.g. https://queue.example.com)")
	flags.String("schedule-id", "", "Schedule identifier used in /api/v1/queue/{scheduleId}/...")
	flags.String("token-file", "", "Path to the token JSON file ({\"tokens\":[{\"token\":...,\"userId\":...}]})")

	// Load control flags
	flags.Float64P("rate", "r", def.TargetRate, "Target arrivals per second")
	flags.DurationP("duration", "d", def.Duration, "How long arrivals are scheduled (e.g. 30s, 5m)")
	flags.Int("vus", def.VUs, "Virtual users; sizes the worker pool and drives the closed-loop strategy")
	flags.Int("min-workers", 0, "Pre-provisioned workers (0 derives max(vus, rate))")
	flags.Int("max-workers", 0, "Worker ceiling (0 derives max(2*vus, 2*rate))")
	flags.String("overflow", string(def.Overflow), "What to do when every worker is busy: 'reject' or 'delay'")
	flags.String("scenario", string(def.Scenario), "Client scenario: 'flow', 'enter' or 'status'")
	flags.String("strategy", "", "Pacing strategy: 'open' or 'closed' (default follows the scenario)")
	flags.Duration("graceful-stop", def.GracefulStop, "Time clients may keep running after duration before they are aborted")
	flags.Duration("timeout", def.Timeout, "Per-request timeout")

	// Protocol flags
	flags.Duration("poll-interval", def.PollInterval, "Pause between status polls")
	flags.Duration("heartbeat-interval", def.HeartbeatInterval, "Minimum time between heartbeats")
	flags.Int("max-iterations", def.MaxIterations, "Status polls per client before it gives up")

	// Output flags
	flags.StringP("output", "o", string(def.Output), "Report format: 'text', 'json' or 'yaml'")
	flags.Bool("json-output", false, "Shorthand for --output json")
	flags.String("log-level", def.LogLevel, "Log level: debug, info, warn or error")
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.Bool("progress", false, "Print a progress line to stderr during the run")
	flags.String("metrics-addr", "", "Serve live Prometheus metrics on this address (e.g. :9090)")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g. 'ready_time:p95 < 5000')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (e.g. localhost:4317)")
	flags.String("tracing-protocol", def.Tracing.Protocol, "OTLP protocol: 'grpc' or 'http'")
	flags.String("tracing-service-name", "", "Service name reported on spans (default queuefire)")
	flags.Float64("tracing-sample-rate", def.Tracing.SampleRate, "Trace sampling ratio between 0.0 and 1.0")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Send W3C trace headers even without an exporter")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file and environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err != nil || !fs.Changed(name) {
			return
		}
		var v string
		if v, err = fs.GetString(name); err == nil {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(name string, dst *int) {
		if err != nil || !fs.Changed(name) {
			return
		}
		var v int
		if v, err = fs.GetInt(name); err == nil {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if err != nil || !fs.Changed(name) {
			return
		}
		var v bool
		if v, err = fs.GetBool(name); err == nil {
			*dst = v
		}
	}
	float := func(name string, dst *float64) {
		if err != nil || !fs.Changed(name) {
			return
		}
		var v float64
		if v, err = fs.GetFloat64(name); err == nil {
			*dst = v
		}
	}

	str("base-url", &cfg.BaseURL)
	str("schedule-id", &cfg.ScheduleID)
	str("token-file", &cfg.TokenFile)
	float("rate", &cfg.TargetRate)
	integer("vus", &cfg.VUs)
	integer("min-workers", &cfg.MinWorkers)
	integer("max-workers", &cfg.MaxWorkers)
	integer("max-iterations", &cfg.MaxIterations)
	str("log-level", &cfg.LogLevel)
	boolean("log-errors", &cfg.LogErrors)
	boolean("progress", &cfg.Progress)
	str("metrics-addr", &cfg.MetricsAddr)
	str("tracing-endpoint", &cfg.Tracing.Endpoint)
	str("tracing-protocol", &cfg.Tracing.Protocol)
	str("tracing-service-name", &cfg.Tracing.ServiceName)
	float("tracing-sample-rate", &cfg.Tracing.SampleRate)
	boolean("tracing-insecure", &cfg.Tracing.Insecure)
	if err != nil {
		return err
	}

	if fs.Changed("overflow") {
		val, err := fs.GetString("overflow")
		if err != nil {
			return err
		}
		cfg.Overflow = OverflowPolicy(val)
	}
	if fs.Changed("scenario") {
		val, err := fs.GetString("scenario")
		if err != nil {
			return err
		}
		cfg.Scenario = Scenario(val)
	}
	if fs.Changed("strategy") {
		val, err := fs.GetString("strategy")
		if err != nil {
			return err
		}
		cfg.Strategy = Strategy(val)
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(val)
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		if val {
			cfg.Output = OutputJSON
		}
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}

	for _, name := range []string{"duration", "graceful-stop", "timeout", "poll-interval", "heartbeat-interval"} {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		switch name {
		case "duration":
			cfg.Duration = val
		case "graceful-stop":
			cfg.GracefulStop = val
		case "timeout":
			cfg.Timeout = val
		case "poll-interval":
			cfg.PollInterval = val
		case "heartbeat-interval":
			cfg.HeartbeatInterval = val
		}
	}

	if fs.Changed("threshold") {
		vals, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = append([]string(nil), vals...)
	}
	return nil
}
