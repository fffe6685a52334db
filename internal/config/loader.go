package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. QUEUEFIRE_BASE_URL or QUEUEFIRE_TRACING_ENDPOINT.
const EnvPrefix = "QUEUEFIRE"

// Loader handles loading configuration from files, environment and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// settingKeys are the keys bound to environment variables. Keys ending in
// _ms are millisecond aliases kept for scripts written against env-only setups.
var settingKeys = []string{
	"base_url", "schedule_id", "target_rate", "target_tps", "duration",
	"poll_interval", "status_poll_ms", "heartbeat_interval", "heartbeat_interval_ms",
	"max_iterations", "vus", "min_workers", "max_workers", "graceful_stop",
	"timeout", "overflow", "scenario", "strategy", "token_file", "output",
	"thresholds", "log_level", "log_errors", "progress", "metrics_addr",
	"tracing.endpoint", "tracing.protocol", "tracing.service_name",
	"tracing.sample_rate", "tracing.insecure", "tracing.propagate",
}

// Load parses command-line arguments, environment variables and configuration
// files to produce a Config. Precedence is flag, then env, then file, then default.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	cfgViper.SetEnvPrefix(EnvPrefix)
	cfgViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for _, key := range settingKeys {
		if err := cfgViper.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	// If no arguments, config file or environment are provided, show usage.
	if len(args) == 0 && configPath == "" && !cfgViper.IsSet("base_url") {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Normalize()
	return &cfg, nil
}

// applyConfigSettings applies settings from a config file or the environment to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	strField := func(dst *string, keys ...string) error {
		raw, ok := lookupSetting(settings, keys...)
		if !ok {
			return nil
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", keys[0], err)
		}
		*dst = strings.TrimSpace(val)
		return nil
	}
	intField := func(dst *int, keys ...string) error {
		raw, ok := lookupSetting(settings, keys...)
		if !ok {
			return nil
		}
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", keys[0], err)
		}
		*dst = val
		return nil
	}
	durField := func(dst *time.Duration, keys ...string) error {
		raw, ok := lookupSetting(settings, keys...)
		if !ok {
			return nil
		}
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", keys[0], err)
		}
		*dst = val
		return nil
	}
	msField := func(dst *time.Duration, key string) error {
		raw, ok := lookupSetting(settings, key)
		if !ok {
			return nil
		}
		val, err := asMillis(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = val
		return nil
	}
	floatField := func(dst *float64, keys ...string) error {
		raw, ok := lookupSetting(settings, keys...)
		if !ok {
			return nil
		}
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", keys[0], err)
		}
		*dst = val
		return nil
	}
	boolField := func(dst *bool, keys ...string) error {
		raw, ok := lookupSetting(settings, keys...)
		if !ok {
			return nil
		}
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", keys[0], err)
		}
		*dst = val
		return nil
	}

	steps := []error{
		strField(&cfg.BaseURL, "base_url", "baseUrl", "base-url"),
		strField(&cfg.ScheduleID, "schedule_id", "scheduleId", "schedule-id"),
		strField(&cfg.TokenFile, "token_file", "tokenFile", "token-file"),
		floatField(&cfg.TargetRate, "target_rate", "targetRate", "target-rate", "target_tps"),
		durField(&cfg.Duration, "duration"),
		msField(&cfg.PollInterval, "status_poll_ms"),
		durField(&cfg.PollInterval, "poll_interval", "pollInterval", "poll-interval"),
		msField(&cfg.HeartbeatInterval, "heartbeat_interval_ms"),
		durField(&cfg.HeartbeatInterval, "heartbeat_interval", "heartbeatInterval", "heartbeat-interval"),
		intField(&cfg.MaxIterations, "max_iterations", "maxIterations", "max-iterations"),
		intField(&cfg.VUs, "vus"),
		intField(&cfg.MinWorkers, "min_workers", "minWorkers", "min-workers"),
		intField(&cfg.MaxWorkers, "max_workers", "maxWorkers", "max-workers"),
		durField(&cfg.GracefulStop, "graceful_stop", "gracefulStop", "graceful-stop"),
		durField(&cfg.Timeout, "timeout"),
		strField((*string)(&cfg.Overflow), "overflow"),
		strField((*string)(&cfg.Scenario), "scenario"),
		strField((*string)(&cfg.Strategy), "strategy"),
		strField((*string)(&cfg.Output), "output"),
		strField(&cfg.LogLevel, "log_level", "logLevel", "log-level"),
		boolField(&cfg.LogErrors, "log_errors", "logErrors", "log-errors"),
		boolField(&cfg.Progress, "progress"),
		strField(&cfg.MetricsAddr, "metrics_addr", "metricsAddr", "metrics-addr"),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		// A single env value may carry several thresholds separated by ';'.
		if s, isString := raw.(string); isString {
			vals = splitList(s, ";")
		}
		cfg.Thresholds = vals
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	return nil
}

func applyTracingSettings(tc *TracingConfig, raw interface{}) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		tc.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &val
	}
	return nil
}
