package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Scenario selects which client protocol each arrival runs.
type Scenario string

const (
	// ScenarioFlow runs the full enter, poll and heartbeat state machine.
	ScenarioFlow Scenario = "flow"
	// ScenarioEnter sends one enter request per arrival.
	ScenarioEnter Scenario = "enter"
	// ScenarioStatus sends one status poll per arrival.
	ScenarioStatus Scenario = "status"
)

// Strategy selects how arrivals are paced.
type Strategy string

const (
	StrategyOpen   Strategy = "open"
	StrategyClosed Strategy = "closed"
)

// OverflowPolicy decides what happens to an arrival when every worker is busy.
type OverflowPolicy string

const (
	OverflowReject OverflowPolicy = "reject"
	OverflowDelay  OverflowPolicy = "delay"
)

// OutputFormat selects the end-of-run report renderer.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

const (
	DefaultTargetRate        = 100.0
	DefaultDuration          = 30 * time.Second
	DefaultPollInterval      = time.Second
	DefaultHeartbeatInterval = 20 * time.Second
	DefaultMaxIterations     = 1000
	DefaultVUs               = 100
	DefaultGracefulStop      = 30 * time.Second
	DefaultTimeout           = 30 * time.Second
)

type Config struct {
	BaseURL           string         `mapstructure:"base_url"`
	ScheduleID        string         `mapstructure:"schedule_id"`
	TargetRate        float64        `mapstructure:"target_rate"`
	Duration          time.Duration  `mapstructure:"duration"`
	PollInterval      time.Duration  `mapstructure:"poll_interval"`
	HeartbeatInterval time.Duration  `mapstructure:"heartbeat_interval"`
	MaxIterations     int            `mapstructure:"max_iterations"`
	VUs               int            `mapstructure:"vus"`
	MinWorkers        int            `mapstructure:"min_workers"`
	MaxWorkers        int            `mapstructure:"max_workers"`
	GracefulStop      time.Duration  `mapstructure:"graceful_stop"`
	Timeout           time.Duration  `mapstructure:"timeout"`
	Overflow          OverflowPolicy `mapstructure:"overflow"`
	Scenario          Scenario       `mapstructure:"scenario"`
	Strategy          Strategy       `mapstructure:"strategy"`
	TokenFile         string         `mapstructure:"token_file"`
	Output            OutputFormat   `mapstructure:"output"`
	Thresholds        []string       `mapstructure:"thresholds"`
	LogLevel          string         `mapstructure:"log_level"`
	LogErrors         bool           `mapstructure:"log_errors"`
	Progress          bool           `mapstructure:"progress"`
	MetricsAddr       string         `mapstructure:"metrics_addr"`
	Tracing           TracingConfig  `mapstructure:"tracing"`
	ConfigFile        string         `mapstructure:"-"`
}

// TracingConfig configures OpenTelemetry export and header propagation.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	// Propagate overrides whether W3C trace headers are sent. Nil follows Enabled.
	Propagate *bool `mapstructure:"propagate"`
}

// Enabled reports whether any tracing feature is configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || (t.Propagate != nil && *t.Propagate)
}

// ShouldPropagate reports whether W3C trace headers should be injected.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Default returns a configuration populated with the documented defaults.
func Default() Config {
	return Config{
		TargetRate:        DefaultTargetRate,
		Duration:          DefaultDuration,
		PollInterval:      DefaultPollInterval,
		HeartbeatInterval: DefaultHeartbeatInterval,
		MaxIterations:     DefaultMaxIterations,
		VUs:               DefaultVUs,
		GracefulStop:      DefaultGracefulStop,
		Timeout:           DefaultTimeout,
		Overflow:          OverflowReject,
		Scenario:          ScenarioFlow,
		Output:            OutputText,
		LogLevel:          "info",
		Tracing:           TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Normalize fills the fields derived from other settings: the pacing
// strategy follows the scenario, and worker bounds follow vus and rate.
func (c *Config) Normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.ScheduleID = strings.TrimSpace(c.ScheduleID)
	c.TokenFile = strings.TrimSpace(c.TokenFile)
	c.Overflow = OverflowPolicy(strings.ToLower(string(c.Overflow)))
	c.Scenario = Scenario(strings.ToLower(string(c.Scenario)))
	c.Strategy = Strategy(strings.ToLower(string(c.Strategy)))
	c.Output = OutputFormat(strings.ToLower(string(c.Output)))

	if c.Strategy == "" {
		if c.Scenario == ScenarioFlow || c.Scenario == "" {
			c.Strategy = StrategyOpen
		} else {
			c.Strategy = StrategyClosed
		}
	}

	rate := int(math.Ceil(c.TargetRate))
	if c.MinWorkers == 0 {
		c.MinWorkers = max(c.VUs, rate)
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = max(2*c.VUs, 2*rate, c.MinWorkers)
	}
}

// RunDeadline is the overall time budget: duration plus the graceful stop window.
func (c Config) RunDeadline() time.Duration {
	return c.Duration + c.GracefulStop
}

// ValidationError collects every problem Validate found.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

// Issues returns a copy of the individual problems.
func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks the settings needed to start a run and returns a
// ValidationError listing each problem.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL,
			validation.Required.Error("base URL is required (use --help for usage information)"),
			validation.By(validateBaseURL),
		),
		validation.Field(&c.ScheduleID, validation.Required, is.PrintableASCII),
		validation.Field(&c.TargetRate, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&c.Duration, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.PollInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.HeartbeatInterval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxIterations, validation.Required, validation.Min(1)),
		validation.Field(&c.VUs, validation.Required, validation.Min(1)),
		validation.Field(&c.MinWorkers, validation.Min(0)),
		validation.Field(&c.MaxWorkers, validation.Required, validation.Min(max(c.MinWorkers, 1))),
		validation.Field(&c.GracefulStop, validation.Min(time.Duration(0))),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Overflow, validation.In(OverflowReject, OverflowDelay)),
		validation.Field(&c.Scenario, validation.In(ScenarioFlow, ScenarioEnter, ScenarioStatus)),
		validation.Field(&c.Strategy, validation.In(StrategyOpen, StrategyClosed)),
		validation.Field(&c.Output, validation.In(OutputText, OutputJSON, OutputYAML)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.MetricsAddr, validation.By(validateListenAddr)),
		validation.Field(&c.Tracing, validation.By(validateTracing)),
	)
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	issues := make([]string, 0, len(fieldErrs))
	for field, fieldErr := range fieldErrs {
		issues = append(issues, fmt.Sprintf("%s: %v", field, fieldErr))
	}
	sort.Strings(issues)
	return ValidationError{issues: issues}
}

func validateBaseURL(value interface{}) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}
	return nil
}

func validateListenAddr(value interface{}) error {
	addr, _ := value.(string)
	if addr == "" {
		return nil
	}
	if err := is.DialString.Validate(addr); err != nil {
		if strings.HasPrefix(addr, ":") {
			return is.Port.Validate(strings.TrimPrefix(addr, ":"))
		}
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}
	return nil
}

func validateTracing(value interface{}) error {
	tc, ok := value.(TracingConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a TracingConfig")
	}
	return validation.ValidateStruct(&tc,
		validation.Field(&tc.Protocol, validation.In("grpc", "http")),
		validation.Field(&tc.SampleRate, validation.Min(0.0), validation.Max(1.0)),
	)
}
