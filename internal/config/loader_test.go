package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second}, // int treated as seconds
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsMillis(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{1000, time.Second},
		{"250", 250 * time.Millisecond},
		{float64(1.5), 1500 * time.Microsecond},
		{"2s", 2 * time.Second},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asMillis(tt.input)
		if err != nil {
			t.Errorf("asMillis(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asMillis(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Default()
	settings := map[string]interface{}{
		"base_url":              "https://queue.example.com",
		"scheduleid":            "42",
		"target_tps":            25.5,
		"duration":              "2m",
		"status_poll_ms":        500,
		"heartbeat_interval_ms": "15000",
		"max_iterations":        200,
		"vus":                   "10",
		"overflow":              "delay",
		"thresholds":            "ready_time:p95 < 5000; enter_failures:count < 1",
		"tracing": map[string]interface{}{
			"endpoint":    "localhost:4317",
			"sample_rate": "0.5",
			"propagate":   false,
		},
	}

	if err := applyConfigSettings(&cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.BaseURL != "https://queue.example.com" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.ScheduleID != "42" {
		t.Errorf("ScheduleID = %q, want 42", cfg.ScheduleID)
	}
	if cfg.TargetRate != 25.5 {
		t.Errorf("TargetRate = %v, want 25.5", cfg.TargetRate)
	}
	if cfg.Duration != 2*time.Minute {
		t.Errorf("Duration = %v, want 2m", cfg.Duration)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", cfg.PollInterval)
	}
	if cfg.HeartbeatInterval != 15*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 15s", cfg.HeartbeatInterval)
	}
	if cfg.MaxIterations != 200 {
		t.Errorf("MaxIterations = %d, want 200", cfg.MaxIterations)
	}
	if cfg.VUs != 10 {
		t.Errorf("VUs = %d, want 10", cfg.VUs)
	}
	if cfg.Overflow != OverflowDelay {
		t.Errorf("Overflow = %q, want delay", cfg.Overflow)
	}
	if len(cfg.Thresholds) != 2 || cfg.Thresholds[1] != "enter_failures:count < 1" {
		t.Errorf("Thresholds = %q", cfg.Thresholds)
	}
	if cfg.Tracing.Endpoint != "localhost:4317" || cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.ShouldPropagate() {
		t.Errorf("ShouldPropagate() = true, want false when explicitly disabled")
	}
}

func TestApplyConfigSettingsRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]interface{}{
		"duration": {"duration": "soon"},
		"vus":      {"vus": "many"},
		"rate":     {"target_rate": []int{1}},
		"tracing":  {"tracing": "on"},
	}
	for name, settings := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			if err := applyConfigSettings(&cfg, settings); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Default()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--rate=12.5",
		"--vus=7",
		"--poll-interval=250ms",
		"--json-output",
		"--tracing-propagate",
		"--threshold=ready_time:p95 < 5000",
		"--threshold=dropped_arrivals:count == 0",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(&cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.TargetRate != 12.5 {
		t.Errorf("TargetRate = %v, want 12.5", cfg.TargetRate)
	}
	if cfg.VUs != 7 {
		t.Errorf("VUs = %d, want 7", cfg.VUs)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval)
	}
	if cfg.Output != OutputJSON {
		t.Errorf("Output = %q, want json", cfg.Output)
	}
	if !cfg.Tracing.ShouldPropagate() {
		t.Errorf("ShouldPropagate() = false, want true")
	}
	if len(cfg.Thresholds) != 2 {
		t.Errorf("Thresholds = %q", cfg.Thresholds)
	}
	if cfg.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("HeartbeatInterval changed without a flag: %v", cfg.HeartbeatInterval)
	}
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader()
	args := []string{
		"--base-url=http://localhost:8080/",
		"--schedule-id=7",
		"--rate=50",
		"--vus=10",
	}

	cfg, err := loader.Load(args)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if cfg.MinWorkers != 50 || cfg.MaxWorkers != 100 {
		t.Errorf("workers = %d..%d, want 50..100", cfg.MinWorkers, cfg.MaxWorkers)
	}
	if cfg.Strategy != StrategyOpen {
		t.Errorf("Strategy = %q, want open", cfg.Strategy)
	}
}
