package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Write renders r in the named format: "text", "json" or "yaml".
func Write(w io.Writer, format string, r Report) error {
	switch strings.ToLower(format) {
	case "", "text":
		return WriteText(w, r)
	case "json":
		return WriteJSON(w, r)
	case "yaml":
		return WriteYAML(w, r)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// WriteYAML writes r as YAML with two-space indentation.
func WriteYAML(w io.Writer, r Report) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(r); err != nil {
		return err
	}
	return encoder.Close()
}

// WriteText renders the human-readable summary. Section order is fixed.
func WriteText(w io.Writer, r Report) error {
	tw := &textWriter{w: w}

	tw.title("Load Test Summary")
	tw.kv("Run ID", r.RunID)
	tw.kv("Schedule", r.Config.ScheduleID)
	tw.kv("Scenario", r.Config.Scenario)
	tw.kv("Strategy", r.Config.Strategy)
	tw.kv("Target Rate", r.Config.TargetRate.String()+" arrivals/s")
	tw.kv("Duration", r.Config.DurationSec.String()+"s")
	tw.kv("Poll Interval", r.Config.PollIntervalMs.String()+"ms")
	tw.kv("Heartbeat Interval", r.Config.HeartbeatIntervalMs.String()+"ms")
	tw.kv("Max Iterations", fmt.Sprint(r.Config.MaxIterations))

	tw.section("Request Statistics")
	if req, ok := present(tw, r.Requests); ok {
		tw.kv("Total Requests", fmt.Sprint(req.Total))
		tw.kv("Enter", fmt.Sprint(req.Enter))
		tw.kv("Status", fmt.Sprint(req.Status))
		tw.kv("Heartbeat", fmt.Sprint(req.Heartbeat))
		tw.kv("READY", fmt.Sprint(req.Ready))
		tw.kv("Failed Rate", req.FailedPct.String()+"%")
		for _, c := range req.Categories {
			tw.item(c.Category, fmt.Sprint(c.Count))
		}
	}

	tw.section("Failure Analysis")
	if f, ok := present(tw, r.Failures); ok {
		tw.kv("Enter Failures", fmt.Sprint(f.Enter))
		tw.kv("Status Failures", fmt.Sprint(f.Status))
		tw.kv("Heartbeat Failures", fmt.Sprint(f.Heartbeat))
		tw.kv("Timeouts", fmt.Sprint(f.Timeout))
		tw.kv("Not In Queue (404)", fmt.Sprint(f.NotInQueue))
		tw.kv("Server Errors (5xx)", fmt.Sprint(f.ServerError))
		tw.kv("Malformed Responses", fmt.Sprint(f.Protocol))
		tw.kv("Other Client Errors", fmt.Sprint(f.Other))
		tw.kv("Iteration Exhaustion", fmt.Sprint(f.ResourceExhaustion))
		tw.kv("Aborted", fmt.Sprint(f.Aborted))
		tw.kv("404 Share of Status", f.Status404Pct.String()+"%")
	}

	tw.section("Latency")
	for _, entry := range r.Latency {
		s, ok := entry.Stats.Value, entry.Stats.OK
		if !ok {
			tw.item(entry.Name, NoData)
			continue
		}
		label := ""
		if !s.Exact {
			label = " (approx)"
		}
		tw.item(entry.Name, fmt.Sprintf("count=%d min=%sms avg=%sms max=%sms p50=%sms p90=%sms p95=%sms p99=%sms%s",
			s.Count, s.Min, s.Avg, s.Max, s.P50, s.P90, s.P95, s.P99, label))
	}

	tw.section("Clients")
	if c, ok := present(tw, r.Clients); ok {
		tw.kv("Started", fmt.Sprint(c.Started))
		tw.kv("Ready", fmt.Sprint(c.Ready))
		tw.kv("Failed", fmt.Sprint(c.Failed))
		tw.kv("Timed Out", fmt.Sprint(c.TimedOut))
		tw.kv("Aborted", fmt.Sprint(c.Aborted))
		if c.Active > 0 {
			tw.kv("Still Active", fmt.Sprint(c.Active))
		}
	}

	tw.section("Scheduling")
	if s, ok := present(tw, r.Scheduling); ok {
		tw.kv("Scheduled", fmt.Sprint(s.Scheduled))
		tw.kv("Delayed", fmt.Sprint(s.Delayed))
		tw.kv("Dropped", fmt.Sprint(s.Dropped))
		tw.kv("Overflow Policy", s.Overflow)
		tw.kv("Workers", fmt.Sprintf("%d-%d", s.MinWorkers, s.MaxWorkers))
	}

	tw.section("Status Codes")
	if codes, ok := present(tw, r.StatusCodes); ok {
		for _, c := range codes {
			tw.item(c.Endpoint+" "+c.Code, fmt.Sprint(c.Count))
		}
	}

	tw.section("Throughput")
	if t, ok := present(tw, r.Throughput); ok {
		tw.kv("Configured Duration", t.DurationSec.String()+"s")
		tw.kv("Total RPS", t.TotalRPS.String())
		tw.kv("Enter RPS", t.EnterRPS.String())
		tw.kv("Status RPS", t.StatusRPS.String())
		tw.kv("Heartbeat RPS", t.HeartbeatRPS.String())
		tw.kv("Target Rate", t.TargetRate.String())
		tw.kv("Achievement", t.AchievementPct.String()+"%")
		tw.kv("Observed Duration", t.ObservedSec.String()+"s (reference only)")
	}
	return tw.err
}

// present writes the NoData marker for an absent section.
func present[T any](tw *textWriter, s Section[T]) (T, bool) {
	if !s.OK {
		tw.line("  " + NoData)
	}
	return s.Value, s.OK
}

// textWriter remembers the first write error so rendering code stays linear.
type textWriter struct {
	w   io.Writer
	err error
}

func (t *textWriter) line(s string) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintln(t.w, s)
}

func (t *textWriter) title(s string) {
	t.line(s)
	t.line(strings.Repeat("=", len(s)))
}

func (t *textWriter) section(s string) {
	t.line("")
	t.line(s + ":")
}

func (t *textWriter) kv(k, v string) {
	t.line(fmt.Sprintf("  %-22s %s", k+":", v))
}

func (t *textWriter) item(k, v string) {
	t.line(fmt.Sprintf("    %-20s %s", k, v))
}
