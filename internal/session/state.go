// Package session drives one virtual client through the queue protocol.
//
// A client enters the queue, then alternates status polls with heartbeats
// until it is admitted, fails to enter, runs out of polls, or is retired by
// the run deadline. Every attempt is reported to a Recorder; nothing a
// single client observes ever stops the run.
package session

import (
	"time"

	"github.com/torosent/queuefire/internal/credentials"
	"github.com/torosent/queuefire/internal/metrics"
)

// State is a position in the client protocol. States only move forward.
type State uint8

const (
	StateStart State = iota
	StateEntering
	StateWaiting
	StateReady
	StateFailed
	StateTimedOut
	StateAborted
)

var stateNames = [...]string{
	StateStart:    "START",
	StateEntering: "ENTERING",
	StateWaiting:  "WAITING",
	StateReady:    "READY",
	StateFailed:   "FAILED",
	StateTimedOut: "TIMEOUT",
	StateAborted:  "ABORTED",
}

func (s State) String() string {
	if int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further requests may be sent in s.
func (s State) Terminal() bool {
	return s >= StateReady
}

// Outcome maps a terminal state to the collector's client outcome.
func (s State) Outcome() (metrics.ClientOutcome, bool) {
	switch s {
	case StateReady:
		return metrics.ClientReady, true
	case StateFailed:
		return metrics.ClientFailed, true
	case StateTimedOut:
		return metrics.ClientTimedOut, true
	case StateAborted:
		return metrics.ClientAborted, true
	default:
		return 0, false
	}
}

// Client is the identity of one virtual client. It is passed explicitly to
// every run, never read from shared state.
type Client struct {
	Index      int
	Credential credentials.Credential
}

// Result summarises one finished client.
type Result struct {
	State      State
	Iterations int
	Heartbeats int
	// ReadyAfter is the enter to ready elapsed time; zero unless State is StateReady.
	ReadyAfter time.Duration
	// Kind is the failure kind that ended the client, if any.
	Kind metrics.Kind
}
