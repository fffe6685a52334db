package metrics

import "time"

// Endpoint identifies which queue API an attempt targeted.
type Endpoint uint8

const (
	EndpointEnter Endpoint = iota
	EndpointStatus
	EndpointHeartbeat
	numEndpoints
)

var endpointNames = [numEndpoints]string{"enter", "status", "heartbeat"}

func (e Endpoint) String() string {
	if e >= numEndpoints {
		return "unknown"
	}
	return endpointNames[e]
}

// Endpoints lists the queue endpoints in report order.
func Endpoints() []Endpoint {
	return []Endpoint{EndpointEnter, EndpointStatus, EndpointHeartbeat}
}

// Category classifies a single outcome event.
type Category uint8

const (
	CategoryEnterSuccess Category = iota
	CategoryEnterFailure
	CategoryStatus200
	CategoryStatus404
	// CategoryStatus500 counts every 5xx status poll.
	CategoryStatus500
	CategoryStatusTimeout
	// CategoryStatusOther counts status polls answered with any other code.
	CategoryStatusOther
	CategoryHeartbeatSuccess
	CategoryHeartbeatFailure
	// CategoryReady is emitted once per admitted client; its duration is the
	// enter to ready elapsed time, not a request latency.
	CategoryReady
	numCategories
)

var categoryNames = [numCategories]string{
	CategoryEnterSuccess:     "enter-success",
	CategoryEnterFailure:     "enter-failure",
	CategoryStatus200:        "status-200",
	CategoryStatus404:        "status-404",
	CategoryStatus500:        "status-500",
	CategoryStatusTimeout:    "status-timeout",
	CategoryStatusOther:      "status-other",
	CategoryHeartbeatSuccess: "heartbeat-success",
	CategoryHeartbeatFailure: "heartbeat-failure",
	CategoryReady:            "ready",
}

var categoryEndpoints = [numCategories]Endpoint{
	CategoryEnterSuccess:     EndpointEnter,
	CategoryEnterFailure:     EndpointEnter,
	CategoryStatus200:        EndpointStatus,
	CategoryStatus404:        EndpointStatus,
	CategoryStatus500:        EndpointStatus,
	CategoryStatusTimeout:    EndpointStatus,
	CategoryStatusOther:      EndpointStatus,
	CategoryHeartbeatSuccess: EndpointHeartbeat,
	CategoryHeartbeatFailure: EndpointHeartbeat,
	CategoryReady:            numEndpoints,
}

func (c Category) String() string {
	if c >= numCategories {
		return "unknown"
	}
	return categoryNames[c]
}

// Endpoint reports the endpoint a request category belongs to. It returns
// false for CategoryReady, which is not a request.
func (c Category) Endpoint() (Endpoint, bool) {
	if c >= numCategories {
		return 0, false
	}
	ep := categoryEndpoints[c]
	return ep, ep < numEndpoints
}

// Categories lists every category in report order.
func Categories() []Category {
	out := make([]Category, 0, numCategories)
	for c := Category(0); c < numCategories; c++ {
		out = append(out, c)
	}
	return out
}

// StatusCategory maps a status poll response code to its category.
func StatusCategory(code int) Category {
	switch {
	case code <= 0:
		return CategoryStatusTimeout
	case code == 200:
		return CategoryStatus200
	case code == 404:
		return CategoryStatus404
	case code >= 500:
		return CategoryStatus500
	default:
		return CategoryStatusOther
	}
}

// Outcome is emitted by every network attempt and by every admission.
type Outcome struct {
	Category   Category
	Kind       Kind          // KindNone on success
	StatusCode int           // 0 when no response was received
	Duration   time.Duration // request latency, or enter->ready for CategoryReady
	At         time.Time
}

// ClientOutcome is the terminal state a virtual client retired in.
type ClientOutcome uint8

const (
	ClientReady ClientOutcome = iota
	ClientFailed
	ClientTimedOut
	ClientAborted
	numClientOutcomes
)

var clientOutcomeNames = [numClientOutcomes]string{"ready", "failed", "timeout", "aborted"}

func (o ClientOutcome) String() string {
	if o >= numClientOutcomes {
		return "unknown"
	}
	return clientOutcomeNames[o]
}

// ClientOutcomes lists the terminal outcomes in report order.
func ClientOutcomes() []ClientOutcome {
	return []ClientOutcome{ClientReady, ClientFailed, ClientTimedOut, ClientAborted}
}
