package metrics

import "time"

// Snapshot is an immutable point-in-time copy of a Collector. The zero value
// is a valid empty snapshot.
type Snapshot struct {
	TakenAt   time.Time
	StartedAt time.Time
	// Elapsed is observed wall-clock time since Start, including drain time.
	Elapsed time.Duration

	Started   int64 // clients that began running
	Active    int64 // clients still running at snapshot time
	Scheduled int64 // arrivals handed to the scheduler, dropped ones included
	Delayed   int64 // arrivals that started behind schedule
	Dropped   int64 // arrivals rejected because every worker was busy

	categories    [numCategories]int64
	kinds         [numKinds]int64
	clients       [numClientOutcomes]int64
	trends        [numTrends]TrendStats
	statusBuckets []StatusBucket
}

// Count returns how many outcomes of the category were recorded.
func (s Snapshot) Count(c Category) int64 {
	if c >= numCategories {
		return 0
	}
	return s.categories[c]
}

// Failures returns how many failures of the kind were recorded.
func (s Snapshot) Failures(k Kind) int64 {
	if k >= numKinds {
		return 0
	}
	return s.kinds[k]
}

// Clients returns how many clients retired with the outcome.
func (s Snapshot) Clients(o ClientOutcome) int64 {
	if o >= numClientOutcomes {
		return 0
	}
	return s.clients[o]
}

// Trend returns the summary of a trend; Empty reports missing data.
func (s Snapshot) Trend(t Trend) TrendStats {
	if t >= numTrends {
		return TrendStats{}
	}
	return s.trends[t]
}

// Requests returns the number of requests sent to an endpoint.
func (s Snapshot) Requests(ep Endpoint) int64 {
	var n int64
	for c := Category(0); c < numCategories; c++ {
		if cep, ok := c.Endpoint(); ok && cep == ep {
			n += s.categories[c]
		}
	}
	return n
}

// EndpointFailures returns the number of unsuccessful requests to an endpoint.
func (s Snapshot) EndpointFailures(ep Endpoint) int64 {
	switch ep {
	case EndpointEnter:
		return s.categories[CategoryEnterFailure]
	case EndpointStatus:
		return s.categories[CategoryStatus404] + s.categories[CategoryStatus500] +
			s.categories[CategoryStatusTimeout] + s.categories[CategoryStatusOther]
	case EndpointHeartbeat:
		return s.categories[CategoryHeartbeatFailure]
	default:
		return 0
	}
}

// TotalRequests returns the number of requests across all endpoints.
func (s Snapshot) TotalRequests() int64 {
	var n int64
	for _, ep := range Endpoints() {
		n += s.Requests(ep)
	}
	return n
}

// TotalFailures returns the number of unsuccessful requests.
func (s Snapshot) TotalFailures() int64 {
	var n int64
	for _, ep := range Endpoints() {
		n += s.EndpointFailures(ep)
	}
	return n
}

// StatusBuckets returns the status code breakdown sorted by descending count.
func (s Snapshot) StatusBuckets() []StatusBucket {
	if len(s.statusBuckets) == 0 {
		return nil
	}
	return append([]StatusBucket(nil), s.statusBuckets...)
}
