// Package queueclient talks to the waiting-room queue API.
//
// A [Client] sends the three requests a virtual client needs:
//
//	POST /api/v1/queue/{scheduleId}/enter
//	GET  /api/v1/queue/{scheduleId}/status
//	POST /api/v1/queue/{scheduleId}/heartbeat
//
// Every request carries the caller's bearer token and a fresh X-Request-Id.
// When a tracer is configured each request runs in its own client span, and
// W3C trace headers are injected when propagation is enabled.
//
// # Classification
//
// Failed requests return a [*RequestError] whose Kind places the failure in
// the metrics taxonomy:
//
//   - no response at all is metrics.KindTransportTimeout
//   - 404 is metrics.KindNotInQueue
//   - other 4xx is metrics.KindClientError
//   - 5xx is metrics.KindServerError
//   - a 200 status payload without a string "status" field is metrics.KindProtocolError
//   - cancellation of the caller's context is metrics.KindAborted, never a timeout
//
// The returned [Response] always holds the status code and latency, so callers
// can record an outcome whether or not an error was returned.
package queueclient
