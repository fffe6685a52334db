package queueclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/torosent/queuefire/internal/metrics"
)

// ErrMalformedStatus is wrapped by protocol errors from the status endpoint.
var ErrMalformedStatus = errors.New("status payload lacks a string \"status\" field")

// RequestError represents a failed queue API request.
type RequestError struct {
	Endpoint   metrics.Endpoint
	Kind       metrics.Kind
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: HTTP %d: %v", e.Endpoint, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.StatusCode)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind carried by err, or KindNone when err is
// nil or not a *RequestError.
func KindOf(err error) metrics.Kind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return metrics.KindNone
}

// IsAborted reports whether err came from the caller cancelling the request.
func IsAborted(err error) bool {
	return KindOf(err) == metrics.KindAborted
}

// classify turns a response code into a RequestError, or nil on success.
// Enter and heartbeat accept 200 and 201; status accepts only 200.
func classify(ep metrics.Endpoint, code int, body []byte) *RequestError {
	ok := code == http.StatusOK
	if ep != metrics.EndpointStatus {
		ok = ok || code == http.StatusCreated
	}
	if ok {
		return nil
	}
	kind := metrics.KindForStatus(code)
	switch {
	case kind == metrics.KindNone:
		// Non-error codes outside the accepted set, e.g. 204 or 3xx.
		kind = metrics.KindClientError
	case kind == metrics.KindNotInQueue && ep != metrics.EndpointStatus:
		// Only a status poll can report that the client left the queue.
		kind = metrics.KindClientError
	}
	return &RequestError{Endpoint: ep, Kind: kind, StatusCode: code, Err: bodyError(body)}
}

func bodyError(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	if msg := gjson.GetBytes(body, "message"); msg.Type == gjson.String && msg.Str != "" {
		return errors.New(msg.Str)
	}
	const limit = 200
	if len(body) > limit {
		body = body[:limit]
	}
	return errors.New(string(body))
}

// ParseStatus extracts the "status" field from a status poll payload. The
// payload must be valid JSON with a string "status" field; there is no
// substring fallback.
func ParseStatus(body []byte) (string, error) {
	status, err := parseStatus(body)
	if err != nil {
		return "", err
	}
	return status, nil
}

func parseStatus(body []byte) (string, *RequestError) {
	protocolErr := func(cause error) *RequestError {
		return &RequestError{
			Endpoint:   metrics.EndpointStatus,
			Kind:       metrics.KindProtocolError,
			StatusCode: http.StatusOK,
			Err:        cause,
		}
	}
	if !gjson.ValidBytes(body) {
		return "", protocolErr(fmt.Errorf("%w: invalid JSON", ErrMalformedStatus))
	}
	field := gjson.GetBytes(body, "status")
	if !field.Exists() {
		return "", protocolErr(fmt.Errorf("%w: field missing", ErrMalformedStatus))
	}
	if field.Type != gjson.String {
		return "", protocolErr(fmt.Errorf("%w: got %s", ErrMalformedStatus, field.Type))
	}
	return field.Str, nil
}
