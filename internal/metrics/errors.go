package metrics

// Kind classifies why a request or a client did not succeed.
type Kind uint8

const (
	KindNone Kind = iota
	// KindTransportTimeout means no response was received at all.
	KindTransportTimeout
	// KindClientError is any 4xx other than 404.
	KindClientError
	// KindNotInQueue is a 404 from the status endpoint (TTL expiry removal).
	KindNotInQueue
	KindServerError
	// KindProtocolError means the response body lacked a well-formed expected field.
	KindProtocolError
	// KindResourceExhaustion means the iteration budget ran out before admission.
	KindResourceExhaustion
	// KindAborted means the run deadline retired the client.
	KindAborted
	numKinds
)

var kindNames = [numKinds]string{
	KindNone:               "none",
	KindTransportTimeout:   "transport_timeout",
	KindClientError:        "client_error",
	KindNotInQueue:         "not_in_queue",
	KindServerError:        "server_error",
	KindProtocolError:      "protocol_error",
	KindResourceExhaustion: "resource_exhaustion",
	KindAborted:            "aborted",
}

var kindFriendly = [numKinds]string{
	KindNone:               "None",
	KindTransportTimeout:   "Timeout / connection failure",
	KindClientError:        "Client error (4xx)",
	KindNotInQueue:         "Not in queue (404, heartbeat TTL expiry)",
	KindServerError:        "Server error (5xx)",
	KindProtocolError:      "Malformed response",
	KindResourceExhaustion: "Iteration budget exhausted",
	KindAborted:            "Aborted at run deadline",
}

func (k Kind) String() string {
	if k >= numKinds {
		return "unknown"
	}
	return kindNames[k]
}

// FriendlyName returns a human-friendly label for the kind.
func (k Kind) FriendlyName() string {
	if k >= numKinds {
		return "Unknown error"
	}
	return kindFriendly[k]
}

// Kinds lists every failure kind in report order.
func Kinds() []Kind {
	return []Kind{
		KindTransportTimeout,
		KindNotInQueue,
		KindServerError,
		KindProtocolError,
		KindClientError,
		KindResourceExhaustion,
		KindAborted,
	}
}

// KindForStatus maps an HTTP status code to a failure kind. Codes below 400
// map to KindNone; the caller decides whether such a code is a success. 404
// maps to KindNotInQueue, which only holds for status polls.
func KindForStatus(code int) Kind {
	switch {
	case code <= 0:
		return KindTransportTimeout
	case code == 404:
		return KindNotInQueue
	case code >= 500:
		return KindServerError
	case code >= 400:
		return KindClientError
	default:
		return KindNone
	}
}
