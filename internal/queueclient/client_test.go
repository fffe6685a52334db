package queueclient

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/queuefire/internal/credentials"
	"github.com/torosent/queuefire/internal/metrics"
)

var testCred = credentials.Credential{Token: "tok-1", UserID: 7}

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Options)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts := Options{BaseURL: server.URL + "/", ScheduleID: "42", Timeout: 2 * time.Second}
	for _, m := range mutate {
		m(&opts)
	}
	client, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNewValidatesOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing base", Options{ScheduleID: "1"}},
		{"no host", Options{BaseURL: "not a url", ScheduleID: "1"}},
		{"missing schedule", Options{BaseURL: "http://localhost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRequestShape(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]*http.Request{}
	bodies := map[string]string{}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		mu.Lock()
		seen[r.URL.Path] = r
		bodies[r.URL.Path] = buf.String()
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/status") {
			_, _ = w.Write([]byte(`{"status":"WAITING"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	ctx := context.Background()
	if _, err := client.Enter(ctx, testCred); err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	if _, err := client.Status(ctx, testCred); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if _, err := client.Heartbeat(ctx, testCred); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}

	tests := []struct {
		path   string
		method string
		json   bool
	}{
		{"/api/v1/queue/42/enter", http.MethodPost, true},
		{"/api/v1/queue/42/status", http.MethodGet, false},
		{"/api/v1/queue/42/heartbeat", http.MethodPost, true},
	}
	for _, tt := range tests {
		r, ok := seen[tt.path]
		if !ok {
			t.Fatalf("no request to %s", tt.path)
		}
		if r.Method != tt.method {
			t.Errorf("%s method = %s, want %s", tt.path, r.Method, tt.method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("%s Authorization = %q", tt.path, got)
		}
		if _, err := uuid.Parse(r.Header.Get("X-Request-Id")); err != nil {
			t.Errorf("%s X-Request-Id is not a UUID: %v", tt.path, err)
		}
		if tt.json && r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("%s Content-Type = %q", tt.path, r.Header.Get("Content-Type"))
		}
		if bodies[tt.path] != "" {
			t.Errorf("%s body = %q, want empty", tt.path, bodies[tt.path])
		}
	}
	if seen["/api/v1/queue/42/enter"].Header.Get("X-Request-Id") == seen["/api/v1/queue/42/heartbeat"].Header.Get("X-Request-Id") {
		t.Error("request IDs should be unique per request")
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name     string
		call     func(*Client) (Response, error)
		code     int
		body     string
		wantKind metrics.Kind
		ready    bool
		status   string
	}{
		{"enter 200", (*Client).enterBG, 200, "", metrics.KindNone, false, ""},
		{"enter 201", (*Client).enterBG, 201, "", metrics.KindNone, false, ""},
		{"enter 500", (*Client).enterBG, 500, `{"message":"boom"}`, metrics.KindServerError, false, ""},
		{"enter 409", (*Client).enterBG, 409, "", metrics.KindClientError, false, ""},
		{"enter 404", (*Client).enterBG, 404, "", metrics.KindClientError, false, ""},
		{"enter 204", (*Client).enterBG, 204, "", metrics.KindClientError, false, ""},
		{"status ready", (*Client).statusBG, 200, `{"status":"READY","position":0}`, metrics.KindNone, true, "READY"},
		{"status waiting", (*Client).statusBG, 200, `{"status":"WAITING","position":12}`, metrics.KindNone, false, "WAITING"},
		{"status 404", (*Client).statusBG, 404, `{"code":"NOT_IN_QUEUE"}`, metrics.KindNotInQueue, false, ""},
		{"status 503", (*Client).statusBG, 503, "", metrics.KindServerError, false, ""},
		{"status 201", (*Client).statusBG, 201, `{"status":"READY"}`, metrics.KindClientError, false, ""},
		{"status malformed", (*Client).statusBG, 200, `{"status":"READY"`, metrics.KindProtocolError, false, ""},
		{"status not json", (*Client).statusBG, 200, `"status" "READY"`, metrics.KindProtocolError, false, ""},
		{"status missing field", (*Client).statusBG, 200, `{"state":"READY"}`, metrics.KindProtocolError, false, ""},
		{"status wrong type", (*Client).statusBG, 200, `{"status":1}`, metrics.KindProtocolError, false, ""},
		{"heartbeat 201", (*Client).heartbeatBG, 201, "", metrics.KindNone, false, ""},
		{"heartbeat 404", (*Client).heartbeatBG, 404, "", metrics.KindClientError, false, ""},
		{"heartbeat 500", (*Client).heartbeatBG, 500, "", metrics.KindServerError, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			})
			resp, err := tt.call(client)
			if got := KindOf(err); got != tt.wantKind {
				t.Fatalf("kind = %s, want %s (err %v)", got, tt.wantKind, err)
			}
			if tt.wantKind == metrics.KindNone && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if resp.StatusCode != tt.code {
				t.Errorf("status code = %d, want %d", resp.StatusCode, tt.code)
			}
			if resp.Ready() != tt.ready {
				t.Errorf("Ready() = %v, want %v", resp.Ready(), tt.ready)
			}
			if resp.Status != tt.status {
				t.Errorf("Status = %q, want %q", resp.Status, tt.status)
			}
			if resp.Duration <= 0 {
				t.Errorf("Duration = %s, want > 0", resp.Duration)
			}
			if err != nil {
				var reqErr *RequestError
				if !errors.As(err, &reqErr) {
					t.Fatalf("error %T is not a *RequestError", err)
				}
				if reqErr.StatusCode != tt.code {
					t.Errorf("RequestError.StatusCode = %d, want %d", reqErr.StatusCode, tt.code)
				}
			}
		})
	}
}

func TestProtocolErrorWrapsSentinel(t *testing.T) {
	_, err := ParseStatus([]byte(`{}`))
	if !errors.Is(err, ErrMalformedStatus) {
		t.Fatalf("err = %v, want ErrMalformedStatus", err)
	}
	status, err := ParseStatus([]byte(`{"status":"WAITING"}`))
	if err != nil || status != StatusWaiting {
		t.Fatalf("ParseStatus() = %q, %v", status, err)
	}
}

func TestTransportTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, func(o *Options) { o.Timeout = 50 * time.Millisecond })
	defer close(release)

	resp, err := client.Status(context.Background(), testCred)
	if KindOf(err) != metrics.KindTransportTimeout {
		t.Fatalf("kind = %s, want transport_timeout (err %v)", KindOf(err), err)
	}
	if resp.StatusCode != 0 {
		t.Errorf("status code = %d, want 0", resp.StatusCode)
	}
	if IsAborted(err) {
		t.Error("per-request timeout must not be reported as aborted")
	}
}

func TestConnectionRefusedIsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := New(Options{BaseURL: url, ScheduleID: "1", Timeout: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = client.Enter(context.Background(), testCred)
	if KindOf(err) != metrics.KindTransportTimeout {
		t.Fatalf("kind = %s, want transport_timeout", KindOf(err))
	}
}

func TestCancelledContextIsAborted(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := client.Status(ctx, testCred)
	if !IsAborted(err) {
		t.Fatalf("kind = %s, want aborted (err %v)", KindOf(err), err)
	}
}

func TestFailureLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, func(o *Options) { o.FailureLogger = logger })

	_, _ = client.Heartbeat(context.Background(), testCred)
	out := buf.String()
	if !strings.Contains(out, "request failed") || !strings.Contains(out, "kind=server_error") {
		t.Fatalf("log = %q", out)
	}
}

func TestTracePropagation(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var traceparent string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("Traceparent")
		w.WriteHeader(http.StatusOK)
	}, func(o *Options) {
		o.Tracer = tp.Tracer("test")
		o.Propagate = true
	})

	if _, err := client.Enter(context.Background(), testCred); err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	if traceparent == "" {
		t.Fatal("traceparent header not sent")
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "POST queue enter" {
		t.Fatalf("spans = %+v", spans)
	}
}

func (c *Client) enterBG() (Response, error)     { return c.Enter(context.Background(), testCred) }
func (c *Client) statusBG() (Response, error)    { return c.Status(context.Background(), testCred) }
func (c *Client) heartbeatBG() (Response, error) { return c.Heartbeat(context.Background(), testCred) }
