package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

func do(t *testing.T, h http.Handler, method, path, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, rec.Body.String()
}

func TestQueueLifecycle(t *testing.T) {
	clock := &fixedClock{t: time.Unix(0, 0)}
	h := newQueue(2*time.Second, 5*time.Second, 0, clock.now).routes()
	const base = "/api/v1/queue/9/"

	if code, _ := do(t, h, http.MethodGet, base+"status", "a"); code != http.StatusNotFound {
		t.Fatalf("status before enter = %d, want 404", code)
	}
	if code, _ := do(t, h, http.MethodPost, base+"enter", "a"); code != http.StatusOK {
		t.Fatalf("enter = %d", code)
	}
	if _, body := do(t, h, http.MethodGet, base+"status", "a"); !strings.Contains(body, `"WAITING"`) {
		t.Fatalf("status = %s, want WAITING", body)
	}

	clock.t = clock.t.Add(2 * time.Second)
	if _, body := do(t, h, http.MethodGet, base+"status", "a"); !strings.Contains(body, `"READY"`) {
		t.Fatalf("status = %s, want READY", body)
	}
}

func TestMissedHeartbeatsEvict(t *testing.T) {
	clock := &fixedClock{t: time.Unix(0, 0)}
	h := newQueue(time.Minute, 5*time.Second, 0, clock.now).routes()
	const base = "/api/v1/queue/9/"

	do(t, h, http.MethodPost, base+"enter", "a")
	clock.t = clock.t.Add(4 * time.Second)
	if code, _ := do(t, h, http.MethodPost, base+"heartbeat", "a"); code != http.StatusOK {
		t.Fatalf("heartbeat within ttl = %d", code)
	}
	clock.t = clock.t.Add(4 * time.Second)
	if code, _ := do(t, h, http.MethodGet, base+"status", "a"); code != http.StatusOK {
		t.Fatalf("heartbeat should have renewed the ttl, got %d", code)
	}
	clock.t = clock.t.Add(6 * time.Second)
	if code, _ := do(t, h, http.MethodGet, base+"status", "a"); code != http.StatusNotFound {
		t.Fatalf("status after ttl = %d, want 404", code)
	}
	if code, _ := do(t, h, http.MethodPost, base+"heartbeat", "a"); code != http.StatusNotFound {
		t.Fatalf("heartbeat after eviction = %d, want 404", code)
	}
}

func TestMissingTokenAndInjectedFailures(t *testing.T) {
	h := newQueue(0, time.Minute, 0, time.Now).routes()
	if code, _ := do(t, h, http.MethodPost, "/api/v1/queue/1/enter", ""); code != http.StatusUnauthorized {
		t.Fatalf("enter without token = %d, want 401", code)
	}

	failing := newQueue(0, time.Minute, 1, time.Now).routes()
	if code, _ := do(t, failing, http.MethodPost, "/api/v1/queue/1/enter", "a"); code != http.StatusInternalServerError {
		t.Fatalf("enter with fail-rate 1 = %d, want 500", code)
	}
}
