// Command queue_server is a small in-memory waiting-room service for trying
// queuefire locally. Clients are admitted after a fixed wait and removed
// when they miss heartbeats for longer than the TTL.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"
)

func main() {
	port := flag.Int("port", 8080, "Listening port")
	admitAfter := flag.Duration("admit-after", 3*time.Second, "Wait before an entered client is READY")
	ttl := flag.Duration("ttl", 60*time.Second, "Remove clients that have not sent a heartbeat for this long")
	failRate := flag.Float64("fail-rate", 0, "Fraction of requests answered with 500")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	q := newQueue(*admitAfter, *ttl, *failRate, time.Now)
	addr := fmt.Sprintf(":%d", *port)
	log.Printf("queue server listening on %s (admit after %s, ttl %s)", addr, *admitAfter, *ttl)
	log.Fatal(http.ListenAndServe(addr, q.routes()))
}

type entry struct {
	entered  time.Time
	lastSeen time.Time
}

type queue struct {
	admitAfter time.Duration
	ttl        time.Duration
	failRate   float64
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]map[string]*entry // schedule -> token -> entry
}

func newQueue(admitAfter, ttl time.Duration, failRate float64, now func() time.Time) *queue {
	return &queue{
		admitAfter: admitAfter,
		ttl:        ttl,
		failRate:   failRate,
		now:        now,
		entries:    make(map[string]map[string]*entry),
	}
}

func (q *queue) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/queue/{schedule}/enter", q.handleEnter)
	mux.HandleFunc("GET /api/v1/queue/{schedule}/status", q.handleStatus)
	mux.HandleFunc("POST /api/v1/queue/{schedule}/heartbeat", q.handleHeartbeat)
	return mux
}

func (q *queue) handleEnter(w http.ResponseWriter, r *http.Request) {
	token, ok := q.authorize(w, r)
	if !ok {
		return
	}
	now := q.now()
	q.mu.Lock()
	schedule := r.PathValue("schedule")
	if q.entries[schedule] == nil {
		q.entries[schedule] = make(map[string]*entry)
	}
	if _, exists := q.entries[schedule][token]; !exists {
		q.entries[schedule][token] = &entry{entered: now, lastSeen: now}
	}
	q.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]any{"status": "WAITING"})
}

func (q *queue) handleStatus(w http.ResponseWriter, r *http.Request) {
	token, ok := q.authorize(w, r)
	if !ok {
		return
	}
	e, found := q.lookup(r.PathValue("schedule"), token, false)
	if !found {
		respondJSON(w, http.StatusNotFound, map[string]any{"error": "not in queue"})
		return
	}
	status := "WAITING"
	if q.now().Sub(e.entered) >= q.admitAfter {
		status = "READY"
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (q *queue) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	token, ok := q.authorize(w, r)
	if !ok {
		return
	}
	if _, found := q.lookup(r.PathValue("schedule"), token, true); !found {
		respondJSON(w, http.StatusNotFound, map[string]any{"error": "not in queue"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// lookup returns a live entry, evicting it first if its TTL passed.
func (q *queue) lookup(schedule, token string, renew bool) (entry, bool) {
	now := q.now()
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[schedule][token]
	if !ok {
		return entry{}, false
	}
	if now.Sub(e.lastSeen) > q.ttl {
		delete(q.entries[schedule], token)
		return entry{}, false
	}
	if renew {
		e.lastSeen = now
	}
	return *e, true
}

// authorize extracts the bearer token and applies the injected failure rate.
func (q *queue) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing bearer token"})
		return "", false
	}
	if q.failRate > 0 && rand.Float64() < q.failRate {
		respondJSON(w, http.StatusInternalServerError, map[string]any{"error": "injected failure"})
		return "", false
	}
	return token, true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
