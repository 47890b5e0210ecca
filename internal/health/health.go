// Package health serves the liveness and readiness endpoints.
//
//   - /healthz reports that the process is up and serving HTTP.
//   - /readyz runs every registered [Checker] concurrently and answers 200
//     only when all of them pass.
//
// Bodies are JSON: a top-level "status" ("ok" or "fail") and, for /readyz, a
// "checks" object keyed by checker name. Each check reports its own status,
// the failure text and how long the probe took.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness probe.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Pinger is implemented by stores that can probe their backing service,
// such as the Postgres history store and the Redis search cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping adapts p into a Checker called name. A nil p yields a checker that
// always fails, so a misconfigured dependency is visible on /readyz.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: func(ctx context.Context) error {
		if p == nil {
			return errors.New("not configured")
		}
		return p.Ping(ctx)
	}}
}

type checkResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type result struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. Checkers are fixed at construction.
type Handler struct {
	checkers []Checker
}

// New returns a Handler evaluating checkers on each /readyz request.
// Checkers with a nil Check func are dropped.
func New(checkers ...Checker) *Handler {
	h := &Handler{}
	for _, c := range checkers {
		if c.Check != nil {
			h.checkers = append(h.checkers, c)
		}
	}
	return h
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz answers 200 when every checker passes and 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]checkResult, len(h.checkers))
		failed bool
	)

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()

			start := time.Now()
			err := c.Check(ctx)
			cr := checkResult{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				cr.Status = "fail"
				cr.Error = err.Error()
			}

			mu.Lock()
			checks[c.Name] = cr
			failed = failed || err != nil
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if failed {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
