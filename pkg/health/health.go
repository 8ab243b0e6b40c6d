// Package health serves Kubernetes-style liveness and readiness probes.
//
// Probes run on a shared ticker. A probe flips to failing only after
// FailThreshold consecutive errors and back to passing after one success,
// which keeps a flaky dependency from flapping the service in and out of the
// load balancer.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Check reports nil when the probed component is healthy.
type Check func(ctx context.Context) error

// FailThreshold is the number of consecutive failures before a probe is
// considered failing.
const FailThreshold = 3

type kind int

const (
	liveness kind = iota
	readiness
)

type probe struct {
	kind    kind
	timeout time.Duration
	check   Check

	mu       sync.Mutex
	failures int
	lastErr  error
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.check(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.failures++
		p.lastErr = err
	} else {
		p.failures = 0
		p.lastErr = nil
	}
}

func (p *probe) failing() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures >= FailThreshold, p.lastErr
}

// Health owns the registered probes and serves the probe endpoints.
type Health struct {
	mu     sync.RWMutex
	probes map[string]*probe
	ready  bool
	cancel context.CancelFunc
}

// New creates a Health with no probes. The service starts not ready; call
// SetReady(true) after initialization.
func New() *Health {
	return &Health{probes: make(map[string]*probe)}
}

// AddLiveness registers a liveness probe under name.
func (h *Health) AddLiveness(name string, timeout time.Duration, check Check) {
	h.add(name, liveness, timeout, check)
}

// AddReadiness registers a readiness probe under name.
func (h *Health) AddReadiness(name string, timeout time.Duration, check Check) {
	h.add(name, readiness, timeout, check)
}

func (h *Health) add(name string, k kind, timeout time.Duration, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = &probe{kind: k, timeout: timeout, check: check}
}

// Start runs every probe once, then again each interval, until Stop or ctx
// cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := make([]*probe, 0, len(h.probes))
	for _, p := range h.probes {
		probes = append(probes, p)
	}
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			for _, p := range probes {
				p.run(ctx)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the probe loop. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady marks the service ready (after init) or not ready (during
// shutdown, to drain traffic).
func (h *Health) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 when every liveness probe passes, 503 with
// failure details otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.serve(w, h.failuresOf(liveness))
}

// ReadyEndpoint serves /readyz: 200 when the service is marked ready and
// every readiness probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failuresOf(readiness)

	h.mu.RLock()
	ready := h.ready
	h.mu.RUnlock()
	if !ready {
		failures["service"] = "not ready"
	}
	h.serve(w, failures)
}

func (h *Health) failuresOf(k kind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	failures := make(map[string]string)
	for name, p := range h.probes {
		if p.kind != k {
			continue
		}
		if failing, err := p.failing(); failing {
			msg := "probe failing"
			if err != nil {
				msg = err.Error()
			}
			failures[name] = msg
		}
	}
	return failures
}

func (h *Health) serve(w http.ResponseWriter, failures map[string]string) {
	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
