package db

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// HealthChecker runs named probes concurrently.
type HealthChecker struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

// NewHealthChecker creates an empty health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{probes: make(map[string]Probe)}
}

// Register adds or replaces a probe.
func (h *HealthChecker) Register(name string, p Probe) {
	h.mu.Lock()
	h.probes[name] = p
	h.mu.Unlock()
}

// HealthStatus represents the aggregated result.
type HealthStatus struct {
	Healthy      bool              `json:"healthy"`
	Components   []ComponentHealth `json:"components"`
	ResponseTime time.Duration     `json:"response_time_ms"`
}

// ComponentHealth represents the health status of a single dependency.
type ComponentHealth struct {
	Name         string        `json:"name"`
	Healthy      bool          `json:"healthy"`
	ResponseTime time.Duration `json:"response_time_ms"`
	Error        string        `json:"error,omitempty"`
}

// Check runs every probe with a per-probe timeout.
func (h *HealthChecker) Check(ctx context.Context, timeout time.Duration) HealthStatus {
	start := time.Now()

	h.mu.RLock()
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	results := make([]ComponentHealth, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		h.mu.RLock()
		probe := h.probes[name]
		h.mu.RUnlock()

		wg.Add(1)
		go func(i int, name string, probe Probe) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			began := time.Now()
			res := ComponentHealth{Name: name, Healthy: true}
			if err := probe(pctx); err != nil {
				res.Healthy = false
				res.Error = err.Error()
			}
			res.ResponseTime = time.Since(began)
			results[i] = res
		}(i, name, probe)
	}
	wg.Wait()

	status := HealthStatus{Healthy: true, Components: results}
	for _, r := range results {
		if !r.Healthy {
			status.Healthy = false
		}
	}
	status.ResponseTime = time.Since(start)
	return status
}
