package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"

	readyTimeout = 5 * time.Second
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": statusHealthy})
}

// HealthCheck probes one dependency. A failing critical check makes the
// service unavailable; a failing non-critical one only degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string `json:"status"`
	Critical  bool   `json:"critical"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type readyResponse struct {
	Status    string                       `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Checks    map[string]HealthCheckResult `json:"checks"`
}

// Ready runs every check in parallel. The ephemeral store is registered as
// non-critical: without it the chat degrades but history and posting work.
func Ready(checks ...HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		results := make(map[string]HealthCheckResult, len(checks))
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, check := range checks {
			wg.Add(1)
			go func(check HealthCheck) {
				defer wg.Done()
				result := runCheck(ctx, check)
				mu.Lock()
				results[check.Name] = result
				mu.Unlock()
			}(check)
		}
		wg.Wait()

		response := readyResponse{
			Status:    statusHealthy,
			Timestamp: time.Now().UTC(),
			Checks:    results,
		}
		for _, result := range results {
			if result.Status == "up" {
				continue
			}
			if result.Critical {
				response.Status = statusUnhealthy
				break
			}
			response.Status = statusDegraded
		}

		status := http.StatusOK
		if response.Status == statusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	}
}

func runCheck(ctx context.Context, check HealthCheck) HealthCheckResult {
	start := time.Now()
	err := check.Check(ctx)
	result := HealthCheckResult{
		Status:    "up",
		Critical:  check.Critical,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Status = "down"
		result.Error = err.Error()
	}
	return result
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
