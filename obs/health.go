package obs

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// HealthStatus mirrors pkg/observability/health.go's tri-state
// health model, carried over unchanged: a runtime process has the
// same liveness/readiness shape as any other Go service.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is a single named check.
type HealthCheck struct {
	Name      string
	CheckFunc func(context.Context) error
	Timeout   time.Duration
	Critical  bool
}

// HealthChecker aggregates HealthChecks into a HealthResponse.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]*HealthCheck
	start  time.Time
}

// HealthResponse is the JSON body served at /health.
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    time.Duration          `json:"uptime"`
	Checks    map[string]CheckStatus `json:"checks"`
	System    SystemInfo             `json:"system"`
}

type CheckStatus struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

type SystemInfo struct {
	NumGoroutines int `json:"num_goroutines"`
	NumCPU        int `json:"num_cpu"`
}

// NewHealthChecker constructs an empty checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]*HealthCheck), start: time.Now()}
}

// RegisterCheck adds or replaces a named check.
func (hc *HealthChecker) RegisterCheck(c *HealthCheck) {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[c.Name] = c
}

// Check runs every registered check and aggregates the result.
func (hc *HealthChecker) Check(ctx context.Context) HealthResponse {
	hc.mu.RLock()
	checks := make(map[string]*HealthCheck, len(hc.checks))
	for k, v := range hc.checks {
		checks[k] = v
	}
	hc.mu.RUnlock()

	results := make(map[string]CheckStatus, len(checks))
	status := HealthStatusHealthy
	for name, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		err := c.CheckFunc(checkCtx)
		cancel()

		if err != nil {
			if c.Critical {
				status = HealthStatusUnhealthy
				results[name] = CheckStatus{Status: HealthStatusUnhealthy, Message: err.Error()}
			} else {
				if status == HealthStatusHealthy {
					status = HealthStatusDegraded
				}
				results[name] = CheckStatus{Status: HealthStatusDegraded, Message: err.Error()}
			}
			continue
		}
		results[name] = CheckStatus{Status: HealthStatusHealthy}
	}

	return HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(hc.start),
		Checks:    results,
		System: SystemInfo{
			NumGoroutines: runtime.NumGoroutine(),
			NumCPU:        runtime.NumCPU(),
		},
	}
}

// Handler returns an http.HandlerFunc serving hc.Check as JSON.
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := hc.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		switch resp.Status {
		case HealthStatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// LivenessHandler is a trivial "the process is up" probe.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"alive"}`))
	}
}

// ReadinessHandler reports ready only when hc reports healthy.
func ReadinessHandler(hc *HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := hc.Check(r.Context())
		if resp.Status != HealthStatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not ready"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// RuntimeLivenessCheck is the liveness check cmd/agentrtd registers
// for its runtime: it is trivially satisfiable (the process answering HTTP at
// all means the driver goroutines are scheduled), mirroring pkg/
// observability/health.go's PingCheck.
func RuntimeLivenessCheck() *HealthCheck {
	return &HealthCheck{
		Name:     "runtime",
		CheckFunc: func(context.Context) error { return nil },
		Critical: true,
	}
}
