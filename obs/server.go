package obs

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the ambient HTTP surface every runtime process exposes
// for health, readiness, and metrics scraping. Grounded on pkg/
// observability/server.go's mux wiring, kept nearly directly: the
// only generalization is that the liveness check registered is the
// runtime's own (RuntimeLivenessCheck) rather than a bare ping.
type Server struct {
	httpServer *http.Server
	health     *HealthChecker
}

// NewServer builds the /health, /health/live, /health/ready, and
// /metrics mux bound to addr.
func NewServer(addr string, health *HealthChecker) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.Handler())
	mux.HandleFunc("/health/live", LivenessHandler())
	mux.HandleFunc("/health/ready", ReadinessHandler(health))
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		health: health,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe starts the server. It blocks until the server stops
// or fails; callers typically run it in its own goroutine.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
