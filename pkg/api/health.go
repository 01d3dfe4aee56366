package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/strata/pkg/metrics"
)

// HealthServer serves the daemon's health, readiness and metrics endpoints
type HealthServer struct {
	version string
	mux     *http.ServeMux

	mu     sync.Mutex
	server *http.Server
}

// NewHealthServer creates a new health check HTTP server
func NewHealthServer(version string) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		version: version,
		mux:     mux,
	}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start serves on addr until Shutdown. It returns nil after a clean shutdown.
func (hs *HealthServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return hs.Serve(ln)
}

// Serve accepts connections on ln until Shutdown
func (hs *HealthServer) Serve(ln net.Listener) error {
	server := &http.Server{
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	hs.mu.Lock()
	hs.server = server
	hs.mu.Unlock()

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	hs.mu.Lock()
	server := hs.server
	hs.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler serves /health. A failed convergence cycle answers 503; a
// degraded node still answers 200.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := metrics.GetHealth()
	response := HealthResponse{
		Status:     health.Status,
		Timestamp:  health.Timestamp,
		Version:    hs.version,
		Uptime:     health.Uptime,
		Components: health.Components,
	}

	statusCode := http.StatusOK
	if health.Status == metrics.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// readyHandler implements the /ready endpoint. The node is ready once the
// state database is open and a convergence cycle has succeeded.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	readiness := metrics.GetReadiness()

	status := "ready"
	statusCode := http.StatusOK
	if readiness.Status != metrics.StatusReady {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadyResponse{
		Status:    status,
		Timestamp: readiness.Timestamp,
		Checks:    readiness.Components,
		Message:   readiness.Message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
