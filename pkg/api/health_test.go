package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/strata/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	hs := NewHealthServer("1.0.0")

	tests := []struct {
		name           string
		method         string
		converged      bool
		textfileFailed bool
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "GET after successful run",
			method:         http.MethodGet,
			converged:      true,
			expectedStatus: http.StatusOK,
			expectedBody:   "healthy",
		},
		{
			name:           "GET after failed run",
			method:         http.MethodGet,
			converged:      false,
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "unhealthy",
		},
		{
			name:           "GET with a failing textfile is degraded",
			method:         http.MethodGet,
			converged:      true,
			textfileFailed: true,
			expectedStatus: http.StatusOK,
			expectedBody:   "degraded",
		},
		{
			name:           "POST request fails",
			method:         http.MethodPost,
			converged:      true,
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "DELETE request fails",
			method:         http.MethodDelete,
			converged:      true,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics.RegisterComponent("state", true, "opened")
			metrics.RegisterComponent("converge", tt.converged, "osd prepare failed")
			metrics.RegisterComponent("textfile", !tt.textfileFailed, "read-only file system")

			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			hs.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedBody != "" {
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

				var response HealthResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
				assert.Equal(t, tt.expectedBody, response.Status)
				assert.Equal(t, "1.0.0", response.Version)
				assert.False(t, response.Timestamp.IsZero())
				assert.Contains(t, response.Components, "converge")
			}
		})
	}
}

func TestReadyHandler(t *testing.T) {
	hs := NewHealthServer("dev")

	metrics.RegisterComponent("state", true, "opened")
	metrics.RegisterComponent("converge", false, "waiting for first run")

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	hs.readyHandler(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var response ReadyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "not ready", response.Status)
	assert.Equal(t, "ready", response.Checks["state"])
	assert.Contains(t, response.Checks["converge"], "waiting for first run")
	assert.NotEmpty(t, response.Message)

	metrics.UpdateComponent("converge", true, "converged")

	w = httptest.NewRecorder()
	hs.readyHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	response = ReadyResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "ready", response.Status)
}

func TestReadyHandlerMethodValidation(t *testing.T) {
	hs := NewHealthServer("dev")

	for _, method := range []string{http.MethodPost, http.MethodPut} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/ready", nil)
			w := httptest.NewRecorder()

			hs.readyHandler(w, req)

			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	}
}

func TestRoutes(t *testing.T) {
	metrics.RegisterComponent("state", true, "opened")
	metrics.RegisterComponent("converge", true, "converged")
	handler := NewHealthServer("dev").GetHandler()

	tests := []struct {
		path           string
		expectedStatus int
	}{
		{path: "/health", expectedStatus: http.StatusOK},
		{path: "/ready", expectedStatus: http.StatusOK},
		{path: "/metrics", expectedStatus: http.StatusOK},
		{path: "/nonexistent", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "Path: %s", tt.path)
		})
	}
}

func TestMetricsEndpointExposesConvergeMetrics(t *testing.T) {
	metrics.ConvergeRunsTotal.WithLabelValues("success").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	NewHealthServer("dev").GetHandler().ServeHTTP(w, req)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "strata_converge_runs_total")
}

func TestServeAndShutdown(t *testing.T) {
	metrics.RegisterComponent("state", true, "opened")
	metrics.RegisterComponent("converge", true, "converged")
	hs := NewHealthServer("dev")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- hs.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hs.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}

func TestShutdownBeforeStart(t *testing.T) {
	assert.NoError(t, NewHealthServer("dev").Shutdown(context.Background()))
}
