package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wordpadbot/wordpadbot/internal/metrics"
	"github.com/wordpadbot/wordpadbot/internal/observability"
	"github.com/wordpadbot/wordpadbot/internal/server/handlers"
)

// isPermissionError normalizes OS-specific permission errors so the tests
// can skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// initMetricsOrSkip starts a real exporter on a free port and tears down the
// global telemetry state afterwards.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics("test", 0); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

// newLoopbackServer binds to IPv4 loopback explicitly and skips when the
// sandbox refuses to open sockets.
func newLoopbackServer(t *testing.T, opts Options) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := New(opts)

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func TestMetricsEndpointIntegration(t *testing.T) {
	initMetricsOrSkip(t)

	health := handlers.NewHealthManager("test")
	health.RegisterChecker("store", handlers.CheckerFunc(func(context.Context) error { return nil }))
	ts, client := newLoopbackServer(t, Options{
		Health: health,
		Status: staticStatus{Handle: "wordpad.test", MaxReplies: 3},
	})

	metrics.RecordOutcome("mention", "replied")
	metrics.RecordPoll("mentions", true, 20*time.Millisecond)

	paths := []string{"/health", "/health/ready", "/status", "/missing"}
	const numRequests = 40
	const numWorkers = 8

	requests := make(chan string, numRequests)
	for i := 0; i < numRequests; i++ {
		requests <- paths[i%len(paths)]
	}
	close(requests)

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for path := range requests {
				resp, err := client.Get(ts.URL + path)
				if err == nil {
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()

	var content string
	require.Eventually(t, func() bool {
		resp, err := client.Get(ts.URL + "/metrics")
		if err != nil {
			return false
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		content = string(body)
		return strings.Contains(content, "test_http_requests_total")
	}, 5*time.Second, 50*time.Millisecond)

	require.Contains(t, content, "test_http_request_duration_ms")
	require.Contains(t, content, "test_"+metrics.RepliesTotal)
	require.Contains(t, content, "test_"+metrics.PollsTotal)
}

func TestMetricsEndpointWithTelemetryDisabled(t *testing.T) {
	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	ts, client := newLoopbackServer(t, Options{})

	resp, err := client.Get(ts.URL + "/health/live")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
