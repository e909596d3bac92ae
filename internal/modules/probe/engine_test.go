package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"linkwatch/internal/config"
	"linkwatch/internal/modules/monitor"
)

func newTestEngine(checkTimeoutMs, degradedThresholdMs int64) *Engine {
	cfg := &config.Config{CheckTimeoutMs: checkTimeoutMs, DegradedThresholdMs: degradedThresholdMs}
	return NewEngine(cfg)
}

func TestEngine_Check_Up(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(2000, 3000)
	result := e.Check(context.Background(), srv.URL)

	assert.Equal(t, 200, result.StatusCode)
	assert.True(t, result.IsHealthy)
	assert.Equal(t, monitor.StatusUp, result.HealthStatus)
}

func TestEngine_Check_Degraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(2000, 10)
	result := e.Check(context.Background(), srv.URL)

	assert.True(t, result.IsHealthy)
	assert.Equal(t, monitor.StatusDegraded, result.HealthStatus)
}

func TestEngine_Check_BotChallengeRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(2000, 3000)
	result := e.Check(context.Background(), srv.URL)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 200, result.StatusCode)
	assert.True(t, result.IsHealthy)
}

func TestEngine_Check_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(20, 3000)
	result := e.Check(context.Background(), srv.URL)

	assert.Equal(t, 408, result.StatusCode)
	assert.False(t, result.IsHealthy)
	assert.Equal(t, monitor.StatusDown, result.HealthStatus)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestEngine_Check_ConnectionRefused(t *testing.T) {
	e := newTestEngine(500, 3000)
	result := e.Check(context.Background(), "http://127.0.0.1:1")

	assert.False(t, result.IsHealthy)
	assert.Equal(t, monitor.StatusDown, result.HealthStatus)
}

func TestEngine_Check_LocalRateLimitBlocksBurst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{
		CheckTimeoutMs:           50,
		DegradedThresholdMs:      3000,
		QueueRateLimitMax:        1,
		QueueRateLimitDurationMs: 60000,
		WorkerConcurrency:        1,
	}
	e := NewEngine(cfg)

	first := e.Check(context.Background(), srv.URL)
	assert.True(t, first.IsHealthy)

	second := e.Check(context.Background(), srv.URL)
	assert.False(t, second.IsHealthy)
	assert.Equal(t, monitor.StatusDown, second.HealthStatus)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		latencyMs  int
		threshold  int64
		wantHealth monitor.Status
		wantOK     bool
	}{
		{"ok fast", 200, 50, 3000, monitor.StatusUp, true},
		{"ok slow", 200, 3500, 3000, monitor.StatusDegraded, true},
		{"redirect", 301, 50, 3000, monitor.StatusUp, true},
		{"not found", 404, 50, 3000, monitor.StatusDown, false},
		{"server error", 503, 50, 3000, monitor.StatusDown, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := classify(tc.statusCode, tc.latencyMs, tc.threshold)
			assert.Equal(t, tc.wantOK, result.IsHealthy)
			assert.Equal(t, tc.wantHealth, result.HealthStatus)
		})
	}
}
