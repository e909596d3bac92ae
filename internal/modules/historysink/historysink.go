// Package historysink is the History Sink adapter: it forwards each
// completed probe to the environment-selected external record-of-truth
// service. All errors are treated as transient; the caller's job still
// succeeds.
package historysink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"linkwatch/internal/config"
	"linkwatch/internal/modules/monitor"
)

// recordHealthCheckPath is appended to the environment's base URL to form
// the linkHealth.recordHealthCheck RPC endpoint.
const recordHealthCheckPath = "/linkHealth.recordHealthCheck"

// payload is the wire shape of one History Sink write.
type payload struct {
	SharedSecret string `json:"sharedSecret"`
	URLID        string `json:"urlId"`
	UserID       string `json:"userId"`
	ShortURL     string `json:"shortUrl"`
	LongURL      string `json:"longUrl"`
	StatusCode   int    `json:"statusCode"`
	LatencyMs    int    `json:"latencyMs"`
	IsHealthy    bool   `json:"isHealthy"`
	HealthStatus string `json:"healthStatus"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CheckedAt    int64  `json:"checkedAt"`
}

// Sink is the History Sink's public surface, consumed by the Worker Pool.
type Sink interface {
	// Record writes one probe observation. It never returns an error the
	// caller should act on; failures are logged and swallowed.
	Record(ctx context.Context, m *monitor.Monitor, outcome *monitor.ProbeOutcome)
}

// sink holds one http.Client per environment: two total, dev and prod.
type sink struct {
	clients map[monitor.Environment]struct {
		baseURL string
		http    *http.Client
	}
	sharedSecret string
	logger       *zap.SugaredLogger
}

// NewSink builds the History Sink from CONVEX_URL_DEV/CONVEX_URL_PROD.
func NewSink(cfg *config.Config, logger *zap.SugaredLogger) Sink {
	return &sink{
		clients: map[monitor.Environment]struct {
			baseURL string
			http    *http.Client
		}{
			monitor.EnvironmentDev:  {baseURL: cfg.ConvexURLDev, http: &http.Client{Timeout: 10 * time.Second}},
			monitor.EnvironmentProd: {baseURL: cfg.ConvexURLProd, http: &http.Client{Timeout: 10 * time.Second}},
		},
		sharedSecret: cfg.MonitoringSharedSecret,
		logger:       logger.Named("[history-sink]"),
	}
}

func (s *sink) Record(ctx context.Context, m *monitor.Monitor, outcome *monitor.ProbeOutcome) {
	target, ok := s.clients[m.Environment]
	if !ok || target.baseURL == "" {
		s.logger.Warnw("no history sink endpoint configured for environment",
			"environment", m.Environment, "monitor_id", m.ID)
		return
	}

	body := payload{
		SharedSecret: s.sharedSecret,
		URLID:        m.ConvexURLID,
		UserID:       m.ConvexUserID,
		ShortURL:     m.ShortURL,
		LongURL:      m.LongURL,
		StatusCode:   outcome.StatusCode,
		LatencyMs:    outcome.LatencyMs,
		IsHealthy:    outcome.IsHealthy,
		HealthStatus: string(outcome.HealthStatus),
		ErrorMessage: outcome.ErrorMessage,
		CheckedAt:    outcome.CheckedAt.UnixMilli(),
	}

	if err := s.post(ctx, target.http, target.baseURL, body); err != nil {
		s.logger.Errorw("history sink write failed",
			"monitor_id", m.ID, "environment", m.Environment, "error", err)
	}
}

func (s *sink) post(ctx context.Context, client *http.Client, baseURL string, body payload) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+recordHealthCheckPath, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
