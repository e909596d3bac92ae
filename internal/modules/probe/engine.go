// Package probe implements the Probe Engine: a pure function of a URL that
// emulates a real desktop browser and classifies the outcome.
package probe

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"linkwatch/internal/config"
	"linkwatch/internal/modules/monitor"
)

// userAgent pairs a UA string with the client-hint metadata a Chromium
// browser would attach alongside it.
type userAgent struct {
	value    string
	chromium bool
	platform string
}

var userAgents = []userAgent{
	{
		value:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		chromium: true,
		platform: "Windows",
	},
	{
		value:    "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		chromium: true,
		platform: "macOS",
	},
	{
		value:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		chromium: true,
		platform: "Linux",
	},
	{
		value:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
		chromium: true,
		platform: "Windows",
	},
	{
		value:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
		chromium: false,
		platform: "Windows",
	},
	{
		value:    "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		chromium: false,
		platform: "macOS",
	},
}

// errKind distinguishes the probe's transport-error taxonomy so
// classification never inspects error text.
type errKind int

const (
	errKindNone errKind = iota
	errKindDeadlineExceeded
	errKindTransport
)

// Engine issues browser-emulating HTTP probes against a long_url.
type Engine struct {
	client              *http.Client
	checkTimeout        time.Duration
	degradedThresholdMs int64

	// limiter is a per-process token bucket local to this worker, a
	// complement to the cross-process Redis dispatch limiter: it smooths
	// bursts a single process's own goroutines could otherwise produce
	// between dispatch and the Redis check.
	limiter *rate.Limiter
}

// NewEngine builds a Probe Engine from the process configuration.
func NewEngine(cfg *config.Config) *Engine {
	limit := rate.Inf
	if cfg.QueueRateLimitMax > 0 && cfg.QueueRateLimitDurationMs > 0 {
		limit = rate.Limit(float64(cfg.QueueRateLimitMax) / cfg.QueueRateLimitDuration().Seconds())
	}
	burst := int(cfg.WorkerConcurrency)
	if burst < 1 {
		burst = 1
	}

	return &Engine{
		client: &http.Client{
			// Timeout is enforced per-request via the context deadline instead,
			// so a HEAD→GET retry shares one overall budget.
			Timeout: 0,
		},
		checkTimeout:        cfg.CheckTimeout(),
		degradedThresholdMs: cfg.DegradedThresholdMs,
		limiter:             rate.NewLimiter(limit, burst),
	}
}

// bot-challenge statuses trigger a HEAD→GET retry.
var botChallengeStatuses = map[int]bool{
	403: true,
	405: true,
	406: true,
	429: true,
	503: true,
}

// Check probes longURL and returns the classified outcome. It never returns
// an error: transport failures are folded into the outcome itself.
func (e *Engine) Check(ctx context.Context, longURL string) *monitor.ProbeOutcome {
	ctx, cancel := context.WithTimeout(ctx, e.checkTimeout)
	defer cancel()

	start := time.Now()

	if err := e.limiter.Wait(ctx); err != nil {
		return &monitor.ProbeOutcome{
			StatusCode:   408,
			LatencyMs:    int(time.Since(start).Milliseconds()),
			IsHealthy:    false,
			HealthStatus: monitor.StatusDown,
			ErrorMessage: err.Error(),
			CheckedAt:    time.Now().UTC(),
		}
	}

	ua := userAgents[rand.Intn(len(userAgents))]

	status, kind, err := e.do(ctx, http.MethodHead, longURL, ua)
	if err == nil && botChallengeStatuses[status] {
		time.Sleep(time.Duration(100+rand.Intn(200)) * time.Millisecond)
		status, kind, err = e.do(ctx, http.MethodGet, longURL, ua)
	}

	latencyMs := int(time.Since(start).Milliseconds())

	if err != nil {
		statusCode := 0
		if kind == errKindDeadlineExceeded {
			statusCode = 408
		}
		return &monitor.ProbeOutcome{
			StatusCode:   statusCode,
			LatencyMs:    latencyMs,
			IsHealthy:    false,
			HealthStatus: monitor.StatusDown,
			ErrorMessage: err.Error(),
			CheckedAt:    time.Now().UTC(),
		}
	}

	return classify(status, latencyMs, e.degradedThresholdMs)
}

// classify is the pure total function behind the status/latency mapping.
func classify(statusCode, latencyMs int, degradedThresholdMs int64) *monitor.ProbeOutcome {
	isHealthy := statusCode >= 200 && statusCode < 400

	health := monitor.StatusDown
	switch {
	case !isHealthy:
		health = monitor.StatusDown
	case int64(latencyMs) > degradedThresholdMs:
		health = monitor.StatusDegraded
	default:
		health = monitor.StatusUp
	}

	return &monitor.ProbeOutcome{
		StatusCode:   statusCode,
		LatencyMs:    latencyMs,
		IsHealthy:    isHealthy,
		HealthStatus: health,
		CheckedAt:    time.Now().UTC(),
	}
}

func (e *Engine) do(ctx context.Context, method, url string, ua userAgent) (int, errKind, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, errKindTransport, err
	}
	applyHeaders(req, ua)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, errKindDeadlineExceeded, err
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, errKindDeadlineExceeded, err
		}
		return 0, errKindTransport, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, errKindNone, nil
}

// applyHeaders composes the browser-style header set.
func applyHeaders(req *http.Request, ua userAgent) {
	req.Header.Set("User-Agent", ua.value)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	if !ua.chromium {
		return
	}

	req.Header.Set("Sec-CH-UA", `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`)
	req.Header.Set("Sec-CH-UA-Mobile", "?0")
	req.Header.Set("Sec-CH-UA-Platform", `"`+ua.platform+`"`)
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
}
