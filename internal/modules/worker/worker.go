// Package worker implements the Worker Pool: it drains the Dispatch
// Queue, invokes the Probe Engine, and fans the result out to both Sink
// Adapters independently.
package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"linkwatch/internal/infra"
	"linkwatch/internal/modules/historysink"
	"linkwatch/internal/modules/monitor"
	"linkwatch/internal/modules/probe"
	"linkwatch/internal/modules/scheduler"
)

// Handler binds the Probe Engine and both Sink Adapters to one asynq task
// handler for scheduler.TaskTypeHealthCheck jobs.
type Handler struct {
	engine      *probe.Engine
	monitorRepo monitor.Repository
	historySink historysink.Sink
	rateLimiter *infra.RateLimiter
	logger      *zap.SugaredLogger
}

// NewHandler builds the Worker Pool's task handler. rateLimiter is shared by
// every worker process and keys its counter off one fixed fleet-wide key, not
// the queue name or the individual monitor, so the cap applies fleet-wide.
func NewHandler(engine *probe.Engine, monitorRepo monitor.Repository, historySink historysink.Sink, rateLimiter *infra.RateLimiter, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		engine:      engine,
		monitorRepo: monitorRepo,
		historySink: historySink,
		rateLimiter: rateLimiter,
		logger:      logger.Named("[worker]"),
	}
}

// ProcessTask is the asynq.Handler entrypoint. It returns an error only for a
// malformed payload (wrapped in asynq.SkipRetry) or a rate-limit rejection
// (triggering the queue's retry policy); probe failures are folded into the
// outcome, and sink failures are logged and swallowed.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	job, err := scheduler.UnmarshalJob(task.Payload())
	if err != nil {
		// A malformed payload can never succeed on retry; but asynq has no
		// "discard without retry" return value short of asynq.SkipRetry.
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if allowed, err := h.rateLimiter.Allow(ctx); err != nil {
		h.logger.Warnw("rate limiter unavailable, proceeding without a cap", "error", err)
	} else if !allowed {
		return fmt.Errorf("dispatch rate limit reached, retry later")
	}

	m := &monitor.Monitor{
		ID:           job.LinkID,
		ConvexURLID:  job.ConvexURLID,
		ConvexUserID: job.ConvexUserID,
		LongURL:      job.LongURL,
		ShortURL:     job.ShortURL,
		Environment:  monitor.Environment(job.Environment),
	}

	outcome := h.engine.Check(ctx, m.LongURL)

	if err := h.monitorRepo.ApplyProbeOutcome(ctx, m.ID, outcome); err != nil {
		h.logger.Errorw("state sink update failed",
			"monitor_id", m.ID, "error", err)
	}

	h.historySink.Record(ctx, m, outcome)

	h.logger.Infow("probe complete",
		"monitor_id", m.ID,
		"status", outcome.HealthStatus,
		"status_code", outcome.StatusCode,
		"latency_ms", outcome.LatencyMs,
	)

	return nil
}
