// Package scheduler implements the leader-less leased scheduler: a
// periodic ticker that scans monitored_links for due rows, leases each one,
// and enqueues a HealthCheckJob per row.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"linkwatch/internal/config"
	"linkwatch/internal/infra"
	"linkwatch/internal/modules/monitor"
	"linkwatch/internal/modules/queue"
)

// HealthCheckJob is the Dispatch Queue payload.
// Immutable for the life of the job.
type HealthCheckJob struct {
	LinkID       string `json:"linkId"`
	ConvexURLID  string `json:"externalUrlId"`
	ConvexUserID string `json:"externalUserId"`
	LongURL      string `json:"longUrl"`
	ShortURL     string `json:"shortUrl"`
	Environment  string `json:"environment"`
}

// TaskTypeHealthCheck is the asynq task type the Worker Pool registers a
// handler for.
const TaskTypeHealthCheck = "healthcheck:probe"

// Scheduler owns the periodic tick that converts due monitors into queued
// jobs.
type Scheduler struct {
	repo     monitor.Repository
	queueSvc queue.Service
	cfg      *config.Config
	logger   *zap.SugaredLogger
	running  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler builds the Scheduler over the Monitor repository and the
// Dispatch Queue.
func NewScheduler(repo monitor.Repository, queueSvc queue.Service, cfg *config.Config, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		repo:     repo,
		queueSvc: queueSvc,
		cfg:      cfg,
		logger:   logger.Named("[scheduler]"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the tick loop until ctx is cancelled or Stop is called. Stop
// lets an in-flight tick finish before returning.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SchedulerInterval())
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop signals the loop to exit after its current tick and blocks until it
// has drained.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) tick(ctx context.Context) {
	// Reentrancy guard: single-process serialization only;
	// cross-process serialization comes from the DB lease.
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous tick still running, skipping")
		return
	}
	defer s.running.Store(false)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("scheduler tick panicked", "panic", r)
		}
	}()

	due, err := s.repo.SelectDue(ctx, time.Now().UTC(), int(s.cfg.SchedulerBatchSize))
	if err != nil {
		s.logger.Errorw("select due monitors failed", "error", err)
		return
	}

	queued := 0
	for _, m := range due {
		if s.processOne(ctx, m) {
			queued++
		} else {
			// A mid-tick failure abandons the remainder of the batch for this
			// tick rather than risking partial lease state.
			break
		}
	}

	s.logger.Infow("tick complete",
		"queued", queued,
		"selected", len(due),
		"tick_duration_ms", time.Since(start).Milliseconds(),
	)
}

// processOne leases then enqueues a single monitor (the Open Question
// resolution documented in DESIGN.md: lease first, enqueue on commit).
func (s *Scheduler) processOne(ctx context.Context, m *monitor.Monitor) bool {
	now := time.Now().UTC()
	nextCheckAt := now.Add(time.Duration(m.IntervalMs) * time.Millisecond)
	lockedUntil := now.Add(s.cfg.LockDuration())

	won, err := s.repo.Lease(ctx, m.ID, now, nextCheckAt, lockedUntil)
	if err != nil {
		s.logger.Errorw("lease failed", "monitor_id", m.ID, "error", err)
		return false
	}
	if !won {
		// Another scheduler replica, or a concurrent inactivation, won the
		// row first; this is not an error.
		return true
	}

	job := HealthCheckJob{
		LinkID:       m.ID,
		ConvexURLID:  m.ConvexURLID,
		ConvexUserID: m.ConvexUserID,
		LongURL:      m.LongURL,
		ShortURL:     m.ShortURL,
		Environment:  string(m.Environment),
	}

	opts := queue.DefaultEnqueueOptions()
	opts.Queue = infra.QueueHealthcheck
	opts.TaskID = fmt.Sprintf("%s-%d", m.ID, now.UnixMilli())

	if _, err := s.queueSvc.Enqueue(ctx, TaskTypeHealthCheck, job, opts); err != nil {
		// The lease already committed; next tick will not re-select this row
		// until next_check_at, a documented minor degradation.
		s.logger.Errorw("enqueue failed after lease won", "monitor_id", m.ID, "error", err)
		return false
	}

	return true
}

// UnmarshalJob decodes a queue payload back into a HealthCheckJob.
func UnmarshalJob(payload []byte) (HealthCheckJob, error) {
	var job HealthCheckJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return job, fmt.Errorf("unmarshal job payload: %w", err)
	}
	return job, nil
}
