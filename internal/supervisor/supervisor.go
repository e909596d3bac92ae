// Package supervisor composes the Scheduler, Worker Pool, and Admin API
// behind the RUN_SCHEDULER/RUN_WORKER/RUN_API role gates, and owns the
// process-wide graceful shutdown sequence.
package supervisor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"linkwatch/internal"
	"linkwatch/internal/config"
	"linkwatch/internal/modules/scheduler"
	"linkwatch/internal/modules/worker"
)

// Supervisor owns the lifecycle of every role-gated component sharing this
// process's DB pool and queue connections.
type Supervisor struct {
	cfg       *config.Config
	logger    *zap.SugaredLogger
	scheduler *scheduler.Scheduler
	asynqSrv  *asynq.Server
	handler   *worker.Handler
	server    *internal.Server
	httpSrv   *http.Server
}

// New builds a Supervisor. Components the role gates disable are still
// constructed (DI wires the whole graph) but never started.
func New(
	cfg *config.Config,
	logger *zap.SugaredLogger,
	sched *scheduler.Scheduler,
	asynqSrv *asynq.Server,
	handler *worker.Handler,
	server *internal.Server,
) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		logger:    logger.Named("[supervisor]"),
		scheduler: sched,
		asynqSrv:  asynqSrv,
		handler:   handler,
		server:    server,
	}
}

// Run starts every role-gated component and blocks until ctx is cancelled or
// a component fails, then drains each component before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	if s.cfg.RunScheduler {
		go s.scheduler.Start(ctx)
	}

	if s.cfg.RunWorker {
		mux := asynq.NewServeMux()
		mux.HandleFunc(scheduler.TaskTypeHealthCheck, s.handler.ProcessTask)
		go func() {
			if err := s.asynqSrv.Run(mux); err != nil {
				errCh <- fmt.Errorf("asynq server: %w", err)
			}
		}()
	}

	if s.cfg.RunAPI {
		port := s.cfg.Port
		if port[0] != ':' {
			port = ":" + port
		}
		s.httpSrv = &http.Server{Addr: port, Handler: s.server.Router}
		go func() {
			if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		s.logger.Errorw("component failed, shutting down", "error", err)
	}

	s.shutdown()
	return nil
}

// shutdown drains the Scheduler ticker and Worker Pool, then stops the Admin
// API. No in-flight probe is forcibly cancelled; each component drains under
// its own deadline.
func (s *Supervisor) shutdown() {
	if s.cfg.RunScheduler {
		s.scheduler.Stop()
	}
	if s.cfg.RunWorker {
		s.asynqSrv.Shutdown()
	}
	if s.cfg.RunAPI && s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.CheckTimeout())
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorw("http server shutdown error", "error", err)
		}
	}
	s.logger.Info("supervisor drained, exiting")
}
