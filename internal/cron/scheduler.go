package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"netgiropay/internal/config"
)

// Reconciler re-checks AUTHORIZED payments against the provider.
type Reconciler interface {
	ReconcileAuthorized(ctx context.Context, limit int) (int, error)
}

// Scheduler manages all cron jobs.
type Scheduler struct {
	cron       *cron.Cron
	cfg        config.ReconcileConfig
	reconciler Reconciler
	logger     *zap.Logger
	jobTimeout time.Duration
}

// New creates a new cron scheduler.
func New(cfg config.ReconcileConfig, reconciler Reconciler, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cfg:        cfg,
		reconciler: reconciler,
		logger:     logger,
		jobTimeout: 5 * time.Minute,
	}
}

// Start registers and starts all cron jobs. An empty schedule disables
// reconciliation.
func (s *Scheduler) Start() error {
	if s.cfg.Schedule == "" {
		s.logger.Info("Netgíró reconciliation disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.logger.Debug("Running: reconcile authorized netgiro payments")
		s.reconcileAuthorized()
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Cron scheduler started", zap.String("reconcile_schedule", s.cfg.Schedule))
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) reconcileAuthorized() {
	defer s.recoverFromPanic("reconcileAuthorized")

	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	cancelled, err := s.reconciler.ReconcileAuthorized(ctx, s.cfg.Limit)
	if err != nil {
		s.logger.Error("Netgíró reconciliation failed", zap.Error(err))
		return
	}
	if cancelled > 0 {
		s.logger.Info("Netgíró reconciliation cancelled orders", zap.Int("count", cancelled))
	}
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}
