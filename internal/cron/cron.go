// Package cron schedules the maintenance jobs.
package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dnspotify/server/internal/service"
	"github.com/dnspotify/server/pkg/logger"
)

// Default schedules, standard five-field cron syntax.
const (
	DefaultReconcileSpec = "*/15 * * * *"
	DefaultCleanupSpec   = "0 3 * * *"
	DefaultSweepSpec     = "*/10 * * * *"
)

const jobTimeout = 30 * time.Minute

// Maintainer runs the individual maintenance tasks.
type Maintainer interface {
	ReconcileLikeCounts(ctx context.Context) (int64, error)
	CleanupNotifications(ctx context.Context) (int64, error)
	PruneSessions(ctx context.Context) (int64, error)
	RunAll(ctx context.Context) (*service.MaintenanceStats, error)
}

// Config holds the job schedules. Empty specs use the defaults.
type Config struct {
	ReconcileSpec string
	CleanupSpec   string
	SweepSpec     string
}

// CronManager owns the scheduler and its jobs.
type CronManager struct {
	cron  *cron.Cron
	tasks Maintainer
	cfg   Config
	log   logger.Logger
}

// NewCronManager creates a manager. Jobs are added by Start.
func NewCronManager(tasks Maintainer, cfg Config, log logger.Logger) *CronManager {
	if cfg.ReconcileSpec == "" {
		cfg.ReconcileSpec = DefaultReconcileSpec
	}
	if cfg.CleanupSpec == "" {
		cfg.CleanupSpec = DefaultCleanupSpec
	}
	if cfg.SweepSpec == "" {
		cfg.SweepSpec = DefaultSweepSpec
	}
	if log == nil {
		log = logger.L()
	}
	return &CronManager{
		cron:  cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		tasks: tasks,
		cfg:   cfg,
		log:   log.WithFields(logger.String("component", "cron")),
	}
}

// Start registers the jobs and starts the scheduler. A bad spec fails
// before anything runs.
func (m *CronManager) Start() error {
	if _, err := m.cron.AddFunc(m.cfg.ReconcileSpec, m.job("reconcile_likes", m.tasks.ReconcileLikeCounts)); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc(m.cfg.CleanupSpec, m.job("cleanup_notifications", m.tasks.CleanupNotifications)); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc(m.cfg.SweepSpec, m.job("sweep_sessions", m.tasks.PruneSessions)); err != nil {
		return err
	}

	m.cron.Start()
	m.log.Info("cron manager started",
		logger.String("reconcile_spec", m.cfg.ReconcileSpec),
		logger.String("cleanup_spec", m.cfg.CleanupSpec),
		logger.String("sweep_spec", m.cfg.SweepSpec),
	)
	return nil
}

// Run starts the scheduler and stops it when ctx is done.
func (m *CronManager) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (m *CronManager) Stop() {
	<-m.cron.Stop().Done()
	m.log.Info("cron manager stopped")
}

// Entries returns the number of scheduled jobs.
func (m *CronManager) Entries() int {
	return len(m.cron.Entries())
}

// RunNow runs every task immediately.
func (m *CronManager) RunNow(ctx context.Context) (*service.MaintenanceStats, error) {
	m.log.Info("running maintenance now")
	return m.tasks.RunAll(ctx)
}

func (m *CronManager) job(name string, fn func(context.Context) (int64, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		n, err := fn(ctx)
		if err != nil {
			m.log.Error("job failed", logger.String("job", name), logger.Error(err))
			return
		}
		m.log.Info("job finished",
			logger.String("job", name),
			logger.Int64("rows", n),
			logger.Duration("took", time.Since(start)),
		)
	}
}
