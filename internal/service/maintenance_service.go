package service

import (
	"context"
	"errors"
	"time"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/repository"
	"github.com/dnspotify/server/pkg/logger"
	"github.com/dnspotify/server/pkg/telemetry"
)

// DefaultNotificationRetention is how long read notifications are kept.
const DefaultNotificationRetention = 90 * 24 * time.Hour

// Pruner drops in-memory state whose session is gone. *session.Manager
// and *PlayerService implement it.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// MaintenanceService repairs denormalized counters, prunes old rows and
// sweeps per-session memory.
type MaintenanceService struct {
	songs         repository.SongRepository
	notifications repository.NotificationRepository
	pruners       []Pruner
	retention     time.Duration
	pub           EventPublisher
	metrics       *telemetry.Metrics
	log           logger.Logger
	now           func() time.Time
}

// NewMaintenanceService creates a MaintenanceService. A zero retention
// uses DefaultNotificationRetention.
func NewMaintenanceService(songs repository.SongRepository, notifications repository.NotificationRepository,
	retention time.Duration, pub EventPublisher, metrics *telemetry.Metrics, log logger.Logger) *MaintenanceService {
	if retention <= 0 {
		retention = DefaultNotificationRetention
	}
	return &MaintenanceService{
		songs:         songs,
		notifications: notifications,
		retention:     retention,
		pub:           orPublisher(pub),
		metrics:       metrics,
		log:           orLogger(log, "maintenance"),
		now:           time.Now,
	}
}

// MaintenanceStats summarizes one maintenance run.
type MaintenanceStats struct {
	StartTime            time.Time     `json:"start_time"`
	Duration             time.Duration `json:"duration"`
	RepairedSongs        int64         `json:"repaired_songs"`
	DeletedNotifications int64         `json:"deleted_notifications"`
	PrunedSessions       int64         `json:"pruned_sessions"`
	Errors               []string      `json:"errors,omitempty"`
}

// ReconcileLikeCounts sets every song's likesCount to the number of its
// like edges and returns how many songs were off.
func (s *MaintenanceService) ReconcileLikeCounts(ctx context.Context) (int64, error) {
	start := s.now()
	n, err := s.songs.ReconcileLikeCounts(ctx)
	if err != nil {
		s.log.WithContext(ctx).Error("reconcile like counts failed", logger.Error(err))
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.LikesReconciled.Add(ctx, n)
	}
	if n > 0 {
		notify(ctx, s.log, s.pub, domain.TopicSongs, domain.EventSongsChanged, map[string]int64{"repaired": n})
	}
	s.log.WithContext(ctx).Info("like counts reconciled",
		logger.Int64("repaired", n),
		logger.Duration("took", s.now().Sub(start)),
	)
	return n, nil
}

// CleanupNotifications deletes read notifications older than the retention.
func (s *MaintenanceService) CleanupNotifications(ctx context.Context) (int64, error) {
	before := s.now().Add(-s.retention)
	n, err := s.notifications.DeleteReadBefore(ctx, before)
	if err != nil {
		s.log.WithContext(ctx).Error("notification cleanup failed", logger.Error(err))
		return 0, err
	}
	s.log.WithContext(ctx).Info("old notifications deleted",
		logger.Int64("deleted", n),
		logger.String("before", before.Format(time.RFC3339)),
	)
	return n, nil
}

// AddPruners registers in-memory state to sweep in PruneSessions.
func (s *MaintenanceService) AddPruners(p ...Pruner) *MaintenanceService {
	s.pruners = append(s.pruners, p...)
	return s
}

// PruneSessions runs every pruner and returns how many entries went. A
// failing pruner does not stop the others.
func (s *MaintenanceService) PruneSessions(ctx context.Context) (int64, error) {
	var total int64
	var errs []error
	for _, p := range s.pruners {
		n, err := p.Prune(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += int64(n)
	}
	err := errors.Join(errs...)
	if err != nil {
		s.log.WithContext(ctx).Error("session sweep failed", logger.Error(err))
	}
	if total > 0 {
		s.log.WithContext(ctx).Info("idle session state pruned", logger.Int64("pruned", total))
	}
	return total, err
}

// RunAll runs every maintenance task. A failing task does not stop the
// others; their errors are joined.
func (s *MaintenanceService) RunAll(ctx context.Context) (*MaintenanceStats, error) {
	stats := &MaintenanceStats{StartTime: s.now()}
	var errs []error

	if n, err := s.ReconcileLikeCounts(ctx); err != nil {
		errs = append(errs, err)
		stats.Errors = append(stats.Errors, "reconcile: "+err.Error())
	} else {
		stats.RepairedSongs = n
	}
	if n, err := s.CleanupNotifications(ctx); err != nil {
		errs = append(errs, err)
		stats.Errors = append(stats.Errors, "cleanup: "+err.Error())
	} else {
		stats.DeletedNotifications = n
	}
	if n, err := s.PruneSessions(ctx); err != nil {
		errs = append(errs, err)
		stats.Errors = append(stats.Errors, "sweep: "+err.Error())
	} else {
		stats.PrunedSessions = n
	}

	stats.Duration = s.now().Sub(stats.StartTime)
	return stats, errors.Join(errs...)
}
