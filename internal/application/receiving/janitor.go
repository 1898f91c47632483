package receiving

import (
	"context"
	"time"

	"github.com/erp/receiving/internal/infrastructure/scheduler"
	"go.uber.org/zap"
)

// JournalPurger deletes receipt attempts older than a cutoff
type JournalPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor holds the periodic housekeeping for the intake service
type Janitor struct {
	sessions    *SessionRegistry
	journal     JournalPurger
	idleTimeout time.Duration
	retention   time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// JanitorConfig selects which housekeeping runs. A zero duration disables its job.
type JanitorConfig struct {
	IdleTimeout      time.Duration
	JournalRetention time.Duration
}

// NewJanitor creates a janitor. journal may be nil when no journal is kept.
func NewJanitor(sessions *SessionRegistry, journal JournalPurger, cfg JanitorConfig, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		sessions:    sessions,
		journal:     journal,
		idleTimeout: cfg.IdleTimeout,
		retention:   cfg.JournalRetention,
		now:         time.Now,
		logger:      logger,
	}
}

// EvictIdleSessions closes sessions left between orders for longer than the idle timeout
func (j *Janitor) EvictIdleSessions(ctx context.Context) error {
	evicted := j.sessions.EvictIdle(ctx, j.now().Add(-j.idleTimeout))
	if evicted > 0 {
		j.logger.Info("Evicted idle receiving sessions",
			zap.Int("evicted", evicted),
			zap.Int("remaining", j.sessions.Len()),
		)
	}
	return nil
}

// PurgeJournal deletes receipt attempts older than the retention period
func (j *Janitor) PurgeJournal(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)
	purged, err := j.journal.PurgeBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if purged > 0 {
		j.logger.Info("Purged receipt journal",
			zap.Int64("rows", purged),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}

// Jobs returns the enabled housekeeping jobs
func (j *Janitor) Jobs() []scheduler.Job {
	var jobs []scheduler.Job
	if j.idleTimeout > 0 {
		jobs = append(jobs, scheduler.NewJob("evict_idle_sessions", j.EvictIdleSessions))
	}
	if j.retention > 0 && j.journal != nil {
		jobs = append(jobs, scheduler.NewJob("purge_receipt_journal", j.PurgeJournal))
	}
	return jobs
}
