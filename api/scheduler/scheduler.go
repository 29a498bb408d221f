package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/linesmerrill/planner-alerts/databases"
)

// Defaults for the push token pruning job.
const (
	DefaultPruneSpec   = "0 3 * * *"
	DefaultTokenMaxAge = 90 * 24 * time.Hour
)

// Scheduler runs periodic maintenance jobs for the alert API
type Scheduler struct {
	cron   *cron.Cron
	Tokens databases.PushTokenDatabase
	MaxAge time.Duration
	Spec   string
	now    func() time.Time
}

// NewScheduler creates a new scheduler instance
func NewScheduler(tokens databases.PushTokenDatabase) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		Tokens: tokens,
		MaxAge: DefaultTokenMaxAge,
		Spec:   DefaultPruneSpec,
		now:    time.Now,
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		_, _ = s.PruneStaleTokens(ctx)
	})
	if err != nil {
		zap.S().Errorw("failed to register token prune job", "spec", s.Spec, "error", err)
		return err
	}
	s.cron.Start()
	zap.S().Infow("maintenance scheduler started", "prune_spec", s.Spec)
	return nil
}

// Stop waits for running jobs and stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("maintenance scheduler stopped")
}

// PruneStaleTokens deletes device tokens that were not re-registered within MaxAge.
// Installations re-register on every session, so an old token belongs to an app that is
// gone or was never opened again.
func (s *Scheduler) PruneStaleTokens(ctx context.Context) (int64, error) {
	before := s.now().UTC().Add(-s.MaxAge)
	n, err := s.Tokens.DeleteStale(ctx, before)
	if err != nil {
		zap.S().Errorw("failed to prune stale push tokens", "before", before, "error", err)
		return 0, err
	}
	zap.S().Infow("pruned stale push tokens", "count", n, "before", before)
	return n, nil
}
