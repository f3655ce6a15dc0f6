package maintenance

import (
	"context"
	"fmt"
	"time"

	"practicebot/internal/storage"
	logx "practicebot/pkg/logx"
)

// refreshStats refreshes every known user's rolling statistics as a bounded
// concurrent fan-out. Each user is an independent unit of work; individual
// failures are logged and swallowed, and the batch always completes. Only a
// failed enumeration aborts the pass.
func (s *Service) refreshStats(ctx context.Context, now time.Time, b Boundaries, log logx.Logger) error {
	users, err := s.store.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(users) == 0 {
		return nil
	}

	start := time.Now()
	outcomes := forEach(ctx, s.cfg.StatsWorkers, users,
		func(u storage.User) int64 { return u.ID },
		func(ctx context.Context, u storage.User) error {
			return s.stats.UpdateStats(ctx, u, now, b.Daily, b.Weekly)
		})

	for _, o := range outcomes {
		if o.Err == nil {
			continue
		}
		if o.Stack != "" {
			log.Error("stats refresh panicked", logx.Int64("user", o.ID), logx.Err(o.Err), logx.Stack(o.Stack))
			continue
		}
		log.Warn("stats refresh failed", logx.Int64("user", o.ID), logx.Err(o.Err))
	}

	log.Info("stats refresh finished",
		logx.Int("users", len(users)),
		logx.Int("failed", failureCount(outcomes)),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}
