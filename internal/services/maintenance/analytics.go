package maintenance

import (
	"context"
	"fmt"
	"time"

	"practicebot/internal/storage"
	logx "practicebot/pkg/logx"
)

// rollupAnalytics snapshots today's global counters into history and resets
// them. The append and the reset commit together, so a crash in between can
// not double-count or drop a day. Invoked once per tick that carries the
// daily flag; the boundary guard (when enabled) keeps a duplicate tick from
// re-invoking it for the same boundary.
func (s *Service) rollupAnalytics(ctx context.Context, now time.Time, log logx.Logger) error {
	a, err := s.store.Analytics(ctx)
	if err != nil {
		return fmt.Errorf("load analytics: %w", err)
	}

	snap := storage.AnalyticsSnapshot{
		// The daily boundary fires at midnight, so the day being closed is
		// the one before now.
		Day:           now.UTC().AddDate(0, 0, -1).Format("2006-01-02"),
		DistinctUsers: len(a.DistinctUsersToday),
		CommandCount:  a.CommandCountToday,
	}
	if err := s.store.SaveAnalyticsRollup(ctx, snap); err != nil {
		return fmt.Errorf("save rollup: %w", err)
	}

	log.Info("analytics rolled over",
		logx.String("day", snap.Day),
		logx.Int("distinct_users", snap.DistinctUsers),
		logx.Int("command_count", snap.CommandCount),
	)
	return nil
}
