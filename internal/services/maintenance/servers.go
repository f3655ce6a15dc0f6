package maintenance

import (
	"context"
	"time"

	"practicebot/internal/storage"
	logx "practicebot/pkg/logx"
)

// maintainServers walks every server one at a time (bounded load on the
// persistence layer) and applies the flag-gated steps in fixed order:
// timestamp, daily rankings + winners, weekly rankings + winners, midday role
// sync. A failure stops the remaining steps for that server only.
func (s *Service) maintainServers(ctx context.Context, servers []storage.Server, now time.Time, b Boundaries, log logx.Logger) {
	for _, server := range servers {
		if err := s.maintainServer(ctx, server, now, b); err != nil {
			log.Warn("server maintenance failed", logx.Int64("server", server.ID), logx.Err(err))
		}
	}
}

func (s *Service) maintainServer(ctx context.Context, server storage.Server, now time.Time, b Boundaries) error {
	if err := s.store.TouchServer(ctx, server.ID, now); err != nil {
		return err
	}

	if b.Daily {
		if err := s.rankings.UpdateRankings(ctx, server, now, storage.ScopeDaily); err != nil {
			return err
		}
		if err := s.rankings.SendLeaderboardWinners(ctx, server, storage.ScopeDaily); err != nil {
			return err
		}
	}

	if b.Weekly {
		if err := s.rankings.UpdateRankings(ctx, server, now, storage.ScopeWeekly); err != nil {
			return err
		}
		if err := s.rankings.SendLeaderboardWinners(ctx, server, storage.ScopeWeekly); err != nil {
			return err
		}
	}

	if b.Midday {
		if err := s.roles.UpdateRoles(ctx, server); err != nil {
			return err
		}
	}
	return nil
}

// broadcastDaily renders the shared artifact once and hands it to the
// broadcaster for delivery to every registered target across all servers.
func (s *Service) broadcastDaily(ctx context.Context, servers []storage.Server, log logx.Logger) {
	embed, err := s.questions.RenderDailyQuestion(ctx)
	if err != nil {
		log.Error("daily question render failed; broadcast skipped", logx.Err(err))
		return
	}

	rep := s.bcast.SendDailyQuestion(ctx, servers, embed)
	log.Info("daily question broadcast finished",
		logx.Int("attempts", rep.Attempts),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", rep.Failed),
	)
}
