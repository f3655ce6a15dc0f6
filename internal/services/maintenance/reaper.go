package maintenance

import (
	"context"
	"time"

	"practicebot/internal/storage"
	logx "practicebot/pkg/logx"
)

// reapInactive is the monthly sweep. For every server except the
// global-leaderboard sentinel it consults the gateway membership view,
// unlinks users the community no longer contains, and deletes the server
// record when the bot itself is gone. Afterwards users whose only remaining
// link is the global leaderboard are unlinked from it and deleted. Every
// unlink/delete is isolated; a failure on one entity never halts the sweep.
func (s *Service) reapInactive(ctx context.Context, log logx.Logger) {
	start := time.Now()
	var unlinked, deletedUsers, deletedServers int

	servers, err := s.store.Servers(ctx)
	if err != nil {
		log.Error("reaper: list servers failed; sweep aborted", logx.Err(err))
		return
	}

	for _, server := range servers {
		if server.ID == storage.GlobalLeaderboardID {
			continue
		}

		membership, err := s.gw.GuildMembership(ctx, server.ID)
		if err != nil {
			log.Warn("reaper: membership lookup failed", logx.Int64("server", server.ID), logx.Err(err))
			continue
		}
		deleteServer := !membership.Present

		members, err := s.store.ServerMembers(ctx, server.ID)
		if err != nil {
			log.Warn("reaper: member list failed", logx.Int64("server", server.ID), logx.Err(err))
			continue
		}
		for _, userID := range members {
			if !deleteServer && membership.Has(userID) {
				continue
			}
			if err := s.store.Unlink(ctx, userID, server.ID); err != nil {
				log.Warn("reaper: unlink failed", logx.Int64("user", userID), logx.Int64("server", server.ID), logx.Err(err))
				continue
			}
			unlinked++
			log.Info("reaper: user unlinked from server", logx.Int64("user", userID), logx.Int64("server", server.ID))
		}

		if deleteServer {
			if err := s.store.DeleteServer(ctx, server.ID); err != nil {
				log.Warn("reaper: server delete failed", logx.Int64("server", server.ID), logx.Err(err))
				continue
			}
			deletedServers++
			log.Info("reaper: server deleted", logx.Int64("server", server.ID))
		}
	}

	users, err := s.store.Users(ctx)
	if err != nil {
		log.Error("reaper: list users failed; user sweep skipped", logx.Err(err))
		return
	}
	for _, u := range users {
		links, err := s.store.Links(ctx, u.ID)
		if err != nil {
			log.Warn("reaper: link lookup failed", logx.Int64("user", u.ID), logx.Err(err))
			continue
		}
		if !onlyGlobalLink(links) {
			continue
		}
		if err := s.store.Unlink(ctx, u.ID, storage.GlobalLeaderboardID); err != nil {
			log.Warn("reaper: global unlink failed", logx.Int64("user", u.ID), logx.Err(err))
			continue
		}
		if err := s.store.DeleteUser(ctx, u.ID); err != nil {
			log.Warn("reaper: user delete failed", logx.Int64("user", u.ID), logx.Err(err))
			continue
		}
		deletedUsers++
		log.Info("reaper: user deleted", logx.Int64("user", u.ID))
	}

	log.Info("reaper sweep finished",
		logx.Int("unlinked", unlinked),
		logx.Int("deleted_users", deletedUsers),
		logx.Int("deleted_servers", deletedServers),
		logx.Duration("took", time.Since(start)),
	)
}

// onlyGlobalLink reports whether no community link remains besides the
// global leaderboard. Such users are no longer reachable through any server
// and are eligible for deletion.
func onlyGlobalLink(links []storage.DisplayInfo) bool {
	for _, l := range links {
		if l.ServerID != storage.GlobalLeaderboardID {
			return false
		}
	}
	return len(links) > 0
}
