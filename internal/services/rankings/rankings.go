// Package rankings recomputes per-server standings over the most recently
// completed window and announces the winners to the server's leaderboard
// channels.
package rankings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"practicebot/internal/gateway"
	"practicebot/internal/storage"
	logx "practicebot/pkg/logx"
)

const (
	// rankDepth is how many standings get a persisted rank per scope.
	rankDepth = 10
	// winnerCount is how many entries a winner announcement carries.
	winnerCount = 3

	embedColor = 0xFFA116
)

var medals = [...]string{"🥇", "🥈", "🥉"}

// Store is the slice of the persistence layer rankings needs.
type Store interface {
	TopByScope(ctx context.Context, serverID int64, scope storage.Scope, limit int) ([]storage.User, error)
	SetRank(ctx context.Context, userID, serverID int64, scope storage.Scope, rank int) error
	Channels(ctx context.Context, serverID int64, purpose string) ([]int64, error)
}

// Sender delivers announcement embeds.
type Sender interface {
	SendEmbed(ctx context.Context, channelID int64, e gateway.Embed) error
}

type Service struct {
	store Store
	gw    Sender
	log   logx.Logger
}

func New(store Store, gw Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, gw: gw, log: log}
}

// UpdateRankings recomputes the top standings for one server and scope and
// persists each user's rank on their link entry. A failed rank write is
// logged and skipped; the remaining ranks are still written.
func (s *Service) UpdateRankings(ctx context.Context, server storage.Server, now time.Time, scope storage.Scope) error {
	top, err := s.store.TopByScope(ctx, server.ID, scope, rankDepth)
	if err != nil {
		return fmt.Errorf("rank query (server %d, %s): %w", server.ID, scope, err)
	}
	for i, u := range top {
		if err := s.store.SetRank(ctx, u.ID, server.ID, scope, i+1); err != nil {
			s.log.Warn("rank write failed", logx.Int64("user", u.ID), logx.Int64("server", server.ID), logx.String("scope", string(scope)), logx.Err(err))
		}
	}
	s.log.Debug("rankings updated", logx.Int64("server", server.ID), logx.String("scope", string(scope)), logx.Int("ranked", len(top)))
	return nil
}

// SendLeaderboardWinners announces the completed window's top solvers to the
// server's leaderboard channels. A server without winners or without
// registered channels is skipped quietly; per-channel delivery failures are
// logged and do not abort the announcement for the remaining channels.
func (s *Service) SendLeaderboardWinners(ctx context.Context, server storage.Server, scope storage.Scope) error {
	winners, err := s.store.TopByScope(ctx, server.ID, scope, winnerCount)
	if err != nil {
		return fmt.Errorf("winner query (server %d, %s): %w", server.ID, scope, err)
	}
	if len(winners) == 0 {
		return nil
	}

	channels, err := s.store.Channels(ctx, server.ID, storage.PurposeLeaderboard)
	if err != nil {
		return fmt.Errorf("channel lookup (server %d): %w", server.ID, err)
	}
	if len(channels) == 0 {
		return nil
	}

	embed := winnersEmbed(scope, winners)
	for _, ch := range channels {
		if err := s.gw.SendEmbed(ctx, ch, embed); err != nil {
			if errors.Is(err, gateway.ErrForbidden) || errors.Is(err, gateway.ErrNotFound) {
				s.log.Warn("winner announcement skipped", logx.Int64("server", server.ID), logx.Int64("channel", ch), logx.Err(err))
				continue
			}
			s.log.Warn("winner announcement failed", logx.Int64("server", server.ID), logx.Int64("channel", ch), logx.Err(err))
		}
	}
	return nil
}

func winnersEmbed(scope storage.Scope, winners []storage.User) gateway.Embed {
	title := "🏆 Yesterday's Leaderboard Winners"
	window := "yesterday"
	solved := func(u storage.User) int { return u.YesterdaySolved }
	if scope == storage.ScopeWeekly {
		title = "🏆 Last Week's Leaderboard Winners"
		window = "last week"
		solved = func(u storage.User) int { return u.LastWeekSolved }
	}

	e := gateway.Embed{
		Title:  title,
		Color:  embedColor,
		Footer: fmt.Sprintf("Problems solved %s", window),
	}
	for i, u := range winners {
		medal := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			medal = medals[i]
		}
		e.Fields = append(e.Fields, gateway.EmbedField{
			Name:  fmt.Sprintf("%s %s", medal, u.Handle),
			Value: fmt.Sprintf("%d solved", solved(u)),
		})
	}
	return e
}
