// Package roles synchronizes milestone role assignments with current solve
// totals. Each server configures its own ladder of roles; members hold at
// most the single highest milestone they have reached.
package roles

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"practicebot/internal/gateway"
	"practicebot/internal/storage"
	logx "practicebot/pkg/logx"
)

// Milestone grants RoleID once a member has solved at least MinSolved
// problems in total.
type Milestone struct {
	RoleID    int64
	MinSolved int
}

// Config maps server IDs to their milestone ladder. Servers without an
// entry are skipped by the sync.
type Config struct {
	Milestones map[int64][]Milestone
}

// Store is the slice of the persistence layer role sync needs.
type Store interface {
	ServerMembers(ctx context.Context, serverID int64) ([]int64, error)
	User(ctx context.Context, id int64) (storage.User, bool, error)
}

// Gateway is the slice of the messaging gateway role sync needs.
type Gateway interface {
	MemberRoles(ctx context.Context, serverID, userID int64) ([]int64, error)
	AddMemberRole(ctx context.Context, serverID, userID, roleID int64) error
	RemoveMemberRole(ctx context.Context, serverID, userID, roleID int64) error
}

type Service struct {
	cfg   Config
	store Store
	gw    Gateway
	log   logx.Logger
}

func New(cfg Config, store Store, gw Gateway, log logx.Logger) *Service {
	// Ladders sorted ascending so the last reached entry is the highest.
	for id, ladder := range cfg.Milestones {
		sorted := append([]Milestone(nil), ladder...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinSolved < sorted[j].MinSolved })
		cfg.Milestones[id] = sorted
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, gw: gw, log: log}
}

// UpdateRoles aligns every linked member's milestone role with their current
// solve total. Failures are isolated per member.
func (s *Service) UpdateRoles(ctx context.Context, server storage.Server) error {
	ladder := s.cfg.Milestones[server.ID]
	if len(ladder) == 0 {
		return nil
	}

	members, err := s.store.ServerMembers(ctx, server.ID)
	if err != nil {
		return fmt.Errorf("member list (server %d): %w", server.ID, err)
	}

	for _, userID := range members {
		if err := s.syncMember(ctx, server.ID, userID, ladder); err != nil {
			s.log.Warn("role sync failed", logx.Int64("user", userID), logx.Int64("server", server.ID), logx.Err(err))
		}
	}
	return nil
}

func (s *Service) syncMember(ctx context.Context, serverID, userID int64, ladder []Milestone) error {
	u, ok, err := s.store.User(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	total := u.SolvedEasy + u.SolvedMedium + u.SolvedHard

	var want int64
	for _, m := range ladder {
		if total >= m.MinSolved {
			want = m.RoleID
		}
	}

	current, err := s.gw.MemberRoles(ctx, serverID, userID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			// Member left between the store read and the gateway call;
			// the monthly sweep unlinks them.
			return nil
		}
		return err
	}

	has := func(roleID int64) bool {
		for _, r := range current {
			if r == roleID {
				return true
			}
		}
		return false
	}

	for _, m := range ladder {
		switch {
		case m.RoleID == want && !has(m.RoleID):
			if err := s.gw.AddMemberRole(ctx, serverID, userID, m.RoleID); err != nil {
				return err
			}
			s.log.Info("milestone role granted", logx.Int64("user", userID), logx.Int64("server", serverID), logx.Int64("role", m.RoleID))
		case m.RoleID != want && has(m.RoleID):
			if err := s.gw.RemoveMemberRole(ctx, serverID, userID, m.RoleID); err != nil {
				return err
			}
			s.log.Debug("milestone role revoked", logx.Int64("user", userID), logx.Int64("server", serverID), logx.Int64("role", m.RoleID))
		}
	}
	return nil
}
