// Package stats refreshes each user's rolling solve statistics from the
// practice platform and rotates the daily/weekly windows on reset
// boundaries.
package stats

import (
	"context"
	"fmt"
	"time"

	"practicebot/internal/storage"
	logx "practicebot/pkg/logx"
)

// Score weights per difficulty.
const (
	scoreEasy   = 1
	scoreMedium = 3
	scoreHard   = 7
)

// Profile is a user's current solve counts as reported by the platform.
type Profile struct {
	SolvedEasy   int `json:"solved_easy"`
	SolvedMedium int `json:"solved_medium"`
	SolvedHard   int `json:"solved_hard"`
}

func (p Profile) Total() int { return p.SolvedEasy + p.SolvedMedium + p.SolvedHard }

// Source looks up a user's current platform profile.
type Source interface {
	Profile(ctx context.Context, handle string) (Profile, error)
}

// UserStore persists refreshed users.
type UserStore interface {
	SaveUser(ctx context.Context, u storage.User) error
}

type Service struct {
	store UserStore
	src   Source
	log   logx.Logger
}

func New(store UserStore, src Source, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, src: src, log: log}
}

// UpdateStats refreshes one user: pull the current profile, fold the newly
// solved problems into the live daily/weekly windows, and on a reset
// boundary rotate the live window into its completed-window column. The
// daily rotation also advances or breaks the streak.
func (s *Service) UpdateStats(ctx context.Context, u storage.User, now time.Time, daily, weekly bool) error {
	p, err := s.src.Profile(ctx, u.Handle)
	if err != nil {
		return fmt.Errorf("profile %q: %w", u.Handle, err)
	}

	gained := p.Total() - (u.SolvedEasy + u.SolvedMedium + u.SolvedHard)
	if gained < 0 {
		// Platform-side reset or handle reuse; start counting from the
		// new totals instead of going negative.
		s.log.Warn("solve count went backwards", logx.Int64("user", u.ID), logx.String("handle", u.Handle), logx.Int("delta", gained))
		gained = 0
	}

	u.SolvedEasy = p.SolvedEasy
	u.SolvedMedium = p.SolvedMedium
	u.SolvedHard = p.SolvedHard
	u.Score = p.SolvedEasy*scoreEasy + p.SolvedMedium*scoreMedium + p.SolvedHard*scoreHard
	u.DailySolved += gained
	u.WeeklySolved += gained

	if daily {
		u.YesterdaySolved = u.DailySolved
		u.DailySolved = 0
		if u.YesterdaySolved > 0 {
			u.Streak++
		} else {
			u.Streak = 0
		}
	}
	if weekly {
		u.LastWeekSolved = u.WeeklySolved
		u.WeeklySolved = 0
	}
	u.LastUpdated = now.UTC()

	return s.store.SaveUser(ctx, u)
}
