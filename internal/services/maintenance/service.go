package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"practicebot/internal/gateway"
	"practicebot/internal/services/broadcast"
	"practicebot/internal/storage"
	logx "practicebot/pkg/logx"
)

// Config controls the maintenance engine.
type Config struct {
	// StatsWorkers bounds the stats-refresh fan-out (default 8).
	StatsWorkers int
	// BoundaryGuard enables the persisted once-per-boundary watermark.
	// Off by default: the engine then relies on the timer firing at most
	// once per boundary-matching minute, and a duplicate tick repeats the
	// boundary actions.
	BoundaryGuard bool
}

// MembershipSource is the slice of the messaging gateway the reaper needs.
type MembershipSource interface {
	GuildMembership(ctx context.Context, serverID int64) (gateway.Membership, error)
}

// StatsUpdater refreshes one user's rolling statistics.
type StatsUpdater interface {
	UpdateStats(ctx context.Context, u storage.User, now time.Time, daily, weekly bool) error
}

// Rankings recomputes standings and announces winners for one server.
type Rankings interface {
	UpdateRankings(ctx context.Context, server storage.Server, now time.Time, scope storage.Scope) error
	SendLeaderboardWinners(ctx context.Context, server storage.Server, scope storage.Scope) error
}

// RoleSyncer aligns a server's role assignments with current standings.
type RoleSyncer interface {
	UpdateRoles(ctx context.Context, server storage.Server) error
}

// QuestionRenderer produces the shared daily artifact, rendered once per run.
type QuestionRenderer interface {
	RenderDailyQuestion(ctx context.Context) (gateway.Embed, error)
}

// Broadcaster delivers one artifact to every registered target of the given
// servers, isolating per-target failure.
type Broadcaster interface {
	SendDailyQuestion(ctx context.Context, servers []storage.Server, e gateway.Embed) broadcast.Report
}

// Service is the scheduled maintenance and broadcast engine. It is
// re-entrant: every tick samples the clock through Classify and carries no
// state from previous ticks.
type Service struct {
	cfg       Config
	store     storage.Store
	gw        MembershipSource
	stats     StatsUpdater
	rankings  Rankings
	roles     RoleSyncer
	questions QuestionRenderer
	bcast     Broadcaster
	log       logx.Logger
}

func New(cfg Config, store storage.Store, gw MembershipSource, stats StatsUpdater, rankings Rankings, roles RoleSyncer, questions QuestionRenderer, bcast Broadcaster, log logx.Logger) *Service {
	if cfg.StatsWorkers <= 0 {
		cfg.StatsWorkers = 8
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		gw:        gw,
		stats:     stats,
		rankings:  rankings,
		roles:     roles,
		questions: questions,
		bcast:     bcast,
		log:       log,
	}
}

// RunTick is the engine entry point, invoked on every timer fire.
//
// It returns an error only when a whole pass is impossible (persistence
// unreachable); per-entity failures are logged and isolated so one entity
// never blocks the rest. Callers must not let the returned error prevent the
// next scheduled tick.
func (s *Service) RunTick(ctx context.Context, now time.Time, force Force) error {
	now = now.UTC()
	start := time.Now()
	log := s.log.With(logx.String("run", uuid.NewString()[:8]))

	b := Classify(now, force)
	b = s.applyBoundaryGuard(ctx, now, b, log)

	log.Info("maintenance tick started",
		logx.Time("now", now),
		logx.Bool("daily", b.Daily),
		logx.Bool("weekly", b.Weekly),
		logx.Bool("midday", b.Midday),
		logx.Bool("monthly", b.Monthly),
	)

	if force.UpdateStats {
		if err := s.refreshStats(ctx, now, b, log); err != nil {
			return err
		}
	}

	servers, err := s.store.Servers(ctx)
	if err != nil {
		return fmt.Errorf("list servers: %w", err)
	}

	s.maintainServers(ctx, servers, now, b, log)

	if b.Daily {
		s.broadcastDaily(ctx, servers, log)
		if err := s.rollupAnalytics(ctx, now, log); err != nil {
			log.Error("analytics rollup failed", logx.Err(err))
		}
	}

	if b.Monthly {
		s.reapInactive(ctx, log)
	}

	log.Info("maintenance tick finished", logx.Duration("took", time.Since(start)))
	return nil
}

// applyBoundaryGuard clears boundary flags whose minute was already handled,
// and records the current one. With the guard disabled the flags pass
// through untouched and a duplicate tick repeats boundary work.
func (s *Service) applyBoundaryGuard(ctx context.Context, now time.Time, b Boundaries, log logx.Logger) Boundaries {
	if !s.cfg.BoundaryGuard || !b.Any() {
		return b
	}
	minute := now.Truncate(time.Minute)
	for kind, flag := range map[string]*bool{
		"daily":   &b.Daily,
		"weekly":  &b.Weekly,
		"midday":  &b.Midday,
		"monthly": &b.Monthly,
	} {
		if !*flag {
			continue
		}
		mark, ok, err := s.store.BoundaryMark(ctx, kind)
		if err != nil {
			log.Warn("boundary mark lookup failed; proceeding unguarded", logx.String("kind", kind), logx.Err(err))
			continue
		}
		if ok && !mark.Before(minute) {
			log.Info("boundary already handled; skipping", logx.String("kind", kind), logx.Time("mark", mark))
			*flag = false
			continue
		}
		if err := s.store.PutBoundaryMark(ctx, kind, minute); err != nil {
			log.Warn("boundary mark update failed", logx.String("kind", kind), logx.Err(err))
		}
	}
	return b
}
