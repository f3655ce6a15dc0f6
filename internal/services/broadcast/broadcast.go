package broadcast

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"practicebot/internal/gateway"
	"practicebot/internal/storage"
	logx "practicebot/pkg/logx"
)

type Config struct {
	Workers    int
	RatePerSec int
}

// Target is one delivery destination.
type Target struct {
	ServerID  int64
	ChannelID int64
}

// Report summarizes one broadcast run. The run is complete when every known
// target has had exactly one delivery attempt, regardless of how many
// succeeded.
type Report struct {
	RunID     string
	Attempts  int
	Delivered int
	Failed    int
	Failures  []Target
	Took      time.Duration
}

// Gateway is the slice of the messaging gateway the broadcaster needs.
type Gateway interface {
	ResolveChannel(ctx context.Context, channelID int64) (gateway.Channel, error)
	SendEmbed(ctx context.Context, channelID int64, e gateway.Embed) error
}

// ChannelSource lists a server's registered delivery targets by purpose.
type ChannelSource interface {
	Channels(ctx context.Context, serverID int64, purpose string) ([]int64, error)
}

// Service fans one rendered artifact out to every registered daily-question
// channel. Targets are independent: an unreachable channel or missing
// permission is logged and skipped, never retried within the run, and never
// blocks the remaining targets.
type Service struct {
	cfg     Config
	gw      Gateway
	store   ChannelSource
	log     logx.Logger
	limiter *rate.Limiter
}

func New(cfg Config, gw Gateway, store ChannelSource, log logx.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		gw:      gw,
		store:   store,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// SendDailyQuestion delivers the artifact to every registered target across
// the given servers. No ordering guarantee between targets or servers.
func (s *Service) SendDailyQuestion(ctx context.Context, servers []storage.Server, e gateway.Embed) Report {
	start := time.Now()
	rep := Report{RunID: uuid.NewString()[:8]}
	log := s.log.With(logx.String("run", rep.RunID))

	targets := s.collectTargets(ctx, servers, log)
	rep.Attempts = len(targets)
	log.Info("broadcast started", logx.Int("servers", len(servers)), logx.Int("targets", len(targets)))

	var mu sync.Mutex
	queue := make(chan Target)
	var wg sync.WaitGroup
	wg.Add(s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic in broadcast worker", logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
			}()
			for t := range queue {
				if err := s.sendOne(ctx, t, e, log); err != nil {
					mu.Lock()
					rep.Failed++
					rep.Failures = append(rep.Failures, t)
					mu.Unlock()
				}
			}
		}()
	}
	for _, t := range targets {
		queue <- t
	}
	close(queue)
	wg.Wait()

	rep.Delivered = rep.Attempts - rep.Failed
	rep.Took = time.Since(start)
	if rep.Failed > 0 {
		log.Warn("broadcast finished with failures", logx.Int("attempts", rep.Attempts), logx.Int("failed", rep.Failed), logx.Duration("took", rep.Took))
	} else {
		log.Info("broadcast finished", logx.Int("attempts", rep.Attempts), logx.Duration("took", rep.Took))
	}
	return rep
}

// collectTargets gathers every registered daily-question channel. A server
// whose channel lookup fails contributes no targets but does not abort the
// run (treated like a delivery failure for that server).
func (s *Service) collectTargets(ctx context.Context, servers []storage.Server, log logx.Logger) []Target {
	var targets []Target
	for _, server := range servers {
		channels, err := s.store.Channels(ctx, server.ID, storage.PurposeDailyQuestion)
		if err != nil {
			log.Warn("channel lookup failed; server skipped", logx.Int64("server", server.ID), logx.Err(err))
			continue
		}
		for _, ch := range channels {
			targets = append(targets, Target{ServerID: server.ID, ChannelID: ch})
		}
	}
	return targets
}

// sendOne makes exactly one delivery attempt for one target.
func (s *Service) sendOne(ctx context.Context, t Target, e gateway.Embed, log logx.Logger) error {
	if _, err := s.gw.ResolveChannel(ctx, t.ChannelID); err != nil {
		log.Warn("target not resolvable; skipped", logx.Int64("server", t.ServerID), logx.Int64("channel", t.ChannelID), logx.Err(err))
		return err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := s.gw.SendEmbed(ctx, t.ChannelID, e); err != nil {
		if errors.Is(err, gateway.ErrForbidden) {
			log.Warn("missing permissions on channel; skipped", logx.Int64("server", t.ServerID), logx.Int64("channel", t.ChannelID))
		} else {
			log.Warn("delivery failed", logx.Int64("server", t.ServerID), logx.Int64("channel", t.ChannelID), logx.Err(err))
		}
		return err
	}
	log.Debug("daily question delivered", logx.Int64("server", t.ServerID), logx.Int64("channel", t.ChannelID))
	return nil
}
