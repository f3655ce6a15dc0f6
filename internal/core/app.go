package core

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"practicebot/internal/adapters/discord"
	"practicebot/internal/commands"
	"practicebot/internal/config"
	"practicebot/internal/services/broadcast"
	"practicebot/internal/services/maintenance"
	"practicebot/internal/services/questions"
	"practicebot/internal/services/rankings"
	"practicebot/internal/services/roles"
	"practicebot/internal/services/stats"
	"practicebot/internal/storage"
	logx "practicebot/pkg/logx"
)

// tickSpec fires 48 times a day; every tick re-derives its boundary flags
// from the clock, so a missed or extra fire never corrupts engine state.
const tickSpec = "0,30 * * * *"

const tickTimeout = 25 * time.Minute

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store   storage.Store
	adapter *discord.Adapter
	maint   *maintenance.Service
	cmds    *commands.Service

	cron        *cron.Cron
	watchCancel context.CancelFunc
	wg          sync.WaitGroup
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	busyTimeout, err := config.Duration("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, logs.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("storage is required (set storage.driver)")
	}

	adapter, err := discord.New(discord.Config{Token: cfg.Discord.Token},
		logs.Logger().With(logx.String("comp", "discord")))
	if err != nil {
		return nil, err
	}

	platformTimeout, err := config.Duration("platform.timeout", cfg.Platform.Timeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	questionsSvc, err := questions.New(questions.Config{
		BaseURL: cfg.Platform.BaseURL,
		Timeout: platformTimeout,
	}, logs.Logger().With(logx.String("comp", "questions")))
	if err != nil {
		return nil, err
	}
	src, err := stats.NewHTTPSource(stats.SourceConfig{
		BaseURL: cfg.Platform.BaseURL,
		Timeout: platformTimeout,
	})
	if err != nil {
		return nil, err
	}

	statsSvc := stats.New(store, src, logs.Logger().With(logx.String("comp", "stats")))
	rankingsSvc := rankings.New(store, adapter, logs.Logger().With(logx.String("comp", "rankings")))
	rolesSvc := roles.New(roles.Config{Milestones: milestonesFromConfig(cfg.Roles, log)},
		store, adapter, logs.Logger().With(logx.String("comp", "roles")))
	bcastSvc := broadcast.New(broadcast.Config{
		Workers:    cfg.Broadcast.Workers,
		RatePerSec: cfg.Broadcast.RatePerSec,
	}, adapter, store, logs.Logger().With(logx.String("comp", "broadcast")))

	maint := maintenance.New(maintenance.Config{
		StatsWorkers:  cfg.Maintenance.StatsWorkers,
		BoundaryGuard: cfg.Maintenance.BoundaryGuard,
	}, store, adapter, statsSvc, rankingsSvc, rolesSvc, questionsSvc, bcastSvc,
		logs.Logger().With(logx.String("comp", "maintenance")))

	cmds := commands.New(adapter.Session(), store, questionsSvc,
		logs.Logger().With(logx.String("comp", "commands")))

	return &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		store:   store,
		adapter: adapter,
		maint:   maint,
		cmds:    cmds,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	if err := a.adapter.Start(ctx); err != nil {
		return err
	}
	if err := a.cmds.Register(ctx); err != nil {
		return err
	}

	a.cron = cron.New(cron.WithLocation(time.UTC))
	if _, err := a.cron.AddFunc(tickSpec, a.tick); err != nil {
		return err
	}
	a.cron.Start()

	// Config hot reload: re-apply logging on change.
	wctx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	sub := a.cfgm.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(wctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		prev := a.cfgm.Get()
		for {
			select {
			case <-wctx.Done():
				return
			case cfg := <-sub:
				if cfg == nil {
					continue
				}
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				changed, attrs := config.SummarizeConfigChange(prev, cfg)
				prev = cfg
				attrs = append(attrs, logx.Any("sections", changed))
				a.log.Info("config reloaded", attrs...)
			}
		}
	}()

	a.log.Info("started", logx.String("tick", tickSpec))
	return nil
}

// tick runs one maintenance pass. Errors are logged and swallowed so that a
// failed pass can never prevent the next scheduled one.
func (a *App) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()
	if err := a.maint.RunTick(ctx, time.Now().UTC(), maintenance.Force{UpdateStats: true}); err != nil {
		a.log.Error("maintenance tick failed", logx.Err(err))
	}
}

// RunMaintenance triggers a manual pass with explicit overrides (admin
// re-runs after downtime).
func (a *App) RunMaintenance(ctx context.Context, force maintenance.Force) error {
	return a.maint.RunTick(ctx, time.Now().UTC(), force)
}

func (a *App) Stop(ctx context.Context) error {
	if a.cron != nil {
		stopped := a.cron.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}
	if a.watchCancel != nil {
		a.watchCancel()
	}
	a.wg.Wait()

	err := a.adapter.Stop(ctx)
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	_ = a.logs.Close()
	return err
}

func milestonesFromConfig(raw map[string][]config.MilestoneConfig, log logx.Logger) map[int64][]roles.Milestone {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[int64][]roles.Milestone, len(raw))
	for key, ladder := range raw {
		serverID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			log.Warn("roles config: bad server id; entry skipped", logx.String("server", key))
			continue
		}
		ms := make([]roles.Milestone, 0, len(ladder))
		for _, m := range ladder {
			ms = append(ms, roles.Milestone{RoleID: m.RoleID, MinSolved: m.MinSolved})
		}
		out[serverID] = ms
	}
	return out
}
