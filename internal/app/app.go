// Package app wires the bot together: config, logging, storage,
// transport, parser, scheduler, trigger gate, and the handler set.
package app

import (
	"context"
	"strings"
	"time"

	"jobalertbot/internal/config"
	"jobalertbot/internal/eventbus"
	"jobalertbot/internal/handlers"
	"jobalertbot/internal/parser"
	"jobalertbot/internal/runtime/supervisor"
	"jobalertbot/internal/scheduler"
	"jobalertbot/internal/session"
	"jobalertbot/internal/storage"
	"jobalertbot/internal/transport"
	"jobalertbot/internal/transport/telegram"
	"jobalertbot/internal/trigger"
	"jobalertbot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	inBus  *eventbus.Bus[transport.InboundEvent]
	outBus *eventbus.Bus[transport.OutboundEvent]

	adapter  *telegram.Adapter
	store    *storage.Store
	sessions *session.Store
	parse    parser.Parser
	gate     *trigger.Gate
	sched    *scheduler.Service
	runner   *handlers.Runner

	schedEnabled bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	inBus := eventbus.New[transport.InboundEvent]()
	outBus := eventbus.New[transport.OutboundEvent]()

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, inBus, outBus, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	var parse parser.Parser
	if strings.TrimSpace(cfg.Parser.APIKey) != "" {
		parse = parser.NewOpenAI(parser.OpenAIConfig{
			APIKey:    cfg.Parser.APIKey,
			Model:     cfg.Parser.Model,
			MaxTokens: cfg.Parser.MaxTokens,
		}, logSvc.Logger().With(logx.String("comp", "parser")))
		log.Info("parser: openai", logx.String("model", cfg.Parser.Model))
	} else {
		parse = parser.NewRules()
		log.Info("parser: rules (no api key configured)")
	}

	triggerTimeout, err := config.ParseDurationField("trigger.timeout", cfg.Trigger.Timeout)
	if err != nil {
		return nil, err
	}
	var exec trigger.Executor
	if strings.TrimSpace(cfg.Trigger.Endpoint) != "" {
		exec, err = trigger.NewHTTPExecutor(cfg.Trigger.Endpoint, triggerTimeout)
		if err != nil {
			return nil, err
		}
	} else {
		exec = trigger.NewLogExecutor(logSvc.Logger().With(logx.String("comp", "trigger")))
		log.Warn("trigger.endpoint not set; triggers are logged only")
	}
	gate := trigger.NewGate(exec, cfg.Trigger.MaxConcurrent,
		logSvc.Logger().With(logx.String("comp", "trigger")))

	sched := scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, gate,
		logSvc.Logger().With(logx.String("comp", "scheduler")))

	sessions := session.NewStore()
	runner := handlers.NewRunner(
		handlers.All(handlers.Deps{
			Sessions:  sessions,
			Repo:      store,
			Parser:    parse,
			Scheduler: sched,
			Gate:      gate,
			Out:       outBus,
			Log:       logSvc.Logger().With(logx.String("comp", "handlers")),
		}),
		sessions, inBus,
		logSvc.Logger().With(logx.String("comp", "handlers")),
	)

	return &App{
		cfgPath:      cfgPath,
		cfgm:         cfgm,
		log:          log,
		logs:         logSvc,
		inBus:        inBus,
		outBus:       outBus,
		adapter:      ad,
		store:        store,
		sessions:     sessions,
		parse:        parse,
		gate:         gate,
		sched:        sched,
		runner:       runner,
		schedEnabled: cfg.Scheduler.Enabled,
	}, nil
}

// Done is closed when the app supervisor context ends (fatal error or
// Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	// Reloads that fail validation are never committed or published.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if err := a.adapter.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.schedEnabled {
		a.sched.Start(a.sup.Context())
		if err := a.loadAlerts(a.sup.Context()); err != nil {
			a.log.Error("initial alert load had failures", logx.Err(err))
		}
	} else {
		a.log.Info("scheduler disabled via config")
	}

	a.runner.Start(a.sup)

	a.sup.Go("config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.log.Info("started")
	return nil
}

// loadAlerts registers every persisted alert with the scheduler so the
// trigger set matches storage 1:1 after boot.
func (a *App) loadAlerts(ctx context.Context) error {
	jobs, err := a.store.ListAll(ctx)
	if err != nil {
		return err
	}
	return a.sched.LoadInitial(jobs)
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the latest snapshot matters.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.applyReload(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyReload(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config changed", fields...)

	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
	})

	a.adapter.SetRate(newCfg.Telegram.RatePerSec)

	// Scheduler enable/disable is live; everything else about it is not.
	if oldCfg != nil && oldCfg.Scheduler.Enabled && !newCfg.Scheduler.Enabled {
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
		a.schedEnabled = false
	}
	if (oldCfg == nil || !oldCfg.Scheduler.Enabled) && newCfg.Scheduler.Enabled {
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
		if err := a.loadAlerts(ctx); err != nil {
			a.log.Error("alert reload had failures", logx.Err(err))
		}
		a.schedEnabled = true
	}

	for _, s := range sections {
		switch s {
		case "storage", "parser", "trigger":
			a.log.Warn("config section requires restart to take effect", logx.String("section", s))
		case "scheduler":
			if oldCfg != nil && oldCfg.Scheduler.Timezone != newCfg.Scheduler.Timezone {
				a.log.Warn("scheduler.timezone change requires restart to take effect")
			}
		}
	}
}

// Stop shuts components down in dependency order: transport first so no
// new events arrive, then triggers, then in-flight gate calls, storage
// last.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_ = a.adapter.Stop(stopCtx)
	cancel()

	stopCtx, cancel = context.WithTimeout(ctx, 3*time.Second)
	a.sched.Stop(stopCtx)
	cancel()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := a.gate.Wait(waitCtx); err != nil {
		a.log.Warn("in-flight triggers still running at shutdown", logx.Err(err))
	}
	cancel()

	if a.sup != nil {
		a.sup.Cancel()
		waitCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		if err := a.sup.Wait(waitCtx); err != nil {
			a.log.Warn("goroutines still running at shutdown", logx.Err(err))
		}
		cancel()
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("closing storage", logx.Err(err))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
