package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	remindersbot "remindbot/internal/bot/reminders"
	"remindbot/internal/config"
	"remindbot/internal/dashboard"
	"remindbot/internal/delivery"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

const defaultDashboardAddr = "127.0.0.1:3000"

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter kit.Adapter

	sched  *scheduler.Registry
	engine *reminder.Engine
	sender *delivery.Sender
	svc    *reminder.Service
	mod    *remindersbot.Module
	dash   *dashboard.Server

	recordHistory func(context.Context)

	schedEnabled bool

	cmdm    *router.CommandManager
	runtime *supervisor.Registry

	updates chan kit.Update
}

func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logConfig(cfg), ad)
	log = log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, sc, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	fireTimeout, err := config.ParseDurationOrDefault("scheduler.fire_timeout", cfg.Scheduler.FireTimeout, 2*time.Minute)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	confirmTTL, err := config.ParseDurationOrDefault("reminders.confirm_ttl", cfg.Reminders.ConfirmTTL, 2*time.Minute)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	cacheTTL, err := config.ParseDurationOrDefault("reminders.chat_cache_ttl", cfg.Reminders.ChatCacheTTL, delivery.DefaultCacheTTL)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reg := scheduler.New(store, log, scheduler.WithFireTimeout(fireTimeout))
	sender := delivery.New(ad, log, delivery.WithRate(sendRate(cfg)), delivery.WithCacheTTL(cacheTTL))
	eng := reminder.NewEngine(store, sender, log)
	eng.SetScheduler(reg)
	bus := eventbus.New()
	reg.SetHandler(func(c context.Context, id string) {
		res := eng.Fire(c, id)
		bus.Publish(eventbus.Event{Type: eventbus.TypeReminderFired, ReminderID: id, Outcome: res.String()})
	})

	svc := reminder.NewService(store, reg, log,
		reminder.WithConfirmTTL(confirmTTL),
		reminder.WithDefaultTimezone(cfg.Scheduler.DefaultTimezone),
	)
	mod := remindersbot.New(svc, log)

	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)
	cmdm.SetRegistry(mod.Commands(), mod.Callbacks())

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		addr := strings.TrimSpace(cfg.Dashboard.Addr)
		if addr == "" {
			addr = defaultDashboardAddr
		}
		dash = dashboard.New(dashboard.Config{Addr: addr, CORSOrigins: cfg.Dashboard.CORSOrigins}, svc, reg, log)
	}
	history := eventbus.NewHistory(200)
	// subscribe now so fires right after the scheduler starts are kept
	recordHistory := history.Follow(bus)
	if dash != nil {
		dash.SetActivity(history)
	}

	return &App{
		cfgPath:       cfgPath,
		cfgm:          cfgm,
		log:           log,
		logs:          logSvc,
		store:         store,
		adapter:       ad,
		sched:         reg,
		engine:        eng,
		sender:        sender,
		svc:           svc,
		mod:           mod,
		dash:          dash,
		recordHistory: recordHistory,
		schedEnabled:  cfg.Scheduler.Enabled,
		cmdm:          cmdm,
		runtime:       supervisor.NewRegistry(),
		updates:       make(chan kit.Update, 256),
	}, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     groupLogChat(cfg),
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// groupLogChat is telegram.group_log as a chat id, 0 when unset.
func groupLogChat(cfg *config.Config) int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64)
	return id
}

func sendRate(cfg *config.Config) int {
	if cfg.Reminders.SendRatePerSec == 0 {
		return delivery.DefaultRatePerSec
	}
	return cfg.Reminders.SendRatePerSec
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.runtime.Set("app", a.sup)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		_, err := mapStorageConfig(cfg)
		return err
	})

	a.sup.Go0("telegram.menu", func(c context.Context) {
		if err := a.cmdm.PublishMenu(c); err != nil {
			a.log.Warn("command menu not updated", logx.Err(err))
		}
	})

	n, err := a.sched.Rehydrate(ctx)
	if err != nil {
		// a bad record must not keep the rest of the reminders from firing
		a.log.Warn("some reminders could not be scheduled", logx.Int("armed", n), logx.Err(err))
	}
	if a.schedEnabled {
		a.sched.Start()
	} else {
		a.log.Warn("scheduler disabled; reminders are stored but will not fire")
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if sp, ok := a.adapter.(interface{ Supervisor() *supervisor.Supervisor }); ok {
		if sup := sp.Supervisor(); sup != nil {
			a.runtime.Set("telegram.adapter", sup)
		}
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	a.sup.Go0("events.history", a.recordHistory)
	if a.dash != nil {
		a.dash.SetRuntime(a.runtimeSnapshot)
		a.sup.Go("dashboard", a.dash.Run)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Int("scheduled", a.sched.Len()),
		logx.Bool("dashboard", a.dash != nil),
	)
	return nil
}

func (a *App) runtimeSnapshot() map[string]supervisor.SupervisorSnapshot {
	return a.runtime.Snapshots(map[string]*supervisor.Supervisor{"telegram.router": a.cmdm.Supervisor()})
}

// applyConfig pushes the hot-reloadable parts of newCfg into the running
// components. Restart-only sections are reported and left alone.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed in restart-only sections; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(logConfig(newCfg))

	a.cmdm.SetOwners(newCfg.Telegram.OwnerUserIDs)

	a.sender.SetRate(sendRate(newCfg))
	if ttl, err := config.ParseDurationOrDefault("reminders.chat_cache_ttl", newCfg.Reminders.ChatCacheTTL, delivery.DefaultCacheTTL); err == nil {
		a.sender.SetCacheTTL(ttl)
	}

	if newCfg.Scheduler.Enabled != a.schedEnabled {
		a.log.Warn("scheduler.enabled changed; restart required", logx.Bool("enabled", newCfg.Scheduler.Enabled))
	}
	if oldCfg != nil && oldCfg.Scheduler.DefaultTimezone != newCfg.Scheduler.DefaultTimezone {
		a.log.Warn("scheduler.default_timezone changed; restart required")
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped: deadline reached", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Triggers first so no fire starts while delivery and storage go away.
	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 2*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
