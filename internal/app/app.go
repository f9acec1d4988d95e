package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"taskplan/internal/config"
	"taskplan/internal/notify"
	"taskplan/internal/plan"
	"taskplan/internal/runtime/supervisor"
	"taskplan/internal/storage"
	"taskplan/internal/trigger"
	logx "taskplan/pkg/logx"
)

// App wires config, storage, the planner and the daemon services together.
type App struct {
	cfgm  *config.Manager
	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	mu      sync.RWMutex
	planner *plan.Planner
	loc     *time.Location

	notif  *notify.Service
	sender notify.Sender
	trig   *trigger.Service
	sup    *supervisor.Supervisor

	now func() time.Time
}

// Option configures an App.
type Option func(*App)

// WithSender replaces the Telegram sender.
func WithSender(s notify.Sender) Option {
	return func(a *App) { a.sender = s }
}

// WithClock replaces time.Now when deciding what "today" is.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// Report is the outcome of one planning run.
type Report struct {
	RunID   string
	Result  *plan.Result
	Summary storage.RunSummary
	DryRun  bool
}

// New loads the config at cfgPath and opens the configured store.
func New(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &App{cfgm: cfgm, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	a.logs, a.log = logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		a.logs.Close()
		return nil, err
	}
	store, err := storage.Open(sc, a.log)
	if err != nil {
		a.logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	if err := a.applyPlanner(cfg); err != nil {
		_ = a.Close()
		return nil, err
	}

	ns, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.ensureSender(ns); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.notif = notify.New(ns.cfg, a.sender, a.log)
	a.trig = trigger.New(a.runScheduled, a.log)
	return a, nil
}

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Store() storage.Store { return a.store }

func (a *App) Config() *config.Config { return a.cfgm.Get() }

// Today returns the current date in the configured timezone.
func (a *App) Today() plan.Date {
	a.mu.RLock()
	loc := a.loc
	a.mu.RUnlock()
	return plan.DateOf(a.now().In(loc))
}

func (a *App) applyPlanner(cfg *config.Config) error {
	pc, err := cfg.ToPlanConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	p, err := plan.New(pc,
		plan.WithLogger(a.log.With(logx.String("comp", "planner"))),
		plan.WithProjectLookup(a.store),
	)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.planner, a.loc = p, loc
	a.mu.Unlock()
	return nil
}

// ensureSender builds the Telegram sender the first time notifications are
// enabled. A token change needs a restart.
func (a *App) ensureSender(ns notifierSettings) error {
	if a.sender != nil || !ns.cfg.Enabled {
		return nil
	}
	s, err := notify.NewTelegramSender(ns.token, ns.pollTimeout)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	a.sender = s
	return nil
}

// RunOnce plans the stored backlog as of today. Unless dryRun is set the
// placements are written back and the summary is sent to the notifier.
func (a *App) RunOnce(ctx context.Context, today plan.Date, dryRun bool) (*Report, error) {
	a.mu.RLock()
	p := a.planner
	a.mu.RUnlock()

	startedAt := a.now()
	recs, err := a.store.LoadRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	res, err := p.Plan(ctx, today, recs)
	if err != nil {
		return nil, err
	}

	run := storage.NewRun(res, startedAt)
	rep := &Report{RunID: run.ID, Result: res, DryRun: dryRun}
	log := a.log.With(logx.String("run", run.ID), logx.String("today", today.String()))
	for _, w := range res.Warnings {
		log.Warn("plan warning", logx.String("msg", w))
	}

	if dryRun {
		rep.Summary = storage.Summarize(run)
		log.Info("dry run finished; nothing written",
			logx.Int("records", len(recs)),
			logx.Int("placed", rep.Summary.Placed),
			logx.Int("deferred", rep.Summary.Deferred),
		)
		return rep, nil
	}

	sum, err := a.store.Apply(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("apply run: %w", err)
	}
	rep.Summary = sum
	log.Info("run applied",
		logx.Int("records", len(recs)),
		logx.Int("placed", sum.Placed),
		logx.Int("degraded", sum.Degraded),
		logx.Int("deferred", sum.Deferred),
		logx.Int("warnings", sum.Warnings),
	)

	if err := a.notif.NotifyRun(ctx, run.ID, res); err != nil {
		log.Warn("run summary not delivered", logx.Err(err))
	}
	return rep, nil
}

func (a *App) runScheduled(ctx context.Context) error {
	_, err := a.RunOnce(ctx, a.Today(), false)
	return err
}

func (a *App) validate(_ context.Context, cfg *config.Config) error {
	tc, err := mapTriggerConfig(cfg)
	if err != nil {
		return err
	}
	if err := a.trig.Validate(tc); err != nil {
		return fmt.Errorf("daemon.schedule: %w", err)
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	ns, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	if ns.cfg.Enabled && ns.token == "" {
		return errors.New("notifier.token is required when enabled")
	}
	return nil
}

// Validate checks the loaded config the same way a hot reload would.
func (a *App) Validate(ctx context.Context) error {
	return a.validate(ctx, a.cfgm.Get())
}

// Serve runs the planner on the daemon schedule until ctx is cancelled or a
// supervised goroutine fails. The config file is watched and applied live.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.cfgm.Get()
	tc, err := mapTriggerConfig(cfg)
	if err != nil {
		return err
	}
	if err := a.validate(ctx, cfg); err != nil {
		return err
	}

	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	a.cfgm.SetValidator(a.validate)

	if err := a.trig.Start(a.sup.Context(), tc); err != nil {
		a.sup.Cancel()
		return err
	}
	if cfg.Daemon.RunOnStart {
		a.sup.Go0("run.start", func(c context.Context) {
			if err := a.trig.RunNow(c); errors.Is(err, trigger.ErrBusy) {
				a.log.Debug("startup run skipped; scheduled run in progress")
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.GoRestart("config.reload", func(c context.Context) error {
		a.reloadLoop(c, sub)
		return nil
	}, time.Second, 30*time.Second)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.startWatchdog()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("serving",
		logx.String("config", a.cfgm.Path()),
		logx.Time("next", a.trig.Next()),
	)

	<-a.sup.Context().Done()
	reason := StopSignal
	if a.sup.Err() != nil {
		reason = StopFatalError
	}
	return a.shutdown(reason, sub)
}

// startWatchdog pings systemd at half the WatchdogSec interval when the unit
// asks for it.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("systemd watchdog config invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) shutdown(reason StopReason, sub chan *config.Config) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.sup.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.trig.Stop(ctx)
	a.cfgm.Unsubscribe(sub)
	if err := a.sup.Wait(ctx); errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("supervisor did not stop in time", logx.Int64("active", a.sup.Active()))
	}
	a.log.Info("stopped")
	return a.sup.Err()
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		var newCfg *config.Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			newCfg = c
		}
		// Coalesce bursts: keep only the latest config.
		for drained := false; !drained; {
			select {
			case newer, ok := <-sub:
				if !ok {
					return
				}
				if newer != nil {
					newCfg = newer
				}
			default:
				drained = true
			}
		}
		if newCfg == nil {
			continue
		}
		a.applyConfig(newCfg, lastApplied)
		lastApplied = newCfg
	}
}

func (a *App) applyConfig(newCfg, prev *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLogConfig(newCfg))
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		case "capacity", "planner":
			if err := a.applyPlanner(newCfg); err != nil {
				a.log.Warn("invalid planner config; keeping previous", logx.Err(err))
			}
		case "daemon":
			tc, err := mapTriggerConfig(newCfg)
			if err == nil {
				err = a.trig.Apply(tc)
			}
			if err != nil {
				a.log.Warn("invalid daemon config; keeping previous", logx.Err(err))
			}
		case "notifier":
			ns, err := mapNotifierConfig(newCfg)
			if err == nil {
				err = a.ensureSender(ns)
			}
			if err != nil {
				a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
				continue
			}
			if a.notif.Enabled() != ns.cfg.Enabled {
				a.log.Info("notifier toggled via config", logx.Bool("enabled", ns.cfg.Enabled))
			}
			a.notif.SetSender(a.sender)
			a.notif.Apply(ns.cfg)
		}
	}
	a.log.Info("config reloaded", fields...)
}

// Close releases the store and flushes logs.
func (a *App) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	if a.logs != nil {
		a.logs.Close()
	}
	return err
}
