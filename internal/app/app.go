package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"popengine/internal/eventbus"
	"popengine/internal/maintenance"
	"popengine/internal/observability"
	"popengine/internal/scenario"
	"popengine/internal/storage"
	logx "popengine/pkg/logx"
	"popengine/pkg/systemd"
)

// Options selects what the simulator runs.
type Options struct {
	ConfigPath string
	// Scenarios are scenario files, replayed in order on every run.
	Scenarios []string
	Realtime  bool
}

type App struct {
	opts Options

	cfgm *ConfigManager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	metrics *observability.Metrics
	server  *observability.Server
	maint   *maintenance.Service

	runMu   sync.Mutex // serializes scenario runs
	mu      sync.Mutex
	results []*scenario.Result
	runs    int
}

func NewApp(opts Options) (*App, error) {
	cfgm := NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	metrics := observability.NewMetrics()
	if err := metrics.WatchBus(bus); err != nil {
		return nil, err
	}

	mcfg, err := mapMaintenanceConfig(cfg)
	if err != nil {
		return nil, err
	}
	var maint *maintenance.Service
	if store != nil {
		maint = maintenance.New(mcfg, store, log)
	}

	return &App{
		opts:    opts,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		metrics: metrics,
		server:  observability.NewServer(metrics.Registry(), log),
		maint:   maint,
	}, nil
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

// Results returns the outcome of the most recent run.
func (a *App) Results() []*scenario.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*scenario.Result(nil), a.results...)
}

// Runs counts completed scenario runs.
func (a *App) Runs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}

var ErrScenarioFailed = errors.New("scenario expectations not met")

// RunScenarios replays every scenario against the current configuration.
// Scenario files are re-read on each call so edits are picked up. The
// returned error wraps ErrScenarioFailed when an expectation is unmet.
func (a *App) RunScenarios(ctx context.Context) ([]*scenario.Result, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	cfg := a.cfgm.Get()
	var (
		out    []*scenario.Result
		failed []string
	)
	for _, path := range a.opts.Scenarios {
		sc, err := scenario.Load(path)
		if err != nil {
			return out, err
		}
		res, err := scenario.Run(ctx, sc, scenario.Options{
			Config:   cfg,
			Store:    a.store,
			Logger:   a.log,
			Sampler:  a.logs.Sampler(),
			Bus:      a.bus,
			Observer: a.metrics,
			Realtime: a.opts.Realtime,
		})
		if err != nil {
			return out, fmt.Errorf("%s: %w", sc.Name, err)
		}
		out = append(out, res)
		for _, serr := range res.ScriptErrors {
			a.log.Warn("host script error", logx.String("scenario", res.Name), logx.Err(serr))
		}
		if !res.OK() {
			failed = append(failed, res.Name)
			for _, f := range res.Failures {
				a.log.Error("scenario expectation failed", logx.String("scenario", res.Name), logx.String("failure", f))
			}
		}
	}

	a.mu.Lock()
	a.results = out
	a.runs++
	a.mu.Unlock()

	if len(failed) > 0 {
		return out, fmt.Errorf("%w: %s", ErrScenarioFailed, strings.Join(failed, ", "))
	}
	return out, nil
}

// Start runs the watch-mode services: metrics server, record maintenance,
// config hot reload (each reload replays the scenarios) and the systemd
// watchdog.
func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error { return validate(cfg) })

	cfg := a.cfgm.Get()
	if oc, err := mapObservabilityConfig(cfg); err != nil {
		return err
	} else if oc.Enabled {
		a.server.Reconfigure(a.sup.Context(), oc)
	}
	if a.maint != nil {
		if err := a.maint.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	// Skipped popups only reach metrics through the bus.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if e.Type == eventbus.TypeSkipped {
					if d, ok := e.Data.(eventbus.PopupData); ok {
						a.metrics.Skipped(d.Reason)
					}
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

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
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c, a.log)
	})

	a.sup.Go0("scenario.initial", func(c context.Context) {
		a.replay(c)
	})

	systemd.Ready()
	a.log.Info("app started", logx.Int("scenarios", len(a.opts.Scenarios)))
	return nil
}

func (a *App) replay(ctx context.Context) {
	if len(a.opts.Scenarios) == 0 {
		return
	}
	res, err := a.RunScenarios(ctx)
	passed := 0
	for _, r := range res {
		if r.OK() {
			passed++
		}
	}
	status := fmt.Sprintf("%d/%d scenarios passed", passed, len(a.opts.Scenarios))
	systemd.Status(status)
	if err != nil && !errors.Is(err, ErrScenarioFailed) {
		a.log.Error("scenario run aborted", logx.Err(err))
		return
	}
	a.log.Info("scenario run complete", logx.String("status", status))
}

func (a *App) applyConfig(ctx context.Context, prev, next *Config) {
	systemd.Reloading()
	defer systemd.Ready()

	sections, attrs := SummarizeConfigChange(prev, next)
	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required for changes to take effect")
			break
		}
	}

	a.logs.Apply(mapLoggingConfig(next))

	if oc, err := mapObservabilityConfig(next); err != nil {
		a.log.Warn("invalid observability config; keeping previous", logx.Err(err))
	} else {
		a.server.Reconfigure(ctx, oc)
	}

	if a.maint != nil {
		if mc, err := mapMaintenanceConfig(next); err != nil {
			a.log.Warn("invalid maintenance config; keeping previous", logx.Err(err))
		} else if err := a.maint.Apply(ctx, mc); err != nil {
			a.log.Warn("maintenance reschedule failed", logx.Err(err))
		}
	}

	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Info("config reloaded", fields...)
	} else {
		a.log.Info("config reloaded (no changes)")
	}

	a.replay(ctx)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		systemd.Stopping()
		a.sup.Cancel()
	}

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("maintenance", 2*time.Second, func(c context.Context) error {
		if a.maint != nil {
			a.maint.Stop(c)
		}
		return nil
	})
	step("observability", 1*time.Second, func(c context.Context) error { a.server.Stop(c); return nil })
	if a.sup != nil {
		step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	}
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
