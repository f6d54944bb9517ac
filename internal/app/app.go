// Package app wires config, logging, the session host and the HTTP API into
// one supervised process.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voicefront/internal/config"
	"voicefront/internal/eventbus"
	rtsup "voicefront/internal/runtime/supervisor"
	"voicefront/internal/server"
	"voicefront/internal/session"
	logx "voicefront/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	host        *session.Host
	sessionOpts []session.Option
	api         *server.Service
	sd          notifier
}

type Option func(*App)

// WithSessionOptions passes options to the session host (tests inject a clock).
func WithSessionOptions(opts ...session.Option) Option {
	return func(a *App) { a.sessionOpts = append(a.sessionOpts, opts...) }
}

func withNotifier(n notifier) Option { return func(a *App) { a.sd = n } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	a := &App{cfgm: config.NewConfigManager(cfgPath), sd: systemdNotifier{}}
	for _, o := range opts {
		o(a)
	}

	cfg, err := a.cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(cfg.LogxConfig())
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))
	a.bus = eventbus.New()

	scfg, err := cfg.SessionConfig()
	if err != nil {
		return nil, err
	}
	a.host, err = session.New(scfg, log.With(logx.String("comp", "session")), a.bus, a.sessionOpts...)
	if err != nil {
		return nil, err
	}

	apiCfg, err := cfg.ServerConfig()
	if err != nil {
		return nil, err
	}
	a.api = server.New(apiCfg, a.host, a.bus, log.With(logx.String("comp", "server")))
	return a, nil
}

func (a *App) Host() *session.Host { return a.host }

// Bus is the process event bus the session host publishes on.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Addr returns the API listen address ("" when not serving).
func (a *App) Addr() string { return a.api.Addr() }

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
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	id, err := a.host.Start(a.sup.Context())
	if err != nil {
		return err
	}
	a.api.Start(a.sup.Context())

	// Debug trail of bus traffic.
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
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	if a.sd.ready(a.log) {
		if every := a.sd.watchdogInterval(a.log); every > 0 {
			a.sup.Go0("systemd.watchdog", func(c context.Context) { a.watchdog(c, every) })
		}
	}

	a.log.Info("app started", logx.String("session", id), logx.String("skin", a.host.Skin().ID))
	return nil
}

// applyConfig pushes a validated reload into the running components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs, skins := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)
	_ = a.sd.reloading(a.log)
	defer a.sd.ready(a.log)

	sessionApplied := false
	for _, s := range sections {
		switch s {
		case "logging":
			prevLevel := a.logs.Config().Level
			lc := next.LogxConfig()
			a.logs.Apply(lc)
			if prevLevel != lc.Level {
				a.log.Info("log level changed", logx.String("from", prevLevel), logx.String("to", lc.Level))
			}
		case "server":
			sc, err := next.ServerConfig()
			if err != nil {
				a.log.Warn("invalid server config; keeping previous", logx.Err(err))
				continue
			}
			a.api.Reconfigure(ctx, sc)
		case "session", "skins":
			if sessionApplied {
				continue
			}
			sessionApplied = true
			scfg, err := next.SessionConfig()
			if err != nil {
				a.log.Warn("invalid session config; keeping previous", logx.Err(err))
				continue
			}
			if err := a.host.Apply(scfg); err != nil {
				a.log.Warn("session config rejected; keeping previous", logx.Err(err))
				continue
			}
			if len(skins) > 0 {
				a.log.Debug("skin overrides changed", logx.Any("skins", skins))
			}
		}
	}
	a.log.Info("config reloaded", fields...)
}

func (a *App) watchdog(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.sd.watchdog(a.log)
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_ = a.sd.stopping(a.log)

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// never extend the caller's deadline
			if dl, ok := ctx.Deadline(); ok {
				max = min(max, time.Until(dl))
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

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
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("server", 2*time.Second, func(c context.Context) error { a.api.Stop(c); return nil })
	step("session", 1*time.Second, func(context.Context) error { a.host.Stop(); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped", logx.Any("supervisor", a.sup.Snapshot()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
