// Package app wires configuration, logging, storage, the backend and the
// task services into one container.
package app

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	"taskctl/internal/backend"
	"taskctl/internal/config"
	"taskctl/internal/discovery"
	"taskctl/internal/orchestrator"
	"taskctl/internal/poller"
	"taskctl/internal/status"
	"taskctl/internal/storage"
	"taskctl/internal/tasklog"
	"taskctl/pkg/logx"
	"taskctl/pkg/systemd"
)

// Options configures New. Zero values select the real environment.
type Options struct {
	ConfigPath string
	Dialers    *backend.Dialers
	Principal  *backend.Principal
	// Journal answers unit property and journal queries.
	Journal tasklog.Query
	// Runner executes discovery scripts.
	Runner discovery.Runner
}

type App struct {
	cfgm *config.ConfigManager
	logs *logx.Service
	log  logx.Logger

	store    storage.Store
	be       backend.Backend
	history  *tasklog.Log
	resolver *status.Resolver
	orch     *orchestrator.Orchestrator
	poller   *poller.Poller
	disc     *discovery.Discovery
}

func (a *App) Config() *config.Config                   { return a.cfgm.Get() }
func (a *App) Logger() logx.Logger                      { return a.log }
func (a *App) Store() storage.Store                     { return a.store }
func (a *App) Backend() backend.Backend                 { return a.be }
func (a *App) History() *tasklog.Log                    { return a.history }
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }
func (a *App) Poller() *poller.Poller                   { return a.poller }
func (a *App) Discovery() *discovery.Discovery          { return a.disc }

// logging bundles the log service with its root logger for injection.
type logging struct {
	svc  *logx.Service
	root logx.Logger
}

// New loads the config and builds every service. The backend is chosen
// here, once.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Dialers == nil {
		d := backend.DefaultDialers()
		opts.Dialers = &d
	}
	if opts.Principal == nil {
		p := backend.CurrentPrincipal()
		opts.Principal = &p
	}
	if opts.Journal == nil {
		opts.Journal = systemd.New(nil)
	}

	c := dig.New()
	provide := func(ctors ...any) error {
		for _, ctor := range ctors {
			if err := c.Provide(ctor); err != nil {
				return err
			}
		}
		return nil
	}
	err := provide(
		func() (*config.ConfigManager, *config.Config, error) {
			m := config.NewConfigManager(opts.ConfigPath)
			cfg, err := m.Load()
			return m, cfg, err
		},
		func(cfg *config.Config) (config.Timings, error) { return cfg.Timings() },
		func(cfg *config.Config, m *config.ConfigManager) logging {
			svc, log := logx.New(mapLogConfig(cfg))
			m.SetLogger(log.With(logx.Component("config")))
			return logging{svc: svc, root: log}
		},
		func(cfg *config.Config, l logging) (storage.Store, error) {
			sc, enabled, err := mapStorageConfig(cfg)
			if err != nil || !enabled {
				return nil, err
			}
			st, err := storage.Open(sc, l.root.With(logx.Component("storage")))
			if err != nil {
				return nil, err
			}
			l.root.Info("storage enabled", logx.String("driver", sc.Driver))
			return st, nil
		},
		func(cfg *config.Config, t config.Timings, l logging) (backend.Backend, error) {
			return backend.Choose(ctx, backend.Options{
				Backend:      cfg.Backend,
				Paths:        cfg.Paths,
				ProbeTimeout: t.ProbeTimeout,
				CallTimeout:  t.CallTimeout,
				Principal:    *opts.Principal,
			}, *opts.Dialers, l.root)
		},
		func(l logging) *tasklog.Log { return tasklog.New(opts.Journal, l.root) },
		func(t config.Timings, h *tasklog.Log, l logging) *status.Resolver {
			return status.NewResolver(status.Options{
				CacheTTL:        t.CacheTTL,
				CompletedWindow: t.CompletedWindow,
				RecentWindow:    t.RecentWindow,
			}, h, l.root)
		},
		func(cfg *config.Config, t config.Timings, be backend.Backend, r *status.Resolver, st storage.Store, l logging) *orchestrator.Orchestrator {
			return orchestrator.New(be, r, st, orchestrator.Options{
				ScriptDir:       cfg.Paths.ScriptDir,
				RunPollInterval: t.RunPollInterval,
				Principal:       *opts.Principal,
			}, l.root)
		},
		func(t config.Timings, o *orchestrator.Orchestrator, h *tasklog.Log, l logging) *poller.Poller {
			return poller.New(o, h, poller.Options{Interval: t.PollInterval}, l.root)
		},
		func(cfg *config.Config, t config.Timings, l logging) *discovery.Discovery {
			return discovery.New(opts.Runner, discovery.Options{ScriptDir: cfg.Paths.DiscoveryDir, Timeout: t.CallTimeout}, l.root)
		},
	)
	if err != nil {
		return nil, err
	}

	var a *App
	err = c.Invoke(func(
		m *config.ConfigManager,
		l logging,
		st storage.Store,
		be backend.Backend,
		h *tasklog.Log,
		r *status.Resolver,
		o *orchestrator.Orchestrator,
		p *poller.Poller,
		d *discovery.Discovery,
	) {
		a = &App{
			cfgm:     m,
			logs:     l.svc,
			log:      l.root.With(logx.Component("app")),
			store:    st,
			be:       be,
			history:  h,
			resolver: r,
			orch:     o,
			poller:   p,
			disc:     d,
		}
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return a, nil
}

// Serve runs the live poller and config hot reload until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	sub := a.cfgm.Subscribe(8)
	g.Go(func() error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-gctx.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Keep only the latest of a burst.
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
				a.apply(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	g.Go(func() error { return a.cfgm.Watch(gctx) })
	g.Go(func() error {
		a.poller.Start(gctx)
		<-gctx.Done()
		a.poller.Stop()
		return nil
	})

	a.log.Info("serving", logx.String("backend", string(a.be.Kind())))
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// apply pushes a reloaded config into the running services. Backend, paths
// and storage are fixed at startup.
func (a *App) apply(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	for _, s := range sections {
		switch s {
		case "backend", "paths", "storage":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}

	a.logs.Apply(mapLogConfig(next))

	t, err := next.Timings()
	if err != nil {
		a.log.Warn("invalid timings; keeping previous", logx.Err(err))
	} else {
		a.resolver.SetWindows(t.CacheTTL, t.CompletedWindow, t.RecentWindow)
		a.orch.SetRunPollInterval(t.RunPollInterval)
		a.poller.SetInterval(t.PollInterval)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Close releases the backend, the store and the log file.
func (a *App) Close() error {
	a.poller.Stop()
	var errs []error
	if err := a.be.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.logs.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
