package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskctl/internal/config"
	"taskctl/pkg/logx"
	"taskctl/pkg/systemd"
	"taskctl/pkg/systemdmanager"
)

// Options carries everything Choose needs.
type Options struct {
	Backend      config.BackendConfig
	Paths        config.PathsConfig
	ProbeTimeout time.Duration
	CallTimeout  time.Duration
	Principal    Principal
}

// Dialers are swapped in tests.
type Dialers struct {
	Daemon func(ctx context.Context, opts DaemonOptions, log logx.Logger) (*Daemon, error)
	Units  func(ctx context.Context) (UnitControl, error)
}

func DefaultDialers() Dialers {
	return Dialers{
		Daemon: DialDaemon,
		Units: func(ctx context.Context) (UnitControl, error) {
			um, err := systemdmanager.NewContext(ctx)
			if err != nil {
				return nil, err
			}
			return um, nil
		},
	}
}

// Choose picks the backend once at startup.
//
//   - legacy never touches the daemon
//   - auto uses the daemon when it answers and the caller is not root
//   - daemon uses it when it answers, otherwise falls back to legacy
func Choose(ctx context.Context, opts Options, dial Dialers, log logx.Logger) (Backend, error) {
	mode := strings.ToLower(strings.TrimSpace(opts.Backend.Mode))
	log = log.With(logx.Component("backend"))

	if mode != config.BackendLegacy {
		if mode == config.BackendAuto && opts.Principal.Root() {
			log.Info("running as root, using unit files")
		} else if d, err := probe(ctx, opts, dial, log); err == nil {
			log.Info("using scheduler daemon", logx.String("bus", opts.Backend.BusName))
			return d, nil
		} else {
			log.Warn("scheduler daemon unavailable, using unit files", logx.String("mode", mode), logx.Err(err))
		}
	}
	return legacy(ctx, opts, dial, log)
}

func probe(ctx context.Context, opts Options, dial Dialers, log logx.Logger) (*Daemon, error) {
	pctx := ctx
	if opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, opts.ProbeTimeout)
		defer cancel()
	}
	d, err := dial.Daemon(pctx, DaemonOptions{
		BusName:     opts.Backend.BusName,
		ObjectPath:  opts.Backend.ObjectPath,
		Interface:   opts.Backend.Interface,
		CallTimeout: opts.CallTimeout,
		UID:         opts.Principal.UID,
	}, log)
	if err != nil {
		return nil, err
	}
	caps, err := d.Capabilities(pctx)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	log.Debug("daemon capabilities", logx.String("caps", caps))
	return d, nil
}

func legacy(ctx context.Context, opts Options, dial Dialers, log logx.Logger) (Backend, error) {
	ctrl, err := dial.Units(ctx)
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	return NewUnitFiles(UnitFileOptions{
		UnitDir:     opts.Paths.UnitDir,
		TemplateDir: opts.Paths.TemplateDir,
	}, ctrl, systemd.New(nil), log)
}
