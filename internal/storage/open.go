package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"taskctl/pkg/logx"
)

// Store persists the orchestrator's audit trail and the last run-now outcome
// per unit.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// RecentAudit returns up to limit entries, newest first. A limit <= 0
	// returns everything.
	RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error)

	PutLastRun(ctx context.Context, r LastRun) error
	GetLastRun(ctx context.Context, unit string) (LastRun, bool, error)
	DeleteLastRun(ctx context.Context, unit string) error

	Close() error
}

type opener func(cfg Config, log logx.Logger) (Store, error)

var drivers = map[string]opener{}

func register(o opener, names ...string) {
	for _, n := range names {
		drivers[n] = o
	}
}

// Open returns the store for cfg.Driver, or (nil, nil) when storage is
// turned off ("" or "none").
func Open(cfg Config, log logx.Logger) (Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" || name == "none" {
		return nil, nil
	}
	open, ok := drivers[name]
	if !ok {
		known := make([]string, 0, len(drivers))
		for k := range drivers {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("storage: unknown driver %q (have %s)", cfg.Driver, strings.Join(known, ", "))
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("storage: driver %s needs a path", name)
	}
	return open(cfg, log.With(logx.String("driver", name)))
}
