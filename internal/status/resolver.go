package status

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"taskctl/pkg/logx"
	"taskctl/pkg/systemd"
)

// Telemetry is the raw input for one task: property dumps for its service
// and timer units. Scope and Unit are filled by the daemon and informative
// only.
type Telemetry struct {
	Scope   string `json:"scope"`
	Unit    string `json:"unit"`
	Service string `json:"service"`
	Timer   string `json:"timer"`
}

// Snapshot is the resolved state of one task.
type Snapshot struct {
	Text    string
	LastRun time.Time
	NextRun time.Time
}

func (s Snapshot) LastRunMs() int64 { return unixMs(s.LastRun) }
func (s Snapshot) NextRunMs() int64 { return unixMs(s.NextRun) }

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Fetch loads telemetry. A nil error with empty blobs means the units do
// not exist.
type Fetch func(ctx context.Context) (Telemetry, error)

// RecencyChecker reports whether unit finished a run within window.
type RecencyChecker interface {
	RecentlyCompleted(ctx context.Context, unit string, window time.Duration) (bool, error)
}

// Request identifies one resolution.
type Request struct {
	Key             string
	ServiceUnit     string
	ScheduleEnabled bool
	Fetch           Fetch
}

type Options struct {
	CacheTTL        time.Duration
	CompletedWindow time.Duration
	RecentWindow    time.Duration
	Now             func() time.Time
}

type cacheEntry struct {
	at   time.Time
	snap Snapshot
}

// Resolver classifies tasks and coalesces bursts of queries for the same
// key. It is owned by the orchestrator.
type Resolver struct {
	log    logx.Logger
	recent RecencyChecker
	group  singleflight.Group

	mu        sync.Mutex
	opts      Options
	entries   map[string]cacheEntry
	completed map[string]time.Time
}

func NewResolver(opts Options, recent RecencyChecker, log logx.Logger) *Resolver {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{
		log:       log.With(logx.Component("status")),
		recent:    recent,
		opts:      opts,
		entries:   map[string]cacheEntry{},
		completed: map[string]time.Time{},
	}
}

// SetWindows updates the timing options; used on config reload.
func (r *Resolver) SetWindows(cacheTTL, completed, recent time.Duration) {
	r.mu.Lock()
	r.opts.CacheTTL = cacheTTL
	r.opts.CompletedWindow = completed
	r.opts.RecentWindow = recent
	r.mu.Unlock()
}

// Resolve returns the task's snapshot. Fetch errors are logged and reported
// as an empty snapshot.
func (r *Resolver) Resolve(ctx context.Context, req Request) Snapshot {
	r.mu.Lock()
	now := r.opts.Now()
	if e, ok := r.entries[req.Key]; ok && r.opts.CacheTTL > 0 && now.Sub(e.at) < r.opts.CacheTTL {
		r.mu.Unlock()
		return e.snap
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do(req.Key, func() (any, error) {
		snap, ok := r.resolve(ctx, req)
		if ok {
			r.mu.Lock()
			r.entries[req.Key] = cacheEntry{at: r.opts.Now(), snap: snap}
			r.mu.Unlock()
		}
		return snap, nil
	})
	return v.(Snapshot)
}

// Fresh bypasses the cache. Run-now polling uses it.
func (r *Resolver) Fresh(ctx context.Context, req Request) Snapshot {
	r.Forget(req.Key)
	return r.Resolve(ctx, req)
}

func (r *Resolver) resolve(ctx context.Context, req Request) (Snapshot, bool) {
	tel, err := req.Fetch(ctx)
	if err != nil {
		r.log.Warn("status query failed", logx.Task(req.Key), logx.Err(err))
		return Snapshot{}, false
	}

	service := Props(systemd.ParseProperties(tel.Service))
	timer := Props(systemd.ParseProperties(tel.Timer))
	blob := Pick(service, timer, req.ScheduleEnabled)

	r.mu.Lock()
	window := r.opts.RecentWindow
	completedWindow := r.opts.CompletedWindow
	now := r.opts.Now()
	r.mu.Unlock()

	label := Classify(blob, func() bool {
		if r.recent == nil || req.ServiceUnit == "" {
			return false
		}
		ok, err := r.recent.RecentlyCompleted(ctx, req.ServiceUnit, window)
		if err != nil {
			r.log.Debug("recency check failed", logx.Unit(req.ServiceUnit), logx.Err(err))
			return false
		}
		return ok
	})

	r.mu.Lock()
	if label == LabelCompleted || service["Result"] == "success" {
		if exit := service.LastExit(); !exit.IsZero() {
			if exit.After(r.completed[req.Key]) {
				r.completed[req.Key] = exit
			}
		} else if label == LabelCompleted {
			if _, seen := r.completed[req.Key]; !seen {
				r.completed[req.Key] = now
			}
		}
	}
	last := r.completed[req.Key]
	r.mu.Unlock()

	label = Smooth(label, last, now, completedWindow)

	lastRun := service.LastRun()
	if lastRun.IsZero() {
		lastRun = timer.LastRun()
	}
	return Snapshot{Text: label, LastRun: lastRun, NextRun: timer.NextRun()}, true
}

// Forget drops the cached snapshot for key.
func (r *Resolver) Forget(key string) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// Remove drops all state for key; called when the task is deleted.
func (r *Resolver) Remove(key string) {
	r.mu.Lock()
	delete(r.entries, key)
	delete(r.completed, key)
	r.mu.Unlock()
}

// Clear empties the cache.
func (r *Resolver) Clear() {
	r.mu.Lock()
	r.entries = map[string]cacheEntry{}
	r.completed = map[string]time.Time{}
	r.mu.Unlock()
}
