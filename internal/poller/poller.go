// Package poller refreshes the display state of every tracked task on a
// fixed interval.
package poller

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"taskctl/internal/status"
	"taskctl/internal/task"
	"taskctl/internal/tasklog"
	"taskctl/pkg/logx"
)

const (
	DefaultInterval = 1500 * time.Millisecond

	LabelRunningNow = "Running now..."
	LabelNeverRun   = "Task hasn't run yet."

	maxInFlight = 8
)

// Tasks is the orchestrator surface the poller reads and toggles.
type Tasks interface {
	Tasks() []*task.Instance
	Status(ctx context.Context, inst *task.Instance) status.Snapshot
	UnitName(inst *task.Instance) string
	ScheduleEnabled(inst *task.Instance) bool
	EnableSchedule(ctx context.Context, inst *task.Instance) (bool, error)
	DisableSchedule(ctx context.Context, inst *task.Instance) (bool, error)
}

// History supplies run times when unit properties carry none.
type History interface {
	LatestEntryFor(ctx context.Context, service, taskName string) tasklog.Entry
}

type Options struct {
	Interval time.Duration
	// Format renders timestamps in labels. Defaults to local time.
	Format func(time.Time) string
	Now    func() time.Time
}

type Poller struct {
	src  Tasks
	hist History
	log  logx.Logger

	format func(time.Time) string
	now    func() time.Time

	mu       sync.RWMutex
	interval time.Duration
	status   map[string]string
	lastRun  map[string]string

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a stopped poller. hist may be nil.
func New(src Tasks, hist History, opts Options, log logx.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Format == nil {
		opts.Format = func(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05") }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{
		src:      src,
		hist:     hist,
		log:      log.With(logx.Component("poller")),
		format:   opts.Format,
		now:      opts.Now,
		interval: opts.Interval,
		status:   map[string]string{},
		lastRun:  map[string]string{},
	}
}

// Start refreshes once and then on every tick until Stop or ctx is done.
// Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

// Stop tears the timer down and waits for an in-flight refresh.
func (p *Poller) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) Running() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.cancel != nil
}

// SetInterval changes the tick period; a running loop picks it up on its
// next tick.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
}

func (p *Poller) currentInterval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interval
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	p.log.Debug("poller started")
	defer p.log.Debug("poller stopped")

	interval := p.currentInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = p.RefreshAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d := p.currentInterval(); d != interval {
				interval = d
				ticker.Reset(d)
			}
			_ = p.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every tracked task concurrently. Entries of tasks
// that are no longer tracked are dropped.
func (p *Poller) RefreshAll(ctx context.Context) error {
	tasks := p.src.Tasks()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for _, inst := range tasks {
		inst := inst
		g.Go(func() error {
			p.RefreshOne(gctx, inst)
			return nil
		})
	}
	err := g.Wait()

	live := make(map[string]bool, len(tasks))
	for _, inst := range tasks {
		live[inst.ID()] = true
	}
	p.mu.Lock()
	for id := range p.status {
		if !live[id] {
			delete(p.status, id)
			delete(p.lastRun, id)
		}
	}
	p.mu.Unlock()

	if err == nil {
		err = ctx.Err()
	}
	return err
}

// RefreshOne updates the status and last-run labels of inst.
func (p *Poller) RefreshOne(ctx context.Context, inst *task.Instance) {
	id := inst.ID()
	snap := p.src.Status(ctx, inst)
	text := snap.Text
	if text == "" {
		text = status.LabelInactive
	}

	p.mu.RLock()
	prev := p.lastRun[id]
	p.mu.RUnlock()

	label := p.lastRunLabel(ctx, inst, text, snap.LastRun, prev)

	p.mu.Lock()
	p.status[id] = text
	p.lastRun[id] = label
	p.mu.Unlock()
}

func (p *Poller) lastRunLabel(ctx context.Context, inst *task.Instance, text string, lastRun time.Time, prev string) string {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "running") || strings.Contains(lower, "starting") {
		return LabelRunningNow
	}
	label := p.stamped(lower, lastRun)
	if label == "" && p.hist != nil {
		unit := p.src.UnitName(inst)
		e := p.hist.LatestEntryFor(ctx, unit+".service", unit)
		at := e.Finish
		if at.IsZero() {
			at = e.Start
		}
		label = p.stamped(lower, at)
	}
	switch {
	case label != "":
		return label
	case prev == LabelRunningNow:
		return "Stopped at " + p.format(p.now())
	case prev != "":
		return prev
	default:
		return LabelNeverRun
	}
}

func (p *Poller) stamped(lower string, at time.Time) string {
	if at.IsZero() {
		return ""
	}
	ts := p.format(at)
	switch {
	case strings.Contains(lower, "failed"):
		return "Failed at " + ts
	case strings.Contains(lower, "completed"):
		return "Completed at " + ts
	default:
		return "Last Run at " + ts
	}
}

// ToggleSchedule flips the schedule of inst and refreshes it.
func (p *Poller) ToggleSchedule(ctx context.Context, inst *task.Instance) (bool, error) {
	var (
		ok  bool
		err error
	)
	if p.src.ScheduleEnabled(inst) {
		ok, err = p.src.DisableSchedule(ctx, inst)
	} else {
		ok, err = p.src.EnableSchedule(ctx, inst)
	}
	if err != nil {
		return false, err
	}
	p.RefreshOne(ctx, inst)
	return ok, nil
}

func (p *Poller) StatusFor(inst *task.Instance) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status[inst.ID()]
}

func (p *Poller) LastRunFor(inst *task.Instance) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRun[inst.ID()]
}
