package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskctl/internal/status"
	"taskctl/internal/task"
	"taskctl/internal/tasklog"
	"taskctl/pkg/logx"
)

type fakeTasks struct {
	mu      sync.Mutex
	tasks   []*task.Instance
	snaps   map[string]status.Snapshot
	toggles []bool
	queries int
	reads   int
}

func (f *fakeTasks) Tasks() []*task.Instance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*task.Instance(nil), f.tasks...)
}

func (f *fakeTasks) Status(_ context.Context, inst *task.Instance) status.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	return f.snaps[inst.ID()]
}

func (f *fakeTasks) set(inst *task.Instance, s status.Snapshot) {
	f.mu.Lock()
	f.snaps[inst.ID()] = s
	f.mu.Unlock()
}

func (f *fakeTasks) UnitName(inst *task.Instance) string { return "scheduler_ScrubTask_" + inst.Name }

func (f *fakeTasks) ScheduleEnabled(inst *task.Instance) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return inst.Schedule.Enabled
}

func (f *fakeTasks) EnableSchedule(_ context.Context, inst *task.Instance) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles = append(f.toggles, true)
	inst.Schedule.Enabled = true
	return true, nil
}

func (f *fakeTasks) DisableSchedule(_ context.Context, inst *task.Instance) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles = append(f.toggles, false)
	inst.Schedule.Enabled = false
	return true, nil
}

type fakeHistory struct{ entry tasklog.Entry }

func (f fakeHistory) LatestEntryFor(context.Context, string, string) tasklog.Entry { return f.entry }

var (
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	format   = func(t time.Time) string { return t.UTC().Format(time.DateTime) }
)

func newInst(t *testing.T, name string) *task.Instance {
	t.Helper()
	inst, err := task.New(task.KeyScrub, name, nil)
	require.NoError(t, err)
	return inst
}

func newPoller(src Tasks, hist History) *Poller {
	return New(src, hist, Options{Interval: time.Millisecond, Format: format, Now: func() time.Time { return fixedNow }}, logx.Nop())
}

func TestLastRunLabels(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 2, 28, 3, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		snap status.Snapshot
		hist tasklog.Entry
		prev string
		want string
	}{
		{"running", status.Snapshot{Text: status.LabelRunning, LastRun: at}, tasklog.Entry{}, "", LabelRunningNow},
		{"starting", status.Snapshot{Text: status.LabelStarting}, tasklog.Entry{}, "", LabelRunningNow},
		{"failed", status.Snapshot{Text: status.LabelFailed, LastRun: at}, tasklog.Entry{}, "", "Failed at 2026-02-28 03:00:00"},
		{"completed", status.Snapshot{Text: status.LabelCompleted, LastRun: at}, tasklog.Entry{}, "", "Completed at 2026-02-28 03:00:00"},
		{"pending", status.Snapshot{Text: status.LabelPending, LastRun: at}, tasklog.Entry{}, "", "Last Run at 2026-02-28 03:00:00"},
		{"log finish", status.Snapshot{Text: status.LabelCompleted}, tasklog.Entry{Start: at, Finish: at.Add(time.Minute)}, "", "Completed at 2026-02-28 03:01:00"},
		{"log start", status.Snapshot{Text: status.LabelInactive}, tasklog.Entry{Start: at}, "", "Last Run at 2026-02-28 03:00:00"},
		{"stopped", status.Snapshot{Text: status.LabelInactive}, tasklog.Entry{}, LabelRunningNow, "Stopped at 2026-03-01 12:00:00"},
		{"keeps previous", status.Snapshot{Text: status.LabelInactive}, tasklog.Entry{}, "Completed at x", "Completed at x"},
		{"never", status.Snapshot{}, tasklog.Entry{}, "", LabelNeverRun},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inst := newInst(t, "a")
			src := &fakeTasks{tasks: []*task.Instance{inst}, snaps: map[string]status.Snapshot{inst.ID(): tt.snap}}
			p := newPoller(src, fakeHistory{entry: tt.hist})
			if tt.prev != "" {
				p.lastRun[inst.ID()] = tt.prev
			}
			p.RefreshOne(context.Background(), inst)
			assert.Equal(t, tt.want, p.LastRunFor(inst))
		})
	}
}

func TestEmptyStatusIsInactive(t *testing.T) {
	t.Parallel()
	inst := newInst(t, "a")
	src := &fakeTasks{tasks: []*task.Instance{inst}, snaps: map[string]status.Snapshot{}}
	p := newPoller(src, nil)
	p.RefreshOne(context.Background(), inst)
	assert.Equal(t, status.LabelInactive, p.StatusFor(inst))
	assert.Equal(t, LabelNeverRun, p.LastRunFor(inst))
}

func TestRunningThenStopped(t *testing.T) {
	t.Parallel()
	inst := newInst(t, "a")
	src := &fakeTasks{tasks: []*task.Instance{inst}, snaps: map[string]status.Snapshot{}}
	p := newPoller(src, nil)
	ctx := context.Background()

	src.set(inst, status.Snapshot{Text: status.LabelRunning})
	p.RefreshOne(ctx, inst)
	assert.Equal(t, LabelRunningNow, p.LastRunFor(inst))

	src.set(inst, status.Snapshot{Text: status.LabelInactive})
	p.RefreshOne(ctx, inst)
	assert.Equal(t, "Stopped at 2026-03-01 12:00:00", p.LastRunFor(inst))
}

func TestRefreshAllPrunesRemovedTasks(t *testing.T) {
	t.Parallel()
	a, b := newInst(t, "a"), newInst(t, "b")
	src := &fakeTasks{tasks: []*task.Instance{a, b}, snaps: map[string]status.Snapshot{}}
	p := newPoller(src, nil)
	ctx := context.Background()

	require.NoError(t, p.RefreshAll(ctx))
	assert.NotEmpty(t, p.StatusFor(b))

	src.mu.Lock()
	src.tasks = []*task.Instance{a}
	src.mu.Unlock()
	require.NoError(t, p.RefreshAll(ctx))
	assert.NotEmpty(t, p.StatusFor(a))
	assert.Empty(t, p.StatusFor(b))
}

func TestToggleSchedule(t *testing.T) {
	t.Parallel()
	inst := newInst(t, "a")
	src := &fakeTasks{tasks: []*task.Instance{inst}, snaps: map[string]status.Snapshot{}}
	p := newPoller(src, nil)
	ctx := context.Background()

	ok, err := p.ToggleSchedule(ctx, inst)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, inst.Schedule.Enabled)

	_, err = p.ToggleSchedule(ctx, inst)
	require.NoError(t, err)
	assert.False(t, inst.Schedule.Enabled)
	assert.Equal(t, []bool{true, false}, src.toggles)
	assert.Equal(t, 2, src.queries)
	assert.Equal(t, 2, src.reads, "the flag is read through the task source")
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	inst := newInst(t, "a")
	src := &fakeTasks{tasks: []*task.Instance{inst}, snaps: map[string]status.Snapshot{}}
	p := newPoller(src, nil)

	p.Start(context.Background())
	p.Start(context.Background())
	assert.True(t, p.Running())
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.queries >= 3
	}, time.Second, time.Millisecond)

	p.Stop()
	assert.False(t, p.Running())
	src.mu.Lock()
	n := src.queries
	src.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	src.mu.Lock()
	assert.Equal(t, n, src.queries)
	src.mu.Unlock()
	p.Stop()
}
