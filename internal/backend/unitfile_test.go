package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskctl/internal/schedule"
	"taskctl/internal/task"
	"taskctl/pkg/logx"
	"taskctl/pkg/systemd"
	"taskctl/pkg/systemdmanager"
)

type fakeUnits struct {
	mu      sync.Mutex
	ops     []string
	enabled map[string]bool
	states  map[string]*systemdmanager.UnitState
}

func newFakeUnits() *fakeUnits {
	return &fakeUnits{enabled: map[string]bool{}, states: map[string]*systemdmanager.UnitState{}}
}

func (f *fakeUnits) record(op string) {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.mu.Unlock()
}

func (f *fakeUnits) StartNoWait(_ context.Context, u string) error {
	f.record("start-nowait " + u)
	return nil
}
func (f *fakeUnits) Start(_ context.Context, u string) error   { f.record("start " + u); return nil }
func (f *fakeUnits) Stop(_ context.Context, u string) error    { f.record("stop " + u); return nil }
func (f *fakeUnits) Restart(_ context.Context, u string) error { f.record("restart " + u); return nil }
func (f *fakeUnits) ResetFailed(_ context.Context, u string) error {
	f.record("reset-failed " + u)
	return nil
}
func (f *fakeUnits) Reload(context.Context) error { f.record("reload"); return nil }
func (f *fakeUnits) Close() error                 { return nil }

func (f *fakeUnits) Enable(_ context.Context, u string) error {
	f.record("enable " + u)
	f.mu.Lock()
	f.enabled[u] = true
	f.mu.Unlock()
	return nil
}

func (f *fakeUnits) Disable(_ context.Context, u string) error {
	f.record("disable " + u)
	f.mu.Lock()
	delete(f.enabled, u)
	f.mu.Unlock()
	return nil
}

func (f *fakeUnits) IsEnabled(_ context.Context, u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[u]
}

func (f *fakeUnits) State(_ context.Context, u string) (*systemdmanager.UnitState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.states[u]; ok {
		return st, nil
	}
	return &systemdmanager.UnitState{Name: u, Active: "inactive", SubState: "dead", LoadState: "loaded"}, nil
}

func (f *fakeUnits) has(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.ops {
		if o == op {
			return true
		}
	}
	return false
}

type fakeShow map[string]string

func (f fakeShow) Show(_ context.Context, unit string, _ ...string) (string, error) {
	if v, ok := f[unit]; ok {
		return v, nil
	}
	return "", systemd.ErrNotFound
}

func newUnitFiles(t *testing.T) (*UnitFiles, *fakeUnits, string) {
	t.Helper()
	dir := t.TempDir()
	units := newFakeUnits()
	u, err := NewUnitFiles(UnitFileOptions{UnitDir: dir}, units, fakeShow{}, logx.Nop())
	require.NoError(t, err)
	return u, units, dir
}

func submission(t *testing.T, s schedule.Schedule) Submission {
	t.Helper()
	inst := newInstance(t, task.KeyRsync, "nightly", map[string]string{
		"rsyncConfig_local_path":                "/tank/data",
		"rsyncConfig_target_info_host":          "backup",
		"rsyncConfig_rsyncOptions_archive_flag": "true",
		"rsyncConfig_rsyncOptions_delete_flag":  "false",
	})
	inst.Schedule = s
	inst.Notes = "offsite copy"
	return Submission{Instance: inst, Env: inst.EnvLines(), Script: "/opt/scripts/rsync-script.py"}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestUnitFilesCreateScheduled(t *testing.T) {
	t.Parallel()
	u, units, dir := newUnitFiles(t)
	sub := submission(t, schedule.Schedule{Enabled: true, Intervals: []schedule.Interval{
		{Hour: schedule.F("2"), Minute: schedule.F("30")},
		{DayOfWeek: []string{"Sat"}, Hour: schedule.F("12"), Minute: schedule.F("0")},
	}})

	require.NoError(t, u.Create(context.Background(), sub))
	base := filepath.Join(dir, "scheduler_RsyncTask_nightly")

	svc := readFile(t, base+".service")
	assert.Contains(t, svc, "EnvironmentFile="+base+".env")
	assert.Contains(t, svc, "Type=oneshot")
	assert.Contains(t, svc, "ExecStart=/usr/bin/python3 /opt/scripts/rsync-script.py --source ${rsyncConfig_local_path}")
	assert.Contains(t, svc, "--archive")
	assert.NotContains(t, svc, "--delete")

	timer := readFile(t, base+".timer")
	assert.Contains(t, timer, "OnCalendar=*-*-* 02:30:00\n")
	assert.Contains(t, timer, "OnCalendar=Sat *-*-* 12:00:00\n")
	assert.Contains(t, timer, "Persistent=true")

	assert.Equal(t, "offsite copy", readFile(t, base+".txt"))
	assert.Contains(t, readFile(t, base+".env"), "rsyncConfig_local_path=/tank/data\n")

	assert.True(t, units.has("reload"))
	assert.True(t, units.has("enable scheduler_RsyncTask_nightly.timer"))
	assert.True(t, units.has("start scheduler_RsyncTask_nightly.timer"))

	// Re-arming an enabled timer restarts it.
	require.NoError(t, u.Update(context.Background(), sub))
	assert.True(t, units.has("restart scheduler_RsyncTask_nightly.timer"))
}

func TestUnitFilesStandaloneHasNoTimer(t *testing.T) {
	t.Parallel()
	u, units, dir := newUnitFiles(t)
	require.NoError(t, u.Create(context.Background(), submission(t, schedule.Schedule{})))

	_, err := os.Stat(filepath.Join(dir, "scheduler_RsyncTask_nightly.timer"))
	assert.True(t, os.IsNotExist(err))
	assert.FileExists(t, filepath.Join(dir, "scheduler_RsyncTask_nightly.service"))
	assert.False(t, units.has("enable scheduler_RsyncTask_nightly.timer"))
}

func TestUnitFilesListRoundTrip(t *testing.T) {
	t.Parallel()
	u, _, dir := newUnitFiles(t)
	sub := submission(t, schedule.Schedule{Enabled: true, Intervals: []schedule.Interval{{Hour: schedule.F("*/2")}}})
	require.NoError(t, u.Create(context.Background(), sub))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scheduler_Bogus_x.env"), []byte("a=b\n"), 0o600))

	recs, err := u.List(context.Background(), task.ScopeSystem)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	var good Record
	for _, r := range recs {
		if r.Name == "nightly" {
			good = r
		}
	}
	assert.Equal(t, task.KeyRsync, good.Template)
	assert.Equal(t, "/tank/data", good.Env["rsyncConfig_local_path"])
	assert.True(t, good.Schedule.Enabled)
	assert.Equal(t, "*/2", good.Schedule.Intervals[0].Hour.Value)
	assert.Equal(t, "offsite copy", good.Notes)

	none, err := u.List(context.Background(), task.ScopeUser)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUnitFilesDisableSchedule(t *testing.T) {
	t.Parallel()
	u, units, dir := newUnitFiles(t)
	sub := submission(t, schedule.Schedule{Enabled: true, Intervals: []schedule.Interval{{Hour: schedule.F("2")}}})
	require.NoError(t, u.Create(context.Background(), sub))

	require.NoError(t, u.EnableSchedule(context.Background(), sub.Instance, false))
	assert.True(t, units.has("stop scheduler_RsyncTask_nightly.timer"))
	assert.True(t, units.has("disable scheduler_RsyncTask_nightly.timer"))
	assert.Contains(t, readFile(t, filepath.Join(dir, "scheduler_RsyncTask_nightly.json")), `"enabled":false`)
}

func TestUnitFilesDeleteRemovesEverything(t *testing.T) {
	t.Parallel()
	u, _, dir := newUnitFiles(t)
	sub := submission(t, schedule.Schedule{Enabled: true, Intervals: []schedule.Interval{{Hour: schedule.F("2")}}})
	require.NoError(t, u.Create(context.Background(), sub))

	require.NoError(t, u.Delete(context.Background(), sub.Instance))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnitFilesRenameRetiresOldUnit(t *testing.T) {
	t.Parallel()
	u, _, dir := newUnitFiles(t)
	sub := submission(t, schedule.Schedule{})
	require.NoError(t, u.Create(context.Background(), sub))

	sub.OldName = "nightly"
	sub.Instance.Name = "weekly"
	require.NoError(t, u.Update(context.Background(), sub))

	assert.NoFileExists(t, filepath.Join(dir, "scheduler_RsyncTask_nightly.env"))
	assert.FileExists(t, filepath.Join(dir, "scheduler_RsyncTask_weekly.env"))
}

func TestUnitFilesRunResetsFailedFirst(t *testing.T) {
	t.Parallel()
	u, units, _ := newUnitFiles(t)
	inst := newInstance(t, task.KeyScrub, "s", nil)
	require.NoError(t, u.Run(context.Background(), inst))
	require.Len(t, units.ops, 2)
	assert.Equal(t, "reset-failed scheduler_ScrubTask_s.service", units.ops[0])
	assert.Equal(t, "start-nowait scheduler_ScrubTask_s.service", units.ops[1])
}

func TestUnitFilesTelemetryTreatsMissingAsEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	show := fakeShow{"scheduler_ScrubTask_s.service": "ActiveState=inactive\n"}
	u, err := NewUnitFiles(UnitFileOptions{UnitDir: dir}, newFakeUnits(), show, logx.Nop())
	require.NoError(t, err)

	tel, err := u.Telemetry(context.Background(), newInstance(t, task.KeyScrub, "s", nil))
	require.NoError(t, err)
	assert.Equal(t, "ActiveState=inactive\n", tel.Service)
	assert.Equal(t, "", tel.Timer)
}

func TestUnitTemplateOverride(t *testing.T) {
	t.Parallel()
	tdir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tdir, ServiceTemplateFile), []byte("custom {{.Unit}}\n"), 0o644))
	dir := t.TempDir()
	u, err := NewUnitFiles(UnitFileOptions{UnitDir: dir, TemplateDir: tdir}, newFakeUnits(), fakeShow{}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, u.Create(context.Background(), submission(t, schedule.Schedule{})))
	assert.Equal(t, "custom scheduler_RsyncTask_nightly\n", readFile(t, filepath.Join(dir, "scheduler_RsyncTask_nightly.service")))
	assert.True(t, strings.HasPrefix(readFile(t, filepath.Join(dir, "scheduler_RsyncTask_nightly.env")), "rsyncConfig_local_path="))
}
