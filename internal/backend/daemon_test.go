package backend

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskctl/internal/schedule"
	"taskctl/internal/task"
	"taskctl/pkg/logx"
)

type call struct {
	method string
	args   []any
}

type fakeCaller struct {
	mu      sync.Mutex
	calls   []call
	replies map[string][]any
	errs    map[string]error
}

func (f *fakeCaller) Call(_ context.Context, method string, args ...any) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method: method, args: args})
	if err := f.errs[method]; err != nil {
		return nil, err
	}
	return f.replies[method], nil
}

func newInstance(t *testing.T, key, name string, flat map[string]string) *task.Instance {
	t.Helper()
	inst, err := task.New(key, name, flat)
	require.NoError(t, err)
	return inst
}

func TestDaemonCreateSendsPositionalArgs(t *testing.T) {
	t.Parallel()
	fc := &fakeCaller{}
	d := NewDaemon(fc, DaemonOptions{UID: 1000}, logx.Nop())

	inst := newInstance(t, task.KeyScrub, "weekly", map[string]string{"scrubConfig_pool_pool": "tank"})
	inst.Scope = task.ScopeUser
	inst.Notes = "n"
	inst.Schedule = schedule.Schedule{Enabled: true, Intervals: []schedule.Interval{{Hour: schedule.F("2")}}}

	require.NoError(t, d.Create(context.Background(), Submission{Instance: inst, Env: inst.EnvLines(), Script: "/s/scrub-script.py"}))
	require.Len(t, fc.calls, 1)
	c := fc.calls[0]
	assert.Equal(t, "CreateTask", c.method)
	require.Len(t, c.args, 6)
	assert.Equal(t, task.KeyScrub, c.args[0])
	assert.Equal(t, map[string]string{"scrubConfig_pool_pool": "tank"}, c.args[1])
	assert.Equal(t, "/s/scrub-script.py", c.args[2])
	assert.JSONEq(t, `{"enabled":true,"intervals":[{"hour":{"value":"2"}}]}`, c.args[3].(string))
	assert.Equal(t, "n", c.args[4])
	assert.Equal(t, "auto", c.args[5])

	assert.Equal(t, "scheduler_ScrubTask_weekly_u1000", inst.UnitName(d.Naming()))
}

func TestDaemonUpdateUsesOldName(t *testing.T) {
	t.Parallel()
	fc := &fakeCaller{}
	d := NewDaemon(fc, DaemonOptions{}, logx.Nop())
	inst := newInstance(t, task.KeyRsync, "new", nil)

	require.NoError(t, d.Update(context.Background(), Submission{Instance: inst, OldName: "old"}))
	assert.Equal(t, "UpdateTask", fc.calls[0].method)
	assert.Equal(t, "old", fc.calls[0].args[1])

	require.NoError(t, d.EnableSchedule(context.Background(), inst, false))
	assert.Equal(t, []any{task.KeyRsync, "new", "false"}, fc.calls[1].args)
}

func TestDaemonListSkipsUndecodable(t *testing.T) {
	t.Parallel()
	fc := &fakeCaller{replies: map[string][]any{
		"ListTasks": {`[{"name":"a","template":"RsyncTask"},{"name":"b","env":42},{"template":"ScrubTask"}]`},
	}}
	d := NewDaemon(fc, DaemonOptions{}, logx.Nop())
	recs, err := d.List(context.Background(), task.ScopeSystem)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].Name)
	assert.Equal(t, "", recs[1].Name)
	assert.Equal(t, []any{"system"}, fc.calls[0].args)
}

func TestDaemonTelemetryReplyShapes(t *testing.T) {
	t.Parallel()
	inst := newInstance(t, task.KeyRsync, "a", nil)
	tests := []struct {
		name  string
		reply any
	}{
		{"json", `{"scope":"user","unit":"u","service":"ActiveState=active","timer":"ActiveState=inactive"}`},
		{"map", map[string]string{"scope": "user", "unit": "u", "service": "ActiveState=active", "timer": "ActiveState=inactive"}},
		{"variants", map[string]dbus.Variant{
			"scope": dbus.MakeVariant("user"), "unit": dbus.MakeVariant("u"),
			"service": dbus.MakeVariant("ActiveState=active"), "timer": dbus.MakeVariant("ActiveState=inactive"),
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fc := &fakeCaller{replies: map[string][]any{"GetStatus": {tt.reply}}}
			tel, err := NewDaemon(fc, DaemonOptions{}, logx.Nop()).Telemetry(context.Background(), inst)
			require.NoError(t, err)
			assert.Equal(t, "u", tel.Unit)
			assert.Equal(t, "ActiveState=active", tel.Service)
			assert.Equal(t, "ActiveState=inactive", tel.Timer)
		})
	}
}

func TestDaemonErrorsPropagate(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	fc := &fakeCaller{errs: map[string]error{"RunNow": boom}}
	err := NewDaemon(fc, DaemonOptions{}, logx.Nop()).Run(context.Background(), newInstance(t, task.KeyRsync, "a", nil))
	assert.ErrorIs(t, err, boom)
}
