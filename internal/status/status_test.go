package status

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskctl/pkg/logx"
)

func TestParseTimestamp(t *testing.T) {
	t.Parallel()
	utc := time.UTC
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"empty", "", time.Time{}},
		{"n/a", "n/a", time.Time{}},
		{"zero micros", "0", time.Time{}},
		{"micros", "1715680800000000", time.UnixMicro(1715680800000000)},
		{"systemd utc", "Tue 2024-05-14 10:00:00 UTC", time.Date(2024, 5, 14, 10, 0, 0, 0, utc)},
		{"systemd est", "Tue 2024-05-14 10:00:00 EST", time.Date(2024, 5, 14, 15, 0, 0, 0, utc)},
		{"half hour", "Tue 2024-05-14 10:00:00 NST", time.Date(2024, 5, 14, 13, 30, 0, 0, utc)},
		{"india", "Tue 2024-05-14 10:00:00 IST", time.Date(2024, 5, 14, 4, 30, 0, 0, utc)},
		{"unknown zone", "Tue 2024-05-14 10:00:00 XYZT", time.Time{}},
		{"no zone", "2024-05-14 10:00:00", time.Date(2024, 5, 14, 10, 0, 0, 0, utc)},
		{"rfc3339", "2024-05-14T10:00:00Z", time.Date(2024, 5, 14, 10, 0, 0, 0, utc)},
		{"garbage", "yesterday-ish", time.Time{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseTimestamp(tt.in, utc)
			if tt.want.IsZero() {
				assert.True(t, got.IsZero(), "got %v", got)
				return
			}
			assert.True(t, tt.want.Equal(got), "want %v got %v", tt.want, got)
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	yes := func() bool { return true }
	no := func() bool { return false }
	started := "Tue 2024-05-14 10:00:00 UTC"

	tests := []struct {
		name   string
		props  Props
		recent Recency
		want   string
	}{
		{"failed", Props{"ActiveState": "failed", "SubState": "failed"}, nil, LabelFailed},
		{"activating", Props{"ActiveState": "activating", "SubState": "start"}, nil, LabelStarting},
		{"running", Props{"ActiveState": "active", "SubState": "running"}, nil, LabelRunning},
		{"timer waiting", Props{"ActiveState": "active", "SubState": "waiting"}, nil, LabelPending},
		{"never started", Props{"ActiveState": "inactive", "SubState": "dead", "Result": "success"}, yes, LabelInactive},
		{"never started micros", Props{"ActiveState": "inactive", "SubState": "dead", "ExecMainStartTimestampUSec": "0"}, yes, LabelInactive},
		{"success", Props{"ActiveState": "inactive", "SubState": "dead", "Result": "success", "ExecMainStartTimestamp": started}, no, LabelCompleted},
		{"non-success recent", Props{"ActiveState": "inactive", "SubState": "dead", "Result": "exit-code", "ExecMainStartTimestamp": started}, yes, LabelCompleted},
		{"non-success stale", Props{"ActiveState": "inactive", "SubState": "dead", "Result": "exit-code", "ExecMainStartTimestamp": started}, no, LabelInactive},
		{"absent", Props{}, nil, LabelInactive},
		{"fallback", Props{"ActiveState": "reloading", "SubState": "reload"}, nil, "reloading (reload)"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			first := Classify(tt.props, tt.recent)
			assert.Equal(t, tt.want, first)
			assert.Equal(t, first, Classify(tt.props, tt.recent))
		})
	}
}

func TestPick(t *testing.T) {
	t.Parallel()
	running := Props{"ActiveState": "active", "SubState": "running"}
	failed := Props{"ActiveState": "failed", "SubState": "failed"}
	dead := Props{"ActiveState": "inactive", "SubState": "dead"}
	timer := Props{"ActiveState": "active", "SubState": "waiting"}

	assert.Equal(t, running, Pick(running, timer, true))
	assert.Equal(t, failed, Pick(failed, timer, true))
	assert.Equal(t, timer, Pick(dead, timer, true))
	assert.Equal(t, dead, Pick(dead, timer, false))
	assert.Equal(t, dead, Pick(dead, Props{}, true))
}

func TestSmooth(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)
	done := now.Add(-time.Minute)

	assert.Equal(t, LabelCompleted, Smooth(LabelPending, done, now, 2*time.Minute))
	assert.Equal(t, LabelPending, Smooth(LabelPending, done, now, 30*time.Second))
	assert.Equal(t, LabelPending, Smooth(LabelPending, time.Time{}, now, 2*time.Minute))
	for _, strong := range []string{LabelFailed, LabelInactive, LabelRunning, LabelStarting} {
		assert.Equal(t, strong, Smooth(strong, done, now, 2*time.Minute))
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()
	assert.True(t, Terminal(LabelCompleted))
	assert.True(t, Terminal(LabelFailed))
	assert.True(t, Terminal(LabelInactive))
	assert.False(t, Terminal(LabelRunning))
	assert.False(t, Terminal(LabelPending))
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestResolverCachesWithinTTL(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)}
	r := NewResolver(Options{CacheTTL: time.Second, Now: clk.Now}, nil, logx.Nop())

	var calls atomic.Int32
	req := Request{Key: "RsyncTask/a", Fetch: func(context.Context) (Telemetry, error) {
		calls.Add(1)
		return Telemetry{Service: "ActiveState=active\nSubState=running\n"}, nil
	}}

	ctx := context.Background()
	assert.Equal(t, LabelRunning, r.Resolve(ctx, req).Text)
	assert.Equal(t, LabelRunning, r.Resolve(ctx, req).Text)
	assert.EqualValues(t, 1, calls.Load())

	clk.Add(2 * time.Second)
	r.Resolve(ctx, req)
	assert.EqualValues(t, 2, calls.Load())

	r.Fresh(ctx, req)
	assert.EqualValues(t, 3, calls.Load())
}

func TestResolverFetchErrorIsNeutral(t *testing.T) {
	t.Parallel()
	r := NewResolver(Options{CacheTTL: time.Second}, nil, logx.Nop())
	req := Request{Key: "k", Fetch: func(context.Context) (Telemetry, error) {
		return Telemetry{}, errors.New("bus down")
	}}
	snap := r.Resolve(context.Background(), req)
	assert.Equal(t, Snapshot{}, snap)
}

type fakeRecency struct{ ok bool }

func (f fakeRecency) RecentlyCompleted(context.Context, string, time.Duration) (bool, error) {
	return f.ok, nil
}

func TestResolverSmoothsAfterCompletion(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Date(2024, 5, 14, 10, 1, 0, 0, time.UTC)}
	r := NewResolver(Options{CompletedWindow: 2 * time.Minute, Now: clk.Now}, fakeRecency{}, logx.Nop())

	req := Request{Key: "k", ServiceUnit: "u.service", ScheduleEnabled: true, Fetch: func(context.Context) (Telemetry, error) {
		return Telemetry{
			Service: "ActiveState=inactive\nSubState=dead\nResult=success\n" +
				"ExecMainStartTimestamp=Tue 2024-05-14 09:59:00 UTC\nExecMainExitTimestamp=Tue 2024-05-14 10:00:00 UTC\n",
			Timer: "ActiveState=active\nSubState=waiting\nNextElapseUSecRealtime=Tue 2024-05-14 11:00:00 UTC\n",
		}, nil
	}}

	snap := r.Resolve(context.Background(), req)
	assert.Equal(t, LabelCompleted, snap.Text)
	assert.Equal(t, time.Date(2024, 5, 14, 9, 59, 0, 0, time.UTC).UnixMilli(), snap.LastRunMs())
	assert.Equal(t, time.Date(2024, 5, 14, 11, 0, 0, 0, time.UTC).UnixMilli(), snap.NextRunMs())

	clk.Add(5 * time.Minute)
	assert.Equal(t, LabelPending, r.Resolve(context.Background(), req).Text)

	r.Remove("k")
	require.Empty(t, r.completed)
}
