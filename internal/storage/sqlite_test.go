//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskctl/pkg/logx"
)

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "taskctl.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.AppendAudit(ctx, AuditEntry{Action: "create", Task: "a", OK: true}))
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{Action: "run", Task: "a", Error: "exit 1"}))
	got, err := st.RecentAudit(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run", got[0].Action)
	assert.Equal(t, "exit 1", got[0].Error)
	assert.True(t, got[1].OK)

	at := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, st.PutLastRun(ctx, LastRun{Unit: "u", Status: "Failed", At: at}))
	require.NoError(t, st.PutLastRun(ctx, LastRun{Unit: "u", Status: "Completed", At: at, RunID: "r"}))
	r, ok, err := st.GetLastRun(ctx, "u")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Completed", r.Status)
	assert.Equal(t, "r", r.RunID)
	assert.True(t, at.Equal(r.At))

	require.NoError(t, st.DeleteLastRun(ctx, "u"))
	_, ok, err = st.GetLastRun(ctx, "u")
	require.NoError(t, err)
	assert.False(t, ok)
}
