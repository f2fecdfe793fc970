package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskctl/internal/task"
)

const twoTasks = `[{"name":"a","template":"RsyncTask","env":{"rsyncConfig_local_path":"/tank"},"schedule":{"enabled":true,"intervals":[{"hour":{"value":"2"}}]}},` +
	`{"name":"b","template":"ScrubTask","env":["scrubConfig_pool_pool=tank"],"schedule":"{\"enabled\":false,\"intervals\":[]}","notes":"weekly"}]`

func TestDecodeTaskListUnwrapsDoubleEncoding(t *testing.T) {
	t.Parallel()
	inner, err := json.Marshal(twoTasks)
	require.NoError(t, err)
	wrapped := "[" + string(inner) + "]"

	tests := []struct {
		name string
		raw  string
	}{
		{"plain", twoTasks},
		{"wrapped", wrapped},
		{"string", string(inner)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			items, err := DecodeTaskList([]byte(tt.raw))
			require.NoError(t, err)
			require.Len(t, items, 2)

			a, err := decodeRecord(items[0], task.ScopeUser)
			require.NoError(t, err)
			assert.Equal(t, "a", a.Name)
			assert.Equal(t, "/tank", a.Env["rsyncConfig_local_path"])
			assert.True(t, a.Schedule.Enabled)
			assert.Equal(t, task.ScopeUser, a.Scope)

			b, err := decodeRecord(items[1], task.ScopeUser)
			require.NoError(t, err)
			assert.Equal(t, "tank", b.Env["scrubConfig_pool_pool"])
			assert.False(t, b.Schedule.Enabled)
			assert.Equal(t, "weekly", b.Notes)
		})
	}
}

func TestDecodeTaskListEmptyAndBroken(t *testing.T) {
	t.Parallel()
	items, err := DecodeTaskList(nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = DecodeTaskList([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = DecodeTaskList([]byte(`{"not":"a list"}`))
	assert.Error(t, err)
}

func TestDecodeRecordScalars(t *testing.T) {
	t.Parallel()
	rec, err := decodeRecord(json.RawMessage(`{"name":"x","template":"ZfsReplicationTask","parameters":{"zfsRepConfig_sendOptions_raw_flag":true,"zfsRepConfig_destDataset_port":2222},"scope":"system"}`), task.ScopeUser)
	require.NoError(t, err)
	assert.Equal(t, "true", rec.Env["zfsRepConfig_sendOptions_raw_flag"])
	assert.Equal(t, "2222", rec.Env["zfsRepConfig_destDataset_port"])
	assert.Equal(t, task.ScopeSystem, rec.Scope)
	assert.False(t, rec.Schedule.HasIntervals())
}
