package task

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskctl/internal/param"
)

func TestNormalizeTemplateKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"ZfsReplicationTask", KeyZfsReplication},
		{"zfs-replication-task", KeyZfsReplication},
		{"ZFS Replication Task", KeyZfsReplication},
		{"rsync", KeyRsync},
		{"RSYNC_TASK", KeyRsync},
		{"smart test", KeySmartTest},
		{"Cloud Sync Task", KeyCloudSync},
		{"custom", KeyCustom},
		{"autosnap", KeyAutoSnapshot},
		{"NoSuchThing", "NoSuchThing"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeTemplateKey(tt.in))
		})
	}
}

func TestLookupUnknown(t *testing.T) {
	t.Parallel()
	_, err := Lookup("NoSuchThing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTemplate))
}

func TestUnitName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		scope  Scope
		daemon bool
		want   string
	}{
		{"user daemon", ScopeUser, true, "scheduler_RsyncTask_nightly_u1000"},
		{"user legacy", ScopeUser, false, "scheduler_RsyncTask_nightly"},
		{"system daemon", ScopeSystem, true, "scheduler_RsyncTask_nightly"},
		{"system legacy", ScopeSystem, false, "scheduler_RsyncTask_nightly"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := UnitName(KeyRsync, "nightly", tt.scope, tt.daemon, 1000)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, UnitName(KeyRsync, "nightly", tt.scope, tt.daemon, 1000))
			if tt.scope == ScopeSystem {
				assert.NotContains(t, got, "_u")
			}
		})
	}
}

func TestParseUnitName(t *testing.T) {
	t.Parallel()
	key, name, ok := ParseUnitName("scheduler_ZfsReplicationTask_pool_a_to_b")
	require.True(t, ok)
	assert.Equal(t, KeyZfsReplication, key)
	assert.Equal(t, "pool_a_to_b", name)

	_, _, ok = ParseUnitName("sshd")
	assert.False(t, ok)
	_, _, ok = ParseUnitName("scheduler_Unknown_x")
	assert.False(t, ok)
}

func TestInstancesDoNotShareSchema(t *testing.T) {
	t.Parallel()
	a, err := New(KeyRsync, "a", map[string]string{"rsyncConfig_local_path": "/tank/a"})
	require.NoError(t, err)
	b, err := New(KeyRsync, "b", nil)
	require.NoError(t, err)

	a.Parameters.Find("rsyncConfig_target_info_host").Set("10.0.0.9")
	assert.Equal(t, "", b.Parameters.Find("rsyncConfig_target_info_host").Value())
	assert.Equal(t, "", a.Template.Schema().Find("rsyncConfig_target_info_host").Value())
	assert.Equal(t, "/tank/a", a.Parameters.Find("rsyncConfig_local_path").Value())
}

func TestEnvLinesPostProcessing(t *testing.T) {
	t.Parallel()
	inst, err := New(KeyZfsReplication, "rep", map[string]string{
		"zfsRepConfig_sendOptions_raw_flag":        "true",
		"zfsRepConfig_sendOptions_compressed_flag": "true",
		"zfsRepConfig_sendOptions_mbufferSize":     "0",
		"zfsRepConfig_sendOptions_customName":      "ignored",
	})
	require.NoError(t, err)

	env := param.ParseEnvLines(inst.EnvLines())
	assert.Equal(t, "false", env["zfsRepConfig_sendOptions_compressed_flag"])
	assert.Equal(t, "", env["zfsRepConfig_sendOptions_mbufferSize"])
	assert.Equal(t, "", env["zfsRepConfig_sendOptions_mbufferUnit"])
	assert.Equal(t, "", env["zfsRepConfig_sendOptions_customName"])
	assert.Equal(t, "5", env["zfsRepConfig_snapRetention_source"])

	daemon := EnvMap(inst.EnvLines())
	_, has := daemon["zfsRepConfig_sendOptions_mbufferUnit"]
	assert.False(t, has, "empty values are not sent")
	assert.Equal(t, "true", daemon["zfsRepConfig_sendOptions_raw_flag"])
}

func TestEnvLinesKeepSchemaOrder(t *testing.T) {
	t.Parallel()
	inst, err := New(KeyScrub, "weekly", map[string]string{"scrubConfig_pool_pool": "tank"})
	require.NoError(t, err)
	assert.Equal(t, []string{"scrubConfig_pool_pool=tank"}, inst.EnvLines())
}

func TestRsyncBandwidthScrubbed(t *testing.T) {
	t.Parallel()
	inst, err := New(KeyRsync, "r", map[string]string{
		"rsyncConfig_rsyncOptions_bandwidth_limit_kbps": "0",
		"rsyncConfig_rsyncOptions_parallel_threads":     "8",
	})
	require.NoError(t, err)
	env := param.ParseEnvLines(inst.EnvLines())
	assert.Equal(t, "", env["rsyncConfig_rsyncOptions_bandwidth_limit_kbps"])
	assert.Equal(t, "", env["rsyncConfig_rsyncOptions_parallel_threads"])
}

func TestScriptPath(t *testing.T) {
	t.Parallel()
	inst, err := New(KeyCloudSync, "c", nil)
	require.NoError(t, err)
	p, err := inst.ScriptPath("/opt/scripts")
	require.NoError(t, err)
	assert.Equal(t, "/opt/scripts/cloudsync-script.py", p)

	custom, err := New(KeyCustom, "c", nil)
	require.NoError(t, err)
	_, err = custom.ScriptPath("/opt/scripts")
	require.Error(t, err)

	custom.Parameters.Find("customConfig_path").Set("/root/backup.sh")
	p, err = custom.ScriptPath("/opt/scripts")
	require.NoError(t, err)
	assert.Equal(t, "/root/backup.sh", p)
}

func TestCloudAuthSchema(t *testing.T) {
	t.Parallel()
	auth, err := CloudAuthSchema("s3", "Wasabi", false)
	require.NoError(t, err)
	assert.Equal(t, "auth", auth.Key)
	assert.Equal(t, "Wasabi", auth.Find("auth_provider").Value())
	assert.Nil(t, auth.Find("auth_chunk_size"))

	full, err := CloudAuthSchema("onedrive", "", true)
	require.NoError(t, err)
	assert.Equal(t, "global", full.Find("auth_region").Value())
	assert.NotNil(t, full.Find("auth_drive_type"))
	assert.NoError(t, full.Validate())

	_, err = CloudAuthSchema("s3", "Minio", false)
	assert.True(t, errors.Is(err, ErrUnsupportedProvider))
	_, err = CloudAuthSchema("ftp", "", false)
	assert.True(t, errors.Is(err, ErrUnsupportedProvider))
}

func TestTemplateSchemasValidate(t *testing.T) {
	t.Parallel()
	for _, tpl := range Templates() {
		s := tpl.Schema()
		require.NoError(t, s.Validate(), tpl.Key)
		s.Walk(func(k string, _ *param.Node) {
			assert.True(t, strings.HasPrefix(k, tpl.RootKey()+"_"), k)
		})
	}
}
