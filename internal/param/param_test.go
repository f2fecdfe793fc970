package param

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSchema() *Node {
	return Group("Replication", "zfsRepConfig",
		Dataset("Source", "sourceDataset", 0),
		Dataset("Destination", "destDataset", 22),
		Group("Send Options", "sendOptions",
			Bool("Raw", "raw_flag", false),
			Int("MBuffer Size", "mbufferSize", 1),
			String("MBuffer Unit", "mbufferUnit", "G"),
			Selection("Mode", "mode", "fast", Option{Value: "fast", Label: "Fast"}, Option{Value: "safe", Label: "Safe"}),
		),
	)
}

func TestEnvKeyValuesUsesFullPath(t *testing.T) {
	t.Parallel()
	lines := sampleSchema().EnvKeyValues()
	assert.Contains(t, lines, "zfsRepConfig_destDataset_port=22")
	assert.Contains(t, lines, "zfsRepConfig_sendOptions_raw_flag=false")
	assert.Contains(t, lines, "zfsRepConfig_sendOptions_mbufferUnit=G")
	assert.Contains(t, lines, "zfsRepConfig_sourceDataset_pool=")
	assert.Len(t, lines, 14)
}

func TestEmptyRootKeyAddsNoPrefix(t *testing.T) {
	t.Parallel()
	n := Group("", "", String("A", "a", "1"), Group("B", "b", Bool("C", "c", true)))
	assert.Equal(t, []string{"a=1", "b_c=true"}, n.EnvKeyValues())
}

func TestHydrateCoercion(t *testing.T) {
	t.Parallel()
	schema := sampleSchema()
	got, err := Hydrate(schema, map[string]string{
		"zfsRepConfig_sendOptions_raw_flag":    "true",
		"zfsRepConfig_sendOptions_mbufferSize": "abc",
		"zfsRepConfig_destDataset_host":        "10.0.0.2",
		"zfsRepConfig_unknown":                 "ignored",
	})
	require.NoError(t, err)

	assert.True(t, got.Find("zfsRepConfig_sendOptions_raw_flag").Flag())
	_, ok := got.Find("zfsRepConfig_sendOptions_mbufferSize").Int()
	assert.False(t, ok, "invalid int must be flagged")
	assert.Equal(t, "", got.Find("zfsRepConfig_sendOptions_mbufferSize").Value())
	assert.Equal(t, "10.0.0.2", got.Find("zfsRepConfig_destDataset_host").Value())
	// Missing keys keep defaults.
	assert.Equal(t, "22", got.Find("zfsRepConfig_destDataset_port").Value())
	assert.Nil(t, got.Find("zfsRepConfig_unknown"))

	// Bool accepts only the literal "true".
	got, err = Hydrate(schema, map[string]string{"zfsRepConfig_sendOptions_raw_flag": "TRUE"})
	require.NoError(t, err)
	assert.False(t, got.Find("zfsRepConfig_sendOptions_raw_flag").Flag())
}

func TestHydrateSharesNoNodes(t *testing.T) {
	t.Parallel()
	schema := sampleSchema()
	a, err := Hydrate(schema, nil)
	require.NoError(t, err)
	b, err := Hydrate(schema, nil)
	require.NoError(t, err)

	a.Find("zfsRepConfig_destDataset_host").Set("changed")
	assert.Equal(t, "", b.Find("zfsRepConfig_destDataset_host").Value())
	assert.Equal(t, "", schema.Find("zfsRepConfig_destDataset_host").Value())
	assert.NotSame(t, schema.Children[0], a.Children[0])
	assert.Equal(t, KindDataset, a.Children[0].Kind)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		flat map[string]string
	}{
		{name: "empty", flat: map[string]string{}},
		{name: "partial", flat: map[string]string{"zfsRepConfig_sendOptions_raw_flag": "true", "zfsRepConfig_sourceDataset_pool": "tank"}},
		{name: "full", flat: map[string]string{
			"zfsRepConfig_sourceDataset_host":      "",
			"zfsRepConfig_sourceDataset_port":      "0",
			"zfsRepConfig_sourceDataset_user":      "root",
			"zfsRepConfig_sourceDataset_pool":      "tank",
			"zfsRepConfig_sourceDataset_dataset":   "tank/data",
			"zfsRepConfig_destDataset_host":        "backup.lan",
			"zfsRepConfig_destDataset_port":        "2222",
			"zfsRepConfig_destDataset_user":        "zfs",
			"zfsRepConfig_destDataset_pool":        "vault",
			"zfsRepConfig_destDataset_dataset":     "vault/data",
			"zfsRepConfig_sendOptions_raw_flag":    "false",
			"zfsRepConfig_sendOptions_mbufferSize": "4",
			"zfsRepConfig_sendOptions_mbufferUnit": "M",
			"zfsRepConfig_sendOptions_mode":        "safe",
		}},
		{name: "surrounding whitespace and separators", flat: map[string]string{
			"zfsRepConfig_sourceDataset_dataset":   " tank/my data ",
			"zfsRepConfig_destDataset_user":        "zfs\t",
			"zfsRepConfig_sendOptions_mbufferUnit": "#M=1 ",
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			schema := sampleSchema()
			first, loose := CloneWithValues(schema, tt.flat)
			require.False(t, loose)

			again, loose := CloneWithValues(schema, ParseEnvLines(first.EnvKeyValues()))
			require.False(t, loose)
			assert.Equal(t, first.Flatten(), again.Flatten())

			defaults := schema.Flatten()
			for k, v := range again.Flatten() {
				if want, ok := tt.flat[k]; ok {
					assert.Equal(t, want, v, k)
				} else {
					assert.Equal(t, defaults[k], v, k)
				}
			}
		})
	}
}

func TestCloneWithValuesFallsBack(t *testing.T) {
	t.Parallel()
	flat := map[string]string{
		"rsyncConfig_local_path":                "/tank/a",
		"rsyncConfig_rsyncOptions_archive_flag": "true",
		"rsyncConfig_target_info_port":          "22",
	}

	broken := Group("Rsync", "rsyncConfig", &Node{Key: "weird", Kind: Kind(99)})
	n, loose := CloneWithValues(broken, flat)
	require.True(t, loose)
	assert.Equal(t, "rsyncConfig", n.Key)
	assert.Equal(t, KindBool, n.Child("rsyncOptions_archive_flag").Kind)
	assert.Equal(t, KindInt, n.Child("target_info_port").Kind)
	assert.Equal(t, KindString, n.Child("local_path").Kind)
	assert.ElementsMatch(t, []string{
		"rsyncConfig_local_path=/tank/a",
		"rsyncConfig_rsyncOptions_archive_flag=true",
		"rsyncConfig_target_info_port=22",
	}, n.EnvKeyValues())

	n, loose = CloneWithValues(nil, flat)
	require.True(t, loose)
	assert.Equal(t, "rsyncConfig", n.Key, "root key falls back to the common prefix")
}

func TestValidate(t *testing.T) {
	t.Parallel()
	n, err := Hydrate(sampleSchema(), map[string]string{
		"zfsRepConfig_sendOptions_mode":        "reckless",
		"zfsRepConfig_sendOptions_mbufferSize": "x",
	})
	require.NoError(t, err)
	err = n.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zfsRepConfig_sendOptions_mode")
	assert.Contains(t, err.Error(), "zfsRepConfig_sendOptions_mbufferSize")

	ok, err := Hydrate(sampleSchema(), nil)
	require.NoError(t, err)
	assert.NoError(t, ok.Validate())
}

func TestValidateRejectsLineBreaks(t *testing.T) {
	t.Parallel()
	schema := Group("cfg", "cfg", Bool("Raw", "raw", false), String("Args", "args", ""))
	for _, v := range []string{"-v\ncfg_raw=true", "-v\r", "a\r\nb"} {
		n, err := Hydrate(schema, map[string]string{"cfg_args": v})
		require.NoError(t, err)
		err = n.Validate()
		require.Error(t, err, "%q", v)
		assert.Contains(t, err.Error(), "cfg_args")
	}

	sel := Group("cfg", "cfg", Selection("Mode", "mode", "a\nb"))
	assert.Error(t, sel.Validate())
}

func TestParseEnv(t *testing.T) {
	t.Parallel()
	m := ParseEnv("# comment\nA=1\n\nB=x=y\nnoequals\n  C = padded \r\nD=\n")
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "C": " padded ", "D": ""}, m)

	long := strings.Repeat("x", 200<<10)
	m = ParseEnvLines([]string{"BIG=" + long, "AFTER=1"})
	assert.Equal(t, long, m["BIG"])
	assert.Equal(t, "1", m["AFTER"], "a long line does not cut off the rest")
}
