package task

import (
	"fmt"
	"path/filepath"
	"strings"
)

// unit pairs blanked together when the value is empty or zero.
var sizePairs = map[string][][2]string{
	KeyZfsReplication: {{"zfsRepConfig_sendOptions_mbufferSize", "zfsRepConfig_sendOptions_mbufferUnit"}},
	KeyCloudSync: {
		{"cloudSyncConfig_rcloneOptions_max_transfer_size", "cloudSyncConfig_rcloneOptions_max_transfer_size_unit"},
		{"cloudSyncConfig_rcloneOptions_multithread_chunk_size", "cloudSyncConfig_rcloneOptions_multithread_chunk_size_unit"},
		{"cloudSyncConfig_rcloneOptions_multithread_cutoff", "cloudSyncConfig_rcloneOptions_multithread_cutoff_unit"},
		{"cloudSyncConfig_rcloneOptions_multithread_write_buffer_size", "cloudSyncConfig_rcloneOptions_multithread_write_buffer_size_unit"},
	},
}

// values blanked when zero
var zeroBlank = map[string][]string{
	KeyRsync:     {"rsyncConfig_rsyncOptions_bandwidth_limit_kbps"},
	KeyCloudSync: {"cloudSyncConfig_rcloneOptions_bandwidth_limit_kbps"},
}

// values blanked when their guard flag is false
var guarded = map[string][][2]string{
	KeyZfsReplication: {{"zfsRepConfig_sendOptions_customName_flag", "zfsRepConfig_sendOptions_customName"}},
	KeyAutoSnapshot:   {{"autoSnapConfig_customName_flag", "autoSnapConfig_customName"}},
	KeyRsync:          {{"rsyncConfig_rsyncOptions_parallel_flag", "rsyncConfig_rsyncOptions_parallel_threads"}},
}

func emptyOrZero(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == "0"
}

// EnvLines serializes the parameters and applies the template's
// post-processing. Line order follows the schema.
func (i *Instance) EnvLines() []string {
	lines := i.Parameters.EnvKeyValues()
	vals := make(map[string]string, len(lines))
	keys := make([]string, 0, len(lines))
	for _, l := range lines {
		k, v, _ := strings.Cut(l, "=")
		vals[k] = v
		keys = append(keys, k)
	}

	key := i.Template.Key
	if key == KeyZfsReplication && vals["zfsRepConfig_sendOptions_raw_flag"] == "true" {
		vals["zfsRepConfig_sendOptions_compressed_flag"] = "false"
	}
	for _, g := range guarded[key] {
		if vals[g[0]] != "true" {
			vals[g[1]] = ""
		}
	}
	for _, k := range zeroBlank[key] {
		if emptyOrZero(vals[k]) {
			vals[k] = ""
		}
	}
	for _, p := range sizePairs[key] {
		if emptyOrZero(vals[p[0]]) {
			vals[p[0]], vals[p[1]] = "", ""
		}
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+vals[k])
	}
	return out
}

// EnvMap converts env lines to the map sent to the daemon. Empty values
// are dropped.
func EnvMap(lines []string) map[string]string {
	m := make(map[string]string, len(lines))
	for _, l := range lines {
		k, v, ok := strings.Cut(l, "=")
		if !ok || k == "" || v == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// ScriptPath resolves the payload the unit executes.
func (i *Instance) ScriptPath(scriptDir string) (string, error) {
	if i.Template.Script != "" {
		return filepath.Join(scriptDir, i.Template.Script), nil
	}
	leaf := i.Parameters.Find(i.Template.RootKey() + "_path")
	if leaf == nil || strings.TrimSpace(leaf.Value()) == "" {
		return "", fmt.Errorf("task %s: custom script path is empty", i.ID())
	}
	return strings.TrimSpace(leaf.Value()), nil
}
