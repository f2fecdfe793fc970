package backend

import (
	"strings"

	"taskctl/internal/task"
)

// option is one ExecStart argument. Flag options are emitted when the env
// value is "true"; the others when it is non-empty. Arg is the text with
// "${key}" references resolved by systemd from the EnvironmentFile.
type option struct {
	key  string
	flag bool
	arg  string
}

func pos(key string) option            { return option{key: key, arg: "${" + key + "}"} }
func words(key string) option          { return option{key: key, arg: "$" + key} }
func named(key, name string) option    { return option{key: key, arg: name + " ${" + key + "}"} }
func eq(key, name string) option       { return option{key: key, arg: name + "=${" + key + "}"} }
func boolFlag(key, name string) option { return option{key: key, flag: true, arg: name} }
func sized(key, unit, name string) option {
	return option{key: key, arg: name + " ${" + key + "}${" + unit + "}"}
}

var execOptions = map[string][]option{
	task.KeyZfsReplication: {
		pos("zfsRepConfig_sourceDataset_dataset"),
		boolFlag("zfsRepConfig_sendOptions_recursive_flag", "--recursive"),
		boolFlag("zfsRepConfig_sendOptions_customName_flag", "--customName"),
		pos("zfsRepConfig_sendOptions_customName"),
		boolFlag("zfsRepConfig_sendOptions_compressed_flag", "--compressed"),
		boolFlag("zfsRepConfig_sendOptions_raw_flag", "--raw"),
		named("zfsRepConfig_destDataset_pool", "--root"),
		named("zfsRepConfig_destDataset_dataset", "--path"),
		named("zfsRepConfig_destDataset_user", "--user"),
		named("zfsRepConfig_destDataset_host", "--host"),
		named("zfsRepConfig_destDataset_port", "--port"),
		named("zfsRepConfig_sendOptions_mbufferSize", "--mbuffsize"),
		named("zfsRepConfig_sendOptions_mbufferUnit", "--mbuffunit"),
		named("zfsRepConfig_snapRetention_source", "--snapsToKeepSrc"),
		named("zfsRepConfig_snapRetention_destination", "--snapsToKeepDest"),
	},
	task.KeyAutoSnapshot: {
		pos("autoSnapConfig_filesystem_dataset"),
		boolFlag("autoSnapConfig_recursive_flag", "--recursive"),
		boolFlag("autoSnapConfig_customName_flag", "--customName"),
		pos("autoSnapConfig_customName"),
		named("autoSnapConfig_snapRetention", "--snapsToKeep"),
	},
	task.KeyRsync: {
		named("rsyncConfig_local_path", "--source"),
		named("rsyncConfig_direction", "--direction"),
		eq("rsyncConfig_target_info_host", "--host"),
		eq("rsyncConfig_target_info_port", "--port"),
		eq("rsyncConfig_target_info_user", "--user"),
		named("rsyncConfig_target_info_path", "--target"),
		boolFlag("rsyncConfig_rsyncOptions_archive_flag", "--archive"),
		boolFlag("rsyncConfig_rsyncOptions_recursive_flag", "--recursive"),
		boolFlag("rsyncConfig_rsyncOptions_compressed_flag", "--compressed"),
		boolFlag("rsyncConfig_rsyncOptions_delete_flag", "--delete"),
		boolFlag("rsyncConfig_rsyncOptions_quiet_flag", "--quiet"),
		boolFlag("rsyncConfig_rsyncOptions_times_flag", "--times"),
		boolFlag("rsyncConfig_rsyncOptions_hardlinks_flag", "--hardlinks"),
		boolFlag("rsyncConfig_rsyncOptions_permissions_flag", "--permissions"),
		boolFlag("rsyncConfig_rsyncOptions_xattr_flag", "--xattr"),
		eq("rsyncConfig_rsyncOptions_bandwidth_limit_kbps", "--bandwidth"),
		eq("rsyncConfig_rsyncOptions_include_pattern", "--include"),
		eq("rsyncConfig_rsyncOptions_exclude_pattern", "--exclude"),
		boolFlag("rsyncConfig_rsyncOptions_parallel_flag", "--parallel"),
		eq("rsyncConfig_rsyncOptions_parallel_threads", "--threads"),
		words("rsyncConfig_rsyncOptions_custom_args"),
	},
	task.KeyScrub: {
		pos("scrubConfig_pool_pool"),
	},
	task.KeySmartTest: {
		named("smartTestConfig_disks", "--disks"),
		named("smartTestConfig_testType", "--type"),
	},
	task.KeyCloudSync: {
		named("cloudSyncConfig_local_path", "--local_path"),
		named("cloudSyncConfig_direction", "--direction"),
		named("cloudSyncConfig_type", "--type"),
		named("cloudSyncConfig_rclone_remote", "--rclone_remote"),
		named("cloudSyncConfig_target_path", "--target_path"),
		boolFlag("cloudSyncConfig_rcloneOptions_check_first_flag", "--check_first"),
		boolFlag("cloudSyncConfig_rcloneOptions_checksum_flag", "--checksum"),
		boolFlag("cloudSyncConfig_rcloneOptions_update_flag", "--update"),
		boolFlag("cloudSyncConfig_rcloneOptions_ignore_existing_flag", "--ignore_existing"),
		boolFlag("cloudSyncConfig_rcloneOptions_dry_run_flag", "--dry_run"),
		boolFlag("cloudSyncConfig_rcloneOptions_no_traverse_flag", "--no_traverse"),
		boolFlag("cloudSyncConfig_rcloneOptions_inplace_flag", "--inplace"),
		boolFlag("cloudSyncConfig_rcloneOptions_metadata_flag", "--metadata"),
		boolFlag("cloudSyncConfig_rcloneOptions_ignore_size_flag", "--ignore_size"),
		eq("cloudSyncConfig_rcloneOptions_bandwidth_limit_kbps", "--bandwidth_limit"),
		named("cloudSyncConfig_rcloneOptions_transfers", "--transfers"),
		named("cloudSyncConfig_rcloneOptions_include_pattern", "--include"),
		named("cloudSyncConfig_rcloneOptions_exclude_pattern", "--exclude"),
		named("cloudSyncConfig_rcloneOptions_include_from_path", "--include_from"),
		named("cloudSyncConfig_rcloneOptions_exclude_from_path", "--exclude_from"),
		sized("cloudSyncConfig_rcloneOptions_max_transfer_size", "cloudSyncConfig_rcloneOptions_max_transfer_size_unit", "--max_transfer"),
		named("cloudSyncConfig_rcloneOptions_cutoff_mode", "--cutoff_mode"),
		named("cloudSyncConfig_rcloneOptions_multithread_streams", "--multithread_streams"),
		sized("cloudSyncConfig_rcloneOptions_multithread_chunk_size", "cloudSyncConfig_rcloneOptions_multithread_chunk_size_unit", "--multithread_chunk_size"),
		sized("cloudSyncConfig_rcloneOptions_multithread_cutoff", "cloudSyncConfig_rcloneOptions_multithread_cutoff_unit", "--multithread_cutoff"),
		sized("cloudSyncConfig_rcloneOptions_multithread_write_buffer_size", "cloudSyncConfig_rcloneOptions_multithread_write_buffer_size_unit", "--multithread_write_buffer_size"),
		words("cloudSyncConfig_rcloneOptions_custom_args"),
	},
	task.KeyCustom: {
		words("customConfig_args"),
	},
}

// ExecStart builds the service's command line from post-processed env
// values.
func ExecStart(templateKey, script string, env map[string]string) string {
	var parts []string
	switch {
	case templateKey == task.KeyScrub:
		parts = append(parts, "/usr/sbin/zpool", "scrub")
	case strings.HasSuffix(script, ".py"):
		parts = append(parts, "/usr/bin/python3", script)
	default:
		parts = append(parts, script)
	}
	for _, o := range execOptions[templateKey] {
		v := strings.TrimSpace(env[o.key])
		if o.flag {
			if v == "true" {
				parts = append(parts, o.arg)
			}
			continue
		}
		if v != "" {
			parts = append(parts, o.arg)
		}
	}
	return strings.Join(parts, " ")
}
