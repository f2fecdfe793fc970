package task

import (
	p "taskctl/internal/param"
)

func opts(pairs ...string) []p.Option {
	out := make([]p.Option, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, p.Option{Value: pairs[i], Label: pairs[i+1]})
	}
	return out
}

func zfsReplicationSchema() *p.Node {
	return p.Group("ZFS Replication Task Config", "zfsRepConfig",
		p.Dataset("Source Dataset", "sourceDataset", 0),
		p.Dataset("Destination Dataset", "destDataset", 22),
		p.Group("Send Options", "sendOptions",
			p.Bool("Compressed", "compressed_flag", false),
			p.Bool("Raw", "raw_flag", false),
			p.Bool("Recursive", "recursive_flag", false),
			p.Int("MBuffer Size", "mbufferSize", 1),
			p.String("MBuffer Unit", "mbufferUnit", "G"),
			p.Bool("Custom Name Flag", "customName_flag", false),
			p.String("Custom Name", "customName", ""),
		),
		p.Group("Snapshot Retention", "snapRetention",
			p.Int("Source", "source", 5),
			p.Int("Destination", "destination", 5),
		),
	)
}

func autoSnapshotSchema() *p.Node {
	return p.Group("Automated Snapshot Task Config", "autoSnapConfig",
		p.Dataset("Filesystem", "filesystem", 0),
		p.Bool("Recursive", "recursive_flag", false),
		p.Bool("Custom Name Flag", "customName_flag", false),
		p.String("Custom Name", "customName", ""),
		p.Int("Snapshot Retention", "snapRetention", 5),
	)
}

func rsyncSchema() *p.Node {
	return p.Group("Rsync Task Config", "rsyncConfig",
		p.String("Local Path", "local_path", ""),
		p.Selection("Direction", "direction", "push", opts("push", "Push", "pull", "Pull")...),
		p.Location("Target Information", "target_info", 22),
		p.Group("Rsync Options", "rsyncOptions",
			p.Bool("Archive", "archive_flag", true),
			p.Bool("Recursive", "recursive_flag", false),
			p.Bool("Compressed", "compressed_flag", false),
			p.Bool("Delete", "delete_flag", false),
			p.Bool("Quiet", "quiet_flag", false),
			p.Bool("Preserve Times", "times_flag", false),
			p.Bool("Preserve Hard Links", "hardlinks_flag", false),
			p.Bool("Preserve Permissions", "permissions_flag", false),
			p.Bool("Preserve Extended Attributes", "xattr_flag", false),
			p.Int("Bandwidth Limit (KB/s)", "bandwidth_limit_kbps", 0),
			p.String("Include Pattern", "include_pattern", ""),
			p.String("Exclude Pattern", "exclude_pattern", ""),
			p.Bool("Parallel Transfers", "parallel_flag", false),
			p.Int("Parallel Threads", "parallel_threads", 0),
			p.String("Custom Arguments", "custom_args", ""),
		),
	)
}

func scrubSchema() *p.Node {
	return p.Group("Scrub Task Config", "scrubConfig",
		p.Group("Pool", "pool",
			p.Selection("Pool", "pool", ""),
		),
	)
}

func smartTestSchema() *p.Node {
	return p.Group("SMART Test Config", "smartTestConfig",
		p.String("Disks", "disks", ""),
		p.Selection("Test Type", "testType", "short",
			opts("short", "Short", "long", "Long", "conveyance", "Conveyance", "offline", "Offline")...),
	)
}

func cloudSyncSchema() *p.Node {
	return p.Group("Cloud Sync Task Config", "cloudSyncConfig",
		p.String("Local Path", "local_path", ""),
		p.Selection("Direction", "direction", "push", opts("push", "Push", "pull", "Pull")...),
		p.Selection("Transfer Type", "type", "copy", opts("copy", "Copy", "sync", "Sync", "move", "Move")...),
		p.String("Rclone Remote", "rclone_remote", ""),
		p.String("Target Path", "target_path", ""),
		p.Group("Rclone Options", "rcloneOptions",
			p.Bool("Check First", "check_first_flag", false),
			p.Bool("Checksum", "checksum_flag", false),
			p.Bool("Update", "update_flag", false),
			p.Bool("Ignore Existing", "ignore_existing_flag", false),
			p.Bool("Dry Run", "dry_run_flag", false),
			p.Bool("No Traverse", "no_traverse_flag", false),
			p.Bool("In Place", "inplace_flag", false),
			p.Bool("Metadata", "metadata_flag", false),
			p.Bool("Ignore Size", "ignore_size_flag", false),
			p.Int("Bandwidth Limit (KB/s)", "bandwidth_limit_kbps", 0),
			p.Int("Transfers", "transfers", 4),
			p.String("Include Pattern", "include_pattern", ""),
			p.String("Exclude Pattern", "exclude_pattern", ""),
			p.String("Include From File", "include_from_path", ""),
			p.String("Exclude From File", "exclude_from_path", ""),
			p.Int("Max Transfer Size", "max_transfer_size", 0),
			p.String("Max Transfer Size Unit", "max_transfer_size_unit", "G"),
			p.Selection("Cutoff Mode", "cutoff_mode", "hard", opts("hard", "Hard", "soft", "Soft", "cautious", "Cautious")...),
			p.Int("Multithread Streams", "multithread_streams", 4),
			p.Int("Multithread Chunk Size", "multithread_chunk_size", 0),
			p.String("Multithread Chunk Size Unit", "multithread_chunk_size_unit", "M"),
			p.Int("Multithread Cutoff", "multithread_cutoff", 0),
			p.String("Multithread Cutoff Unit", "multithread_cutoff_unit", "M"),
			p.Int("Multithread Write Buffer Size", "multithread_write_buffer_size", 0),
			p.String("Multithread Write Buffer Size Unit", "multithread_write_buffer_size_unit", "K"),
			p.String("Custom Arguments", "custom_args", ""),
		),
	)
}

func customSchema() *p.Node {
	return p.Group("Custom Task Config", "customConfig",
		p.String("Script Path", "path", ""),
		p.String("Arguments", "args", ""),
	)
}
