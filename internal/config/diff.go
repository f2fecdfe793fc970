package config

import (
	"strings"

	"taskctl/pkg/logx"
)

// SummarizeConfigChange returns the names of changed sections and safe
// structured attrs for logging the reload.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alert_enabled", newCfg.Logging.Alert.Enabled),
		)
	}

	if oldCfg.Backend != newCfg.Backend {
		// Backend is chosen once at startup; the change applies on restart.
		changed = append(changed, "backend")
		attrs = append(attrs,
			logx.String("backend.mode", newCfg.Backend.Mode),
			logx.Bool("backend.restart_required", true),
		)
	}

	if oldCfg.Paths != newCfg.Paths {
		changed = append(changed, "paths")
		attrs = append(attrs,
			logx.String("paths.unit_dir", strings.TrimSpace(newCfg.Paths.UnitDir)),
			logx.String("paths.script_dir", strings.TrimSpace(newCfg.Paths.ScriptDir)),
		)
	}

	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.String("status.cache_ttl", newCfg.Status.CacheTTL),
			logx.String("status.completed_window", newCfg.Status.CompletedWindow),
			logx.String("status.recent_window", newCfg.Status.RecentWindow),
			logx.String("status.run_poll_interval", newCfg.Status.RunPollInterval),
		)
	}

	if oldCfg.Poller != newCfg.Poller {
		changed = append(changed, "poller")
		attrs = append(attrs, logx.String("poller.interval", newCfg.Poller.Interval))
	}

	oS, nS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nS.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
	}

	return changed, attrs
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}
