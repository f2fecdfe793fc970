package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the on-disk configuration. JSON and YAML are both accepted.
//
// Example (YAML):
//
//	backend:
//	  mode: auto
//	paths:
//	  unit_dir: /etc/systemd/system
//	status:
//	  completed_window: 2m
type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Backend BackendConfig  `json:"backend"`
	Paths   PathsConfig    `json:"paths"`
	Status  StatusConfig   `json:"status"`
	Poller  PollerConfig   `json:"poller"`
	Storage *StorageConfig `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlert mirrors WARN+ lines to stderr as one-liners, rate limited.
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// Backend modes.
const (
	BackendAuto   = "auto"
	BackendDaemon = "daemon"
	BackendLegacy = "legacy"
)

// BackendConfig selects how tasks are persisted and executed.
//
//   - auto: probe the scheduler daemon; use it when it answers and the
//     caller is not root, otherwise manage unit files directly
//   - daemon: require the daemon, fall back to unit files if it is unreachable
//   - legacy: manage unit files directly
type BackendConfig struct {
	Mode string `json:"mode"`

	BusName    string `json:"bus_name,omitempty"`
	ObjectPath string `json:"object_path,omitempty"`
	Interface  string `json:"interface,omitempty"`

	// ProbeTimeout bounds the startup capability probe (Go duration string).
	ProbeTimeout string `json:"probe_timeout,omitempty"`
	// CallTimeout bounds each daemon call.
	CallTimeout string `json:"call_timeout,omitempty"`
}

type PathsConfig struct {
	UnitDir      string `json:"unit_dir"`
	ScriptDir    string `json:"script_dir"`
	TemplateDir  string `json:"template_dir,omitempty"`
	DiscoveryDir string `json:"discovery_dir,omitempty"`
}

// StatusConfig tunes status resolution. All values are Go duration strings.
type StatusConfig struct {
	CacheTTL        string `json:"cache_ttl,omitempty"`
	CompletedWindow string `json:"completed_window,omitempty"`
	RecentWindow    string `json:"recent_window,omitempty"`
	RunPollInterval string `json:"run_poll_interval,omitempty"`
}

type PollerConfig struct {
	Interval string `json:"interval,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./taskctl_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

const (
	DefaultBusName      = "org.houston.Scheduler"
	DefaultObjectPath   = "/org/houston/Scheduler"
	DefaultInterface    = "org.houston.Scheduler1"
	DefaultUnitDir      = "/etc/systemd/system"
	DefaultScriptDir    = "/opt/45drives/houston/scheduler/scripts"
	DefaultDiscoveryDir = "/opt/45drives/houston/scheduler/discovery"

	DefaultCacheTTL        = time.Second
	DefaultCompletedWindow = 2 * time.Minute
	DefaultRecentWindow    = 10 * time.Minute
	DefaultRunPollInterval = 2 * time.Second
	DefaultPollInterval    = 1500 * time.Millisecond
	DefaultProbeTimeout    = 2 * time.Second
	DefaultCallTimeout     = 30 * time.Second
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Logging: LoggingConfig{Level: "info", Console: true}}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills empty string fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Backend.Mode) == "" {
		c.Backend.Mode = BackendAuto
	}
	setDefault(&c.Backend.BusName, DefaultBusName)
	setDefault(&c.Backend.ObjectPath, DefaultObjectPath)
	setDefault(&c.Backend.Interface, DefaultInterface)
	setDefault(&c.Paths.UnitDir, DefaultUnitDir)
	setDefault(&c.Paths.ScriptDir, DefaultScriptDir)
	setDefault(&c.Paths.DiscoveryDir, DefaultDiscoveryDir)
}

func setDefault(p *string, def string) {
	if strings.TrimSpace(*p) == "" {
		*p = def
	}
}

// Timings is the parsed form of the duration fields.
type Timings struct {
	CacheTTL        time.Duration
	CompletedWindow time.Duration
	RecentWindow    time.Duration
	RunPollInterval time.Duration
	PollInterval    time.Duration
	ProbeTimeout    time.Duration
	CallTimeout     time.Duration
}

// Timings parses every duration field, substituting defaults for empty or
// zero values.
func (c *Config) Timings() (Timings, error) {
	var (
		t    Timings
		errs []error
	)
	parse := func(path, raw string, def time.Duration, dst *time.Duration) {
		d, err := DurationOr(path, raw, def)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = d
	}
	parse("status.cache_ttl", c.Status.CacheTTL, DefaultCacheTTL, &t.CacheTTL)
	parse("status.completed_window", c.Status.CompletedWindow, DefaultCompletedWindow, &t.CompletedWindow)
	parse("status.recent_window", c.Status.RecentWindow, DefaultRecentWindow, &t.RecentWindow)
	parse("status.run_poll_interval", c.Status.RunPollInterval, DefaultRunPollInterval, &t.RunPollInterval)
	parse("poller.interval", c.Poller.Interval, DefaultPollInterval, &t.PollInterval)
	parse("backend.probe_timeout", c.Backend.ProbeTimeout, DefaultProbeTimeout, &t.ProbeTimeout)
	parse("backend.call_timeout", c.Backend.CallTimeout, DefaultCallTimeout, &t.CallTimeout)
	return t, errors.Join(errs...)
}

// Validate checks enum fields and durations.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	switch strings.ToLower(strings.TrimSpace(c.Backend.Mode)) {
	case "", BackendAuto, BackendDaemon, BackendLegacy:
	default:
		errs = append(errs, fmt.Errorf("backend.mode: unknown mode %q", c.Backend.Mode))
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
		}
		if _, err := DurationOr("storage.busy_timeout", c.Storage.BusyTimeout, 0); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := c.Timings(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
