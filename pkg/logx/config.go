package logx

import (
	"strings"

	"github.com/rs/zerolog"
)

// Config selects the sinks and threshold of the root logger. It mirrors the
// log section of the taskctl YAML file.
type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Alert   AlertConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// AlertConfig controls the stderr alert sink. Lines at or above MinLevel are
// condensed to a single line and throttled to RatePerSec.
type AlertConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

const (
	defaultLogPath    = "./taskctl.log"
	consoleTimeFormat = "15:04:05.000"
	fileTimeFormat    = "2006-01-02T15:04:05.000Z07:00"
)

var levelNames = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// parseLevel maps a level name to zerolog, falling back to def for unknown
// or empty names.
func parseLevel(s string, def zerolog.Level) zerolog.Level {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return def
}
