package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = fileTimeFormat
}

// Service owns the root logger and its sinks. Loggers obtained from it keep
// following the root across Apply calls.
type Service struct {
	mu   sync.Mutex
	file *os.File

	root  atomic.Pointer[zerolog.Logger]
	alert *alertSink
}

// New builds the service, applies cfg and returns it with a root Logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{alert: &alertSink{out: os.Stderr}}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) Logger() Logger {
	return Logger{src: func() zerolog.Logger { return *s.root.Load() }}
}

// Apply rebuilds the sinks for cfg. The previous log file, if any, is closed
// once the new root is in place.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alert.configure(cfg.Alert)

	var (
		sinks []io.Writer
		file  *os.File
	)
	if cfg.Console {
		sinks = append(sinks, consoleSink())
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogPath
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if cfg.Alert.Enabled {
		sinks = append(sinks, s.alert)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleSink())
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)

	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = file
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func consoleSink() io.Writer {
	return zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: consoleTimeFormat,
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}
