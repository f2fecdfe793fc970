package logx

import (
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Field decorates a single log event.
type Field func(e *zerolog.Event)

func String(k, v string) Field  { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Bool(k string, v bool) Field {
	return func(e *zerolog.Event) { e.Bool(k, v) }
}
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Component tags every line of a subsystem logger.
func Component(name string) Field { return String("comp", name) }

// Task tags a line with a task ID ("<template>_<name>").
func Task(id string) Field { return String("task", id) }

// Unit tags a line with a systemd unit name.
func Unit(name string) Field { return String("unit", name) }

// Logger writes structured events through a zerolog root that may be swapped
// at runtime by a Service. The zero value discards everything.
type Logger struct {
	src    func() zerolog.Logger
	fields []Field
}

func Nop() Logger { return Logger{} }

// NewWriter returns a standalone JSON logger writing to w.
func NewWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level, zerolog.DebugLevel)).With().Timestamp().Logger()
	return Logger{src: func() zerolog.Logger { return zl }}
}

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	out := l
	out.fields = make([]Field, 0, len(l.fields)+len(fields))
	out.fields = append(append(out.fields, l.fields...), fields...)
	return out
}

func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) emit(level zerolog.Level, msg string, extra []Field) {
	if l.src == nil {
		return
	}
	root := l.src()
	ev := root.WithLevel(level)
	if ev == nil {
		return
	}
	// emit is two frames below the caller's Info/Warn call site.
	if _, file, line, ok := runtime.Caller(2); ok {
		ev.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	for _, set := range [][]Field{l.fields, extra} {
		for _, f := range set {
			if f != nil {
				f(ev)
			}
		}
	}
	ev.Msg(msg)
}
