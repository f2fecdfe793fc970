// Package tasklog reads a task's execution history from the journal.
package tasklog

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"taskctl/internal/status"
	"taskctl/pkg/logx"
	"taskctl/pkg/systemd"
)

const tailLines = 500

var startMarkers = []string{"Starting Service for ", "Started Service for "}

// Entry is the outcome of the most recent run.
type Entry struct {
	ExitCode int
	Output   string
	Start    time.Time
	Finish   time.Time
}

// Query is the subset of systemd.Client the log needs.
type Query interface {
	Show(ctx context.Context, unit string, props ...string) (string, error)
	Journal(ctx context.Context, unit string, since, until time.Time) (string, error)
	JournalTail(ctx context.Context, unit string, n int) (string, error)
}

type Log struct {
	q   Query
	log logx.Logger
	now func() time.Time
}

func New(q Query, log logx.Logger) *Log {
	return &Log{q: q, log: log.With(logx.Component("tasklog")), now: time.Now}
}

// EntriesFor returns the journal of service up to until. A zero until
// returns everything. Errors are logged and yield "".
func (l *Log) EntriesFor(ctx context.Context, service string, until time.Time) string {
	out, err := l.q.Journal(ctx, service, time.Time{}, until)
	if err != nil {
		l.log.Warn("journal read failed", logx.Unit(service), logx.Err(err))
		return ""
	}
	return strings.TrimSpace(out)
}

// LatestEntryFor slices the last run out of the journal tail. taskName is
// matched against the start marker lines.
func (l *Log) LatestEntryFor(ctx context.Context, service, taskName string) Entry {
	var e Entry
	var rawExit time.Time

	if text, err := l.q.Show(ctx, service, "ExecMainStatus", "ExecMainExitTimestamp"); err == nil {
		props := systemd.ParseProperties(text)
		e.ExitCode, _ = strconv.Atoi(props["ExecMainStatus"])
		rawExit = status.ParseTimestamp(props["ExecMainExitTimestamp"], nil)
	} else if !errors.Is(err, systemd.ErrNotFound) {
		l.log.Warn("exit status read failed", logx.Unit(service), logx.Err(err))
	}

	tail, err := l.q.JournalTail(ctx, service, tailLines)
	if err != nil {
		l.log.Warn("journal tail read failed", logx.Unit(service), logx.Err(err))
		e.Finish = rawExit
		return e
	}

	lines := make([]string, 0, 64)
	for _, ln := range strings.Split(tail, "\n") {
		if strings.TrimSpace(ln) == "" || strings.HasPrefix(ln, "-- ") {
			continue
		}
		lines = append(lines, ln)
	}
	if len(lines) == 0 {
		e.Finish = rawExit
		return e
	}

	start := 0
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(lines[i], taskName) && hasStartMarker(lines[i]) {
			start = i
			break
		}
	}
	run := lines[start:]
	e.Output = strings.Join(run, "\n")
	e.Start = lineTime(run[0])
	e.Finish = rawExit
	if e.Finish.IsZero() {
		e.Finish = lineTime(run[len(run)-1])
	}
	if e.Finish.IsZero() {
		e.Finish = e.Start
	}
	return e
}

// RecentlyCompleted reports whether the last run finished within window.
func (l *Log) RecentlyCompleted(ctx context.Context, service string, window time.Duration) (bool, error) {
	e := l.LatestEntryFor(ctx, service, strings.TrimSuffix(service, ".service"))
	if e.Finish.IsZero() {
		return false, nil
	}
	return l.now().Sub(e.Finish) <= window, nil
}

func hasStartMarker(line string) bool {
	for _, m := range startMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

// lineTime reads the short-iso timestamp that prefixes a journal line.
func lineTime(line string) time.Time {
	first, _, _ := strings.Cut(line, " ")
	if first == "" {
		return time.Time{}
	}
	if t, err := time.Parse("2006-01-02T15:04:05-0700", first); err == nil {
		return t
	}
	return status.ParseTimestamp(first, nil)
}
