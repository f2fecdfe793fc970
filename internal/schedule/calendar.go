package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrFixedYear is returned by CronSpec for intervals pinned to a year, which
// five-field cron cannot express.
var ErrFixedYear = errors.New("schedule: cron cannot express a fixed year")

// OnCalendar renders a systemd calendar expression:
// "[Mon,Fri ]YYYY-MM-DD HH:MM:SS". Unconstrained units become "*", seconds
// are always 0, and "*/N" steps are rebased to a concrete start.
func OnCalendar(iv Interval) string {
	var parts []string
	if len(iv.DayOfWeek) > 0 {
		parts = append(parts, strings.Join(iv.DayOfWeek, ","))
	}
	date := calPart(iv.Year, "1") + "-" + calPart(iv.Month, "1") + "-" + calPart(iv.Day, "1")
	clock := calPart(iv.Hour, "0") + ":" + calPart(iv.Minute, "0") + ":00"
	parts = append(parts, date, clock)
	return strings.Join(parts, " ")
}

// OnCalendarLines returns one "OnCalendar=" line per interval.
func OnCalendarLines(s Schedule) []string {
	out := make([]string, 0, len(s.Intervals))
	for _, iv := range s.Intervals {
		out = append(out, "OnCalendar="+OnCalendar(iv))
	}
	return out
}

func calPart(f *Field, stepBase string) string {
	switch {
	case wildcard(f):
		return "*"
	case wildStep(f):
		_, step := stepParts(f)
		return stepBase + "/" + step
	case fixed(f):
		return pad2(f.Value)
	default:
		return f.Value
	}
}

// CronSpec converts an interval to a five-field cron expression.
func CronSpec(iv Interval) (string, error) {
	if fixed(iv.Year) || stepped(iv.Year) {
		return "", ErrFixedYear
	}
	dow := "*"
	if len(iv.DayOfWeek) > 0 {
		dow = strings.ToUpper(strings.Join(iv.DayOfWeek, ","))
	}
	// An absent minute fires every minute, matching systemd's "*".
	return strings.Join([]string{
		cronPart(iv.Minute), cronPart(iv.Hour), cronPart(iv.Day), cronPart(iv.Month), dow,
	}, " "), nil
}

func cronPart(f *Field) string {
	if wildcard(f) {
		return "*"
	}
	return f.Value
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRun returns the first activation strictly after from across all
// intervals. Intervals pinned to a year are evaluated only when that year
// has not passed and are otherwise skipped. A zero time means no interval
// could be evaluated.
func NextRun(s Schedule, from time.Time) (time.Time, error) {
	var (
		next time.Time
		errs []error
	)
	for _, iv := range s.Intervals {
		t, err := nextForInterval(iv, from)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !t.IsZero() && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}
	if next.IsZero() && len(errs) > 0 {
		return time.Time{}, errors.Join(errs...)
	}
	return next, nil
}

func nextForInterval(iv Interval, from time.Time) (time.Time, error) {
	year := 0
	if fixed(iv.Year) {
		if _, err := fmt.Sscanf(iv.Year.Value, "%d", &year); err != nil {
			return time.Time{}, fmt.Errorf("schedule: year %q: %w", iv.Year.Value, err)
		}
		if year < from.Year() {
			return time.Time{}, nil
		}
		iv.Year = nil
	}
	spec, err := CronSpec(iv)
	if err != nil {
		return time.Time{}, err
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: cron %q: %w", spec, err)
	}
	if year > from.Year() {
		from = time.Date(year, 1, 1, 0, 0, 0, 0, from.Location()).Add(-time.Second)
	}
	t := sched.Next(from)
	if year != 0 && t.Year() != year {
		return time.Time{}, nil
	}
	return t, nil
}
