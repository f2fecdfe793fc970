package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Describe renders a short English summary such as "Daily at 00:00",
// "Hourly (every 2 hours)" or "Weekly (Fri) at 13:00".
func Describe(iv Interval) string {
	kind, quals := classify(iv)
	var b strings.Builder
	b.WriteString(kind)
	if len(quals) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(quals, ", "))
		b.WriteString(")")
	}
	if tod := timeOfDay(iv); tod != "" {
		b.WriteString(" at ")
		b.WriteString(tod)
	}
	return b.String()
}

// DescribeSchedule joins the summaries of every interval.
func DescribeSchedule(s Schedule) string {
	if len(s.Intervals) == 0 {
		return "No schedule"
	}
	parts := make([]string, 0, len(s.Intervals))
	for _, iv := range s.Intervals {
		parts = append(parts, Describe(iv))
	}
	return strings.Join(parts, "; ")
}

// classify applies the ordered rules; the first match wins.
func classify(iv Interval) (string, []string) {
	if len(iv.DayOfWeek) > 0 {
		return "Weekly", []string{strings.Join(iv.DayOfWeek, ", ")}
	}

	if (wildcard(iv.Hour) && stepped(iv.Minute)) || stepped(iv.Hour) ||
		(fixed(iv.Minute) && wildcard(iv.Hour) && wildcard(iv.Day) && wildcard(iv.Month)) {
		var q []string
		if stepped(iv.Hour) {
			q = append(q, "every "+stepText(iv.Hour, "hour"))
		}
		if stepped(iv.Minute) {
			q = append(q, "every "+stepText(iv.Minute, "minute"))
		} else if fixed(iv.Minute) && !fixed(iv.Hour) {
			q = append(q, "at minute "+iv.Minute.Value)
		}
		return "Hourly", q
	}

	if fixed(iv.Year) && fixed(iv.Month) && fixed(iv.Day) {
		return "Daily", []string{fmt.Sprintf("starting %s-%s-%s", iv.Year.Value, pad2(iv.Month.Value), pad2(iv.Day.Value))}
	}

	if (fixed(iv.Day) || (stepped(iv.Day) && !wildStep(iv.Day))) && wildcard(iv.Year) {
		var q []string
		if fixed(iv.Day) {
			q = append(q, "day "+iv.Day.Value)
		} else {
			base, _ := stepParts(iv.Day)
			q = append(q, "every "+stepText(iv.Day, "day")+" from day "+base)
		}
		return "Monthly", append(q, monthQualifier(iv.Month)...)
	}

	if wildcard(iv.Day) || wildStep(iv.Day) {
		if stepped(iv.Day) {
			return "Daily", []string{"every " + stepText(iv.Day, "day")}
		}
		return "Daily", nil
	}

	if fixed(iv.Month) || stepped(iv.Month) {
		return "Monthly", monthQualifier(iv.Month)
	}

	return "Daily", nil
}

func monthQualifier(f *Field) []string {
	switch {
	case stepped(f):
		return []string{"every " + stepText(f, "month")}
	case fixed(f):
		if n, err := strconv.Atoi(f.Value); err == nil && n >= 1 && n <= 12 {
			return []string{"in " + time.Month(n).String()}
		}
		return []string{"in month " + f.Value}
	}
	return nil
}

func stepText(f *Field, unit string) string {
	_, step := stepParts(f)
	if step == "1" {
		return unit
	}
	return step + " " + unit + "s"
}

// timeOfDay is HH:MM when hour and minute are fixed, HH:00 when only the
// hour is, and empty otherwise.
func timeOfDay(iv Interval) string {
	if !fixed(iv.Hour) {
		return ""
	}
	if fixed(iv.Minute) {
		return pad2(iv.Hour.Value) + ":" + pad2(iv.Minute.Value)
	}
	return pad2(iv.Hour.Value) + ":00"
}

func pad2(v string) string {
	if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return v
}
