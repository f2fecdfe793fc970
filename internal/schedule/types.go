// Package schedule models task schedules: a set of calendar intervals that
// render to systemd OnCalendar lines, cron specs and human summaries.
package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Field is one time-unit constraint: a literal ("5"), a wildcard ("*"), or a
// step ("*/N" or "base/N"). A nil *Field means the unit is unconstrained.
type Field struct {
	Value string
}

func F(v string) *Field { return &Field{Value: v} }

// UnmarshalJSON accepts {"value": 5} or {"value": "*/2"}.
func (f *Field) UnmarshalJSON(b []byte) error {
	var raw struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v := bytes.TrimSpace(raw.Value)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		f.Value = "*"
		return nil
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		f.Value = strings.TrimSpace(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return fmt.Errorf("schedule: field value %s: %w", v, err)
	}
	f.Value = n.String()
	return nil
}

// MarshalJSON writes plain integers as numbers and everything else as strings.
func (f Field) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(f.Value); err == nil {
		return json.Marshal(struct {
			Value int `json:"value"`
		}{n})
	}
	return json.Marshal(struct {
		Value string `json:"value"`
	}{f.Value})
}

// Interval is a sparse calendar constraint. Absent units are unconstrained.
type Interval struct {
	Minute    *Field   `json:"minute,omitempty"`
	Hour      *Field   `json:"hour,omitempty"`
	Day       *Field   `json:"day,omitempty"`
	Month     *Field   `json:"month,omitempty"`
	Year      *Field   `json:"year,omitempty"`
	DayOfWeek []string `json:"dayOfWeek,omitempty"`
}

type Schedule struct {
	Enabled   bool       `json:"enabled"`
	Intervals []Interval `json:"intervals"`
}

// Parse decodes schedule JSON. Empty input is a disabled, empty schedule.
func Parse(b []byte) (Schedule, error) {
	var s Schedule
	if len(bytes.TrimSpace(b)) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return Schedule{}, fmt.Errorf("schedule: %w", err)
	}
	return s, nil
}

// JSON returns the canonical encoding sent to the daemon and written to
// <unit>.json.
func (s Schedule) JSON() string {
	if s.Intervals == nil {
		s.Intervals = []Interval{}
	}
	b, _ := json.Marshal(s)
	return string(b)
}

// HasIntervals reports whether the task runs on a timer at all.
func (s Schedule) HasIntervals() bool { return len(s.Intervals) > 0 }

var (
	fieldPattern = regexp.MustCompile(`^(\*|\d+)(/\d+)?$|^\d+(,\d+)*$`)
	weekdays     = map[string]bool{"mon": true, "tue": true, "wed": true, "thu": true, "fri": true, "sat": true, "sun": true}
)

func (s Schedule) Validate() error {
	var result *multierror.Error
	for i, iv := range s.Intervals {
		if err := iv.Validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("interval %d: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}

func (iv Interval) Validate() error {
	var result *multierror.Error
	for _, u := range iv.units() {
		if u.f != nil && !fieldPattern.MatchString(u.f.Value) {
			result = multierror.Append(result, fmt.Errorf("%s: invalid value %q", u.name, u.f.Value))
		}
	}
	for _, d := range iv.DayOfWeek {
		if !weekdays[strings.ToLower(d)] {
			result = multierror.Append(result, fmt.Errorf("dayOfWeek: invalid day %q", d))
		}
	}
	return result.ErrorOrNil()
}

type namedField struct {
	name string
	f    *Field
}

func (iv Interval) units() []namedField {
	return []namedField{
		{"minute", iv.Minute}, {"hour", iv.Hour}, {"day", iv.Day}, {"month", iv.Month}, {"year", iv.Year},
	}
}

func wildcard(f *Field) bool { return f == nil || f.Value == "" || f.Value == "*" }

func stepped(f *Field) bool { return f != nil && strings.Contains(f.Value, "/") }

func fixed(f *Field) bool { return !wildcard(f) && !stepped(f) }

// stepParts splits "base/step"; base is "*" for "*/N".
func stepParts(f *Field) (base, step string) {
	base, step, _ = strings.Cut(f.Value, "/")
	return base, step
}

// wildStep reports "*/N".
func wildStep(f *Field) bool {
	if !stepped(f) {
		return false
	}
	base, _ := stepParts(f)
	return base == "*" || base == ""
}
