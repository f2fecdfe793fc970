package status

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// tzOffsets maps the abbreviations systemd prints to UTC offsets in minutes.
var tzOffsets = map[string]int{
	"UTC": 0, "GMT": 0, "WET": 0, "Z": 0,
	"WEST": 60, "BST": 60, "CET": 60, "CEST": 120,
	"EET": 120, "EEST": 180, "MSK": 180,
	"IST": 330, "NPT": 345,
	"HKT": 480, "SGT": 480, "AWST": 480,
	"JST": 540, "KST": 540,
	"ACST": 570, "ACDT": 630,
	"AEST": 600, "AEDT": 660,
	"NZST": 720, "NZDT": 780,
	"AST": -240, "ADT": -180,
	"NST": -210, "NDT": -150,
	"EST": -300, "EDT": -240,
	"CST": -360, "CDT": -300,
	"MST": -420, "MDT": -360,
	"PST": -480, "PDT": -420,
	"AKST": -540, "AKDT": -480,
	"HST": -600,
}

var wallClockRe = regexp.MustCompile(`^(?:[A-Za-z]{3}\s+)?(\d{4}-\d{2}-\d{2})\s+(\d{2}:\d{2}:\d{2})(?:\s+([A-Za-z]{1,5}))?$`)

// ParseTimestamp converts a systemd timestamp property to a time. Accepted
// forms, in order: microseconds since the epoch, "Weekday YYYY-MM-DD
// HH:MM:SS TZ" with a known abbreviation, and anything dateparse
// understands in loc. Empty, "n/a", zero and unknown zones give the zero
// time.
func ParseTimestamp(v string, loc *time.Location) time.Time {
	v = strings.TrimSpace(v)
	if v == "" || v == "0" || strings.EqualFold(v, "n/a") {
		return time.Time{}
	}
	if loc == nil {
		loc = time.Local
	}
	if us, err := strconv.ParseInt(v, 10, 64); err == nil {
		if us <= 0 {
			return time.Time{}
		}
		return time.UnixMicro(us)
	}
	if m := wallClockRe.FindStringSubmatch(v); m != nil {
		stamp := m[1] + " " + m[2]
		if m[3] == "" {
			t, err := time.ParseInLocation(time.DateTime, stamp, loc)
			if err != nil {
				return time.Time{}
			}
			return t
		}
		off, ok := tzOffsets[strings.ToUpper(m[3])]
		if !ok {
			return time.Time{}
		}
		t, err := time.ParseInLocation(time.DateTime, stamp, time.FixedZone(strings.ToUpper(m[3]), off*60))
		if err != nil {
			return time.Time{}
		}
		return t
	}
	t, err := dateparse.ParseIn(v, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// timestampProp returns the first non-zero timestamp among keys. A
// "<key>USec" twin is read before the key itself.
func timestampProp(props map[string]string, keys ...string) time.Time {
	for _, k := range keys {
		if v, ok := props[k+"USec"]; ok {
			if t := ParseTimestamp(v, nil); !t.IsZero() {
				return t
			}
		}
		if v, ok := props[k]; ok {
			if t := ParseTimestamp(v, nil); !t.IsZero() {
				return t
			}
		}
	}
	return time.Time{}
}
