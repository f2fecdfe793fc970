// Package status turns systemd and daemon unit telemetry into the small set
// of labels shown for a task.
package status

import (
	"strings"
	"time"
)

const (
	LabelFailed    = "Failed"
	LabelStarting  = "Starting..."
	LabelRunning   = "Active (Running)"
	LabelPending   = "Active (Pending)"
	LabelCompleted = "Completed"
	LabelInactive  = "Inactive (Disabled)"
)

// Properties requested for both the .service and the .timer unit.
var Properties = []string{
	"ActiveState",
	"SubState",
	"LoadState",
	"Result",
	"ExecMainStartTimestamp",
	"ExecMainExitTimestamp",
	"ExecMainStatus",
	"LastTriggerUSec",
	"NextElapseUSecRealtime",
}

// Terminal reports whether a run-now wait may stop on label.
func Terminal(label string) bool {
	return label == LabelCompleted || label == LabelFailed || label == LabelInactive
}

// Props is a parsed property dump.
type Props map[string]string

func (p Props) active() string { return strings.TrimSpace(p["ActiveState"]) }
func (p Props) sub() string    { return strings.TrimSpace(p["SubState"]) }

// Running reports a service that is executing or about to.
func (p Props) Running() bool {
	a, s := p.active(), p.sub()
	return a == "activating" || (a == "active" && s == "running") || s == "start" || s == "start-pre"
}

func (p Props) Failed() bool { return p.active() == "failed" || p.sub() == "failed" }

// LastRun is when the unit last started. Zero means never.
func (p Props) LastRun() time.Time {
	return timestampProp(p, "ExecMainStartTimestamp", "LastTriggerUSec")
}

func (p Props) LastExit() time.Time {
	return timestampProp(p, "ExecMainExitTimestamp")
}

func (p Props) NextRun() time.Time {
	return timestampProp(p, "NextElapseUSecRealtime")
}

// Pick chooses the blob to classify. A running or failed service always
// wins; otherwise the timer is used while the schedule is enabled.
func Pick(service, timer Props, scheduleEnabled bool) Props {
	switch {
	case service.Running() || service.Failed():
		return service
	case scheduleEnabled && len(timer) > 0:
		return timer
	default:
		return service
	}
}

// Recency answers whether the unit finished a run recently. It is only
// consulted for dead units whose result is not success.
type Recency func() bool

// Classify maps one property blob to a label. It is pure apart from the
// recency callback, which may be nil.
func Classify(p Props, recent Recency) string {
	active, sub := p.active(), p.sub()
	switch {
	case p.Failed():
		return LabelFailed
	case active == "activating":
		return LabelStarting
	case active == "active" && sub == "running":
		return LabelRunning
	case active == "active" && (sub == "waiting" || sub == "elapsed"):
		return LabelPending
	case active == "active" && sub == "exited":
		return LabelCompleted
	case active == "inactive" || sub == "dead":
		if p.LastRun().IsZero() {
			return LabelInactive
		}
		if p["Result"] == "success" {
			return LabelCompleted
		}
		if recent != nil && recent() {
			return LabelCompleted
		}
		return LabelInactive
	}
	if active == "" {
		return LabelInactive
	}
	return active + " (" + sub + ")"
}

// Smooth keeps reporting Completed for window after the last completion,
// unless the label carries a stronger signal.
func Smooth(label string, lastCompleted, now time.Time, window time.Duration) string {
	switch label {
	case LabelFailed, LabelInactive, LabelRunning, LabelStarting, LabelCompleted:
		return label
	}
	if lastCompleted.IsZero() || window <= 0 {
		return label
	}
	if now.Sub(lastCompleted) <= window {
		return LabelCompleted
	}
	return label
}
