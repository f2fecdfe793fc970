// Package backend executes task lifecycle operations either through the
// scheduler daemon or by managing systemd unit files directly.
package backend

import (
	"context"
	"errors"

	"taskctl/internal/schedule"
	"taskctl/internal/status"
	"taskctl/internal/task"
)

var ErrUnavailable = errors.New("backend: unavailable")

type Kind string

const (
	KindDaemon Kind = "daemon"
	KindLegacy Kind = "legacy"
)

// Record is a task as a backend stores it. Records come straight from
// listings and may be incomplete; callers validate them.
type Record struct {
	Name     string
	Template string
	Env      map[string]string
	Schedule schedule.Schedule
	Notes    string
	Scope    task.Scope
	Unit     string
}

// Submission is everything a backend needs to persist an instance.
type Submission struct {
	Instance *task.Instance
	Env      []string
	Script   string
	// OldName is the name the task is stored under, when renaming.
	OldName string
}

func (s Submission) storedName() string {
	if s.OldName != "" {
		return s.OldName
	}
	return s.Instance.Name
}

// Backend is implemented by Daemon and UnitFiles.
type Backend interface {
	Kind() Kind
	Naming() task.Naming

	List(ctx context.Context, scope task.Scope) ([]Record, error)
	Create(ctx context.Context, sub Submission) error
	Update(ctx context.Context, sub Submission) error
	UpdateNotes(ctx context.Context, sub Submission) error
	// ApplySchedule persists sub.Instance.Schedule and re-arms or disarms
	// the timer accordingly.
	ApplySchedule(ctx context.Context, sub Submission) error
	EnableSchedule(ctx context.Context, inst *task.Instance, enabled bool) error
	Delete(ctx context.Context, inst *task.Instance) error

	Run(ctx context.Context, inst *task.Instance) error
	Stop(ctx context.Context, inst *task.Instance) error
	Telemetry(ctx context.Context, inst *task.Instance) (status.Telemetry, error)

	Close() error
}
