package backend

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/hashicorp/go-multierror"

	"taskctl/internal/param"
	"taskctl/internal/schedule"
	"taskctl/internal/status"
	"taskctl/internal/task"
	"taskctl/pkg/logx"
	"taskctl/pkg/systemd"
	"taskctl/pkg/systemdmanager"
)

//go:embed units/*.tmpl
var unitFS embed.FS

// Template file names looked up in the override directory.
const (
	ServiceTemplateFile = "ServiceTemplate.service"
	TimerTemplateFile   = "TimerTemplate.timer"
)

// UnitControl is the part of systemdmanager.UnitManager the unit file
// backend drives.
type UnitControl interface {
	StartNoWait(ctx context.Context, unit string) error
	Start(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	Restart(ctx context.Context, unit string) error
	ResetFailed(ctx context.Context, unit string) error
	Reload(ctx context.Context) error
	Enable(ctx context.Context, unit string) error
	Disable(ctx context.Context, unit string) error
	IsEnabled(ctx context.Context, unit string) bool
	State(ctx context.Context, unit string) (*systemdmanager.UnitState, error)
	Close() error
}

// PropertyQuery returns systemctl show text for a unit.
type PropertyQuery interface {
	Show(ctx context.Context, unit string, props ...string) (string, error)
}

type UnitFileOptions struct {
	UnitDir     string
	TemplateDir string
}

type unitData struct {
	Unit       string
	EnvFile    string
	ExecStart  string
	OnCalendar []string
}

// UnitFiles manages tasks as <unit>.env/.json/.txt files next to generated
// .service and .timer units. Only system scope exists here.
type UnitFiles struct {
	dir     string
	ctrl    UnitControl
	query   PropertyQuery
	service *template.Template
	timer   *template.Template
	log     logx.Logger
}

func NewUnitFiles(opts UnitFileOptions, ctrl UnitControl, query PropertyQuery, log logx.Logger) (*UnitFiles, error) {
	svc, err := loadUnitTemplate(opts.TemplateDir, ServiceTemplateFile, "units/service.tmpl")
	if err != nil {
		return nil, err
	}
	tmr, err := loadUnitTemplate(opts.TemplateDir, TimerTemplateFile, "units/timer.tmpl")
	if err != nil {
		return nil, err
	}
	return &UnitFiles{
		dir:     opts.UnitDir,
		ctrl:    ctrl,
		query:   query,
		service: svc,
		timer:   tmr,
		log:     log.With(logx.Component("backend"), logx.String("backend", string(KindLegacy))),
	}, nil
}

// loadUnitTemplate prefers name in dir and falls back to the embedded copy.
func loadUnitTemplate(dir, name, embedded string) (*template.Template, error) {
	if dir != "" {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			t, perr := template.New(name).Parse(string(b))
			if perr != nil {
				return nil, fmt.Errorf("parse %s: %w", name, perr)
			}
			return t, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
	}
	return template.ParseFS(unitFS, embedded)
}

func (u *UnitFiles) Kind() Kind          { return KindLegacy }
func (u *UnitFiles) Naming() task.Naming { return task.Naming{} }
func (u *UnitFiles) Close() error        { return u.ctrl.Close() }

func (u *UnitFiles) unitName(inst *task.Instance) string { return inst.UnitName(u.Naming()) }

func (u *UnitFiles) path(unit, ext string) string { return filepath.Join(u.dir, unit+ext) }

// List scans the unit dir for env files. Unit files without a matching
// template come back with an empty Template so the caller can skip them.
func (u *UnitFiles) List(ctx context.Context, scope task.Scope) ([]Record, error) {
	if scope != task.ScopeSystem {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(u.dir, "scheduler_*.env"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	out := make([]Record, 0, len(matches))
	for _, envPath := range matches {
		unit := strings.TrimSuffix(filepath.Base(envPath), ".env")
		rec := Record{Scope: task.ScopeSystem, Unit: unit}
		if key, name, ok := task.ParseUnitName(unit); ok {
			rec.Template, rec.Name = key, name
		}
		b, err := os.ReadFile(envPath)
		if err != nil {
			u.log.Warn("unreadable env file", logx.String("path", envPath), logx.Err(err))
			continue
		}
		rec.Env = param.ParseEnv(string(b))
		if b, err := os.ReadFile(u.path(unit, ".json")); err == nil {
			s, perr := schedule.Parse(b)
			if perr != nil {
				u.log.Warn("bad schedule file, treating as unscheduled", logx.Unit(unit), logx.Err(perr))
			} else {
				rec.Schedule = s
			}
		}
		if b, err := os.ReadFile(u.path(unit, ".txt")); err == nil {
			rec.Notes = string(b)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (u *UnitFiles) Create(ctx context.Context, sub Submission) error {
	return u.write(ctx, sub)
}

// Update rewrites the task. A rename retires the old unit first.
func (u *UnitFiles) Update(ctx context.Context, sub Submission) error {
	if sub.OldName != "" && sub.OldName != sub.Instance.Name {
		old := task.UnitName(sub.Instance.Template.Key, sub.OldName, task.ScopeSystem, false, 0)
		if err := u.retire(ctx, old); err != nil {
			u.log.Warn("old unit retirement incomplete", logx.Unit(old), logx.Err(err))
		}
	}
	return u.write(ctx, sub)
}

func (u *UnitFiles) UpdateNotes(ctx context.Context, sub Submission) error {
	return writeFile(u.path(u.unitName(sub.Instance), ".txt"), []byte(sub.Instance.Notes), 0o644)
}

func (u *UnitFiles) ApplySchedule(ctx context.Context, sub Submission) error {
	unit := u.unitName(sub.Instance)
	if err := writeFile(u.path(unit, ".json"), []byte(sub.Instance.Schedule.JSON()), 0o644); err != nil {
		return err
	}
	return u.arm(ctx, unit, sub.Instance.Schedule)
}

func (u *UnitFiles) EnableSchedule(ctx context.Context, inst *task.Instance, enabled bool) error {
	s := inst.Schedule
	s.Enabled = enabled
	unit := u.unitName(inst)
	if err := writeFile(u.path(unit, ".json"), []byte(s.JSON()), 0o644); err != nil {
		return err
	}
	return u.arm(ctx, unit, s)
}

func (u *UnitFiles) Delete(ctx context.Context, inst *task.Instance) error {
	return u.retire(ctx, u.unitName(inst))
}

// Run clears a stuck failed state, then queues the service.
func (u *UnitFiles) Run(ctx context.Context, inst *task.Instance) error {
	svc := u.unitName(inst) + ".service"
	if err := u.ctrl.ResetFailed(ctx, svc); err != nil {
		u.log.Debug("reset-failed", logx.Unit(svc), logx.Err(err))
	}
	return u.ctrl.StartNoWait(ctx, svc)
}

func (u *UnitFiles) Stop(ctx context.Context, inst *task.Instance) error {
	svc := u.unitName(inst) + ".service"
	st, err := u.ctrl.State(ctx, svc)
	if err == nil && st.LoadState == "not-found" {
		return fmt.Errorf("stop %s: unit not found", svc)
	}
	return u.ctrl.Stop(ctx, svc)
}

func (u *UnitFiles) Telemetry(ctx context.Context, inst *task.Instance) (status.Telemetry, error) {
	unit := u.unitName(inst)
	tel := status.Telemetry{Scope: string(task.ScopeSystem), Unit: unit}
	var err error
	if tel.Service, err = u.show(ctx, unit+".service"); err != nil {
		return status.Telemetry{}, err
	}
	if tel.Timer, err = u.show(ctx, unit+".timer"); err != nil {
		return status.Telemetry{}, err
	}
	return tel, nil
}

func (u *UnitFiles) show(ctx context.Context, unit string) (string, error) {
	text, err := u.query.Show(ctx, unit, status.Properties...)
	if errors.Is(err, systemd.ErrNotFound) {
		return "", nil
	}
	return text, err
}

// write persists env, schedule and notes, renders the units and arms the
// timer.
func (u *UnitFiles) write(ctx context.Context, sub Submission) error {
	inst := sub.Instance
	unit := u.unitName(inst)
	envPath := u.path(unit, ".env")

	if err := writeFile(envPath, []byte(strings.Join(sub.Env, "\n")+"\n"), 0o600); err != nil {
		return err
	}
	if err := writeFile(u.path(unit, ".json"), []byte(inst.Schedule.JSON()), 0o644); err != nil {
		return err
	}
	if err := writeFile(u.path(unit, ".txt"), []byte(inst.Notes), 0o644); err != nil {
		return err
	}

	data := unitData{
		Unit:      unit,
		EnvFile:   envPath,
		ExecStart: ExecStart(inst.Template.Key, sub.Script, param.ParseEnvLines(sub.Env)),
	}
	if err := u.render(u.service, data, u.path(unit, ".service")); err != nil {
		return err
	}
	return u.arm(ctx, unit, inst.Schedule)
}

// arm renders the timer for scheduled tasks and brings systemd in line:
// enabled schedules are enabled and started (restarted when already
// enabled), disabled ones stopped and disabled. Unscheduled tasks have no
// timer.
func (u *UnitFiles) arm(ctx context.Context, unit string, s schedule.Schedule) error {
	timerUnit := unit + ".timer"
	timerPath := u.path(unit, ".timer")

	if !s.HasIntervals() {
		if _, err := os.Stat(timerPath); err == nil {
			_ = u.ctrl.Stop(ctx, timerUnit)
			_ = u.ctrl.Disable(ctx, timerUnit)
			if err := os.Remove(timerPath); err != nil {
				return err
			}
		}
		return u.ctrl.Reload(ctx)
	}

	data := unitData{Unit: unit, OnCalendar: schedule.OnCalendarLines(s)}
	if err := u.render(u.timer, data, timerPath); err != nil {
		return err
	}
	if err := u.ctrl.Reload(ctx); err != nil {
		return err
	}
	if !s.Enabled {
		if err := u.ctrl.Stop(ctx, timerUnit); err != nil {
			return err
		}
		return u.ctrl.Disable(ctx, timerUnit)
	}
	if u.ctrl.IsEnabled(ctx, timerUnit) {
		return u.ctrl.Restart(ctx, timerUnit)
	}
	if err := u.ctrl.Enable(ctx, timerUnit); err != nil {
		return err
	}
	return u.ctrl.Start(ctx, timerUnit)
}

// retire stops and removes everything belonging to unit. It keeps going
// past individual failures and reports them together.
func (u *UnitFiles) retire(ctx context.Context, unit string) error {
	var result *multierror.Error
	timerUnit := unit + ".timer"

	if err := u.ctrl.Stop(ctx, timerUnit); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := os.Stat(u.path(unit, ".timer")); err == nil {
		if err := u.ctrl.Disable(ctx, timerUnit); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, ext := range []string{".env", ".json", ".txt", ".service", ".timer"} {
		if err := os.Remove(u.path(unit, ext)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result = multierror.Append(result, err)
		}
	}
	if err := u.ctrl.Reload(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (u *UnitFiles) render(t *template.Template, data unitData, path string) error {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, buf.Bytes(), 0o644)
}

// writeFile replaces path atomically.
func writeFile(path string, b []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
