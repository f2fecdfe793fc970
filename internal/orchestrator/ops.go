package orchestrator

import (
	"context"
	"time"

	"taskctl/internal/schedule"
	"taskctl/internal/status"
	"taskctl/internal/storage"
	"taskctl/internal/task"
	"taskctl/pkg/logx"
)

func (o *Orchestrator) RegisterTaskInstance(ctx context.Context, inst *task.Instance) (bool, error) {
	sub, err := o.submission(inst, "")
	if err != nil {
		return false, err
	}
	start := o.now()
	err = o.be.Create(ctx, sub)
	o.audit(ctx, "create", inst, start, "", err, "")
	if err != nil {
		return false, nil
	}
	o.upsert(inst, "")
	return true, nil
}

// UpdateTaskInstance rewrites inst. oldName is the stored name when the
// task is being renamed, "" otherwise.
func (o *Orchestrator) UpdateTaskInstance(ctx context.Context, inst *task.Instance, oldName string) (bool, error) {
	if inst == nil || inst.Template == nil {
		return false, ErrNoTemplate
	}
	if oldName == inst.Name {
		oldName = ""
	}
	sub, err := o.submission(inst, oldName)
	if err != nil {
		return false, err
	}
	start := o.now()
	err = o.be.Update(ctx, sub)
	o.audit(ctx, "update", inst, start, "", err, oldName)
	if err != nil {
		return false, nil
	}
	if oldName != "" {
		o.resolver.Remove(task.ID(inst.Template.Key, oldName))
		prev := *inst
		prev.Name = oldName
		o.moveLastRun(ctx, o.UnitName(&prev), o.UnitName(inst))
	}
	o.resolver.Forget(inst.ID())
	o.upsert(inst, oldName)
	return true, nil
}

// moveLastRun re-keys the last-run record of a renamed task's unit.
func (o *Orchestrator) moveLastRun(ctx context.Context, from, to string) {
	if o.store == nil || from == to {
		return
	}
	r, ok, err := o.store.GetLastRun(ctx, from)
	if err != nil {
		o.log.Warn("last run read failed", logx.Unit(from), logx.Err(err))
		return
	}
	if ok {
		r.Unit = to
		if err := o.store.PutLastRun(ctx, r); err != nil {
			o.log.Warn("last run move failed", logx.Unit(to), logx.Err(err))
			return
		}
	}
	if err := o.store.DeleteLastRun(ctx, from); err != nil {
		o.log.Warn("last run cleanup failed", logx.Unit(from), logx.Err(err))
	}
}

func (o *Orchestrator) UpdateTaskNotes(ctx context.Context, inst *task.Instance) (bool, error) {
	sub, err := o.submission(inst, "")
	if err != nil {
		return false, err
	}
	start := o.now()
	err = o.be.UpdateNotes(ctx, sub)
	o.audit(ctx, "notes", inst, start, "", err, "")
	return err == nil, nil
}

// UnregisterTaskInstance deletes the task and retires its units. Its status
// cache and last-run record go with it.
func (o *Orchestrator) UnregisterTaskInstance(ctx context.Context, inst *task.Instance) (bool, error) {
	if inst == nil || inst.Template == nil {
		return false, ErrNoTemplate
	}
	unit := o.UnitName(inst)
	start := o.now()
	err := o.be.Delete(ctx, inst)
	o.audit(ctx, "delete", inst, start, "", err, "")
	if err != nil {
		return false, nil
	}
	o.resolver.Remove(inst.ID())
	if o.store != nil {
		if err := o.store.DeleteLastRun(ctx, unit); err != nil {
			o.log.Warn("last run cleanup failed", logx.Unit(unit), logx.Err(err))
		}
	}
	o.drop(inst)
	return true, nil
}

func (o *Orchestrator) StopTaskNow(ctx context.Context, inst *task.Instance) (bool, error) {
	if inst == nil || inst.Template == nil {
		return false, ErrNoTemplate
	}
	start := o.now()
	err := o.be.Stop(ctx, inst)
	o.audit(ctx, "stop", inst, start, "", err, "")
	o.resolver.Forget(inst.ID())
	return err == nil, nil
}

func (o *Orchestrator) EnableSchedule(ctx context.Context, inst *task.Instance) (bool, error) {
	return o.setEnabled(ctx, inst, true)
}

func (o *Orchestrator) DisableSchedule(ctx context.Context, inst *task.Instance) (bool, error) {
	return o.setEnabled(ctx, inst, false)
}

func (o *Orchestrator) setEnabled(ctx context.Context, inst *task.Instance, enabled bool) (bool, error) {
	if inst == nil || inst.Template == nil {
		return false, ErrNoTemplate
	}
	action := "disable"
	if enabled {
		action = "enable"
	}
	start := o.now()
	err := o.be.EnableSchedule(ctx, inst, enabled)
	o.audit(ctx, action, inst, start, "", err, "")
	if err != nil {
		return false, nil
	}
	o.mu.Lock()
	inst.Schedule.Enabled = enabled
	o.mu.Unlock()
	o.resolver.Forget(inst.ID())
	return true, nil
}

// UpdateSchedule persists inst.Schedule and re-arms the timer.
func (o *Orchestrator) UpdateSchedule(ctx context.Context, inst *task.Instance) (bool, error) {
	sub, err := o.submission(inst, "")
	if err != nil {
		return false, err
	}
	start := o.now()
	err = o.be.ApplySchedule(ctx, sub)
	o.audit(ctx, "schedule", inst, start, "", err, schedule.DescribeSchedule(inst.Schedule))
	o.resolver.Forget(inst.ID())
	return err == nil, nil
}

// DeleteSchedule removes every interval, leaving a task that only runs on
// demand.
func (o *Orchestrator) DeleteSchedule(ctx context.Context, inst *task.Instance) (bool, error) {
	if inst == nil || inst.Template == nil {
		return false, ErrNoTemplate
	}
	prev := inst.Schedule
	o.mu.Lock()
	inst.Schedule = schedule.Schedule{}
	o.mu.Unlock()
	ok, err := o.UpdateSchedule(ctx, inst)
	if !ok {
		o.mu.Lock()
		inst.Schedule = prev
		o.mu.Unlock()
	}
	return ok, err
}

// Status resolves inst through the shared, short-lived cache.
func (o *Orchestrator) Status(ctx context.Context, inst *task.Instance) status.Snapshot {
	return o.resolver.Resolve(ctx, o.statusRequest(inst))
}

func (o *Orchestrator) statusRequest(inst *task.Instance) status.Request {
	return status.Request{
		Key:             inst.ID(),
		ServiceUnit:     o.UnitName(inst) + ".service",
		ScheduleEnabled: o.ScheduleEnabled(inst),
		Fetch: func(ctx context.Context) (status.Telemetry, error) {
			return o.be.Telemetry(ctx, inst)
		},
	}
}

// LastRun returns the terminal label recorded by the latest run-now.
func (o *Orchestrator) LastRun(ctx context.Context, inst *task.Instance) (storage.LastRun, bool) {
	if o.store == nil {
		return storage.LastRun{}, false
	}
	r, ok, err := o.store.GetLastRun(ctx, o.UnitName(inst))
	if err != nil {
		o.log.Warn("last run read failed", logx.Task(inst.ID()), logx.Err(err))
		return storage.LastRun{}, false
	}
	return r, ok
}

// History returns recent audit entries, newest first.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]storage.AuditEntry, error) {
	if o.store == nil {
		return nil, storage.ErrDisabled
	}
	return o.store.RecentAudit(ctx, limit)
}

func (o *Orchestrator) audit(ctx context.Context, action string, inst *task.Instance, start time.Time, runID string, err error, detail string) {
	took := o.now().Sub(start)
	fields := []logx.Field{
		logx.String("action", action),
		logx.Task(inst.ID()),
		logx.Duration("took", took),
	}
	if err != nil {
		o.log.Error("task operation failed", append(fields, logx.Err(err))...)
	} else {
		o.log.Info("task operation", fields...)
	}
	if o.store == nil {
		return
	}
	if runID == "" {
		runID = o.runID()
	}
	e := storage.AuditEntry{
		At:       start,
		RunID:    runID,
		Action:   action,
		Template: inst.Template.Key,
		Task:     inst.Name,
		Unit:     o.UnitName(inst),
		Backend:  string(o.be.Kind()),
		OK:       err == nil,
		TookMS:   took.Milliseconds(),
		Detail:   detail,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if serr := o.store.AppendAudit(context.WithoutCancel(ctx), e); serr != nil {
		o.log.Warn("audit append failed", logx.Err(serr))
	}
}
