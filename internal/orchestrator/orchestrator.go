// Package orchestrator owns the in-memory task list and drives task
// lifecycle operations through the selected backend.
//
// Operations return (ok bool, err error). err is reserved for caller
// mistakes such as an unknown template or an invalid schedule; backend and
// transport failures are logged and reported as ok == false.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskctl/internal/backend"
	"taskctl/internal/status"
	"taskctl/internal/storage"
	"taskctl/internal/task"
	"taskctl/pkg/logx"
)

var ErrNoTemplate = errors.New("orchestrator: instance has no template")

type Options struct {
	ScriptDir       string
	RunPollInterval time.Duration
	Principal       backend.Principal
}

type Orchestrator struct {
	be       backend.Backend
	resolver *status.Resolver
	store    storage.Store
	log      logx.Logger

	mu    sync.Mutex
	opts  Options
	tasks []*task.Instance

	now   func() time.Time
	runID func() string
}

// New wires an orchestrator. store may be nil.
func New(be backend.Backend, resolver *status.Resolver, store storage.Store, opts Options, log logx.Logger) *Orchestrator {
	if opts.RunPollInterval <= 0 {
		opts.RunPollInterval = 2 * time.Second
	}
	return &Orchestrator{
		be:       be,
		resolver: resolver,
		store:    store,
		opts:     opts,
		log:      log.With(logx.Component("orchestrator"), logx.String("backend", string(be.Kind()))),
		now:      time.Now,
		runID:    func() string { return uuid.NewString() },
	}
}

func (o *Orchestrator) Backend() backend.Backend   { return o.be }
func (o *Orchestrator) Resolver() *status.Resolver { return o.resolver }

// SetRunPollInterval applies a reloaded poll interval.
func (o *Orchestrator) SetRunPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	o.mu.Lock()
	o.opts.RunPollInterval = d
	o.mu.Unlock()
}

// Tasks returns a snapshot of the task list.
func (o *Orchestrator) Tasks() []*task.Instance {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*task.Instance(nil), o.tasks...)
}

// Find looks a task up by any accepted template spelling and name.
func (o *Orchestrator) Find(templateKey, name string) (*task.Instance, bool) {
	key := task.NormalizeTemplateKey(templateKey)
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.tasks {
		if t.Template.Key == key && t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// UnitName derives inst's unit name for the active backend.
func (o *Orchestrator) UnitName(inst *task.Instance) string {
	return inst.UnitName(o.be.Naming())
}

// ScheduleEnabled reads inst's schedule flag under the lock that schedule
// toggles write it with.
func (o *Orchestrator) ScheduleEnabled(inst *task.Instance) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return inst.Schedule.Enabled
}

func (o *Orchestrator) scopes() []task.Scope {
	if o.be.Kind() == backend.KindLegacy {
		return []task.Scope{task.ScopeSystem}
	}
	if o.opts.Principal.Privileged {
		return []task.Scope{task.ScopeUser, task.ScopeSystem}
	}
	return []task.Scope{task.ScopeUser}
}

// LoadTaskInstances replaces the task list with what the backend reports.
// Records that cannot be turned into instances are skipped one by one.
func (o *Orchestrator) LoadTaskInstances(ctx context.Context) []*task.Instance {
	var out []*task.Instance
	for _, scope := range o.scopes() {
		recs, err := o.be.List(ctx, scope)
		if err != nil {
			o.log.Warn("task listing failed", logx.String("scope", string(scope)), logx.Err(err))
			continue
		}
		for _, rec := range recs {
			inst, err := o.fromRecord(rec)
			if err != nil {
				o.log.Warn("skipping malformed task record",
					logx.String("scope", string(scope)),
					logx.Unit(rec.Unit),
					logx.String("name", rec.Name),
					logx.Err(err))
				continue
			}
			out = append(out, inst)
		}
	}
	o.mu.Lock()
	o.tasks = append([]*task.Instance(nil), out...)
	o.mu.Unlock()
	o.log.Debug("tasks loaded", logx.Int("count", len(out)))
	return out
}

func (o *Orchestrator) fromRecord(rec backend.Record) (*task.Instance, error) {
	if rec.Name == "" {
		return nil, errors.New("missing name")
	}
	if rec.Template == "" {
		return nil, errors.New("missing template")
	}
	t, err := task.Lookup(rec.Template)
	if err != nil {
		return nil, err
	}
	params, loose := t.NewParameters(rec.Env)
	if loose {
		o.log.Warn("parameters did not match schema, loaded loosely", logx.Task(task.ID(t.Key, rec.Name)))
	}
	scope := rec.Scope
	if scope == "" {
		scope = task.ScopeSystem
	}
	return &task.Instance{
		Name:       rec.Name,
		Template:   t,
		Parameters: params,
		Schedule:   rec.Schedule,
		Notes:      rec.Notes,
		Scope:      scope,
	}, nil
}

func (o *Orchestrator) submission(inst *task.Instance, oldName string) (backend.Submission, error) {
	if inst == nil || inst.Template == nil {
		return backend.Submission{}, ErrNoTemplate
	}
	if err := inst.Schedule.Validate(); err != nil {
		return backend.Submission{}, fmt.Errorf("task %s: %w", inst.ID(), err)
	}
	if inst.Parameters != nil {
		if err := inst.Parameters.Validate(); err != nil {
			return backend.Submission{}, fmt.Errorf("task %s: %w", inst.ID(), err)
		}
	}
	script, err := inst.ScriptPath(o.opts.ScriptDir)
	if err != nil {
		return backend.Submission{}, err
	}
	return backend.Submission{Instance: inst, Env: inst.EnvLines(), Script: script, OldName: oldName}, nil
}

// upsert replaces the task with the same identity (or oldName) or appends.
func (o *Orchestrator) upsert(inst *task.Instance, oldName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	match := inst.Name
	if oldName != "" {
		match = oldName
	}
	for i, t := range o.tasks {
		if t.Template.Key == inst.Template.Key && t.Name == match {
			o.tasks[i] = inst
			return
		}
	}
	o.tasks = append(o.tasks, inst)
}

func (o *Orchestrator) drop(inst *task.Instance) {
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.tasks[:0]
	for _, t := range o.tasks {
		if t.Template.Key == inst.Template.Key && t.Name == inst.Name {
			continue
		}
		kept = append(kept, t)
	}
	o.tasks = kept
}
