package orchestrator

import (
	"context"
	"time"

	"taskctl/internal/status"
	"taskctl/internal/storage"
	"taskctl/internal/task"
	"taskctl/pkg/logx"
)

// settlePolls is how many consecutive terminal observations are accepted as
// final when the run itself was never seen.
const settlePolls = 3

// RunTaskNow starts inst and waits until its status reaches a terminal
// label, which it returns. A failed trigger returns "".
//
// The wait has no timeout and ignores ctx cancellation: once triggered, the
// loop polls until the unit reports Completed, Failed or Inactive. A job
// that never finishes keeps the caller waiting.
func (o *Orchestrator) RunTaskNow(ctx context.Context, inst *task.Instance) (string, error) {
	if inst == nil || inst.Template == nil {
		return "", ErrNoTemplate
	}
	ctx = context.WithoutCancel(ctx)
	runID := o.runID()
	unit := o.UnitName(inst)
	log := o.log.With(logx.Task(inst.ID()), logx.String("run_id", runID))

	trigger := o.now()
	if err := o.be.Run(ctx, inst); err != nil {
		o.audit(ctx, "run", inst, trigger, runID, err, "")
		return "", nil
	}
	log.Info("task triggered", logx.Unit(unit))
	o.resolver.Forget(inst.ID())

	o.mu.Lock()
	interval := o.opts.RunPollInterval
	o.mu.Unlock()

	final := o.await(ctx, inst, trigger, interval)

	o.audit(ctx, "run", inst, trigger, runID, nil, final)
	if o.store != nil {
		rec := storage.LastRun{Unit: unit, Status: final, At: o.now(), RunID: runID}
		if err := o.store.PutLastRun(ctx, rec); err != nil {
			log.Warn("last run record failed", logx.Err(err))
		}
	}
	return final, nil
}

func (o *Orchestrator) await(ctx context.Context, inst *task.Instance, trigger time.Time, interval time.Duration) string {
	t := time.NewTicker(interval)
	defer t.Stop()

	// Unit timestamps carry whole seconds on some systems.
	since := trigger.Truncate(time.Second)
	sawRunning := false
	settled := 0
	for range t.C {
		snap := o.resolver.Fresh(ctx, o.statusRequest(inst))
		switch {
		case snap.Text == status.LabelRunning || snap.Text == status.LabelStarting:
			sawRunning = true
			settled = 0
		case status.Terminal(snap.Text):
			if sawRunning || !snap.LastRun.Before(since) && !snap.LastRun.IsZero() {
				return snap.Text
			}
			settled++
			if settled >= settlePolls {
				return snap.Text
			}
		default:
			settled = 0
		}
	}
	return ""
}
