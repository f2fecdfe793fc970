package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/godbus/dbus/v5"

	"taskctl/internal/status"
	"taskctl/internal/task"
	"taskctl/pkg/logx"
)

// Caller invokes one method on the daemon object and returns the reply body.
type Caller interface {
	Call(ctx context.Context, method string, args ...any) ([]any, error)
}

type busCaller struct {
	conn  *dbus.Conn
	obj   dbus.BusObject
	iface string
}

func (b *busCaller) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	call := b.obj.CallWithContext(ctx, b.iface+"."+method, 0, args...)
	if call.Err != nil {
		return nil, fmt.Errorf("%s: %w", method, call.Err)
	}
	return call.Body, nil
}

// DaemonOptions locates the daemon on the system bus.
type DaemonOptions struct {
	BusName     string
	ObjectPath  string
	Interface   string
	CallTimeout time.Duration
	UID         int
}

// Daemon talks to the privileged scheduler daemon. The daemon owns task
// persistence and execution; this side only serializes requests.
type Daemon struct {
	caller  Caller
	closer  func() error
	timeout time.Duration
	uid     int
	log     logx.Logger
}

// DialDaemon connects to the system bus. It does not probe the daemon.
func DialDaemon(ctx context.Context, opts DaemonOptions, log logx.Logger) (*Daemon, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: system bus: %v", ErrUnavailable, err)
	}
	caller := &busCaller{
		conn:  conn,
		obj:   conn.Object(opts.BusName, dbus.ObjectPath(opts.ObjectPath)),
		iface: opts.Interface,
	}
	d := NewDaemon(caller, opts, log)
	d.closer = conn.Close
	return d, nil
}

// NewDaemon wraps an existing caller.
func NewDaemon(c Caller, opts DaemonOptions, log logx.Logger) *Daemon {
	return &Daemon{
		caller:  c,
		timeout: opts.CallTimeout,
		uid:     opts.UID,
		log:     log.With(logx.Component("backend"), logx.String("backend", string(KindDaemon))),
	}
}

func (d *Daemon) Kind() Kind          { return KindDaemon }
func (d *Daemon) Naming() task.Naming { return task.Naming{Daemon: true, UID: d.uid} }

func (d *Daemon) Close() error {
	if d.closer != nil {
		return d.closer()
	}
	return nil
}

func (d *Daemon) call(ctx context.Context, method string, args ...any) ([]any, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	start := time.Now()
	body, err := d.caller.Call(ctx, method, args...)
	d.log.Debug("daemon call", logx.String("method", method), logx.Duration("took", time.Since(start)), logx.Err(err))
	return body, err
}

// Capabilities probes the daemon.
func (d *Daemon) Capabilities(ctx context.Context) (string, error) {
	body, err := d.call(ctx, "GetCapabilities")
	if err != nil {
		return "", err
	}
	return replyText(body), nil
}

func (d *Daemon) List(ctx context.Context, scope task.Scope) ([]Record, error) {
	body, err := d.call(ctx, "ListTasks", string(scope))
	if err != nil {
		return nil, err
	}
	items, err := DecodeTaskList([]byte(replyJSON(body)))
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(items))
	for i, it := range items {
		rec, err := decodeRecord(it, scope)
		if err != nil {
			d.log.Warn("skipping undecodable task record", logx.Int("index", i), logx.String("scope", string(scope)), logx.Err(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (d *Daemon) Create(ctx context.Context, sub Submission) error {
	inst := sub.Instance
	_, err := d.call(ctx, "CreateTask",
		inst.Template.Key, task.EnvMap(sub.Env), sub.Script, inst.Schedule.JSON(), inst.Notes, "auto")
	return err
}

func (d *Daemon) Update(ctx context.Context, sub Submission) error {
	inst := sub.Instance
	_, err := d.call(ctx, "UpdateTask",
		inst.Template.Key, sub.storedName(), task.EnvMap(sub.Env), sub.Script, inst.Schedule.JSON(), inst.Notes, "auto")
	return err
}

// UpdateNotes resubmits the whole task; the daemon has no notes-only call.
func (d *Daemon) UpdateNotes(ctx context.Context, sub Submission) error { return d.Update(ctx, sub) }

func (d *Daemon) ApplySchedule(ctx context.Context, sub Submission) error { return d.Update(ctx, sub) }

func (d *Daemon) EnableSchedule(ctx context.Context, inst *task.Instance, enabled bool) error {
	_, err := d.call(ctx, "EnableSchedule", inst.Template.Key, inst.Name, strconv.FormatBool(enabled))
	return err
}

func (d *Daemon) Delete(ctx context.Context, inst *task.Instance) error {
	_, err := d.call(ctx, "DeleteTask", inst.Template.Key, inst.Name)
	return err
}

func (d *Daemon) Run(ctx context.Context, inst *task.Instance) error {
	_, err := d.call(ctx, "RunNow", inst.Template.Key, inst.Name)
	return err
}

func (d *Daemon) Stop(ctx context.Context, inst *task.Instance) error {
	_, err := d.call(ctx, "StopTask", inst.Template.Key, inst.Name)
	return err
}

func (d *Daemon) Telemetry(ctx context.Context, inst *task.Instance) (status.Telemetry, error) {
	body, err := d.call(ctx, "GetStatus", inst.Template.Key, inst.Name)
	if err != nil {
		return status.Telemetry{}, err
	}
	return decodeTelemetry(body)
}

func decodeTelemetry(body []any) (status.Telemetry, error) {
	var tel status.Telemetry
	if len(body) == 0 {
		return tel, nil
	}
	switch v := body[0].(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &tel); err != nil {
			return tel, fmt.Errorf("decode status: %w", err)
		}
	case map[string]string:
		tel = status.Telemetry{Scope: v["scope"], Unit: v["unit"], Service: v["service"], Timer: v["timer"]}
	case map[string]dbus.Variant:
		get := func(k string) string {
			s, _ := v[k].Value().(string)
			return s
		}
		tel = status.Telemetry{Scope: get("scope"), Unit: get("unit"), Service: get("service"), Timer: get("timer")}
	default:
		return tel, fmt.Errorf("decode status: unexpected reply type %T", body[0])
	}
	return tel, nil
}

// replyText flattens a reply to text.
func replyText(body []any) string {
	if len(body) == 0 {
		return ""
	}
	if s, ok := body[0].(string); ok {
		return s
	}
	return fmt.Sprint(body[0])
}

// replyJSON returns the reply as JSON text. String arrays are re-encoded so
// DecodeTaskList can unwrap them.
func replyJSON(body []any) string {
	if len(body) == 0 {
		return ""
	}
	switch v := body[0].(type) {
	case string:
		return v
	case []string:
		b, _ := json.Marshal(v)
		return string(b)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
