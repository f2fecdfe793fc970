//go:build linux

package systemdmanager

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
)

// UnitState is what systemd reports about one unit over D-Bus.
type UnitState struct {
	Name        string
	Active      string // ActiveState: active, inactive, failed, activating
	SubState    string // running, dead, waiting, exited
	LoadState   string // loaded, not-found
	Result      string // services only: success, exit-code, signal
	ActiveSince time.Time
	ActiveExit  time.Time
}

// UnitManager drives task units on the system bus. Methods take full unit
// names such as "scheduler_ScrubTask_tank.timer".
type UnitManager struct {
	mu      sync.RWMutex
	conn    *dbus.Conn
	enabled *enabledCache
}

var errClosed = errors.New("systemdmanager: connection closed")

// NewContext connects to the system manager.
func NewContext(ctx context.Context) (*UnitManager, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("systemdmanager: connect: %w", err)
	}
	return &UnitManager{conn: conn, enabled: newEnabledCache(enabledTTL)}, nil
}

func (um *UnitManager) Close() error {
	um.mu.Lock()
	defer um.mu.Unlock()
	if um.conn != nil {
		um.conn.Close()
		um.conn = nil
	}
	return nil
}

func (um *UnitManager) bus() (*dbus.Conn, error) {
	um.mu.RLock()
	defer um.mu.RUnlock()
	if um.conn == nil {
		return nil, errClosed
	}
	return um.conn, nil
}

type jobCall func(ctx context.Context, name, mode string, ch chan<- string) (int, error)

// runJob queues a job in "replace" mode. With wait set it blocks until
// systemd reports the job result; anything but "done" is an error.
func (um *UnitManager) runJob(ctx context.Context, verb, unit string, wait, missingOK bool, pick func(*dbus.Conn) jobCall) error {
	conn, err := um.bus()
	if err != nil {
		return err
	}
	var ch chan string
	if wait {
		ch = make(chan string, 1)
	}
	if _, err := pick(conn)(ctx, unit, "replace", ch); err != nil {
		if missingOK && noSuchUnit(err) {
			return nil
		}
		return fmt.Errorf("%s %s: %w", verb, unit, err)
	}
	if !wait {
		return nil
	}
	select {
	case res := <-ch:
		if res != "done" {
			return fmt.Errorf("%s %s: job %s", verb, unit, res)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func startCall(c *dbus.Conn) jobCall   { return c.StartUnitContext }
func stopCall(c *dbus.Conn) jobCall    { return c.StopUnitContext }
func restartCall(c *dbus.Conn) jobCall { return c.RestartUnitContext }

func (um *UnitManager) Start(ctx context.Context, unit string) error {
	return um.runJob(ctx, "start", unit, true, false, startCall)
}

// StartNoWait queues a start and returns at once. A oneshot task service
// stays "activating" until its script exits, so waiting would block for the
// whole run.
func (um *UnitManager) StartNoWait(ctx context.Context, unit string) error {
	return um.runJob(ctx, "start", unit, false, false, startCall)
}

// Stop is a no-op for units systemd does not know.
func (um *UnitManager) Stop(ctx context.Context, unit string) error {
	return um.runJob(ctx, "stop", unit, true, true, stopCall)
}

func (um *UnitManager) Restart(ctx context.Context, unit string) error {
	return um.runJob(ctx, "restart", unit, true, false, restartCall)
}

func (um *UnitManager) ResetFailed(ctx context.Context, unit string) error {
	conn, err := um.bus()
	if err != nil {
		return err
	}
	if err := conn.ResetFailedUnitContext(ctx, unit); err != nil && !noSuchUnit(err) {
		return fmt.Errorf("reset-failed %s: %w", unit, err)
	}
	return nil
}

// Reload is "systemctl daemon-reload".
func (um *UnitManager) Reload(ctx context.Context) error {
	conn, err := um.bus()
	if err != nil {
		return err
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	return nil
}

// Enable links the unit file into its install target and reloads.
func (um *UnitManager) Enable(ctx context.Context, unit string) error {
	conn, err := um.bus()
	if err != nil {
		return err
	}
	defer um.enabled.drop(unit)
	if _, _, err := conn.EnableUnitFilesContext(ctx, []string{unit}, false, true); err != nil {
		return fmt.Errorf("enable %s: %w", unit, err)
	}
	return um.Reload(ctx)
}

// Disable unlinks the unit file and reloads. Unknown units are not an error.
func (um *UnitManager) Disable(ctx context.Context, unit string) error {
	conn, err := um.bus()
	if err != nil {
		return err
	}
	defer um.enabled.drop(unit)
	if _, err := conn.DisableUnitFilesContext(ctx, []string{unit}, false); err != nil {
		if noSuchUnit(err) {
			return nil
		}
		return fmt.Errorf("disable %s: %w", unit, err)
	}
	return um.Reload(ctx)
}

// IsEnabled reports the unit-file state "enabled". Lookup failures read as
// false and are not cached.
func (um *UnitManager) IsEnabled(ctx context.Context, unit string) bool {
	conn, err := um.bus()
	if err != nil {
		return false
	}
	now := time.Now()
	if on, ok := um.enabled.get(unit, now); ok {
		return on
	}
	files, err := conn.ListUnitFilesByPatternsContext(ctx, nil, []string{unit})
	if err != nil {
		return false
	}
	on := false
	for _, f := range files {
		if path.Base(f.Path) == unit {
			on = f.Type == "enabled"
			break
		}
	}
	um.enabled.put(unit, on, now)
	return on
}

// State reads the unit's core properties. A unit systemd has never loaded
// comes back as LoadState "not-found" with a nil error.
func (um *UnitManager) State(ctx context.Context, unit string) (*UnitState, error) {
	conn, err := um.bus()
	if err != nil {
		return nil, err
	}
	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	switch {
	case err != nil && noSuchUnit(err):
		return missing(unit), nil
	case err != nil:
		return nil, fmt.Errorf("state %s: %w", unit, err)
	}

	st := &UnitState{
		Name:        unit,
		Active:      str(props["ActiveState"]),
		SubState:    str(props["SubState"]),
		LoadState:   str(props["LoadState"]),
		ActiveSince: micros(props["ActiveEnterTimestamp"]),
		ActiveExit:  micros(props["ActiveExitTimestamp"]),
	}
	if st.LoadState == "not-found" {
		return missing(unit), nil
	}
	if strings.HasSuffix(unit, ".service") {
		if svc, err := conn.GetUnitTypePropertiesContext(ctx, unit, "Service"); err == nil {
			st.Result = str(svc["Result"])
		}
	}
	return st, nil
}

func missing(unit string) *UnitState {
	return &UnitState{Name: unit, Active: "inactive", SubState: "dead", LoadState: "not-found"}
}

// noSuchUnit matches org.freedesktop.systemd1.NoSuchUnit and the "not
// loaded" variants systemd returns for unknown units.
func noSuchUnit(err error) bool {
	msg := err.Error()
	for _, s := range []string{"NoSuchUnit", "not-found", "not loaded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// micros converts a systemd microsecond timestamp; zero means never.
func micros(v any) time.Time {
	if us, ok := v.(uint64); ok && us > 0 {
		return time.UnixMicro(int64(us))
	}
	return time.Time{}
}
