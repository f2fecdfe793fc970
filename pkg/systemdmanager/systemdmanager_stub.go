//go:build !linux

package systemdmanager

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned by every operation off Linux.
var ErrUnsupported = errors.New("systemdmanager: systemd is only available on linux")

type UnitState struct {
	Name        string
	Active      string
	SubState    string
	LoadState   string
	Result      string
	ActiveSince time.Time
	ActiveExit  time.Time
}

type UnitManager struct{}

func NewContext(context.Context) (*UnitManager, error) { return nil, ErrUnsupported }

func (*UnitManager) Close() error                                      { return nil }
func (*UnitManager) Start(context.Context, string) error               { return ErrUnsupported }
func (*UnitManager) StartNoWait(context.Context, string) error         { return ErrUnsupported }
func (*UnitManager) Stop(context.Context, string) error                { return ErrUnsupported }
func (*UnitManager) Restart(context.Context, string) error             { return ErrUnsupported }
func (*UnitManager) ResetFailed(context.Context, string) error         { return ErrUnsupported }
func (*UnitManager) Reload(context.Context) error                      { return ErrUnsupported }
func (*UnitManager) Enable(context.Context, string) error              { return ErrUnsupported }
func (*UnitManager) Disable(context.Context, string) error             { return ErrUnsupported }
func (*UnitManager) IsEnabled(context.Context, string) bool            { return false }
func (*UnitManager) State(context.Context, string) (*UnitState, error) { return nil, ErrUnsupported }
