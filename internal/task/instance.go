package task

import (
	"fmt"
	"strconv"
	"strings"

	"taskctl/internal/param"
	"taskctl/internal/schedule"
)

type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeSystem Scope = "system"
)

// ParseScope accepts "user" and "system"; anything else is system.
func ParseScope(s string) Scope {
	if strings.EqualFold(strings.TrimSpace(s), string(ScopeUser)) {
		return ScopeUser
	}
	return ScopeSystem
}

const unitPrefix = "scheduler_"

// Instance is one configured task.
type Instance struct {
	Name       string
	Template   *Template
	Parameters *param.Node
	Schedule   schedule.Schedule
	Notes      string
	Scope      Scope
}

// New builds an instance from flat parameter values. Unknown templates are
// a configuration error.
func New(templateKey, name string, flat map[string]string) (*Instance, error) {
	t, err := Lookup(templateKey)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("task: empty name for template %s", t.Key)
	}
	params, _ := t.NewParameters(flat)
	return &Instance{Name: name, Template: t, Parameters: params, Scope: ScopeSystem}, nil
}

// ID is the identity key "<templateKey>/<name>".
func (i *Instance) ID() string { return ID(i.Template.Key, i.Name) }

func ID(templateKey, name string) string { return templateKey + "/" + name }

// Naming carries the process-wide inputs of unit naming.
type Naming struct {
	Daemon bool
	UID    int
}

// UnitName is the only place unit names are derived.
func UnitName(templateKey, name string, scope Scope, daemon bool, uid int) string {
	base := unitPrefix + templateKey + "_" + name
	if scope == ScopeUser && daemon {
		return base + "_u" + strconv.Itoa(uid)
	}
	return base
}

func (i *Instance) UnitName(n Naming) string {
	return UnitName(i.Template.Key, i.Name, i.Scope, n.Daemon, n.UID)
}

// ParseUnitName splits a legacy unit base name back into template key and
// task name. ok is false for names this package did not produce.
func ParseUnitName(unit string) (templateKey, name string, ok bool) {
	rest, found := strings.CutPrefix(unit, unitPrefix)
	if !found {
		return "", "", false
	}
	for _, t := range catalogue {
		if n, hit := strings.CutPrefix(rest, t.Key+"_"); hit && n != "" {
			return t.Key, n, true
		}
	}
	return "", "", false
}
