// Package task holds the task templates, task instances and the naming and
// env rules shared by both execution backends.
package task

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"taskctl/internal/param"
)

var ErrUnknownTemplate = errors.New("task: unknown template")

// Canonical template keys.
const (
	KeyZfsReplication = "ZfsReplicationTask"
	KeyAutoSnapshot   = "AutomatedSnapshotTask"
	KeyRsync          = "RsyncTask"
	KeyScrub          = "ScrubTask"
	KeySmartTest      = "SmartTest"
	KeyCloudSync      = "CloudSyncTask"
	KeyCustom         = "CustomTask"
)

// Template is a fixed job kind. It is immutable after construction; callers
// get fresh parameter trees through NewParameters.
type Template struct {
	Key  string
	Name string
	// Script is the payload file name under the script dir. Empty means the
	// path comes from the task's own parameters.
	Script string

	schema *param.Node
}

// RootKey is the first segment of every env key this template produces.
func (t *Template) RootKey() string { return t.schema.Key }

// Schema returns a copy of the canonical parameter tree.
func (t *Template) Schema() *param.Node { return t.schema.Clone() }

// NewParameters hydrates a fresh tree from flat values. loose is true when
// the values did not fit the schema and were loaded by inference instead.
func (t *Template) NewParameters(flat map[string]string) (n *param.Node, loose bool) {
	return param.CloneWithValues(t.schema, flat)
}

var (
	catalogue = []*Template{
		{Key: KeyZfsReplication, Name: "ZFS Replication Task", Script: "replication-script.py", schema: zfsReplicationSchema()},
		{Key: KeyAutoSnapshot, Name: "Automated Snapshot Task", Script: "autosnap-script.py", schema: autoSnapshotSchema()},
		{Key: KeyRsync, Name: "Rsync Task", Script: "rsync-script.py", schema: rsyncSchema()},
		{Key: KeyScrub, Name: "Scrub Task", Script: "scrub-script.py", schema: scrubSchema()},
		{Key: KeySmartTest, Name: "SMART Test", Script: "smart-test-script.py", schema: smartTestSchema()},
		{Key: KeyCloudSync, Name: "Cloud Sync Task", Script: "cloudsync-script.py", schema: cloudSyncSchema()},
		{Key: KeyCustom, Name: "Custom Task", schema: customSchema()},
	}

	aliases = map[string]string{
		"zfsreplication": KeyZfsReplication,
		"replication":    KeyZfsReplication,
		"zfsrep":         KeyZfsReplication,
		"autosnapshot":   KeyAutoSnapshot,
		"automatedsnap":  KeyAutoSnapshot,
		"autosnap":       KeyAutoSnapshot,
		"snapshot":       KeyAutoSnapshot,
		"rsync":          KeyRsync,
		"scrub":          KeyScrub,
		"zfsscrub":       KeyScrub,
		"smart":          KeySmartTest,
		"smarttesttask":  KeySmartTest,
		"cloudsync":      KeyCloudSync,
		"rclone":         KeyCloudSync,
		"custom":         KeyCustom,
		"customscript":   KeyCustom,
	}
)

func init() {
	for _, t := range catalogue {
		aliases[fold(t.Key)] = t.Key
		aliases[fold(t.Name)] = t.Key
	}
}

// fold lowercases and drops everything but letters and digits.
func fold(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// NormalizeTemplateKey maps exact keys, display names and case or
// separator variants ("rsync-task", "ZFS Replication Task") to a canonical
// key. Unrecognized input is returned unchanged; Lookup on it fails.
func NormalizeTemplateKey(in string) string {
	if k, ok := aliases[fold(in)]; ok {
		return k
	}
	return in
}

// Lookup returns the template for any spelling NormalizeTemplateKey accepts.
func Lookup(key string) (*Template, error) {
	k := NormalizeTemplateKey(key)
	for _, t := range catalogue {
		if t.Key == k {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, key)
}

// Templates lists the catalogue in display order.
func Templates() []*Template {
	return append([]*Template(nil), catalogue...)
}
