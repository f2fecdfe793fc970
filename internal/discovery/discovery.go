// Package discovery runs the host inspection scripts that list pools,
// datasets and disks, and that test remote connectivity.
//
// Every call is best effort: failures are logged and reported as nil or
// false.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"taskctl/pkg/logx"
)

const (
	zfsDataScript = "get-zfs-data.py"
	diskScript    = "get-disk-data.py"
	sshScript     = "test-ssh.py"
	netcatScript  = "test-netcat.py"

	defaultTimeout = 30 * time.Second
)

// Runner executes a command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs real processes. Stderr is folded into the error.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	var ee *exec.ExitError
	if errors.As(err, &ee) && len(ee.Stderr) > 0 {
		err = fmt.Errorf("%w: %s", err, strings.TrimSpace(string(ee.Stderr)))
	}
	return out, err
}

// Remote addresses another host; empty fields are omitted from the call.
type Remote struct {
	Host string
	Port string
	User string
}

func (r Remote) args() []string {
	var out []string
	if r.Host != "" {
		out = append(out, "--host", r.Host)
	}
	if r.Port != "" {
		out = append(out, "--port", r.Port)
	}
	if r.User != "" {
		out = append(out, "--user", r.User)
	}
	return out
}

// Disk is one entry of the disk inventory.
type Disk struct {
	Name     string `json:"name"`
	Capacity string `json:"capacity"`
	Model    string `json:"model"`
	Type     string `json:"type"`
	PhyPath  string `json:"phy_path"`
	SdPath   string `json:"sd_path"`
	VdevPath string `json:"vdev_path"`
	Serial   string `json:"serial"`
	Health   string `json:"health"`
	Temp     string `json:"temp"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type Options struct {
	ScriptDir string
	Python    string
	Timeout   time.Duration
}

type Discovery struct {
	run  Runner
	opts Options
	log  logx.Logger
}

func New(r Runner, opts Options, log logx.Logger) *Discovery {
	if r == nil {
		r = ExecRunner{}
	}
	if opts.Python == "" {
		opts.Python = "python3"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Discovery{run: r, opts: opts, log: log.With(logx.Component("discovery"))}
}

func (d *Discovery) runScript(ctx context.Context, script string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()
	argv := append([]string{d.opts.Python, filepath.Join(d.opts.ScriptDir, script)}, args...)
	return d.run.Run(ctx, "/usr/bin/env", argv...)
}

// Pools lists ZFS pools, locally or on remote.
func (d *Discovery) Pools(ctx context.Context, remote Remote) []string {
	return d.zfsList(ctx, "pools", append([]string{"-t", "pools"}, remote.args()...))
}

// Datasets lists the datasets of pool.
func (d *Discovery) Datasets(ctx context.Context, pool string, remote Remote) []string {
	args := append([]string{"-t", "datasets", "--pool", pool}, remote.args()...)
	return d.zfsList(ctx, "datasets", args)
}

func (d *Discovery) zfsList(ctx context.Context, what string, args []string) []string {
	log := d.log.With(logx.String("query", what))
	out, err := d.runScript(ctx, zfsDataScript, args...)
	if err != nil {
		log.Warn("discovery script failed", logx.Err(err))
		return nil
	}
	var env envelope
	if err := json.Unmarshal(out, &env); err != nil {
		log.Warn("discovery output is not json", logx.Err(err))
		return []string{}
	}
	if !env.Success {
		if env.Error != "" {
			log.Warn("discovery script reported error", logx.String("error", env.Error))
		} else {
			log.Info("discovery returned nothing")
		}
		return nil
	}
	names, err := decodeNames(env.Data)
	if err != nil {
		log.Warn("discovery data not understood", logx.Err(err))
		return []string{}
	}
	return names
}

// decodeNames accepts a list of names or a list of objects with a name.
func decodeNames(raw json.RawMessage) ([]string, error) {
	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		return names, nil
	}
	var objs []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil, err
	}
	names = make([]string, 0, len(objs))
	for _, o := range objs {
		names = append(names, o.Name)
	}
	return names, nil
}

// Disks returns the local disk inventory.
func (d *Discovery) Disks(ctx context.Context) []Disk {
	out, err := d.runScript(ctx, diskScript)
	if err != nil {
		d.log.Warn("disk inventory failed", logx.Err(err))
		return nil
	}
	var disks []Disk
	if err := json.Unmarshal(out, &disks); err != nil {
		var env envelope
		if jerr := json.Unmarshal(out, &env); jerr != nil || !env.Success || json.Unmarshal(env.Data, &disks) != nil {
			d.log.Warn("disk inventory not understood", logx.Err(err))
			return nil
		}
	}
	return disks
}

// TestSSH reports whether passwordless SSH to target ("user@host") works.
func (d *Discovery) TestSSH(ctx context.Context, target string) bool {
	return d.probe(ctx, "ssh", sshScript, target)
}

// TestNetcat reports whether host:port accepts a netcat connection as user.
func (d *Discovery) TestNetcat(ctx context.Context, user, host, port string) bool {
	return d.probe(ctx, "netcat", netcatScript, user, host, port)
}

func (d *Discovery) probe(ctx context.Context, what, script string, args ...string) bool {
	out, err := d.runScript(ctx, script, args...)
	if err != nil {
		d.log.Warn("connectivity test failed", logx.String("test", what), logx.Err(err))
		return false
	}
	return strings.Contains(string(out), "True")
}
