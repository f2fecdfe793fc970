// Package systemd wraps the systemctl and journalctl command line tools for
// read-only queries that return text.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when systemctl reports the unit does not exist.
var ErrNotFound = errors.New("systemd: unit not found")

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Client issues systemctl/journalctl queries through a Runner.
type Client struct {
	runner Runner
}

func New(r Runner) *Client {
	if r == nil {
		r = ExecRunner{}
	}
	return &Client{runner: r}
}

// Show returns "Key=Value" lines for the requested properties of unit.
// A unit that does not exist yields ErrNotFound.
func (c *Client) Show(ctx context.Context, unit string, props ...string) (string, error) {
	args := []string{"show", unit}
	if len(props) > 0 {
		args = append(args, "--property="+strings.Join(props, ","))
	}
	out, err := c.runner.Run(ctx, "systemctl", args...)
	text := string(out)
	if err != nil {
		if strings.Contains(strings.ToLower(text), "not found") {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("systemctl show %s: %w: %s", unit, err, strings.TrimSpace(text))
	}
	return text, nil
}

func (c *Client) IsActive(ctx context.Context, unit string) (bool, error) {
	out, err := c.runner.Run(ctx, "systemctl", "is-active", unit)
	// is-active returns non-zero when inactive; treat as not active
	if err != nil {
		return strings.TrimSpace(string(out)) == "active", nil
	}
	return strings.TrimSpace(string(out)) == "active", nil
}

// Journal returns the unit's journal between since and until. Zero times
// leave that end of the window open.
func (c *Client) Journal(ctx context.Context, unit string, since, until time.Time) (string, error) {
	args := []string{"-u", unit, "--no-pager", "-o", "short-iso"}
	if !since.IsZero() {
		args = append(args, "--since", since.Format("2006-01-02 15:04:05"))
	}
	if !until.IsZero() {
		args = append(args, "--until", until.Format("2006-01-02 15:04:05"))
	}
	out, err := c.runner.Run(ctx, "journalctl", args...)
	if err != nil {
		return "", fmt.Errorf("journalctl -u %s: %w", unit, err)
	}
	return string(out), nil
}

// JournalTail returns the last n journal lines of unit.
func (c *Client) JournalTail(ctx context.Context, unit string, n int) (string, error) {
	out, err := c.runner.Run(ctx, "journalctl", "-u", unit, "-n", strconv.Itoa(n), "--no-pager", "-o", "short-iso")
	if err != nil {
		return "", fmt.Errorf("journalctl -u %s: %w", unit, err)
	}
	return string(out), nil
}

// ParseProperties splits "Key=Value" lines. Values may themselves contain '='.
func ParseProperties(text string) map[string]string {
	m := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return m
}
