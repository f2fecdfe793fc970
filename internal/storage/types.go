package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config selects a driver ("file", "sqlite", or "" and "none" for off) and
// the path its files derive from.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one orchestrator write.
type AuditEntry struct {
	At       time.Time `json:"at"`
	RunID    string    `json:"run_id"`
	Action   string    `json:"action"`
	Template string    `json:"template"`
	Task     string    `json:"task"`
	Unit     string    `json:"unit"`
	Backend  string    `json:"backend"`
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
	Detail   string    `json:"detail,omitempty"`
}

// LastRun is the terminal status observed by the most recent run-now.
type LastRun struct {
	Unit   string    `json:"unit"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	RunID  string    `json:"run_id,omitempty"`
}
