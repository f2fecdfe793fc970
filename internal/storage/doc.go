// Package storage records what taskctl did: an audit entry per orchestrator
// write and the last run-now outcome per unit, so listings can show it after
// a restart. Drivers are "file" (JSON files) and "sqlite" (build tag sqlite).
package storage
