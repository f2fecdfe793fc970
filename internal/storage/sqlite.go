//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"taskctl/pkg/logx"
)

//go:embed migrations.sql
var schema string

func init() { register(openSQLite, "sqlite", "sqlite3") }

const (
	qInsertAudit = `INSERT INTO audit(at, run_id, action, template, task, unit, backend, ok, err, took_ms, detail)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	qRecentAudit = `SELECT at, run_id, action, template, task, unit, backend, ok, err, took_ms, detail
FROM audit ORDER BY id DESC LIMIT ?`
	qUpsertRun = `INSERT INTO last_run(unit, status, at, run_id) VALUES(?, ?, ?, ?)
ON CONFLICT(unit) DO UPDATE SET status = excluded.status, at = excluded.at, run_id = excluded.run_id`
	qGetRun    = `SELECT status, at, run_id FROM last_run WHERE unit = ?`
	qDeleteRun = `DELETE FROM last_run WHERE unit = ?`
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// sqliteDSN sets the pragmas through the driver so every pooled connection
// gets them.
func sqliteDSN(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	if busy > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	}
	return "file:" + path + "?" + q.Encode()
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", sqliteDSN(cfg.Path, cfg.BusyTimeout))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate %s: %w", cfg.Path, err)
	}
	log.Debug("sqlite store ready", logx.String("path", cfg.Path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, qInsertAudit,
		e.At.UTC().Format(time.RFC3339Nano), e.RunID, e.Action, e.Template, e.Task, e.Unit, e.Backend,
		e.OK, optional(e.Error), e.TookMS, optional(e.Detail),
	)
	return err
}

func (s *sqliteStore) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, qRecentAudit, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e           AuditEntry
			at          string
			failure, dt sql.NullString
		)
		if err := rows.Scan(&at, &e.RunID, &e.Action, &e.Template, &e.Task, &e.Unit, &e.Backend,
			&e.OK, &failure, &e.TookMS, &dt); err != nil {
			return nil, err
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			s.log.Debug("audit row has bad timestamp", logx.String("at", at), logx.Err(err))
		}
		e.Error, e.Detail = failure.String, dt.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutLastRun(ctx context.Context, r LastRun) error {
	if r.Unit == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, qUpsertRun, r.Unit, r.Status, r.At.UnixMilli(), optional(r.RunID))
	return err
}

func (s *sqliteStore) GetLastRun(ctx context.Context, unit string) (LastRun, bool, error) {
	var (
		r     = LastRun{Unit: unit}
		ms    int64
		runID sql.NullString
	)
	switch err := s.db.QueryRowContext(ctx, qGetRun, unit).Scan(&r.Status, &ms, &runID); {
	case errors.Is(err, sql.ErrNoRows):
		return LastRun{}, false, nil
	case err != nil:
		return LastRun{}, false, err
	}
	r.At, r.RunID = time.UnixMilli(ms), runID.String
	return r, true, nil
}

func (s *sqliteStore) DeleteLastRun(ctx context.Context, unit string) error {
	_, err := s.db.ExecContext(ctx, qDeleteRun, unit)
	return err
}

func optional(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
