package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"taskctl/pkg/logx"
)

func init() { register(openFile, "file") }

// fileStore keeps two files next to the configured path:
//
//	<name>.audit.jsonl    one AuditEntry per line, append only
//	<name>.lastrun.json   every LastRun keyed by unit, rewritten on change
type fileStore struct {
	log logx.Logger

	mu       sync.Mutex
	audit    *os.File
	auditAt  string
	runsAt   string
	lastRuns map[string]LastRun
}

var errClosed = errors.New("storage: closed")

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := filepath.Dir(cfg.Path)
	stem := filepath.Join(dir, strings.TrimSuffix(filepath.Base(cfg.Path), filepath.Ext(cfg.Path)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:      log,
		auditAt:  stem + ".audit.jsonl",
		runsAt:   stem + ".lastrun.json",
		lastRuns: map[string]LastRun{},
	}
	if b, err := os.ReadFile(s.runsAt); err == nil {
		if err := json.Unmarshal(b, &s.lastRuns); err != nil {
			log.Warn("last-run file unreadable, starting empty", logx.String("path", s.runsAt), logx.Err(err))
			s.lastRuns = map[string]LastRun{}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	f, err := os.OpenFile(s.auditAt, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.audit = f
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return nil
	}
	err := s.audit.Close()
	s.audit = nil
	return err
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return errClosed
	}
	_, err = s.audit.Write(append(line, '\n'))
	return err
}

func (s *fileStore) RecentAudit(_ context.Context, limit int) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.auditAt)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []AuditEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for lineNo := 1; sc.Scan(); lineNo++ {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			s.log.Debug("skipping bad audit line", logx.Int("line", lineNo), logx.Err(err))
			continue
		}
		all = append(all, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	slices.Reverse(all)
	return all, nil
}

func (s *fileStore) GetLastRun(_ context.Context, unit string) (LastRun, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.lastRuns[strings.TrimSpace(unit)]
	return r, ok, nil
}

func (s *fileStore) PutLastRun(_ context.Context, r LastRun) error {
	r.Unit = strings.TrimSpace(r.Unit)
	if r.Unit == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.lastRuns[r.Unit]
	s.lastRuns[r.Unit] = r
	if err := s.saveRuns(); err != nil {
		if had {
			s.lastRuns[r.Unit] = prev
		} else {
			delete(s.lastRuns, r.Unit)
		}
		return err
	}
	return nil
}

func (s *fileStore) DeleteLastRun(_ context.Context, unit string) error {
	unit = strings.TrimSpace(unit)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.lastRuns[unit]
	if !ok {
		return nil
	}
	delete(s.lastRuns, unit)
	if err := s.saveRuns(); err != nil {
		s.lastRuns[unit] = prev
		return err
	}
	return nil
}

// saveRuns replaces the last-run file through a temp file and rename so a
// crash never leaves a half-written document. Callers hold mu.
func (s *fileStore) saveRuns() error {
	if s.audit == nil {
		return errClosed
	}
	b, err := json.MarshalIndent(s.lastRuns, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.runsAt), ".lastrun-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.runsAt); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("storage: replace %s: %w", s.runsAt, err)
	}
	return nil
}
