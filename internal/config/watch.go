package config

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"taskctl/pkg/logx"
)

const (
	settleDelay    = 250 * time.Millisecond
	rewatchInitial = 250 * time.Millisecond
	rewatchCeiling = 5 * time.Second
)

// Watch follows the config file until ctx ends. The parent directory is
// watched so editors that replace the file by rename are seen. Bursts of
// events are collapsed into one refresh after settleDelay. A broken watcher
// is recreated with jittered exponential backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	kick := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer == nil {
			timer = time.AfterFunc(settleDelay, m.refresh)
			return
		}
		timer.Reset(settleDelay)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	delay := rewatchInitial
	for {
		err := m.follow(ctx, kick)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			delay = rewatchInitial
		}
		wait := delay + time.Duration(rand.Int63n(int64(delay/2+1)))
		delay = min(delay*2, rewatchCeiling)
		m.log.Warn("config watcher stopped, retrying", logx.Err(err), logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

var errWatcherClosed = errors.New("config: watcher channels closed")

// follow runs one fsnotify watcher until ctx ends or the watcher fails.
func (m *ConfigManager) follow(ctx context.Context, kick func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		return err
	}
	name := filepath.Base(m.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if filepath.Base(ev.Name) == name && !ev.Has(fsnotify.Chmod) {
				kick()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow, forcing reload", logx.Err(err))
				kick()
				continue
			}
			return err
		}
	}
}
