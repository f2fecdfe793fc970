package config

import (
	"bytes"
	"os"
	"strings"
	"sync"

	"taskctl/pkg/logx"
)

// ConfigManager holds the active config and fans out replacements read from
// disk to subscribers. With an empty path it serves Default() and Watch only
// blocks.
type ConfigManager struct {
	path string
	log  logx.Logger

	mu  sync.RWMutex
	cfg *Config
	raw []byte

	subMu sync.Mutex
	subs  map[chan *Config]struct{}
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{
		path: strings.TrimSpace(path),
		subs: map[chan *Config]struct{}{},
	}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// Parse reads and decodes the file without committing it.
func (m *ConfigManager) Parse() (*Config, error) {
	cfg, _, err := m.read()
	return cfg, err
}

func (m *ConfigManager) read() (*Config, []byte, error) {
	if m.path == "" {
		return Default(), nil, nil
	}
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := decode(m.path, raw)
	return cfg, raw, err
}

// Load parses the file and makes it the active config.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, raw, err := m.read()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cfg, m.raw = cfg, raw
	m.mu.Unlock()
	return cfg, nil
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Subscribe returns a channel receiving each newly committed config.
func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

// broadcast hands cfg to every subscriber without blocking. A subscriber
// whose buffer is full has its stale entry replaced, so the last delivered
// value is always the newest config.
func (m *ConfigManager) broadcast(cfg *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
		}
	}
}

// refresh re-reads the file and publishes it when its bytes changed and it
// still decodes. A broken edit leaves the active config in place.
func (m *ConfigManager) refresh() {
	cfg, raw, err := m.read()
	if err != nil {
		m.log.Warn("config reload rejected", logx.String("path", m.path), logx.Err(err))
		return
	}
	m.mu.Lock()
	same := m.cfg != nil && bytes.Equal(raw, m.raw)
	if !same {
		m.cfg, m.raw = cfg, raw
	}
	m.mu.Unlock()
	if same {
		return
	}
	m.broadcast(cfg)
	m.log.Info("config reloaded", logx.String("path", m.path))
}
