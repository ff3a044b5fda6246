package config

import (
	"fmt"
	"sync"
)

// Manager holds the loaded configuration and prompt table. Components get a
// Manager at construction and read snapshots from it; nothing is global.
type Manager struct {
	path   string
	static bool

	mu      sync.RWMutex
	cfg     *Config
	prompts *Prompts
}

// NewManager loads configuration and prompts once.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewStaticManager wraps an already built configuration. Reload re-reads
// nothing and keeps the given values.
func NewStaticManager(cfg *Config, prompts *Prompts) *Manager {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Manager{cfg: cfg, prompts: prompts, static: true}
}

// Config returns the current configuration snapshot.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Prompts returns the current prompt table snapshot.
func (m *Manager) Prompts() *Prompts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prompts
}

// Reload re-reads the config file, environment and prompt file. On error the
// previous snapshot stays in place.
func (m *Manager) Reload() error {
	if m.static {
		return nil
	}

	cfg, err := Load(m.path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	prompts, err := LoadPrompts(cfg.Prompts.Path)
	if err != nil {
		return fmt.Errorf("reload prompts: %w", err)
	}

	m.mu.Lock()
	m.cfg = cfg
	m.prompts = prompts
	m.mu.Unlock()
	return nil
}
