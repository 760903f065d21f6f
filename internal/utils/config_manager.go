package utils

import (
	"errors"
	"reflect"
	"slices"
	"sync"

	"github.com/benmeehan/irc-conntrack/pkg/file"
	"github.com/rs/zerolog"
)

// ErrNoConfigFile is returned by Reload when the running configuration did not come
// from a file.
var ErrNoConfigFile = errors.New("configuration was not loaded from a file")

// ConfigManager holds the effective configuration and re-reads it on demand.
//
// Only tracker.stale_after, tracker.evict_after and tracker.max_connections take effect
// on reload. Every other setting keeps its running value until restart.
type ConfigManager struct {
	path       string
	fileClient file.FileOperations
	logger     zerolog.Logger

	reloadMu sync.Mutex
	mu       sync.RWMutex
	current  Config
	onReload []func(Config)
}

// NewConfigManager wraps config, which was loaded from path. An empty path disables Reload.
func NewConfigManager(config *Config, path string, fileClient file.FileOperations, logger zerolog.Logger) *ConfigManager {
	return &ConfigManager{
		path:       path,
		fileClient: fileClient,
		logger:     logger,
		current:    *config,
	}
}

// Current returns a copy of the effective configuration.
func (m *ConfigManager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.current
	c.API.AllowedOrigins = slices.Clone(c.API.AllowedOrigins)
	return c
}

// OnReload registers fn to be called with the effective configuration after every
// successful reload.
func (m *ConfigManager) OnReload(fn func(Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, fn)
}

// Reload reads and validates the file again and applies its reloadable settings.
// On error the effective configuration is unchanged.
func (m *ConfigManager) Reload() (Config, error) {
	if m.path == "" {
		return Config{}, ErrNoConfigFile
	}

	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	loaded, err := LoadConfig(m.path, m.fileClient)
	if err != nil {
		m.logger.Error().Err(err).Str("path", m.path).Msg("Configuration reload failed")
		return Config{}, err
	}

	m.mu.Lock()
	next := m.current
	next.Tracker.StaleAfter = loaded.Tracker.StaleAfter
	next.Tracker.EvictAfter = loaded.Tracker.EvictAfter
	next.Tracker.MaxConnections = loaded.Tracker.MaxConnections
	m.current = next
	hooks := append(([]func(Config))(nil), m.onReload...)
	m.mu.Unlock()

	if !reflect.DeepEqual(*loaded, next) {
		m.logger.Warn().Str("path", m.path).Msg("Configuration file changes settings that only apply after a restart")
	}
	for _, fn := range hooks {
		fn(next)
	}

	m.logger.Info().
		Str("path", m.path).
		Dur("stale_after", next.Tracker.StaleAfter).
		Dur("evict_after", next.Tracker.EvictAfter).
		Int("max_connections", next.Tracker.MaxConnections).
		Msg("Configuration reloaded")
	return m.Current(), nil
}
