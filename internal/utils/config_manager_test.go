package utils

import (
	"os"
	"testing"
	"time"

	"github.com/benmeehan/irc-conntrack/pkg/file"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigManager_ReloadAppliesTrackerSettings(t *testing.T) {
	path := writeConfig(t, "api:\n  bind_port: 9001\ntracker:\n  stale_after: 10s\n  evict_after: 20s\n")
	config, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	manager := NewConfigManager(config, path, file.NewFileService(), zerolog.Nop())
	var applied []Config
	manager.OnReload(func(c Config) { applied = append(applied, c) })

	body := "api:\n  bind_port: 9002\ntracker:\n  stale_after: 1m\n  evict_after: 2m\n  max_connections: 7\n  sweep_interval: 1s\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	effective, err := manager.Reload()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, effective.Tracker.StaleAfter)
	assert.Equal(t, 2*time.Minute, effective.Tracker.EvictAfter)
	assert.Equal(t, 7, effective.Tracker.MaxConnections)
	assert.Equal(t, 9001, effective.API.BindPort, "bind settings need a restart")
	assert.Equal(t, 5*time.Second, effective.Tracker.SweepInterval)

	require.Len(t, applied, 1)
	assert.Equal(t, effective, applied[0])
	assert.Equal(t, effective, manager.Current())
}

func TestConfigManager_ReloadKeepsConfigOnError(t *testing.T) {
	path := writeConfig(t, "tracker:\n  stale_after: 10s\n  evict_after: 20s\n")
	config, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	manager := NewConfigManager(config, path, file.NewFileService(), zerolog.Nop())
	manager.OnReload(func(Config) { t.Fatal("hook must not run on a failed reload") })

	require.NoError(t, os.WriteFile(path, []byte("tracker:\n  stale_after: 1m\n  evict_after: 30s\n"), 0600))
	_, err = manager.Reload()
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("tracker: [not, a, map"), 0600))
	_, err = manager.Reload()
	require.Error(t, err)

	assert.Equal(t, 10*time.Second, manager.Current().Tracker.StaleAfter)
}

func TestConfigManager_ReloadWithoutFile(t *testing.T) {
	manager := NewConfigManager(DefaultConfig(), "", file.NewFileService(), zerolog.Nop())

	_, err := manager.Reload()

	assert.ErrorIs(t, err, ErrNoConfigFile)
	assert.Equal(t, *DefaultConfig(), manager.Current())
}
