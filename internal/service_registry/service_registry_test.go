package service_registry

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benmeehan/irc-conntrack/internal/services"
	"github.com/benmeehan/irc-conntrack/internal/tracker"
	"github.com/benmeehan/irc-conntrack/internal/utils"
	"github.com/benmeehan/irc-conntrack/pkg/file"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	log      *[]string
	startErr error
	stopErr  error
}

func (s *recordingService) Start() error {
	*s.log = append(*s.log, "start "+s.name)
	return s.startErr
}

func (s *recordingService) Stop() error {
	*s.log = append(*s.log, "stop "+s.name)
	return s.stopErr
}

func TestStartStopOrder(t *testing.T) {
	var log []string
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", &recordingService{name: "a", log: &log})
	sr.RegisterService("b", &recordingService{name: "b", log: &log})
	sr.RegisterService("a", &recordingService{name: "dup", log: &log})

	require.NoError(t, sr.StartServices())
	require.NoError(t, sr.StopServices())

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestStartFailureRollsBack(t *testing.T) {
	var log []string
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", &recordingService{name: "a", log: &log})
	sr.RegisterService("b", &recordingService{name: "b", log: &log})
	sr.RegisterService("c", &recordingService{name: "c", log: &log, startErr: errors.New("port in use")})
	sr.RegisterService("d", &recordingService{name: "d", log: &log})

	err := sr.StartServices()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start c: port in use")
	assert.Equal(t, []string{"start a", "start b", "start c", "stop b", "stop a"}, log)

	log = nil
	require.NoError(t, sr.StopServices())
	assert.Empty(t, log)
}

func TestStopCollectsErrors(t *testing.T) {
	var log []string
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", &recordingService{name: "a", log: &log, stopErr: errors.New("a stuck")})
	sr.RegisterService("b", &recordingService{name: "b", log: &log, stopErr: errors.New("b stuck")})
	require.NoError(t, sr.StartServices())

	err := sr.StopServices()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stop a: a stuck")
	assert.Contains(t, err.Error(), "failed to stop b: b stuck")
}

func TestRegisterServices(t *testing.T) {
	config := utils.DefaultConfig()
	deps := Dependencies{Tracker: tracker.New(0, zerolog.Nop()), Handler: http.NotFoundHandler()}
	sr := NewServiceRegistry(zerolog.Nop())

	require.NoError(t, sr.RegisterServices(config, deps))

	assert.Equal(t, []string{"sweeper", "api"}, sr.serviceKeys)
	sweeper, ok := sr.Get("sweeper")
	require.True(t, ok)
	assert.Equal(t, config.Tracker.SweepInterval, sweeper.(*services.SweepService).Interval)
}

func TestRegisterServices_IngestNeedsClient(t *testing.T) {
	config := utils.DefaultConfig()
	config.MQTT.Broker = "tcp://localhost:1883"
	config.Services.MQTTIngest.Enabled = true
	sr := NewServiceRegistry(zerolog.Nop())

	err := sr.RegisterServices(config, Dependencies{Tracker: tracker.New(0, zerolog.Nop())})

	assert.ErrorContains(t, err, "no MQTT client")
}

func TestRegisterServices_ReloadUpdatesSweeper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tracker:\n  stale_after: 10s\n  evict_after: 20s\n"), 0600))
	config, err := utils.LoadConfig(path, file.NewFileService())
	require.NoError(t, err)
	settings := utils.NewConfigManager(config, path, file.NewFileService(), zerolog.Nop())

	sr := NewServiceRegistry(zerolog.Nop())
	require.NoError(t, sr.RegisterServices(config, Dependencies{
		Tracker:  tracker.New(0, zerolog.Nop()),
		Handler:  http.NotFoundHandler(),
		Settings: settings,
	}))

	require.NoError(t, os.WriteFile(path, []byte("tracker:\n  stale_after: 1m\n  evict_after: 3m\n"), 0600))
	_, err = settings.Reload()
	require.NoError(t, err)

	svc, ok := sr.Get("sweeper")
	require.True(t, ok)
	staleAfter, evictAfter := svc.(*services.SweepService).Thresholds()
	assert.Equal(t, time.Minute, staleAfter)
	assert.Equal(t, 3*time.Minute, evictAfter)
}

func TestRegisterServices_APIShutdownHook(t *testing.T) {
	config := utils.DefaultConfig()
	config.API.BindPort = 0
	var closed int
	sr := NewServiceRegistry(zerolog.Nop())
	require.NoError(t, sr.RegisterServices(config, Dependencies{
		Tracker:     tracker.New(0, zerolog.Nop()),
		Handler:     http.NotFoundHandler(),
		APIShutdown: func() { closed++ },
	}))

	require.NoError(t, sr.StartServices())
	assert.Equal(t, 0, closed)
	require.NoError(t, sr.StopServices())
	assert.Equal(t, 1, closed)
}
