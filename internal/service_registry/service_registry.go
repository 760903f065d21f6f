package service_registry

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/benmeehan/irc-conntrack/internal/metrics"
	"github.com/benmeehan/irc-conntrack/internal/services"
	"github.com/benmeehan/irc-conntrack/internal/tracker"
	"github.com/benmeehan/irc-conntrack/internal/utils"
	"github.com/benmeehan/irc-conntrack/pkg/mqtt"
	"github.com/rs/zerolog"
)

// Dependencies are the shared components services are built from.
type Dependencies struct {
	Tracker    tracker.ConnectionTracker
	Handler    http.Handler
	Metrics    *metrics.Metrics
	MQTTClient mqtt.MQTTClient // nil unless MQTT ingestion is enabled

	// Settings, when set, pushes reloaded sweep thresholds to the sweeper.
	Settings *utils.ConfigManager
	// APIShutdown runs when the API service stops, before in-flight requests drain.
	APIShutdown func()
}

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	started     []string           // Services currently running, in start order
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new, empty service registry.
func NewServiceRegistry(logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]Service),
		Logger:   logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Get returns the service registered under name.
func (sr *ServiceRegistry) Get(name string) (Service, bool) {
	svc, ok := sr.services[name]
	return svc, ok
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			if stopErr := sr.StopServices(); stopErr != nil {
				return errors.Join(fmt.Errorf("failed to start %s: %w", name, err), stopErr)
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		sr.started = append(sr.started, name)
	}

	return nil
}

// StopServices stops all started services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.started) - 1; i >= 0; i-- {
		name := sr.started[i]
		sr.Logger.Info().Msgf("Stopping service: %s", name)
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	sr.started = nil

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deps Dependencies) error {
	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (Service, error)
	}{
		{
			name:    "sweeper",
			enabled: true,
			constructor: func() (Service, error) {
				sweeper := services.NewSweepService(
					deps.Tracker,
					config.Tracker.SweepInterval,
					config.Tracker.StaleAfter,
					config.Tracker.EvictAfter,
					deps.Metrics,
					sr.Logger.With().Str("service", "sweeper").Logger(),
				)
				if deps.Settings != nil {
					deps.Settings.OnReload(func(c utils.Config) {
						sweeper.SetThresholds(c.Tracker.StaleAfter, c.Tracker.EvictAfter)
					})
				}
				return sweeper, nil
			},
		},
		{
			name:    "mqtt_ingest",
			enabled: config.Services.MQTTIngest.Enabled,
			constructor: func() (Service, error) {
				if deps.MQTTClient == nil {
					return nil, errors.New("mqtt ingest is enabled but no MQTT client is connected")
				}
				return services.NewMQTTIngestService(
					config.Services.MQTTIngest.Topic,
					config.Services.MQTTIngest.QOS,
					config.Services.MQTTIngest.Workers,
					deps.MQTTClient,
					deps.Tracker,
					deps.Metrics,
					sr.Logger.With().Str("service", "mqtt_ingest").Logger(),
				), nil
			},
		},
		{
			name:    "api",
			enabled: true,
			constructor: func() (Service, error) {
				apiService := services.NewAPIService(
					config.Address(),
					deps.Handler,
					config.API.ReadHeaderTimeout,
					config.API.ShutdownTimeout,
					config.API.EnableH2C,
					sr.Logger.With().Str("service", "api").Logger(),
				)
				if deps.APIShutdown != nil {
					apiService.OnShutdown(deps.APIShutdown)
				}
				return apiService, nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
