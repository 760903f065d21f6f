package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/irc-conntrack/internal/api"
	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/metrics"
	"github.com/benmeehan/irc-conntrack/internal/metrics_collectors"
	"github.com/benmeehan/irc-conntrack/internal/service_registry"
	"github.com/benmeehan/irc-conntrack/internal/tracker"
	"github.com/benmeehan/irc-conntrack/internal/utils"
	"github.com/benmeehan/irc-conntrack/pkg/file"
	"github.com/benmeehan/irc-conntrack/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func loadConfig(fileClient file.FileOperations, configPath string) (*utils.Config, error) {
	if configPath == "" {
		return utils.DefaultConfig(), nil
	}
	return utils.LoadConfig(configPath, fileClient)
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fileClient := file.NewFileService()

	config, err := loadConfig(fileClient, configPath)
	if err != nil {
		return err
	}
	if debug {
		config.Logging.Level = zerolog.LevelDebugValue
	}

	logger := newLogger(os.Stdout, config.Logging.Level, config.Logging.Pretty)
	logger.Info().Str("config", configPath).Str("version", version).Msg("Starting conntrack")

	connTracker := tracker.New(config.Tracker.MaxConnections, logger.With().Str("component", "tracker").Logger())

	settings := utils.NewConfigManager(config, configPath, fileClient, logger.With().Str("component", "config").Logger())
	settings.OnReload(func(c utils.Config) {
		connTracker.SetMaxConnections(c.Tracker.MaxConnections)
	})

	var (
		m        *metrics.Metrics
		gatherer prometheus.Gatherer
	)
	if config.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		m = metrics.NewMetrics(registry, config.Metrics.Namespace, connTracker)
		gatherer = registry
	}

	collectors, err := metrics_collectors.NewDefaultRegistry(logger.With().Str("component", "health").Logger())
	if err != nil {
		logger.Warn().Err(err).Msg("Process metrics unavailable, /health reports tracker state only")
	}

	server := api.NewServer(api.Config{
		Tracker:    connTracker,
		Logger:     logger.With().Str("component", "api").Logger(),
		Metrics:    m,
		Gatherer:   gatherer,
		Collectors: collectors,
		Process:    &config.Process,
		Settings:   settings,

		MaxStreams:     config.API.MaxStreams,
		AllowedOrigins: config.API.AllowedOrigins,
	})

	deps := service_registry.Dependencies{
		Tracker:     connTracker,
		Handler:     server.Handler(),
		Metrics:     m,
		Settings:    settings,
		APIShutdown: server.Close,
	}

	if config.Services.MQTTIngest.Enabled {
		// Brokers drop an existing session when another client connects with the same id.
		clientID := config.MQTT.ClientID + "-" + uuid.NewString()
		logger.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

		mqttClient := mqtt.NewMqttService(fileClient, logger.With().Str("component", "mqtt").Logger())
		err := mqttClient.Initialize(mqtt.Options{
			Broker:        config.MQTT.Broker,
			ClientID:      clientID,
			CACertificate: config.MQTT.CACertificate,
			Username:      config.MQTT.Username,
			Password:      config.MQTT.Password,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT connection: %w", err)
		}
		defer mqttClient.Disconnect(constants.DisconnectQuiesce)
		deps.MQTTClient = mqttClient
	}

	serviceRegistry := service_registry.NewServiceRegistry(logger)
	if err := serviceRegistry.RegisterServices(config, deps); err != nil {
		return err
	}
	if err := serviceRegistry.StartServices(); err != nil {
		return err
	}
	logger.Info().Msg("All services started successfully")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("Shutting down gracefully...")
	return serviceRegistry.StopServices()
}
