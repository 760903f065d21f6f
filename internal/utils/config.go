package utils

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/models"
	"github.com/benmeehan/irc-conntrack/pkg/file"
)

// RedactedValue replaces secrets in served configuration.
const RedactedValue = "REDACTED"

// Config represents the structure of the configuration file.
type Config struct {
	API struct {
		BindAddress       string        `yaml:"bind_address"`              // Address the Status API listens on
		BindPort          int           `yaml:"bind_port"`                 // Port the Status API listens on
		ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`       // Maximum time to read request headers
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`          // Grace period for in-flight requests on shutdown
		EnableH2C         bool          `yaml:"enable_h2c"`                // Also accept cleartext HTTP/2
		MaxStreams        int           `yaml:"max_streams"`               // Maximum concurrent heartbeat streams
		AllowedOrigins    []string      `yaml:"allowed_origins,omitempty"` // Browser origins allowed to open streams, empty for same-origin only
	} `yaml:"api"`

	Tracker struct {
		StaleAfter     time.Duration `yaml:"stale_after"`     // Silence after which an alive connection becomes stale
		EvictAfter     time.Duration `yaml:"evict_after"`     // Silence after which a stale connection is removed
		SweepInterval  time.Duration `yaml:"sweep_interval"`  // Interval between sweeps
		MaxConnections int           `yaml:"max_connections"` // Maximum tracked connections, 0 for unlimited
	} `yaml:"tracker"`

	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address, e.g. tcp://localhost:1883
		ClientID      string `yaml:"client_id"`      // MQTT client ID prefix
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate, empty for plain TCP
		Username      string `yaml:"username"`       // Optional broker username
		Password      string `yaml:"password"`       // Optional broker password
	} `yaml:"mqtt"`

	Services struct {
		MQTTIngest struct {
			Enabled bool   `yaml:"enabled"` // Enable/disable heartbeat ingestion over MQTT
			Topic   string `yaml:"topic"`   // Topic prefix, heartbeats arrive on <topic>/<connection id>
			QOS     int    `yaml:"qos"`     // MQTT QoS level for the subscription
			Workers int    `yaml:"workers"` // Number of workers decoding heartbeats
		} `yaml:"mqtt_ingest"`
	} `yaml:"services"`

	Metrics struct {
		Enabled   bool   `yaml:"enabled"`   // Expose Prometheus metrics on /metrics
		Namespace string `yaml:"namespace"` // Metric name prefix
	} `yaml:"metrics"`

	Process models.ProcessConfig `yaml:"process"`

	Logging struct {
		Level  string `yaml:"level"`  // zerolog level name
		Pretty bool   `yaml:"pretty"` // Human readable console output instead of JSON
	} `yaml:"logging"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	config := &Config{}
	config.Metrics.Enabled = true
	config.Services.MQTTIngest.QOS = constants.DefaultIngestQOS
	config.Process = models.ProcessConfig{MonitorCPU: true, MonitorMemory: true, MonitorGoroutines: true}
	config.ApplyDefaults()
	return config
}

// LoadConfig loads the YAML configuration from the specified file, fills in defaults
// and validates the result.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()
	if err := fileClient.ReadYamlFile(filename, config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return config, nil
}

// ApplyDefaults fills zero values with their defaults.
func (c *Config) ApplyDefaults() {
	if c.API.BindAddress == "" {
		c.API.BindAddress = constants.DefaultBindAddress
	}
	if c.API.BindPort == 0 {
		c.API.BindPort = constants.DefaultBindPort
	}
	if c.API.ReadHeaderTimeout == 0 {
		c.API.ReadHeaderTimeout = constants.DefaultReadHeaderTimeout
	}
	if c.API.ShutdownTimeout == 0 {
		c.API.ShutdownTimeout = constants.DefaultShutdownTimeout
	}
	if c.API.MaxStreams == 0 {
		c.API.MaxStreams = constants.DefaultMaxStreams
	}
	if c.Tracker.StaleAfter == 0 {
		c.Tracker.StaleAfter = constants.DefaultStaleAfter
	}
	if c.Tracker.EvictAfter == 0 {
		c.Tracker.EvictAfter = constants.DefaultEvictAfter
	}
	if c.Tracker.SweepInterval == 0 {
		c.Tracker.SweepInterval = constants.DefaultSweepInterval
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = constants.DefaultClientID
	}
	if c.Services.MQTTIngest.Topic == "" {
		c.Services.MQTTIngest.Topic = constants.DefaultIngestTopic
	}
	if c.Services.MQTTIngest.Workers == 0 {
		c.Services.MQTTIngest.Workers = constants.DefaultIngestWorkers
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "conntrack"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.API.BindPort < 1 || c.API.BindPort > 65535 {
		errs = append(errs, fmt.Errorf("api.bind_port %d out of range", c.API.BindPort))
	}
	if c.API.MaxStreams < 0 {
		errs = append(errs, errors.New("api.max_streams must not be negative"))
	}
	if c.Tracker.StaleAfter < 0 || c.Tracker.EvictAfter < 0 || c.Tracker.SweepInterval < 0 {
		errs = append(errs, errors.New("tracker durations must be positive"))
	}
	if c.Tracker.EvictAfter <= c.Tracker.StaleAfter {
		errs = append(errs, fmt.Errorf("tracker.evict_after (%s) must be greater than tracker.stale_after (%s)",
			c.Tracker.EvictAfter, c.Tracker.StaleAfter))
	}
	if c.Tracker.MaxConnections < 0 {
		errs = append(errs, errors.New("tracker.max_connections must not be negative"))
	}
	if c.Services.MQTTIngest.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("services.mqtt_ingest requires mqtt.broker"))
	}
	if q := c.Services.MQTTIngest.QOS; q < 0 || q > 2 {
		errs = append(errs, fmt.Errorf("services.mqtt_ingest.qos %d out of range", q))
	}
	if c.Services.MQTTIngest.Workers < 0 {
		errs = append(errs, errors.New("services.mqtt_ingest.workers must not be negative"))
	}
	return errors.Join(errs...)
}

// Address returns the host:port the Status API binds to.
func (c *Config) Address() string {
	return net.JoinHostPort(c.API.BindAddress, strconv.Itoa(c.API.BindPort))
}

// Redacted returns a copy of c with secrets masked, safe to log or serve.
func (c Config) Redacted() Config {
	if c.MQTT.Password != "" {
		c.MQTT.Password = RedactedValue
	}
	c.API.AllowedOrigins = slices.Clone(c.API.AllowedOrigins)
	return c
}
