package constants

const (
	DefaultIngestTopic   = "conntrack/heartbeat"
	DefaultIngestQOS     = 1
	DefaultIngestWorkers = 4
	DefaultClientID      = "conntrack"

	// DisconnectQuiesce is how long, in milliseconds, the MQTT client waits for in-flight work on disconnect.
	DisconnectQuiesce = 250
)

// IngestQueueSize is the number of received heartbeats that may wait for a worker, per worker.
const IngestQueueSize = 64
