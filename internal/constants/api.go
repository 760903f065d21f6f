package constants

import "time"

// Error codes returned in the errcode field of API error responses.
const (
	ErrCodeMissingParameter   = "IC_MISSING_PARAM"
	ErrCodeGenericFail        = "IC_FAILURE"
	ErrCodeClientNotFound     = "IC_CLIENT_NOT_FOUND"
	ErrCodeClientConflict     = "IC_CLIENT_CONFLICT"
	ErrCodeConnectionLimit    = "IC_CONNECTION_LIMIT"
	ErrCodeMalformedHeartbeat = "IC_MALFORMED_HEARTBEAT"
	ErrCodeStreamLimit        = "IC_STREAM_LIMIT"
)

const (
	DefaultBindAddress       = "127.0.0.1"
	DefaultBindPort          = 9995
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultMaxStreams        = 5

	// MaxHeartbeatPayload bounds how much of a heartbeat request body is read.
	MaxHeartbeatPayload = 64
)

const (
	// StreamCheckInterval is how often an open heartbeat stream checks that its
	// connection is still tracked.
	StreamCheckInterval = time.Second
	StreamWriteWait     = 5 * time.Second
	StreamCloseGrace    = time.Second

	HealthCollectTimeout = 2 * time.Second
)
