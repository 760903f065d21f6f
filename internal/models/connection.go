package models

import (
	"time"

	"github.com/benmeehan/irc-conntrack/internal/constants"
)

// TrackedConnection is a point-in-time snapshot of one IRC session under observation.
type TrackedConnection struct {
	// ID is the opaque identifier of the session, e.g. "nick@irc.example.org".
	ID string `json:"id"`

	// EstablishedAt is the registration time.
	EstablishedAt time.Time `json:"established_at"`

	// LastHeartbeatAt is the receive time of the latest accepted heartbeat, nil until the first one.
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at"`

	// Status is the liveness state at the time of the snapshot.
	Status constants.ConnectionStatus `json:"status"`

	// LastPingMs is the sender timestamp carried by the latest accepted heartbeat.
	LastPingMs uint64 `json:"last_ping_ms"`

	// LatencyMs is the delay between the sender timestamp and LastHeartbeatAt, never negative.
	LatencyMs int64 `json:"latency_ms"`
}

// RegisterResponse is returned when the API generates the connection id.
type RegisterResponse struct {
	ID string `json:"id"`
}
