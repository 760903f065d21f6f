package constants

import "time"

// ConnectionStatus is the liveness state of a tracked connection.
type ConnectionStatus string

// Connection statuses
const (
	// StatusConnecting indicates the connection is registered but has not sent a heartbeat yet
	StatusConnecting ConnectionStatus = "connecting"
	// StatusAlive indicates a heartbeat arrived within the staleness window
	StatusAlive ConnectionStatus = "alive"
	// StatusStale indicates no heartbeat arrived within the staleness window
	StatusStale ConnectionStatus = "stale"
	// StatusDisconnected is the terminal status of a connection removed from the tracker
	StatusDisconnected ConnectionStatus = "disconnected"
)

// ConnectionStatuses lists every status in lifecycle order.
var ConnectionStatuses = []ConnectionStatus{StatusConnecting, StatusAlive, StatusStale, StatusDisconnected}

// ParseConnectionStatus converts a case-sensitive status name into a ConnectionStatus.
func ParseConnectionStatus(s string) (ConnectionStatus, bool) {
	for _, status := range ConnectionStatuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

const (
	DefaultStaleAfter    = 30 * time.Second
	DefaultEvictAfter    = 60 * time.Second
	DefaultSweepInterval = 5 * time.Second
)
