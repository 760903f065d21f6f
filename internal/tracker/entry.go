package tracker

import (
	"sync"
	"time"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/models"
	"github.com/benmeehan/irc-conntrack/pkg/heartbeat"
)

// entry is the mutable state of one tracked connection. All fields except id, seq and
// establishedAt are guarded by mu.
type entry struct {
	mu sync.Mutex

	id            string
	seq           uint64
	establishedAt time.Time

	lastHeartbeat time.Time
	lastPingMs    uint64
	latency       time.Duration
	status        constants.ConnectionStatus
}

func newEntry(id string, seq uint64, now time.Time) *entry {
	return &entry{
		id:            id,
		seq:           seq,
		establishedAt: now,
		status:        constants.StatusConnecting,
	}
}

// beat records a heartbeat. It reports false if the entry was removed in the meantime.
func (e *entry) beat(msg heartbeat.Message, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == constants.StatusDisconnected {
		return false
	}
	e.lastHeartbeat = now
	e.lastPingMs = msg.TimestampMs
	e.latency = msg.Latency(now)
	e.status = constants.StatusAlive
	return true
}

// snapshot copies the entry. It reports false if the entry was removed in the meantime.
func (e *entry) snapshot() (models.TrackedConnection, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == constants.StatusDisconnected {
		return models.TrackedConnection{}, false
	}

	conn := models.TrackedConnection{
		ID:            e.id,
		EstablishedAt: e.establishedAt,
		Status:        e.status,
		LastPingMs:    e.lastPingMs,
		LatencyMs:     e.latency.Milliseconds(),
	}
	if !e.lastHeartbeat.IsZero() {
		last := e.lastHeartbeat
		conn.LastHeartbeatAt = &last
	}
	return conn, true
}

// age applies the alive -> stale transition and reports whether the entry is due for
// removal. An entry that goes stale in this call is never due in the same call.
func (e *entry) age(now time.Time, staleAfter, evictAfter time.Duration) (wentStale, due bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == constants.StatusAlive && now.Sub(e.lastHeartbeat) > staleAfter {
		e.status = constants.StatusStale
		return true, false
	}
	return false, e.expiredLocked(now, evictAfter)
}

func (e *entry) expiredLocked(now time.Time, evictAfter time.Duration) bool {
	switch e.status {
	case constants.StatusStale:
		return now.Sub(e.lastHeartbeat) > evictAfter
	case constants.StatusConnecting:
		return now.Sub(e.establishedAt) > evictAfter
	default:
		return false
	}
}

// disconnect marks the entry removed if eligible (when non-nil) accepts it. A nil entry
// is always accepted so corrupt map values can be dropped.
func (e *entry) disconnect(eligible func(*entry) bool) bool {
	if e == nil {
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == constants.StatusDisconnected {
		return false
	}
	if eligible != nil && !eligible(e) {
		return false
	}
	e.status = constants.StatusDisconnected
	return true
}

func (e *entry) currentStatus() constants.ConnectionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}
