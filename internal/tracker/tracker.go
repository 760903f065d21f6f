// Package tracker implements the in-memory registry of tracked IRC connections.
//
// Entries live in a sharded concurrent map; each entry carries its own mutex, so
// operations on distinct ids only contend when they hash to the same shard, and only
// for the duration of a map lookup. Locks are always taken shard first, entry second.
//
// Removal (Evict or Sweep) marks the entry object disconnected while holding both its
// shard lock and its own lock. Any operation that looked the entry up before the removal
// observes the marker and reports ErrUnknownConnection, which keeps operations on the
// same id linearizable.
package tracker

import (
	"cmp"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/models"
	"github.com/benmeehan/irc-conntrack/internal/utils"
	"github.com/benmeehan/irc-conntrack/pkg/heartbeat"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// ConnectionTracker is the contract the API and the ingestion paths depend on.
type ConnectionTracker interface {
	Register(id string, now time.Time) error
	Heartbeat(id string, msg heartbeat.Message, now time.Time) error
	Evict(id string) error
	Status(id string) (models.TrackedConnection, error)
	List(filter ...constants.ConnectionStatus) []models.TrackedConnection
	Sweep(now time.Time, staleAfter, evictAfter time.Duration) int
	Counts() map[constants.ConnectionStatus]int
	Len() int
}

// Tracker owns every TrackedConnection. Callers only ever refer to connections by id.
type Tracker struct {
	entries        cmap.ConcurrentMap[string, *entry]
	seq            atomic.Uint64
	size           atomic.Int64
	maxConnections atomic.Int64
	logger         zerolog.Logger
}

// New creates an empty Tracker. A maxConnections of zero or less means unlimited.
func New(maxConnections int, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		entries: cmap.New[*entry](),
		logger:  logger,
	}
	t.maxConnections.Store(int64(maxConnections))
	return t
}

// SetMaxConnections changes the registration limit. Connections already tracked above
// a lowered limit are kept; new registrations fail until the count drops below it.
func (t *Tracker) SetMaxConnections(maxConnections int) {
	t.maxConnections.Store(int64(maxConnections))
	t.logger.Info().Int("max_connections", maxConnections).Msg("Connection limit updated")
}

// Register starts tracking id in the connecting state.
// Registration is not idempotent: a caller that wants to re-register must Evict first.
func (t *Tracker) Register(id string, now time.Time) error {
	if id == "" {
		return ErrInvalidID
	}
	if t.entries.Has(id) {
		return fmt.Errorf("%w: %s", ErrAlreadyTracked, id)
	}
	if !t.reserve() {
		return fmt.Errorf("%w: %d connections", ErrConnectionLimit, t.maxConnections.Load())
	}

	if !t.entries.SetIfAbsent(id, newEntry(id, t.seq.Add(1), now)) {
		t.size.Add(-1)
		return fmt.Errorf("%w: %s", ErrAlreadyTracked, id)
	}

	t.logger.Debug().Str("connection_id", id).Msg("Connection registered")
	return nil
}

// Heartbeat records a heartbeat for id and marks it alive.
// Heartbeats for untracked ids are rejected; they never create an entry.
func (t *Tracker) Heartbeat(id string, msg heartbeat.Message, now time.Time) error {
	e, ok := t.entries.Get(id)
	if !ok || e == nil || !e.beat(msg, now) {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	return nil
}

// Evict stops tracking id.
func (t *Tracker) Evict(id string) error {
	if !t.remove(id, func(e *entry) bool { return e.disconnect(nil) }) {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	t.logger.Debug().Str("connection_id", id).Msg("Connection evicted")
	return nil
}

// Status returns a snapshot of id.
func (t *Tracker) Status(id string) (models.TrackedConnection, error) {
	e, ok := t.entries.Get(id)
	if !ok || e == nil {
		return models.TrackedConnection{}, fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	conn, ok := e.snapshot()
	if !ok {
		return models.TrackedConnection{}, fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	return conn, nil
}

// List returns snapshots of all tracked connections in registration order, restricted
// to the given statuses when any are passed. The result is never nil.
// Entries registered or removed while List runs may or may not be included.
func (t *Tracker) List(filter ...constants.ConnectionStatus) []models.TrackedConnection {
	wanted := utils.NewSet(filter...)

	type ordered struct {
		seq  uint64
		conn models.TrackedConnection
	}
	snapshots := make([]ordered, 0, t.entries.Count())
	for item := range t.entries.IterBuffered() {
		if item.Val == nil {
			continue
		}
		conn, ok := item.Val.snapshot()
		if !ok {
			continue
		}
		if !wanted.Allows(conn.Status) {
			continue
		}
		snapshots = append(snapshots, ordered{seq: item.Val.seq, conn: conn})
	}

	slices.SortFunc(snapshots, func(a, b ordered) int { return cmp.Compare(a.seq, b.seq) })

	result := make([]models.TrackedConnection, len(snapshots))
	for i, s := range snapshots {
		result[i] = s.conn
	}
	return result
}

// Sweep ages every tracked connection: alive connections without a heartbeat for more
// than staleAfter become stale, and stale connections without a heartbeat for more than
// evictAfter are removed, as are connecting ones registered more than evictAfter ago.
// It returns the number of removed connections.
//
// Sweep holds one shard read lock at a time while enumerating and never holds an
// exclusive lock across the pass. Entries added during a sweep may or may not be
// visited. A failure on one entry is logged and does not stop the pass.
func (t *Tracker) Sweep(now time.Time, staleAfter, evictAfter time.Duration) int {
	evicted := 0
	for item := range t.entries.IterBuffered() {
		if t.sweepEntry(item.Key, item.Val, now, staleAfter, evictAfter) {
			evicted++
		}
	}
	return evicted
}

func (t *Tracker) sweepEntry(id string, e *entry, now time.Time, staleAfter, evictAfter time.Duration) (removed bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().Str("connection_id", id).Interface("panic", r).Msg("Sweep failed for connection, skipping it")
			removed = false
		}
	}()

	if e == nil || e.id != id {
		t.logger.Error().Str("connection_id", id).Msg("Inconsistent tracker entry, removing it")
		return t.remove(id, func(cur *entry) bool { return cur == e && cur.disconnect(nil) })
	}

	wentStale, due := e.age(now, staleAfter, evictAfter)
	if wentStale {
		t.logger.Info().Str("connection_id", id).Msg("Connection went stale")
	}
	if !due {
		return false
	}

	// A heartbeat may land between age and remove, so eligibility is checked again
	// under the locks.
	expired := func(e *entry) bool { return e.expiredLocked(now, evictAfter) }
	if !t.remove(id, func(cur *entry) bool { return cur == e && cur.disconnect(expired) }) {
		return false
	}
	t.logger.Info().Str("connection_id", id).Msg("Connection timed out and was removed")
	return true
}

// remove deletes id from the map if match accepts the current entry. match runs under
// the shard lock.
func (t *Tracker) remove(id string, match func(*entry) bool) bool {
	removed := t.entries.RemoveCb(id, func(_ string, e *entry, exists bool) bool {
		return exists && match(e)
	})
	if removed {
		t.size.Add(-1)
	}
	return removed
}

// Counts returns the number of tracked connections per status. Every status that a
// tracked connection can hold is present, with zero when unused.
func (t *Tracker) Counts() map[constants.ConnectionStatus]int {
	counts := map[constants.ConnectionStatus]int{
		constants.StatusConnecting: 0,
		constants.StatusAlive:      0,
		constants.StatusStale:      0,
	}
	for item := range t.entries.IterBuffered() {
		if item.Val == nil {
			continue
		}
		if status := item.Val.currentStatus(); status != constants.StatusDisconnected {
			counts[status]++
		}
	}
	return counts
}

// Len returns the number of tracked connections.
func (t *Tracker) Len() int {
	return t.entries.Count()
}

// reserve claims a slot against maxConnections.
func (t *Tracker) reserve() bool {
	n := t.size.Add(1)
	if limit := t.maxConnections.Load(); limit > 0 && n > limit {
		t.size.Add(-1)
		return false
	}
	return true
}
