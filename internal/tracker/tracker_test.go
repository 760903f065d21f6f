package tracker

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/pkg/heartbeat"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestTracker() *Tracker {
	return New(0, zerolog.Nop())
}

// TestTracker_EndToEnd walks one connection through register, heartbeat and evict.
func TestTracker_EndToEnd(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Register("nick@server1", t0))

	conn, err := tr.Status("nick@server1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusConnecting, conn.Status)
	assert.Equal(t, t0, conn.EstablishedAt)
	assert.Nil(t, conn.LastHeartbeatAt)

	require.NoError(t, tr.Heartbeat("nick@server1", heartbeat.Now(t0), t0))

	conn, err = tr.Status("nick@server1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusAlive, conn.Status)
	require.NotNil(t, conn.LastHeartbeatAt)
	assert.Equal(t, t0, *conn.LastHeartbeatAt)
	assert.Equal(t, uint64(t0.UnixMilli()), conn.LastPingMs)

	require.NoError(t, tr.Evict("nick@server1"))

	_, err = tr.Status("nick@server1")
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestTracker_Register_Duplicate(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Register("nick@server1", t0))

	err := tr.Register("nick@server1", t0.Add(time.Minute))

	assert.ErrorIs(t, err, ErrAlreadyTracked)
	conn, err := tr.Status("nick@server1")
	require.NoError(t, err)
	assert.Equal(t, t0, conn.EstablishedAt, "original registration must be kept")
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_Register_AfterEvict(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Register("nick@server1", t0))
	require.NoError(t, tr.Evict("nick@server1"))

	require.NoError(t, tr.Register("nick@server1", t0.Add(time.Minute)))

	conn, err := tr.Status("nick@server1")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute), conn.EstablishedAt)
	assert.Equal(t, constants.StatusConnecting, conn.Status)
}

func TestTracker_Register_EmptyID(t *testing.T) {
	tr := newTestTracker()

	assert.ErrorIs(t, tr.Register("", t0), ErrInvalidID)
	assert.Equal(t, 0, tr.Len())
}

func TestTracker_Register_ConnectionLimit(t *testing.T) {
	tr := New(2, zerolog.Nop())
	require.NoError(t, tr.Register("a", t0))
	require.NoError(t, tr.Register("b", t0))

	assert.ErrorIs(t, tr.Register("c", t0), ErrConnectionLimit)
	assert.ErrorIs(t, tr.Register("a", t0), ErrAlreadyTracked, "a conflict wins over the limit")

	require.NoError(t, tr.Evict("a"))
	assert.NoError(t, tr.Register("c", t0))
}

func TestTracker_SetMaxConnections(t *testing.T) {
	tr := New(1, zerolog.Nop())
	require.NoError(t, tr.Register("a", t0))
	require.ErrorIs(t, tr.Register("b", t0), ErrConnectionLimit)

	tr.SetMaxConnections(2)
	require.NoError(t, tr.Register("b", t0))

	tr.SetMaxConnections(1)
	assert.Equal(t, 2, tr.Len(), "lowering the limit keeps tracked connections")
	assert.ErrorIs(t, tr.Register("c", t0), ErrConnectionLimit)

	tr.SetMaxConnections(0)
	assert.NoError(t, tr.Register("c", t0))
}

func TestTracker_Heartbeat_UnknownID(t *testing.T) {
	tr := newTestTracker()

	err := tr.Heartbeat("ghost", heartbeat.Now(t0), t0)

	assert.ErrorIs(t, err, ErrUnknownConnection)
	assert.Equal(t, 0, tr.Len())
	_, err = tr.Status("ghost")
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestTracker_Heartbeat_RecordsLatency(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Register("nick@server1", t0))

	require.NoError(t, tr.Heartbeat("nick@server1", heartbeat.Now(t0), t0.Add(120*time.Millisecond)))

	conn, err := tr.Status("nick@server1")
	require.NoError(t, err)
	assert.Equal(t, int64(120), conn.LatencyMs)
}

func TestTracker_Evict_Unknown(t *testing.T) {
	tr := newTestTracker()

	assert.ErrorIs(t, tr.Evict("ghost"), ErrUnknownConnection)

	require.NoError(t, tr.Register("nick@server1", t0))
	require.NoError(t, tr.Evict("nick@server1"))
	assert.ErrorIs(t, tr.Evict("nick@server1"), ErrUnknownConnection)
}

func TestTracker_List_InsertionOrderAndFilter(t *testing.T) {
	tr := newTestTracker()
	ids := []string{"zed@a", "alice@b", "mallory@c", "bob@d"}
	for i, id := range ids {
		require.NoError(t, tr.Register(id, t0.Add(time.Duration(i)*time.Second)))
	}
	require.NoError(t, tr.Heartbeat("alice@b", heartbeat.Now(t0), t0))
	require.NoError(t, tr.Heartbeat("bob@d", heartbeat.Now(t0), t0))

	all := tr.List()
	require.Len(t, all, 4)
	for i, conn := range all {
		assert.Equal(t, ids[i], conn.ID)
	}

	alive := tr.List(constants.StatusAlive)
	require.Len(t, alive, 2)
	assert.Equal(t, "alice@b", alive[0].ID)
	assert.Equal(t, "bob@d", alive[1].ID)

	assert.Len(t, tr.List(constants.StatusAlive, constants.StatusConnecting), 4)
	assert.NotNil(t, tr.List(constants.StatusStale))
	assert.Empty(t, tr.List(constants.StatusStale))
}

func TestTracker_Sweep_StalenessWindow(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Register("nick@server1", t0))
	require.NoError(t, tr.Heartbeat("nick@server1", heartbeat.Now(t0), t0))

	evicted := tr.Sweep(t0.Add(29*time.Second), 30*time.Second, 60*time.Second)
	assert.Equal(t, 0, evicted)
	conn, err := tr.Status("nick@server1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusAlive, conn.Status)

	evicted = tr.Sweep(t0.Add(31*time.Second), 30*time.Second, 60*time.Second)
	assert.Equal(t, 0, evicted)
	conn, err = tr.Status("nick@server1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusStale, conn.Status)
}

func TestTracker_Sweep_EvictsStale(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Register("nick@server1", t0))
	require.NoError(t, tr.Heartbeat("nick@server1", heartbeat.Now(t0), t0))
	tr.Sweep(t0.Add(31*time.Second), 30*time.Second, 60*time.Second)

	assert.Equal(t, 0, tr.Sweep(t0.Add(59*time.Second), 30*time.Second, 60*time.Second))
	assert.Equal(t, 1, tr.Sweep(t0.Add(61*time.Second), 30*time.Second, 60*time.Second))

	_, err := tr.Status("nick@server1")
	assert.ErrorIs(t, err, ErrUnknownConnection)
	assert.Equal(t, 0, tr.Len())
}

func TestTracker_Sweep_AliveNeverRemovedDirectly(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Register("nick@server1", t0))
	require.NoError(t, tr.Heartbeat("nick@server1", heartbeat.Now(t0), t0))

	evicted := tr.Sweep(t0.Add(time.Hour), 30*time.Second, 60*time.Second)

	assert.Equal(t, 0, evicted)
	conn, err := tr.Status("nick@server1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusStale, conn.Status)
}

func TestTracker_Sweep_StaleRecoversOnHeartbeat(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Register("nick@server1", t0))
	require.NoError(t, tr.Heartbeat("nick@server1", heartbeat.Now(t0), t0))
	tr.Sweep(t0.Add(31*time.Second), 30*time.Second, 60*time.Second)

	require.NoError(t, tr.Heartbeat("nick@server1", heartbeat.Now(t0), t0.Add(40*time.Second)))

	assert.Equal(t, 0, tr.Sweep(t0.Add(61*time.Second), 30*time.Second, 60*time.Second))
	conn, err := tr.Status("nick@server1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusAlive, conn.Status)
}

func TestTracker_Sweep_EvictsSilentConnecting(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Register("quiet@server1", t0))

	assert.Equal(t, 0, tr.Sweep(t0.Add(45*time.Second), 30*time.Second, 60*time.Second))
	conn, err := tr.Status("quiet@server1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusConnecting, conn.Status, "connecting never goes stale")

	assert.Equal(t, 1, tr.Sweep(t0.Add(61*time.Second), 30*time.Second, 60*time.Second))
}

func TestTracker_Sweep_IsolatesCorruptEntries(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Register("good@server1", t0))
	require.NoError(t, tr.Register("stale@server1", t0))
	require.NoError(t, tr.Heartbeat("good@server1", heartbeat.Now(t0), t0.Add(50*time.Second)))

	tr.entries.Set("nil@server1", nil)
	tr.entries.Set("mismatch@server1", newEntry("other@server1", tr.seq.Add(1), t0))
	tr.size.Add(2)

	evicted := tr.Sweep(t0.Add(61*time.Second), 30*time.Second, 60*time.Second)

	assert.Equal(t, 3, evicted, "two corrupt entries and one silent connecting entry")
	assert.False(t, tr.entries.Has("nil@server1"))
	assert.False(t, tr.entries.Has("mismatch@server1"))
	conn, err := tr.Status("good@server1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusAlive, conn.Status)
}

func TestTracker_RemovedEntryRejectsLateOperations(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Register("nick@server1", t0))
	e, ok := tr.entries.Get("nick@server1")
	require.True(t, ok)

	require.NoError(t, tr.Evict("nick@server1"))

	assert.False(t, e.beat(heartbeat.Now(t0), t0), "a heartbeat holding a stale lookup must not resurrect the entry")
	_, ok = e.snapshot()
	assert.False(t, ok)
	assert.Equal(t, constants.StatusDisconnected, e.currentStatus())
}

func TestTracker_Counts(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Register("a", t0))
	require.NoError(t, tr.Register("b", t0))
	require.NoError(t, tr.Register("c", t0))
	require.NoError(t, tr.Heartbeat("b", heartbeat.Now(t0), t0))
	require.NoError(t, tr.Heartbeat("c", heartbeat.Now(t0), t0))
	tr.Sweep(t0.Add(31*time.Second), 30*time.Second, 60*time.Second)
	require.NoError(t, tr.Heartbeat("c", heartbeat.Now(t0), t0.Add(31*time.Second)))

	counts := tr.Counts()

	assert.Equal(t, map[constants.ConnectionStatus]int{
		constants.StatusConnecting: 1,
		constants.StatusAlive:      1,
		constants.StatusStale:      1,
	}, counts)
}

// TestTracker_ConcurrentHeartbeats sends heartbeats to N distinct ids from N goroutines.
func TestTracker_ConcurrentHeartbeats(t *testing.T) {
	const n = 200
	tr := newTestTracker()
	for i := 0; i < n; i++ {
		require.NoError(t, tr.Register(fmt.Sprintf("nick%d@server", i), t0))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, tr.Heartbeat(fmt.Sprintf("nick%d@server", i), heartbeat.Now(t0), t0))
		}(i)
	}
	wg.Wait()

	conns := tr.List()
	require.Len(t, conns, n)
	for _, conn := range conns {
		assert.Equal(t, constants.StatusAlive, conn.Status)
	}
}

// TestTracker_ConcurrentMixedOperations exercises readers, writers and the sweep together.
// It asserts only invariants that hold under any interleaving.
func TestTracker_ConcurrentMixedOperations(t *testing.T) {
	const n = 50
	tr := newTestTracker()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("nick%d@server", i)
		wg.Add(3)
		go func() {
			defer wg.Done()
			if err := tr.Register(id, t0); err != nil {
				assert.ErrorIs(t, err, ErrAlreadyTracked)
			}
			for j := 0; j < 20; j++ {
				if err := tr.Heartbeat(id, heartbeat.Now(t0), t0); err != nil {
					assert.ErrorIs(t, err, ErrUnknownConnection)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if conn, err := tr.Status(id); err == nil {
					assert.Equal(t, id, conn.ID)
					assert.NotEqual(t, constants.StatusDisconnected, conn.Status)
				}
				for _, conn := range tr.List() {
					assert.NotEmpty(t, conn.ID)
				}
			}
		}()
		go func() {
			defer wg.Done()
			tr.Sweep(t0.Add(time.Second), 30*time.Second, 60*time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, n, tr.Len())
	assert.Len(t, tr.List(constants.StatusAlive), n)
}
