package state

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	net.Conn
	remote net.Addr
}

func (f fakeConn) RemoteAddr() net.Addr { return f.remote }

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

func TestActiveConnectionsMatchesActiveClientRecords(t *testing.T) {
	st := New(LevelInfo)

	var refs []ClientRef
	for i := 0; i < 10; i++ {
		ref, err := st.Clients.Admit(fakeConn{remote: fakeAddr("10.0.0.1:5555")})
		require.NoError(t, err)
		st.Stats.ConnectionOpened()
		refs = append(refs, ref)
	}
	require.Equal(t, 10, st.Clients.ActiveCount())
	require.EqualValues(t, 10, st.Stats.Snapshot().ActiveConnections)

	for _, ref := range refs[:4] {
		st.Clients.Release(ref)
		st.Stats.ConnectionClosed()
	}
	require.Equal(t, 6, st.Clients.ActiveCount())
	require.EqualValues(t, 6, st.Stats.Snapshot().ActiveConnections)
}

func TestClientRefGoesStaleAfterSlotRecycled(t *testing.T) {
	st := New(LevelInfo)
	ref, err := st.Clients.Admit(fakeConn{remote: fakeAddr("10.0.0.2:1")})
	require.NoError(t, err)

	st.Clients.Release(ref)
	_, ok := st.Clients.Lookup(ref)
	require.False(t, ok)

	newRef, err := st.Clients.Admit(fakeConn{remote: fakeAddr("10.0.0.3:1")})
	require.NoError(t, err)
	require.Equal(t, ref.Slot, newRef.Slot)
	require.NotEqual(t, ref.Generation, newRef.Generation)

	_, ok = st.Clients.Lookup(ref)
	require.False(t, ok, "stale ref must never resolve to the recycled slot's new occupant")
}

func TestClientRegistryRejectsOverCapacity(t *testing.T) {
	st := New(LevelInfo)
	for i := 0; i < ClientCapacity; i++ {
		_, err := st.Clients.Admit(fakeConn{remote: fakeAddr("10.0.0.4:1")})
		require.NoError(t, err)
	}
	_, err := st.Clients.Admit(fakeConn{remote: fakeAddr("10.0.0.5:1")})
	require.ErrorIs(t, err, ErrResourceExhausted)
}

func TestJobStatusTransitionsAreMonotonicAndVerdictStableOnceTerminal(t *testing.T) {
	st := New(LevelInfo)
	job, err := st.Jobs.Enqueue(ClientRef{}, false, "a.bin", "/tmp/a.bin", 3, "")
	require.NoError(t, err)
	require.Equal(t, JobPending, job.Status)

	claimed, ok := st.Jobs.ClaimOldestPending()
	require.True(t, ok)
	require.Equal(t, JobProcessing, claimed.Status)

	require.True(t, st.Jobs.Complete(job.ID, "OK", false))
	got, _ := st.Jobs.Get(job.ID)
	require.Equal(t, JobCompleted, got.Status)
	require.Equal(t, "OK", got.Verdict)

	// Completing an already-terminal job is a no-op; verdict stays stable.
	require.False(t, st.Jobs.Complete(job.ID, "changed", true))
	got2, _ := st.Jobs.Get(job.ID)
	require.Equal(t, "OK", got2.Verdict)
	require.Equal(t, JobCompleted, got2.Status)
}

func TestJobRegistryClaimsOldestPendingFirst(t *testing.T) {
	st := New(LevelInfo)
	first, err := st.Jobs.Enqueue(ClientRef{}, false, "a", "/tmp/a", 1, "")
	require.NoError(t, err)
	second, err := st.Jobs.Enqueue(ClientRef{}, false, "b", "/tmp/b", 1, "")
	require.NoError(t, err)

	claimed, ok := st.Jobs.ClaimOldestPending()
	require.True(t, ok)
	require.Equal(t, first.ID, claimed.ID)

	claimed2, ok := st.Jobs.ClaimOldestPending()
	require.True(t, ok)
	require.Equal(t, second.ID, claimed2.ID)

	_, ok = st.Jobs.ClaimOldestPending()
	require.False(t, ok)
}

func TestJobRegistryRejectsOverCapacity(t *testing.T) {
	st := New(LevelInfo)
	for i := 0; i < JobCapacity; i++ {
		_, err := st.Jobs.Enqueue(ClientRef{}, false, "f", "/tmp/f", 1, "")
		require.NoError(t, err)
	}
	_, err := st.Jobs.Enqueue(ClientRef{}, false, "f", "/tmp/f", 1, "")
	require.ErrorIs(t, err, ErrResourceExhausted)
}

func TestStatsTotalScansEqualsCleanPlusInfectedPlusErrorsOnceTerminal(t *testing.T) {
	st := New(LevelInfo)
	st.Stats.ScanCompleted(false, false)
	st.Stats.ScanCompleted(true, false)
	st.Stats.ScanCompleted(false, true)

	snap := st.Stats.Snapshot()
	require.EqualValues(t, 3, snap.TotalScans)
	require.Equal(t, snap.TotalScans, snap.CleanFiles+snap.InfectedFiles+snap.Errors)
}

func TestShutdownFlagIsMonotonic(t *testing.T) {
	f := &ShutdownFlag{}
	require.False(t, f.IsSet())
	f.Set()
	require.True(t, f.IsSet())
	f.Set()
	require.True(t, f.IsSet())
}

func TestSignalJobNeverBlocksWhenFull(t *testing.T) {
	st := New(LevelInfo)
	for i := 0; i < JobCapacity+10; i++ {
		st.SignalJob()
	}
	require.LessOrEqual(t, len(st.JobSignal), JobCapacity)
}
