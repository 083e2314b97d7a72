package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(id string, joinedAt time.Time) *Member {
	return &Member{ID: id, UserID: id, Username: id, JoinedAt: joinedAt}
}

func item(uuid string) *QueueItem {
	return &QueueItem{UUID: uuid, Climb: Climb{UUID: "climb-" + uuid, Name: "Climb " + uuid}}
}

func TestJoinCreatesRoomAndAssignsLeader(t *testing.T) {
	r := NewRegistry()
	base := time.Now()

	res := r.Join("S1", "/kilter/1/2/3/40/list", member("alice", base))
	require.True(t, res.IsLeader)
	assert.Equal(t, "alice", res.Snapshot.LeaderID)
	assert.Len(t, res.Snapshot.Users, 1)

	res2 := r.Join("S1", "", member("bob", base.Add(time.Second)))
	assert.False(t, res2.IsLeader)
	assert.Equal(t, "alice", res2.Snapshot.LeaderID)
	assert.Len(t, res2.Snapshot.Users, 2)
}

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	r.Join("S1", "", member("alice", now))
	res := r.Join("S1", "", member("alice", now.Add(time.Hour)))

	assert.Len(t, res.Snapshot.Users, 1)
	assert.True(t, res.IsLeader)
}

func TestLeaveTransfersLeadershipToEarliestJoined(t *testing.T) {
	base := time.Now()

	// Succession must be reproducible across runs with the same join order.
	for i := 0; i < 20; i++ {
		r := NewRegistry()
		r.Join("S1", "", member("alice", base))
		r.Join("S1", "", member("carol", base.Add(2*time.Second)))
		r.Join("S1", "", member("bob", base.Add(time.Second)))

		res, ok := r.Leave("S1", "alice")
		require.True(t, ok)
		assert.Equal(t, "bob", res.NewLeaderID)
		assert.Equal(t, "bob", res.Snapshot.LeaderID)
	}
}

func TestLeaveTieBreaksOnID(t *testing.T) {
	r := NewRegistry()
	base := time.Now()
	r.Join("S1", "", member("zed", base))
	r.Join("S1", "", member("bob", base.Add(time.Second)))
	r.Join("S1", "", member("ann", base.Add(time.Second)))

	res, ok := r.Leave("S1", "zed")
	require.True(t, ok)
	assert.Equal(t, "ann", res.NewLeaderID)
}

func TestLeaderIsAlwaysACurrentMember(t *testing.T) {
	r := NewRegistry()
	base := time.Now()
	r.Join("S1", "", member("alice", base))
	r.Join("S1", "", member("bob", base.Add(time.Second)))

	for _, id := range []string{"alice", "bob"} {
		r.Leave("S1", id)
		snap, err := r.Snapshot("S1")
		require.NoError(t, err)
		if snap.LeaderID == "" {
			continue
		}
		found := false
		for _, u := range snap.Users {
			if u.ID == snap.LeaderID {
				found = true
			}
		}
		assert.True(t, found, "leader %q is not a member", snap.LeaderID)
	}
}

func TestLeaveLastMemberKeepsRoomForSweeper(t *testing.T) {
	r := NewRegistry()
	r.Join("S1", "", member("alice", time.Now()))

	res, ok := r.Leave("S1", "alice")
	require.True(t, ok)
	assert.True(t, res.Empty)
	assert.Empty(t, res.Snapshot.LeaderID)
	assert.True(t, r.Has("S1"), "empty room should wait for the sweeper")
}

func TestLeaveUnknownClient(t *testing.T) {
	r := NewRegistry()
	r.Join("S1", "", member("alice", time.Now()))

	_, ok := r.Leave("S1", "ghost")
	assert.False(t, ok)
	_, ok = r.Leave("nope", "alice")
	assert.False(t, ok)
}

func TestMutateQueueAppendRemove(t *testing.T) {
	r := NewRegistry()
	r.Join("S1", "", member("alice", time.Now()))

	snap, err := r.MutateQueue("S1", QueueOp{Kind: OpAppend, Item: item("q1")})
	require.NoError(t, err)
	snap, err = r.MutateQueue("S1", QueueOp{Kind: OpAppend, Item: item("q2")})
	require.NoError(t, err)
	require.Len(t, snap.Queue, 2)

	snap, err = r.MutateQueue("S1", QueueOp{Kind: OpRemove, ItemUUID: "q1"})
	require.NoError(t, err)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, "q2", snap.Queue[0].UUID)
}

func TestMutateQueueReorder(t *testing.T) {
	r := NewRegistry()
	r.Join("S1", "", member("alice", time.Now()))
	for _, id := range []string{"q1", "q2", "q3"} {
		_, err := r.MutateQueue("S1", QueueOp{Kind: OpAppend, Item: item(id)})
		require.NoError(t, err)
	}

	snap, err := r.MutateQueue("S1", QueueOp{Kind: OpReorder, ItemUUID: "q3", ToIndex: 0})
	require.NoError(t, err)
	assert.Equal(t, "q3", snap.Queue[0].UUID)
	assert.Equal(t, "q1", snap.Queue[1].UUID)

	// Out-of-range target clamps to the end.
	snap, err = r.MutateQueue("S1", QueueOp{Kind: OpReorder, ItemUUID: "q3", ToIndex: 99})
	require.NoError(t, err)
	assert.Equal(t, "q3", snap.Queue[2].UUID)

	// Unknown item leaves the queue untouched.
	snap, err = r.MutateQueue("S1", QueueOp{Kind: OpReorder, ItemUUID: "ghost", ToIndex: 0})
	require.NoError(t, err)
	assert.Len(t, snap.Queue, 3)
}

func TestMutateQueueTickAppendOnly(t *testing.T) {
	r := NewRegistry()
	r.Join("S1", "", member("alice", time.Now()))
	_, err := r.MutateQueue("S1", QueueOp{Kind: OpAppend, Item: item("q1")})
	require.NoError(t, err)

	snap, err := r.MutateQueue("S1", QueueOp{Kind: OpTick, ItemUUID: "q1", UserID: "u1"})
	require.NoError(t, err)
	snap, err = r.MutateQueue("S1", QueueOp{Kind: OpTick, ItemUUID: "q1", UserID: "u2"})
	require.NoError(t, err)
	snap, err = r.MutateQueue("S1", QueueOp{Kind: OpTick, ItemUUID: "q1", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, snap.Queue[0].TickedBy)
}

func TestMutateQueueSetCurrentAndClearOnRemove(t *testing.T) {
	r := NewRegistry()
	r.Join("S1", "", member("alice", time.Now()))
	_, err := r.MutateQueue("S1", QueueOp{Kind: OpAppend, Item: item("q1")})
	require.NoError(t, err)

	snap, err := r.MutateQueue("S1", QueueOp{Kind: OpSetCurrent, ItemUUID: "q1"})
	require.NoError(t, err)
	assert.Equal(t, "q1", snap.CurrentClimbUUID)

	snap, err = r.MutateQueue("S1", QueueOp{Kind: OpRemove, ItemUUID: "q1"})
	require.NoError(t, err)
	assert.Empty(t, snap.CurrentClimbUUID)
}

func TestMutateQueueRoomNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.MutateQueue("nope", QueueOp{Kind: OpAppend, Item: item("q1")})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMutateQueueInvalidOp(t *testing.T) {
	r := NewRegistry()
	r.Join("S1", "", member("alice", time.Now()))

	_, err := r.MutateQueue("S1", QueueOp{Kind: OpAppend})
	assert.ErrorIs(t, err, ErrInvalidQueueOp)
	_, err = r.MutateQueue("S1", QueueOp{Kind: "explode"})
	assert.ErrorIs(t, err, ErrInvalidQueueOp)
}

func TestTransferLeader(t *testing.T) {
	r := NewRegistry()
	base := time.Now()
	r.Join("S1", "", member("alice", base))
	r.Join("S1", "", member("bob", base.Add(time.Second)))

	_, err := r.TransferLeader("S1", "bob", "alice")
	assert.ErrorIs(t, err, ErrNotLeader)

	_, err = r.TransferLeader("S1", "alice", "ghost")
	assert.ErrorIs(t, err, ErrClientNotInRoom)

	_, err = r.TransferLeader("nope", "alice", "bob")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	snap, err := r.TransferLeader("S1", "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", snap.LeaderID)
}

func TestSetUsername(t *testing.T) {
	r := NewRegistry()
	r.Join("S1", "", member("alice", time.Now()))

	snap, err := r.SetUsername("S1", "alice", "Alice Prime")
	require.NoError(t, err)
	assert.Equal(t, "Alice Prime", snap.Users[0].Username)

	_, err = r.SetUsername("S1", "ghost", "x")
	assert.ErrorIs(t, err, ErrClientNotInRoom)
}

func TestSnapshotRoomNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Snapshot("nope")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestActiveSession(t *testing.T) {
	r := NewRegistry()

	_, _, ok := r.ActiveSession()
	assert.False(t, ok)

	r.Join("S1", "/tension/4/5/6/30/list", member("alice", time.Now()))
	id, boardPath, ok := r.ActiveSession()
	require.True(t, ok)
	assert.Equal(t, "S1", id)
	assert.Equal(t, "/tension/4/5/6/30/list", boardPath)

	r.Leave("S1", "alice")
	_, _, ok = r.ActiveSession()
	assert.False(t, ok, "memberless session is not joinable")
}

func TestSweepReclaimsOnlyIdleEmptyRooms(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	r.Join("S1", "", member("bob", now))
	r.Leave("S1", "bob")

	r.Join("S2", "", member("carol", now))

	// Idle for 30s with a 60s threshold: nothing happens.
	removed := r.Sweep(now.Add(30*time.Second), time.Minute)
	assert.Empty(t, removed)
	assert.True(t, r.Has("S1"))

	// Past the threshold the empty room goes; the occupied one never does.
	removed = r.Sweep(now.Add(70*time.Second), time.Minute)
	assert.Equal(t, []string{"S1"}, removed)
	assert.False(t, r.Has("S1"))
	assert.True(t, r.Has("S2"))

	removed = r.Sweep(now.Add(1000*time.Hour), time.Minute)
	assert.Empty(t, removed)
	assert.True(t, r.Has("S2"), "occupied room is never reclaimed")
}

func TestRejoinAfterSweepStartsFresh(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	r.Join("S1", "", member("bob", now))
	_, err := r.MutateQueue("S1", QueueOp{Kind: OpAppend, Item: item("q1")})
	require.NoError(t, err)
	r.Leave("S1", "bob")
	r.Sweep(now.Add(2*time.Hour), time.Minute)

	res := r.Join("S1", "", member("bob", now.Add(3*time.Hour)))
	assert.Empty(t, res.Snapshot.Queue, "no memory of the reaped queue")
	assert.True(t, res.IsLeader)
}

func TestConcurrentMutationsConverge(t *testing.T) {
	r := NewRegistry()
	r.Join("S1", "", member("alice", time.Now()))

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := r.MutateQueue("S1", QueueOp{Kind: OpAppend, Item: item(fmt.Sprintf("q%02d", i))})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := r.Snapshot("S1")
	require.NoError(t, err)
	assert.Len(t, snap.Queue, n)
}
