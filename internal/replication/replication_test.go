package replication

import (
	"testing"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/cachestore"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/config"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/nodestate"
	"github.com/stretchr/testify/require"
)

type fakeReplicator struct {
	replicated []int64
	notified   []int64
	fail       bool
}

func (f *fakeReplicator) Replicate(imageID int64, leaderHost string, leaderPort int, deadline time.Duration) error {
	if f.fail {
		return errFixture
	}
	f.replicated = append(f.replicated, imageID)
	return nil
}

func (f *fakeReplicator) NotifyCached(imageID int64, deadline time.Duration) error {
	if f.fail {
		return errFixture
	}
	f.notified = append(f.notified, imageID)
	return nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errFixture = fakeErr("fixture failure")

func cluster3() *config.Cluster {
	return &config.Cluster{NumEdges: 3, Nodes: []config.Peer{
		{ID: 0, Host: "a"}, {ID: 1, Host: "b"}, {ID: 2, Host: "c"},
	}}
}

func TestFanOutReachesEveryPeer(t *testing.T) {
	state := nodestate.New(2, cluster3())
	reps := map[int]*fakeReplicator{0: {}, 1: {}}

	m := New(state, config.Timing{ReplicationDeadline: time.Second}, func(peer config.Peer) Replicator {
		return reps[peer.ID]
	}, func() {})

	m.FanOutToPeers(5, "edge-2", 8003)

	require.Equal(t, []int64{5}, reps[0].replicated)
	require.Equal(t, []int64{5}, reps[1].replicated)
}

func TestNotifyLeaderCachedTriggersElectionWhenNoLeader(t *testing.T) {
	state := nodestate.New(0, cluster3())
	triggered := make(chan struct{}, 1)

	m := New(state, config.Timing{NotifyDeadline: time.Second}, func(peer config.Peer) Replicator {
		t.Fatal("should not dial when leader is unknown")
		return nil
	}, func() { triggered <- struct{}{} })

	m.NotifyLeaderCached(5)

	select {
	case <-triggered:
	case <-time.After(time.Second):
		t.Fatal("expected election to be triggered")
	}
}

func TestNotifyLeaderCachedTriggersElectionOnFailure(t *testing.T) {
	state := nodestate.New(0, cluster3())
	state.SetLeader(2)
	triggered := make(chan struct{}, 1)

	m := New(state, config.Timing{NotifyDeadline: time.Second}, func(peer config.Peer) Replicator {
		return &fakeReplicator{fail: true}
	}, func() { triggered <- struct{}{} })

	m.NotifyLeaderCached(5)

	select {
	case <-triggered:
	case <-time.After(time.Second):
		t.Fatal("expected election to be triggered after notify failure")
	}
}

func TestHandleNotifyCachedOnlyFansOutWhenLeader(t *testing.T) {
	state := nodestate.New(0, cluster3())
	// not leader
	reps := map[int]*fakeReplicator{1: {}, 2: {}}
	m := New(state, config.Timing{ReplicationDeadline: time.Second}, func(peer config.Peer) Replicator {
		return reps[peer.ID]
	}, func() {})

	m.HandleNotifyCached(9, "edge-0", 8001)
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, reps[1].replicated)
	require.Empty(t, reps[2].replicated)

	state.SetLeader(0)
	m.HandleNotifyCached(9, "edge-0", 8001)
	require.Eventually(t, func() bool {
		return len(reps[1].replicated) == 1 && len(reps[2].replicated) == 1
	}, time.Second, time.Millisecond)
}

func TestHandleReplicatePullsAndStores(t *testing.T) {
	store, err := cachestore.New(t.TempDir())
	require.NoError(t, err)

	err = HandleReplicate(store, 5, func() ([]byte, error) {
		return []byte("leader-bytes"), nil
	})
	require.NoError(t, err)

	data, ok, err := store.Get(5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("leader-bytes"), data)
}
