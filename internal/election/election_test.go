package election

import (
	"sync"
	"testing"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/config"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/nodestate"
	"github.com/stretchr/testify/require"
)

// fakePeer simulates one peer's reaction to election/coordinator RPCs
// without opening a socket, so the bully algorithm's decision logic can
// be tested directly.
type fakePeer struct {
	id      int
	alive   bool
	mu        sync.Mutex
	leaders   []int
	elections []int
}

func (f *fakePeer) Election(candidateID int, deadline time.Duration) (bool, error) {
	f.mu.Lock()
	f.elections = append(f.elections, candidateID)
	f.mu.Unlock()
	if !f.alive {
		return false, errDown
	}
	return true, nil
}

func (f *fakePeer) Coordinator(leaderID int, deadline time.Duration) error {
	if !f.alive {
		return errDown
	}
	f.mu.Lock()
	f.leaders = append(f.leaders, leaderID)
	f.mu.Unlock()
	return nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errDown = fakeErr("peer down")

func testTiming() config.Timing {
	return config.Timing{
		ElectionDeadline:     10 * time.Millisecond,
		ElectionAnnounceWait: 50 * time.Millisecond,
	}
}

func clusterOf(ids ...int) *config.Cluster {
	nodes := make([]config.Peer, len(ids))
	for i, id := range ids {
		nodes[i] = config.Peer{ID: id, Host: "fake"}
	}
	return &config.Cluster{NumEdges: len(ids), Nodes: nodes}
}

func TestHighestNodeBecomesLeaderWithNoHigherPeers(t *testing.T) {
	cluster := clusterOf(0, 1, 2)
	state := nodestate.New(2, cluster)

	peers := map[int]*fakePeer{0: {id: 0, alive: true}, 1: {id: 1, alive: true}}
	c := New(state, testTiming(), func(peer config.Peer) PeerConn {
		return peers[peer.ID]
	})
	c.RunElection()

	id, ok := state.LeaderID()
	require.True(t, ok)
	require.Equal(t, 2, id)
	for _, p := range peers {
		require.Empty(t, p.elections, "node 2 has no higher peers, yet peer %d got an election request", p.id)
		require.Equal(t, []int{2}, p.leaders, "peer %d should receive coordinator(2)", p.id)
	}
}

func TestLowerNodeWaitsForCoordinatorThenAccepts(t *testing.T) {
	cluster := clusterOf(0, 1, 2)
	state := nodestate.New(0, cluster)

	peer2 := &fakePeer{id: 2, alive: true}
	c := New(state, testTiming(), func(peer config.Peer) PeerConn {
		if peer.ID == 2 {
			return peer2
		}
		return &fakePeer{id: peer.ID, alive: true}
	})

	done := make(chan struct{})
	go func() {
		c.RunElection()
		close(done)
	}()

	// Simulate peer 2 winning and announcing itself as coordinator.
	time.Sleep(5 * time.Millisecond)
	c.HandleCoordinator(2)

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("RunElection did not return after coordinator announcement")
	}

	id, ok := state.LeaderID()
	require.True(t, ok)
	require.Equal(t, 2, id)
}

func TestHandleElectionStartsOwnElectionWhenHigher(t *testing.T) {
	cluster := clusterOf(0, 1, 2)
	state := nodestate.New(2, cluster)

	var once sync.Once
	started := make(chan struct{})
	c := New(state, testTiming(), func(peer config.Peer) PeerConn {
		once.Do(func() { close(started) })
		return &fakePeer{id: peer.ID, alive: false}
	})

	c.HandleElection(0)
	<-started

	require.Eventually(t, func() bool {
		id, ok := state.LeaderID()
		return ok && id == 2
	}, time.Second, time.Millisecond)
}

func TestHandleElectionIgnoredWhenLower(t *testing.T) {
	cluster := clusterOf(0, 1, 2)
	state := nodestate.New(0, cluster)

	dialed := false
	c := New(state, testTiming(), func(peer config.Peer) PeerConn {
		dialed = true
		return &fakePeer{id: peer.ID, alive: true}
	})

	c.HandleElection(2)
	time.Sleep(10 * time.Millisecond)
	require.False(t, dialed, "node 0 must not start its own election for a higher candidate")
}
