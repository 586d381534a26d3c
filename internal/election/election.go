// Package election implements the bully leader election algorithm (spec
// §4.4): candidate/follower/leader transitions, concurrent elections that
// converge on the highest live id, and the T_announce wait-then-retry
// loop. Reworked from the teacher's internal/election/bully.go — which
// runs the same algorithm over raw ELECTION/OK/LEADER text messages on a
// dedicated port — onto the shared framed RPC protocol (internal/
// peerclient) and shared node state (internal/nodestate), per spec §9's
// "small shared node state object" design note.
package election

import (
	"log"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/config"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/nodestate"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/peerclient"
)

// PeerConn is the subset of *peerclient.Client this package needs,
// indirected so tests can substitute fakes without opening real sockets.
type PeerConn interface {
	Election(candidateID int, deadline time.Duration) (bool, error)
	Coordinator(leaderID int, deadline time.Duration) error
}

// PeerDialer returns a client for a given peer.
type PeerDialer func(peer config.Peer) PeerConn

// Coordinator runs bully election for one node. It only ever writes
// leader state through its *nodestate.State, never holding its own copy.
type Coordinator struct {
	state  *nodestate.State
	timing config.Timing
	dial   PeerDialer

	// OnBecomeLeader is invoked (async, off the election goroutine) the
	// instant this node wins an election. Wired by cmd/edge to kick off
	// nothing by itself — replication is purely reactive to cache fills
	// and notify_cached (spec §4.7) — but is useful for logging/metrics.
	OnBecomeLeader func()
}

// New builds a Coordinator for the given node state.
func New(state *nodestate.State, timing config.Timing, dial PeerDialer) *Coordinator {
	return &Coordinator{state: state, timing: timing, dial: dial}
}

// DialPeer is the production PeerDialer: one peerclient per peer, talking
// to its cluster wire-protocol port.
func DialPeer(cluster *config.Cluster) PeerDialer {
	return func(peer config.Peer) PeerConn {
		return peerclient.New(peer.Host, cluster.EdgePort(peer.ID))
	}
}

// Start kicks off the initial election at boot (spec §4.4: "Boot ->
// Candidate, run election").
func (c *Coordinator) Start() {
	go c.RunElection()
}

// RunElection is the candidate phase of the bully algorithm: contact
// every peer with a higher id; if none replies, become leader; if at
// least one replies, wait up to T_announce for a coordinator message and
// restart the election if none arrives (spec §4.4).
func (c *Coordinator) RunElection() {
	log.Printf("edge %d: starting election", c.state.ID)
	c.state.ClearLeader()

	higher := higherPeers(c.state.Peers, c.state.ID)
	gotAck := false
	for _, peer := range higher {
		client := c.dial(peer)
		ok, err := client.Election(c.state.ID, c.timing.ElectionDeadline)
		if err != nil {
			continue
		}
		if ok {
			gotAck = true
		}
	}

	if !gotAck {
		c.becomeLeader()
		return
	}

	log.Printf("edge %d: higher peer acknowledged, waiting for coordinator announcement", c.state.ID)
	deadline := time.Now().Add(c.timing.ElectionAnnounceWait)
	for {
		if _, ok := c.state.LeaderID(); ok {
			return
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if remaining > 100*time.Millisecond {
			remaining = 100 * time.Millisecond
		}
		time.Sleep(remaining)
	}
	log.Printf("edge %d: no coordinator announced in time, restarting election", c.state.ID)
	c.RunElection()
}

// becomeLeader declares this node the leader and broadcasts coordinator
// to every peer (spec §4.4: "no higher peer responds... transition to
// Leader, broadcast coordinator(self_id)").
func (c *Coordinator) becomeLeader() {
	c.state.SetLeader(c.state.ID)
	log.Printf("edge %d: no higher peer responded, declaring self leader", c.state.ID)
	for _, peer := range c.state.Peers {
		client := c.dial(peer)
		if err := client.Coordinator(c.state.ID, c.timing.ElectionDeadline); err != nil {
			log.Printf("edge %d: coordinator announcement to %d failed: %v", c.state.ID, peer.ID, err)
		}
	}
	if c.OnBecomeLeader != nil {
		go c.OnBecomeLeader()
	}
}

// HandleElection processes an incoming election(candidateID) request,
// as the Dispatcher would route it. It returns immediately after deciding
// whether to start this node's own election (spec §4.4: "If self_id >
// cand, start its own election concurrently"); the acknowledgement
// segment itself is written by the Dispatcher, not here.
func (c *Coordinator) HandleElection(candidateID int) {
	if c.state.ID > candidateID {
		go c.RunElection()
	}
}

// HandleCoordinator processes an incoming coordinator(leaderID)
// announcement (spec §4.4: "set leader_id = L").
func (c *Coordinator) HandleCoordinator(leaderID int) {
	c.state.SetLeader(leaderID)
	log.Printf("edge %d: new coordinator is %d", c.state.ID, leaderID)
}

func higherPeers(peers []config.Peer, selfID int) []config.Peer {
	out := make([]config.Peer, 0, len(peers))
	for _, p := range peers {
		if p.ID > selfID {
			out = append(out, p)
		}
	}
	return out
}
