// Package detector implements the failure detector (spec §4.5): every
// T_beat, a follower heartbeats the believed leader; if T_fail elapses
// without a successful contact, it starts a new election. Grounded on the
// teacher's internal/monitor/checker.go dial-with-deadline probe shape,
// generalized from a bespoke PING/PONG text protocol to the cluster's
// heartbeat RPC, and on original_source/edge_server/server.py's
// heartbeat_monitor loop for the exact timing behavior.
package detector

import (
	"log"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/config"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/nodestate"
)

// Pinger is the subset of peerclient.Client this package needs.
type Pinger interface {
	Heartbeat(deadline time.Duration) error
}

// PeerDialer returns a Pinger targeting the given peer.
type PeerDialer func(peerID int) Pinger

// ElectionStarter triggers a new election; satisfied by
// (*election.Coordinator).RunElection.
type ElectionStarter func()

// Detector runs the heartbeat loop for one node.
type Detector struct {
	state   *nodestate.State
	timing  config.Timing
	dial    PeerDialer
	startElection ElectionStarter

	stop chan struct{}
}

// New builds a Detector for the given node state.
func New(state *nodestate.State, timing config.Timing, dial PeerDialer, startElection ElectionStarter) *Detector {
	return &Detector{state: state, timing: timing, dial: dial, startElection: startElection, stop: make(chan struct{})}
}

// Stop ends the heartbeat loop cooperatively (spec §5: "an alive flag is
// checked by every long-running loop").
func (d *Detector) Stop() {
	close(d.stop)
}

// Run is the heartbeat loop: ticks every T_beat, heartbeats the believed
// leader if one is known and isn't self, and starts a new election once
// T_fail has elapsed since the last successful contact (spec §4.5).
func (d *Detector) Run() {
	ticker := time.NewTicker(d.timing.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Detector) tick() {
	leaderID, ok := d.state.LeaderID()
	if !ok {
		return
	}
	if leaderID == d.state.ID {
		// Trivially alive (spec §4.5: "a node that believes it is the
		// leader refreshes last_leader_contact locally on every tick").
		d.state.TouchLeaderContact()
		return
	}

	pinger := d.dial(leaderID)
	if err := pinger.Heartbeat(d.timing.HeartbeatDeadline); err != nil {
		if d.state.SinceLastLeaderContact() > d.timing.HeartbeatFailAfter {
			log.Printf("edge %d: leader %d heartbeat lost, starting election", d.state.ID, leaderID)
			go d.startElection()
		}
		return
	}
	d.state.TouchLeaderContact()
}
