// Package nodestate holds the small shared object described in spec §9:
// immutable node configuration plus the mutex-guarded leader fields every
// subsystem (dispatcher, detector, election, replication) needs to read or
// update. Subsystems receive a pointer to this and never own each other.
package nodestate

import (
	"sync"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/config"
)

// State is the per-node shared object. The immutable fields (ID, Cluster,
// Peers) are safe to read without locking; LeaderID and LastLeaderContact
// must only be touched through the accessor methods below (spec §5,
// "one mutex per node; all reads and writes go through it").
type State struct {
	ID      int
	Cluster *config.Cluster
	Peers   []config.Peer

	mu                 sync.RWMutex
	leaderID           int // -1 means none
	lastLeaderContact  time.Time
	clock              uint64
}

// New builds node state for the given node id.
func New(id int, cluster *config.Cluster) *State {
	return &State{
		ID:                id,
		Cluster:           cluster,
		Peers:             cluster.PeersOf(id),
		leaderID:          -1,
		lastLeaderContact: time.Now(),
	}
}

// LeaderID returns the current known leader id, or (-1, false) if none.
func (s *State) LeaderID() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.leaderID < 0 {
		return -1, false
	}
	return s.leaderID, true
}

// SetLeader records a new leader id, atomically alongside a heartbeat
// refresh so a node never observes a stale last-contact time for a
// leader it just learned about.
func (s *State) SetLeader(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaderID = id
	s.lastLeaderContact = time.Now()
}

// ClearLeader resets the leader field to none, e.g. when a new election
// is about to start (spec §4.4 "restart the election").
func (s *State) ClearLeader() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaderID = -1
}

// IsLeader reports whether this node currently believes itself to be the
// leader.
func (s *State) IsLeader() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leaderID == s.ID
}

// TouchLeaderContact refreshes the last-successful-contact timestamp,
// called on heartbeat ack (spec §4.5).
func (s *State) TouchLeaderContact() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLeaderContact = time.Now()
}

// SinceLastLeaderContact reports how long it has been since the leader
// was last confirmed alive.
func (s *State) SinceLastLeaderContact() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastLeaderContact)
}

// NextClock returns a monotonically increasing counter used only as the
// informational response clock header (spec §9: "not load-bearing").
func (s *State) NextClock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock++
	return s.clock
}

// PeerByID returns the peer descriptor for id, if known.
func (s *State) PeerByID(id int) (config.Peer, bool) {
	for _, p := range s.Peers {
		if p.ID == id {
			return p, true
		}
	}
	return config.Peer{}, false
}
