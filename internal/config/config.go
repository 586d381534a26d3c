// Package config loads the YAML cluster description shared by every
// binary (edge, origin, load balancer, client) so they all agree on
// ports, hosts, and RPC timing without re-deriving them. Modeled on the
// teacher's compose-driven target discovery in cmd/coordinator/config.go,
// generalized from "parse docker-compose.yml for container names" to
// "parse a cluster.yaml for node descriptors".
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Peer is one edge node's address, as seen by every other node (spec §3,
// "cluster view").
type Peer struct {
	ID   int    `yaml:"id"`
	Host string `yaml:"host"`
}

// Timing holds the per-call RPC deadlines (spec §4.2) and the election /
// heartbeat timing constants (spec §4.4 / §4.5).
type Timing struct {
	OriginDeadline       time.Duration `yaml:"origin_deadline"`
	ElectionDeadline     time.Duration `yaml:"election_deadline"`
	ReplicationDeadline  time.Duration `yaml:"replication_deadline"`
	HeartbeatDeadline    time.Duration `yaml:"heartbeat_deadline"`
	NotifyDeadline       time.Duration `yaml:"notify_deadline"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	HeartbeatFailAfter   time.Duration `yaml:"heartbeat_fail_after"`
	ElectionAnnounceWait time.Duration `yaml:"election_announce_wait"`
}

// defaultTiming matches the literal constants in spec §4.2/§4.4/§4.5 and
// the original Python source.
func defaultTiming() Timing {
	return Timing{
		OriginDeadline:       5 * time.Second,
		ElectionDeadline:     2 * time.Second,
		ReplicationDeadline:  4 * time.Second,
		HeartbeatDeadline:    2 * time.Second,
		NotifyDeadline:       3 * time.Second,
		HeartbeatInterval:    2 * time.Second,
		HeartbeatFailAfter:   6 * time.Second,
		ElectionAnnounceWait: 5 * time.Second,
	}
}

func (t *Timing) applyDefaults() {
	d := defaultTiming()
	if t.OriginDeadline == 0 {
		t.OriginDeadline = d.OriginDeadline
	}
	if t.ElectionDeadline == 0 {
		t.ElectionDeadline = d.ElectionDeadline
	}
	if t.ReplicationDeadline == 0 {
		t.ReplicationDeadline = d.ReplicationDeadline
	}
	if t.HeartbeatDeadline == 0 {
		t.HeartbeatDeadline = d.HeartbeatDeadline
	}
	if t.NotifyDeadline == 0 {
		t.NotifyDeadline = d.NotifyDeadline
	}
	if t.HeartbeatInterval == 0 {
		t.HeartbeatInterval = d.HeartbeatInterval
	}
	if t.HeartbeatFailAfter == 0 {
		t.HeartbeatFailAfter = d.HeartbeatFailAfter
	}
	if t.ElectionAnnounceWait == 0 {
		t.ElectionAnnounceWait = d.ElectionAnnounceWait
	}
}

// Origin describes the canonical server's address.
type Origin struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoadBalancer describes the front-door's listen port.
type LoadBalancer struct {
	Port int `yaml:"port"`
}

// Cluster is the complete, validated cluster description every binary
// loads at startup (spec §3.1 expansion).
type Cluster struct {
	BasePort     int          `yaml:"base_port"`
	NumEdges     int          `yaml:"num_edges"`
	Origin       Origin       `yaml:"origin"`
	LoadBalancer LoadBalancer `yaml:"load_balancer"`
	Nodes        []Peer       `yaml:"nodes"`
	Timing       Timing       `yaml:"timing"`
}

type yamlDoc struct {
	Cluster Cluster `yaml:"cluster"`
}

// Load reads and validates a cluster.yaml file.
func Load(path string) (*Cluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c := doc.Cluster
	if c.BasePort == 0 {
		c.BasePort = 8001
	}
	if c.NumEdges == 0 {
		c.NumEdges = len(c.Nodes)
	}
	if c.Origin.Port == 0 {
		c.Origin.Port = 9000
	}
	if c.LoadBalancer.Port == 0 {
		c.LoadBalancer.Port = 8000
	}
	c.Timing.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that the cluster description is internally consistent.
func (c *Cluster) Validate() error {
	if c.NumEdges <= 0 {
		return fmt.Errorf("config: num_edges must be positive")
	}
	if len(c.Nodes) != c.NumEdges {
		return fmt.Errorf("config: expected %d nodes, found %d", c.NumEdges, len(c.Nodes))
	}
	seen := make(map[int]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.ID < 0 || n.ID >= c.NumEdges {
			return fmt.Errorf("config: node id %d out of range [0,%d)", n.ID, c.NumEdges)
		}
		if seen[n.ID] {
			return fmt.Errorf("config: duplicate node id %d", n.ID)
		}
		seen[n.ID] = true
		if n.Host == "" {
			return fmt.Errorf("config: node %d missing host", n.ID)
		}
	}
	if c.Origin.Host == "" {
		return fmt.Errorf("config: origin host required")
	}
	return nil
}

// EdgePort returns the listen port for the given node id.
func (c *Cluster) EdgePort(id int) int {
	return c.BasePort + id
}

// StatusPort returns the ambient status/metrics HTTP port for a node,
// offset well clear of the cluster wire-protocol ports (SPEC_FULL §4.9).
func (c *Cluster) StatusPort(id int) int {
	return c.EdgePort(id) + 1000
}

// PeerHost returns the hostname for the given node id.
func (c *Cluster) PeerHost(id int) (string, error) {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n.Host, nil
		}
	}
	return "", fmt.Errorf("config: unknown node id %d", id)
}

// PeerByID returns the peer descriptor for id, if known.
func (c *Cluster) PeerByID(id int) (Peer, bool) {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Peer{}, false
}

// PeersOf returns every node descriptor other than self.
func (c *Cluster) PeersOf(self int) []Peer {
	out := make([]Peer, 0, len(c.Nodes)-1)
	for _, n := range c.Nodes {
		if n.ID != self {
			out = append(out, n)
		}
	}
	return out
}
