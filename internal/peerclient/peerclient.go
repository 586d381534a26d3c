// Package peerclient is a thin synchronous RPC client edges use to talk
// to each other: election, coordinator, heartbeat, replicate, and
// notify_cached (spec §4.2). Each call dials fresh, writes one request,
// reads one response, and closes — grounded on
// original_source/edge_server/server.py's peer_rpc_call and run_election.
package peerclient

import (
	"fmt"
	"net"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/protocol"
)

// Client calls a single peer edge. Host/Port identify that peer; the
// deadline is supplied per-call by the caller since each function has its
// own default (2s election, 4s replication, 2s heartbeat, 3s notify —
// spec §4.2).
type Client struct {
	Host string
	Port int
}

// New targets a peer at host:port.
func New(host string, port int) *Client {
	return &Client{Host: host, Port: port}
}

func (c *Client) dial(deadline time.Duration) (net.Conn, error) {
	addr := net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
	conn, err := net.DialTimeout("tcp", addr, deadline)
	if err != nil {
		return nil, fmt.Errorf("peerclient: connect to %s: %w", addr, protocol.WrapTimeout(err))
	}
	if err := conn.SetDeadline(time.Now().Add(deadline)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("peerclient: set deadline: %w", err)
	}
	return conn, nil
}

// Election sends election(candidateID) and reports whether an
// acknowledgement was received (spec §4.4: "at least one reply arrives").
// The quirky double clock header on this function's reply (spec §9) is
// consumed transparently here: header, then an empty segment, then the
// {"ok":true} ack segment.
func (c *Client) Election(candidateID int, deadline time.Duration) (bool, error) {
	conn, err := c.dial(deadline)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if err := protocol.WriteRequest(conn, protocol.FuncElection, []interface{}{candidateID}, 0); err != nil {
		return false, fmt.Errorf("peerclient: send election(%d): %w", candidateID, err)
	}
	if _, err := protocol.ReadResponseHeader(conn); err != nil {
		return false, fmt.Errorf("peerclient: read response header: %w", err)
	}
	// Consume the documented extra zero header before the ack segment.
	if _, err := protocol.ReadResponseHeader(conn); err != nil {
		return false, fmt.Errorf("peerclient: read election preamble: %w", err)
	}
	if _, err := protocol.ReadSegment(conn); err != nil {
		return false, fmt.Errorf("peerclient: read election ack: %w", err)
	}
	return true, nil
}

// Coordinator announces leaderID to this peer (spec §4.4).
func (c *Client) Coordinator(leaderID int, deadline time.Duration) error {
	conn, err := c.dial(deadline)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := protocol.WriteRequest(conn, protocol.FuncCoordinator, []interface{}{leaderID}, 0); err != nil {
		return fmt.Errorf("peerclient: send coordinator(%d): %w", leaderID, err)
	}
	if _, err := protocol.ReadResponseHeader(conn); err != nil {
		return fmt.Errorf("peerclient: read response header: %w", err)
	}
	return nil
}

// Heartbeat pings this peer (expected to be the current leader). A
// successful round-trip is the only signal the caller needs (spec §4.5).
func (c *Client) Heartbeat(deadline time.Duration) error {
	conn, err := c.dial(deadline)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := protocol.WriteRequest(conn, protocol.FuncHeartbeat, []interface{}{}, 0); err != nil {
		return fmt.Errorf("peerclient: send heartbeat: %w", err)
	}
	if _, err := protocol.ReadResponseHeader(conn); err != nil {
		return fmt.Errorf("peerclient: read response header: %w", err)
	}
	return nil
}

// Replicate instructs this peer to pull imageID from leaderHost:leaderPort
// (spec §4.7). Called only by the node whose id equals the current
// leader_id.
func (c *Client) Replicate(imageID int64, leaderHost string, leaderPort int, deadline time.Duration) error {
	conn, err := c.dial(deadline)
	if err != nil {
		return err
	}
	defer conn.Close()

	args := []interface{}{imageID, leaderHost, leaderPort}
	if err := protocol.WriteRequest(conn, protocol.FuncReplicate, args, 0); err != nil {
		return fmt.Errorf("peerclient: send replicate(%d): %w", imageID, err)
	}
	if _, err := protocol.ReadResponseHeader(conn); err != nil {
		return fmt.Errorf("peerclient: read response header: %w", err)
	}
	seg, err := protocol.ReadSegment(conn)
	if err != nil {
		return fmt.Errorf("peerclient: read replicate ack: %w", err)
	}
	if seg.Err != nil {
		return fmt.Errorf("peerclient: peer reported: %w: %w", protocol.ErrUpstreamFailure, seg.Err)
	}
	return nil
}

// NotifyCached tells this peer (expected to be the leader) that the
// caller just finished filling imageID, so the leader can fan out
// replication (spec §4.7).
func (c *Client) NotifyCached(imageID int64, deadline time.Duration) error {
	conn, err := c.dial(deadline)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := protocol.WriteRequest(conn, protocol.FuncNotifyCached, []interface{}{imageID}, 0); err != nil {
		return fmt.Errorf("peerclient: send notify_cached(%d): %w", imageID, err)
	}
	if _, err := protocol.ReadResponseHeader(conn); err != nil {
		return fmt.Errorf("peerclient: read response header: %w", err)
	}
	return nil
}

// GetImage pulls the complete bytes for imageID from this peer, used by a
// follower fulfilling a replicate instruction by pulling from the named
// leader endpoint (spec §4.7).
func (c *Client) GetImage(imageID int64, deadline time.Duration) ([]byte, error) {
	conn, err := c.dial(deadline)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := protocol.WriteRequest(conn, protocol.FuncGetImage, []interface{}{imageID}, 0); err != nil {
		return nil, fmt.Errorf("peerclient: send get_image(%d): %w", imageID, err)
	}
	if _, err := protocol.ReadResponseHeader(conn); err != nil {
		return nil, fmt.Errorf("peerclient: read response header: %w", err)
	}
	seg, err := protocol.ReadSegment(conn)
	if err != nil {
		return nil, fmt.Errorf("peerclient: read image segment: %w", err)
	}
	if seg.Err != nil {
		return nil, fmt.Errorf("peerclient: peer reported: %w: %w", protocol.ErrUpstreamFailure, seg.Err)
	}
	return seg.Payload, nil
}
