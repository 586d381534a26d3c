// Package originclient is a thin synchronous RPC client to the canonical
// origin server, used only by edge nodes servicing a cache miss (spec
// §4.2). Grounded on the dial-once-per-call shape in
// original_source/edge_server/server.py's peer_rpc_call and the teacher's
// internal/docker/client.go (typed, wrapped errors from a single
// upstream call).
package originclient

import (
	"fmt"
	"net"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/protocol"
)

// Client calls the canonical origin for image fills and size queries.
type Client struct {
	Host string
	Port int

	// Deadline is the default per-call deadline (5s per spec §4.2); each
	// call opens, uses, and closes a fresh connection.
	Deadline time.Duration
}

// New builds a client targeting host:port with the given default deadline.
func New(host string, port int, deadline time.Duration) *Client {
	return &Client{Host: host, Port: port, Deadline: deadline}
}

func (c *Client) dial() (net.Conn, error) {
	addr := net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
	conn, err := net.DialTimeout("tcp", addr, c.Deadline)
	if err != nil {
		return nil, fmt.Errorf("originclient: connect to %s: %w", addr, protocol.WrapTimeout(err))
	}
	if err := conn.SetDeadline(time.Now().Add(c.Deadline)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("originclient: set deadline: %w", err)
	}
	return conn, nil
}

// GetImage fetches the complete bytes for id from the origin.
func (c *Client) GetImage(id int64) ([]byte, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := protocol.WriteRequest(conn, protocol.FuncGetImage, []interface{}{id}, 0); err != nil {
		return nil, fmt.Errorf("originclient: send get_image(%d): %w", id, err)
	}
	if _, err := protocol.ReadResponseHeader(conn); err != nil {
		return nil, fmt.Errorf("originclient: read response header: %w", err)
	}
	seg, err := protocol.ReadSegment(conn)
	if err != nil {
		return nil, fmt.Errorf("originclient: read image segment: %w", err)
	}
	if seg.Err != nil {
		return nil, fmt.Errorf("originclient: origin reported: %w: %w", protocol.ErrUpstreamFailure, seg.Err)
	}
	return seg.Payload, nil
}

// GetImageSize fetches the size in bytes for id from the origin, without
// causing the origin to do any caching of its own (it has none; spec §4.3
// notes size queries never warm a *cache*, and the origin store itself is
// an opaque byte store).
func (c *Client) GetImageSize(id int64) (int64, error) {
	conn, err := c.dial()
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if err := protocol.WriteRequest(conn, protocol.FuncGetImageSize, []interface{}{id}, 0); err != nil {
		return 0, fmt.Errorf("originclient: send get_image_size(%d): %w", id, err)
	}
	if _, err := protocol.ReadResponseHeader(conn); err != nil {
		return 0, fmt.Errorf("originclient: read response header: %w", err)
	}
	size, err := protocol.ReadSizeOrError(conn)
	if err != nil {
		return 0, fmt.Errorf("originclient: origin reported: %w: %w", protocol.ErrUpstreamFailure, err)
	}
	return size, nil
}
