// Package client implements the demo CDN client used by cmd/client: a
// thin wrapper over the framed wire protocol that saves a fetched image
// to disk or prints its size. Grounded on original_source/client/
// client.py's rpc_call, kept logically single-connection per call like
// the original (spec §6: clients dial the load balancer, not an edge,
// so there is no reason to keep a connection warm across calls).
package client

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/protocol"
)

// Client talks to a load balancer (or, for testing, directly to an
// edge) at Addr.
type Client struct {
	Addr     string
	Deadline time.Duration

	clock uint64
}

// New builds a Client targeting addr (host:port).
func New(addr string, deadline time.Duration) *Client {
	return &Client{Addr: addr, Deadline: deadline}
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", c.Addr, c.Deadline)
	if err != nil {
		return nil, fmt.Errorf("client: connect to %s: %w", c.Addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(c.Deadline)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: set deadline: %w", err)
	}
	return conn, nil
}

// GetImage fetches imageID and writes it to destPath, matching the
// original's "image<id>.jpg saved in the current directory" behavior
// but letting the caller choose the path.
func (c *Client) GetImage(imageID int64, destPath string) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	c.clock++
	if err := protocol.WriteRequest(conn, protocol.FuncGetImage, []interface{}{imageID}, c.clock); err != nil {
		return fmt.Errorf("client: send get_image(%d): %w", imageID, err)
	}
	if _, err := protocol.ReadResponseHeader(conn); err != nil {
		return fmt.Errorf("client: read response header: %w", err)
	}
	seg, err := protocol.ReadSegment(conn)
	if err != nil {
		return fmt.Errorf("client: read image segment: %w", err)
	}
	if seg.Err != nil {
		return fmt.Errorf("client: server reported: %w", seg.Err)
	}
	if err := os.WriteFile(destPath, seg.Payload, 0o644); err != nil {
		return fmt.Errorf("client: write %s: %w", destPath, err)
	}
	return nil
}

// GetImageSize returns imageID's size in bytes, as reported by the
// server's bare-size response (spec §6, get_image_size shape).
func (c *Client) GetImageSize(imageID int64) (int64, error) {
	conn, err := c.dial()
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	c.clock++
	if err := protocol.WriteRequest(conn, protocol.FuncGetImageSize, []interface{}{imageID}, c.clock); err != nil {
		return 0, fmt.Errorf("client: send get_image_size(%d): %w", imageID, err)
	}
	if _, err := protocol.ReadResponseHeader(conn); err != nil {
		return 0, fmt.Errorf("client: read response header: %w", err)
	}
	size, err := protocol.ReadSizeOrError(conn)
	if err != nil {
		return 0, fmt.Errorf("client: server reported: %w", err)
	}
	return size, nil
}
