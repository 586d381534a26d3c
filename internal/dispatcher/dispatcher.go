// Package dispatcher implements the per-connection request handler (spec
// §4.6): decode one framed request, route it to the right subsystem, write
// exactly one framed response, close. Collapsed from the big if/elif
// chain in original_source/edge_server/server.py's handle_client into a
// handler-per-function table, per spec §9's "tagged union... one variant
// per function" redesign note; the per-message switch shape is also
// grounded on the teacher's handleConnection.
package dispatcher

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/cachestore"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/config"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/election"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/nodestate"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/originclient"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/peerclient"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/protocol"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/replication"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/status"
)

// Dispatcher wires every subsystem an edge connection might need.
type Dispatcher struct {
	State    *nodestate.State
	Store    *cachestore.Store
	Origin   *originclient.Client
	Elector  *election.Coordinator
	Replica  *replication.Manager
	Metrics  *status.Metrics
	SelfHost string
}

// New builds a Dispatcher for one edge node.
func New(state *nodestate.State, store *cachestore.Store, origin *originclient.Client, elector *election.Coordinator, replica *replication.Manager, metrics *status.Metrics, selfHost string) *Dispatcher {
	return &Dispatcher{State: state, Store: store, Origin: origin, Elector: elector, Replica: replica, Metrics: metrics, SelfHost: selfHost}
}

// Handle services exactly one request on conn, then returns; the caller
// (Listener) is responsible for closing conn afterward (spec §6:
// "Edge connections are single-request").
func (d *Dispatcher) Handle(conn net.Conn) {
	req, err := protocol.ReadRequest(conn)
	if err != nil {
		if err != protocol.ErrConnectionClosed {
			log.Printf("edge %d: failed to read request: %v", d.State.ID, err)
		}
		return
	}

	clock := d.State.NextClock()
	if err := protocol.WriteResponseHeader(conn, clock); err != nil {
		log.Printf("edge %d: failed to write response header: %v", d.State.ID, err)
		return
	}

	if err := d.route(conn, req); err != nil {
		log.Printf("edge %d: %s failed: %v", d.State.ID, req.Function, err)
	}
}

func (d *Dispatcher) route(conn net.Conn, req protocol.Request) error {
	d.Metrics.RecordRequest(req.Function)
	switch req.Function {
	case protocol.FuncGetImage:
		return d.handleGetImage(conn, req)
	case protocol.FuncGetImageSize:
		return d.handleGetImageSize(conn, req)
	case protocol.FuncReplicate:
		return d.handleReplicate(conn, req)
	case protocol.FuncNotifyCached:
		return d.handleNotifyCached(conn, req)
	case protocol.FuncElection:
		return d.handleElection(conn, req)
	case protocol.FuncCoordinator:
		return d.handleCoordinator(conn, req)
	case protocol.FuncHeartbeat:
		return d.handleHeartbeat(conn, req)
	default:
		return writeErrAndReturn(conn, fmt.Errorf("unknown function %s: %w", req.Function, protocol.ErrBadRequest))
	}
}

func argInt64(args []interface{}, i int) (int64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing arg %d: %w", i, protocol.ErrBadRequest)
	}
	switch v := args[i].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("arg %d has unexpected type %T: %w", i, args[i], protocol.ErrBadRequest)
	}
}

func argString(args []interface{}, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing arg %d: %w", i, protocol.ErrBadRequest)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("arg %d has unexpected type %T: %w", i, args[i], protocol.ErrBadRequest)
	}
	return s, nil
}

// writeErrAndReturn writes cause as an error segment, then returns cause
// so the caller can propagate it to Handle's log line — unless the write
// itself fails, in which case that failure takes precedence.
func writeErrAndReturn(conn net.Conn, cause error) error {
	if werr := protocol.WriteErrorSegment(conn, cause.Error()); werr != nil {
		return werr
	}
	return cause
}

func (d *Dispatcher) handleGetImage(conn net.Conn, req protocol.Request) error {
	id, err := argInt64(req.Args, 0)
	if err != nil {
		return writeErrAndReturn(conn, err)
	}

	start := time.Now()
	data, wasHit, err := d.Store.GetOrFill(id, func(id int64) ([]byte, error) {
		return d.Origin.GetImage(id)
	})
	if err != nil {
		return writeErrAndReturn(conn, err)
	}
	d.Metrics.RecordCacheResult(wasHit)
	if !wasHit {
		d.Metrics.ObserveFillLatency(time.Since(start))
	}
	if err := protocol.WriteSizedSegment(conn, data); err != nil {
		return err
	}

	if !wasHit {
		d.afterFill(id)
	}
	return nil
}

// afterFill runs the post-cache actions described in spec §4.7: the
// leader fans out directly; a follower notifies the leader.
func (d *Dispatcher) afterFill(id int64) {
	if d.State.IsLeader() {
		go d.Replica.FanOutToPeers(id, d.SelfHost, d.State.Cluster.EdgePort(d.State.ID))
	} else {
		go d.Replica.NotifyLeaderCached(id)
	}
}

func (d *Dispatcher) handleGetImageSize(conn net.Conn, req protocol.Request) error {
	id, err := argInt64(req.Args, 0)
	if err != nil {
		return writeErrAndReturn(conn, err)
	}

	if size, ok, err := d.Store.GetSize(id); err != nil {
		return writeErrAndReturn(conn, err)
	} else if ok {
		return protocol.WriteBareSize(conn, uint64(size))
	}

	// Local miss: ask the origin directly without caching (spec §4.3:
	// "size queries do not warm the cache").
	size, err := d.Origin.GetImageSize(id)
	if err != nil {
		return writeErrAndReturn(conn, err)
	}
	return protocol.WriteBareSize(conn, uint64(size))
}

func (d *Dispatcher) handleReplicate(conn net.Conn, req protocol.Request) error {
	id, err := argInt64(req.Args, 0)
	if err != nil {
		return writeErrAndReturn(conn, err)
	}
	leaderHost, err := argString(req.Args, 1)
	if err != nil {
		return writeErrAndReturn(conn, err)
	}
	leaderPort, err := argInt64(req.Args, 2)
	if err != nil {
		return writeErrAndReturn(conn, err)
	}

	client := peerclient.New(leaderHost, int(leaderPort))
	err = replication.HandleReplicate(d.Store, id, func() ([]byte, error) {
		return client.GetImage(id, d.replicationDeadline())
	})
	if err != nil {
		return writeErrAndReturn(conn, err)
	}
	return protocol.WriteSizedSegment(conn, []byte(`{"ok":true}`))
}

func (d *Dispatcher) replicationDeadline() time.Duration {
	return d.State.Cluster.Timing.ReplicationDeadline
}

func (d *Dispatcher) handleNotifyCached(conn net.Conn, req protocol.Request) error {
	id, err := argInt64(req.Args, 0)
	if err != nil {
		return writeErrAndReturn(conn, err)
	}
	d.Replica.HandleNotifyCached(id, d.SelfHost, d.State.Cluster.EdgePort(d.State.ID))
	return protocol.WriteEmptySegment(conn)
}

func (d *Dispatcher) handleElection(conn net.Conn, req protocol.Request) error {
	cand, err := argInt64(req.Args, 0)
	if err != nil {
		return writeErrAndReturn(conn, err)
	}
	// Documented source quirk (spec §6/§9): an extra empty segment
	// precedes the ack, kept for wire compatibility.
	if err := protocol.WriteEmptySegment(conn); err != nil {
		return err
	}
	if err := protocol.WriteSizedSegment(conn, []byte(`{"ok":true}`)); err != nil {
		return err
	}
	d.Elector.HandleElection(int(cand))
	return nil
}

func (d *Dispatcher) handleCoordinator(conn net.Conn, req protocol.Request) error {
	leader, err := argInt64(req.Args, 0)
	if err != nil {
		return writeErrAndReturn(conn, err)
	}
	d.Elector.HandleCoordinator(int(leader))
	return protocol.WriteEmptySegment(conn)
}

func (d *Dispatcher) handleHeartbeat(conn net.Conn, req protocol.Request) error {
	// Heartbeat carries no segment at all, just the clock header already
	// written by Handle (spec §6 table: "clock header only; no segment").
	d.State.TouchLeaderContact()
	return nil
}

// DialPeer adapts a config.Peer + port into a peerclient. cmd/edge does
// not use it; its production dialers call peerclient.New directly.
func DialPeer(peer config.Peer, port int) *peerclient.Client {
	return peerclient.New(peer.Host, port)
}
