// Package origindispatcher implements the canonical origin's per-
// connection handler: get_image and get_image_size only, over the same
// framed wire protocol the edge tier speaks. Grounded on
// original_source/server/canonical_server.py's handle_request, reshaped
// into the handler-per-function table used by internal/dispatcher
// rather than the original's if/elif chain.
package origindispatcher

import (
	"errors"
	"fmt"
	"log"
	"net"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/originstore"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/protocol"
)

// Dispatcher services one origin connection against a Store.
type Dispatcher struct {
	Store *originstore.Store
}

// New builds an origin Dispatcher.
func New(store *originstore.Store) *Dispatcher {
	return &Dispatcher{Store: store}
}

// Handle services exactly one request on conn (spec §4.1: canonical
// server always echoes a clock of 0 — it keeps no logical clock of its
// own, unlike an edge node).
func (d *Dispatcher) Handle(conn net.Conn) {
	req, err := protocol.ReadRequest(conn)
	if err != nil {
		if !errors.Is(err, protocol.ErrConnectionClosed) {
			log.Printf("origin: failed to read request: %v", err)
		}
		return
	}

	if err := protocol.WriteResponseHeader(conn, 0); err != nil {
		log.Printf("origin: failed to write response header: %v", err)
		return
	}

	if err := d.route(conn, req); err != nil {
		log.Printf("origin: %s failed: %v", req.Function, err)
	}
}

func (d *Dispatcher) route(conn net.Conn, req protocol.Request) error {
	switch req.Function {
	case protocol.FuncGetImage:
		return d.handleGetImage(conn, req)
	case protocol.FuncGetImageSize:
		return d.handleGetImageSize(conn, req)
	default:
		return protocol.WriteErrorSegment(conn, fmt.Sprintf("Unknown function %s", req.Function))
	}
}

func argInt64(args []interface{}, i int) (int64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing arg %d", i)
	}
	switch v := args[i].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("arg %d has unexpected type %T", i, args[i])
	}
}

func (d *Dispatcher) handleGetImage(conn net.Conn, req protocol.Request) error {
	id, err := argInt64(req.Args, 0)
	if err != nil {
		return protocol.WriteErrorSegment(conn, err.Error())
	}
	data, err := d.Store.Get(id)
	if err != nil {
		return protocol.WriteErrorSegment(conn, err.Error())
	}
	return protocol.WriteSizedSegment(conn, data)
}

func (d *Dispatcher) handleGetImageSize(conn net.Conn, req protocol.Request) error {
	id, err := argInt64(req.Args, 0)
	if err != nil {
		return protocol.WriteErrorSegment(conn, err.Error())
	}
	size, err := d.Store.GetSize(id)
	if err != nil {
		return protocol.WriteErrorSegment(conn, err.Error())
	}
	return protocol.WriteBareSize(conn, uint64(size))
}
