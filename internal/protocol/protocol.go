// Package protocol implements the length-prefixed, JSON-framed wire
// protocol shared by every component that talks to an edge node: clients,
// peer edges, and the origin client. See spec §4.1 and §6.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	json "github.com/goccy/go-json"
)

// Function names understood by the Dispatcher. Keeping these as a closed
// set of constants (rather than bare strings scattered through the
// codebase) is what spec §9 calls "a tagged union... one variant per
// function" instead of dynamic string dispatch.
const (
	FuncGetImage     = "get_image"
	FuncGetImageSize = "get_image_size"
	FuncReplicate    = "replicate"
	FuncNotifyCached = "notify_cached"
	FuncElection     = "election"
	FuncCoordinator  = "coordinator"
	FuncHeartbeat    = "heartbeat"
)

// Request is the decoded wire request: {"function":..., "args":[...], "clock":...}
type Request struct {
	Function string        `json:"function"`
	Args     []interface{} `json:"args"`
	Clock    uint64        `json:"clock"`
}

// ErrConnectionClosed mirrors the source's recv_exact: the peer hung up
// before delivering the number of bytes the frame promised.
var ErrConnectionClosed = errors.New("protocol: connection closed mid-frame")

// ErrDeadlineExceeded wraps a dial or read/write timeout so callers can
// check with errors.Is instead of inspecting the concrete net.Error
// (spec §7).
var ErrDeadlineExceeded = errors.New("protocol: deadline exceeded")

// ErrBadRequest covers an unknown function or a malformed request the
// Dispatcher rejects before it reaches any subsystem (spec §7).
var ErrBadRequest = errors.New("protocol: bad request")

// ErrUpstreamFailure covers an origin or peer RPC that reached its
// target and came back reporting failure (spec §7).
var ErrUpstreamFailure = errors.New("protocol: upstream RPC failed")

// ErrIOError covers a local disk failure other than a plain miss
// (permission denied, disk full, and the like), shared by cachestore and
// originstore since both are thin wrappers over the same filesystem
// primitives (spec §7).
var ErrIOError = errors.New("protocol: local disk I/O error")

// WrapTimeout wraps err as ErrDeadlineExceeded when it is a timeout
// (a net.Error with Timeout() true); any other error is returned
// unchanged.
func WrapTimeout(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrDeadlineExceeded, err)
	}
	return err
}

// ReadExact reads exactly n bytes from r, or returns ErrConnectionClosed
// on short read (EOF before n bytes are seen).
func ReadExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrConnectionClosed
		}
		return nil, fmt.Errorf("protocol: read exact %d bytes: %w", n, WrapTimeout(err))
	}
	return buf, nil
}

func readUint64(r io.Reader) (uint64, error) {
	b, err := ReadExact(r, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ReadRequest reads one length-prefixed JSON request: u64 len || JSON bytes.
func ReadRequest(r io.Reader) (Request, error) {
	n, err := readUint64(r)
	if err != nil {
		return Request{}, err
	}
	body, err := ReadExact(r, int(n))
	if err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, fmt.Errorf("protocol: decode request: %w", err)
	}
	return req, nil
}

// WriteRequest writes one length-prefixed JSON request.
func WriteRequest(w io.Writer, function string, args []interface{}, clock uint64) error {
	body, err := json.Marshal(Request{Function: function, Args: args, Clock: clock})
	if err != nil {
		return fmt.Errorf("protocol: encode request: %w", err)
	}
	if err := writeUint64(w, uint64(len(body))); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// WriteResponseHeader writes the 8-byte clock header that opens every
// response envelope (spec §4.1).
func WriteResponseHeader(w io.Writer, clock uint64) error {
	return writeUint64(w, clock)
}

// WriteSizedSegment writes a u64-length-prefixed raw payload segment.
func WriteSizedSegment(w io.Writer, payload []byte) error {
	if err := writeUint64(w, uint64(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// errorBody is the wire shape of an error segment: {"error": "..."}.
type errorBody struct {
	Error string `json:"error"`
}

// WriteErrorSegment writes a u64-length-prefixed JSON {"error": msg} segment.
func WriteErrorSegment(w io.Writer, msg string) error {
	body, err := json.Marshal(errorBody{Error: msg})
	if err != nil {
		return err
	}
	return WriteSizedSegment(w, body)
}

// WriteEmptySegment writes a zero-length segment, used by notify_cached,
// coordinator, and the election preamble (spec §6).
func WriteEmptySegment(w io.Writer) error {
	return writeUint64(w, 0)
}

// WriteBareSize writes the get_image_size success shape: a single raw u64
// with nothing following it, as opposed to WriteSizedSegment's
// length-then-payload shape (spec §6 table: get_image_size success is
// "u64 size", not "u64 len || bytes").
func WriteBareSize(w io.Writer, size uint64) error {
	return writeUint64(w, size)
}

// ReadSizeOrError reads the get_image_size response shape, which is
// ambiguous by construction (spec §6 "Ambiguous receive for error
// carriage"): success is a bare u64 with the connection closing right
// after, while error is that same u64 reinterpreted as a length prefix
// followed by a JSON {"error":...} body. The only way to tell them apart
// is to attempt the follow-up read: if the peer has already closed the
// connection, there was no error body and the u64 was the size.
func ReadSizeOrError(r io.Reader) (int64, error) {
	n, err := readUint64(r)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	body, err := ReadExact(r, int(n))
	if err != nil {
		if errors.Is(err, ErrConnectionClosed) {
			// No follow-up bytes arrived: n was the size itself.
			return int64(n), nil
		}
		return 0, err
	}
	var eb errorBody
	if jsonErr := json.Unmarshal(body, &eb); jsonErr == nil && eb.Error != "" {
		return 0, errors.New(eb.Error)
	}
	// Got n follow-up bytes that aren't a recognizable error: per the
	// wire contract this shouldn't happen, but if it does, n was the size
	// and the decoder misread framing; surface it as a protocol error
	// rather than silently guessing.
	return 0, fmt.Errorf("protocol: unexpected %d-byte payload following get_image_size value", n)
}

// Segment is the tagged Payload|Error value described by spec §9: the
// first post-clock segment of a response is either raw payload bytes or a
// decoded error, distinguished by attempting a JSON decode first.
type Segment struct {
	Payload []byte
	Err     error
}

// ReadSegment reads one u64-length-prefixed segment and classifies it:
// if it successfully decodes as JSON with an "error" key, it is an error;
// otherwise the raw bytes are the payload. This mirrors the source's
// "JSON decode fails => treat as binary image" control flow, made
// explicit instead of relying on a decode exception (spec §9).
func ReadSegment(r io.Reader) (Segment, error) {
	n, err := readUint64(r)
	if err != nil {
		return Segment{}, err
	}
	body, err := ReadExact(r, int(n))
	if err != nil {
		return Segment{}, err
	}
	var eb errorBody
	if jsonErr := json.Unmarshal(body, &eb); jsonErr == nil && eb.Error != "" {
		return Segment{Err: errors.New(eb.Error)}, nil
	}
	return Segment{Payload: body}, nil
}

// ReadResponseHeader reads the clock header that opens every response.
func ReadResponseHeader(r io.Reader) (uint64, error) {
	return readUint64(r)
}

// CloseWrite half-closes a TCP connection for writing, the equivalent of
// the source load balancer's socket.shutdown(SHUT_WR) after forwarding a
// request (spec §9 design note).
func CloseWrite(conn net.Conn) error {
	if tc, ok := conn.(*net.TCPConn); ok {
		return tc.CloseWrite()
	}
	return nil
}
