package loadbalancer

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/config"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/protocol"
)

// fakeEdge answers exactly one get_image request with a canned body.
func fakeEdge(t *testing.T, body []byte) (port int, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req, err := protocol.ReadRequest(conn)
		if err != nil {
			return
		}
		protocol.WriteResponseHeader(conn, 1)
		if req.Function == protocol.FuncHeartbeat {
			return
		}
		protocol.WriteSizedSegment(conn, body)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.Port, func() { ln.Close() }
}

func testClusterWithEdgePort(port int) *config.Cluster {
	return &config.Cluster{
		BasePort: port,
		NumEdges: 1,
		Nodes:    []config.Peer{{ID: 0, Host: "127.0.0.1"}},
		Timing:   config.Timing{OriginDeadline: time.Second, HeartbeatDeadline: time.Second},
	}
}

func TestHandleClientRelaysEdgeResponse(t *testing.T) {
	body := []byte("edge-bytes")
	port, stop := fakeEdge(t, body)
	defer stop()

	lb := New(testClusterWithEdgePort(port))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		lb.HandleClient(conn)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, protocol.WriteRequest(conn, protocol.FuncGetImage, []interface{}{int64(1)}, 1))
	_, err = protocol.ReadResponseHeader(conn)
	require.NoError(t, err)
	seg, err := protocol.ReadSegment(conn)
	require.NoError(t, err)
	require.Nil(t, seg.Err)
	require.Equal(t, body, seg.Payload)
}

func TestChooseEdgeFailsWhenNoneHealthy(t *testing.T) {
	lb := New(testClusterWithEdgePort(9000))
	lb.healthy[0] = false

	_, err := lb.chooseEdge()
	require.ErrorIs(t, err, ErrNoHealthyEdges)
}

func TestRunHealthChecksMarksDeadEdgeUnhealthy(t *testing.T) {
	cluster := testClusterWithEdgePort(1) // nothing listens on port 1
	cluster.Timing.HeartbeatInterval = 5 * time.Millisecond
	lb := New(cluster)
	go lb.RunHealthChecks()
	defer lb.Stop()

	require.Eventually(t, func() bool {
		lb.mu.Lock()
		defer lb.mu.Unlock()
		return !lb.healthy[0]
	}, time.Second, 5*time.Millisecond)
}
