package listener

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	calls atomic.Int64
}

func (h *countingHandler) Handle(conn net.Conn) {
	h.calls.Add(1)
	buf := make([]byte, 1)
	conn.Read(buf)
}

func TestServeDispatchesConnections(t *testing.T) {
	h := &countingHandler{}
	l := New("127.0.0.1:0", h)
	require.NoError(t, l.Start())
	go l.Serve()
	defer l.Stop()

	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", l.ln.Addr().String())
		require.NoError(t, err)
		conn.Close()
	}

	require.Eventually(t, func() bool {
		return h.calls.Load() == 3
	}, time.Second, time.Millisecond)
}

func TestStopUnblocksServe(t *testing.T) {
	h := &countingHandler{}
	l := New("127.0.0.1:0", h)
	require.NoError(t, l.Start())

	done := make(chan struct{})
	go func() {
		l.Serve()
		close(done)
	}()

	require.NoError(t, l.Stop())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}
