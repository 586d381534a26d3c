package detector

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/config"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/nodestate"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ fail bool }

func (f fakePinger) Heartbeat(deadline time.Duration) error {
	if f.fail {
		return fakeErr("down")
	}
	return nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func cluster3() *config.Cluster {
	return &config.Cluster{NumEdges: 3, Nodes: []config.Peer{
		{ID: 0, Host: "a"}, {ID: 1, Host: "b"}, {ID: 2, Host: "c"},
	}}
}

func TestTickRefreshesContactOnSuccessfulHeartbeat(t *testing.T) {
	state := nodestate.New(0, cluster3())
	state.SetLeader(2)
	timing := config.Timing{HeartbeatInterval: time.Millisecond, HeartbeatDeadline: time.Millisecond, HeartbeatFailAfter: time.Hour}

	d := New(state, timing, func(id int) Pinger { return fakePinger{fail: false} }, func() {})
	time.Sleep(2 * time.Millisecond)
	stale := state.SinceLastLeaderContact()
	d.tick()
	require.Less(t, state.SinceLastLeaderContact(), stale)
}

func TestTickStartsElectionAfterFailThreshold(t *testing.T) {
	state := nodestate.New(0, cluster3())
	state.SetLeader(2)
	// With a fail threshold of zero, any time elapsed since this contact
	// refresh already exceeds it on the very first failing tick.
	state.TouchLeaderContact()
	timing := config.Timing{HeartbeatInterval: time.Millisecond, HeartbeatDeadline: time.Millisecond, HeartbeatFailAfter: 0}

	var elections int64
	d := New(state, timing, func(id int) Pinger { return fakePinger{fail: true} }, func() {
		atomic.AddInt64(&elections, 1)
	})
	d.tick()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&elections) == 1
	}, time.Second, time.Millisecond)
}

func TestLeaderTickDoesNotHeartbeatSelf(t *testing.T) {
	state := nodestate.New(2, cluster3())
	state.SetLeader(2)
	timing := config.Timing{HeartbeatInterval: time.Millisecond, HeartbeatDeadline: time.Millisecond, HeartbeatFailAfter: time.Nanosecond}

	called := false
	d := New(state, timing, func(id int) Pinger {
		called = true
		return fakePinger{fail: true}
	}, func() {})
	d.tick()
	require.False(t, called, "leader must not heartbeat itself")
}
