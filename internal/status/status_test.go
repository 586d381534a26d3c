package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/cachestore"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/config"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/nodestate"
)

func TestStatusEndpointReportsLeader(t *testing.T) {
	cluster := &config.Cluster{NumEdges: 2, Nodes: []config.Peer{
		{ID: 0, Host: "a"}, {ID: 1, Host: "b"},
	}}
	state := nodestate.New(0, cluster)
	state.SetLeader(0)

	store, err := cachestore.New(t.TempDir())
	require.NoError(t, err)

	metrics := NewMetrics(0)
	s := New("127.0.0.1:0", state, store, metrics)
	s.Start()
	defer s.Stop(context.Background())

	var body map[string]interface{}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.EqualValues(t, 0, body["leader_id"])
	require.Equal(t, true, body["is_leader"])
}

func TestMetricsRecordRequestDoesNotPanic(t *testing.T) {
	m := NewMetrics(3)
	m.RecordRequest("get_image")
	m.RecordCacheResult(true)
	m.RecordCacheResult(false)
	m.ObserveFillLatency(10 * time.Millisecond)
	m.RecordElection()
	m.RecordFanOut(2)
}

func TestStatusBodyShape(t *testing.T) {
	cluster := &config.Cluster{NumEdges: 1, Nodes: []config.Peer{{ID: 0, Host: "a"}}}
	state := nodestate.New(0, cluster)
	store, err := cachestore.New(t.TempDir())
	require.NoError(t, err)
	metrics := NewMetrics(0)
	s := New("127.0.0.1:0", state, store, metrics)

	var body map[string]interface{}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.engine.ServeHTTP(w, req)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, false, body["is_leader"])
}
