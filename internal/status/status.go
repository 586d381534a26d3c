// Package status runs the ambient HTTP surface bound to a node's status
// port (SPEC_FULL §4.9/§6.1): a Gin-served /status endpoint reporting
// node id, leader, peer count and cached-image count as JSON, plus a
// Prometheus /metrics endpoint.
// The router shape is grounded on ppriyankuu-godkv's internal/api
// Handler.Register; the registry/collector split and graceful Start/Stop
// are grounded on scttfrdmn-objectfs's internal/metrics.Collector.
package status

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/cachestore"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/nodestate"
)

// Metrics holds the Prometheus collectors this node exposes.
type Metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	cacheResults *prometheus.CounterVec
	fillLatency  prometheus.Histogram
	electionsRun prometheus.Counter
	fanOuts      prometheus.Counter
}

// NewMetrics builds and registers a fresh collector set for one node.
func NewMetrics(nodeID int) *Metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"node": itoa(nodeID)}

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "edgecdn",
			Name:        "requests_total",
			Help:        "Requests handled by this edge node, by RPC function.",
			ConstLabels: labels,
		}, []string{"function"}),
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "edgecdn",
			Name:        "cache_requests_total",
			Help:        "get_image lookups on this node, by result (hit or miss).",
			ConstLabels: labels,
		}, []string{"result"}),
		fillLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "edgecdn",
			Name:        "cache_fill_duration_seconds",
			Help:        "Time spent filling a cache miss from the origin.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		electionsRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "edgecdn",
			Name:        "elections_total",
			Help:        "Bully elections this node has won.",
			ConstLabels: labels,
		}),
		fanOuts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "edgecdn",
			Name:        "replication_fanout_total",
			Help:        "Peer replication RPCs issued while fanning out a newly cached image.",
			ConstLabels: labels,
		}),
	}
	registry.MustRegister(m.requests, m.cacheResults, m.fillLatency, m.electionsRun, m.fanOuts)
	return m
}

// RecordRequest increments the per-function request counter.
func (m *Metrics) RecordRequest(function string) {
	m.requests.WithLabelValues(function).Inc()
}

// RecordCacheResult increments the cache hit/miss counter for a
// get_image lookup.
func (m *Metrics) RecordCacheResult(hit bool) {
	if hit {
		m.cacheResults.WithLabelValues("hit").Inc()
	} else {
		m.cacheResults.WithLabelValues("miss").Inc()
	}
}

// ObserveFillLatency records how long a cache-miss fill from the origin
// took.
func (m *Metrics) ObserveFillLatency(d time.Duration) {
	m.fillLatency.Observe(d.Seconds())
}

// RecordElection increments the elections counter; cmd/edge calls it each
// time this node wins an election and becomes leader.
func (m *Metrics) RecordElection() {
	m.electionsRun.Inc()
}

// RecordFanOut adds n to the replication fan-out counter, n being the
// number of peers a single cache fill was just replicated to.
func (m *Metrics) RecordFanOut(n int) {
	m.fanOuts.Add(float64(n))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Server is the per-node status/metrics HTTP surface.
type Server struct {
	state   *nodestate.State
	store   *cachestore.Store
	metrics *Metrics
	engine  *gin.Engine
	http    *http.Server
}

// New builds a status Server bound to addr, not yet listening.
func New(addr string, state *nodestate.State, store *cachestore.Store, metrics *Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{state: state, store: store, metrics: metrics, engine: engine}
	engine.GET("/status", s.handleStatus)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{})))

	s.http = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) handleStatus(c *gin.Context) {
	body := gin.H{"node_id": s.state.ID}
	if leaderID, ok := s.state.LeaderID(); ok {
		body["leader_id"] = leaderID
		body["is_leader"] = s.state.IsLeader()
	} else {
		body["leader_id"] = nil
		body["is_leader"] = false
	}
	body["peers"] = len(s.state.Peers)
	cached := 0
	if entries, err := os.ReadDir(s.store.Dir); err == nil {
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".jpg") {
				cached++
			}
		}
	}
	body["cached_images"] = cached
	c.JSON(http.StatusOK, body)
}

// Start runs the HTTP server in the background. ListenAndServe's own
// error return is swallowed for http.ErrServerClosed, the expected
// outcome of a clean Stop.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("status server: %v", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
