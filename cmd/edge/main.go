// cmd/edge runs one edge node (spec §4): cache-fill from the origin,
// bully leader election, heartbeat failure detection, and peer
// replication, all served over the framed wire protocol. Assembled the
// way the teacher's cmd/coordinator/main.go wires election + a health
// server + a monitoring loop, generalized from a fixed-purpose
// coordinator into the full edge node described by the spec.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/cachestore"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/config"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/detector"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/dispatcher"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/election"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/listener"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/nodestate"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/originclient"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/peerclient"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/replication"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/status"
)

func main() {
	var configPath string
	var nodeID int
	var cacheDir string

	root := &cobra.Command{
		Use:   "edgecdn-edge",
		Short: "Run one edge node of the CDN cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, nodeID, cacheDir)
		},
	}
	root.SilenceUsage = true
	root.Flags().StringVarP(&configPath, "config", "c", getEnv("EDGECDN_CONFIG", "cluster.yaml"), "cluster description file")
	root.Flags().IntVar(&nodeID, "node-id", getEnvInt("EDGECDN_NODE_ID", 0), "this node's id within the cluster")
	root.Flags().StringVar(&cacheDir, "cache-dir", getEnv("EDGECDN_CACHE_DIR", ""), "on-disk cache directory (default ./es<node-id>)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getEnv reads an environment variable with a fallback default, the
// teacher's env-var-first config convention (cmd/coordinator/main.go's
// getEnv), used here to seed cobra flag defaults instead of being read
// ad hoc.
func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getEnvInt is getEnv for integer-valued flags (node ids, ports).
func getEnvInt(key string, defaultValue int) int {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func run(configPath string, nodeID int, cacheDir string) error {
	cluster, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cacheDir == "" {
		cacheDir = fmt.Sprintf("./es%d", nodeID)
	}
	selfHost, err := cluster.PeerHost(nodeID)
	if err != nil {
		return fmt.Errorf("edge %d: %w", nodeID, err)
	}

	state := nodestate.New(nodeID, cluster)
	store, err := cachestore.New(cacheDir)
	if err != nil {
		return err
	}
	origin := originclient.New(cluster.Origin.Host, cluster.Origin.Port, cluster.Timing.OriginDeadline)

	metrics := status.NewMetrics(nodeID)

	elector := election.New(state, cluster.Timing, election.DialPeer(cluster))
	replica := replication.New(state, cluster.Timing, replicationDialer(cluster), func() { elector.RunElection() })
	elector.OnBecomeLeader = func() { metrics.RecordElection() }
	replica.OnFanOut = func(peerCount int) { metrics.RecordFanOut(peerCount) }

	disp := dispatcher.New(state, store, origin, elector, replica, metrics, selfHost)

	det := detector.New(state, cluster.Timing, detectorDialer(cluster), func() { elector.RunElection() })
	go det.Run()
	defer det.Stop()

	statusAddr := fmt.Sprintf(":%d", cluster.StatusPort(nodeID))
	statusSrv := status.New(statusAddr, state, store, metrics)
	statusSrv.Start()

	edgeAddr := net.JoinHostPort("0.0.0.0", fmt.Sprintf("%d", cluster.EdgePort(nodeID)))
	ln := listener.New(edgeAddr, disp)
	if err := ln.Start(); err != nil {
		return fmt.Errorf("edge %d: %w", nodeID, err)
	}
	log.Printf("edge %d: listening on %s, status on %s", nodeID, edgeAddr, statusAddr)
	go ln.Serve()

	elector.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Printf("edge %d: shutting down", nodeID)
	return ln.Stop()
}

func replicationDialer(cluster *config.Cluster) replication.PeerDialer {
	return func(peer config.Peer) replication.Replicator {
		return peerclient.New(peer.Host, cluster.EdgePort(peer.ID))
	}
}

func detectorDialer(cluster *config.Cluster) detector.PeerDialer {
	return func(peerID int) detector.Pinger {
		peer, _ := cluster.PeerByID(peerID)
		return peerclient.New(peer.Host, cluster.EdgePort(peerID))
	}
}
