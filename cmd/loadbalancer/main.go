// cmd/loadbalancer runs the CDN front door (spec §4.10): round-robin
// dispatch over the cluster's edge nodes with heartbeat-based health
// checking. Grounded on original_source/load_balancer/load_balancer.py's
// LoadBalancer.start, wired through internal/listener +
// internal/loadbalancer instead of the original's two raw threads.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/config"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/listener"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/loadbalancer"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "edgecdn-loadbalancer",
		Short: "Round-robin load balancer for the edge CDN cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.SilenceUsage = true
	root.Flags().StringVarP(&configPath, "config", "c", getEnv("EDGECDN_CONFIG", "cluster.yaml"), "cluster description file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getEnv reads an environment variable with a fallback default, the
// teacher's env-var-first config convention (cmd/coordinator/main.go's
// getEnv).
func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// lbHandler adapts (*loadbalancer.LoadBalancer).HandleClient to the
// listener.Handler interface.
type lbHandler struct {
	lb *loadbalancer.LoadBalancer
}

func (h lbHandler) Handle(conn net.Conn) {
	h.lb.HandleClient(conn)
}

func run(configPath string) error {
	cluster, err := config.Load(configPath)
	if err != nil {
		return err
	}

	lb := loadbalancer.New(cluster)
	go lb.RunHealthChecks()
	defer lb.Stop()

	addr := fmt.Sprintf(":%d", cluster.LoadBalancer.Port)
	ln := listener.New(addr, lbHandler{lb: lb})
	if err := ln.Start(); err != nil {
		return fmt.Errorf("loadbalancer: %w", err)
	}
	log.Printf("loadbalancer: listening on %s over %d edge(s)", addr, cluster.NumEdges)
	go ln.Serve()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Printf("loadbalancer: shutting down")
	return ln.Stop()
}
