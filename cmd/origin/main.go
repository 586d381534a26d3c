// cmd/origin runs the canonical origin server: the fixed, read-only
// image set every edge node falls back to on a cache miss (spec §4.1).
// Grounded on original_source/server/canonical_server.py's main(),
// wired through internal/listener + internal/origindispatcher instead
// of a raw accept-thread loop.
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

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/listener"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/origindispatcher"
	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/originstore"
)

func main() {
	var host string
	var port int
	var imageDir string

	root := &cobra.Command{
		Use:   "edgecdn-origin",
		Short: "Canonical origin server for the edge CDN cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(host, port, imageDir)
		},
	}
	root.SilenceUsage = true
	root.Flags().StringVar(&host, "host", getEnv("EDGECDN_ORIGIN_HOST", "0.0.0.0"), "listen host")
	root.Flags().IntVar(&port, "port", getEnvInt("EDGECDN_ORIGIN_PORT", 9000), "listen port")
	root.Flags().StringVar(&imageDir, "image-dir", getEnv("EDGECDN_IMAGE_DIR", "./images"), "directory of origin images")

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

// getEnvInt is getEnv for integer-valued flags.
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

func run(host string, port int, imageDir string) error {
	store, err := originstore.New(imageDir)
	if err != nil {
		return err
	}
	dispatcher := origindispatcher.New(store)

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	ln := listener.New(addr, dispatcher)
	if err := ln.Start(); err != nil {
		return fmt.Errorf("origin: %w", err)
	}
	log.Printf("origin: listening on %s, serving images from %s", addr, imageDir)
	go ln.Serve()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Printf("origin: shutting down")
	return ln.Stop()
}
