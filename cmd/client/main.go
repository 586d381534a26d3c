// cmd/client is the CLI entry-point for the CDN demo client, built with
// Cobra. Grounded on ppriyankuu-godkv's cmd/client/main.go layout;
// replaces that client's HTTP calls with the framed TCP protocol spoken
// by the load balancer and edge nodes (spec §6).
//
// Usage:
//
//	edgecdn-client get-image 5 --addr 127.0.0.1:8000 --out image5.jpg
//	edgecdn-client get-image-size 5 --addr 127.0.0.1:8000
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/client"
)

var (
	addr    string
	timeout time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "edgecdn-client",
		Short: "Demo client for the edge CDN cluster",
	}
	root.SilenceUsage = true

	root.PersistentFlags().StringVarP(&addr, "addr", "a", getEnv("EDGECDN_ADDR", "127.0.0.1:8000"), "load balancer or edge address (host:port)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", getEnvDuration("EDGECDN_TIMEOUT", 5*time.Second), "per-request deadline")

	root.AddCommand(getImageCmd(), getImageSizeCmd())

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

// getEnvDuration is getEnv for the per-request deadline flag.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

func getImageCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:          "get-image <id>",
		Short:        "Fetch an image and save it to disk",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid image id %q: %w", args[0], err)
			}
			if out == "" {
				out = fmt.Sprintf("image%d.jpg", id)
			}
			c := client.New(addr, timeout)
			if err := c.GetImage(id, out); err != nil {
				return err
			}
			fmt.Printf("%s saved in the current directory.\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default image<id>.jpg)")
	return cmd
}

func getImageSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "get-image-size <id>",
		Short:        "Print an image's size in bytes",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid image id %q: %w", args[0], err)
			}
			c := client.New(addr, timeout)
			size, err := c.GetImageSize(id)
			if err != nil {
				return err
			}
			fmt.Printf("Size of image%d.jpg is %d bytes.\n", id, size)
			return nil
		},
	}
}
