// gatetop is a terminal monitor for a running gate server. It polls
// the HTTP API and renders one row per feature with usage, lock state
// and a live cooldown countdown.
//
// Usage:
//
//	gatetop -server http://localhost:3000 -key <access key>
//
// The access key defaults to the GATE_ACCESS_KEY environment variable.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/JillVernus/feature-gate/internal/monitor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("gatetop", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	server := fs.String("server", envOr("GATE_SERVER", "http://localhost:3000"), "gate server base URL")
	key := fs.String("key", os.Getenv("GATE_ACCESS_KEY"), "access key (defaults to GATE_ACCESS_KEY)")
	interval := fs.Duration("interval", 2*time.Second, "poll interval")
	timeout := fs.Duration("timeout", 5*time.Second, "per-poll fetch timeout")
	noColor := fs.Bool("no-color", false, "disable color styling")
	noAltScreen := fs.Bool("no-alt-screen", false, "disable alternate screen mode")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *interval <= 0 {
		fmt.Fprintln(os.Stderr, "error: -interval must be > 0")
		return 2
	}
	if *timeout <= 0 {
		fmt.Fprintln(os.Stderr, "error: -timeout must be > 0")
		return 2
	}
	if *server == "" {
		fmt.Fprintln(os.Stderr, "error: -server must be set")
		return 2
	}

	client := monitor.NewClient(*server, *key)
	err := monitor.Run(monitor.Options{
		Interval:  *interval,
		Timeout:   *timeout,
		NoColor:   *noColor,
		AltScreen: !*noAltScreen,
		Fetch:     client.Fetch,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
