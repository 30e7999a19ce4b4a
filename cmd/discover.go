package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/scanlink/host/internal/mdns"
)

// runDiscover implements the "scanlink discover" command. It browses the
// local network for advertised pairing hosts and prints what it finds.
func runDiscover(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	fs.SetOutput(stderr)

	timeout := fs.Duration("timeout", 3*time.Second, "How long to browse for hosts")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: scanlink discover [options]

Browse the local network for pairing hosts advertised via mDNS.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	fmt.Fprintf(stdout, "Browsing for %s hosts (%s)...\n", mdns.ServiceType, *timeout)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	hosts, err := mdns.Discover(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if len(hosts) == 0 {
		fmt.Fprintln(stdout, "No hosts found.")
		return 0
	}

	for _, h := range hosts {
		fmt.Fprintf(stdout, "  %-24s ws://%s:%d%s (version %s)\n",
			h.Name, h.Host, h.Port, h.Path, h.Version)
	}
	return 0
}
