package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `scanlink - local device pairing host over WebSocket

Usage:
  scanlink <command> [options]

Commands:
  start         Start the pairing host
  init          Write a LAN-ready config file if none exists
  qr <device-id>  Print the scan URL for a device as a QR code
  discover      Browse the local network for pairing hosts

Run 'scanlink <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "start":
		return runStart(args[2:], stdout, stderr)
	case "init":
		return runInit(args[2:], stdout, stderr)
	case "qr":
		return runQR(args[2:], stdout, stderr)
	case "discover":
		return runDiscover(args[2:], stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "scanlink %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
