package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"

	"github.com/scanlink/host/internal/identity"
)

// runQR implements the "scanlink qr" command. It prints the scan URL for a
// device as a terminal QR code so another party can claim the device by
// scanning it.
func runQR(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("qr", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", "", "Host address embedded in the URL (default: Tailscale or LAN IP:7080)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: scanlink qr [options] <device-id>

Print the scan URL for a connected device as a QR code. The device id is
the uuid4 the device identifies itself with on /ws/connect.

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

	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	did := fs.Arg(0)
	if !identity.IsValidID(did) {
		fmt.Fprintf(stderr, "Error: %q is not a canonical uuid4\n", did)
		return 1
	}

	// The URL must be reachable from the scanning party, not from this
	// machine, so prefer a network-visible address.
	hostAddr := displayAddr(*addr, 7080)
	scanURL := fmt.Sprintf("ws://%s/ws/connect/scan/%s", hostAddr, did)

	qr, err := qrcode.New(scanURL, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(stderr, "Error generating QR code: %v\n", err)
		fmt.Fprintf(stdout, "Scan URL: %s\n", scanURL)
		return 1
	}

	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintln(stdout, "         SCAN TO CLAIM DEVICE")
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintln(stdout, "")

	// ToSmallString(false) produces compact half-block output without a border.
	fmt.Fprint(stdout, qr.ToSmallString(false))

	fmt.Fprintln(stdout, "-------------------------------------------")
	fmt.Fprintf(stdout, "  Device: %s\n", did)
	fmt.Fprintf(stdout, "  URL:    %s\n", scanURL)
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintln(stdout, "")
	return 0
}
