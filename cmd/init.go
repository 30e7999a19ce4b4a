package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/scanlink/host/internal/config"
)

// runInit implements the "scanlink init" command. It writes a config file
// with LAN-ready defaults (all interfaces, mDNS on) so a fresh install can
// go from zero to discoverable with two commands. An existing config is
// never touched.
func runInit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Where to write the config (default: ~/.scanlink/config.toml)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: scanlink init [options]

Create a config file with LAN-ready defaults if none exists.
Existing files are left untouched.

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

	path := *configPath
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	if err := config.WriteDefault(path); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Config ready: %s\n", path)
	fmt.Fprintln(stdout, "Start the host with: scanlink start")
	return 0
}
