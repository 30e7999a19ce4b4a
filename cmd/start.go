package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/scanlink/host/internal/config"
	"github.com/scanlink/host/internal/mdns"
	"github.com/scanlink/host/internal/registry"
	"github.com/scanlink/host/internal/server"
	"github.com/scanlink/host/internal/store"
)

// runStart implements the "scanlink start" command. It wires the keyed
// store, the device registry, and the WebSocket server together and runs
// until interrupted.
func runStart(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.scanlink/config.toml)")
	addr := fs.String("addr", "", "Listen address (default: "+config.DefaultAddr+")")
	db := fs.String("db", "", "Path to SQLite database (default: ~/.scanlink/scanlink.db)")
	memory := fs.Bool("memory", false, "Keep device records in memory only (lost on restart)")
	mdnsEnabled := fs.Bool("mdns", false, "Advertise the host on the local network via mDNS")
	name := fs.String("name", "", "Host name for mDNS advertisement (default: hostname)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: scanlink start [options]

Start the pairing host. Devices connect to /ws/connect identifying
themselves with a uuid4 subprotocol; scanning parties claim a device via
/ws/connect/scan/{device-id}.

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

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// CLI flags override config file values.
	if *addr != "" {
		cfg.Addr = *addr
	}
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultAddr
	}
	if *db != "" {
		cfg.DB = *db
	}
	if *mdnsEnabled {
		cfg.MdnsEnabled = true
	}
	if *name != "" {
		cfg.Name = *name
	}

	var st store.Store
	if *memory {
		st = store.NewMemoryStore()
	} else {
		dbPath := cfg.DB
		if dbPath == "" {
			dbPath, err = config.DefaultDBPath()
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
		}
		st, err = store.NewSQLiteStore(dbPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to open store at %s: %v\n", dbPath, err)
			return 1
		}
	}
	defer st.Close()

	reg := registry.NewRegistry(st)
	srv := server.NewServer(cfg.Addr, reg, st)

	if err := <-srv.StartAsync(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var advertiser *mdns.Advertiser
	if cfg.MdnsEnabled {
		port, err := listenPort(cfg.Addr)
		if err != nil {
			fmt.Fprintf(stderr, "Error: cannot advertise %s: %v\n", cfg.Addr, err)
			return 1
		}
		advertiser = mdns.NewAdvertiser(mdns.Config{Port: port, Name: cfg.Name})
		if err := advertiser.Start(); err != nil {
			// Discovery is a convenience; the host still works without it.
			fmt.Fprintf(stderr, "Warning: mDNS advertisement failed: %v\n", err)
			advertiser = nil
		}
	}

	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintln(stdout, "  Scanlink Host")
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintf(stdout, "  Address:  %s\n", cfg.Addr)
	if *memory {
		fmt.Fprintln(stdout, "  Store:    in-memory")
	} else {
		fmt.Fprintln(stdout, "  Store:    sqlite")
	}
	if advertiser != nil {
		fmt.Fprintln(stdout, "  mDNS:     advertising")
	}
	fmt.Fprintln(stdout, "  Pairing:  run 'scanlink qr <device-id>' for a scan code")
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintln(stdout, "")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintln(stdout, "Shutting down...")
	if advertiser != nil {
		advertiser.Stop()
	}
	srv.Stop()
	return 0
}
