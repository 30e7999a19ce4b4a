// Package mdns provides optional mDNS/Bonjour advertisement of the host.
//
// When enabled, the host announces itself on the local network via DNS-SD so
// devices can find the pairing endpoint without typing an address. This is
// opt-in: discovery only reveals presence, a device still has to complete
// the pairing handshake.
package mdns

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service type for pairing hosts.
const ServiceType = "_scanlink._tcp"

// ProtocolVersion identifies the advertised protocol version for
// compatibility checks.
const ProtocolVersion = "1"

// ConnectPath is the WebSocket path advertised to devices.
const ConnectPath = "/ws/connect"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the server port to advertise (e.g., 7080).
	Port int

	// Name is a human-readable name for this host.
	// Defaults to the system hostname if empty.
	Name string
}

// Advertiser manages mDNS/DNS-SD service registration.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates a new mDNS advertiser with the given configuration.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{
		config: cfg,
	}
}

// Start begins advertising the service via mDNS.
// Safe to call multiple times; subsequent calls are no-ops while running.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	name := a.config.Name
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			name = "scanlink"
		} else {
			name = hostname
		}
	}

	// TXT records tell clients what they are connecting to before they do:
	// protocol version for compatibility, the WebSocket path, and a display
	// name.
	txtRecords := []string{
		fmt.Sprintf("version=%s", ProtocolVersion),
		fmt.Sprintf("path=%s", ConnectPath),
		fmt.Sprintf("name=%s", name),
	}

	server, err := zeroconf.Register(
		name,
		ServiceType,
		"local.",
		a.config.Port,
		txtRecords,
		nil, // all network interfaces
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// Stop stops the advertisement and unregisters the service.
// Safe to call multiple times or on an advertiser that never started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning returns true if the advertiser is currently running.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// DiscoveredHost represents a host found via mDNS discovery.
type DiscoveredHost struct {
	// Name is the human-readable name of the host.
	Name string

	// Host is the IP address or hostname.
	Host string

	// Port is the server port.
	Port int

	// Path is the advertised WebSocket connect path.
	Path string

	// Version is the advertised protocol version.
	Version string
}

// Discover browses the local network for pairing hosts until ctx expires and
// returns whatever it found.
func Discover(ctx context.Context) ([]DiscoveredHost, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var (
		hosts []DiscoveredHost
		mu    sync.Mutex
		wg    sync.WaitGroup
	)

	entries := make(chan *zeroconf.ServiceEntry)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			host := DiscoveredHost{
				Name: entry.Instance,
				Port: entry.Port,
			}

			// Prefer IPv4 address
			if len(entry.AddrIPv4) > 0 {
				host.Host = entry.AddrIPv4[0].String()
			} else if len(entry.AddrIPv6) > 0 {
				host.Host = entry.AddrIPv6[0].String()
			}

			for _, txt := range entry.Text {
				switch {
				case strings.HasPrefix(txt, "version="):
					host.Version = strings.TrimPrefix(txt, "version=")
				case strings.HasPrefix(txt, "path="):
					host.Path = strings.TrimPrefix(txt, "path=")
				case strings.HasPrefix(txt, "name="):
					host.Name = strings.TrimPrefix(txt, "name=")
				}
			}

			mu.Lock()
			hosts = append(hosts, host)
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	// The zeroconf library closes the entries channel when the context is
	// done, so wait for the collector to drain it.
	<-ctx.Done()
	wg.Wait()

	return hosts, nil
}
