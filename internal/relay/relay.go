// Package relay delivers envelopes to whatever connection handle is
// currently registered for a device.
//
// Connection handlers never hold references to each other; when the scan
// handler wants to notify the device's own connection it goes through the
// relay, which resolves the device's channel name from the store and hands
// the envelope to the transport. Delivery is at-most-once and non-durable:
// the handle may belong to a connection that already closed, and nothing is
// queued or retried for it.
package relay

import (
	"context"
	"fmt"
	"log"

	"github.com/scanlink/host/internal/protocol"
	"github.com/scanlink/host/internal/registry"
	"github.com/scanlink/host/internal/store"
)

// Sender hands an envelope to the connection registered under a channel
// name. The boolean reports whether a live connection accepted the envelope
// into its send queue; the relay treats it as advisory only.
type Sender interface {
	Send(channel string, env protocol.Envelope) bool
}

// Relay resolves device ids to channel handles and forwards envelopes.
type Relay struct {
	store  store.Store
	sender Sender
}

// New creates a relay over the given store and transport sender.
func New(s store.Store, sender Sender) *Relay {
	return &Relay{store: s, sender: sender}
}

// Deliver sends env to the device's current connection handle.
//
// Absent handle (device never connected, disconnected, or expired) returns
// (false, nil): not an error, the recipient simply is not there. A present
// handle returns (true, nil) regardless of whether the transport accepted
// the send; presence is confirmed at send time, not guaranteed at receive
// time. Deliver never blocks beyond the store round trip.
func (r *Relay) Deliver(ctx context.Context, deviceID string, env protocol.Envelope) (bool, error) {
	channel, ok, err := r.store.Get(ctx, registry.DeviceKey(deviceID), registry.FieldChannel)
	if err != nil {
		return false, fmt.Errorf("resolve channel for %s: %w", deviceID, err)
	}
	if !ok || channel == "" {
		return false, nil
	}

	if !r.sender.Send(channel, env) {
		// Stale handle: the connection vanished between the store read and
		// the send. Fire-and-forget means this is only worth a log line.
		log.Printf("relay: dropped %s for device %s (connection gone)", env.Event, deviceID)
	}
	return true, nil
}
