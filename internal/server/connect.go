package server

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/scanlink/host/internal/alias"
	apperrors "github.com/scanlink/host/internal/errors"
	"github.com/scanlink/host/internal/identity"
	"github.com/scanlink/host/internal/protocol"
	"github.com/scanlink/host/internal/registry"
)

// deviceState tracks where a device connection is in its lifecycle.
type deviceState string

const (
	deviceOpening    deviceState = "opening"
	deviceValidating deviceState = "validating"
	deviceRejected   deviceState = "rejected"
	deviceRegistered deviceState = "registered"
	devicePending    deviceState = "alias_pending"
	devicePaired     deviceState = "paired"
	deviceClosed     deviceState = "closed"
)

// deviceSession is the state machine for a device's own connection. The
// device identifies itself with a uuid4 carried as the first WebSocket
// subprotocol; a valid id gets the device registered (or refreshed) and a
// snapshot of its record echoed back. After that the device may submit alias
// requests until one is accepted.
//
// All fields are confined to the connection's goroutines: open runs before
// the read pump starts, onMessage and onClose run on the read pump.
type deviceSession struct {
	client *Client
	srv    *Server
	state  deviceState

	// did is the claimed device id, empty when none was presented.
	did string
}

// handleDeviceConnect upgrades a device connection and runs its opening
// sequence. Identity failures still upgrade: the device gets a failure
// envelope explaining itself before the close frame, instead of an opaque
// HTTP error.
func (s *Server) handleDeviceConnect(w http.ResponseWriter, r *http.Request) {
	var claimed string
	var responseHeader http.Header
	if protos := websocket.Subprotocols(r); len(protos) > 0 {
		claimed = protos[0]
		// Echo the claimed id back as the accepted subprotocol; some clients
		// drop the connection when the server picks none.
		responseHeader = http.Header{"Sec-WebSocket-Protocol": []string{claimed}}
	}

	conn, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}

	client := s.newClient(conn)
	sess := &deviceSession{client: client, srv: s, state: deviceOpening, did: claimed}
	client.session = sess

	go client.writePump()
	sess.open(context.Background())
	go client.readPump()
}

// open validates the claimed identity and registers the device. On any
// rejection the connection is told why and closed.
func (ds *deviceSession) open(ctx context.Context) {
	ds.state = deviceValidating

	if ds.did == "" {
		ds.reject(apperrors.MissingID().Message)
		return
	}
	if !identity.IsValidID(ds.did) {
		// A malformed id never reached the registry, so onClose must not try
		// to clear anything for it.
		ds.did = ""
		ds.reject(apperrors.InvalidID().Message)
		return
	}

	rec, err := ds.srv.registry.RegisterOrRefresh(ctx, ds.did, ds.client.channel)
	if err != nil {
		log.Printf("server: register device %s failed: %v", ds.did, err)
		ds.did = ""
		ds.reject("device registration failed, try again")
		return
	}

	ds.state = deviceRegistered
	ds.client.trySend(protocol.Success(protocol.EventDeviceConnect, "current device data", snapshotOf(rec)))
}

func (ds *deviceSession) reject(message string) {
	ds.state = deviceRejected
	ds.client.trySend(protocol.Failure(protocol.EventDeviceConnect, message, nil))
	ds.client.gracefulClose(websocket.CloseNormalClosure)
}

// onMessage handles an alias request from the device. Failures leave the
// session where it was so the device can try again on the same connection.
func (ds *deviceSession) onMessage(data []byte) {
	switch ds.state {
	case deviceRegistered, devicePaired:
	default:
		// Rejected or closing sessions ignore input.
		return
	}

	prev := ds.state
	ds.state = devicePending
	ctx := context.Background()

	raw, err := protocol.ParseAliasSetup(data)
	if err != nil {
		ds.state = prev
		ds.client.trySend(protocol.Failure(protocol.EventDeviceSetup, apperrors.GetMessage(err), nil))
		return
	}

	normalized, ok, msg := alias.Normalize(ds.did, raw)
	if !ok {
		ds.state = prev
		ds.client.trySend(protocol.Failure(protocol.EventDeviceSetup, msg, protocol.AliasEcho{Alias: normalized}))
		return
	}

	res, err := ds.srv.registry.TryAssignAlias(ctx, ds.did, normalized)
	if err != nil {
		ds.state = prev
		log.Printf("server: assign alias for %s failed: %v", ds.did, err)
		ds.client.trySend(protocol.Failure(protocol.EventDeviceSetup, "alias assignment failed, try again", protocol.AliasEcho{Alias: normalized}))
		return
	}
	if !res.Accepted {
		ds.state = prev
		ds.client.trySend(protocol.Failure(protocol.EventDeviceSetup, rejectionMessage(res.Reason, normalized, ds.did), protocol.AliasEcho{Alias: normalized}))
		return
	}

	ds.state = devicePaired
	ds.client.trySend(protocol.Success(protocol.EventDeviceSetup, msg, snapshotOf(res.Record)))
}

// onClose releases the device's connection binding. The alias survives so a
// reconnect within the record TTL resumes the pairing.
func (ds *deviceSession) onClose() {
	if ds.did != "" && ds.state != deviceRejected {
		if err := ds.srv.registry.ClearConnection(context.Background(), ds.did); err != nil {
			log.Printf("server: clear connection for %s failed: %v", ds.did, err)
		}
	}
	ds.state = deviceClosed
}

// rejectionMessage maps an assignment rejection to its wire message.
func rejectionMessage(reason registry.Reason, candidate, deviceID string) string {
	switch reason {
	case registry.ReasonAliasTaken:
		return apperrors.AliasTaken(candidate).Message
	case registry.ReasonDeviceExpired:
		return apperrors.DeviceExpired(deviceID).Message
	default:
		return "alias assignment rejected"
	}
}
