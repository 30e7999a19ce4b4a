package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/scanlink/host/internal/alias"
	apperrors "github.com/scanlink/host/internal/errors"
	"github.com/scanlink/host/internal/identity"
	"github.com/scanlink/host/internal/protocol"
)

// scanState tracks where a scan connection is in its lifecycle.
type scanState string

const (
	scanOpening    scanState = "opening"
	scanChecking   scanState = "checking"
	scanRejected   scanState = "rejected"
	scanScanned    scanState = "scanned"
	scanAliasRelay scanState = "alias_relay"
	scanClosed     scanState = "closed"
)

// scanSession is the state machine for a scanning party claiming a device.
// The target device id comes from the URL path, so it is format-checked
// before the upgrade; a malformed id is an ordinary 404, not a WebSocket
// conversation. The scan only succeeds against a device that is currently
// connected and not yet paired.
//
// The scan connection is short-lived: once an alias is accepted both sides
// are notified and the scanner is hung up with a normal close.
type scanSession struct {
	client *Client
	srv    *Server
	state  scanState
	did    string
}

// handleScanConnect serves /ws/connect/scan/{device-id}.
func (s *Server) handleScanConnect(w http.ResponseWriter, r *http.Request) {
	did := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/connect/scan/"), "/")
	if !identity.IsValidID(did) {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}

	client := s.newClient(conn)
	sess := &scanSession{client: client, srv: s, state: scanOpening, did: did}
	client.session = sess

	go client.writePump()
	sess.open(context.Background())
	go client.readPump()
}

// open checks the scanned device and either hands the scanner a snapshot or
// turns it away. A successful scan also pokes the device's own connection so
// its UI can react to being scanned.
func (ss *scanSession) open(ctx context.Context) {
	ss.state = scanChecking

	rec, ok, err := ss.srv.registry.Read(ctx, ss.did)
	if err != nil {
		log.Printf("server: read device %s failed: %v", ss.did, err)
		ss.reject("scan failed, try again")
		return
	}
	// The device must be live, currently connected, and still unpaired.
	if !ok || rec.Channel == "" || rec.Alias != "" {
		ss.reject("invalid channel or device already setup")
		return
	}

	ss.state = scanScanned
	ss.client.trySend(protocol.Success(protocol.EventScanConnect, "scanned successfully", snapshotOf(rec)))

	if _, err := ss.srv.relay.Deliver(ctx, ss.did, protocol.Success(protocol.EventScanConnect, "scanned successfully", nil)); err != nil {
		log.Printf("server: notify device %s of scan failed: %v", ss.did, err)
	}
}

func (ss *scanSession) reject(message string) {
	ss.state = scanRejected
	ss.client.trySend(protocol.Failure(protocol.EventScanConnect, message, nil))
	ss.client.gracefulClose(websocket.CloseNormalClosure)
}

// onMessage handles an alias request from the scanner. Failures keep the
// connection open for another attempt; an accepted alias notifies the device
// first, confirms to the scanner, and closes the scan connection normally.
func (ss *scanSession) onMessage(data []byte) {
	if ss.state != scanScanned {
		return
	}
	ctx := context.Background()

	raw, err := protocol.ParseAliasSetup(data)
	if err != nil {
		ss.client.trySend(protocol.Failure(protocol.EventScanSetup, apperrors.GetMessage(err), nil))
		return
	}

	normalized, ok, msg := alias.Normalize(ss.did, raw)
	if !ok {
		ss.client.trySend(protocol.Failure(protocol.EventScanSetup, msg, protocol.AliasEcho{Alias: normalized}))
		return
	}

	res, err := ss.srv.registry.TryAssignAlias(ctx, ss.did, normalized)
	if err != nil {
		log.Printf("server: assign alias for %s failed: %v", ss.did, err)
		ss.client.trySend(protocol.Failure(protocol.EventScanSetup, "alias assignment failed, try again", protocol.AliasEcho{Alias: normalized}))
		return
	}
	if !res.Accepted {
		ss.client.trySend(protocol.Failure(protocol.EventScanSetup, rejectionMessage(res.Reason, normalized, ss.did), protocol.AliasEcho{Alias: normalized}))
		return
	}

	ss.state = scanAliasRelay
	if _, err := ss.srv.relay.Deliver(ctx, ss.did, protocol.Success(protocol.EventScanSetup, msg, snapshotOf(res.Record))); err != nil {
		log.Printf("server: relay alias to device %s failed: %v", ss.did, err)
	}
	ss.client.trySend(protocol.Success(protocol.EventScanSetup, msg, protocol.AliasEcho{Alias: normalized}))
	ss.client.gracefulClose(websocket.CloseNormalClosure)
}

func (ss *scanSession) onClose() {
	ss.state = scanClosed
}
