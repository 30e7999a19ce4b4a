// Package protocol defines the wire contract shared by both connection kinds.
//
// Every outbound message is an Envelope with a closed set of event tags.
// Inbound messages carry exactly one payload shape (alias setup); anything
// else is a client error, reported back inside an Envelope rather than by
// dropping the connection.
package protocol

import (
	"encoding/json"

	apperrors "github.com/scanlink/host/internal/errors"
)

// Event tags for outbound envelopes.
// The tag identifies which lifecycle step the envelope reports on.
type Event string

const (
	// EventDeviceConnect reports the outcome of a device connection attempt.
	EventDeviceConnect Event = "device-connect"

	// EventDeviceSetup reports the outcome of an alias-setup message sent
	// on the device's own connection.
	EventDeviceSetup Event = "device-setup"

	// EventScanConnect reports the outcome of a scan connection attempt.
	// It is also relayed to the scanned device as a notification.
	EventScanConnect Event = "scan-connect"

	// EventScanSetup reports the outcome of an alias-setup message sent on a
	// scanning connection. The scanned device receives it as a notification.
	EventScanSetup Event = "scan-setup"
)

// Envelope is the outer wire shape for every outbound message.
type Envelope struct {
	Event   Event  `json:"event"`
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Snapshot is the device view carried in successful envelopes.
// Alias is omitted until the device has been paired.
type Snapshot struct {
	DID     string `json:"did"`
	Channel string `json:"channel,omitempty"`
	TTL     int64  `json:"ttl"`
	Alias   string `json:"alias,omitempty"`
}

// AliasEcho carries the offending alias back to the client on failures,
// and the accepted alias back to a scanner on success.
type AliasEcho struct {
	Alias string `json:"alias"`
}

// AliasSetup is the only inbound payload shape.
// Alias is a pointer so an absent field can be told apart from "".
type AliasSetup struct {
	Alias *string `json:"alias"`
}

// Success builds a status=true envelope.
func Success(event Event, message string, data any) Envelope {
	return Envelope{Event: event, Status: true, Message: message, Data: data}
}

// Failure builds a status=false envelope.
func Failure(event Event, message string, data any) Envelope {
	return Envelope{Event: event, Status: false, Message: message, Data: data}
}

// ParseAliasSetup decodes an inbound alias-setup payload.
// Non-JSON input and a missing "alias" key are distinct client errors,
// reported as validation.* CodedErrors.
func ParseAliasSetup(data []byte) (string, error) {
	var payload AliasSetup
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", apperrors.BadJSON()
	}
	if payload.Alias == nil {
		return "", apperrors.MissingField("alias")
	}
	return *payload.Alias, nil
}
