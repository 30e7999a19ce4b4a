package relay

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/scanlink/host/internal/protocol"
	"github.com/scanlink/host/internal/registry"
	"github.com/scanlink/host/internal/store"
)

// fakeSender records sends and answers with a configurable result.
type fakeSender struct {
	sent   []string
	accept bool
}

func (f *fakeSender) Send(channel string, env protocol.Envelope) bool {
	f.sent = append(f.sent, channel)
	return f.accept
}

func TestDeliverToRegisteredDevice(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()
	did := uuid.NewString()

	reg := registry.NewRegistry(s)
	reg.RegisterOrRefresh(ctx, did, "ch-42")

	sender := &fakeSender{accept: true}
	r := New(s, sender)

	delivered, err := r.Deliver(ctx, did, protocol.Success(protocol.EventScanConnect, "scanned", nil))
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if !delivered {
		t.Error("delivered = false for a registered device")
	}
	if len(sender.sent) != 1 || sender.sent[0] != "ch-42" {
		t.Errorf("sender saw %v, want [ch-42]", sender.sent)
	}
}

func TestDeliverToUnknownDevice(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	sender := &fakeSender{accept: true}
	r := New(s, sender)

	delivered, err := r.Deliver(context.Background(), uuid.NewString(), protocol.Success(protocol.EventScanConnect, "scanned", nil))
	if err != nil {
		t.Fatalf("Deliver returned error for absent device: %v", err)
	}
	if delivered {
		t.Error("delivered = true for a device with no handle")
	}
	if len(sender.sent) != 0 {
		t.Errorf("sender saw %v, want no sends", sender.sent)
	}
}

func TestDeliverAfterDisconnect(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()
	did := uuid.NewString()

	reg := registry.NewRegistry(s)
	reg.RegisterOrRefresh(ctx, did, "ch-42")
	reg.ClearConnection(ctx, did)

	r := New(s, &fakeSender{accept: true})

	delivered, err := r.Deliver(ctx, did, protocol.Success(protocol.EventScanSetup, "done", nil))
	if err != nil || delivered {
		t.Errorf("Deliver after disconnect = (%v, %v), want (false, nil)", delivered, err)
	}
}

func TestDeliverToDeadConnectionIsStillDelivered(t *testing.T) {
	// The handle exists in the store but the transport rejects the send.
	// Fire-and-forget: Deliver still reports true and does not error.
	s := store.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()
	did := uuid.NewString()

	registry.NewRegistry(s).RegisterOrRefresh(ctx, did, "ch-dead")

	sender := &fakeSender{accept: false}
	r := New(s, sender)

	delivered, err := r.Deliver(ctx, did, protocol.Success(protocol.EventScanSetup, "done", nil))
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if !delivered {
		t.Error("delivered = false; a stale handle should still count as delivered")
	}
}
