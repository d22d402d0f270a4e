package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/patchbay/pkg/ports"
)

// MessageChannelContractTest verifies that a connected pair of channels
// complies with ports.MessageChannel. closePeer must drop the peer's side
// of the connection so the lost notification can be observed on local.
func MessageChannelContractTest(t *testing.T, local, peer ports.MessageChannel, closePeer func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("Send_Receive", func(t *testing.T) {
		if err := local.Send(ctx, []byte("ping")); err != nil {
			t.Fatalf("unexpected error sending: %v", err)
		}
		got, err := peer.Receive(ctx)
		if err != nil {
			t.Fatalf("unexpected error receiving: %v", err)
		}
		if string(got) != "ping" {
			t.Errorf("payload mismatch. got %q, want %q", got, "ping")
		}
	})

	t.Run("Reply", func(t *testing.T) {
		if err := peer.Send(ctx, []byte{0x00, 0xFF, 0x10}); err != nil {
			t.Fatalf("unexpected error sending: %v", err)
		}
		got, err := local.Receive(ctx)
		if err != nil {
			t.Fatalf("unexpected error receiving: %v", err)
		}
		if len(got) != 3 || got[1] != 0xFF {
			t.Errorf("binary payload mismatch: %v", got)
		}
	})

	t.Run("Receive_Honors_Context", func(t *testing.T) {
		short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		if _, err := local.Receive(short); err == nil {
			t.Error("expected error when nothing is sent, got nil")
		}
	})

	t.Run("Connection_Lost", func(t *testing.T) {
		closePeer()
		select {
		case <-local.Lost():
		case <-time.After(3 * time.Second):
			t.Fatal("connection lost was not signalled")
		}
	})
}
