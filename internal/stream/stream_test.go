package stream

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeReceivesPublished(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := h.Subscribe(ctx)
	evt := NewEvent(KindBidPlaced, 7, "bidder-a")
	evt.Amount = 42
	h.Publish(evt)

	select {
	case got := <-ch:
		if got.Kind != KindBidPlaced || got.VaultID != 7 || got.Amount != 42 {
			t.Fatalf("unexpected event: %#v", got)
		}
		if got.ID == "" || got.Timestamp.IsZero() {
			t.Fatalf("event missing id or timestamp: %#v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSubscriberChannelClosedOnCancel(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.Subscribe(ctx)
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}

	// Publishing after unsubscribe must not panic or block.
	h.Publish(NewEvent(KindVaultCreated, 1, "seller"))
}
