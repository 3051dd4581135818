package stream

import (
	"context"
	"sync"
	"time"

	"vaultbid.org/internal/ids"
)

// Kind names an auction lifecycle event.
type Kind string

const (
	KindVaultCreated     Kind = "vault.created"
	KindVaultCancelled   Kind = "vault.cancelled"
	KindAuctionScheduled Kind = "auction.scheduled"
	KindAuctionStarted   Kind = "auction.started"
	KindBidPlaced        Kind = "auction.bid"
	KindAuctionCancelled Kind = "auction.cancelled"
	KindAuctionEnded     Kind = "auction.ended"
)

// Event is one auction lifecycle notification. The presentation layer
// reconstructs state from these without polling every field.
type Event struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	VaultID      uint64    `json:"vault_id"`
	Actor        string    `json:"actor,omitempty"`        // the address acting: seller, bidder, finalizer
	Counterparty string    `json:"counterparty,omitempty"` // displaced bidder on a bid, winner on settlement
	Amount       uint64    `json:"amount,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewEvent stamps an event with an id and timestamp.
func NewEvent(kind Kind, vaultID uint64, actor string) Event {
	return Event{
		ID:        ids.New(),
		Kind:      kind,
		VaultID:   vaultID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
	}
}

// Hub fan-outs auction events to all active subscribers (SSE clients, the
// durable journal, tests).
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (h *Hub) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 64)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
