package auction

import (
	"context"
	"errors"
	"testing"
	"time"

	"vaultbid.org/internal/escrow"
	"vaultbid.org/internal/stream"
)

func TestSettleWithWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.newRunningAuction(t, "seller", 100, time.Hour)
	f.fund(t, "alice", 1_000)

	if err := f.engine.Bid(ctx, id, "alice", 101); err != nil {
		t.Fatal(err)
	}

	// Still running: the deadline has not passed.
	if _, err := f.engine.EndAuction(ctx, id, "anyone"); !errors.Is(err, ErrAuctionStillRunning) {
		t.Fatalf("expected ErrAuctionStillRunning, got %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	s, err := f.engine.EndAuction(ctx, id, "anyone")
	if err != nil {
		t.Fatalf("end auction: %v", err)
	}
	if !s.Sold || s.Winner != "alice" || s.Amount != 101 {
		t.Fatalf("unexpected settlement: %#v", s)
	}

	// Assets moved to the winner.
	bundle, _ := f.engine.GetVaultAssets(ctx, id)
	for _, pair := range bundle {
		ref := escrow.AssetRef{Kind: escrow.KindUnique, Collection: pair.Collection, TokenID: pair.TokenID}
		if h, _ := f.assets.Holder(ref); h != "alice" {
			t.Fatalf("asset %v holder=%s, want alice", pair, h)
		}
	}
	// Funds moved to the seller.
	sellerBal, _ := f.bank.Balance(ctx, "seller")
	if sellerBal != 101 {
		t.Fatalf("seller balance=%d, want 101", sellerBal)
	}
	// Vault escrow account is empty.
	vaultBal, _ := f.bank.Balance(ctx, vaultAccount(id))
	if vaultBal != 0 {
		t.Fatalf("vault escrow=%d, want 0", vaultBal)
	}

	v, _ := f.engine.GetVault(ctx, id)
	a, _ := f.engine.GetAuction(ctx, id)
	if v.Status != StatusEnded || a.Active || !a.Ended {
		t.Fatalf("terminal state not reached: vault=%s auction=%#v", v.Status, a)
	}

	// Terminal and irreversible.
	if _, err := f.engine.EndAuction(ctx, id, "anyone"); !errors.Is(err, ErrAuctionNotActive) {
		t.Fatalf("expected ErrAuctionNotActive on repeat, got %v", err)
	}
	if err := f.engine.Bid(ctx, id, "alice", 102); !errors.Is(err, ErrAuctionNotActive) {
		t.Fatalf("expected ErrAuctionNotActive for late bid, got %v", err)
	}
}

func TestSettleUnsoldReturnsBundleToSeller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := f.hub.Subscribe(hubCtx)

	id := f.newRunningAuction(t, "seller", 100, time.Hour)

	f.clock.Advance(2 * time.Hour)
	s, err := f.engine.EndAuction(ctx, id, "anyone")
	if err != nil {
		t.Fatalf("end auction: %v", err)
	}
	if s.Sold || s.Winner != "" || s.Amount != 0 {
		t.Fatalf("expected zero-value settlement, got %#v", s)
	}

	bundle, _ := f.engine.GetVaultAssets(ctx, id)
	for _, pair := range bundle {
		ref := escrow.AssetRef{Kind: escrow.KindUnique, Collection: pair.Collection, TokenID: pair.TokenID}
		if h, _ := f.assets.Holder(ref); h != "seller" {
			t.Fatalf("asset %v holder=%s, want seller", pair, h)
		}
	}

	// A zero-value auction.ended event was emitted.
	deadline := time.After(time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Kind == stream.KindAuctionEnded {
				if evt.Amount != 0 || evt.Actor != "" {
					t.Fatalf("expected zero-value settlement event, got %#v", evt)
				}
				return
			}
		case <-deadline:
			t.Fatal("auction.ended event not observed")
		}
	}
}

func TestSettlePermissionlessButOnlyAfterDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.newRunningAuction(t, "seller", 100, time.Hour)

	// Vault without a running auction cannot be settled.
	cols, toks := f.mint(t, "seller2", escrow.AssetRef{Kind: escrow.KindUnique, Collection: "col-z", TokenID: 99})
	idle, err := f.engine.CreateVault(ctx, "seller2", cols, toks, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.EndAuction(ctx, idle, "anyone"); !errors.Is(err, ErrAuctionNotActive) {
		t.Fatalf("expected ErrAuctionNotActive, got %v", err)
	}

	if _, err := f.engine.EndAuction(ctx, id, "random-caller"); !errors.Is(err, ErrAuctionStillRunning) {
		t.Fatalf("expected ErrAuctionStillRunning, got %v", err)
	}
	f.clock.Advance(2 * time.Hour)
	// Not the seller, not a bidder: finalization is permissionless.
	if _, err := f.engine.EndAuction(ctx, id, "random-caller"); err != nil {
		t.Fatalf("permissionless settlement failed: %v", err)
	}
}
