package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"vaultbid.org/internal/auction"
	"vaultbid.org/internal/escrow"
	"vaultbid.org/internal/funds"
	"vaultbid.org/internal/sim"
	"vaultbid.org/internal/stream"
)

// End-to-end in-process smoke run: vault, schedule, start, competing bids,
// anti-snipe window, settlement. Exits non-zero on any conservation or
// custody violation.
func main() {
	log.SetFlags(0)

	run := uuid.NewString()[:8]
	scenario := sim.ShowcaseScenario()
	seller := scenario.Seller.Address + "-" + run

	assets := escrow.NewTable()
	bank := funds.NewInMemory()
	hub := stream.New()

	const bidWindow = 2 * time.Second
	engine := auction.NewEngine(assets, bank, hub, auction.Config{
		MinIncrement: 1,
		BidWindow:    bidWindow,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var collections []string
	var tokenIDs []uint64
	for _, ref := range scenario.Assets {
		if err := assets.Mint(seller, ref); err != nil {
			log.Fatalf("mint %s: %v", ref, err)
		}
		collections = append(collections, ref.Collection)
		tokenIDs = append(tokenIDs, ref.TokenID)
	}

	var total uint64
	bidders := make([]string, 0, len(scenario.Bidders))
	for _, b := range scenario.Bidders {
		addr := b.Address + "-" + run
		if _, err := bank.Deposit(ctx, addr, b.Funding); err != nil {
			log.Fatalf("fund %s: %v", addr, err)
		}
		total += b.Funding
		bidders = append(bidders, addr)
	}

	vaultID, err := engine.CreateVault(ctx, seller, collections, tokenIDs, scenario.Name, "smoke run")
	if err != nil {
		log.Fatalf("create vault: %v", err)
	}
	if err := engine.CreateAuction(ctx, vaultID, seller, scenario.StartPrice, time.Minute); err != nil {
		log.Fatalf("create auction: %v", err)
	}
	if err := engine.StartAuction(ctx, vaultID, seller); err != nil {
		log.Fatalf("start auction: %v", err)
	}

	// Competing exact-increment bids from alternating bidders.
	amount := scenario.StartPrice
	for i := 0; i < 6; i++ {
		amount++
		bidder := bidders[i%len(bidders)]
		if err := engine.Bid(ctx, vaultID, bidder, amount); err != nil {
			log.Fatalf("bid %d by %s: %v", amount, bidder, err)
		}
	}
	winner := bidders[5%len(bidders)]

	// Early settlement must be refused while the bid window is open.
	if _, err := engine.EndAuction(ctx, vaultID, seller); err != auction.ErrAuctionStillRunning {
		log.Fatalf("expected still-running refusal, got %v", err)
	}

	// Wait out the anti-snipe window, then settle.
	time.Sleep(bidWindow + 500*time.Millisecond)
	settlement, err := engine.EndAuction(ctx, vaultID, seller)
	if err != nil {
		log.Fatalf("end auction: %v", err)
	}
	if !settlement.Sold || settlement.Winner != winner || settlement.Amount != amount {
		log.Fatalf("unexpected settlement: %+v", settlement)
	}

	// Custody: every asset now belongs to the winner.
	for _, ref := range scenario.Assets {
		holder, err := assets.Holder(ref)
		if err != nil || holder != winner {
			log.Fatalf("custody violation on %s: holder=%s err=%v", ref, holder, err)
		}
	}

	// Conservation: seller proceeds + remaining bidder balances == funded total.
	var after uint64
	for _, addr := range append(bidders, seller) {
		bal, err := bank.Balance(ctx, addr)
		if err != nil {
			log.Fatalf("balance %s: %v", addr, err)
		}
		after += bal
	}
	if after != total {
		log.Fatalf("conservation failed: funded=%d accounted=%d", total, after)
	}

	fmt.Printf("✅ auction smoke test passed: vault=%d winner=%s price=%d\n", vaultID, winner, amount)
}
