package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"vaultbid.org/internal/auction"
	"vaultbid.org/internal/escrow"
	"vaultbid.org/internal/funds"
	"vaultbid.org/internal/httpapi"
	"vaultbid.org/internal/obs"
	"vaultbid.org/internal/sim"
	"vaultbid.org/internal/stream"
	"vaultbid.org/internal/valuation"
)

// Runs a self-contained demo: an in-process API server plus a scripted
// bidder loop, so /v1/stream shows a live auction end to end.
func main() {
	var (
		addr     = flag.String("addr", ":8080", "listen address")
		interval = flag.Duration("interval", 2*time.Second, "delay between scripted bids")
		window   = flag.Duration("bid-window", 30*time.Second, "anti-snipe bid window")
		duration = flag.Duration("duration", 5*time.Minute, "hard auction duration")
		seed     = flag.Int64("seed", 0, "scenario seed (0 = time-based)")
	)
	flag.Parse()

	obs.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	assets := escrow.NewTable()
	bank := funds.NewInMemory()
	hub := stream.New()
	engine := auction.NewEngine(assets, bank, hub, auction.Config{
		MinIncrement: 1,
		BidWindow:    *window,
	})

	api := httpapi.New(httpapi.ReadyProbe{}, "demo", engine, bank, hub, nil, valuation.Static{})
	srv := &http.Server{Addr: *addr, Handler: api.Handler()}
	go func() {
		log.Printf("Demo API listening on %s (watch /v1/stream)", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	gen := sim.NewGenerator(*seed)
	scenario := gen.Scenario()

	var collections []string
	var tokenIDs []uint64
	for _, ref := range scenario.Assets {
		if err := assets.Mint(scenario.Seller.Address, ref); err != nil {
			log.Fatalf("mint %s: %v", ref, err)
		}
		collections = append(collections, ref.Collection)
		tokenIDs = append(tokenIDs, ref.TokenID)
	}
	for _, b := range scenario.Bidders {
		if _, err := bank.Deposit(ctx, b.Address, b.Funding); err != nil {
			log.Fatalf("fund %s: %v", b.Address, err)
		}
	}

	vaultID, err := engine.CreateVault(ctx, scenario.Seller.Address, collections, tokenIDs, scenario.Name, "live demo bundle")
	if err != nil {
		log.Fatalf("create vault: %v", err)
	}
	if err := engine.CreateAuction(ctx, vaultID, scenario.Seller.Address, scenario.StartPrice, *duration); err != nil {
		log.Fatalf("create auction: %v", err)
	}
	if err := engine.StartAuction(ctx, vaultID, scenario.Seller.Address); err != nil {
		log.Fatalf("start auction: %v", err)
	}
	log.Printf("Auction running: vault=%d start_price=%d duration=%s", vaultID, scenario.StartPrice, *duration)

	var counter sim.Counter
	amount := scenario.StartPrice
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			amount++
			bidder := gen.NextBidder()
			if err := engine.Bid(ctx, vaultID, bidder, amount); err != nil {
				log.Printf("bid %d by %s refused: %v", amount, bidder, err)
				break loop
			}
			counter.Add(amount)
			log.Printf("bid accepted: %s -> %d", bidder, amount)
		}
	}

	// Let the bid window lapse, then settle on the way out.
	if counter.Bids > 0 {
		log.Printf("waiting %s for the bid window to close", *window)
		select {
		case <-time.After(*window + time.Second):
		case <-ctx.Done():
		}
	}
	settleCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if settlement, err := engine.EndAuction(settleCtx, vaultID, scenario.Seller.Address); err != nil {
		log.Printf("settlement skipped: %v", err)
	} else {
		log.Printf("settled: sold=%v winner=%s amount=%d after %d bids (peak %d)",
			settlement.Sold, settlement.Winner, settlement.Amount, counter.Bids, counter.HighestBid)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
}
