package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"vaultbid.org/internal/auction"
	"vaultbid.org/internal/escrow"
	"vaultbid.org/internal/funds"
	"vaultbid.org/internal/httpapi"
	"vaultbid.org/internal/obs"
	"vaultbid.org/internal/store/pg"
	"vaultbid.org/internal/stream"
	"vaultbid.org/internal/valuation"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("VAULTBID_COMMIT"))

	addr := os.Getenv("VAULTBID_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	cfg := auction.Config{}
	if raw := os.Getenv("VAULTBID_BID_WINDOW_SECONDS"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs <= 0 {
			log.Fatalf("invalid VAULTBID_BID_WINDOW_SECONDS: %q", raw)
		}
		cfg.BidWindow = time.Duration(secs) * time.Second
	}
	if raw := os.Getenv("VAULTBID_MIN_INCREMENT"); raw != "" {
		inc, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || inc == 0 {
			log.Fatalf("invalid VAULTBID_MIN_INCREMENT: %q", raw)
		}
		cfg.MinIncrement = inc
	}

	hub := stream.New()
	bank := funds.NewInMemory()
	engine := auction.NewEngine(escrow.NewTable(), bank, hub, cfg)

	ctx, stopJournal := context.WithCancel(context.Background())
	defer stopJournal()

	var journal *pg.Journal
	if dsn := os.Getenv("VAULTBID_PG_DSN"); dsn != "" {
		var err error
		journal, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open journal: %v", err)
		}
		go journal.Run(ctx, hub)
	}

	var advisor valuation.Advisor
	if url := os.Getenv("VAULTBID_APPRAISER_URL"); url != "" {
		advisor = valuation.HTTPAdvisor{Endpoint: url, APIKey: os.Getenv("VAULTBID_APPRAISER_KEY")}
	} else {
		advisor = valuation.Static{}
	}

	rp := httpapi.ReadyProbe{}
	var journalIface httpapi.EventJournal
	if journal != nil {
		rp.DB = journal.DB()
		journalIface = journal
	}

	api := httpapi.New(rp, version, engine, bank, hub, journalIface, advisor)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // SSE connections stay open
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting vaultbid-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	stopJournal()
	if journal != nil {
		_ = journal.Close()
	}
	log.Println("Stopped")
}
