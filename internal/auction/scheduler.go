package auction

import (
	"context"
	"time"

	"vaultbid.org/internal/stream"
)

// CreateAuction binds auction parameters to an Active vault. The auction is
// left inactive; bids are not accepted until StartAuction.
func (e *Engine) CreateAuction(ctx context.Context, vaultID uint64, caller string, startPrice uint64, duration time.Duration) error {
	vs, err := e.state(vaultID)
	if err != nil {
		return err
	}
	if err := vs.enter(); err != nil {
		return err
	}
	defer vs.mu.Unlock()

	if vs.vault.Seller != caller {
		return ErrNotSeller
	}
	if duration <= 0 {
		return ErrInvalidDuration
	}
	if vs.vault.Status != StatusActive {
		return ErrInvalidState
	}

	vs.auction = &Auction{
		VaultID:    vaultID,
		StartPrice: startPrice,
		Duration:   duration,
		BidWindow:  e.cfg.BidWindow,
	}
	vs.vault.Status = StatusAuctionScheduled

	e.publish(stream.KindAuctionScheduled, vaultID, caller, "", startPrice)
	return nil
}

// StartAuction activates a scheduled auction. The opening price becomes the
// current bid and both clocks start now.
func (e *Engine) StartAuction(ctx context.Context, vaultID uint64, caller string) error {
	vs, err := e.state(vaultID)
	if err != nil {
		return err
	}
	if err := vs.enter(); err != nil {
		return err
	}
	defer vs.mu.Unlock()

	if vs.vault.Seller != caller {
		return ErrNotSeller
	}
	if vs.vault.Status != StatusAuctionScheduled || vs.auction == nil {
		return ErrInvalidState
	}

	now := e.cfg.Now()
	a := vs.auction
	a.Active = true
	a.CurrentBid = a.StartPrice
	a.StartTime = now
	a.LastBidTime = now
	vs.vault.Status = StatusAuctionRunning

	e.publish(stream.KindAuctionStarted, vaultID, caller, "", a.StartPrice)
	return nil
}

// CancelAuction clears the parameters of a scheduled auction and returns the
// vault to Active. A running auction cannot be cancelled: cancellation is
// only reachable before activation, while no funds are in flight. Assets
// remain escrowed.
func (e *Engine) CancelAuction(ctx context.Context, vaultID uint64, caller string) error {
	vs, err := e.state(vaultID)
	if err != nil {
		return err
	}
	if err := vs.enter(); err != nil {
		return err
	}
	defer vs.mu.Unlock()

	if vs.vault.Seller != caller {
		return ErrNotSeller
	}
	if vs.auction == nil || vs.auction.Active || vs.vault.Status != StatusAuctionScheduled {
		return ErrInvalidState
	}

	vs.auction = nil
	vs.vault.Status = StatusActive

	e.publish(stream.KindAuctionCancelled, vaultID, caller, "", 0)
	return nil
}
