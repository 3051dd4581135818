package auction

import (
	"context"
	"math"

	"vaultbid.org/internal/stream"
)

// Bid places a competitive bid. The amount must equal the current bid plus
// the minimum increment exactly; ties and over-bids are both rejected so
// price discovery stays deterministic. The displaced bidder is refunded
// through the funds ledger; a rejected refund parks the amount as a pending
// return instead of blocking the accepted bid.
func (e *Engine) Bid(ctx context.Context, vaultID uint64, bidder string, amount uint64) error {
	vs, err := e.state(vaultID)
	if err != nil {
		return err
	}
	if err := vs.enter(); err != nil {
		return err
	}

	a := vs.auction
	if a == nil || !a.Active || a.Ended {
		vs.mu.Unlock()
		return ErrAuctionNotActive
	}
	now := e.cfg.Now()
	if !now.Before(a.EffectiveDeadline()) {
		vs.mu.Unlock()
		return ErrAuctionExpired
	}
	if a.CurrentBid > math.MaxUint64-e.cfg.MinIncrement || amount != a.CurrentBid+e.cfg.MinIncrement {
		vs.mu.Unlock()
		return ErrInvalidBidAmount
	}

	// Secure the incoming bid before touching auction state: a failed debit
	// rejects the bid with everything unchanged.
	if _, err := e.funds.Move(ctx, bidder, vaultAccount(vaultID), amount, ""); err != nil {
		vs.mu.Unlock()
		return err
	}

	prevBidder, prevAmount := a.HighestBidder, a.CurrentBid
	a.CurrentBid = amount
	a.HighestBidder = bidder
	a.LastBidTime = now // re-arms the anti-snipe window

	// State is committed; the refund runs behind the in-flight guard so a
	// payout-triggered call back into the engine cannot interleave.
	vs.beginPayout()
	if prevBidder != "" {
		if _, err := e.funds.Move(ctx, vaultAccount(vaultID), prevBidder, prevAmount, ""); err != nil {
			vs.park(prevBidder, prevAmount)
		}
	}
	vs.endPayout()

	e.publish(stream.KindBidPlaced, vaultID, bidder, prevBidder, amount)
	return nil
}

// PendingRefund reports the amount parked for claimant on this vault.
func (e *Engine) PendingRefund(ctx context.Context, vaultID uint64, claimant string) (uint64, error) {
	vs, err := e.state(vaultID)
	if err != nil {
		return 0, err
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.pending[claimant], nil
}

// ClaimRefund pays out a parked return exactly once. The entry is removed
// before the transfer and re-parked only if the transfer is rejected, so the
// same funds can never be claimed twice.
func (e *Engine) ClaimRefund(ctx context.Context, vaultID uint64, claimant string) (uint64, error) {
	vs, err := e.state(vaultID)
	if err != nil {
		return 0, err
	}
	if err := vs.enter(); err != nil {
		return 0, err
	}

	amount := vs.pending[claimant]
	if amount == 0 {
		vs.mu.Unlock()
		return 0, ErrNoPendingRefund
	}
	delete(vs.pending, claimant)

	vs.beginPayout()
	_, moveErr := e.funds.Move(ctx, vaultAccount(vaultID), claimant, amount, "")
	if moveErr != nil {
		vs.park(claimant, amount)
	}
	vs.endPayout()

	if moveErr != nil {
		return 0, moveErr
	}
	return amount, nil
}

// park records a payout that could not be pushed. Caller need not hold vs.mu.
func (vs *vaultState) park(address string, amount uint64) {
	vs.mu.Lock()
	vs.pending[address] += amount
	vs.mu.Unlock()
}
