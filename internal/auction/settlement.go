package auction

import (
	"context"
	"fmt"

	"vaultbid.org/internal/stream"
)

// EndAuction finalizes a running auction once its effective deadline has
// passed. Callable by anyone. With a winner, the bundle goes to the winner
// and the standing bid to the seller; unbid, the bundle returns to the
// seller and a zero-value settlement is emitted. The transition is terminal:
// repeated calls fail ErrAuctionNotActive.
func (e *Engine) EndAuction(ctx context.Context, vaultID uint64, caller string) (Settlement, error) {
	vs, err := e.state(vaultID)
	if err != nil {
		return Settlement{}, err
	}
	if err := vs.enter(); err != nil {
		return Settlement{}, err
	}

	a := vs.auction
	if a == nil || !a.Active || a.Ended {
		vs.mu.Unlock()
		return Settlement{}, ErrAuctionNotActive
	}
	if e.cfg.Now().Before(a.EffectiveDeadline()) {
		vs.mu.Unlock()
		return Settlement{}, ErrAuctionStillRunning
	}

	winner, amount := a.HighestBidder, a.CurrentBid
	seller := vs.vault.Seller

	// Commit the terminal state before any transfer leaves the engine.
	a.Active = false
	a.Ended = true
	vs.vault.Status = StatusEnded

	settlement := Settlement{VaultID: vaultID}
	if winner != "" {
		settlement.Sold = true
		settlement.Winner = winner
		settlement.Amount = amount
	}

	vs.beginPayout()
	recipient := seller
	if winner != "" {
		recipient = winner
	}
	releaseErr := e.assets.Release(vaultID, recipient)
	if winner != "" {
		// Exactly-once even if a retried call races the state flip: the
		// settlement key makes the payout an idempotent replay.
		if _, err := e.funds.Move(ctx, vaultAccount(vaultID), seller, amount, settleKey(vaultID)); err != nil {
			vs.park(seller, amount)
		}
	}
	vs.endPayout()

	if releaseErr != nil {
		return Settlement{}, releaseErr
	}

	e.publish(stream.KindAuctionEnded, vaultID, winner, caller, settlement.Amount)
	return settlement, nil
}

func settleKey(vaultID uint64) string {
	return fmt.Sprintf("settle:%d", vaultID)
}
