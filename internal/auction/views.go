package auction

import (
	"context"
	"math"
	"sort"

	"vaultbid.org/internal/escrow"
)

// GetVault returns a copy of the vault record.
func (e *Engine) GetVault(ctx context.Context, vaultID uint64) (Vault, error) {
	vs, err := e.state(vaultID)
	if err != nil {
		return Vault{}, err
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return copyVault(vs.vault), nil
}

// GetAuction returns a copy of the auction record. A vault with no auction
// attached yields a zero-valued record with only the vault id set.
func (e *Engine) GetAuction(ctx context.Context, vaultID uint64) (Auction, error) {
	vs, err := e.state(vaultID)
	if err != nil {
		return Auction{}, err
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.auction == nil {
		return Auction{VaultID: vaultID}, nil
	}
	return *vs.auction, nil
}

// GetVaultAssets returns the (collection, token id) pairs the vault was
// created with, in escrow order.
func (e *Engine) GetVaultAssets(ctx context.Context, vaultID uint64) ([]AssetPair, error) {
	vs, err := e.state(vaultID)
	if err != nil {
		return nil, err
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	pairs := make([]AssetPair, len(vs.vault.Assets))
	for i, ref := range vs.vault.Assets {
		pairs[i] = AssetPair{Collection: ref.Collection, TokenID: ref.TokenID}
	}
	return pairs, nil
}

// GetAuctionTiming returns the deadline view. Zero-valued when no auction
// is attached.
func (e *Engine) GetAuctionTiming(ctx context.Context, vaultID uint64) (Timing, error) {
	vs, err := e.state(vaultID)
	if err != nil {
		return Timing{}, err
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	a := vs.auction
	if a == nil {
		return Timing{}, nil
	}
	t := Timing{
		LastBidTime: a.LastBidTime,
		BidWindow:   a.BidWindow,
		Active:      a.Active,
		Ended:       a.Ended,
	}
	if !a.StartTime.IsZero() {
		t.EndTime = a.StartTime.Add(a.Duration)
	}
	return t, nil
}

// ListAuctionIDs returns, in ascending order, every vault with an auction
// attached (scheduled, running or ended).
func (e *Engine) ListAuctionIDs(ctx context.Context) ([]uint64, error) {
	e.mu.RLock()
	states := make([]*vaultState, 0, len(e.vaults))
	for _, vs := range e.vaults {
		states = append(states, vs)
	}
	e.mu.RUnlock()

	var out []uint64
	for _, vs := range states {
		vs.mu.Lock()
		if vs.auction != nil {
			out = append(out, vs.vault.ID)
		}
		vs.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// GetAuctionSummary returns the listing-card view. MinimumPrice is the next
// admissible bid while live, the start price while scheduled, zero otherwise.
func (e *Engine) GetAuctionSummary(ctx context.Context, vaultID uint64) (Summary, error) {
	vs, err := e.state(vaultID)
	if err != nil {
		return Summary{}, err
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()

	s := Summary{
		Name:        vs.vault.Name,
		Description: vs.vault.Description,
	}
	a := vs.auction
	if a == nil {
		return s, nil
	}
	s.Live = a.Active && !a.Ended
	s.Ended = a.Ended
	switch {
	case s.Live:
		if remaining := a.EffectiveDeadline().Sub(e.cfg.Now()); remaining > 0 {
			s.TimeRemaining = remaining
		}
		if a.CurrentBid <= math.MaxUint64-e.cfg.MinIncrement {
			s.MinimumPrice = a.CurrentBid + e.cfg.MinIncrement
		} else {
			s.MinimumPrice = math.MaxUint64
		}
	case !a.Ended:
		s.MinimumPrice = a.StartPrice
	}
	return s, nil
}

func copyVault(v Vault) Vault {
	out := v
	out.Assets = make([]escrow.AssetRef, len(v.Assets))
	copy(out.Assets, v.Assets)
	return out
}
