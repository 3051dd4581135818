package auction

import (
	"context"
	"time"
)

// Service defines every vault and auction operation the engine exposes.
// Caller identity is an address string; the engine performs address-based
// capability checks only.
type Service interface {
	// Vault registry.
	CreateVault(ctx context.Context, seller string, collections []string, tokenIDs []uint64, name, description string) (uint64, error)
	CancelVault(ctx context.Context, vaultID uint64, caller string) error
	IsVaultSeller(ctx context.Context, vaultID uint64, identity string) (bool, error)

	// Auction scheduling.
	CreateAuction(ctx context.Context, vaultID uint64, caller string, startPrice uint64, duration time.Duration) error
	StartAuction(ctx context.Context, vaultID uint64, caller string) error
	CancelAuction(ctx context.Context, vaultID uint64, caller string) error

	// Bidding.
	Bid(ctx context.Context, vaultID uint64, bidder string, amount uint64) error
	ClaimRefund(ctx context.Context, vaultID uint64, claimant string) (uint64, error)
	PendingRefund(ctx context.Context, vaultID uint64, claimant string) (uint64, error)

	// Settlement. Permissionless once the effective deadline has passed.
	EndAuction(ctx context.Context, vaultID uint64, caller string) (Settlement, error)

	// Read-only projections.
	GetVault(ctx context.Context, vaultID uint64) (Vault, error)
	GetAuction(ctx context.Context, vaultID uint64) (Auction, error)
	GetVaultAssets(ctx context.Context, vaultID uint64) ([]AssetPair, error)
	GetAuctionTiming(ctx context.Context, vaultID uint64) (Timing, error)
	ListAuctionIDs(ctx context.Context) ([]uint64, error)
	GetAuctionSummary(ctx context.Context, vaultID uint64) (Summary, error)
}

// AssetPair is the (collection, token id) projection of an escrowed asset.
type AssetPair struct {
	Collection string `json:"collection"`
	TokenID    uint64 `json:"token_id"`
}

// Defaults for protocol constants. MinIncrement is the single source of
// truth for the admissible bid step; it is enforced here, never at the
// calling layer.
const (
	DefaultMinIncrement uint64 = 1
	DefaultBidWindow           = 5 * time.Minute
)

// Config carries the protocol constants and the clock.
type Config struct {
	MinIncrement uint64
	BidWindow    time.Duration
	Now          func() time.Time // test clock injection; defaults to UTC wall time
}

func (c Config) withDefaults() Config {
	if c.MinIncrement == 0 {
		c.MinIncrement = DefaultMinIncrement
	}
	if c.BidWindow <= 0 {
		c.BidWindow = DefaultBidWindow
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}
