package auction

import (
	"errors"
	"time"

	"vaultbid.org/internal/escrow"
)

// Status is the lifecycle state of a vault.
type Status string

const (
	StatusActive           Status = "active"
	StatusAuctionScheduled Status = "auction_scheduled"
	StatusAuctionRunning   Status = "auction_running"
	StatusEnded            Status = "ended"
	StatusCancelled        Status = "cancelled"
)

// Vault is an escrowed bundle of assets owned collectively for auction
// purposes. The record is retained for audit once the vault reaches a
// terminal status.
type Vault struct {
	ID          uint64            `json:"id"`
	Seller      string            `json:"seller"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Assets      []escrow.AssetRef `json:"assets"`
	Status      Status            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Auction is the time-boxed bidding process attached to exactly one vault.
// HighestBidder is empty until the first accepted bid.
type Auction struct {
	VaultID       uint64        `json:"vault_id"`
	StartPrice    uint64        `json:"start_price"`
	CurrentBid    uint64        `json:"current_bid"`
	HighestBidder string        `json:"highest_bidder,omitempty"`
	Duration      time.Duration `json:"duration"`
	StartTime     time.Time     `json:"start_time,omitzero"`
	LastBidTime   time.Time     `json:"last_bid_time,omitzero"`
	BidWindow     time.Duration `json:"bid_window"`
	Active        bool          `json:"active"`
	Ended         bool          `json:"ended"`
}

// EffectiveDeadline is the earlier of the hard end time and the rolling
// anti-snipe deadline re-armed by the latest accepted bid.
func (a Auction) EffectiveDeadline() time.Time {
	hard := a.StartTime.Add(a.Duration)
	soft := a.LastBidTime.Add(a.BidWindow)
	if soft.Before(hard) {
		return soft
	}
	return hard
}

// Timing is the deadline view consumed by countdown displays.
type Timing struct {
	LastBidTime time.Time     `json:"last_bid_time,omitzero"`
	BidWindow   time.Duration `json:"bid_window"`
	EndTime     time.Time     `json:"end_time,omitzero"` // hard deadline: start time + duration
	Active      bool          `json:"active"`
	Ended       bool          `json:"ended"`
}

// Summary is the listing-card view of a vault and its auction.
type Summary struct {
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Live          bool          `json:"live"`
	Ended         bool          `json:"ended"`
	TimeRemaining time.Duration `json:"time_remaining"`
	MinimumPrice  uint64        `json:"minimum_price"`
}

// Settlement reports the outcome of a finalized auction.
type Settlement struct {
	VaultID uint64 `json:"vault_id"`
	Sold    bool   `json:"sold"`
	Winner  string `json:"winner,omitempty"`
	Amount  uint64 `json:"amount"`
}

var (
	ErrVaultNotFound       = errors.New("auction: vault not found")
	ErrInvalidState        = errors.New("auction: operation not valid in current state")
	ErrNotSeller           = errors.New("auction: caller is not the vault seller")
	ErrEmptyVault          = errors.New("auction: vault must contain at least one asset")
	ErrLengthMismatch      = errors.New("auction: collections and token ids length mismatch")
	ErrInvalidDuration     = errors.New("auction: duration must be positive")
	ErrInvalidBidAmount    = errors.New("auction: bid must equal current bid plus minimum increment")
	ErrAuctionNotActive    = errors.New("auction: auction not active")
	ErrAuctionExpired      = errors.New("auction: auction expired")
	ErrAuctionStillRunning = errors.New("auction: auction still running")
	ErrReentrantCall       = errors.New("auction: call rejected, payout in flight")
	ErrNoPendingRefund     = errors.New("auction: no pending refund")
)
