package funds

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"vaultbid.org/internal/ids"
)

// Amounts are minor units of the auction currency. Unsigned, no floats;
// additions are overflow-checked.

var (
	ErrUnknownAccount    = errors.New("funds: unknown account")
	ErrInvalidAmount     = errors.New("funds: amount must be > 0")
	ErrInsufficientFunds = errors.New("funds: insufficient funds")
	ErrOverflow          = errors.New("funds: balance overflow")
)

// Transfer records a completed movement between two accounts.
type Transfer struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Amount         uint64    `json:"amount"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Sequence       uint64    `json:"sequence"`
}

// Ledger owns every balance the auction engine touches: bidder deposits,
// per-vault escrow accounts and seller proceeds.
type Ledger interface {
	Deposit(ctx context.Context, account string, amount uint64) (uint64, error)
	Balance(ctx context.Context, account string) (uint64, error)
	Move(ctx context.Context, from, to string, amount uint64, idemKey string) (Transfer, error)
	ListTransfers(ctx context.Context, limit int, afterSeq uint64) ([]Transfer, uint64, error)
}

// InMemory implements Ledger with in-process concurrency safety.
type InMemory struct {
	mu       sync.RWMutex
	balances map[string]uint64
	seq      uint64
	log      []Transfer
	idem     map[string]Transfer // idemKey -> transfer
}

// NewInMemory creates a fresh empty ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		balances: make(map[string]uint64),
		idem:     make(map[string]Transfer),
	}
}

// Deposit credits an account, creating it on first use, and returns the new
// balance.
func (l *InMemory) Deposit(ctx context.Context, account string, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.balances[account]
	if cur > math.MaxUint64-amount {
		return 0, ErrOverflow
	}
	l.balances[account] = cur + amount
	return cur + amount, nil
}

func (l *InMemory) Balance(ctx context.Context, account string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bal, ok := l.balances[account]
	if !ok {
		return 0, ErrUnknownAccount
	}
	return bal, nil
}

// Move debits from and credits to in one step. The source account must exist
// with sufficient funds; the destination is created on first credit. A
// non-empty idemKey makes the call replay-safe: a repeated key returns the
// original transfer without moving funds again.
func (l *InMemory) Move(ctx context.Context, from, to string, amount uint64, idemKey string) (Transfer, error) {
	if amount == 0 {
		return Transfer{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if idemKey != "" {
		if tr, ok := l.idem[idemKey]; ok {
			return tr, nil
		}
	}

	fromBal, ok := l.balances[from]
	if !ok {
		return Transfer{}, ErrUnknownAccount
	}
	if fromBal < amount {
		return Transfer{}, ErrInsufficientFunds
	}
	toBal := l.balances[to]
	if toBal > math.MaxUint64-amount {
		return Transfer{}, ErrOverflow
	}

	l.balances[from] = fromBal - amount
	l.balances[to] = toBal + amount

	l.seq++
	tr := Transfer{
		ID:             ids.New(),
		CreatedAt:      time.Now().UTC(),
		From:           from,
		To:             to,
		Amount:         amount,
		IdempotencyKey: idemKey,
		Sequence:       l.seq,
	}
	l.log = append(l.log, tr)
	if idemKey != "" {
		l.idem[idemKey] = tr
	}
	return tr, nil
}

func (l *InMemory) ListTransfers(ctx context.Context, limit int, afterSeq uint64) ([]Transfer, uint64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var res []Transfer
	var last uint64
	for _, tr := range l.log {
		if tr.Sequence <= afterSeq {
			continue
		}
		res = append(res, tr)
		last = tr.Sequence
		if len(res) >= limit {
			break
		}
	}
	return res, last, nil
}
