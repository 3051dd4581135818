package auction

import (
	"context"
	"fmt"
	"sync"

	"vaultbid.org/internal/escrow"
	"vaultbid.org/internal/funds"
	"vaultbid.org/internal/stream"
)

// Engine implements Service. All state transitions for a given vault are
// serialized on that vault's lock; distinct vaults never contend. Funds are
// never held by the engine itself: every amount lives in the funds ledger,
// either on a bidder account or on the vault's escrow account.
type Engine struct {
	cfg    Config
	assets *escrow.Table
	funds  funds.Ledger
	events *stream.Hub // optional

	mu     sync.RWMutex // guards the vault index and id assignment
	nextID uint64
	vaults map[uint64]*vaultState
}

// vaultState is the per-vault mutable record. inFlight is the reentrancy
// guard: it is armed (under mu) before any external-facing payout and
// cleared when the payout returns, so a call into Bid or EndAuction for
// the same vault during the payout fails instead of interleaving.
type vaultState struct {
	mu       sync.Mutex
	inFlight bool
	vault    Vault
	auction  *Auction
	pending  map[string]uint64 // address -> parked payout awaiting ClaimRefund
}

// NewEngine creates an engine over the given custody table and funds ledger.
// hub may be nil to disable event publication.
func NewEngine(assets *escrow.Table, bank funds.Ledger, hub *stream.Hub, cfg Config) *Engine {
	return &Engine{
		cfg:    cfg.withDefaults(),
		assets: assets,
		funds:  bank,
		events: hub,
		vaults: make(map[uint64]*vaultState),
	}
}

var _ Service = (*Engine)(nil)

// CreateVault escrows the listed assets and registers a fresh vault.
// The whole bundle moves or none of it does.
func (e *Engine) CreateVault(ctx context.Context, seller string, collections []string, tokenIDs []uint64, name, description string) (uint64, error) {
	if len(collections) == 0 && len(tokenIDs) == 0 {
		return 0, ErrEmptyVault
	}
	if len(collections) != len(tokenIDs) {
		return 0, ErrLengthMismatch
	}

	bundle := make([]escrow.AssetRef, len(collections))
	for i := range collections {
		bundle[i] = escrow.AssetRef{Kind: escrow.KindUnique, Collection: collections[i], TokenID: tokenIDs[i]}
	}

	// Ids are assigned monotonically and never reused, even when escrow
	// rejects the bundle.
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.mu.Unlock()

	if err := e.assets.Lock(id, seller, bundle); err != nil {
		return 0, err
	}

	vs := &vaultState{
		vault: Vault{
			ID:          id,
			Seller:      seller,
			Name:        name,
			Description: description,
			Assets:      bundle,
			Status:      StatusActive,
			CreatedAt:   e.cfg.Now(),
		},
		pending: make(map[string]uint64),
	}
	e.mu.Lock()
	e.vaults[id] = vs
	e.mu.Unlock()

	e.publish(stream.KindVaultCreated, id, seller, "", 0)
	return id, nil
}

// CancelVault returns the bundle to the seller and retires the vault.
// Only reachable before activation, so no funds are in flight.
func (e *Engine) CancelVault(ctx context.Context, vaultID uint64, caller string) error {
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
	switch vs.vault.Status {
	case StatusActive, StatusAuctionScheduled:
	default:
		return ErrInvalidState
	}

	if err := e.assets.Release(vaultID, vs.vault.Seller); err != nil {
		return err
	}
	vs.vault.Status = StatusCancelled
	vs.auction = nil

	e.publish(stream.KindVaultCancelled, vaultID, caller, "", 0)
	return nil
}

// IsVaultSeller reports whether identity created the vault. Pure lookup.
func (e *Engine) IsVaultSeller(ctx context.Context, vaultID uint64, identity string) (bool, error) {
	vs, err := e.state(vaultID)
	if err != nil {
		return false, err
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.vault.Seller == identity, nil
}

// --- internals ---

func (e *Engine) state(vaultID uint64) (*vaultState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	vs, ok := e.vaults[vaultID]
	if !ok {
		return nil, ErrVaultNotFound
	}
	return vs, nil
}

// enter acquires the vault lock, rejecting the call outright when a payout
// for this vault is still in flight. On success the caller owns vs.mu.
func (vs *vaultState) enter() error {
	vs.mu.Lock()
	if vs.inFlight {
		vs.mu.Unlock()
		return ErrReentrantCall
	}
	return nil
}

// beginPayout arms the reentrancy guard and releases the vault lock so the
// payout can run without holding it. Callers must pair it with endPayout.
func (vs *vaultState) beginPayout() {
	vs.inFlight = true
	vs.mu.Unlock()
}

func (vs *vaultState) endPayout() {
	vs.mu.Lock()
	vs.inFlight = false
	vs.mu.Unlock()
}

// vaultAccount names the funds-ledger account holding a vault's standing bid.
func vaultAccount(vaultID uint64) string {
	return fmt.Sprintf("vault:%d", vaultID)
}

func (e *Engine) publish(kind stream.Kind, vaultID uint64, actor, counterparty string, amount uint64) {
	if e.events == nil {
		return
	}
	evt := stream.NewEvent(kind, vaultID, actor)
	evt.Counterparty = counterparty
	evt.Amount = amount
	e.events.Publish(evt)
}
