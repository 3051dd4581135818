package escrow

import (
	"errors"
	"fmt"
	"sync"
)

// AssetKind tags the standard an asset conforms to. Escrow operations
// dispatch on the tag; only single-owner assets exist today.
type AssetKind string

// KindUnique is a single-owner asset (one holder per token id).
const KindUnique AssetKind = "unique"

// AssetRef identifies one asset inside a collection.
type AssetRef struct {
	Kind       AssetKind `json:"kind"`
	Collection string    `json:"collection"`
	TokenID    uint64    `json:"token_id"`
}

func (r AssetRef) String() string {
	return fmt.Sprintf("%s/%d", r.Collection, r.TokenID)
}

var (
	ErrUnknownAsset   = errors.New("escrow: unknown asset")
	ErrNotHolder      = errors.New("escrow: caller does not hold asset")
	ErrAlreadyMinted  = errors.New("escrow: asset already registered")
	ErrAlreadyInVault = errors.New("escrow: asset already held by a vault")
	ErrDuplicateAsset = errors.New("escrow: duplicate asset in bundle")
	ErrNoCustody      = errors.New("escrow: vault holds no assets")
	ErrInvalidKind    = errors.New("escrow: unsupported asset kind")
)

type assetKey struct {
	collection string
	tokenID    uint64
}

// Table is the custody ledger: a single index over every known asset and the
// bundles held per vault. Bundles move in and out atomically; a Lock either
// moves every listed asset into vault custody or none of them.
type Table struct {
	mu      sync.RWMutex
	holders map[assetKey]string     // asset -> current holder address
	inVault map[assetKey]uint64     // asset -> vault holding it, if escrowed
	bundles map[uint64][]AssetRef   // vault -> escrowed assets, in lock order
}

// NewTable creates an empty custody table.
func NewTable() *Table {
	return &Table{
		holders: make(map[assetKey]string),
		inVault: make(map[assetKey]uint64),
		bundles: make(map[uint64][]AssetRef),
	}
}

// Mint registers a fresh asset under the given holder.
func (t *Table) Mint(holder string, ref AssetRef) error {
	if ref.Kind != KindUnique {
		return ErrInvalidKind
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(ref)
	if _, ok := t.holders[k]; ok {
		return ErrAlreadyMinted
	}
	t.holders[k] = holder
	return nil
}

// Holder returns the current holder of an asset.
func (t *Table) Holder(ref AssetRef) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.holders[key(ref)]
	if !ok {
		return "", ErrUnknownAsset
	}
	return h, nil
}

// Lock moves every listed asset from owner into custody of vaultID.
// The whole bundle is validated before any asset moves, so a rejection
// leaves the table untouched.
func (t *Table) Lock(vaultID uint64, owner string, assets []AssetRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[assetKey]struct{}, len(assets))
	for _, ref := range assets {
		if ref.Kind != KindUnique {
			return ErrInvalidKind
		}
		k := key(ref)
		if _, dup := seen[k]; dup {
			return ErrDuplicateAsset
		}
		seen[k] = struct{}{}
		holder, ok := t.holders[k]
		if !ok {
			return ErrUnknownAsset
		}
		if _, escrowed := t.inVault[k]; escrowed {
			return ErrAlreadyInVault
		}
		if holder != owner {
			return ErrNotHolder
		}
	}

	bundle := make([]AssetRef, len(assets))
	copy(bundle, assets)
	for _, ref := range bundle {
		t.inVault[key(ref)] = vaultID
	}
	t.bundles[vaultID] = bundle
	return nil
}

// Release moves the full bundle held by vaultID to recipient and clears the
// vault's custody entry. Callers invoke it once per terminal transition.
func (t *Table) Release(vaultID uint64, recipient string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bundle, ok := t.bundles[vaultID]
	if !ok {
		return ErrNoCustody
	}
	for _, ref := range bundle {
		k := key(ref)
		t.holders[k] = recipient
		delete(t.inVault, k)
	}
	delete(t.bundles, vaultID)
	return nil
}

// Bundle returns a copy of the assets currently held for vaultID.
func (t *Table) Bundle(vaultID uint64) ([]AssetRef, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bundle, ok := t.bundles[vaultID]
	if !ok {
		return nil, ErrNoCustody
	}
	out := make([]AssetRef, len(bundle))
	copy(out, bundle)
	return out, nil
}

func key(ref AssetRef) assetKey {
	return assetKey{collection: ref.Collection, tokenID: ref.TokenID}
}
