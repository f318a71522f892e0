// Package store holds the keyed state of a token sale: package prices, package
// content bundles, oracle bindings and the reference token.
package store

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/tokensale/types"
)

// Store is the catalog and oracle registry of one sale. It is safe for
// concurrent use.
type Store struct {
	mu        sync.RWMutex
	variant   types.ContentVariant
	reference types.TokenIdentifier
	prices    map[types.PackageID]*big.Int
	contents  map[types.PackageID]ContentBundle
	oracles   map[types.TokenIdentifier]common.Address
}

// New creates an empty store for the given content variant and reference token
func New(variant types.ContentVariant, reference types.TokenIdentifier) (*Store, error) {
	if !variant.IsValid() {
		return nil, &types.SaleError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("unknown content variant %q", variant),
		}
	}
	if reference == "" {
		return nil, &types.SaleError{
			Code:    types.ErrConfigError,
			Message: "reference token is not set",
		}
	}
	if !reference.IsValid() {
		return nil, &types.SaleError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("invalid reference token %q", reference),
		}
	}

	return &Store{
		variant:   variant,
		reference: reference,
		prices:    make(map[types.PackageID]*big.Int),
		contents:  make(map[types.PackageID]ContentBundle),
		oracles:   make(map[types.TokenIdentifier]common.Address),
	}, nil
}

func (s *Store) Variant() types.ContentVariant {
	return s.variant
}

func (s *Store) ReferenceToken() types.TokenIdentifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reference
}

// PackagePrice returns a copy of the package price in reference units
func (s *Store) PackagePrice(id types.PackageID) (*big.Int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[id]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(price), true
}

func (s *Store) SetPackagePrice(id types.PackageID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return &types.SaleError{
			Code:    types.ErrInvalidPayload,
			Message: "package price must be positive",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[id] = new(big.Int).Set(amount)
	return nil
}

func (s *Store) ClearPackagePrice(id types.PackageID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, id)
}

// PackageContent returns the package content lines. ok is false when the
// package has no content.
func (s *Store) PackageContent(id types.PackageID) ([]types.AssetAmount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bundle, ok := s.contents[id]
	if !ok || bundle.Empty() {
		return nil, false
	}
	return bundle.Lines(), true
}

func (s *Store) AddPackageContent(id types.PackageID, line types.AssetAmount) error {
	if !line.Token.IsValid() {
		return &types.SaleError{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("invalid content token %q", line.Token),
		}
	}
	if line.Amount == nil || line.Amount.Sign() <= 0 {
		return &types.SaleError{
			Code:    types.ErrInvalidPayload,
			Message: "content amount must be positive",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bundle, ok := s.contents[id]
	if !ok {
		bundle = newBundle(s.variant)
		s.contents[id] = bundle
	}
	bundle.Put(line)
	return nil
}

func (s *Store) RemovePackageContent(id types.PackageID, asset types.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bundle, ok := s.contents[id]
	if !ok || !bundle.Remove(asset) {
		return &types.SaleError{
			Code:    types.ErrContentLineNotFound,
			Message: fmt.Sprintf("package %d has no content line for %s", id, asset),
		}
	}
	if bundle.Empty() {
		delete(s.contents, id)
	}
	return nil
}

// RemovePackage clears both the price and the content of a package
func (s *Store) RemovePackage(id types.PackageID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, id)
	delete(s.contents, id)
}

// Packages lists every package id that has a price or content, ascending
func (s *Store) Packages() []types.PackageID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.packagesLocked()
}

func (s *Store) packagesLocked() []types.PackageID {
	seen := make(map[types.PackageID]struct{}, len(s.prices)+len(s.contents))
	for id := range s.prices {
		seen[id] = struct{}{}
	}
	for id := range s.contents {
		seen[id] = struct{}{}
	}

	ids := make([]types.PackageID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
