package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/tokensale/types"
)

const stateVersion = 1

// State is the persisted layout of a store
type State struct {
	Version        int                                      `json:"version"`
	ReferenceToken types.TokenIdentifier                    `json:"referenceToken"`
	ContentVariant types.ContentVariant                     `json:"contentVariant"`
	Packages       []PackageState                           `json:"packages"`
	Oracles        map[types.TokenIdentifier]common.Address `json:"oracles"`
}

type PackageState struct {
	ID      types.PackageID     `json:"id"`
	Price   *big.Int            `json:"price,omitempty"`
	Content []types.AssetAmount `json:"content,omitempty"`
}

// Snapshot captures the full store state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.packagesLocked()

	state := State{
		Version:        stateVersion,
		ReferenceToken: s.reference,
		ContentVariant: s.variant,
		Packages:       make([]PackageState, 0, len(ids)),
		Oracles:        make(map[types.TokenIdentifier]common.Address, len(s.oracles)),
	}
	for _, id := range ids {
		p := PackageState{ID: id}
		if price, ok := s.prices[id]; ok {
			p.Price = new(big.Int).Set(price)
		}
		if bundle, ok := s.contents[id]; ok {
			p.Content = bundle.Lines()
		}
		state.Packages = append(state.Packages, p)
	}
	for token, addr := range s.oracles {
		state.Oracles[token] = addr
	}
	return state
}

// Restore replaces the store content with state. The state must have been
// taken from a store with the same variant and reference token.
func (s *Store) Restore(state State) error {
	if state.Version != stateVersion {
		return &types.SaleError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("unsupported state version %d", state.Version),
		}
	}
	if state.ContentVariant != s.variant || state.ReferenceToken != s.ReferenceToken() {
		return &types.SaleError{
			Code: types.ErrConfigError,
			Message: fmt.Sprintf("state for %s/%s does not match store %s/%s",
				state.ContentVariant, state.ReferenceToken, s.variant, s.ReferenceToken()),
		}
	}

	fresh, err := New(s.variant, s.ReferenceToken())
	if err != nil {
		return err
	}
	for _, p := range state.Packages {
		if p.Price != nil {
			if err := fresh.SetPackagePrice(p.ID, p.Price); err != nil {
				return fmt.Errorf("package %d: %w", p.ID, err)
			}
		}
		for _, line := range p.Content {
			if err := fresh.AddPackageContent(p.ID, line); err != nil {
				return fmt.Errorf("package %d: %w", p.ID, err)
			}
		}
	}
	for token, addr := range state.Oracles {
		if err := fresh.SetOracle(token, addr); err != nil {
			return fmt.Errorf("oracle %s: %w", token, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = fresh.prices
	s.contents = fresh.contents
	s.oracles = fresh.oracles
	return nil
}

// SaveFile writes a snapshot to path, replacing the previous file
func (s *Store) SaveFile(path string) error {
	payload, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFile restores a snapshot written by SaveFile. A missing file leaves the
// store untouched and reports loaded=false.
func (s *Store) LoadFile(path string) (loaded bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return false, fmt.Errorf("decode state file: %w", err)
	}
	if err := s.Restore(state); err != nil {
		return false, err
	}
	return true, nil
}
