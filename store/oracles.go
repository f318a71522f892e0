package store

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/tokensale/types"
)

// SetOracle binds a payment token to the address of its price oracle. A
// bound token is an accepted payment token.
func (s *Store) SetOracle(token types.TokenIdentifier, oracle common.Address) error {
	if !token.IsValid() {
		return &types.SaleError{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("invalid token %q", token),
		}
	}
	if oracle == (common.Address{}) {
		return &types.SaleError{
			Code:    types.ErrInvalidPayload,
			Message: "oracle address must not be zero",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.oracles[token] = oracle
	return nil
}

func (s *Store) ClearOracle(token types.TokenIdentifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.oracles, token)
}

func (s *Store) Oracle(token types.TokenIdentifier) (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.oracles[token]
	return addr, ok
}

// Oracles returns a copy of every binding
func (s *Store) Oracles() map[types.TokenIdentifier]common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[types.TokenIdentifier]common.Address, len(s.oracles))
	for k, v := range s.oracles {
		out[k] = v
	}
	return out
}
