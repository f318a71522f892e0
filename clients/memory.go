package clients

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/tokensale/types"
)

var _ Ledger = (*MemoryLedger)(nil)

// TransferRecord is one batch moved by a MemoryLedger
type TransferRecord struct {
	From   common.Address
	To     common.Address
	Assets []types.AssetAmount
}

// MemoryLedger is an in-process ledger. Every batch is applied atomically.
type MemoryLedger struct {
	self      common.Address
	mu        sync.Mutex
	accounts  map[common.Address]map[types.Asset]*big.Int
	transfers []TransferRecord
}

func NewMemoryLedger(self common.Address) *MemoryLedger {
	return &MemoryLedger{
		self:     self,
		accounts: make(map[common.Address]map[types.Asset]*big.Int),
	}
}

// Address returns the sale account
func (m *MemoryLedger) Address() common.Address {
	return m.self
}

// Mint credits owner with amount out of thin air
func (m *MemoryLedger) Mint(owner common.Address, amount types.AssetAmount) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.credit(owner, amount)
}

// BalanceOf returns the balance of any account
func (m *MemoryLedger) BalanceOf(owner common.Address, asset types.Asset) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return new(big.Int).Set(m.balance(owner, asset))
}

// Balance implements Ledger.
func (m *MemoryLedger) Balance(_ context.Context, asset types.Asset) (*big.Int, error) {
	return m.BalanceOf(m.self, asset), nil
}

// Receive implements Ledger.
func (m *MemoryLedger) Receive(_ context.Context, from common.Address, payment types.AssetAmount) error {
	return m.move(from, m.self, []types.AssetAmount{payment})
}

// Transfer implements Ledger.
func (m *MemoryLedger) Transfer(_ context.Context, to common.Address, batch []types.AssetAmount) error {
	return m.move(m.self, to, batch)
}

// Transfers returns every batch moved so far
func (m *MemoryLedger) Transfers() []TransferRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TransferRecord, len(m.transfers))
	for i, t := range m.transfers {
		out[i] = TransferRecord{From: t.From, To: t.To, Assets: types.CloneAmounts(t.Assets)}
	}
	return out
}

// Close implements Ledger.
func (m *MemoryLedger) Close() {}

func (m *MemoryLedger) move(from, to common.Address, batch []types.AssetAmount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Lines of the same asset draw on one balance.
	need := make(map[types.Asset]*big.Int)
	for _, line := range batch {
		if line.Amount == nil || line.Amount.Sign() < 0 {
			return types.NewError(types.ErrInvalidPayload, "invalid amount for %s", line.Asset())
		}
		sum, ok := need[line.Asset()]
		if !ok {
			sum = new(big.Int)
			need[line.Asset()] = sum
		}
		sum.Add(sum, line.Amount)
	}
	for asset, amount := range need {
		if have := m.balance(from, asset); have.Cmp(amount) < 0 {
			return &types.SaleError{
				Code:    types.ErrInsufficientFunds,
				Message: fmt.Sprintf("%s holds %s of %s, needs %s", from.Hex(), have, asset, amount),
			}
		}
	}

	for _, line := range batch {
		m.debit(from, line)
		m.credit(to, line)
	}
	m.transfers = append(m.transfers, TransferRecord{From: from, To: to, Assets: types.CloneAmounts(batch)})
	return nil
}

func (m *MemoryLedger) balance(owner common.Address, asset types.Asset) *big.Int {
	if acct, ok := m.accounts[owner]; ok {
		if bal, ok := acct[asset]; ok {
			return bal
		}
	}
	return new(big.Int)
}

func (m *MemoryLedger) credit(owner common.Address, amount types.AssetAmount) {
	acct, ok := m.accounts[owner]
	if !ok {
		acct = make(map[types.Asset]*big.Int)
		m.accounts[owner] = acct
	}
	bal, ok := acct[amount.Asset()]
	if !ok {
		bal = new(big.Int)
		acct[amount.Asset()] = bal
	}
	bal.Add(bal, amount.Amount)
}

func (m *MemoryLedger) debit(owner common.Address, amount types.AssetAmount) {
	if amount.Amount.Sign() == 0 {
		return
	}
	bal := m.accounts[owner][amount.Asset()]
	bal.Sub(bal, amount.Amount)
}
